package ping

import (
	"context"
	"os/exec"
	"reflect"
	"testing"
	"time"

	"github.com/kylerisse/floodgate/pkg/check"
)

func TestNew_ValidTarget(t *testing.T) {
	p, err := New("db.internal")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.target != "db.internal" {
		t.Errorf("expected target 'db.internal', got %q", p.target)
	}
	if p.timeout != DefaultTimeout {
		t.Errorf("expected default timeout %v, got %v", DefaultTimeout, p.timeout)
	}
	if p.count != DefaultCount {
		t.Errorf("expected default count %d, got %d", DefaultCount, p.count)
	}
	if p.command != DefaultCommand {
		t.Errorf("expected default command %q, got %q", DefaultCommand, p.command)
	}
}

func TestNew_EmptyTarget(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty target")
	}
}

func TestNew_WithOptions(t *testing.T) {
	p, err := New("db.internal",
		WithTimeout(5*time.Second),
		WithCount(3),
		WithCommand("/bin/ping"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", p.timeout)
	}
	if p.count != 3 {
		t.Errorf("expected count 3, got %d", p.count)
	}
	if p.command != "/bin/ping" {
		t.Errorf("expected command '/bin/ping', got %q", p.command)
	}
}

func TestWithTimeout_Invalid(t *testing.T) {
	if _, err := New("localhost", WithTimeout(0)); err == nil {
		t.Error("expected error for zero timeout")
	}
	if _, err := New("localhost", WithTimeout(-1*time.Second)); err == nil {
		t.Error("expected error for negative timeout")
	}
}

func TestWithCount_Invalid(t *testing.T) {
	if _, err := New("localhost", WithCount(0)); err == nil {
		t.Error("expected error for zero count")
	}
}

func TestWithCommand_Empty(t *testing.T) {
	if _, err := New("localhost", WithCommand("")); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestType(t *testing.T) {
	p, _ := New("localhost")
	if p.Type() != "ping" {
		t.Errorf("expected type 'ping', got %q", p.Type())
	}
}

func TestArgs(t *testing.T) {
	p, _ := New("db.internal", WithTimeout(1500*time.Millisecond))
	want := []string{"-c", "1", "-W", "2", "db.internal"}
	if got := p.args(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected args %v, got %v", want, got)
	}
}

func TestParseOutput_Milliseconds(t *testing.T) {
	output := `PING localhost (127.0.0.1) 56(84) bytes of data.
64 bytes from localhost (127.0.0.1): icmp_seq=1 ttl=64 time=0.042 ms

--- localhost ping statistics ---
1 packets transmitted, 1 received, 0% packet loss, time 0ms
rtt min/avg/max/mdev = 0.042/0.042/0.042/0.000 ms`

	d, err := parseOutput(output)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != time.Duration(0.042*float64(time.Millisecond)) {
		t.Errorf("expected ~42µs, got %v", d)
	}
}

func TestParseOutput_Microseconds(t *testing.T) {
	output := `64 bytes from localhost: icmp_seq=1 ttl=64 time=42 us`

	d, err := parseOutput(output)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != time.Duration(42*float64(time.Microsecond)) {
		t.Errorf("expected 42µs, got %v", d)
	}
}

func TestParseOutput_MicrosecondsUnicode(t *testing.T) {
	output := `64 bytes from localhost: icmp_seq=1 ttl=64 time=42 µs`

	d, err := parseOutput(output)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != time.Duration(42*float64(time.Microsecond)) {
		t.Errorf("expected 42µs, got %v", d)
	}
}

func TestParseOutput_Seconds(t *testing.T) {
	output := `64 bytes from host: icmp_seq=1 ttl=64 time=1.5 s`

	d, err := parseOutput(output)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != time.Duration(1.5*float64(time.Second)) {
		t.Errorf("expected 1.5s, got %v", d)
	}
}

func TestParseOutput_GluedUnit(t *testing.T) {
	tests := map[string]time.Duration{
		`64 bytes from 10.0.0.5: icmp_seq=0 ttl=64 time=3.5ms`: 3500 * time.Microsecond,
		`Reply from 10.0.0.5: bytes=32 time<1ms TTL=128`:       time.Millisecond,
		`64 bytes from 10.0.0.5: icmp_seq=0 ttl=64 time=250us`: 250 * time.Microsecond,
	}
	for output, want := range tests {
		d, err := parseOutput(output)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", output, err)
			continue
		}
		if d != want {
			t.Errorf("%q: expected %v, got %v", output, want, d)
		}
	}
}

func TestParseOutput_NoRTT(t *testing.T) {
	output := `PING badhost (0.0.0.0): 56 data bytes
--- badhost ping statistics ---
1 packets transmitted, 0 received, 100% packet loss`

	_, err := parseOutput(output)
	if err == nil {
		t.Error("expected error for output with no RTT")
	}
}

func TestParseOutput_InvalidRTT(t *testing.T) {
	output := `64 bytes from localhost: icmp_seq=1 ttl=64 time=abc ms`

	_, err := parseOutput(output)
	if err == nil {
		t.Error("expected error for non-numeric RTT")
	}
}

func TestParseOutput_UnknownUnit(t *testing.T) {
	output := `64 bytes from localhost: icmp_seq=1 ttl=64 time=42 furlongs`

	_, err := parseOutput(output)
	if err == nil {
		t.Error("expected error for unknown time unit")
	}
}

func TestFactory_Valid(t *testing.T) {
	chk, err := Factory(map[string]any{
		"target":  "db.internal",
		"timeout": "5s",
		"count":   float64(2),
		"command": "/usr/bin/ping",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chk.Type() != "ping" {
		t.Errorf("expected type 'ping', got %q", chk.Type())
	}

	p := chk.(*Ping)
	if p.target != "db.internal" {
		t.Errorf("expected target 'db.internal', got %q", p.target)
	}
	if p.timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", p.timeout)
	}
	if p.count != 2 {
		t.Errorf("expected count 2, got %d", p.count)
	}
	if p.command != "/usr/bin/ping" {
		t.Errorf("expected command '/usr/bin/ping', got %q", p.command)
	}
}

func TestFactory_MinimalConfig(t *testing.T) {
	chk, err := Factory(map[string]any{"target": "localhost"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := chk.(*Ping)
	if p.timeout != DefaultTimeout {
		t.Errorf("expected default timeout, got %v", p.timeout)
	}
	if p.count != DefaultCount {
		t.Errorf("expected default count, got %d", p.count)
	}
}

func TestFactory_MissingTarget(t *testing.T) {
	if _, err := Factory(map[string]any{}); err == nil {
		t.Error("expected error for missing target")
	}
}

func TestFactory_WrongTargetType(t *testing.T) {
	if _, err := Factory(map[string]any{"target": 123}); err == nil {
		t.Error("expected error for non-string target")
	}
}

func TestFactory_InvalidTimeout(t *testing.T) {
	_, err := Factory(map[string]any{
		"target":  "localhost",
		"timeout": "not-a-duration",
	})
	if err == nil {
		t.Error("expected error for invalid timeout")
	}
}

func TestFactory_WrongCountType(t *testing.T) {
	_, err := Factory(map[string]any{
		"target": "localhost",
		"count":  true,
	})
	if err == nil {
		t.Error("expected error for non-numeric count")
	}
}

func TestRegistryIntegration(t *testing.T) {
	reg := check.NewRegistry()
	if err := reg.Register(TypeName, Factory); err != nil {
		t.Fatalf("failed to register ping: %v", err)
	}

	chk, err := reg.Create("ping", map[string]any{"target": "localhost"})
	if err != nil {
		t.Fatalf("failed to create ping stage: %v", err)
	}
	if chk.Type() != "ping" {
		t.Errorf("expected type 'ping', got %q", chk.Type())
	}
}

func requireBinary(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("skipping: %s not found on PATH", name)
	}
}

func TestRun_ZeroExitIsReachable(t *testing.T) {
	requireBinary(t, "true")

	p, err := New("db.internal", WithCommand("true"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := p.Run(context.Background())
	if !result.Success {
		t.Fatalf("expected success, got error: %v", result.Err)
	}
	if result.Outcome != check.Reachable {
		t.Errorf("expected reachable, got %v", result.Outcome)
	}
	if result.Stage != TypeName {
		t.Errorf("expected stage %q, got %q", TypeName, result.Stage)
	}
	if result.Timestamp.IsZero() {
		t.Error("expected non-zero timestamp")
	}
	if _, ok := result.Metrics["latency_us"]; ok {
		t.Error("did not expect latency without RTT in output")
	}
}

func TestRun_NonZeroExitIsUnreachable(t *testing.T) {
	requireBinary(t, "false")

	p, _ := New("db.internal", WithCommand("false"))
	result := p.Run(context.Background())
	if result.Success {
		t.Error("expected failure")
	}
	if result.Outcome != check.HostUnreachable {
		t.Errorf("expected host_unreachable, got %v", result.Outcome)
	}
	if result.Err == nil {
		t.Error("expected non-nil error")
	}
}

func TestRun_MissingBinaryIsUnreachable(t *testing.T) {
	p, _ := New("db.internal", WithCommand("/nonexistent/floodgate-ping"))
	result := p.Run(context.Background())
	if result.Success {
		t.Error("expected failure when the ping binary is missing")
	}
	if result.Outcome != check.HostUnreachable {
		t.Errorf("expected host_unreachable, got %v", result.Outcome)
	}
}

func TestRun_ContextCancellation(t *testing.T) {
	requireBinary(t, "true")

	p, _ := New("db.internal", WithCommand("true"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	result := p.Run(ctx)
	if result.Success {
		t.Error("expected cancelled stage to fail")
	}
	if result.Outcome != check.HostUnreachable {
		t.Errorf("expected host_unreachable, got %v", result.Outcome)
	}
}
