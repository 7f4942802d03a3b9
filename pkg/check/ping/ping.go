// Package ping implements the host liveness stage.
//
// It shells out to the system ping command with a single packet,
// parses the output for round-trip time, and returns a check.Result
// with a latency_us metric. Any failure maps to check.HostUnreachable.
package ping

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/kylerisse/floodgate/pkg/check"
)

const (
	// TypeName is the registered name for this stage type.
	TypeName = "ping"

	// DefaultTimeout is the default per-ping timeout.
	DefaultTimeout = 1 * time.Second

	// DefaultCount is the default number of packets.
	DefaultCount = 1

	// DefaultCommand is the binary invoked for the ping.
	DefaultCommand = "ping"
)

// Ping implements check.Check using ICMP echo requests.
type Ping struct {
	target  string
	timeout time.Duration
	count   int
	command string
}

// New creates a Ping stage with the given target and options.
func New(target string, opts ...Option) (*Ping, error) {
	if target == "" {
		return nil, fmt.Errorf("ping: target must not be empty")
	}

	p := &Ping{
		target:  target,
		timeout: DefaultTimeout,
		count:   DefaultCount,
		command: DefaultCommand,
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}
	}

	return p, nil
}

// Option is a functional option for configuring a Ping stage.
type Option func(*Ping) error

// WithTimeout sets the ping timeout. ping only accepts whole seconds,
// so the value is rounded up when the command line is built.
func WithTimeout(d time.Duration) Option {
	return func(p *Ping) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		p.timeout = d
		return nil
	}
}

// WithCount sets the number of packets to send.
func WithCount(n int) Option {
	return func(p *Ping) error {
		if n < 1 {
			return fmt.Errorf("count must be at least 1, got %d", n)
		}
		p.count = n
		return nil
	}
}

// WithCommand overrides the ping binary, e.g. for an absolute path.
func WithCommand(name string) Option {
	return func(p *Ping) error {
		if name == "" {
			return fmt.Errorf("command must not be empty")
		}
		p.command = name
		return nil
	}
}

// Type returns the stage type name.
func (p *Ping) Type() string {
	return TypeName
}

// Run executes the ping and returns a Result.
func (p *Ping) Run(ctx context.Context) check.Result {
	now := time.Now()

	cmd := exec.CommandContext(ctx, p.command, p.args()...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return check.Result{
			Timestamp: now,
			Stage:     TypeName,
			Outcome:   check.HostUnreachable,
			Err:       fmt.Errorf("could not ping host %s: %w", p.target, err),
		}
	}

	result := check.Result{
		Timestamp: now,
		Stage:     TypeName,
		Outcome:   check.Reachable,
		Success:   true,
	}

	// A zero exit status is enough to call the host alive; the RTT is a bonus.
	if latency, err := parseOutput(out.String()); err == nil {
		result.Metrics = map[string]float64{
			"latency_us": float64(latency.Microseconds()),
		}
	}

	return result
}

// args builds the command line: ping -c <count> -W <seconds> <target>.
func (p *Ping) args() []string {
	timeoutSec := strconv.Itoa(int(math.Ceil(p.timeout.Seconds())))
	return []string{"-c", strconv.Itoa(p.count), "-W", timeoutSec, p.target}
}

// Factory creates a Ping stage from a config map.
// Required key: "target" (string).
// Optional keys: "timeout" (duration string), "count" (number), "command" (string).
func Factory(config map[string]any) (check.Check, error) {
	target, err := check.RequiredString(config, "target")
	if err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}

	var opts []Option

	if d, ok, err := check.DurationOption(config, "timeout"); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	} else if ok {
		opts = append(opts, WithTimeout(d))
	}

	if n, ok, err := check.IntOption(config, "count"); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	} else if ok {
		opts = append(opts, WithCount(n))
	}

	if c, ok, err := check.StringOption(config, "command"); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	} else if ok {
		opts = append(opts, WithCommand(c))
	}

	return New(target, opts...)
}

// rttPattern matches the per-reply round trip, e.g. "time=0.042 ms" or
// "time<1ms". The number and the unit may be glued together.
var rttPattern = regexp.MustCompile(`\btime[=<]([^\sa-zA-Zµ]+)\s*(\S*)`)

var rttUnits = map[string]time.Duration{
	"s":  time.Second,
	"ms": time.Millisecond,
	"us": time.Microsecond,
	"µs": time.Microsecond,
}

// parseOutput returns the first reply's round trip from ping output.
func parseOutput(output string) (time.Duration, error) {
	m := rttPattern.FindStringSubmatch(output)
	if m == nil {
		return 0, errors.New("no round trip time in ping output")
	}
	value, unit := m[1], m[2]

	rtt, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("bad round trip %q: %w", value, err)
	}
	scale, ok := rttUnits[unit]
	if !ok {
		return 0, fmt.Errorf("unknown round trip unit %q", unit)
	}
	return time.Duration(rtt * float64(scale)), nil
}
