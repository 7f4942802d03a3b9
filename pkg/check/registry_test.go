package check

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// stubCheck is a minimal Check implementation for testing.
type stubCheck struct {
	typeName string
	result   Result
}

func (s *stubCheck) Type() string                 { return s.typeName }
func (s *stubCheck) Run(_ context.Context) Result { return s.result }

func stubFactory(typeName string, result Result) Factory {
	return func(config map[string]any) (Check, error) {
		return &stubCheck{typeName: typeName, result: result}, nil
	}
}

func failingFactory(config map[string]any) (Check, error) {
	return nil, fmt.Errorf("factory error")
}

func TestRegistry_RegisterAndCreate(t *testing.T) {
	reg := NewRegistry()
	expected := Result{Outcome: Reachable, Success: true, Timestamp: time.Now()}

	if err := reg.Register("stub", stubFactory("stub", expected)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	chk, err := reg.Create("stub", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if chk.Type() != "stub" {
		t.Errorf("expected type 'stub', got %q", chk.Type())
	}
	if result := chk.Run(context.Background()); !result.Success {
		t.Error("expected successful result from stub check")
	}
}

func TestRegistry_DuplicateRegister(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("dup", stubFactory("dup", Result{})); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := reg.Register("dup", stubFactory("dup", Result{})); err == nil {
		t.Error("expected error on duplicate registration")
	}
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("", stubFactory("", Result{})); err == nil {
		t.Error("expected error for empty name")
	}
	if err := reg.Register("nil", nil); err == nil {
		t.Error("expected error for nil factory")
	}
}

func TestRegistry_CreateUnknownType(t *testing.T) {
	reg := NewRegistry()
	reg.Register("tcp", stubFactory("tcp", Result{}))

	_, err := reg.Create("nonexistent", nil)
	if err == nil {
		t.Fatal("expected error for unknown stage type")
	}
	if !strings.Contains(err.Error(), "tcp") {
		t.Errorf("expected error to list registered types, got %q", err)
	}
}

func TestRegistry_CreateFactoryError(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("bad", failingFactory); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	_, err := reg.Create("bad", nil)
	if err == nil {
		t.Fatal("expected error from failing factory")
	}
	if !strings.Contains(err.Error(), "bad") {
		t.Errorf("expected stage name in error, got %q", err)
	}
}

func TestRegistry_TypesSorted(t *testing.T) {
	reg := NewRegistry()
	reg.Register("tcp", stubFactory("tcp", Result{}))
	reg.Register("ping", stubFactory("ping", Result{}))
	reg.Register("postgres", stubFactory("postgres", Result{}))

	types := reg.Types()
	expected := []string{"ping", "postgres", "tcp"}
	if len(types) != len(expected) {
		t.Fatalf("expected %d types, got %d", len(expected), len(types))
	}
	for i, typ := range types {
		if typ != expected[i] {
			t.Errorf("expected type %q at index %d, got %q", expected[i], i, typ)
		}
	}
}

func TestRegistry_TypesEmpty(t *testing.T) {
	reg := NewRegistry()
	if types := reg.Types(); len(types) != 0 {
		t.Errorf("expected empty types, got %v", types)
	}
}

func TestRegistry_Has(t *testing.T) {
	reg := NewRegistry()
	reg.Register("redis", stubFactory("redis", Result{}))
	if !reg.Has("redis") {
		t.Error("expected redis to be registered")
	}
	if reg.Has("postgres") {
		t.Error("did not expect postgres to be registered")
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup

	// Register concurrently
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("type-%d", n)
			reg.Register(name, stubFactory(name, Result{}))
		}(i)
	}
	wg.Wait()

	// Create concurrently
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("type-%d", n)
			chk, err := reg.Create(name, nil)
			if err != nil {
				t.Errorf("Create(%q) failed: %v", name, err)
				return
			}
			if chk.Type() != name {
				t.Errorf("expected type %q, got %q", name, chk.Type())
			}
		}(i)
	}
	wg.Wait()

	if types := reg.Types(); len(types) != 50 {
		t.Errorf("expected 50 registered types, got %d", len(types))
	}
}

func TestRegistry_ConfigPassthrough(t *testing.T) {
	reg := NewRegistry()

	var receivedConfig map[string]any
	factory := func(config map[string]any) (Check, error) {
		receivedConfig = config
		return &stubCheck{typeName: "configtest"}, nil
	}
	reg.Register("configtest", factory)

	config := map[string]any{
		"target":  "db.internal",
		"timeout": "5s",
	}
	reg.Create("configtest", config)

	if receivedConfig == nil {
		t.Fatal("factory did not receive config")
	}
	if receivedConfig["target"] != "db.internal" {
		t.Errorf("expected target 'db.internal', got %v", receivedConfig["target"])
	}
	if receivedConfig["timeout"] != "5s" {
		t.Errorf("expected timeout '5s', got %v", receivedConfig["timeout"])
	}
}
