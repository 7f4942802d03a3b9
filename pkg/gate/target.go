package gate

import (
	"errors"
	"fmt"
	"time"
)

// Target identifies the database service the gate waits for.
type Target struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// Validate reports whether the target can be checked at all.
func (t Target) Validate() error {
	if t.Host == "" {
		return errors.New("target host must not be empty")
	}
	if t.Port < 1 || t.Port > 65535 {
		return fmt.Errorf("target port must be between 1 and 65535, got %d", t.Port)
	}
	return nil
}

// RetryPolicy controls how many attempts the gate makes and how long it
// waits between them.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	SkipPing    bool
}

// DefaultPolicy returns fifteen attempts one second apart with the
// liveness ping disabled.
func DefaultPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 15,
		Backoff:     time.Second,
		SkipPing:    true,
	}
}

// Validate checks the policy bounds.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.Backoff < 0 {
		return fmt.Errorf("backoff must not be negative, got %v", p.Backoff)
	}
	return nil
}
