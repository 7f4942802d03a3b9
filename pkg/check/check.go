// Package check defines the core interfaces and types for connectivity stages.
//
// A Check represents a single readiness step run against a database
// target. Different stage types (ping, tcp, postgres, redis) implement the
// Check interface with their own logic and configuration.
//
// Results from stage execution are captured in a Result struct, which
// provides a uniform shape regardless of stage type: a tagged Outcome,
// a set of named metrics, and an optional error.
//
// The Registry provides type discovery, allowing stage types to be
// registered by name and instantiated from configuration at runtime.
package check

import (
	"context"
)

// Check is the interface that all connectivity stages must implement.
type Check interface {
	// Type returns the registered name of this stage type (e.g. "ping", "tcp").
	Type() string

	// Run executes the stage and returns a Result.
	// Implementations must release every socket or session they open
	// before returning, regardless of the outcome.
	Run(ctx context.Context) Result
}
