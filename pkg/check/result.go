package check

import (
	"fmt"
	"time"
)

// Outcome is the tagged result of a stage or of a whole gate attempt.
type Outcome int

const (
	// Unknown means the target has not been evaluated yet.
	Unknown Outcome = iota
	// Reachable means the stage (or every stage of an attempt) passed.
	Reachable
	// HostUnreachable means the network-layer liveness ping failed.
	HostUnreachable
	// PortClosed means the transport connection was refused or timed out.
	PortClosed
	// HostUnresolvable means the hostname could not be resolved.
	HostUnresolvable
	// AuthOrDatabaseFailure means the application-layer session could not be opened.
	AuthOrDatabaseFailure
)

var outcomeNames = map[Outcome]string{
	Unknown:               "unknown",
	Reachable:             "reachable",
	HostUnreachable:       "host_unreachable",
	PortClosed:            "port_closed",
	HostUnresolvable:      "host_unresolvable",
	AuthOrDatabaseFailure: "auth_or_database_failure",
}

// Outcomes lists every outcome in declaration order.
var Outcomes = []Outcome{Unknown, Reachable, HostUnreachable, PortClosed, HostUnresolvable, AuthOrDatabaseFailure}

// String returns the snake_case name used in logs, metrics and the API.
func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(text []byte) error {
	for k, v := range outcomeNames {
		if v == string(text) {
			*o = k
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", string(text))
}

// Result captures the outcome of a single stage execution.
type Result struct {
	// Timestamp is when the stage was executed.
	Timestamp time.Time

	// Stage is the type name of the stage that produced this result.
	Stage string

	// Outcome classifies the result. Reachable on success.
	Outcome Outcome

	// Success indicates whether the stage passed.
	Success bool

	// Duration is how long the stage took. Filled in by the caller
	// that timed the stage; stages may leave it zero.
	Duration time.Duration

	// Metrics holds named measurements from the stage execution.
	// For example, a ping stage sets {"latency_us": 1234.0}.
	// An empty or nil map is valid for stages that only report pass/fail.
	Metrics map[string]float64

	// Err holds the reason a stage failed. Nil on success.
	Err error
}
