// Package gate waits, with bounded retries, until a database service is
// reachable at the network and application layers.
//
// A gate runs an ordered list of stages (see package check) once per
// attempt and stops at the first stage that does not succeed. Stage
// failures never escape as errors: each attempt produces a check.Result
// that is logged and handed to observers, and the gate itself only
// reports a boolean readiness signal.
package gate

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/kylerisse/floodgate/pkg/check"
	"github.com/kylerisse/floodgate/pkg/check/ping"
)

// ErrAttemptsExhausted is returned by Wait when every attempt failed.
var ErrAttemptsExhausted = errors.New("connectivity attempts exhausted")

var errNoStageRan = errors.New("no stage ran")

// Attempt describes one evaluation of the gate.
type Attempt struct {
	RunID       string
	Number      int
	MaxAttempts int
	// Stages holds the result of every stage that ran, in order.
	Stages      []check.Result
	// Result is the outcome of the attempt as a whole.
	Result      check.Result
}

// Observer receives a report after every attempt.
type Observer interface {
	ObserveAttempt(Attempt)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Attempt)

// ObserveAttempt calls f(a).
func (f ObserverFunc) ObserveAttempt(a Attempt) {
	f(a)
}

// Gate evaluates its stages with the configured retry policy.
type Gate struct {
	runID     string
	stages    []check.Check
	policy    RetryPolicy
	clock     clockwork.Clock
	logger    *logrus.Entry
	observers []Observer
}

// Option is a functional option for configuring a Gate.
type Option func(*Gate) error

// WithClock replaces the real clock, used for backoff and stage timing.
func WithClock(c clockwork.Clock) Option {
	return func(g *Gate) error {
		if c == nil {
			return errors.New("clock must not be nil")
		}
		g.clock = c
		return nil
	}
}

// WithLogger sets the logger progress is written to.
func WithLogger(l logrus.FieldLogger) Option {
	return func(g *Gate) error {
		if l == nil {
			return errors.New("logger must not be nil")
		}
		g.logger = l.WithField("run_id", g.runID)
		return nil
	}
}

// WithObserver registers an observer for attempt reports.
func WithObserver(o Observer) Option {
	return func(g *Gate) error {
		if o == nil {
			return errors.New("observer must not be nil")
		}
		g.observers = append(g.observers, o)
		return nil
	}
}

// New creates a Gate running stages in the given order.
func New(stages []check.Check, policy RetryPolicy, opts ...Option) (*Gate, error) {
	if len(stages) == 0 {
		return nil, errors.New("gate: at least one stage is required")
	}
	active := 0
	for i, s := range stages {
		if s == nil {
			return nil, fmt.Errorf("gate: stage %d is nil", i)
		}
		if !policy.skips(s) {
			active++
		}
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("gate: %w", err)
	}
	if active == 0 {
		return nil, errors.New("gate: every stage is skipped by the policy")
	}

	g := &Gate{
		runID:  uuid.NewString(),
		stages: stages,
		policy: policy,
		clock:  clockwork.NewRealClock(),
	}
	g.logger = logrus.StandardLogger().WithField("run_id", g.runID)

	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, fmt.Errorf("gate: %w", err)
		}
	}

	return g, nil
}

// RunID identifies this gate in logs and attempt reports.
func (g *Gate) RunID() string {
	return g.runID
}

// Policy returns the retry policy.
func (g *Gate) Policy() RetryPolicy {
	return g.policy
}

// Stages returns the type names of the configured stages in order.
func (g *Gate) Stages() []string {
	names := make([]string, 0, len(g.stages))
	for _, s := range g.stages {
		names = append(names, s.Type())
	}
	return names
}

// Evaluate runs the stages once, stopping at the first failure. The
// returned Result carries the outcome of the failing stage, or Reachable
// with the metrics of every stage when all of them succeed.
func (g *Gate) Evaluate(ctx context.Context) (check.Result, []check.Result) {
	start := g.clock.Now()
	ran := make([]check.Result, 0, len(g.stages))
	metrics := make(map[string]float64)

	for _, stage := range g.stages {
		if g.policy.skips(stage) {
			continue
		}

		stageStart := g.clock.Now()
		r := stage.Run(ctx)
		if r.Stage == "" {
			r.Stage = stage.Type()
		}
		if r.Duration == 0 {
			r.Duration = g.clock.Since(stageStart)
		}
		ran = append(ran, r)

		if !r.Success {
			if r.Outcome == check.Reachable || r.Outcome == check.Unknown {
				r.Outcome = check.AuthOrDatabaseFailure
			}
			r.Timestamp = start
			r.Duration = g.clock.Since(start)
			return r, ran
		}

		for k, v := range r.Metrics {
			metrics[r.Stage+"_"+k] = v
		}
	}

	if len(ran) == 0 {
		return check.Result{
			Timestamp: start,
			Outcome:   check.Unknown,
			Duration:  g.clock.Since(start),
			Err:       errNoStageRan,
		}, ran
	}

	return check.Result{
		Timestamp: start,
		Stage:     ran[len(ran)-1].Stage,
		Outcome:   check.Reachable,
		Success:   true,
		Duration:  g.clock.Since(start),
		Metrics:   metrics,
	}, ran
}

// skips reports whether the policy leaves stage out of every attempt.
func (p RetryPolicy) skips(stage check.Check) bool {
	return p.SkipPing && stage.Type() == ping.TypeName
}

// Check runs a single attempt and reports whether every stage succeeded.
func (g *Gate) Check(ctx context.Context) bool {
	return g.attempt(ctx, 1, 1)
}

// WaitUntilReady calls Check up to MaxAttempts times, sleeping Backoff
// between attempts. It returns true on the first success and false when
// the attempts are exhausted or ctx is done.
func (g *Gate) WaitUntilReady(ctx context.Context) bool {
	return g.Wait(ctx) == nil
}

// Wait is WaitUntilReady with an error describing why the gate stayed
// closed: ErrAttemptsExhausted or the context error.
func (g *Gate) Wait(ctx context.Context) error {
	n := g.policy.MaxAttempts
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			g.logger.WithError(err).Warn("Stopped waiting for database connection")
			return err
		}

		g.logger.Infof("[%d/%d] Check database connection", i, n)
		if g.attempt(ctx, i, n) {
			return nil
		}

		if i == n || g.policy.Backoff <= 0 {
			continue
		}
		select {
		case <-g.clock.After(g.policy.Backoff):
		case <-ctx.Done():
			g.logger.WithError(ctx.Err()).Warn("Stopped waiting for database connection")
			return ctx.Err()
		}
	}

	g.logger.Errorf("Database connection not available after %d attempts", n)
	return fmt.Errorf("%w after %d attempts", ErrAttemptsExhausted, n)
}

// attempt evaluates the stages once, logs the outcome and notifies observers.
func (g *Gate) attempt(ctx context.Context, number, total int) bool {
	result, stages := g.Evaluate(ctx)

	fields := logrus.Fields{
		"attempt": number,
		"stage":   result.Stage,
		"outcome": result.Outcome.String(),
	}
	if result.Success {
		g.logger.WithFields(fields).Info("Database connection available")
	} else {
		g.logger.WithFields(fields).WithError(result.Err).Warn("Database connection check failed")
	}

	a := Attempt{
		RunID:       g.runID,
		Number:      number,
		MaxAttempts: total,
		Stages:      stages,
		Result:      result,
	}
	for _, o := range g.observers {
		o.ObserveAttempt(a)
	}

	return result.Success
}

