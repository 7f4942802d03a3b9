package check

import (
	"sync"
	"time"
)

// Status tracks the latest result of a gate evaluation.
// It is safe for concurrent reads via the exported accessor methods,
// but writes should be done through SetResult.
type Status struct {
	mu         sync.RWMutex
	lastResult Result
	lastUpdate time.Time
}

// NewStatus creates a Status with zero values (not alive, outcome unknown).
func NewStatus() *Status {
	return &Status{}
}

// Alive returns whether the last evaluation was successful.
func (s *Status) Alive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResult.Success
}

// Outcome returns the outcome of the last evaluation.
func (s *Status) Outcome() Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResult.Outcome
}

// LastUpdate returns when the last evaluation finished.
// The zero time means nothing has been evaluated yet.
func (s *Status) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// SetResult stores the latest result and the time it was recorded.
func (s *Status) SetResult(result Result, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastResult = result
	s.lastUpdate = at
}

// Snapshot returns a point-in-time copy of the status fields.
// This is useful for building API responses without holding the lock.
func (s *Status) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Deep copy the metrics map so the snapshot is independent
	var metrics map[string]float64
	if s.lastResult.Metrics != nil {
		metrics = make(map[string]float64, len(s.lastResult.Metrics))
		for k, v := range s.lastResult.Metrics {
			metrics[k] = v
		}
	}

	var errMsg string
	if s.lastResult.Err != nil {
		errMsg = s.lastResult.Err.Error()
	}

	return StatusSnapshot{
		Alive:      s.lastResult.Success,
		Outcome:    s.lastResult.Outcome,
		Stage:      s.lastResult.Stage,
		Error:      errMsg,
		Metrics:    metrics,
		LastUpdate: s.lastUpdate,
	}
}

// StatusSnapshot is a point-in-time copy of Status fields.
type StatusSnapshot struct {
	Alive      bool
	Outcome    Outcome
	Stage      string
	Error      string
	Metrics    map[string]float64
	LastUpdate time.Time
}
