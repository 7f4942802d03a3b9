// Package metrics exposes gate attempts as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kylerisse/floodgate/pkg/gate"
)

const namespace = "floodgate"

// Metrics holds the Prometheus counters, histograms and gauges for the gate.
// It implements gate.Observer.
type Metrics struct {
	Attempts      *prometheus.CounterVec   // labels: outcome
	StageResults  *prometheus.CounterVec   // labels: stage, outcome
	StageDuration *prometheus.HistogramVec // labels: stage
	Ready         prometheus.Gauge
	LastAttempt   prometheus.Gauge
}

// New creates the gate metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Gate attempts by overall outcome.",
		}, []string{"outcome"}),
		StageResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage evaluations by stage and outcome.",
		}, []string{"stage", "outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of a single stage evaluation.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}, []string{"stage"}),
		Ready: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ready",
			Help:      "1 when the last attempt reached the database, 0 otherwise.",
		}),
		LastAttempt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_attempt_timestamp_seconds",
			Help:      "Unix time of the last gate attempt.",
		}),
	}

	reg.MustRegister(
		m.Attempts,
		m.StageResults,
		m.StageDuration,
		m.Ready,
		m.LastAttempt,
	)

	return m
}

// ObserveAttempt records one gate attempt.
func (m *Metrics) ObserveAttempt(a gate.Attempt) {
	m.Attempts.WithLabelValues(a.Result.Outcome.String()).Inc()

	for _, r := range a.Stages {
		m.StageResults.WithLabelValues(r.Stage, r.Outcome.String()).Inc()
		m.StageDuration.WithLabelValues(r.Stage).Observe(r.Duration.Seconds())
	}

	if a.Result.Success {
		m.Ready.Set(1)
	} else {
		m.Ready.Set(0)
	}
	if !a.Result.Timestamp.IsZero() {
		m.LastAttempt.Set(float64(a.Result.Timestamp.Unix()))
	}
}
