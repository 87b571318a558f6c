// Package metrics holds the Prometheus collectors shared by the provider
// client and the orchestrator. All methods are safe on a nil *Metrics.
package metrics

// #region imports
import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// #endregion

// #region metrics-struct

// Metrics bundles every collector the engine reports to.
type Metrics struct {
	providerAttempts  *prometheus.CounterVec
	providerExhausted *prometheus.CounterVec
	runs              *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		providerAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bibo",
			Name:      "provider_attempts_total",
			Help:      "Generation attempts against a backend, by outcome.",
		}, []string{"backend", "tier", "outcome"}),
		providerExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bibo",
			Name:      "provider_exhausted_total",
			Help:      "Generation calls that failed after every retry.",
		}, []string{"backend"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bibo",
			Name:      "runs_total",
			Help:      "Pipeline runs, by flow and outcome.",
		}, []string{"flow", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bibo",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration of pipeline stages.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{"flow", "stage"}),
	}

	for _, c := range []prometheus.Collector{m.providerAttempts, m.providerExhausted, m.runs, m.stageDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// #endregion

// #region recorders

// ProviderAttempt counts one backend attempt. outcome is "ok", "error" or "empty".
func (m *Metrics) ProviderAttempt(backend, tier, outcome string) {
	if m == nil {
		return
	}
	m.providerAttempts.WithLabelValues(backend, tier, outcome).Inc()
}

// ProviderExhausted counts a call that ran out of retries.
func (m *Metrics) ProviderExhausted(backend string) {
	if m == nil {
		return
	}
	m.providerExhausted.WithLabelValues(backend).Inc()
}

// Run counts a finished pipeline run.
func (m *Metrics) Run(flow, outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(flow, outcome).Inc()
}

// StageDone observes a stage's duration.
func (m *Metrics) StageDone(flow, stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(flow, stage).Observe(d.Seconds())
}

// #endregion
