// File: internal/platform/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Recorder collects counters for auth operations and fallback polling.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	operations *prometheus.CounterVec
	pollTicks  *prometheus.CounterVec
	signedIn   prometheus.Gauge
}

// New registers the auth collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "learnapp",
			Subsystem: "auth",
			Name:      "operations_total",
			Help:      "Auth dispatcher and phone challenge operations by outcome.",
		}, []string{"operation", "outcome", "kind"}),
		pollTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "learnapp",
			Subsystem: "auth",
			Name:      "poll_checks_total",
			Help:      "Identity slot checks performed by the polling fallback.",
		}, []string{"result"}),
		signedIn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "learnapp",
			Subsystem: "auth",
			Name:      "session_signed_in",
			Help:      "1 while the session store holds a signed-in identity.",
		}),
	}
	for _, c := range []prometheus.Collector{r.operations, r.pollTicks, r.signedIn} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ObserveOperation counts one finished operation. kind is empty on success.
func (r *Recorder) ObserveOperation(operation, outcome, kind string) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(operation, outcome, kind).Inc()
}

// ObservePollCheck counts one slot check; result is "found", "empty" or "skipped".
func (r *Recorder) ObservePollCheck(result string) {
	if r == nil {
		return
	}
	r.pollTicks.WithLabelValues(result).Inc()
}

// SetSignedIn mirrors the store's signed-in status.
func (r *Recorder) SetSignedIn(signedIn bool) {
	if r == nil {
		return
	}
	if signedIn {
		r.signedIn.Set(1)
		return
	}
	r.signedIn.Set(0)
}

// Operations exposes the operations counter for tests.
func (r *Recorder) Operations() *prometheus.CounterVec { return r.operations }

// PollChecks exposes the poll counter for tests.
func (r *Recorder) PollChecks() *prometheus.CounterVec { return r.pollTicks }

// SignedIn exposes the signed-in gauge for tests.
func (r *Recorder) SignedIn() prometheus.Gauge { return r.signedIn }
