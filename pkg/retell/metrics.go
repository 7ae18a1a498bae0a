package retell

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the Prometheus collectors for the token endpoint and the
// call controller. All fields are safe for concurrent use.
type Metrics struct {
	// RegisterCallCounter counts register-call outcomes.
	// Labels: outcome (success|config_error|provision_error)
	RegisterCallCounter *prometheus.CounterVec

	// ProvisionDuration measures provisioning latency in seconds.
	ProvisionDuration prometheus.Histogram

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// StateTransitions counts controller transitions.
	// Labels: from, to
	StateTransitions *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. A nil reg uses the default
// registry, which is what /metrics serves.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RegisterCallCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retell_register_call_total",
				Help: "Total number of register-call requests by outcome",
			},
			[]string{"outcome"},
		),
		ProvisionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "retell_provision_duration_seconds",
				Help:    "Duration of create-web-call requests in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		),
		HTTPRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retell_http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status code",
			},
			[]string{"method", "path", "status_code"},
		),
		StateTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retell_call_state_transitions_total",
				Help: "Total number of call controller state transitions",
			},
			[]string{"from", "to"},
		),
	}
}

func (m *Metrics) registerCall(outcome string) {
	if m == nil {
		return
	}
	m.RegisterCallCounter.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeProvision(seconds float64) {
	if m == nil {
		return
	}
	m.ProvisionDuration.Observe(seconds)
}

func (m *Metrics) transition(from, to CallStatus) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(string(from), string(to)).Inc()
}
