package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides observability for session establishment.
// Tracks gate decisions, classified failures and authority round trips.
// A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	GateDecisions       *prometheus.CounterVec
	AuthErrors          *prometheus.CounterVec
	SessionsEstablished *prometheus.CounterVec
	SessionsPurged      prometheus.Counter
	AuthorityDuration   *prometheus.HistogramVec
}

// New creates a new Metrics instance registered on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		GateDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ops_portal_gate_decisions_total",
			Help: "Auth gate decisions by resulting state",
		}, []string{"state"}),
		AuthErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ops_portal_auth_errors_total",
			Help: "Classified authentication failures by kind",
		}, []string{"kind"}),
		SessionsEstablished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ops_portal_sessions_established_total",
			Help: "Sessions established from a redirect or a login, by credential kind",
		}, []string{"kind"}),
		SessionsPurged: factory.NewCounter(prometheus.CounterOpts{
			Name: "ops_portal_sessions_purged_total",
			Help: "Stale sessions cleared during rehydration",
		}),
		AuthorityDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ops_portal_authority_call_duration_seconds",
			Help:    "Duration of identity authority round trips",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op", "outcome"}),
	}
}

// IncrementGateDecision records the state one rerun resolved to.
func (m *Metrics) IncrementGateDecision(state string) {
	if m == nil {
		return
	}
	m.GateDecisions.WithLabelValues(state).Inc()
}

// IncrementAuthError records a classified failure.
func (m *Metrics) IncrementAuthError(kind string) {
	if m == nil {
		return
	}
	m.AuthErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementSessionEstablished(kind string) {
	if m == nil {
		return
	}
	m.SessionsEstablished.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementSessionPurged() {
	if m == nil {
		return
	}
	m.SessionsPurged.Inc()
}

// ObserveAuthorityCall records one authority round trip.
func (m *Metrics) ObserveAuthorityCall(op string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.AuthorityDuration.WithLabelValues(op, outcome).Observe(elapsed.Seconds())
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
