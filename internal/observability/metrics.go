package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Revocation outcomes.
const (
	RevocationStored  = "stored"
	RevocationFailed  = "failed"
	RevocationSkipped = "skipped"
)

// Dependencies whose faults are counted.
const (
	DependencyLedger          = "ledger"
	DependencyIdentityExists  = "identity_exists"
	DependencyIdentityEnabled = "identity_enabled"
)

// Metrics holds the prometheus collectors of the gateway. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests           *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	errors             *prometheus.CounterVec
	decisions          *prometheus.CounterVec
	revocations        *prometheus.CounterVec
	dependencyFailures *prometheus.CounterVec
	reclaimed          prometheus.Counter
}

// NewMetrics registers all collectors on a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"path", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of HTTP error responses by error code",
		}, []string{"path", "method", "code"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "token_validation_total",
			Help: "Token validation decisions by reason",
		}, []string{"reason"}),
		revocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "token_revocations_total",
			Help: "Token revocation attempts by outcome",
		}, []string{"result"}),
		dependencyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dependency_failures_total",
			Help: "Faults reaching the revocation ledger or the identity authority",
		}, []string{"dependency"}),
		reclaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "revocation_entries_reclaimed_total",
			Help: "Expired revocation entries purged by the reclaimer",
		}),
	}
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordDecision counts a validation decision.
func (m *Metrics) RecordDecision(reason string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(reason).Inc()
}

// RecordRevocation counts a revocation outcome.
func (m *Metrics) RecordRevocation(result string) {
	if m == nil {
		return
	}
	m.revocations.WithLabelValues(result).Inc()
}

// RecordDependencyFailure counts a fault reaching an external dependency.
func (m *Metrics) RecordDependencyFailure(dependency string) {
	if m == nil {
		return
	}
	m.dependencyFailures.WithLabelValues(dependency).Inc()
}

// RecordReclaimed counts purged ledger entries.
func (m *Metrics) RecordReclaimed(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.reclaimed.Add(float64(n))
}
