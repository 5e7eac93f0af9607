package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers outbound provider calls and inbound webhooks.
type Metrics struct {
	ProviderRequests *prometheus.HistogramVec
	CircuitOpen      prometheus.Gauge
	CacheHits        *prometheus.CounterVec
	WebhookEvents    *prometheus.CounterVec
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProviderRequests: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "memberships_pretix_request_duration_seconds",
			Help:    "Duration of ticketing provider requests by operation and outcome",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		CircuitOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "memberships_pretix_circuit_open",
			Help: "1 while the ticketing provider circuit breaker is open",
		}),
		CacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "memberships_pretix_cache_lookups_total",
			Help: "Provider lookup cache results by result (hit, miss)",
		}, []string{"result"}),
		WebhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "memberships_pretix_webhook_events_total",
			Help: "Provider webhook notifications by action and outcome",
		}, []string{"action", "outcome"}),
	}
}

// ObserveRequest records a provider call; outcome is "ok" or an error category.
func (m *Metrics) ObserveRequest(operation, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}

func (m *Metrics) SetCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitOpen.Set(1)
		return
	}
	m.CircuitOpen.Set(0)
}

func (m *Metrics) IncrementCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.WithLabelValues("hit").Inc()
		return
	}
	m.CacheHits.WithLabelValues("miss").Inc()
}

func (m *Metrics) IncrementWebhook(action, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(action, outcome).Inc()
}
