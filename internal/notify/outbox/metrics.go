package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"memberships/internal/notify"
)

type Metrics struct {
	Published *prometheus.CounterVec
	Backlog   prometheus.Gauge
}

func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewMetricsWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "memberships_outbox_published_total",
			Help: "Notifications relayed from the outbox by kind and outcome",
		}, []string{"kind", "outcome"}),
		Backlog: f.NewGauge(prometheus.GaugeOpts{
			Name: "memberships_outbox_backlog",
			Help: "Unpublished notifications seen by the last relay batch",
		}),
	}
}

func (m *Metrics) ObservePublish(kind notify.Kind, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Published.WithLabelValues(string(kind), outcome).Inc()
}

func (m *Metrics) SetBacklog(n int) {
	if m == nil {
		return
	}
	m.Backlog.Set(float64(n))
}
