package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Runs         *prometheus.CounterVec
	Allocations  prometheus.Counter
	Halts        prometheus.Counter
	ChildSkips   prometheus.Counter
	StepDuration prometheus.Histogram
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "memberships_draw_runs_total",
			Help: "Draw runs by outcome (exhausted, halted, skipped, locked, cancelled)",
		}, []string{"outcome"}),
		Allocations: f.NewCounter(prometheus.CounterOpts{
			Name: "memberships_draw_allocations_total",
			Help: "Accounts that received a voucher pair",
		}),
		Halts: f.NewCounter(prometheus.CounterOpts{
			Name: "memberships_draw_halts_total",
			Help: "Draw runs stopped by an allocation failure",
		}),
		ChildSkips: f.NewCounter(prometheus.CounterOpts{
			Name: "memberships_draw_child_skips_total",
			Help: "Draw candidates skipped as children",
		}),
		StepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "memberships_draw_step_duration_seconds",
			Help:    "Duration of one draw step including the provider call",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncrementRun(outcome string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementAllocation() {
	if m == nil {
		return
	}
	m.Allocations.Inc()
}

func (m *Metrics) IncrementHalt() {
	if m == nil {
		return
	}
	m.Halts.Inc()
}

func (m *Metrics) IncrementChildSkip() {
	if m == nil {
		return
	}
	m.ChildSkips.Inc()
}

func (m *Metrics) ObserveStep(start time.Time) {
	if m == nil {
		return
	}
	m.StepDuration.Observe(time.Since(start).Seconds())
}
