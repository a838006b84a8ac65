package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics records
// nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	Joins        *prometheus.CounterVec
	Transitions  *prometheus.CounterVec
	Settlements  *prometheus.CounterVec
	PrizeCredits prometheus.Counter
	ScanDuration prometheus.Histogram
	ScanEvents   *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Joins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "events_join_attempts_total",
			Help: "Join attempts by outcome",
		}, []string{"outcome"}),

		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "events_status_transitions_total",
			Help: "Event status changes applied by the lifecycle scan",
		}, []string{"from", "to"}),

		Settlements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "events_settlements_total",
			Help: "Settlement attempts by outcome",
		}, []string{"outcome"}),

		PrizeCredits: f.NewCounter(prometheus.CounterOpts{
			Name: "events_prize_placements_total",
			Help: "Podium placements awarded",
		}),

		ScanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "events_lifecycle_scan_duration_seconds",
			Help:    "Wall time of one lifecycle scan",
			Buckets: prometheus.DefBuckets,
		}),

		ScanEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "events_lifecycle_scan_events_total",
			Help: "Events examined by the lifecycle scan by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) joinResult(outcome string) {
	if m == nil {
		return
	}
	m.Joins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) transition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) settlement(outcome string, placements int) {
	if m == nil {
		return
	}
	m.Settlements.WithLabelValues(outcome).Inc()
	m.PrizeCredits.Add(float64(placements))
}

func (m *Metrics) scan(d time.Duration, r *ScanReport) {
	if m == nil {
		return
	}
	m.ScanDuration.Observe(d.Seconds())
	m.ScanEvents.WithLabelValues("started").Add(float64(len(r.Started)))
	m.ScanEvents.WithLabelValues("settled").Add(float64(len(r.Settled)))
	m.ScanEvents.WithLabelValues("skipped").Add(float64(len(r.Skipped)))
	m.ScanEvents.WithLabelValues("failed").Add(float64(len(r.Failed)))
}
