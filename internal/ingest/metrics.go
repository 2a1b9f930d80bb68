package ingest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Wuchinator/watchtime/internal/telemetry"
)

// Sync outcomes, used as the outcome label.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

type Metrics struct {
	// requestsTotal counts sync calls by outcome.
	requestsTotal *prometheus.CounterVec
	// itemsTotal counts processed items per entity type.
	itemsTotal *prometheus.CounterVec
	// softErrorsTotal counts per-item errors returned to clients.
	softErrorsTotal prometheus.Counter
	duration        prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "watchtime",
			Subsystem: "sync",
			Name:      "requests_total",
			Help:      "Total number of sync requests by outcome.",
		}, []string{"outcome"}),
		itemsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "watchtime",
			Subsystem: "sync",
			Name:      "items_total",
			Help:      "Total number of items processed per entity type.",
		}, []string{"entity"}),
		softErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "watchtime",
			Subsystem: "sync",
			Name:      "soft_errors_total",
			Help:      "Total number of per-item errors that did not abort a sync.",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "watchtime",
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Time spent reconciling one sync batch.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observe(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) observeResult(r *Result) {
	if m == nil {
		return
	}
	for entity, n := range r.SyncedCounts {
		if n > 0 {
			m.itemsTotal.WithLabelValues(entity.String()).Add(float64(n))
		}
	}
	m.softErrorsTotal.Add(float64(len(r.Errors)))
}

// Items returns the processed item counter for entity. Used by tests.
func (m *Metrics) Items(entity telemetry.EntityType) prometheus.Counter {
	return m.itemsTotal.WithLabelValues(entity.String())
}

// Requests returns the request counter for outcome. Used by tests.
func (m *Metrics) Requests(outcome string) prometheus.Counter {
	return m.requestsTotal.WithLabelValues(outcome)
}
