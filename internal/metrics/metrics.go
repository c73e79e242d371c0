package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "repscore"

// Metrics holds the Prometheus collectors of the scoring engine. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Recomputes       *prometheus.CounterVec
	RecomputeSeconds *prometheus.HistogramVec
	CacheLookups     *prometheus.CounterVec
	Incremental      *prometheus.CounterVec
	VersionConflicts prometheus.Counter
	SourceFailures   *prometheus.CounterVec
	ExternalFetches  *prometheus.CounterVec
	BatchEntities    *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Recomputes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recomputes_total",
				Help:      "Full activity recomputations",
			},
			[]string{"kind", "result"},
		),
		RecomputeSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "recompute_duration_seconds",
				Help:      "Full recomputation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Activity record reads by outcome",
			},
			[]string{"outcome"}, // hit, stale, absent, forced
		),
		Incremental: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "incremental_updates_total",
				Help:      "Single-activity appends",
			},
			[]string{"category", "result"},
		),
		VersionConflicts: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "version_conflicts_total",
				Help:      "Saves rejected by the optimistic version check",
			},
		),
		SourceFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_failures_total",
				Help:      "Collaborator fetch failures treated as empty",
			},
			[]string{"category"},
		),
		ExternalFetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "external_fetches_total",
				Help:      "External contribution fetches by result",
			},
			[]string{"result"},
		),
		BatchEntities: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_entities_total",
				Help:      "Entities processed by batch runs",
			},
			[]string{"kind", "result"},
		),
	}
}

func (m *Metrics) ObserveRecompute(kind string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.Recomputes.WithLabelValues(kind, result(err)).Inc()
	m.RecomputeSeconds.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) CacheLookup(outcome string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementalUpdate(category string, err error) {
	if m == nil {
		return
	}
	m.Incremental.WithLabelValues(category, result(err)).Inc()
}

func (m *Metrics) VersionConflict() {
	if m == nil {
		return
	}
	m.VersionConflicts.Inc()
}

func (m *Metrics) SourceFailure(category string) {
	if m == nil {
		return
	}
	m.SourceFailures.WithLabelValues(category).Inc()
}

func (m *Metrics) ExternalFetch(res string) {
	if m == nil {
		return
	}
	m.ExternalFetches.WithLabelValues(res).Inc()
}

func (m *Metrics) BatchEntity(kind string, err error) {
	if m == nil {
		return
	}
	m.BatchEntities.WithLabelValues(kind, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
