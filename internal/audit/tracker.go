// Package audit makes every non-fatal skip and every resolution outcome
// observable: counted in Prometheus, logged, and summarised per run.
package audit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/kohde-resolver/internal/model"
)

// Reason labels a skipped record.
type Reason string

const (
	ReasonUnknownUsageCode    Reason = "unknown_usage_code"
	ReasonImplausibleCluster  Reason = "implausible_cluster"
	ReasonConflictingFacility Reason = "conflicting_facility"
	ReasonUnresolvedCustomer  Reason = "unresolved_customer"
	ReasonNoCandidates        Reason = "no_candidates"
)

// Metrics are the engine's Prometheus collectors.
type Metrics struct {
	Skipped         *prometheus.CounterVec
	Outcomes        *prometheus.CounterVec
	Migrated        prometheus.Counter
	ClusterDuration prometheus.Histogram
}

// NewMetrics registers the collectors with reg. A nil reg uses the default
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Skipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kohde_skipped_total",
			Help: "Records skipped without aborting the run, by reason",
		}, []string{"reason"}),
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kohde_resolutions_total",
			Help: "Resolved clusters by outcome (created, extended, unchanged, closed, bound)",
		}, []string{"outcome"}),
		Migrated: factory.NewCounter(prometheus.CounterOpts{
			Name: "kohde_dependents_migrated_total",
			Help: "Dependent records moved to a successor facility",
		}),
		ClusterDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kohde_cluster_duration_seconds",
			Help:    "Duration of one cluster resolution unit",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// Tracker accumulates the summary of one run. It is not safe for
// concurrent use.
type Tracker struct {
	log     *zap.Logger
	metrics *Metrics
	summary model.RunSummary
}

// NewTracker creates a run tracker. metrics may be nil.
func NewTracker(log *zap.Logger, metrics *Metrics) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{log: log, metrics: metrics, summary: model.RunSummary{Skipped: map[string]int{}}}
}

// Skip records a non-fatal skip.
func (t *Tracker) Skip(reason Reason, err error, fields ...zap.Field) {
	t.summary.Skipped[string(reason)]++
	if t.metrics != nil {
		t.metrics.Skipped.WithLabelValues(string(reason)).Inc()
	}
	fields = append(fields, zap.String("reason", string(reason)), zap.Error(err))
	t.log.Warn("skipped", fields...)
}

// Candidates records how many buildings entered clustering.
func (t *Tracker) Candidates(n int) {
	t.summary.Candidates += n
}

// Resolved records the outcome of one cluster.
func (t *Tracker) Resolved(outcome string, closed, migrated int) {
	t.summary.Clusters++
	switch outcome {
	case "created":
		t.summary.Created++
	case "extended":
		t.summary.Extended++
	case "unchanged":
		t.summary.Unchanged++
	}
	t.summary.Closed += closed
	t.summary.Migrated += migrated
	if t.metrics != nil {
		t.metrics.Outcomes.WithLabelValues(outcome).Inc()
		if closed > 0 {
			t.metrics.Outcomes.WithLabelValues("closed").Add(float64(closed))
		}
		t.metrics.Migrated.Add(float64(migrated))
	}
}

// Bound records a customer record bound to a facility.
func (t *Tracker) Bound() {
	t.summary.Bound++
	if t.metrics != nil {
		t.metrics.Outcomes.WithLabelValues("bound").Inc()
	}
}

// ObserveCluster records the duration of one unit started at start.
func (t *Tracker) ObserveCluster(start time.Time) {
	if t.metrics != nil {
		t.metrics.ClusterDuration.Observe(time.Since(start).Seconds())
	}
}

// Summary returns a copy of the counts so far.
func (t *Tracker) Summary() model.RunSummary {
	s := t.summary
	s.Skipped = make(map[string]int, len(t.summary.Skipped))
	for k, v := range t.summary.Skipped {
		s.Skipped[k] = v
	}
	return s
}

// SkippedTotal returns the number of skips of any reason.
func (t *Tracker) SkippedTotal() int {
	n := 0
	for _, v := range t.summary.Skipped {
		n += v
	}
	return n
}
