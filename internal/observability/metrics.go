// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Feature builder metrics
	FeatureRowsBuilt *prometheus.CounterVec
	ORBOutcomes      *prometheus.CounterVec
	DataGaps         *prometheus.CounterVec
	BuildDuration    prometheus.Histogram
	StoreBusy        prometheus.Counter

	// Sync guard metrics
	SyncGuardRuns       *prometheus.CounterVec
	SyncGuardMismatches prometheus.Gauge

	// Strategy engine metrics
	Evaluations        *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	ActionableSignals  prometheus.Gauge

	// Research and promotion metrics
	CandidatesTested   prometheus.Counter
	PromotionDecisions *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulBuild      prometheus.Gauge
	LastSuccessfulEvaluation prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "orb_lab"
	}
	f := promauto.With(reg)

	return &Metrics{
		FeatureRowsBuilt: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "features",
			Name:      "rows_built_total",
			Help:      "Total number of feature rows built by instrument",
		}, []string{"instrument"}),
		ORBOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "features",
			Name:      "orb_outcomes_total",
			Help:      "Graded ORB outcomes by window and outcome",
		}, []string{"orb", "outcome"}),
		DataGaps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "features",
			Name:      "data_gaps_total",
			Help:      "ORB windows without bars by window",
		}, []string{"orb"}),
		BuildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "features",
			Name:      "build_duration_seconds",
			Help:      "Feature build duration for one date range in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
		StoreBusy: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "features",
			Name:      "store_busy_total",
			Help:      "Builds refused because another writer held the lock",
		}),

		SyncGuardRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "syncguard",
			Name:      "runs_total",
			Help:      "Sync guard runs by result",
		}, []string{"result"}),
		SyncGuardMismatches: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "syncguard",
			Name:      "mismatches",
			Help:      "Mismatches found by the last sync guard run",
		}),

		Evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "evaluations_total",
			Help:      "Strategy evaluations by state",
		}, []string{"state"}),
		EvaluationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "evaluation_duration_seconds",
			Help:      "Duration of one evaluation cycle in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		ActionableSignals: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "actionable_signals",
			Help:      "Actionable strategies in the last evaluation cycle",
		}),

		CandidatesTested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "research",
			Name:      "candidates_tested_total",
			Help:      "Edge candidates moved to TESTED",
		}),
		PromotionDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "promotion",
			Name:      "decisions_total",
			Help:      "Promotion decisions by status",
		}, []string{"status"}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastSuccessfulBuild: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_build_timestamp",
			Help:      "Unix timestamp of last successful feature build",
		}),
		LastSuccessfulEvaluation: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_evaluation_timestamp",
			Help:      "Unix timestamp of last successful evaluation cycle",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance registered with the default registry.
var DefaultMetrics = NewMetrics("", prometheus.DefaultRegisterer)

// RecordORBOutcome counts one graded window.
func RecordORBOutcome(orb, outcome string, dataGap bool) {
	DefaultMetrics.ORBOutcomes.WithLabelValues(orb, outcome).Inc()
	if dataGap {
		DefaultMetrics.DataGaps.WithLabelValues(orb).Inc()
	}
}

// RecordBuild records a completed feature build.
func RecordBuild(instrument string, rows int, seconds float64, finishedUnix int64) {
	DefaultMetrics.FeatureRowsBuilt.WithLabelValues(instrument).Add(float64(rows))
	DefaultMetrics.BuildDuration.Observe(seconds)
	DefaultMetrics.LastSuccessfulBuild.Set(float64(finishedUnix))
}

// RecordStoreBusy counts a build refused by the writer lock.
func RecordStoreBusy() {
	DefaultMetrics.StoreBusy.Inc()
}

// RecordSyncGuard records a sync guard result.
func RecordSyncGuard(ok bool, mismatches int) {
	result := "pass"
	if !ok {
		result = "fail"
	}
	DefaultMetrics.SyncGuardRuns.WithLabelValues(result).Inc()
	DefaultMetrics.SyncGuardMismatches.Set(float64(mismatches))
}

// RecordEvaluation records one evaluated strategy state.
func RecordEvaluation(state string) {
	DefaultMetrics.Evaluations.WithLabelValues(state).Inc()
}

// RecordEvaluationCycle records the duration and actionable count of one cycle.
func RecordEvaluationCycle(seconds float64, actionable int, finishedUnix int64) {
	DefaultMetrics.EvaluationDuration.Observe(seconds)
	DefaultMetrics.ActionableSignals.Set(float64(actionable))
	DefaultMetrics.LastSuccessfulEvaluation.Set(float64(finishedUnix))
}

// RecordCandidateTested counts a candidate moved to TESTED.
func RecordCandidateTested() {
	DefaultMetrics.CandidatesTested.Inc()
}

// RecordPromotion counts a promotion decision.
func RecordPromotion(status string) {
	DefaultMetrics.PromotionDecisions.WithLabelValues(status).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// ObserveDBQuery records a query that began at start. Defer it with a pointer to
// the caller's named error result.
func ObserveDBQuery(database, operation string, start time.Time, err *error) {
	var e error
	if err != nil {
		e = *err
	}
	RecordDBQuery(database, operation, time.Since(start).Seconds(), e)
}
