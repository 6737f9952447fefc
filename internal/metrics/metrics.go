// Package metrics exports run and reconciliation reports to Prometheus.
package metrics

import (
	"github.com/OFFIS-RIT/lexlink/pkg/graph"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements graph.Recorder.
type Metrics struct {
	Runs           *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
	Records        *prometheus.CounterVec
	SkippedRecords *prometheus.CounterVec
	Edges          *prometheus.CounterVec
	Dangling       *prometheus.GaugeVec
	FailedPages    *prometheus.CounterVec
	LastSuccess    *prometheus.GaugeVec

	Reconciles        *prometheus.CounterVec
	GroupsMerged      *prometheus.CounterVec
	GroupsSkipped     *prometheus.CounterVec
	RecordsDeleted    *prometheus.CounterVec
	ReconcileDuration *prometheus.HistogramVec
}

var durationBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600}

// New registers all linkage metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexlink_runs_total",
			Help: "Finished resolution runs by country and outcome",
		}, []string{"country", "outcome"}), // outcome: "completed", "stopped"
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lexlink_run_duration_seconds",
			Help:    "Duration of resolution runs",
			Buckets: durationBuckets,
		}, []string{"country"}),
		Records: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexlink_records_processed_total",
			Help: "Records resolved by runs",
		}, []string{"country"}),
		SkippedRecords: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexlink_records_skipped_total",
			Help: "Records skipped because extraction or resolution failed",
		}, []string{"country"}),
		Edges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexlink_edges_total",
			Help: "Edges written by runs",
		}, []string{"country", "kind"}), // kind: "saved", "inserted", "bound"
		Dangling: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lexlink_dangling_edges",
			Help: "Dangling edges seen by the last run",
		}, []string{"country"}),
		FailedPages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexlink_failed_pages_total",
			Help: "Pages given up after exhausting retries",
		}, []string{"country"}),
		LastSuccess: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lexlink_last_success_timestamp_seconds",
			Help: "Unix time of the last completed pass",
		}, []string{"country", "pass"}), // pass: "run", "reconcile"

		Reconciles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexlink_reconciles_total",
			Help: "Finished reconciliation passes by country and outcome",
		}, []string{"country", "outcome"}),
		GroupsMerged: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexlink_groups_merged_total",
			Help: "Duplicate groups reduced to one record",
		}, []string{"country"}),
		GroupsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexlink_groups_skipped_total",
			Help: "Duplicate groups skipped after an error",
		}, []string{"country"}),
		RecordsDeleted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexlink_records_deleted_total",
			Help: "Duplicate records deleted by reconciliation",
		}, []string{"country"}),
		ReconcileDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lexlink_reconcile_duration_seconds",
			Help:    "Duration of reconciliation passes",
			Buckets: durationBuckets,
		}, []string{"country"}),
	}
}

func outcome(stopped bool) string {
	if stopped {
		return "stopped"
	}
	return "completed"
}

// RunFinished records a finished run.
func (m *Metrics) RunFinished(r graph.RunReport) {
	if m == nil {
		return
	}
	c := string(r.Country)
	m.Runs.WithLabelValues(c, outcome(r.Stopped)).Inc()
	m.RunDuration.WithLabelValues(c).Observe(r.Duration.Seconds())
	m.Records.WithLabelValues(c).Add(float64(r.Records))
	m.SkippedRecords.WithLabelValues(c).Add(float64(r.SkippedRecords))
	m.Edges.WithLabelValues(c, "saved").Add(float64(r.EdgesSaved))
	m.Edges.WithLabelValues(c, "inserted").Add(float64(r.EdgesInserted))
	m.Edges.WithLabelValues(c, "bound").Add(float64(r.Bound))
	m.Dangling.WithLabelValues(c).Set(float64(r.Dangling))
	m.FailedPages.WithLabelValues(c).Add(float64(r.FailedPages))
	if !r.Stopped && r.FailedPages == 0 {
		m.LastSuccess.WithLabelValues(c, "run").SetToCurrentTime()
	}
}

// ReconcileFinished records a finished reconciliation pass.
func (m *Metrics) ReconcileFinished(r graph.ReconcileReport) {
	if m == nil {
		return
	}
	c := string(r.Country)
	m.Reconciles.WithLabelValues(c, outcome(r.Stopped)).Inc()
	m.ReconcileDuration.WithLabelValues(c).Observe(r.Duration.Seconds())
	m.GroupsMerged.WithLabelValues(c).Add(float64(r.Merged))
	m.GroupsSkipped.WithLabelValues(c).Add(float64(r.Skipped))
	m.RecordsDeleted.WithLabelValues(c).Add(float64(r.RecordsDeleted))
	if !r.Stopped && r.Skipped == 0 {
		m.LastSuccess.WithLabelValues(c, "reconcile").SetToCurrentTime()
	}
}

var _ graph.Recorder = (*Metrics)(nil)
