package graph

import (
	"time"

	"github.com/OFFIS-RIT/lexlink/pkg/common"
)

// RunReport summarizes one resolution and aggregation run of a country.
type RunReport struct {
	RunID   string
	Country common.Country

	Pages          int
	Records        int
	SkippedRecords int
	Mentions       int
	Unparseable    int
	SelfReferences int
	EdgesSaved     int
	EdgesInserted  int
	Dangling       int
	Bound          int
	Aggregated     int
	FailedPages    int
	// Stopped is set when the context was canceled and the run ended at a
	// page boundary.
	Stopped  bool
	Duration time.Duration
}

func (r *RunReport) add(p pageStats) {
	r.Pages++
	r.Records += p.records
	r.SkippedRecords += p.skipped
	r.Mentions += p.mentions
	r.Unparseable += p.unparseable
	r.SelfReferences += p.selfRefs
	r.EdgesSaved += p.saved
	r.EdgesInserted += p.inserted
	r.Dangling += p.dangling
	r.Bound += p.bound
	r.Aggregated += p.aggregated
	if p.failed {
		r.FailedPages++
	}
}

// keyvals renders the report for the logger.
func (r RunReport) keyvals() []any {
	return []any{
		"run_id", r.RunID, "country", r.Country, "pages", r.Pages, "records", r.Records,
		"skipped", r.SkippedRecords, "mentions", r.Mentions, "unparseable", r.Unparseable,
		"self_references", r.SelfReferences, "edges_saved", r.EdgesSaved, "edges_inserted", r.EdgesInserted,
		"dangling", r.Dangling, "bound", r.Bound, "aggregated", r.Aggregated,
		"failed_pages", r.FailedPages, "stopped", r.Stopped, "duration", r.Duration,
	}
}

// ReconcileReport summarizes one reconciliation pass of a country.
type ReconcileReport struct {
	RunID   string
	Country common.Country

	Groups         int
	Merged         int
	Skipped        int
	RecordsDeleted int
	EdgesRepointed int
	EdgesMoved     int
	EdgesCollapsed int
	SelfLoops      int
	Recomputed     int
	Stopped        bool
	Duration       time.Duration
}

func (r *ReconcileReport) add(g groupStats) {
	r.Merged++
	r.RecordsDeleted += g.deleted
	r.EdgesRepointed += g.repointed
	r.EdgesMoved += g.moved
	r.EdgesCollapsed += g.collapsed
	r.SelfLoops += g.selfLoops
	r.Recomputed += g.recomputed
}

func (r ReconcileReport) keyvals() []any {
	return []any{
		"run_id", r.RunID, "country", r.Country, "groups", r.Groups, "merged", r.Merged,
		"skipped", r.Skipped, "records_deleted", r.RecordsDeleted, "edges_repointed", r.EdgesRepointed,
		"edges_moved", r.EdgesMoved, "edges_collapsed", r.EdgesCollapsed, "self_loops", r.SelfLoops,
		"recomputed", r.Recomputed, "stopped", r.Stopped, "duration", r.Duration,
	}
}

// Recorder receives finished reports, e.g. to export them as metrics.
type Recorder interface {
	RunFinished(RunReport)
	ReconcileFinished(ReconcileReport)
}

type nopRecorder struct{}

func (nopRecorder) RunFinished(RunReport)             {}
func (nopRecorder) ReconcileFinished(ReconcileReport) {}
