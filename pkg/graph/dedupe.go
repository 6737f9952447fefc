package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/lexlink/pkg/common"
	"github.com/OFFIS-RIT/lexlink/pkg/country"
	"github.com/OFFIS-RIT/lexlink/pkg/leaselock"
	"github.com/OFFIS-RIT/lexlink/pkg/logger"
	"github.com/OFFIS-RIT/lexlink/pkg/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Reconciler collapses records of one country that share a canonical law
// identifier. Each group is handled in its own transaction; a failing group
// is logged and skipped.
type Reconciler struct {
	store      store.LegislationStorage
	profiles   *country.Registry
	locker     leaselock.Locker
	leaseOpts  leaselock.Options
	recorder   Recorder
	aggregator Aggregator
}

type groupStats struct {
	deleted    int
	repointed  int
	moved      int
	collapsed  int
	selfLoops  int
	recomputed int
}

// Reconcile merges every duplicate group of c. Running it on an already
// reduced country changes nothing.
func (r *Reconciler) Reconcile(ctx context.Context, c common.Country) (ReconcileReport, error) {
	started := time.Now()
	runID, err := gonanoid.New()
	if err != nil {
		return ReconcileReport{}, err
	}
	report := ReconcileReport{RunID: runID, Country: c}

	profile, err := r.profiles.Get(c)
	if err != nil {
		return report, err
	}

	err = leaselock.WithCountry(ctx, r.locker, c, r.leaseOpts, func(ctx context.Context) error {
		return r.reconcile(ctx, profile, &report)
	})
	report.Duration = time.Since(started)
	if err != nil {
		return report, fmt.Errorf("reconcile %s: %w", c, err)
	}

	logger.Info("[Reconcile] Finished", report.keyvals()...)
	r.recorder.ReconcileFinished(report)
	return report, nil
}

func (r *Reconciler) reconcile(ctx context.Context, profile country.Profile, report *ReconcileReport) error {
	var groups []string
	err := r.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		groups, err = tx.FindDuplicateGroups(ctx, profile.Country)
		return err
	})
	if err != nil {
		return fmt.Errorf("find duplicate groups: %w", err)
	}
	report.Groups = len(groups)
	logger.Debug("[Reconcile] Duplicate groups found", "country", profile.Country, "groups", len(groups))

	for _, canonicalID := range groups {
		if ctx.Err() != nil {
			if errors.Is(context.Cause(ctx), leaselock.ErrLost) {
				logger.Error("[Reconcile] Lease lost, abandoning remaining groups",
					"country", profile.Country, "canonical_id", canonicalID, "merged", report.Merged)
				return leaselock.ErrLost
			}
			report.Stopped = true
			logger.Info("[Reconcile] Stopping before next group", "country", profile.Country, "canonical_id", canonicalID)
			return nil
		}

		var stats groupStats
		err := r.store.InTx(context.WithoutCancel(ctx), func(ctx context.Context, tx store.Tx) error {
			stats = groupStats{}
			return r.reconcileGroup(ctx, tx, profile, canonicalID, &stats)
		})
		if err != nil {
			report.Skipped++
			logger.Error("[Reconcile] Skipping group",
				"country", profile.Country, "canonical_id", canonicalID, "err", err)
			continue
		}
		if stats.deleted > 0 {
			report.add(stats)
		}
	}
	return nil
}

func (r *Reconciler) reconcileGroup(
	ctx context.Context,
	tx store.Tx,
	profile country.Profile,
	canonicalID string,
	stats *groupStats,
) error {
	records, err := tx.FindAllByCountryAndCanonicalID(ctx, profile.Country, canonicalID)
	if err != nil {
		return err
	}
	if len(records) < 2 {
		return nil
	}

	keep, discard := profile.Ranking.Pick(records)
	affected := map[int64]struct{}{}
	deleted := map[int64]struct{}{}

	for _, d := range discard {
		owners, err := tx.RetargetEdges(ctx, d.ID, keep.ID)
		if err != nil {
			return fmt.Errorf("repoint edges of record %d: %w", d.ID, err)
		}
		stats.repointed += len(owners)
		for _, id := range owners {
			affected[id] = struct{}{}
		}

		owned, err := tx.EdgesByRecord(ctx, d.ID)
		if err != nil {
			return err
		}
		moved := make([]common.Edge, 0, len(owned))
		for _, e := range owned {
			if err := tx.DeleteEdge(ctx, e.Key()); err != nil {
				return fmt.Errorf("delete edge of record %d: %w", d.ID, err)
			}
			if e.TargetID != nil && *e.TargetID == keep.ID {
				stats.selfLoops++
				continue
			}
			e.ID = 0
			e.RecordID = keep.ID
			e.SourceLawID = keep.Canonical()
			if e.TargetID != nil {
				affected[*e.TargetID] = struct{}{}
			}
			moved = append(moved, e)
		}
		inserted, err := tx.SaveEdges(ctx, moved)
		if err != nil {
			return fmt.Errorf("move edges of record %d: %w", d.ID, err)
		}
		stats.moved += inserted
		stats.collapsed += len(moved) - inserted

		if err := tx.DeleteRecord(ctx, d.ID); err != nil {
			return fmt.Errorf("delete record %d: %w", d.ID, err)
		}
		deleted[d.ID] = struct{}{}
		stats.deleted++
		logger.Info("[Reconcile] Merged duplicate",
			"country", profile.Country, "canonical_id", canonicalID, "kept", keep.ID, "deleted", d.ID)
	}

	// Edges of the kept record that pointed at a discarded duplicate now
	// point at the kept record itself.
	own, err := tx.EdgesByRecord(ctx, keep.ID)
	if err != nil {
		return err
	}
	for _, e := range own {
		if e.TargetID != nil && *e.TargetID == keep.ID {
			if err := tx.DeleteEdge(ctx, e.Key()); err != nil {
				return err
			}
			stats.selfLoops++
		}
	}

	affected[keep.ID] = struct{}{}
	for id := range affected {
		if _, gone := deleted[id]; gone {
			continue
		}
		rec, err := tx.GetRecord(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if _, err := r.aggregator.Recompute(ctx, tx, rec); err != nil {
			return err
		}
		stats.recomputed++
	}
	return nil
}
