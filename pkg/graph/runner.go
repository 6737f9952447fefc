package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OFFIS-RIT/lexlink/internal/util"
	"github.com/OFFIS-RIT/lexlink/pkg/common"
	"github.com/OFFIS-RIT/lexlink/pkg/country"
	"github.com/OFFIS-RIT/lexlink/pkg/extract"
	"github.com/OFFIS-RIT/lexlink/pkg/leaselock"
	"github.com/OFFIS-RIT/lexlink/pkg/logger"
	"github.com/OFFIS-RIT/lexlink/pkg/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"
)

// Runner drives edge resolution and metric aggregation over every eligible
// record of a country. Records are read in id order, one page per
// transaction; pages are handed to a bounded pool of workers.
type Runner struct {
	store     store.LegislationStorage
	profiles  *country.Registry
	loader    extract.MaterialLoader
	locker    leaselock.Locker
	leaseOpts leaselock.Options

	pageSize     int
	workers      int
	pageRetries  int
	retryBackoff time.Duration

	recorder   Recorder
	aggregator Aggregator
}

type pageStats struct {
	records     int
	skipped     int
	mentions    int
	unparseable int
	selfRefs    int
	saved       int
	inserted    int
	dangling    int
	bound       int
	aggregated  int
	failed      bool
}

type pageFunc func(ctx context.Context, profile country.Profile, records []common.Record) pageStats

// Run resolves the mentions of every eligible record, then recomputes the
// metrics of every record with a canonical id. Canceling ctx stops the run
// after the pages already in flight have committed.
func (r *Runner) Run(ctx context.Context, c common.Country) (RunReport, error) {
	started := time.Now()
	runID, err := gonanoid.New()
	if err != nil {
		return RunReport{}, err
	}
	report := RunReport{RunID: runID, Country: c}

	profile, err := r.profiles.Get(c)
	if err != nil {
		return report, err
	}

	err = leaselock.WithCountry(ctx, r.locker, c, r.leaseOpts, func(ctx context.Context) error {
		logger.Info("[Runner] Starting", "run_id", runID, "country", c, "page_size", r.pageSize, "workers", r.workers)
		if err := r.sweep(ctx, "resolve", profile, profile.RequirePassed, r.resolvePage, &report); err != nil {
			return fmt.Errorf("resolve: %w", err)
		}
		if report.Stopped {
			return nil
		}
		// Targets that are not themselves eligible still receive counts.
		if err := r.sweep(ctx, "aggregate", profile, false, r.aggregatePage, &report); err != nil {
			return fmt.Errorf("aggregate: %w", err)
		}
		return nil
	})
	report.Duration = time.Since(started)
	if err != nil {
		return report, fmt.Errorf("run %s: %w", c, err)
	}

	logger.Info("[Runner] Finished", report.keyvals()...)
	r.recorder.RunFinished(report)
	return report, nil
}

// sweep pages through the records of profile's country and hands each page
// to work. Pages are fetched sequentially so boundaries stay stable; work
// runs on up to r.workers goroutines. If the lease is lost, pages already
// handed out still commit and nothing past the last handed out id is touched.
func (r *Runner) sweep(
	ctx context.Context,
	phase string,
	profile country.Profile,
	requirePassed bool,
	work pageFunc,
	report *RunReport,
) error {
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(r.workers)

	page := store.Page{Limit: r.pageSize}
	for {
		if ctx.Err() != nil {
			if errors.Is(context.Cause(ctx), leaselock.ErrLost) {
				logger.Error("[Runner] Lease lost, waiting for pages in flight",
					"phase", phase, "country", profile.Country, "after_id", page.AfterID)
				_ = g.Wait()
				return leaselock.ErrLost
			}
			mu.Lock()
			report.Stopped = true
			mu.Unlock()
			logger.Info("[Runner] Stopping before next page", "country", profile.Country, "after_id", page.AfterID)
			break
		}

		records, err := r.fetch(ctx, profile.Country, requirePassed, page)
		if err != nil && ctx.Err() != nil {
			continue
		}
		if err != nil {
			_ = g.Wait()
			return fmt.Errorf("fetch page after id %d: %w", page.AfterID, err)
		}
		if len(records) == 0 {
			break
		}

		// In-flight pages always run to completion.
		workCtx := context.WithoutCancel(ctx)
		g.Go(func() error {
			stats := work(workCtx, profile, records)
			mu.Lock()
			report.add(stats)
			mu.Unlock()
			if errors.Is(context.Cause(ctx), leaselock.ErrLost) {
				logger.Warn("[Runner] Page committed after lease loss",
					"phase", phase, "country", profile.Country,
					"first_id", records[0].ID, "last_id", records[len(records)-1].ID, "failed", stats.failed)
			}
			return nil
		})

		next, more := page.Next(records)
		if !more {
			break
		}
		page = next
	}
	return g.Wait()
}

func (r *Runner) fetch(ctx context.Context, c common.Country, requirePassed bool, page store.Page) ([]common.Record, error) {
	return util.RetryWithContext(ctx, r.pageRetries, r.retryBackoff, func(ctx context.Context) ([]common.Record, error) {
		var records []common.Record
		err := r.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			var err error
			records, err = tx.FindAllEligible(ctx, c, requirePassed, page)
			return err
		})
		return records, err
	})
}

// resolvePage extracts mentions outside the transaction, then resolves and
// saves the edges of every record in one transaction. A failing record is
// rolled back to its savepoint and skipped; a failing page is retried as a
// whole and given up after r.pageRetries attempts.
func (r *Runner) resolvePage(ctx context.Context, profile country.Profile, records []common.Record) pageStats {
	mentions := make([][]common.Mention, len(records))
	usable := make([]bool, len(records))
	extractSkipped := 0
	for i, rec := range records {
		ms, err := extract.Mentions(ctx, r.loader, profile.Extractor, rec)
		switch {
		case errors.Is(err, extract.ErrNoMaterial):
			logger.Warn("[Runner] No source material",
				"country", rec.Country, "record_id", rec.ID, "identifier", rec.IdentifierText, "source_key", rec.SourceKey)
			usable[i] = true
		case err != nil:
			extractSkipped++
			logger.Error("[Runner] Skipping record",
				"country", rec.Country, "record_id", rec.ID, "identifier", rec.IdentifierText, "err", err)
		default:
			mentions[i] = ms
			usable[i] = true
		}
	}

	resolver := NewResolver(profile)
	var stats pageStats
	err := util.RetryErrWithContext(ctx, r.pageRetries, r.retryBackoff, func(ctx context.Context) error {
		stats = pageStats{records: len(records), skipped: extractSkipped}
		return r.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			lk := newLookup(profile.Country)
			for i, rec := range records {
				if !usable[i] {
					continue
				}
				var rs pageStats
				err := tx.Nested(ctx, func(ctx context.Context, tx store.Tx) error {
					rs = pageStats{}
					res, err := resolver.resolve(ctx, tx, lk, rec, mentions[i])
					if err != nil {
						return err
					}
					inserted, err := tx.SaveEdges(ctx, res.Edges)
					if err != nil {
						return fmt.Errorf("save edges: %w", err)
					}
					owners, err := resolver.bindDangling(ctx, tx, lk, rec)
					if err != nil {
						return fmt.Errorf("bind dangling: %w", err)
					}
					rs.mentions = len(mentions[i])
					rs.unparseable = res.Unparseable + res.InvalidRoles
					rs.selfRefs = res.SelfReferences
					rs.saved = len(res.Edges)
					rs.inserted = inserted
					rs.dangling = res.Dangling
					rs.bound = len(owners)
					return nil
				})
				if err != nil {
					stats.skipped++
					logger.Error("[Runner] Skipping record",
						"country", rec.Country, "record_id", rec.ID, "identifier", rec.IdentifierText, "err", err)
					continue
				}
				stats.mentions += rs.mentions
				stats.unparseable += rs.unparseable
				stats.selfRefs += rs.selfRefs
				stats.saved += rs.saved
				stats.inserted += rs.inserted
				stats.dangling += rs.dangling
				stats.bound += rs.bound
			}
			return nil
		})
	})
	if err != nil {
		logPageFailure("resolve", profile.Country, records, err)
		return pageStats{records: len(records), failed: true}
	}
	logger.Debug("[Runner] Resolved page",
		"country", profile.Country, "first_id", records[0].ID, "last_id", records[len(records)-1].ID,
		"edges", stats.saved, "dangling", stats.dangling)
	return stats
}

// aggregatePage recomputes the metrics of every record in the page.
func (r *Runner) aggregatePage(ctx context.Context, profile country.Profile, records []common.Record) pageStats {
	var stats pageStats
	err := util.RetryErrWithContext(ctx, r.pageRetries, r.retryBackoff, func(ctx context.Context) error {
		stats = pageStats{}
		return r.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			for _, rec := range records {
				err := tx.Nested(ctx, func(ctx context.Context, tx store.Tx) error {
					_, err := r.aggregator.Recompute(ctx, tx, rec)
					return err
				})
				if err != nil {
					stats.skipped++
					logger.Error("[Runner] Skipping aggregation",
						"country", rec.Country, "record_id", rec.ID, "identifier", rec.IdentifierText, "err", err)
					continue
				}
				stats.aggregated++
			}
			return nil
		})
	})
	if err != nil {
		logPageFailure("aggregate", profile.Country, records, err)
		return pageStats{failed: true}
	}
	return stats
}

func logPageFailure(phase string, c common.Country, records []common.Record, err error) {
	first, last := records[0].ID, records[len(records)-1].ID
	logger.Error("[Runner] Giving up page",
		"phase", phase, "country", c, "first_id", first, "last_id", last,
		"records", len(records), "err", err)
}
