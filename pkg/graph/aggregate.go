package graph

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/OFFIS-RIT/lexlink/pkg/common"
	"github.com/OFFIS-RIT/lexlink/pkg/store"
)

// ComputeMetrics projects the current edge set onto a record. owned are the
// edges the record holds, targeting the edges other records hold that are
// resolved to it.
//
// "X modifies R" is either R's own MODIFIED_BY edge to X or X's MODIFIES edge
// to R; the mirror image gives "R modifies X". Only resolved edges count.
// Edges with a malformed date are left out of the incoming side entirely,
// edges without a date count but do not move the first date.
func ComputeMetrics(recordID int64, owned, targeting []common.Edge) common.Metrics {
	affecting := map[string]struct{}{}
	modified := map[string]struct{}{}
	var first *time.Time

	incoming := func(lawID string, e common.Edge) {
		if lawID == "" || e.DateState == common.DateMalformed {
			return
		}
		affecting[lawID] = struct{}{}
		if e.AffectingDate != nil && (first == nil || e.AffectingDate.Before(*first)) {
			d := *e.AffectingDate
			first = &d
		}
	}
	outgoing := func(lawID string) {
		if lawID != "" {
			modified[lawID] = struct{}{}
		}
	}

	for _, e := range owned {
		if e.RecordID != recordID || e.Dangling() || *e.TargetID == recordID {
			continue
		}
		switch e.Role {
		case common.ModifiedBy:
			incoming(e.TargetLawID, e)
		case common.Modifies:
			outgoing(e.TargetLawID)
		}
	}
	for _, e := range targeting {
		if e.RecordID == recordID || e.Dangling() || *e.TargetID != recordID {
			continue
		}
		switch e.Role {
		case common.Modifies:
			incoming(e.SourceLawID, e)
		case common.ModifiedBy:
			outgoing(e.SourceLawID)
		}
	}

	laws := make([]string, 0, len(modified))
	for id := range modified {
		laws = append(laws, id)
	}
	slices.Sort(laws)

	affectingCount := len(affecting)
	modifiedCount := len(laws)
	return common.Metrics{
		AffectingLawsCount:     &affectingCount,
		ModifiedLawsCount:      &modifiedCount,
		ModifiedLaws:           laws,
		AffectingLawsFirstDate: first,
	}
}

// Aggregator recomputes and stores record metrics.
type Aggregator struct{}

// Recompute reads the edges around record, derives its metrics and saves
// them. Counts are always written, zero included.
func (Aggregator) Recompute(ctx context.Context, tx store.Tx, record common.Record) (common.Metrics, error) {
	owned, err := tx.EdgesByRecord(ctx, record.ID)
	if err != nil {
		return common.Metrics{}, fmt.Errorf("recompute record %d: %w", record.ID, err)
	}
	targeting, err := tx.EdgesByTarget(ctx, record.ID)
	if err != nil {
		return common.Metrics{}, fmt.Errorf("recompute record %d: %w", record.ID, err)
	}
	m := ComputeMetrics(record.ID, owned, targeting)
	if err := tx.SaveMetrics(ctx, record.ID, m); err != nil {
		return common.Metrics{}, fmt.Errorf("recompute record %d: %w", record.ID, err)
	}
	return m, nil
}
