package store

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/lexlink/pkg/common"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a natural-key collision. Upserts never return it;
	// callers that see it treat the row as already present.
	ErrConflict = errors.New("conflict")
)

// Page selects records with ID > AfterID in ascending id order. Keyset
// pagination keeps page boundaries stable while new records are inserted.
type Page struct {
	AfterID int64
	Limit   int
}

// Next returns the page following records, or false when records was the
// last (short) page.
func (p Page) Next(records []common.Record) (Page, bool) {
	if len(records) == 0 || (p.Limit > 0 && len(records) < p.Limit) {
		return p, false
	}
	return Page{AfterID: records[len(records)-1].ID, Limit: p.Limit}, true
}

// LegislationStorage persists records and their affecting-law edges.
// All reads and writes happen inside InTx; fn's changes are committed when
// it returns nil and rolled back otherwise.
type LegislationStorage interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close()
}

// Tx is the record/edge repository bound to one transaction.
type Tx interface {
	GetRecord(ctx context.Context, id int64) (common.Record, error)
	// FindByCountryAndCanonicalID returns the record with the lowest id for
	// the canonical id, or ErrNotFound.
	FindByCountryAndCanonicalID(ctx context.Context, country common.Country, canonicalID string) (common.Record, error)
	FindAllByCountryAndCanonicalID(ctx context.Context, country common.Country, canonicalID string) ([]common.Record, error)
	// FindAllEligible returns records of country that have a canonical id,
	// and a passed status when requirePassed is set.
	FindAllEligible(ctx context.Context, country common.Country, requirePassed bool, page Page) ([]common.Record, error)
	// FindDuplicateGroups returns the canonical ids held by more than one
	// record of country, sorted.
	FindDuplicateGroups(ctx context.Context, country common.Country) ([]string, error)

	// SaveRecord inserts r when r.ID is zero and assigns its id, otherwise
	// updates every non-derived field.
	SaveRecord(ctx context.Context, r *common.Record) error
	SaveMetrics(ctx context.Context, id int64, m common.Metrics) error
	DeleteRecord(ctx context.Context, id int64) error

	// SaveEdges upserts edges by natural key and reports how many were new.
	// A resolved target on an existing edge is kept when the incoming edge
	// is dangling.
	SaveEdges(ctx context.Context, edges []common.Edge) (int, error)
	EdgesByRecord(ctx context.Context, recordID int64) ([]common.Edge, error)
	EdgesByTarget(ctx context.Context, targetID int64) ([]common.Edge, error)
	DeleteEdge(ctx context.Context, key common.EdgeKey) error
	// RetargetEdges points every edge targeting from at to and returns the
	// distinct owners of the changed edges.
	RetargetEdges(ctx context.Context, from, to int64) ([]int64, error)
	// BindDangling resolves dangling edges of country naming canonicalID to
	// targetID and returns the distinct owners of the changed edges.
	BindDangling(ctx context.Context, country common.Country, canonicalID string, targetID int64) ([]int64, error)

	// Nested runs fn in a savepoint. A failing fn rolls back only its own
	// changes.
	Nested(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
