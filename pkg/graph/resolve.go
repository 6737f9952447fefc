package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/lexlink/pkg/common"
	"github.com/OFFIS-RIT/lexlink/pkg/country"
	"github.com/OFFIS-RIT/lexlink/pkg/legaldate"
	"github.com/OFFIS-RIT/lexlink/pkg/logger"
	"github.com/OFFIS-RIT/lexlink/pkg/store"
)

// ResolvedEdges is the outcome of resolving one record's mentions. Edges
// holds resolved and dangling edges alike; the counters say what was
// dropped and why.
type ResolvedEdges struct {
	Edges          []common.Edge
	Dangling       int
	Unparseable    int
	SelfReferences int
	InvalidRoles   int
}

// Resolver turns mentions into edges for one country.
type Resolver struct {
	profile country.Profile
}

func NewResolver(profile country.Profile) *Resolver {
	return &Resolver{profile: profile}
}

// Resolve normalizes and looks up every mention of record. Lookups are not
// cached beyond this call.
func (r *Resolver) Resolve(ctx context.Context, tx store.Tx, record common.Record, mentions []common.Mention) (ResolvedEdges, error) {
	return r.resolve(ctx, tx, newLookup(r.profile.Country), record, mentions)
}

func (r *Resolver) resolve(
	ctx context.Context,
	tx store.Tx,
	lk *lookup,
	record common.Record,
	mentions []common.Mention,
) (ResolvedEdges, error) {
	var out ResolvedEdges
	source := record.Canonical()
	if source == "" {
		return out, fmt.Errorf("record %d has no canonical id", record.ID)
	}

	for _, m := range mentions {
		if !m.Role.Valid() {
			out.InvalidRoles++
			logger.Warn("[Resolve] Unknown mention role",
				"country", record.Country, "record_id", record.ID, "identifier", record.IdentifierText,
				"target", m.TargetIdentifierText, "role", m.Role)
			continue
		}

		target, err := r.profile.Normalize(m.TargetIdentifierText)
		if err != nil {
			out.Unparseable++
			logger.Warn("[Resolve] Unparseable identifier",
				"country", record.Country, "record_id", record.ID, "identifier", record.IdentifierText,
				"target", m.TargetIdentifierText, "err", err)
			continue
		}
		if target == source {
			out.SelfReferences++
			logger.Debug("[Resolve] Dropping self reference",
				"country", record.Country, "record_id", record.ID, "target", target)
			continue
		}

		e := common.Edge{
			RecordID:         record.ID,
			Country:          record.Country,
			SourceLawID:      source,
			Role:             m.Role,
			TargetLawID:      target,
			AffectingArticle: strings.TrimSpace(m.AffectingArticle),
			ModifiedArticle:  strings.TrimSpace(m.ModifiedArticle),
		}
		r.applyDate(&e, record, m.DateText)

		targetID, err := lk.find(ctx, tx, target)
		if err != nil {
			return ResolvedEdges{}, err
		}
		if targetID == 0 {
			out.Dangling++
			logger.Warn("[Resolve] Dangling reference",
				"country", record.Country, "record_id", record.ID, "identifier", record.IdentifierText,
				"target", target, "role", m.Role)
		} else {
			id := targetID
			e.TargetID = &id
		}
		out.Edges = append(out.Edges, e)
	}
	return out, nil
}

// BindDangling resolves dangling edges elsewhere in the country that name
// record's canonical id. They are bound to the lowest record id holding that
// id, the same record a fresh lookup would pick. It returns the owners of the
// bound edges.
func (r *Resolver) BindDangling(ctx context.Context, tx store.Tx, record common.Record) ([]int64, error) {
	return r.bindDangling(ctx, tx, newLookup(r.profile.Country), record)
}

func (r *Resolver) bindDangling(ctx context.Context, tx store.Tx, lk *lookup, record common.Record) ([]int64, error) {
	canonical := record.Canonical()
	if canonical == "" {
		return nil, nil
	}
	targetID, err := lk.find(ctx, tx, canonical)
	if err != nil || targetID == 0 {
		return nil, err
	}
	owners, err := tx.BindDangling(ctx, record.Country, canonical, targetID)
	if err != nil {
		return nil, err
	}
	if len(owners) > 0 {
		logger.Info("[Resolve] Bound dangling references",
			"country", record.Country, "canonical_id", canonical, "target_id", targetID, "owners", len(owners))
	}
	return owners, nil
}

// applyDate parses text with the country calendar. Text that does not parse
// leaves the date unknown and marks the edge malformed; it never becomes a
// placeholder date.
func (r *Resolver) applyDate(e *common.Edge, record common.Record, text string) {
	if strings.TrimSpace(text) == "" {
		e.DateState = common.DateAbsent
		return
	}
	d, err := r.profile.Dates.Parse(text)
	switch {
	case err == nil:
		e.AffectingDate = &d
		e.DateState = common.DateKnown
	case errors.Is(err, legaldate.ErrEmpty):
		e.DateState = common.DateAbsent
	default:
		e.DateState = common.DateMalformed
		logger.Warn("[Resolve] Malformed date",
			"country", record.Country, "record_id", record.ID, "target", e.TargetLawID, "date", text)
	}
}

// lookup resolves canonical ids to the lowest record id holding them. It
// lives for one page at most because reconciliation may change which record
// is canonical between runs.
type lookup struct {
	country common.Country
	cache   map[string]int64
}

func newLookup(c common.Country) *lookup {
	return &lookup{country: c, cache: make(map[string]int64)}
}

// find returns 0 when no record has canonicalID.
func (l *lookup) find(ctx context.Context, tx store.Tx, canonicalID string) (int64, error) {
	if id, ok := l.cache[canonicalID]; ok {
		return id, nil
	}
	rec, err := tx.FindByCountryAndCanonicalID(ctx, l.country, canonicalID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		l.cache[canonicalID] = 0
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("lookup %s/%s: %w", l.country, canonicalID, err)
	}
	l.cache[canonicalID] = rec.ID
	return rec.ID, nil
}
