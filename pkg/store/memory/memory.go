// Package memory is an in-process LegislationStorage. Transactions work on a
// copy of the state that replaces the committed state only when they succeed,
// so a failed transaction leaves no trace. Transactions are serialized.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/OFFIS-RIT/lexlink/pkg/common"
	"github.com/OFFIS-RIT/lexlink/pkg/store"
)

type state struct {
	records    map[int64]common.Record
	edges      map[common.EdgeKey]common.Edge
	nextRecord int64
	nextEdge   int64
}

func (s *state) clone() *state {
	out := &state{
		records:    make(map[int64]common.Record, len(s.records)),
		edges:      make(map[common.EdgeKey]common.Edge, len(s.edges)),
		nextRecord: s.nextRecord,
		nextEdge:   s.nextEdge,
	}
	for id, r := range s.records {
		out.records[id] = store.CloneRecord(r)
	}
	for k, e := range s.edges {
		out.edges[k] = store.CloneEdge(e)
	}
	return out
}

type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: &state{
		records: make(map[int64]common.Record),
		edges:   make(map[common.EdgeKey]common.Edge),
	}}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) Close() {}

type tx struct {
	st *state
}

func (t *tx) Nested(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	work := t.st.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	*t.st = *work
	return nil
}

func (t *tx) GetRecord(_ context.Context, id int64) (common.Record, error) {
	r, ok := t.st.records[id]
	if !ok {
		return common.Record{}, fmt.Errorf("record %d: %w", id, store.ErrNotFound)
	}
	return store.CloneRecord(r), nil
}

func (t *tx) FindByCountryAndCanonicalID(ctx context.Context, country common.Country, canonicalID string) (common.Record, error) {
	all, _ := t.FindAllByCountryAndCanonicalID(ctx, country, canonicalID)
	if len(all) == 0 {
		return common.Record{}, fmt.Errorf("record %s/%s: %w", country, canonicalID, store.ErrNotFound)
	}
	return all[0], nil
}

func (t *tx) FindAllByCountryAndCanonicalID(_ context.Context, country common.Country, canonicalID string) ([]common.Record, error) {
	return t.filter(func(r common.Record) bool {
		return r.Country == country && r.Canonical() == canonicalID && canonicalID != ""
	}), nil
}

func (t *tx) FindAllEligible(_ context.Context, country common.Country, requirePassed bool, page store.Page) ([]common.Record, error) {
	out := t.filter(func(r common.Record) bool {
		if r.Country != country || r.Canonical() == "" || r.ID <= page.AfterID {
			return false
		}
		return !requirePassed || r.Status == common.StatusPassed
	})
	if page.Limit > 0 && len(out) > page.Limit {
		out = out[:page.Limit]
	}
	return out, nil
}

func (t *tx) FindDuplicateGroups(_ context.Context, country common.Country) ([]string, error) {
	counts := map[string]int{}
	for _, r := range t.st.records {
		if r.Country == country && r.Canonical() != "" {
			counts[r.Canonical()]++
		}
	}
	var out []string
	for id, n := range counts {
		if n > 1 {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out, nil
}

// filter returns clones of the matching records in id order.
func (t *tx) filter(match func(common.Record) bool) []common.Record {
	var out []common.Record
	for _, r := range t.st.records {
		if match(r) {
			out = append(out, store.CloneRecord(r))
		}
	}
	slices.SortFunc(out, func(a, b common.Record) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (t *tx) SaveRecord(_ context.Context, r *common.Record) error {
	if r.ID == 0 {
		t.st.nextRecord++
		r.ID = t.st.nextRecord
		t.st.records[r.ID] = store.CloneRecord(*r)
		return nil
	}
	old, ok := t.st.records[r.ID]
	if !ok {
		return fmt.Errorf("record %d: %w", r.ID, store.ErrNotFound)
	}
	next := store.CloneRecord(*r)
	next.Metrics = old.Metrics
	t.st.records[r.ID] = next
	return nil
}

func (t *tx) SaveMetrics(_ context.Context, id int64, m common.Metrics) error {
	r, ok := t.st.records[id]
	if !ok {
		return fmt.Errorf("record %d: %w", id, store.ErrNotFound)
	}
	r.Metrics = store.CloneMetrics(m)
	r.Metrics.AffectingLawsFirstDate = store.DateOnly(m.AffectingLawsFirstDate)
	t.st.records[id] = r
	return nil
}

func (t *tx) DeleteRecord(_ context.Context, id int64) error {
	if _, ok := t.st.records[id]; !ok {
		return fmt.Errorf("record %d: %w", id, store.ErrNotFound)
	}
	delete(t.st.records, id)
	for k, e := range t.st.edges {
		switch {
		case e.RecordID == id:
			delete(t.st.edges, k)
		case e.TargetID != nil && *e.TargetID == id:
			e.TargetID = nil
			t.st.edges[k] = e
		}
	}
	return nil
}

func (t *tx) SaveEdges(_ context.Context, edges []common.Edge) (int, error) {
	inserted := 0
	for _, e := range store.DedupeEdges(edges) {
		if _, ok := t.st.records[e.RecordID]; !ok {
			return inserted, fmt.Errorf("edge owner %d: %w", e.RecordID, store.ErrNotFound)
		}
		if e.TargetID != nil {
			if _, ok := t.st.records[*e.TargetID]; !ok {
				return inserted, fmt.Errorf("edge target %d: %w", *e.TargetID, store.ErrNotFound)
			}
		}
		e = store.CloneEdge(e)
		k := e.Key()
		if old, ok := t.st.edges[k]; ok {
			e.ID = old.ID
			if e.TargetID == nil {
				e.TargetID = old.TargetID
			}
			t.st.edges[k] = e
			continue
		}
		t.st.nextEdge++
		e.ID = t.st.nextEdge
		t.st.edges[k] = e
		inserted++
	}
	return inserted, nil
}

func (t *tx) EdgesByRecord(_ context.Context, recordID int64) ([]common.Edge, error) {
	return t.edgesWhere(func(e common.Edge) bool { return e.RecordID == recordID }), nil
}

func (t *tx) EdgesByTarget(_ context.Context, targetID int64) ([]common.Edge, error) {
	return t.edgesWhere(func(e common.Edge) bool { return e.TargetID != nil && *e.TargetID == targetID }), nil
}

func (t *tx) edgesWhere(match func(common.Edge) bool) []common.Edge {
	var out []common.Edge
	for _, e := range t.st.edges {
		if match(e) {
			out = append(out, store.CloneEdge(e))
		}
	}
	slices.SortFunc(out, func(a, b common.Edge) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (t *tx) DeleteEdge(_ context.Context, key common.EdgeKey) error {
	if _, ok := t.st.edges[key]; !ok {
		return fmt.Errorf("edge %+v: %w", key, store.ErrNotFound)
	}
	delete(t.st.edges, key)
	return nil
}

func (t *tx) RetargetEdges(_ context.Context, from, to int64) ([]int64, error) {
	if _, ok := t.st.records[to]; !ok {
		return nil, fmt.Errorf("record %d: %w", to, store.ErrNotFound)
	}
	return t.rebind(func(e common.Edge) bool {
		return e.TargetID != nil && *e.TargetID == from
	}, to), nil
}

func (t *tx) BindDangling(_ context.Context, country common.Country, canonicalID string, targetID int64) ([]int64, error) {
	if _, ok := t.st.records[targetID]; !ok {
		return nil, fmt.Errorf("record %d: %w", targetID, store.ErrNotFound)
	}
	return t.rebind(func(e common.Edge) bool {
		return e.TargetID == nil && e.Country == country && e.TargetLawID == canonicalID
	}, targetID), nil
}

func (t *tx) rebind(match func(common.Edge) bool, to int64) []int64 {
	var owners []int64
	for k, e := range t.st.edges {
		if !match(e) {
			continue
		}
		id := to
		e.TargetID = &id
		t.st.edges[k] = e
		owners = append(owners, e.RecordID)
	}
	return store.DedupeIDs(owners)
}
