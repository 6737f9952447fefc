package store

import (
	"slices"
	"strings"
	"time"

	"github.com/OFFIS-RIT/lexlink/pkg/common"
)

func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}

// DedupeIDs returns the distinct ids of in, sorted.
func DedupeIDs(in []int64) []int64 {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

// DedupeEdges keeps the last edge per natural key, preserving first-seen
// order. Postgres rejects an upsert batch that touches the same row twice.
func DedupeEdges(edges []common.Edge) []common.Edge {
	idx := make(map[common.EdgeKey]int, len(edges))
	out := make([]common.Edge, 0, len(edges))
	for _, e := range edges {
		k := e.Key()
		if i, ok := idx[k]; ok {
			if e.TargetID == nil {
				e.TargetID = out[i].TargetID
			}
			out[i] = e
			continue
		}
		idx[k] = len(out)
		out = append(out, e)
	}
	return out
}

// DateOnly truncates t to a UTC calendar date. Edge dates are stored as
// dates, so keys built before and after a round trip must agree.
func DateOnly(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	y, m, d := t.UTC().Date()
	out := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &out
}

// CloneRecord returns a deep copy of r.
func CloneRecord(r common.Record) common.Record {
	out := r
	if r.CanonicalID != nil {
		id := *r.CanonicalID
		out.CanonicalID = &id
	}
	if r.Stages != nil {
		out.Stages = make([]common.Stage, len(r.Stages))
		for i, s := range r.Stages {
			if s.Index != nil {
				idx := *s.Index
				s.Index = &idx
			}
			if s.Date != nil {
				d := *s.Date
				s.Date = &d
			}
			out.Stages[i] = s
		}
	}
	out.Metrics = CloneMetrics(r.Metrics)
	return out
}

// CloneMetrics returns a deep copy of m.
func CloneMetrics(m common.Metrics) common.Metrics {
	out := m
	if m.AffectingLawsCount != nil {
		n := *m.AffectingLawsCount
		out.AffectingLawsCount = &n
	}
	if m.ModifiedLawsCount != nil {
		n := *m.ModifiedLawsCount
		out.ModifiedLawsCount = &n
	}
	if m.ModifiedLaws != nil {
		out.ModifiedLaws = slices.Clone(m.ModifiedLaws)
	}
	if m.AffectingLawsFirstDate != nil {
		d := *m.AffectingLawsFirstDate
		out.AffectingLawsFirstDate = &d
	}
	return out
}

// CloneEdge returns a deep copy of e.
func CloneEdge(e common.Edge) common.Edge {
	out := e
	if e.TargetID != nil {
		id := *e.TargetID
		out.TargetID = &id
	}
	out.AffectingDate = DateOnly(e.AffectingDate)
	return out
}

// SanitizeText drops invalid UTF-8 and NUL bytes, which PostgreSQL rejects
// in text columns. Scraped identifiers and article labels carry both.
func SanitizeText(value string) string {
	if value == "" {
		return value
	}
	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}
