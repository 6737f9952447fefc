// Package rank orders duplicate records from most to least complete.
//
// A Ranking is a priority list of named keys. Keys are compared in order and
// the first one that tells two records apart decides; records equal under
// every key are ordered by surrogate id, so the earliest collected wins and
// the order is total.
package rank

import (
	"slices"
	"strings"

	"github.com/OFFIS-RIT/lexlink/pkg/common"
)

// Key compares two records. Compare returns a negative number when a is more
// complete than b, a positive number when b is, and zero on a tie.
type Key struct {
	Name    string
	Compare func(a, b common.Record) int
}

// Desc ranks records with a larger value first.
func Desc(name string, value func(common.Record) int) Key {
	return Key{Name: name, Compare: func(a, b common.Record) int {
		return value(b) - value(a)
	}}
}

// Prefer ranks records for which has reports true first.
func Prefer(name string, has func(common.Record) bool) Key {
	return Desc(name, func(r common.Record) int {
		if has(r) {
			return 1
		}
		return 0
	})
}

var (
	DatedStages = Desc("dated_stages", common.Record.DatedStages)
	HasText     = Prefer("has_text", func(r common.Record) bool { return r.HasText })
	HasVotes    = Prefer("has_votes", func(r common.Record) bool { return r.HasVotes })
	Committees  = Desc("committees", func(r common.Record) int { return r.CommitteeCount })
	Amendments  = Desc("amendments", func(r common.Record) int { return r.AmendmentCount })
)

// Ranking is an immutable priority list of keys.
type Ranking struct {
	keys []Key
}

// New returns a ranking using keys in priority order.
func New(keys ...Key) Ranking {
	return Ranking{keys: slices.Clone(keys)}
}

// Default is the ranking shared by all countries unless a profile overrides
// it: dated stages, full text, vote tally, committees, amendments.
func Default() Ranking {
	return New(DatedStages, HasText, HasVotes, Committees, Amendments)
}

// Then returns a copy of r with k appended as the lowest-priority key.
func (r Ranking) Then(k Key) Ranking {
	keys := make([]Key, 0, len(r.keys)+1)
	keys = append(keys, r.keys...)
	return Ranking{keys: append(keys, k)}
}

// Names returns the key names in priority order.
func (r Ranking) Names() []string {
	names := make([]string, len(r.keys))
	for i, k := range r.keys {
		names[i] = k.Name
	}
	return names
}

func (r Ranking) String() string {
	return strings.Join(append(r.Names(), "id"), " > ")
}

// Compare orders a before b when a is more complete.
func (r Ranking) Compare(a, b common.Record) int {
	for _, k := range r.keys {
		if c := k.Compare(a, b); c != 0 {
			return c
		}
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// Sort orders records in place, most complete first.
func (r Ranking) Sort(records []common.Record) {
	slices.SortFunc(records, r.Compare)
}

// Pick returns the most complete record and the remaining ones in rank
// order. The input slice is not modified.
func (r Ranking) Pick(records []common.Record) (common.Record, []common.Record) {
	if len(records) == 0 {
		return common.Record{}, nil
	}
	sorted := slices.Clone(records)
	r.Sort(sorted)
	return sorted[0], sorted[1:]
}
