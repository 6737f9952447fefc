// Package country bundles the per-country strategies the engine is
// parameterized with.
package country

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/lexlink/pkg/common"
	"github.com/OFFIS-RIT/lexlink/pkg/extract"
	"github.com/OFFIS-RIT/lexlink/pkg/ident"
	"github.com/OFFIS-RIT/lexlink/pkg/legaldate"
	"github.com/OFFIS-RIT/lexlink/pkg/rank"
)

var ErrUnknown = errors.New("unknown country")

// Profile holds everything that differs between countries.
type Profile struct {
	Country    common.Country
	Identifier ident.Rule
	Dates      legaldate.Parser
	Extractor  extract.Extractor
	Ranking    rank.Ranking
	// RequirePassed restricts resolution to records with a passed status in
	// addition to having a canonical id.
	RequirePassed bool
}

// Normalize canonicalizes raw with the profile's identifier rule.
func (p Profile) Normalize(raw string) (string, error) {
	return ident.Normalize(p.Identifier, raw)
}

// Registry maps countries to profiles.
type Registry struct {
	profiles map[common.Country]Profile
}

// NewRegistry creates a registry. A later profile for the same country
// replaces an earlier one.
func NewRegistry(profiles ...Profile) *Registry {
	r := &Registry{profiles: make(map[common.Country]Profile, len(profiles))}
	for _, p := range profiles {
		r.profiles[p.Country] = p
	}
	return r
}

// Get returns the profile of c.
func (r *Registry) Get(c common.Country) (Profile, error) {
	p, ok := r.profiles[c]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrUnknown, c)
	}
	return p, nil
}

// Countries returns the registered countries in sorted order.
func (r *Registry) Countries() []common.Country {
	out := make([]common.Country, 0, len(r.profiles))
	for c := range r.profiles {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Parse turns a comma separated list such as "CL,co" into registered
// countries. An empty list selects all of them.
func (r *Registry) Parse(list string) ([]common.Country, error) {
	if strings.TrimSpace(list) == "" {
		return r.Countries(), nil
	}
	var out []common.Country
	for _, part := range strings.Split(list, ",") {
		c := common.Country(strings.ToUpper(strings.TrimSpace(part)))
		if c == "" {
			continue
		}
		if _, err := r.Get(c); err != nil {
			return nil, err
		}
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out, nil
}
