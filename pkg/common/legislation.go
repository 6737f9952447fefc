package common

import "time"

// Country identifies the national source a record was collected from.
type Country string

const (
	Chile    Country = "CL"
	Colombia Country = "CO"
	USA      Country = "US"
	Jordan   Country = "JO"
)

// Status is the legislative outcome of a bill.
type Status string

const (
	StatusOngoing  Status = "ongoing"
	StatusPassed   Status = "passed"
	StatusRejected Status = "rejected"
)

// Stage is one step of the legislative process. Index and Date are optional
// because sources frequently omit one or both.
type Stage struct {
	Name  string     `json:"name"`
	Index *int       `json:"index,omitempty"`
	Date  *time.Time `json:"date,omitempty"`
}

// Dated reports whether the stage carries both an index and a date.
func (s Stage) Dated() bool {
	return s.Index != nil && s.Date != nil
}

// Record is a legislative bill or law as collected from a national source.
//
// ID is the surrogate key assigned by the store. It is never reused and its
// ascending order is the order in which records were collected.
// CanonicalID stays nil until the bill passes and its law identifier is known.
// HasText, HasVotes, CommitteeCount and AmendmentCount are completeness
// signals used only when ranking duplicates.
type Record struct {
	ID             int64   `json:"id"`
	Country        Country `json:"country"`
	IdentifierText string  `json:"identifier_text"`
	CanonicalID    *string `json:"canonical_id,omitempty"`
	Status         Status  `json:"status"`
	Stages         []Stage `json:"stages"`
	SourceKey      string  `json:"source_key"`

	HasText        bool `json:"has_text"`
	HasVotes       bool `json:"has_votes"`
	CommitteeCount int  `json:"committee_count"`
	AmendmentCount int  `json:"amendment_count"`

	Metrics Metrics `json:"metrics"`
}

// Canonical returns the canonical law identifier or an empty string.
func (r Record) Canonical() string {
	if r.CanonicalID == nil {
		return ""
	}
	return *r.CanonicalID
}

// DatedStages counts stages that carry both an index and a date.
func (r Record) DatedStages() int {
	n := 0
	for _, s := range r.Stages {
		if s.Dated() {
			n++
		}
	}
	return n
}

// Metrics are derived from the edge set and never edited by hand.
// A nil count means the record was never aggregated; zero means it was
// checked and nothing was found.
type Metrics struct {
	AffectingLawsCount     *int       `json:"affecting_laws_count,omitempty"`
	ModifiedLawsCount      *int       `json:"modified_laws_count,omitempty"`
	ModifiedLaws           []string   `json:"modified_laws,omitempty"`
	AffectingLawsFirstDate *time.Time `json:"affecting_laws_first_date,omitempty"`
}

// Role is the direction of a mention from the point of view of the record
// it was found in.
type Role string

const (
	// Modifies means the record modifies the mentioned law.
	Modifies Role = "MODIFIES"
	// ModifiedBy means the mentioned law modifies the record.
	ModifiedBy Role = "MODIFIED_BY"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == Modifies || r == ModifiedBy
}

// Mention is a raw, unresolved reference to another law as produced by a
// country extractor. DateText is parsed by the resolver with the country's
// calendar rules.
type Mention struct {
	TargetIdentifierText string `json:"target"`
	Role                 Role   `json:"role"`
	AffectingArticle     string `json:"affecting_article,omitempty"`
	ModifiedArticle      string `json:"modified_article,omitempty"`
	DateText             string `json:"date,omitempty"`
}

// DateState records what the resolver could make of a mention's date.
type DateState string

const (
	DateKnown     DateState = "known"
	DateAbsent    DateState = "absent"
	DateMalformed DateState = "malformed"
)

// Edge is a persisted AffectingLaw relationship. It is owned by RecordID;
// TargetID is a weak link that stays nil while the target law is unknown
// (a dangling edge).
type Edge struct {
	ID               int64      `json:"id"`
	RecordID         int64      `json:"record_id"`
	Country          Country    `json:"country"`
	SourceLawID      string     `json:"source_law_id"`
	Role             Role       `json:"role"`
	TargetLawID      string     `json:"target_law_id"`
	TargetID         *int64     `json:"target_id,omitempty"`
	AffectingArticle string     `json:"affecting_article"`
	ModifiedArticle  string     `json:"modified_article"`
	AffectingDate    *time.Time `json:"affecting_date,omitempty"`
	DateState        DateState  `json:"date_state"`
}

// Dangling reports whether the edge target is still unresolved.
func (e Edge) Dangling() bool {
	return e.TargetID == nil
}

// Key returns the natural key of the edge.
func (e Edge) Key() EdgeKey {
	k := EdgeKey{
		RecordID:         e.RecordID,
		Role:             e.Role,
		TargetLawID:      e.TargetLawID,
		AffectingArticle: e.AffectingArticle,
		ModifiedArticle:  e.ModifiedArticle,
	}
	if e.AffectingDate != nil {
		k.AffectingDate = e.AffectingDate.UTC().Format(time.DateOnly)
	}
	return k
}

// EdgeKey is the natural key under which edges are upserted. It is
// comparable so it can be used as a map key.
type EdgeKey struct {
	RecordID         int64
	Role             Role
	TargetLawID      string
	AffectingArticle string
	ModifiedArticle  string
	AffectingDate    string
}
