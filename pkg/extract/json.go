package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/lexlink/pkg/common"

	"github.com/kaptinlin/jsonrepair"
	"github.com/tidwall/gjson"
)

// JSONFields are gjson paths relative to one mention object.
type JSONFields struct {
	Target           string
	Role             string
	AffectingArticle string
	ModifiedArticle  string
	Date             string
}

// JSONExtractor reads mentions from JSON material. Several sources store the
// related laws as an array of objects whose field names differ per country,
// so the shape is configured with gjson paths.
//
// Some scraped payloads are truncated or carry trailing commas; those are run
// through jsonrepair before giving up.
type JSONExtractor struct {
	// Paths are gjson paths to arrays of mention objects. Each may carry a
	// role of its own, used when the objects have no role field.
	Paths []JSONPath
	// Fields locate the mention values inside each object.
	Fields JSONFields
	// Roles maps lowercased role values found in the data to roles.
	Roles map[string]common.Role
}

// JSONPath is an array location with an optional implied role.
type JSONPath struct {
	Path string
	Role common.Role
}

func (j JSONExtractor) Extract(_ context.Context, record common.Record, material Material) ([]common.Mention, error) {
	body, err := repairJSON(material.Body)
	if err != nil {
		return nil, fmt.Errorf("record %d: %w", record.ID, err)
	}
	if body == "" {
		return nil, nil
	}

	var out []common.Mention
	for _, p := range j.Paths {
		arr := gjson.Get(body, p.Path)
		if !arr.Exists() {
			continue
		}
		arr.ForEach(func(_, item gjson.Result) bool {
			if m, ok := j.mention(item, p.Role); ok {
				out = append(out, m)
			}
			return true
		})
	}
	return out, nil
}

func (j JSONExtractor) mention(item gjson.Result, implied common.Role) (common.Mention, bool) {
	target := strings.TrimSpace(item.Get(j.Fields.Target).String())
	if target == "" {
		return common.Mention{}, false
	}

	// Role values outside the table are passed through as found so the
	// resolver counts and reports them.
	role := implied
	if j.Fields.Role != "" {
		if raw := item.Get(j.Fields.Role); raw.Exists() {
			val := strings.TrimSpace(raw.String())
			if r, ok := j.Roles[strings.ToLower(val)]; ok {
				role = r
			} else {
				role = common.Role(val)
			}
		}
	}

	m := common.Mention{TargetIdentifierText: target, Role: role}
	if j.Fields.AffectingArticle != "" {
		m.AffectingArticle = strings.TrimSpace(item.Get(j.Fields.AffectingArticle).String())
	}
	if j.Fields.ModifiedArticle != "" {
		m.ModifiedArticle = strings.TrimSpace(item.Get(j.Fields.ModifiedArticle).String())
	}
	if j.Fields.Date != "" {
		m.DateText = strings.TrimSpace(item.Get(j.Fields.Date).String())
	}
	return m, true
}

func repairJSON(raw []byte) (string, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return "", nil
	}
	if gjson.Valid(s) {
		return s, nil
	}
	repaired, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return "", fmt.Errorf("%w: json repair failed: %v", ErrMalformed, err)
	}
	if !gjson.Valid(repaired) {
		return "", fmt.Errorf("%w: invalid after repair", ErrMalformed)
	}
	return repaired, nil
}
