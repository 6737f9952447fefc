// Package ident turns national law identifiers into canonical keys that are
// comparable across collection passes.
package ident

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ErrUnparseable is returned when the text does not contain an identifier
// the country rule recognizes.
var ErrUnparseable = errors.New("unparseable identifier")

// Rule is a country-specific identifier format. Implementations must be pure:
// the same input always yields the same output.
type Rule interface {
	Canonicalize(raw string) (string, error)
}

// Normalize applies rule to raw after the shared text cleanup.
func Normalize(rule Rule, raw string) (string, error) {
	clean := Clean(raw)
	if clean == "" {
		return "", fmt.Errorf("%w: empty input", ErrUnparseable)
	}
	id, err := rule.Canonicalize(clean)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("%w: %q", ErrUnparseable, raw)
	}
	return id, nil
}

// Clean applies NFKC normalization, maps Arabic-Indic digits and dash variants
// to ASCII and collapses whitespace. NFKC turns "º" into "o" and full-width
// digits into ASCII digits.
func Clean(raw string) string {
	s := norm.NFKC.String(raw)

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case r >= '٠' && r <= '٩':
			r = '0' + (r - '٠')
		case r >= '۰' && r <= '۹':
			r = '0' + (r - '۰')
		case r == '‐' || r == '‑' || r == '‒' || r == '–' || r == '—' || r == '−':
			r = '-'
		}
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

func stripThousands(num string) string {
	return strings.NewReplacer(".", "", ",", "", " ", "").Replace(num)
}

func trimLeadingZeros(num string) string {
	t := strings.TrimLeft(num, "0")
	if t == "" {
		return "0"
	}
	return t
}
