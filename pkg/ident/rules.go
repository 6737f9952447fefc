package ident

import (
	"fmt"
	"regexp"
	"strconv"
)

var (
	reChileLaw  = regexp.MustCompile(`(?i)\b(?:ley|law)\b\s*(?:n\s*\.?\s*(?:o|ro|um|°)?\s*\.?\s*)?(\d{1,3}(?:\.\d{3})+|\d+)\b`)
	reChileBare = regexp.MustCompile(`^(?:Law-)?(\d{1,3}(?:\.\d{3})+|\d+)$`)

	reColombiaLaw  = regexp.MustCompile(`(?i)\bley\b\s*(?:n\s*\.?\s*(?:o|ro|um|°)?\s*\.?\s*)?(\d{1,3}(?:\.\d{3})+|\d+)\s*(?:de|del)\s*(\d{4})\b`)
	reColombiaPair = regexp.MustCompile(`^(\d{4})\s*/\s*(\d+)$`)

	reUSPublicLaw = regexp.MustCompile(`(?i)\b(?:public\s+law|pub\.?\s*l\.?|p\.\s*l\.)\s*(?:no\.?\s*)?(\d{1,3})\s*-\s*(\d{1,4})\b`)
	reUSBare      = regexp.MustCompile(`^(\d{1,3})\s*-\s*(\d{1,4})$`)

	reJordanLaw  = regexp.MustCompile(`(?i)(?:law|قانون)[^\d]{0,40}?\(?\s*(\d+)\s*\)?\s*(?:of(?:\s+the)?(?:\s+year)?|for(?:\s+the)?(?:\s+year)?|لسنة|لعام|سنة)\s*(\d{4})`)
	reJordanPair = regexp.MustCompile(`^(\d+)\s*/\s*(\d{4})$`)
)

// ChileRule recognizes "Ley N° 19.880", "Ley 20000" and bare numbers and
// produces "Law-19880".
type ChileRule struct{}

func (ChileRule) Canonicalize(raw string) (string, error) {
	var num string
	if m := reChileLaw.FindStringSubmatch(raw); m != nil {
		num = m[1]
	} else if m := reChileBare.FindStringSubmatch(raw); m != nil {
		num = m[1]
	} else {
		return "", fmt.Errorf("%w: %q", ErrUnparseable, raw)
	}
	return "Law-" + trimLeadingZeros(stripThousands(num)), nil
}

// ColombiaRule recognizes "Ley 2169 de 2021" and the already-canonical
// "2021/2169", producing "<year>/<number>".
type ColombiaRule struct{}

func (ColombiaRule) Canonicalize(raw string) (string, error) {
	if m := reColombiaPair.FindStringSubmatch(raw); m != nil {
		return m[1] + "/" + trimLeadingZeros(m[2]), nil
	}
	if m := reColombiaLaw.FindStringSubmatch(raw); m != nil {
		return m[2] + "/" + trimLeadingZeros(stripThousands(m[1])), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnparseable, raw)
}

// USARule recognizes "Public Law 117-330", "Pub. L. 117-330" and "117-330",
// producing "<congress>-<number>".
type USARule struct{}

func (USARule) Canonicalize(raw string) (string, error) {
	m := reUSPublicLaw.FindStringSubmatch(raw)
	if m == nil {
		m = reUSBare.FindStringSubmatch(raw)
	}
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrUnparseable, raw)
	}
	congress, err := strconv.Atoi(m[1])
	if err != nil || congress == 0 {
		return "", fmt.Errorf("%w: %q", ErrUnparseable, raw)
	}
	return strconv.Itoa(congress) + "-" + trimLeadingZeros(m[2]), nil
}

// JordanRule recognizes "Law No. (15) of 2021", "قانون رقم (15) لسنة 2021"
// and "15/2021", producing "<number>/<year>".
type JordanRule struct{}

func (JordanRule) Canonicalize(raw string) (string, error) {
	if m := reJordanPair.FindStringSubmatch(raw); m != nil {
		return trimLeadingZeros(m[1]) + "/" + m[2], nil
	}
	if m := reJordanLaw.FindStringSubmatch(raw); m != nil {
		return trimLeadingZeros(m[1]) + "/" + m[2], nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnparseable, raw)
}
