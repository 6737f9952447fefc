// Package legaldate parses the dates found in legislative sources. Each
// country gets an explicit month-name table because several sources use
// localized abbreviations.
package legaldate

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/OFFIS-RIT/lexlink/pkg/ident"

	"github.com/araddon/dateparse"
)

var (
	// ErrEmpty is returned for blank input. Callers treat it as an absent date.
	ErrEmpty = errors.New("empty date")
	// ErrUnparseable is returned when the text is not a date in the
	// country's formats. Callers treat it as unknown, never as now or epoch.
	ErrUnparseable = errors.New("unparseable date")
)

// Parser parses date text for one country.
type Parser interface {
	Parse(text string) (time.Time, error)
}

// Order is the order of day and month in numeric dates.
type Order int

const (
	DayFirst Order = iota
	MonthFirst
)

// TableParser parses ISO dates, numeric dates in the configured order and
// textual dates whose month names come from Months.
type TableParser struct {
	Months map[string]time.Month
	Order  Order
	// Fallback, when set, is tried after the table formats fail.
	Fallback func(text string) (time.Time, error)
}

var (
	reISO     = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})(?:[t ]\d{1,2}:\d{2}(?::\d{2}(?:\.\d+)?)?(?:z|[+-]\d{2}:?\d{2})?)?$`)
	reNumeric = regexp.MustCompile(`^(\d{1,2})[/.-](\d{1,2})[/.-](\d{2,4})$`)
	reDay     = regexp.MustCompile(`^(\d{1,2})(?:o|er|st|nd|rd|th)?$`)
	reYear    = regexp.MustCompile(`^\d{4}$`)
	reDigits  = regexp.MustCompile(`\d+`)
	reISOLike = regexp.MustCompile(`^\d{4}-\d`)
	// reLoose is what the fallback is allowed to see: words, numbers and
	// the punctuation of dates and clock times.
	reLoose = regexp.MustCompile(`^[\pL\d\s,./:+-]+$`)
)

// fillers are dropped before textual dates are matched.
var fillers = map[string]bool{"de": true, "del": true, "of": true, "the": true, "في": true}

// Parse implements Parser.
func (p TableParser) Parse(text string) (time.Time, error) {
	s := strings.TrimSpace(ident.Clean(text))
	if s == "" {
		return time.Time{}, ErrEmpty
	}
	lower := strings.ToLower(s)

	if m := reISO.FindStringSubmatch(lower); m != nil {
		return build(m[1], m[2], m[3], text)
	}
	if m := reNumeric.FindStringSubmatch(lower); m != nil {
		day, month := m[1], m[2]
		if p.Order == MonthFirst {
			day, month = month, day
		}
		return build(expandYear(m[3]), month, day, text)
	}
	if t, ok, err := p.parseWords(lower, text); ok {
		return t, err
	}
	if p.Fallback != nil {
		if t, err := p.Fallback(s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseable, text)
}

// parseWords handles "12 de enero de 2020", "12-ene-2020", "ene. 12, 2020"
// and two-word month names such as "كانون الثاني". ok is false when the
// text does not have a day, a month name and a year.
func (p TableParser) parseWords(lower, original string) (time.Time, bool, error) {
	raw := strings.FieldsFunc(lower, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == '.' || r == '-' || r == '/' || r == '،'
	})
	words := raw[:0]
	for _, w := range raw {
		if !fillers[w] {
			words = append(words, w)
		}
	}
	if len(words) < 3 || !reYear.MatchString(words[len(words)-1]) {
		return time.Time{}, false, nil
	}
	year := words[len(words)-1]
	rest := words[:len(words)-1]

	if m := reDay.FindStringSubmatch(rest[0]); m != nil {
		if month, ok := p.Months[strings.Join(rest[1:], " ")]; ok {
			t, err := build(year, strconv.Itoa(int(month)), m[1], original)
			return t, true, err
		}
	}
	if m := reDay.FindStringSubmatch(rest[len(rest)-1]); m != nil {
		if month, ok := p.Months[strings.Join(rest[:len(rest)-1], " ")]; ok {
			t, err := build(year, strconv.Itoa(int(month)), m[1], original)
			return t, true, err
		}
	}
	return time.Time{}, false, nil
}

func expandYear(y string) string {
	if len(y) == 2 {
		n, _ := strconv.Atoi(y)
		if n < 70 {
			return "20" + y
		}
		return "19" + y
	}
	return y
}

func build(year, month, day, original string) (time.Time, error) {
	y, err1 := strconv.Atoi(year)
	m, err2 := strconv.Atoi(month)
	d, err3 := strconv.Atoi(day)
	if err1 != nil || err2 != nil || err3 != nil || len(year) != 4 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseable, original)
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseable, original)
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes 31 February into March; reject instead.
	if t.Day() != d || t.Month() != time.Month(m) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseable, original)
	}
	return t, nil
}

// SpanishMonths covers full names and the abbreviations used by the Chilean
// and Colombian congress sites.
var SpanishMonths = map[string]time.Month{
	"enero": time.January, "ene": time.January,
	"febrero": time.February, "feb": time.February,
	"marzo": time.March, "mar": time.March,
	"abril": time.April, "abr": time.April,
	"mayo": time.May, "may": time.May,
	"junio": time.June, "jun": time.June,
	"julio": time.July, "jul": time.July,
	"agosto": time.August, "ago": time.August,
	"septiembre": time.September, "setiembre": time.September, "sep": time.September, "sept": time.September, "set": time.September,
	"octubre": time.October, "oct": time.October,
	"noviembre": time.November, "nov": time.November,
	"diciembre": time.December, "dic": time.December,
}

// EnglishMonths is used by the US profile before falling back to dateparse.
var EnglishMonths = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may": time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// ArabicMonths holds both the Levantine (Syriac) month names used in the
// Jordanian official gazette and the Egyptian-style Gregorian names.
var ArabicMonths = map[string]time.Month{
	"كانون الثاني": time.January, "يناير": time.January,
	"شباط": time.February, "فبراير": time.February,
	"آذار": time.March, "اذار": time.March, "مارس": time.March,
	"نيسان": time.April, "أبريل": time.April, "ابريل": time.April,
	"أيار": time.May, "ايار": time.May, "مايو": time.May,
	"حزيران": time.June, "يونيو": time.June,
	"تموز": time.July, "يوليو": time.July,
	"آب": time.August, "اب": time.August, "أغسطس": time.August, "اغسطس": time.August,
	"أيلول": time.September, "ايلول": time.September, "سبتمبر": time.September,
	"تشرين الأول": time.October, "تشرين الاول": time.October, "أكتوبر": time.October, "اكتوبر": time.October,
	"تشرين الثاني": time.November, "نوفمبر": time.November,
	"كانون الأول": time.December, "كانون الاول": time.December, "ديسمبر": time.December,
}

// Spanish returns the parser used for Chile and Colombia.
func Spanish() Parser {
	return TableParser{Months: SpanishMonths, Order: DayFirst}
}

// English returns the parser used for US sources. Formats outside the table
// are handed to dateparse, but only when they can name a full day.
func English() Parser {
	return TableParser{
		Months: EnglishMonths,
		Order:  MonthFirst,
		Fallback: func(text string) (time.Time, error) {
			if !hasDay(text) {
				return time.Time{}, ErrUnparseable
			}
			t, err := dateparse.ParseIn(text, time.UTC)
			if err != nil {
				return time.Time{}, err
			}
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		},
	}
}

// hasDay reports whether text carries a day next to its year. dateparse
// reads "2020" as a year and long digit runs as epoch timestamps, and fills
// a missing day with the first of the month.
func hasDay(text string) bool {
	// ISO shapes are settled by reISO alone.
	if !reLoose.MatchString(text) || reISOLike.MatchString(text) {
		return false
	}
	groups := len(reDigits.FindAllString(text, -1))
	if strings.IndexFunc(text, unicode.IsLetter) >= 0 {
		return groups >= 2
	}
	return groups >= 3
}

// Arabic returns the parser used for Jordan.
func Arabic() Parser {
	return TableParser{Months: ArabicMonths, Order: DayFirst}
}
