package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

var (
	// ErrInvalidDate is returned when no known layout matches.
	ErrInvalidDate = errors.New("invalid date")
	// ErrMissingYear is returned for day-month dates when no year is known.
	ErrMissingYear = errors.New("date has no year")
)

// Statements from Indian banks are day-first, so ambiguous numeric dates
// such as 02/03/2024 are read as 2 March.
var fullLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2 Jan 2006",
	"2-Jan-2006",
	"2 January 2006",
	"2-January-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan, 2006",
	"2/1/06",
	"2-1-06",
	"2 Jan 06",
	"2-Jan-06",
}

var yearlessLayouts = []string{
	"2 Jan",
	"2-Jan",
	"2 January",
	"Jan 2",
}

var spaceRun = regexp.MustCompile(`\s+`)

// ParseDate parses s using the known statement layouts. year is used for
// day-month dates such as "01 Apr"; pass 0 when it is unknown.
func ParseDate(s string, year int) (civil.Date, error) {
	s = spaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return civil.Date{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}

	for _, layout := range fullLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t), nil
		}
	}

	for _, layout := range yearlessLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if year == 0 {
			return civil.Date{}, fmt.Errorf("%w: %q", ErrMissingYear, s)
		}
		d := civil.Date{Year: year, Month: t.Month(), Day: t.Day()}
		if !d.IsValid() {
			return civil.Date{}, fmt.Errorf("%w: %q in %d", ErrInvalidDate, s, year)
		}
		return d, nil
	}

	return civil.Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// Period is a statement period. Either bound may be the zero date.
type Period struct {
	Start civil.Date
	End   civil.Date
}

// Valid reports whether the period has at least an end date.
func (p Period) Valid() bool {
	return p.End.IsValid()
}

// Year is the year used for day-month dates in this period.
func (p Period) Year() int {
	if p.End.IsValid() {
		return p.End.Year
	}
	return 0
}

// ParseDateInPeriod parses a statement date, taking the year from the period
// for day-month dates. A December date in a period ending in January is placed
// in the previous year.
func ParseDateInPeriod(s string, p Period) (civil.Date, error) {
	d, err := ParseDate(s, p.Year())
	if err != nil {
		return d, err
	}
	if p.End.IsValid() && d.After(p.End) && p.Start.IsValid() && p.Start.Year < p.End.Year {
		prev := civil.Date{Year: d.Year - 1, Month: d.Month, Day: d.Day}
		if prev.IsValid() {
			return prev, nil
		}
	}
	return d, nil
}

var periodPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})\s*(?:to|-|–)\s*(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`),
	regexp.MustCompile(`(?i)(\d{1,2}[\s-][A-Za-z]{3,9}[\s,-]+\d{4})\s*(?:to|-|–)\s*(\d{1,2}[\s-][A-Za-z]{3,9}[\s,-]+\d{4})`),
}

var fallbackYear = regexp.MustCompile(`\b(20\d{2})\b`)

// StatementPeriod finds a "<start> to <end>" period in the statement text.
// When no period is present it falls back to the first 20xx year in the text,
// which yields a period with only a year-end bound.
func StatementPeriod(text string) (Period, bool) {
	for _, re := range periodPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		start, errStart := ParseDate(strings.ReplaceAll(m[1], ",", ""), 0)
		end, errEnd := ParseDate(strings.ReplaceAll(m[2], ",", ""), 0)
		if errEnd != nil {
			continue
		}
		p := Period{End: end}
		if errStart == nil {
			p.Start = start
		}
		return p, true
	}

	if m := fallbackYear.FindStringSubmatch(text); m != nil {
		y, _ := strconv.Atoi(m[1])
		return Period{End: civil.Date{Year: y, Month: time.December, Day: 31}}, true
	}
	return Period{}, false
}
