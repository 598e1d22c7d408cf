package parsers

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-extractor/internal/normalize"
)

const summaryAmount = `(?:₹|Rs\.?|INR)?\s*(-?\d[\d,]*\.\d{2})(?:\s*((?i:cr|dr))\b)?`

var (
	openingBalanceRe = regexp.MustCompile(`(?i)opening\s+balance(?:\s+(?:as\s+)?on\s+[0-9A-Za-z/ -]+?)?\s*:?\s*` + summaryAmount)
	closingBalanceRe = regexp.MustCompile(`(?i)closing\s+balance(?:\s+(?:as\s+)?on\s+[0-9A-Za-z/ -]+?)?\s*:?\s*` + summaryAmount)
	totalCreditsRe   = regexp.MustCompile(`(?i)total\s+(?:credits?|deposits?)(?:\s+amount)?\s*:?\s*` + summaryAmount)
	totalDebitsRe    = regexp.MustCompile(`(?i)total\s+(?:debits?|withdrawals?)(?:\s+amount)?\s*:?\s*` + summaryAmount)
)

// readSummary collects the declared statement figures from the full text.
func readSummary(text string) Summary {
	var s Summary
	if p, ok := normalize.StatementPeriod(text); ok {
		s.Period = p
	}
	s.OpeningBalance = findAmount(openingBalanceRe, text, true)
	s.ClosingBalance = findAmount(closingBalanceRe, text, true)
	s.DeclaredCredits = findAmount(totalCreditsRe, text, false)
	s.DeclaredDebits = findAmount(totalDebitsRe, text, false)
	return s
}

// findAmount returns the first match of re. A trailing Dr marks a negative
// balance when signed is set.
func findAmount(re *regexp.Regexp, text string, signed bool) decimal.NullDecimal {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return decimal.NullDecimal{}
	}
	d, err := normalize.ParseAmount(m[1])
	if err != nil {
		return decimal.NullDecimal{}
	}
	if signed && strings.EqualFold(m[2], "dr") {
		d = d.Abs().Neg()
	}
	if !signed {
		d = d.Abs()
	}
	return decimal.NewNullDecimal(d)
}
