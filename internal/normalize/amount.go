// Package normalize converts the textual amounts and dates found in bank
// statements and model output into canonical values.
package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when a string cannot be read as a money amount.
var ErrInvalidAmount = errors.New("invalid amount")

// currencyTokens are removed before parsing. Longer tokens come first so
// "Rs." is removed before "Rs".
var currencyTokens = []string{"INR", "Rs.", "Rs", "₹", "$", "£", "€"}

// AmountPattern matches a formatted money amount such as "2,000.00".
var AmountPattern = regexp.MustCompile(`^[\d,]+\.\d{2}$`)

// ParseAmount parses amounts like "₹50,000.00", "Rs. 1,234.5", "(250.00)" or
// "-12.30" into a decimal. A leading minus or surrounding parentheses produce
// a negative value. Cr/Dr suffixes are not handled here, see SplitDirection.
func ParseAmount(s string) (decimal.Decimal, error) {
	orig := s
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "")
	for _, tok := range currencyTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	s = strings.TrimSpace(s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimSpace(s[1:])
	} else if strings.HasPrefix(s, "+") {
		s = strings.TrimSpace(s[1:])
	}

	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, orig)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, orig)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// SplitDirection strips a trailing "Cr"/"Dr" marker from an amount token and
// reports which one was present ("" when neither).
func SplitDirection(s string) (string, string) {
	t := strings.TrimSpace(s)
	bare := strings.TrimSuffix(t, ".")
	upper := strings.ToUpper(bare)
	for _, suffix := range []string{"CR", "DR"} {
		if strings.HasSuffix(upper, suffix) {
			rest := strings.TrimSpace(bare[:len(bare)-len(suffix)])
			return rest, strings.ToLower(suffix)
		}
	}
	return t, ""
}

// IsAmount reports whether s looks like a formatted statement amount, with an
// optional currency symbol and Cr/Dr suffix.
func IsAmount(s string) bool {
	t, _ := SplitDirection(s)
	for _, tok := range currencyTokens {
		t = strings.TrimPrefix(t, tok)
	}
	return AmountPattern.MatchString(strings.TrimSpace(t))
}
