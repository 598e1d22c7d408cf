// Package parsers holds the deterministic, per-bank statement parsers.
//
// Each parser is a pure function of page text to an ordered list of
// transaction candidates plus the statement-level figures it found. A parser
// always finishes by reconciling its output against those figures; a
// reconciliation failure tells the caller to try the generative path.
package parsers

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-extractor/internal/domain"
	"github.com/dvloznov/statement-extractor/internal/normalize"
)

var (
	// ErrNoTransactions is returned when no transaction line matched.
	ErrNoTransactions = errors.New("no transaction lines matched")
	// ErrReconciliation is returned when extracted amounts disagree with the
	// statement's own totals or running balances.
	ErrReconciliation = errors.New("statement does not reconcile")
	// ErrUnsupported is returned by New for profiles without a parser.
	ErrUnsupported = errors.New("no parser for statement profile")
)

// DefaultTolerance is the relative tolerance used when comparing sums.
const DefaultTolerance = 1e-6

// Summary holds the statement-level figures used for reconciliation.
// Declared values are read from the statement text; computed values are
// sums over the extracted candidates.
type Summary struct {
	Period          normalize.Period
	OpeningBalance  decimal.NullDecimal
	ClosingBalance  decimal.NullDecimal
	DeclaredCredits decimal.NullDecimal
	DeclaredDebits  decimal.NullDecimal
	Credits         decimal.Decimal
	Debits          decimal.Decimal
}

// Result is the output of one parse.
type Result struct {
	Candidates []domain.TransactionCandidate
	Summary    Summary
}

// Parser extracts transactions from the pages of one kind of statement.
type Parser interface {
	Bank() domain.BankID
	AccountType() domain.AccountType
	// Parse returns ErrNoTransactions when nothing matched. On a
	// reconciliation failure it returns both the result and an error
	// wrapping ErrReconciliation.
	Parse(pages []string) (*Result, error)
}

// New returns the parser for a detected profile. tolerance is the relative
// tolerance for reconciliation; zero or negative uses DefaultTolerance.
func New(profile domain.StatementProfile, tolerance float64) (Parser, error) {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	tol := decimal.NewFromFloat(tolerance)

	switch {
	case profile.Bank == domain.BankHDFC && profile.AccountType == domain.AccountSavings:
		return &lineParser{layout: hdfcSavingsLayout(), tolerance: tol}, nil
	case profile.Bank == domain.BankHDFC && profile.AccountType == domain.AccountCreditCard:
		return &lineParser{layout: hdfcCreditCardLayout(), tolerance: tol}, nil
	case profile.Bank == domain.BankFederal && profile.AccountType == domain.AccountSavings:
		return &lineParser{layout: federalSavingsLayout(), tolerance: tol}, nil
	default:
		return nil, ErrUnsupported
	}
}
