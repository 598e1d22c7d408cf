package parsers

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-extractor/internal/domain"
)

type lineParser struct {
	layout    *layout
	tolerance decimal.Decimal
}

func (p *lineParser) Bank() domain.BankID            { return p.layout.bank }
func (p *lineParser) AccountType() domain.AccountType { return p.layout.account }

// Parse runs the line machine over pages and reconciles the result.
func (p *lineParser) Parse(pages []string) (*Result, error) {
	summary := readSummary(strings.Join(pages, "\n"))

	m := newMachine(p.layout, summary.Period)
	m.run(pages)
	if !summary.OpeningBalance.Valid && m.carry.Valid {
		summary.OpeningBalance = m.carry
	}

	candidates := resolve(p.layout, m.rows, summary.OpeningBalance)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("Parse: %s %s: %w", p.layout.bank, p.layout.account, ErrNoTransactions)
	}

	for _, c := range candidates {
		if c.Direction == domain.DirectionCredit {
			summary.Credits = summary.Credits.Add(c.Amount)
		} else {
			summary.Debits = summary.Debits.Add(c.Amount.Abs())
		}
	}

	res := &Result{Candidates: candidates, Summary: summary}
	if err := Reconcile(res, p.tolerance); err != nil {
		return res, fmt.Errorf("Parse: %s %s: %w", p.layout.bank, p.layout.account, err)
	}
	return res, nil
}

// Reconcile checks a result against the figures its statement declares.
// Declared credit and debit totals are compared with the relative tolerance.
// Opening plus net movement against the closing balance, and each running
// balance against the previous one, must agree to within balanceTolerance.
// Checks whose figures are absent are skipped.
func Reconcile(res *Result, tolerance decimal.Decimal) error {
	if res == nil || len(res.Candidates) == 0 {
		return ErrNoTransactions
	}
	s := res.Summary

	if s.DeclaredCredits.Valid && !within(s.Credits, s.DeclaredCredits.Decimal, tolerance) {
		return fmt.Errorf("%w: credits %s, statement declares %s", ErrReconciliation, s.Credits.StringFixed(2), s.DeclaredCredits.Decimal.StringFixed(2))
	}
	if s.DeclaredDebits.Valid && !within(s.Debits, s.DeclaredDebits.Decimal, tolerance) {
		return fmt.Errorf("%w: debits %s, statement declares %s", ErrReconciliation, s.Debits.StringFixed(2), s.DeclaredDebits.Decimal.StringFixed(2))
	}

	if s.OpeningBalance.Valid && s.ClosingBalance.Valid {
		net := decimal.Zero
		for _, c := range res.Candidates {
			net = net.Add(c.Amount)
		}
		want := s.OpeningBalance.Decimal.Add(net)
		if !closeTo(want, s.ClosingBalance.Decimal) {
			return fmt.Errorf("%w: opening %s plus movement %s is not closing %s", ErrReconciliation,
				s.OpeningBalance.Decimal.StringFixed(2), net.StringFixed(2), s.ClosingBalance.Decimal.StringFixed(2))
		}
	}

	prev := s.OpeningBalance
	for i, c := range res.Candidates {
		if c.Balance.Valid && prev.Valid {
			want := prev.Decimal.Add(c.Amount)
			if !closeTo(want, c.Balance.Decimal) {
				return fmt.Errorf("%w: balance chain breaks at line %d: expected %s, statement shows %s", ErrReconciliation,
					i+1, want.StringFixed(2), c.Balance.Decimal.StringFixed(2))
			}
		}
		switch {
		case c.Balance.Valid:
			prev = c.Balance
		case prev.Valid:
			prev = decimal.NewNullDecimal(prev.Decimal.Add(c.Amount))
		}
	}
	return nil
}

// balanceTolerance is the absolute difference allowed between a running
// balance and the one derived from its predecessor.
var balanceTolerance = decimal.New(1, -6)

// closeTo reports whether a and b differ by at most balanceTolerance.
func closeTo(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(balanceTolerance)
}

// within reports whether a and b differ by at most tolerance relative to the
// larger magnitude.
func within(a, b, tolerance decimal.Decimal) bool {
	if a.Equal(b) {
		return true
	}
	scale := decimal.Max(a.Abs(), b.Abs())
	return a.Sub(b).Abs().LessThanOrEqual(scale.Mul(tolerance))
}
