// Package validate turns loosely typed transaction records into normalized
// candidates and enforces the per-record invariants.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-extractor/internal/categories"
	"github.com/dvloznov/statement-extractor/internal/domain"
	"github.com/dvloznov/statement-extractor/internal/normalize"
)

var (
	// ErrNoTransactions is returned when nothing survives validation.
	ErrNoTransactions = errors.New("no transactions after validation")
	// ErrInvalidRecord is returned when records were present but none, or an
	// edited one, could be normalized.
	ErrInvalidRecord = errors.New("invalid transaction record")
)

// Validator normalizes candidates against a category configuration.
type Validator struct {
	cats *categories.Config
}

// New creates a Validator. A nil configuration uses categories.Default().
func New(cats *categories.Config) *Validator {
	if cats == nil {
		cats = categories.Default()
	}
	return &Validator{cats: cats}
}

// Categories returns the configuration the validator uses.
func (v *Validator) Categories() *categories.Config {
	return v.cats
}

// Rejected describes one record dropped by FromRecords.
type Rejected struct {
	Index  int
	Reason string
}

// FromRecords converts sanitized records into candidates. Day-month dates
// take their year from period, which may be the zero Period. Records with an
// unparsable date, an empty description, or a missing or zero amount are
// dropped and reported. If records were given but all were dropped, the
// error wraps ErrInvalidRecord.
func (v *Validator) FromRecords(records []domain.RawRecord, source domain.SourceStage, period normalize.Period) ([]domain.TransactionCandidate, []Rejected, error) {
	out := make([]domain.TransactionCandidate, 0, len(records))
	var rejected []Rejected

	for i, rec := range records {
		c, err := fromRecord(rec, source, period)
		if err != nil {
			rejected = append(rejected, Rejected{Index: i, Reason: err.Error()})
			continue
		}
		out = append(out, c)
	}

	if len(records) > 0 && len(out) == 0 {
		return nil, rejected, fmt.Errorf("FromRecords: all %d records rejected, first: %s: %w", len(records), rejected[0].Reason, ErrInvalidRecord)
	}
	return out, rejected, nil
}

func fromRecord(rec domain.RawRecord, source domain.SourceStage, period normalize.Period) (domain.TransactionCandidate, error) {
	dateStr, err := getStringField(rec, true, "date", "transaction_date")
	if err != nil {
		return domain.TransactionCandidate{}, err
	}
	date, err := normalize.ParseDateInPeriod(dateStr, period)
	if err != nil {
		return domain.TransactionCandidate{}, fmt.Errorf("invalid date %q: %w", dateStr, err)
	}

	desc, err := getStringField(rec, true, "description", "narration", "particulars")
	if err != nil {
		return domain.TransactionCandidate{}, err
	}

	amount, err := getAmountField(rec, true, "amount")
	if err != nil {
		return domain.TransactionCandidate{}, err
	}
	if amount.Decimal.IsZero() {
		return domain.TransactionCandidate{}, fmt.Errorf("amount is zero")
	}

	balance, err := getAmountField(rec, false, "balance", "balance_after")
	if err != nil {
		balance = decimal.NullDecimal{}
	}

	// Without a type the direction is left for Normalize to take from the sign.
	var dir domain.Direction
	if typ, _ := getStringField(rec, false, "type", "transaction_type"); strings.TrimSpace(typ) != "" {
		dir = parseDirection(typ)
	}

	category, _ := getStringField(rec, false, "category")

	return domain.TransactionCandidate{
		Date:        date,
		Description: desc,
		Amount:      amount.Decimal,
		Balance:     balance,
		Direction:   dir,
		Source:      source,
		Category:    strings.TrimSpace(category),
	}, nil
}

// Normalize canonicalizes candidates: it collapses whitespace in
// descriptions, rounds amounts to two places with the sign given by the
// direction, fills in categories from the keyword rules where the category is
// missing or does not fit the direction, and drops exact
// duplicates keeping the first. Zero amounts are dropped. Normalize is
// idempotent. An empty result wraps ErrNoTransactions; a candidate with no
// date or description wraps ErrInvalidRecord.
func (v *Validator) Normalize(cands []domain.TransactionCandidate) ([]domain.TransactionCandidate, error) {
	out := make([]domain.TransactionCandidate, 0, len(cands))
	seen := make(map[string]struct{}, len(cands))

	for i, c := range cands {
		c.Description = collapseSpace(c.Description)
		if c.Description == "" {
			return nil, fmt.Errorf("Normalize: transaction %d: empty description: %w", i, ErrInvalidRecord)
		}
		if !c.Date.IsValid() {
			return nil, fmt.Errorf("Normalize: transaction %d: invalid date: %w", i, ErrInvalidRecord)
		}

		amount := c.Amount.Round(2)
		if amount.IsZero() {
			continue
		}
		if !c.Direction.Valid() {
			if amount.IsNegative() {
				c.Direction = domain.DirectionDebit
			} else {
				c.Direction = domain.DirectionCredit
			}
		}
		amount = amount.Abs()
		if c.Direction == domain.DirectionDebit {
			amount = amount.Neg()
		}
		c.Amount = amount
		if c.Balance.Valid {
			c.Balance.Decimal = c.Balance.Decimal.Round(2)
		}

		c.Category = strings.TrimSpace(c.Category)
		if c.Category == "" || c.Category == categories.Uncategorized || !v.cats.KnownFor(c.Category, c.Direction) {
			c.Category = v.cats.Lookup(c.Description, c.Direction)
		}

		key := dedupeKey(c)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("Normalize: %w", ErrNoTransactions)
	}
	return out, nil
}

func dedupeKey(c domain.TransactionCandidate) string {
	return c.Date.String() + "|" + c.Amount.StringFixed(2) + "|" + strings.ToUpper(c.Description)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
