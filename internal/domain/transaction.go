package domain

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Direction is the canonical money-flow direction of a transaction.
type Direction string

const (
	// DirectionCredit is money in. Credit amounts are positive.
	DirectionCredit Direction = "credit"
	// DirectionDebit is money out. Debit amounts are negative.
	DirectionDebit Direction = "debit"
)

// Valid reports whether d is one of the two canonical directions.
func (d Direction) Valid() bool {
	return d == DirectionCredit || d == DirectionDebit
}

// SourceStage records which extraction path produced a candidate.
type SourceStage string

const (
	// SourcePattern marks candidates produced by a deterministic bank parser.
	SourcePattern SourceStage = "pattern"
	// SourceGenerative marks candidates recovered from model output.
	SourceGenerative SourceStage = "generative"
)

// TransactionCandidate is one normalized transaction awaiting review.
// Amount is signed: positive for credits, negative for debits.
type TransactionCandidate struct {
	Date        civil.Date          `json:"date"`
	Description string              `json:"description"`
	Amount      decimal.Decimal     `json:"amount"`
	Balance     decimal.NullDecimal `json:"balance"`
	Direction   Direction           `json:"type"`
	Source      SourceStage         `json:"source"`
	Category    string              `json:"category,omitempty"`
}

// RawRecord is one loosely typed transaction object as recovered from model
// output, before validation.
type RawRecord map[string]interface{}

// CloneCandidates returns a copy of cs that shares no backing array with it.
func CloneCandidates(cs []TransactionCandidate) []TransactionCandidate {
	if cs == nil {
		return nil
	}
	out := make([]TransactionCandidate, len(cs))
	copy(out, cs)
	return out
}
