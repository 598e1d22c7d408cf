package domain

import (
	"time"
)

// BankID identifies the issuing bank of a statement.
type BankID string

const (
	BankUnknown BankID = "unknown"
	BankHDFC    BankID = "hdfc"
	BankFederal BankID = "federal"
)

// DisplayName returns the human-readable bank name used in prompts and
// user-facing messages.
func (b BankID) DisplayName() string {
	switch b {
	case BankHDFC:
		return "HDFC Bank"
	case BankFederal:
		return "Federal Bank"
	default:
		return ""
	}
}

// AccountType identifies the kind of account a statement belongs to.
type AccountType string

const (
	AccountUnknown    AccountType = "unknown"
	AccountSavings    AccountType = "savings"
	AccountCreditCard AccountType = "credit_card"
)

// DisplayName returns the human-readable account type.
func (a AccountType) DisplayName() string {
	switch a {
	case AccountSavings:
		return "Savings Account"
	case AccountCreditCard:
		return "Credit Card"
	default:
		return "Account"
	}
}

// StatementProfile is the result of bank detection for one document.
type StatementProfile struct {
	Bank        BankID      `json:"bank"`
	AccountType AccountType `json:"account_type"`
	// Confidence is the fraction of the profile's markers found on the first page.
	Confidence float64 `json:"confidence"`
	// Hinted is set when the profile came from the caller's bank hint rather
	// than from the document text.
	Hinted bool `json:"hinted,omitempty"`
}

// Known reports whether a bank-specific parser exists for the profile.
func (p StatementProfile) Known() bool {
	return p.Bank != BankUnknown && p.Bank != "" && p.AccountType != AccountUnknown && p.AccountType != ""
}

// UnknownProfile is the detector's fallback when no marker set clears the threshold.
func UnknownProfile() StatementProfile {
	return StatementProfile{Bank: BankUnknown, AccountType: AccountUnknown}
}

// PendingBatch is an extraction result held for review until confirmed,
// discarded, or expired.
type PendingBatch struct {
	UploadID    string                 `json:"upload_id"`
	Profile     StatementProfile       `json:"profile"`
	BankName    string                 `json:"bank_name"`
	AccountName string                 `json:"account_name"`
	Candidates  []TransactionCandidate `json:"transactions"`
	CreatedAt   time.Time              `json:"created_at"`
	ExpiresAt   time.Time              `json:"expires_at"`
}

// Clone returns a deep copy of the batch.
func (b *PendingBatch) Clone() *PendingBatch {
	if b == nil {
		return nil
	}
	c := *b
	c.Candidates = CloneCandidates(b.Candidates)
	return &c
}
