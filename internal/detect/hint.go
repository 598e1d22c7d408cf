package detect

import (
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/dvloznov/statement-extractor/internal/domain"
)

type hintTarget struct {
	name    string
	bank    domain.BankID
	account domain.AccountType
}

var hintTargets = []hintTarget{
	{name: "hdfc bank credit card", bank: domain.BankHDFC, account: domain.AccountCreditCard},
	{name: "hdfc credit card", bank: domain.BankHDFC, account: domain.AccountCreditCard},
	{name: "hdfc bank", bank: domain.BankHDFC, account: domain.AccountSavings},
	{name: "hdfc savings", bank: domain.BankHDFC, account: domain.AccountSavings},
	{name: "federal bank", bank: domain.BankFederal, account: domain.AccountSavings},
	{name: "federal savings", bank: domain.BankFederal, account: domain.AccountSavings},
}

// ResolveHint maps caller-supplied free text such as "HDFC" or "Federal Bank"
// plus an account type hint to a profile. The account type hint, when it
// names an account type, overrides the one implied by the bank hint.
func ResolveHint(bankHint, accountTypeHint string) (domain.StatementProfile, bool) {
	bankHint = strings.TrimSpace(bankHint)
	if bankHint == "" {
		return domain.UnknownProfile(), false
	}

	names := make([]string, len(hintTargets))
	for i, t := range hintTargets {
		names[i] = t.name
	}

	ranks := fuzzy.RankFindNormalizedFold(bankHint, names)
	if len(ranks) == 0 {
		return domain.UnknownProfile(), false
	}
	// Lowest distance first; equal distances keep declaration order.
	best := ranks[0]
	for _, r := range ranks[1:] {
		if r.Distance < best.Distance || (r.Distance == best.Distance && r.OriginalIndex < best.OriginalIndex) {
			best = r
		}
	}

	target := hintTargets[best.OriginalIndex]
	profile := domain.StatementProfile{
		Bank:        target.bank,
		AccountType: target.account,
		Hinted:      true,
	}
	if at := ParseAccountType(accountTypeHint); at != domain.AccountUnknown {
		profile.AccountType = at
	}
	return profile, true
}

// ParseAccountType reads an account type hint such as "Savings Account" or
// "credit_card".
func ParseAccountType(hint string) domain.AccountType {
	h := strings.ToLower(strings.TrimSpace(hint))
	switch {
	case h == "":
		return domain.AccountUnknown
	case strings.Contains(h, "credit"), h == "cc":
		return domain.AccountCreditCard
	case strings.Contains(h, "saving"):
		return domain.AccountSavings
	default:
		return domain.AccountUnknown
	}
}
