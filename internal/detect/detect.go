// Package detect identifies the issuing bank and account type of a statement
// from the text of its first page.
package detect

import (
	"strings"

	"github.com/cloudflare/ahocorasick"

	"github.com/dvloznov/statement-extractor/internal/domain"
)

// DefaultThreshold is the minimum number of distinct markers a profile must
// match on the first page.
const DefaultThreshold = 3

// Profile is a marker set for one bank and account type.
type Profile struct {
	Bank        domain.BankID
	AccountType domain.AccountType
	Markers     []string
}

// DefaultProfiles lists the supported statement profiles. Order matters: on
// equal scores the earlier profile wins, so the credit card profile sits
// ahead of the savings profile of the same bank.
var DefaultProfiles = []Profile{
	{
		Bank:        domain.BankHDFC,
		AccountType: domain.AccountCreditCard,
		Markers: []string{
			"HDFC BANK CREDIT CARD",
			"STATEMENT DATE",
			"PAYMENT DUE DATE",
			"DOMESTIC TRANSACTIONS",
			"TOTAL DUES",
			"MINIMUM AMOUNT DUE",
		},
	},
	{
		Bank:        domain.BankHDFC,
		AccountType: domain.AccountSavings,
		Markers: []string{
			"HDFC BANK",
			"SAVINGS ACCOUNT",
			"ACCOUNT NUMBER",
			"STATEMENT PERIOD",
			"OPENING BALANCE",
			"CLOSING BALANCE",
		},
	},
	{
		Bank:        domain.BankFederal,
		AccountType: domain.AccountSavings,
		Markers: []string{
			"FEDERAL BANK",
			"SAVINGS A/C NO",
			"FDRL",
			"TRANSACTION DETAILS",
			"OPENING BALANCE",
			"CLOSING BALANCE",
		},
	},
}

type compiledProfile struct {
	profile Profile
	matcher *ahocorasick.Matcher
}

// Detector scores first-page text against a fixed list of profiles.
// A Detector is immutable after construction and safe for concurrent use.
type Detector struct {
	profiles  []compiledProfile
	threshold int
}

// NewDetector builds a detector over profiles. A threshold below 1 uses
// DefaultThreshold.
func NewDetector(profiles []Profile, threshold int) *Detector {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	d := &Detector{threshold: threshold}
	for _, p := range profiles {
		markers := make([]string, 0, len(p.Markers))
		for _, m := range p.Markers {
			if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
				markers = append(markers, m)
			}
		}
		p.Markers = markers
		d.profiles = append(d.profiles, compiledProfile{
			profile: p,
			matcher: ahocorasick.NewStringMatcher(markers),
		})
	}
	return d
}

// NewDefaultDetector returns a detector over DefaultProfiles.
func NewDefaultDetector() *Detector {
	return NewDetector(DefaultProfiles, DefaultThreshold)
}

// Score is the number of distinct markers of one profile found on a page.
type Score struct {
	Bank        domain.BankID
	AccountType domain.AccountType
	Matched     int
	Total       int
}

// Scores returns the marker score of every profile, in declaration order.
func (d *Detector) Scores(firstPage string) []Score {
	text := []byte(strings.ToUpper(firstPage))
	scores := make([]Score, 0, len(d.profiles))
	for _, cp := range d.profiles {
		scores = append(scores, Score{
			Bank:        cp.profile.Bank,
			AccountType: cp.profile.AccountType,
			Matched:     len(cp.matcher.MatchThreadSafe(text)),
			Total:       len(cp.profile.Markers),
		})
	}
	return scores
}

// Detect inspects only the first page. It returns the highest-scoring profile
// that reaches the threshold, or the unknown profile when none does.
func (d *Detector) Detect(pages []string) domain.StatementProfile {
	if len(pages) == 0 {
		return domain.UnknownProfile()
	}

	best := -1
	var bestScore Score
	for i, s := range d.Scores(pages[0]) {
		if s.Matched < d.threshold {
			continue
		}
		// Strictly greater keeps the earlier profile on ties.
		if best == -1 || s.Matched > bestScore.Matched {
			best = i
			bestScore = s
		}
	}
	if best == -1 {
		return domain.UnknownProfile()
	}

	confidence := 0.0
	if bestScore.Total > 0 {
		confidence = float64(bestScore.Matched) / float64(bestScore.Total)
	}
	return domain.StatementProfile{
		Bank:        bestScore.Bank,
		AccountType: bestScore.AccountType,
		Confidence:  confidence,
	}
}
