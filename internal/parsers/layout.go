package parsers

import (
	"regexp"
	"strings"

	"github.com/dvloznov/statement-extractor/internal/domain"
)

// amountPat matches one money amount with an optional currency prefix.
const amountPat = `(?:₹\s?|Rs\.?\s?|INR\s?)?\d[\d,]*\.\d{2}`

// markerPat is an optional Cr/Dr suffix. It is captured as "dir".
const markerPat = `(?:\s*(?P<dir>(?i:cr|dr))\.?)?`

// balanceMarkerPat is an optional Cr/Dr suffix after a running balance.
const balanceMarkerPat = `(?:\s*(?i:cr|dr)\.?)?`

type lineKind int

const (
	kindStandard lineKind = iota
	kindTransfer
	kindATM
	kindPlain
	kindMultiLine
)

type keywordRule struct {
	keyword   string
	direction domain.Direction
}

// layout describes one statement format. Marker lists are matched as
// substrings of the upper-cased line.
type layout struct {
	bank    domain.BankID
	account domain.AccountType

	skip  []string
	start []string
	stop  []string

	// keywords are tried in order; the first hit decides the direction.
	keywords []keywordRule
	// balances is false for formats without a running balance column.
	balances bool

	rules       []lineRule
	carry       *regexp.Regexp
	dateOnly    *regexp.Regexp
	dateDesc    *regexp.Regexp
	amountsOnly *regexp.Regexp
}

type lineRule struct {
	kind lineKind
	re   *regexp.Regexp
}

// compileLayout builds the line expressions of a layout around its date
// token pattern, which must contain a group named "date".
func compileLayout(l layout, datePat string) *layout {
	l.rules = []lineRule{
		{kindStandard, regexp.MustCompile(`^` + datePat + `\s+(?P<desc>.+?)\s+(?P<amount>` + amountPat + `)` + markerPat + `\s+(?P<balance>` + amountPat + `)` + balanceMarkerPat + `$`)},
		{kindTransfer, regexp.MustCompile(`^` + datePat + `\s+(?P<desc>.*?(?i:\b(?:NEFT|IMPS|UPI|RTGS|TRANSFER)\b).*?)\s+(?P<amount>` + amountPat + `)` + markerPat + `$`)},
		{kindATM, regexp.MustCompile(`^` + datePat + `\s+(?P<desc>(?i:ATM|ATW|NWD|CASH\s+WDL|CASH\s+WITHDRAWAL)\b.*?)\s+(?P<amount>` + amountPat + `)` + markerPat + `$`)},
		{kindPlain, regexp.MustCompile(`^` + datePat + `\s+(?P<desc>.+?)\s+(?P<amount>` + amountPat + `)` + markerPat + `$`)},
	}
	l.carry = regexp.MustCompile(`(?i)^(?:` + datePat + `\s+)?(?:B/F|BROUGHT\s+FORWARD|BALANCE\s+(?:B/F|FORWARD)|OPENING\s+BALANCE)\b.*?(?P<amount>` + amountPat + `)` + markerPat + `$`)
	l.dateOnly = regexp.MustCompile(`^` + datePat + `$`)
	l.dateDesc = regexp.MustCompile(`^` + datePat + `\s+(?P<desc>.+)$`)
	l.amountsOnly = regexp.MustCompile(`^(?P<amount>` + amountPat + `)` + markerPat + `(?:\s+(?P<balance>` + amountPat + `)` + balanceMarkerPat + `)?$`)
	return &l
}

func (l *layout) keywordDirection(upperDesc string) (domain.Direction, bool) {
	for _, r := range l.keywords {
		if strings.Contains(upperDesc, r.keyword) {
			return r.direction, true
		}
	}
	return "", false
}

// pageFooter matches page numbering lines such as "Page 2", "Page No. 3"
// or a trailing "Page 1 of 4".
var pageFooter = regexp.MustCompile(`^PAGE\s*(?:NO\s*\.?\s*:?\s*)?\d+\b|\bPAGE\s+\d+\s*(?:OF|/)\s*\d+$`)

func containsAny(upper string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(upper, m) {
			return true
		}
	}
	return false
}

func group(re *regexp.Regexp, m []string, name string) string {
	i := re.SubexpIndex(name)
	if i < 0 || i >= len(m) {
		return ""
	}
	return m[i]
}

var (
	hdfcSavings = compileLayout(layout{
		bank:    domain.BankHDFC,
		account: domain.AccountSavings,
		skip: []string{
			"CONTACT US", "5AM - 6PM", "6PM - 5AM", "ISSUED BY",
			"DAY/NIGHT", "NARRATION", "WITHDRAWAL AMT", "STATEMENT OF ACCOUNT",
		},
		stop: []string{"STATEMENT SUMMARY", "CLOSING BALANCE"},
		keywords: []keywordRule{
			{"CREDIT", domain.DirectionCredit},
			{"SALARY", domain.DirectionCredit},
			{"INTEREST", domain.DirectionCredit},
			{"REFUND", domain.DirectionCredit},
			{"DEBIT", domain.DirectionDebit},
			{"ATM", domain.DirectionDebit},
			{"POS", domain.DirectionDebit},
			{"TRANSFER", domain.DirectionDebit},
			{"PAYMENT", domain.DirectionDebit},
		},
		balances: true,
	}, `(?P<date>\d{1,2}/\d{1,2}/\d{2,4})`)

	hdfcCreditCard = compileLayout(layout{
		bank:    domain.BankHDFC,
		account: domain.AccountCreditCard,
		skip:    []string{"TRANSACTION DESCRIPTION"},
		start:   []string{"DOMESTIC TRANSACTIONS"},
		stop:    []string{"REWARD POINTS SUMMARY", "IMPORTANT INFORMATION"},
	}, `(?P<date>\d{2}/\d{2}/\d{4})(?:\s+\d{2}:\d{2}(?::\d{2})?)?`)

	federalSavings = compileLayout(layout{
		bank:    domain.BankFederal,
		account: domain.AccountSavings,
		skip:    []string{"PARTICULARS", "CUSTOMER ID", "IFSC"},
		stop:    []string{"CLOSING BALANCE"},
		keywords: []keywordRule{
			{"POS/", domain.DirectionDebit},
			{"TO INTL", domain.DirectionDebit},
			{"CHRG/", domain.DirectionDebit},
			{"UPI/DR/", domain.DirectionDebit},
			{"IMPS/DR/", domain.DirectionDebit},
			{"NEFT/DR/", domain.DirectionDebit},
			{"TO ECM/", domain.DirectionDebit},
			{"UPI/CR/", domain.DirectionCredit},
			{"IMPS/CR/", domain.DirectionCredit},
			{"NEFT/CR/", domain.DirectionCredit},
			{"FOREXMARKUPREFUND/", domain.DirectionCredit},
		},
		balances: true,
	}, `(?P<date>\d{1,2}[ /-][A-Za-z]{3}(?:[ /-]\d{2,4})?|\d{2}/\d{2}/\d{4})`)
)

func hdfcSavingsLayout() *layout    { return hdfcSavings }
func hdfcCreditCardLayout() *layout { return hdfcCreditCard }
func federalSavingsLayout() *layout { return federalSavings }
