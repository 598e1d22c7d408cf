package parsers

import (
	"regexp"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-extractor/internal/domain"
	"github.com/dvloznov/statement-extractor/internal/normalize"
)

// row is a transaction line before its direction is known.
type row struct {
	kind      lineKind
	date      civil.Date
	desc      []string
	amount    decimal.Decimal
	hasAmount bool
	balance   decimal.NullDecimal
	marker    string
}

func (r *row) description() string {
	return strings.TrimSpace(strings.Join(r.desc, " "))
}

// machine walks statement lines. States:
//
//	seek      no row open; a date starts one, a single-line match emits one
//	open      a date (and maybe description) seen, waiting for the amount
//	amounted  amount seen, waiting for the balance or the next row
//
// After a row is emitted, an amount-only line fills a missing balance and a
// plain text line extends the description.
type machine struct {
	l      *layout
	period normalize.Period

	started bool
	stopped bool

	cur        *row
	rows       []*row
	continuing bool

	carry decimal.NullDecimal
}

var spaceRun = regexp.MustCompile(`\s+`)

func newMachine(l *layout, period normalize.Period) *machine {
	return &machine{l: l, period: period, started: len(l.start) == 0}
}

func (m *machine) run(pages []string) {
	for _, page := range pages {
		for _, raw := range strings.Split(page, "\n") {
			if m.stopped {
				break
			}
			m.line(raw)
		}
	}
	m.flush()
}

func (m *machine) line(raw string) {
	line := strings.TrimSpace(spaceRun.ReplaceAllString(raw, " "))
	if line == "" {
		return
	}
	upper := strings.ToUpper(line)

	if !m.started {
		m.started = containsAny(upper, m.l.start)
		return
	}
	if pageFooter.MatchString(upper) || containsAny(upper, m.l.skip) {
		m.continuing = false
		return
	}
	if (len(m.rows) > 0 || m.cur != nil) && containsAny(upper, m.l.stop) {
		m.flush()
		m.stopped = true
		return
	}

	switch {
	case m.carryForward(line):
	case m.singleLine(line):
	case m.dateLine(line):
	case m.amountLine(line):
	default:
		m.text(line)
	}
}

func (m *machine) parseDate(token string) (civil.Date, bool) {
	d, err := normalize.ParseDateInPeriod(token, m.period)
	if err != nil {
		return civil.Date{}, false
	}
	return d, true
}

func (m *machine) carryForward(line string) bool {
	match := m.l.carry.FindStringSubmatch(line)
	if match == nil {
		return false
	}
	if !m.carry.Valid {
		if amt, err := normalize.ParseAmount(group(m.l.carry, match, "amount")); err == nil {
			if strings.EqualFold(group(m.l.carry, match, "dir"), "dr") {
				amt = amt.Neg()
			}
			m.carry = decimal.NewNullDecimal(amt)
		}
	}
	m.continuing = false
	return true
}

func (m *machine) singleLine(line string) bool {
	for _, rule := range m.l.rules {
		match := rule.re.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		date, ok := m.parseDate(group(rule.re, match, "date"))
		if !ok {
			return false
		}
		amount, err := normalize.ParseAmount(group(rule.re, match, "amount"))
		if err != nil {
			continue
		}

		r := &row{
			kind:      rule.kind,
			date:      date,
			desc:      []string{group(rule.re, match, "desc")},
			amount:    amount.Abs(),
			hasAmount: true,
			marker:    strings.ToLower(group(rule.re, match, "dir")),
		}
		if bal := group(rule.re, match, "balance"); bal != "" && m.l.balances {
			if b, err := normalize.ParseAmount(bal); err == nil {
				r.balance = decimal.NewNullDecimal(b)
			}
		}

		m.flush()
		m.emit(r)
		return true
	}
	return false
}

func (m *machine) dateLine(line string) bool {
	if match := m.l.dateOnly.FindStringSubmatch(line); match != nil {
		date, ok := m.parseDate(group(m.l.dateOnly, match, "date"))
		if !ok {
			return false
		}
		m.flush()
		m.cur = &row{kind: kindMultiLine, date: date}
		return true
	}
	if match := m.l.dateDesc.FindStringSubmatch(line); match != nil {
		date, ok := m.parseDate(group(m.l.dateDesc, match, "date"))
		if !ok {
			return false
		}
		m.flush()
		m.cur = &row{kind: kindMultiLine, date: date, desc: []string{group(m.l.dateDesc, match, "desc")}}
		return true
	}
	return false
}

func (m *machine) amountLine(line string) bool {
	match := m.l.amountsOnly.FindStringSubmatch(line)
	if match == nil {
		return false
	}
	first, err := normalize.ParseAmount(group(m.l.amountsOnly, match, "amount"))
	if err != nil {
		return false
	}
	second := decimal.NullDecimal{}
	if s := group(m.l.amountsOnly, match, "balance"); s != "" {
		if b, err := normalize.ParseAmount(s); err == nil {
			second = decimal.NewNullDecimal(b)
		}
	}

	switch {
	case m.cur != nil && !m.cur.hasAmount:
		m.cur.amount = first.Abs()
		m.cur.hasAmount = true
		m.cur.marker = strings.ToLower(group(m.l.amountsOnly, match, "dir"))
		if second.Valid && m.l.balances {
			m.cur.balance = second
			m.flush()
		} else if !m.l.balances {
			m.flush()
		}
	case m.cur != nil:
		if m.l.balances {
			m.cur.balance = decimal.NewNullDecimal(first)
		}
		m.flush()
	case m.continuing && m.l.balances && len(m.rows) > 0:
		last := m.rows[len(m.rows)-1]
		if !last.balance.Valid {
			last.balance = decimal.NewNullDecimal(first)
		}
		m.continuing = false
	}
	return true
}

func (m *machine) text(line string) {
	switch {
	case m.cur != nil:
		m.cur.desc = append(m.cur.desc, line)
	case m.continuing && len(m.rows) > 0:
		last := m.rows[len(m.rows)-1]
		last.desc = append(last.desc, line)
	}
}

func (m *machine) emit(r *row) {
	if r.description() == "" || isCarryDescription(r.description()) {
		if isCarryDescription(r.description()) && !m.carry.Valid {
			if r.balance.Valid {
				m.carry = r.balance
			} else {
				m.carry = decimal.NewNullDecimal(r.amount)
			}
		}
		m.continuing = false
		return
	}
	m.rows = append(m.rows, r)
	m.continuing = true
}

func (m *machine) flush() {
	if m.cur == nil {
		return
	}
	r := m.cur
	m.cur = nil
	if r.hasAmount {
		m.emit(r)
	}
}

func isCarryDescription(desc string) bool {
	u := strings.ToUpper(desc)
	return u == "B/F" || strings.HasPrefix(u, "BROUGHT FORWARD") || strings.HasPrefix(u, "BALANCE FORWARD") || strings.HasPrefix(u, "OPENING BALANCE")
}

// resolve assigns directions and signs. Precedence: explicit Cr/Dr marker,
// bank keyword rules, ATM lines, running-balance delta, then debit.
func resolve(l *layout, rows []*row, opening decimal.NullDecimal) []domain.TransactionCandidate {
	out := make([]domain.TransactionCandidate, 0, len(rows))
	prev := opening

	for _, r := range rows {
		desc := r.description()
		dir, ok := markerDirection(r.marker)
		if !ok {
			dir, ok = l.keywordDirection(strings.ToUpper(desc))
		}
		if !ok && r.kind == kindATM {
			dir, ok = domain.DirectionDebit, true
		}
		if !ok && r.balance.Valid && prev.Valid {
			switch r.balance.Decimal.Cmp(prev.Decimal) {
			case 1:
				dir, ok = domain.DirectionCredit, true
			case -1:
				dir, ok = domain.DirectionDebit, true
			}
		}
		if !ok {
			dir = domain.DirectionDebit
		}

		amount := r.amount
		if dir == domain.DirectionDebit {
			amount = amount.Neg()
		}

		switch {
		case r.balance.Valid:
			prev = r.balance
		case prev.Valid:
			prev = decimal.NewNullDecimal(prev.Decimal.Add(amount))
		}

		out = append(out, domain.TransactionCandidate{
			Date:        r.date,
			Description: desc,
			Amount:      amount,
			Balance:     r.balance,
			Direction:   dir,
			Source:      domain.SourcePattern,
		})
	}
	return out
}

func markerDirection(marker string) (domain.Direction, bool) {
	switch marker {
	case "cr":
		return domain.DirectionCredit, true
	case "dr":
		return domain.DirectionDebit, true
	default:
		return "", false
	}
}
