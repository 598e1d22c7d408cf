package sanitize

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize_FencedArrayWithExtraText(t *testing.T) {
	raw := "```json\n[{\"date\":\"2025-03-01\",\"description\":\"Salary\",\"amount\":\"₹50,000.00\",\"type\":\"credit\"}]\n``` Extra text"

	got, err := Sanitize(raw)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2025-03-01", got[0]["date"])
	assert.Equal(t, "Salary", got[0]["description"])
	assert.Equal(t, json.Number("50000.00"), got[0]["amount"])
	assert.Equal(t, "credit", got[0]["type"])
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantCount int
		wantErr   bool
	}{
		{
			name:      "clean array",
			raw:       `[{"date":"2025-01-02","description":"Tea","amount":20.5,"type":"debit"}]`,
			wantCount: 1,
		},
		{
			name:      "prose around array",
			raw:       "Here are the transactions you asked for:\n[{\"date\":\"2025-01-02\",\"amount\":1}]\nLet me know if you need more.",
			wantCount: 1,
		},
		{
			name:      "bare currency and separators in numbers",
			raw:       `[{"date":"2025-01-02","amount": ₹1,23,456.78},{"date":"2025-01-03","amount": Rs. 2,000.00}]`,
			wantCount: 2,
		},
		{
			name:      "trailing commas and comments",
			raw:       "[\n  {\"date\":\"2025-01-02\", \"amount\": 10, }, // first\n  /* second */ {\"date\":\"2025-01-03\", \"amount\": 20},\n]",
			wantCount: 2,
		},
		{
			name:      "control characters inside strings",
			raw:       "[{\"date\":\"2025-01-02\",\"description\":\"line\x01one\ttwo\",\"amount\":5}]",
			wantCount: 1,
		},
		{
			name:      "truncated tail recovers complete objects",
			raw:       `[{"date":"2025-01-02","amount":1},{"date":"2025-01-03","amount":2},{"date":"2025-01-0`,
			wantCount: 2,
		},
		{
			name:      "one broken object among good ones",
			raw:       `[{"date":"2025-01-02","amount":1},{"date": oops},{"date":"2025-01-04","amount":4}]`,
			wantCount: 2,
		},
		{
			name:      "several arrays from chunked output",
			raw:       "[{\"date\":\"2025-01-02\",\"amount\":1}]\n[{\"date\":\"2025-01-03\",\"amount\":2},{\"date\":\"2025-01-04\",\"amount\":3}]",
			wantCount: 3,
		},
		{
			name:      "wrapped in an object",
			raw:       `{"transactions":[{"date":"2025-01-02","amount":1}]}`,
			wantCount: 1,
		},
		{
			name:      "objects without an array",
			raw:       `{"date":"2025-01-02","amount":1} and {"date":"2025-01-03","amount":2}`,
			wantCount: 2,
		},
		{
			name:      "brackets inside strings",
			raw:       `[{"date":"2025-01-02","description":"REF [123] done]","amount":1}]`,
			wantCount: 1,
		},
		{
			name:      "empty array",
			raw:       "```json\n[]\n```",
			wantCount: 0,
		},
		{
			name:    "refusal prose",
			raw:     "I'm sorry, I cannot read this statement.",
			wantErr: true,
		},
		{
			name:    "garbage array",
			raw:     "[this is not json]",
			wantErr: true,
		},
		{
			name:    "empty",
			raw:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sanitize(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoJSON)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.wantCount)
		})
	}
}

func TestSanitize_PreservesOrderAndValues(t *testing.T) {
	raw := `[{"date":"2025-01-02","amount": ₹1,23,456.78},{"date":"2025-01-03","amount": "$2,000.00"}]`

	got, err := Sanitize(raw)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, json.Number("123456.78"), got[0]["amount"])
	assert.Equal(t, json.Number("2000.00"), got[1]["amount"])
	assert.Equal(t, "2025-01-03", got[1]["date"])
}

func TestSanitize_LeavesPlainStringsAlone(t *testing.T) {
	raw := `[{"date":"2025-01-02","description":"100.00","reference":"12,345","amount":1}]`

	got, err := Sanitize(raw)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "100.00", got[0]["description"])
	assert.Equal(t, "12,345", got[0]["reference"])
}

func TestSanitize_RewritesOnlyAmountFields(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string
		want  interface{}
	}{
		{name: "numeric description", raw: `[{"description":"1,500","amount":"₹1,500.00"}]`, field: "description", want: "1,500"},
		{name: "amount beside numeric description", raw: `[{"description":"1,500","amount":"₹1,500.00"}]`, field: "amount", want: json.Number("1500.00")},
		{name: "currency in description", raw: `[{"description":"Rs. 200 cashback","amount":200}]`, field: "description", want: "Rs. 200 cashback"},
		{name: "balance", raw: `[{"amount":1,"balance":"INR 1,23,456.00"}]`, field: "balance", want: json.Number("123456.00")},
		{name: "balance_after", raw: `[{"amount":1,"balance_after":"₹ 9,999.99"}]`, field: "balance_after", want: json.Number("9999.99")},
		{name: "key case", raw: `[{"Amount":"$2,000.00"}]`, field: "Amount", want: json.Number("2000.00")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sanitize(tt.raw)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0][tt.field])
		})
	}
}

// Serializing valid records with injected currency symbols, separators and
// trailing prose must give back the same count and the same field values.
func TestSanitize_RoundTrip(t *testing.T) {
	type txn struct {
		date, desc, typ string
		amount          string
	}
	records := []txn{
		{"2025-03-01", "Salary", "credit", "50000.00"},
		{"2025-03-02", "Rent for March", "debit", "18500.00"},
		{"2025-03-03", "Coffee, \"large\"", "debit", "240.50"},
		{"2025-03-04", "Refund [order 42]", "credit", "1234567.89"},
		{"2025-03-05", "ATM", "debit", "500.00"},
		{"2025-03-06", "1,500", "debit", "1500.00"},
		{"2025-03-07", "₹99 plan", "debit", "99.00"},
	}
	decorate := []func(string) string{
		func(a string) string { return `"₹` + group(a) + `"` },
		func(a string) string { return "Rs. " + group(a) },
		func(a string) string { return `"INR ` + group(a) + `"` },
		func(a string) string { return "$" + a },
		func(a string) string { return group(a) },
	}

	var parts []string
	for i, r := range records {
		desc, _ := json.Marshal(r.desc)
		parts = append(parts, fmt.Sprintf(`{"date":%q,"description":%s,"amount":%s,"type":%q}`,
			r.date, desc, decorate[i%len(decorate)](r.amount), r.typ))
	}
	raw := "Sure! Here is the data:\n```json\n[" + strings.Join(parts, ",\n") + "]\n```\nAll amounts are in INR."

	got, err := Sanitize(raw)
	require.NoError(t, err)
	require.Len(t, got, len(records))
	for i, r := range records {
		assert.Equal(t, r.date, got[i]["date"], "record %d date", i)
		assert.Equal(t, r.desc, got[i]["description"], "record %d description", i)
		assert.Equal(t, json.Number(r.amount), got[i]["amount"], "record %d amount", i)
		assert.Equal(t, r.typ, got[i]["type"], "record %d type", i)
	}
}

// group inserts thousands separators into a plain decimal string.
func group(a string) string {
	intPart, frac := a, ""
	if i := strings.IndexByte(a, '.'); i >= 0 {
		intPart, frac = a[:i], a[i:]
	}
	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String() + frac
}

func TestArraySpans(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "none", in: "no arrays", want: nil},
		{name: "one", in: "x [1,[2]] y", want: []string{"[1,[2]]"}},
		{name: "two", in: "[1] and [2]", want: []string{"[1]", "[2]"}},
		{name: "unterminated", in: "[1, [2", want: []string{"[1, [2"}},
		{name: "quoted bracket", in: `["]"]`, want: []string{`["]"]`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, arraySpans(tt.in))
		})
	}
}
