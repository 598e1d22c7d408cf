// Package sanitize recovers transaction objects from generative model output.
//
// Model output is expected to contain a JSON array of transaction objects but
// routinely arrives wrapped in prose or markdown fences, with currency symbols
// and thousands separators inside numbers, comments, trailing commas, control
// characters, or a truncated tail. Sanitize is pure and does no I/O.
package sanitize

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dvloznov/statement-extractor/internal/domain"
)

// ErrNoJSON is returned when no transaction object could be recovered.
var ErrNoJSON = errors.New("no parsable transaction JSON in model output")

// Sanitize returns the transaction objects found in raw, in order.
//
// Every top-level array in raw is processed, so the concatenated output of
// several chunked calls yields all of their records. An array that does not
// parse as a whole is recovered object by object. A well-formed empty array
// yields an empty result and no error.
func Sanitize(raw string) ([]domain.RawRecord, error) {
	spans := arraySpans(raw)
	if len(spans) == 0 {
		records := recoverObjects(clean(raw))
		if len(records) == 0 {
			return nil, fmt.Errorf("Sanitize: %w", ErrNoJSON)
		}
		return records, nil
	}

	var records []domain.RawRecord
	sawEmptyArray := false
	for _, span := range spans {
		cleaned := clean(span)
		if items, ok := decodeArray(cleaned); ok {
			if len(items) == 0 {
				sawEmptyArray = true
			}
			records = append(records, items...)
			continue
		}
		records = append(records, recoverObjects(cleaned)...)
	}

	if len(records) == 0 && !sawEmptyArray {
		return nil, fmt.Errorf("Sanitize: %w", ErrNoJSON)
	}
	if records == nil {
		records = []domain.RawRecord{}
	}
	return records, nil
}

// arraySpans returns every top-level "[...]" span. Brackets inside strings
// are ignored once a span is open. An unterminated span runs to the end.
func arraySpans(s string) []string {
	var spans []string
	start, depth := -1, 0
	inString, escaped := false, false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if depth == 0 {
			if c == '[' {
				start, depth = i, 1
			}
			continue
		}
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				spans = append(spans, s[start:i+1])
				start = -1
			}
		}
	}
	if depth > 0 && start >= 0 {
		spans = append(spans, s[start:])
	}
	return spans
}

// objectSpans returns every complete top-level "{...}" span.
func objectSpans(s string) []string {
	var spans []string
	start, depth := -1, 0
	inString, escaped := false, false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				spans = append(spans, s[start:i+1])
			}
		}
	}
	return spans
}

func decodeArray(s string) ([]domain.RawRecord, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var items []interface{}
	if err := dec.Decode(&items); err != nil {
		return nil, false
	}
	out := make([]domain.RawRecord, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]interface{}); ok {
			out = append(out, domain.RawRecord(m))
		}
	}
	return out, true
}

func recoverObjects(s string) []domain.RawRecord {
	var out []domain.RawRecord
	for _, span := range objectSpans(s) {
		dec := json.NewDecoder(strings.NewReader(span))
		dec.UseNumber()
		var m map[string]interface{}
		if err := dec.Decode(&m); err != nil || m == nil {
			continue
		}
		out = append(out, domain.RawRecord(m))
	}
	return out
}

var (
	groupedNumber = regexp.MustCompile(`^-?\d{1,3}(?:,\d{2,3})+(?:\.\d+)?$`)
	plainNumber   = regexp.MustCompile(`^-?\d+(?:\.\d+)?$`)
)

// currencyMarkers are removed outside strings. Longer markers come first.
var currencyMarkers = []string{"INR", "Rs.", "Rs", "₹", "$", "£", "€"}

// amountKeys name the fields whose string values may be rewritten as numbers.
var amountKeys = map[string]bool{"amount": true, "balance": true, "balance_after": true}

// clean rewrites s so that encoding/json has a chance at it. String content is
// preserved except for control characters; a string under an amount key that
// holds a currency-marked or digit-grouped amount becomes a bare number.
func clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var last byte // last significant byte written outside strings
	var key string

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"':
			content, next := scanString(s, i)
			if last != ':' {
				key = content
			} else if amountKeys[strings.ToLower(strings.TrimSpace(key))] {
				if num, ok := moneyString(content); ok {
					b.WriteString(num)
					last = '0'
					i = next
					continue
				}
			}
			b.WriteByte('"')
			b.WriteString(content)
			b.WriteByte('"')
			last = '"'
			i = next

		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			nl := strings.IndexByte(s[i:], '\n')
			if nl < 0 {
				i = len(s)
			} else {
				i += nl
			}

		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
			} else {
				i += end + 4
			}

		case c == ',':
			if j := skipSpace(s, i+1); j < len(s) && (s[j] == ']' || s[j] == '}') {
				i++
				continue
			}
			b.WriteByte(c)
			last = c
			i++

		case c >= '0' && c <= '9':
			j := i
			for j < len(s) && (s[j] >= '0' && s[j] <= '9' || s[j] == ',' || s[j] == '.') {
				j++
			}
			run := strings.TrimRight(s[i:j], ",")
			j = i + len(run)
			lit := run
			if strings.Contains(run, ",") && groupedNumber.MatchString(run) {
				lit = strings.ReplaceAll(run, ",", "")
			}
			b.WriteString(lit)
			last = '0'
			i = j

		case c < 0x20 && c != '\n' && c != '\r' && c != '\t', c == 0x7f:
			i++

		case strings.HasPrefix(s[i:], "\ufeff"):
			i += len("\ufeff")

		default:
			if n := currencyPrefix(s[i:]); n > 0 {
				i += n
				continue
			}
			b.WriteByte(c)
			if c != ' ' && c != '\n' && c != '\r' && c != '\t' {
				last = c
			}
			i++
		}
	}
	return b.String()
}

// scanString reads the JSON string starting at the quote at s[i]. It returns
// the content with control characters replaced by spaces and the index after
// the closing quote. An unterminated string runs to the end.
func scanString(s string, i int) (string, int) {
	var b strings.Builder
	escaped := false
	for j := i + 1; j < len(s); j++ {
		c := s[j]
		switch {
		case escaped:
			escaped = false
			b.WriteByte(c)
		case c == '\\':
			escaped = true
			b.WriteByte(c)
		case c == '"':
			return b.String(), j + 1
		case c < 0x20 || c == 0x7f:
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), len(s)
}

// moneyString reports whether a string value is an amount such as "₹50,000.00"
// or "1,234.50" and returns it as a JSON number literal.
func moneyString(content string) (string, bool) {
	t := strings.TrimSpace(content)
	marked := false
	for _, m := range currencyMarkers {
		if strings.Contains(t, m) {
			t = strings.ReplaceAll(t, m, "")
			marked = true
		}
	}
	t = strings.ReplaceAll(t, " ", "")
	negative := strings.HasPrefix(t, "-")
	t = strings.TrimPrefix(t, "-")

	grouped := strings.Contains(t, ",") && groupedNumber.MatchString(t)
	if !grouped && !(marked && plainNumber.MatchString(t)) {
		return "", false
	}
	num := strings.ReplaceAll(t, ",", "")
	if negative {
		num = "-" + num
	}
	return num, true
}

func currencyPrefix(s string) int {
	for _, m := range currencyMarkers {
		if strings.HasPrefix(s, m) {
			return len(m)
		}
	}
	return 0
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\n' || s[i] == '\r' || s[i] == '\t') {
		i++
	}
	return i
}
