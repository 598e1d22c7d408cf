package validate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-extractor/internal/domain"
	"github.com/dvloznov/statement-extractor/internal/normalize"
)

// firstKey returns the value of the first key present in m.
func firstKey(m domain.RawRecord, keys ...string) (interface{}, string, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, k, true
		}
	}
	return nil, "", false
}

func getStringField(m domain.RawRecord, required bool, keys ...string) (string, error) {
	v, key, ok := firstKey(m, keys...)
	if !ok {
		if required {
			return "", fmt.Errorf("missing required field %q", keys[0])
		}
		return "", nil
	}
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case json.Number:
		s = val.String()
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return "", fmt.Errorf("field %q has type %T, want string", key, v)
	}
	if required && strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("required field %q is empty", key)
	}
	return s, nil
}

func getAmountField(m domain.RawRecord, required bool, keys ...string) (decimal.NullDecimal, error) {
	v, key, ok := firstKey(m, keys...)
	if !ok {
		if required {
			return decimal.NullDecimal{}, fmt.Errorf("missing required field %q", keys[0])
		}
		return decimal.NullDecimal{}, nil
	}

	var d decimal.Decimal
	var err error
	switch val := v.(type) {
	case json.Number:
		d, err = decimal.NewFromString(val.String())
	case float64:
		d = decimal.NewFromFloat(val)
	case int:
		d = decimal.NewFromInt(int64(val))
	case string:
		amount, marker := normalize.SplitDirection(val)
		d, err = normalize.ParseAmount(amount)
		if err == nil && marker == "dr" {
			d = d.Abs().Neg()
		}
	default:
		return decimal.NullDecimal{}, fmt.Errorf("field %q has type %T, want number", key, v)
	}
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("field %q: %w", key, err)
	}
	return decimal.NewNullDecimal(d), nil
}

// parseDirection reads a record's type field. Anything that does not name
// money coming in is a debit.
func parseDirection(s string) domain.Direction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "credit", "cr", "income", "deposit", "deposits":
		return domain.DirectionCredit
	default:
		return domain.DirectionDebit
	}
}
