package parser

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var amountReplacer = strings.NewReplacer("$", "", ",", "", " ", "")

// ParseAmount coerces numeric values and numeric strings into a decimal.
// Currency symbols and thousands separators are dropped; anything else that
// is not a number is rejected.
func ParseAmount(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case *decimal.Decimal:
		if t == nil {
			return decimal.Zero, ErrNoAmount
		}
		return *t, nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Zero, fmt.Errorf("amount %v is not a number", t)
		}
		return decimal.NewFromFloat(t), nil
	case float32:
		return ParseAmount(float64(t))
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case int32:
		return decimal.NewFromInt32(t), nil
	case string:
		return parseAmountString(t)
	case nil:
		return decimal.Zero, ErrNoAmount
	}
	return decimal.Zero, fmt.Errorf("unsupported amount type %T", v)
}

func parseAmountString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrNoAmount
	}
	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	if negative {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(amountReplacer.Replace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q is not a number", s)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}
