package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ResolveID derives the join key from a parent identifier and an optional
// child component. Keys are opaque trimmed strings: "0042" and "42" differ.
//
// With a child the key is "<parent>-<child>". Without one, a parent holding
// the separator (e.g. "PARENT - CHILD") is cut at its first occurrence and
// the left segment is used.
func ResolveID(parent, child, separator string) string {
	parent = strings.TrimSpace(parent)
	child = strings.TrimSpace(child)
	if parent == "" {
		return ""
	}
	if child != "" {
		return parent + "-" + child
	}
	if separator != "" {
		if left, _, found := strings.Cut(parent, separator); found {
			return strings.TrimSpace(left)
		}
	}
	return parent
}

// idString renders an identifier cell without numeric coercion beyond what
// the spreadsheet already did: integral floats lose their ".0".
func idString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case decimal.Decimal:
		return t.String()
	}
	return fmt.Sprint(v)
}
