package parser

import "strings"

// Fields is the alias table: for every logical field, the header names a raw
// record may use for it, in priority order. The first alias present wins.
type Fields struct {
	ID        []string `mapstructure:"id" yaml:"id"`
	Child     []string `mapstructure:"child" yaml:"child"`
	Date      []string `mapstructure:"date" yaml:"date"`
	Amount    []string `mapstructure:"amount" yaml:"amount"`
	Vendor    []string `mapstructure:"vendor" yaml:"vendor"`
	Exclude   []string `mapstructure:"exclude" yaml:"exclude"`
	Separator string   `mapstructure:"separator" yaml:"separator"`
}

// ExternalFields matches the account debit worksheets.
func ExternalFields() Fields {
	return Fields{
		ID:        []string{"ID", "record_id", "Bill", "Bill No", "Bill Number", "Ref No", "Num"},
		Child:     []string{"Child", "child_id", "Line", "Line No", "Sub ID"},
		Date:      []string{"Date", "Payment Date", "Txn Date", "TxnDate"},
		Amount:    []string{"Amount", "Amount to Pay", "amount_to_pay", "Paid Amount", "Payment"},
		Vendor:    []string{"Vendor", "Payee", "Name"},
		Exclude:   []string{"Comment", "Comments", "Category", "Notes", "Memo"},
		Separator: " - ",
	}
}

// LedgerFields matches records read back from the ledger, where the id
// lives in the memo.
func LedgerFields() Fields {
	return Fields{
		ID:        []string{"Memo", "id"},
		Date:      []string{"Date", "TxnDate"},
		Amount:    []string{"Amount", "TotalAmount"},
		Vendor:    []string{"Vendor", "Payee", "PayeeEntityRef"},
		Separator: " - ",
	}
}

// Merge overlays non-empty alias lists from o onto f.
func (f Fields) Merge(o Fields) Fields {
	pick := func(a, b []string) []string {
		if len(b) > 0 {
			return b
		}
		return a
	}
	f.ID = pick(f.ID, o.ID)
	f.Child = pick(f.Child, o.Child)
	f.Date = pick(f.Date, o.Date)
	f.Amount = pick(f.Amount, o.Amount)
	f.Vendor = pick(f.Vendor, o.Vendor)
	f.Exclude = pick(f.Exclude, o.Exclude)
	if o.Separator != "" {
		f.Separator = o.Separator
	}
	return f
}

// aliases is a resolved alias list: header names folded for lookup.
type aliases []string

func fold(names []string) aliases {
	out := make(aliases, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		k := foldKey(n)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

func foldKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// record is a raw record indexed by folded header name.
type record map[string]any

func index(raw map[string]any) record {
	r := make(record, len(raw))
	for k, v := range raw {
		fk := foldKey(k)
		if _, ok := r[fk]; ok && v == nil {
			continue
		}
		r[fk] = v
	}
	return r
}

// lookup returns the value of the first alias present with a non-blank value.
func (r record) lookup(a aliases) (string, any, bool) {
	for _, name := range a {
		v, ok := r[name]
		if !ok || isBlank(v) {
			continue
		}
		return name, v, true
	}
	return "", nil, false
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}
