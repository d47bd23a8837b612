package compare

import (
	"github.com/shopspring/decimal"

	"github.com/yurifrl/paybills/pkg/models"
)

// Tolerance is the largest amount difference still treated as equal: one cent.
var Tolerance = decimal.New(1, -2)

// AmountsEqual reports whether a and b differ by at most one cent.
func AmountsEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// Equal compares the external and ledger side of the same record using the
// two fields that are stable across systems: the amount, within Tolerance,
// and the calendar date. Vendor names are populated inconsistently upstream
// and do not take part.
func Equal(external, ledger models.Payment) bool {
	if !AmountsEqual(external.Amount, ledger.Amount) {
		return false
	}
	return models.NewDate(external.Date).Equal(models.NewDate(ledger.Date))
}
