package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yurifrl/paybills/pkg/csv"
	"github.com/yurifrl/paybills/pkg/models"
)

type filters struct {
	startDate string
	endDate   string
	minAmount float64
	maxAmount float64
	vendor    string
}

// record is a normalized payment as a CSV row.
type record struct {
	models.Payment
}

func (r record) Values() []string {
	return []string{r.ID, r.DateString(), r.Amount.StringFixed(2), r.Vendor}
}

var recordHeader = []string{"id", "date", "amount", "vendor"}

func (f *filters) toFilterFunc() (csv.FilterFunc[record], error) {
	var start, end time.Time
	var err error
	if f.startDate != "" {
		if start, err = time.Parse(models.DateLayout, f.startDate); err != nil {
			return nil, fmt.Errorf("invalid --start: %w", err)
		}
	}
	if f.endDate != "" {
		if end, err = time.Parse(models.DateLayout, f.endDate); err != nil {
			return nil, fmt.Errorf("invalid --end: %w", err)
		}
	}
	minAmount := decimal.NewFromFloat(f.minAmount)
	maxAmount := decimal.NewFromFloat(f.maxAmount)

	return func(r record) bool {
		if !start.IsZero() && r.Date.Before(start) {
			return false
		}
		if !end.IsZero() && r.Date.After(end) {
			return false
		}
		if f.minAmount != 0 && r.Amount.LessThan(minAmount) {
			return false
		}
		if f.maxAmount != 0 && r.Amount.GreaterThan(maxAmount) {
			return false
		}
		if f.vendor != "" && !strings.Contains(strings.ToLower(r.Vendor), strings.ToLower(f.vendor)) {
			return false
		}
		return true
	}, nil
}

// recordsCSV renders payments sorted by date, keeping those the filters allow.
func recordsCSV(payments []models.Payment, f *filters) ([]byte, error) {
	filter, err := f.toFilterFunc()
	if err != nil {
		return nil, err
	}
	records := make([]record, len(payments))
	for i, p := range payments {
		records[i] = record{p}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})
	return csv.Create(recordHeader, records, filter)
}
