package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/yurifrl/paybills/pkg/models"
)

// dateLayouts are tried in order after the ISO prefix. First success wins.
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"1/2/2006",
	"1/2/06",
	"01-02-06",
	"1/2/2006 15:04",
	"1/2/2006 3:04:05 PM",
	"2006/01/02",
	"2-Jan-06",
	"2-Jan-2006",
	"Jan 2, 2006",
}

// Excel serial days between 1950-01-01 and 2100-01-01; anything outside is
// not treated as a date.
const (
	minSerialDate = 18264
	maxSerialDate = 73051
)

// ParseDate coerces a spreadsheet or ledger value into a calendar date.
func ParseDate(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return models.NewDate(t), nil
	case *time.Time:
		if t == nil {
			return time.Time{}, ErrNoDate
		}
		return models.NewDate(*t), nil
	case float64:
		return serialDate(t)
	case int:
		return serialDate(float64(t))
	case int64:
		return serialDate(float64(t))
	case string:
		return parseDateString(t)
	case fmt.Stringer:
		return parseDateString(t.String())
	case nil:
		return time.Time{}, ErrNoDate
	}
	return time.Time{}, fmt.Errorf("unsupported date type %T", v)
}

func parseDateString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrNoDate
	}
	if len(s) >= 10 {
		if d, err := time.Parse(models.DateLayout, s[:10]); err == nil {
			return d, nil
		}
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return models.NewDate(d), nil
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return serialDate(f)
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func serialDate(f float64) (time.Time, error) {
	if f < minSerialDate || f > maxSerialDate {
		return time.Time{}, fmt.Errorf("number %v is not a spreadsheet date", f)
	}
	d, err := excelize.ExcelDateToTime(f, false)
	if err != nil {
		return time.Time{}, err
	}
	return models.NewDate(d), nil
}
