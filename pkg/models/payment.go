package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date layout used everywhere a date leaves the
// process (reports, ledger payloads, journal rows).
const DateLayout = "2006-01-02"

// Source tags where a Payment came from.
type Source string

const (
	SourceExternal Source = "external"
	SourceLedger   Source = "ledger"
)

// RawRecord is one row as handed over by a record source: field name to value.
// Values may be strings, numbers, decimals, time.Time or nil.
type RawRecord map[string]any

// Payment is the canonical bill payment both sources are normalised into.
type Payment struct {
	ID     string
	Date   time.Time
	Amount decimal.Decimal
	Vendor string
	Source Source
}

// NewDate truncates t to its calendar date in UTC.
func NewDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateString returns the ISO-8601 calendar date.
func (p Payment) DateString() string {
	return p.Date.Format(DateLayout)
}

// WithSource returns a copy of p relabelled with s.
func (p Payment) WithSource(s Source) Payment {
	p.Source = s
	return p
}

// Raw re-expresses the payment as a record with canonical field names.
func (p Payment) Raw() RawRecord {
	r := RawRecord{
		"id":     p.ID,
		"date":   p.DateString(),
		"amount": p.Amount,
	}
	if p.Vendor != "" {
		r["vendor"] = p.Vendor
	}
	return r
}

func (p Payment) String() string {
	return fmt.Sprintf("%s | %s | %-30s | %s", p.ID, p.DateString(), p.Vendor, p.Amount.StringFixed(2))
}

// Obligation is an open bill in the ledger that can receive a payment.
type Obligation struct {
	ID        string
	AmountDue decimal.Decimal
	Vendor    string
}

// Submission pairs a payment with the obligation it settles. Payment.Amount
// already holds the amount to submit.
type Submission struct {
	Payment      Payment
	ObligationID string
}
