package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConflictReason explains why a record ended up in the conflicts section.
type ConflictReason string

const (
	ReasonDataConflict ConflictReason = "data_conflict"
	ReasonOnlyInLedger ConflictReason = "payment_only_in_ledger"
)

// Conflict describes a record whose two sides disagree. A nil side means the
// record is absent from that source.
type Conflict struct {
	RecordID       string
	Reason         ConflictReason
	ExternalAmount *decimal.Decimal
	LedgerAmount   *decimal.Decimal
	ExternalDate   *time.Time
	LedgerDate     *time.Time
	ExternalVendor *string
	LedgerVendor   *string
}

// NewDataConflict captures both sides of a record present in both sources.
func NewDataConflict(external, ledger Payment) Conflict {
	return Conflict{
		RecordID:       external.ID,
		Reason:         ReasonDataConflict,
		ExternalAmount: &external.Amount,
		LedgerAmount:   &ledger.Amount,
		ExternalDate:   &external.Date,
		LedgerDate:     &ledger.Date,
		ExternalVendor: optional(external.Vendor),
		LedgerVendor:   optional(ledger.Vendor),
	}
}

// NewLedgerOnlyConflict re-expresses a ledger-only payment as a conflict.
func NewLedgerOnlyConflict(ledger Payment) Conflict {
	return Conflict{
		RecordID:     ledger.ID,
		Reason:       ReasonOnlyInLedger,
		LedgerAmount: &ledger.Amount,
		LedgerDate:   &ledger.Date,
		LedgerVendor: optional(ledger.Vendor),
	}
}

// DiffReport is the outcome of comparing the external source against the
// ledger. ExternalOnly and LedgerOnly are sorted by ID.
type DiffReport struct {
	ExternalOnly []Payment
	LedgerOnly   []Payment
	Conflicts    []Conflict
	MatchedCount int
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Skip records a row or candidate that was left out, and why.
type Skip struct {
	RecordID string
	Row      int
	Reason   string
}
