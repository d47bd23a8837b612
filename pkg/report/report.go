// Package report turns a reconciliation run into the payload handed to the
// report sinks.
package report

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yurifrl/paybills/pkg/models"
	"github.com/yurifrl/paybills/pkg/writeback"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Skip stages.
const (
	StageNormalize = "normalize"
	StageWriteBack = "writeback"
)

// Payload is the persisted result of one run. Dates are ISO calendar dates
// and amounts are two-decimal numbers.
type Payload struct {
	Status            string       `json:"status"`
	RunID             string       `json:"run_id"`
	GeneratedAt       time.Time    `json:"generated_at"`
	Workbook          string       `json:"workbook,omitempty"`
	Sheet             string       `json:"sheet,omitempty"`
	PaymentsAdded     []PaymentRow `json:"payments_added"`
	PaymentsPlanned   []PaymentRow `json:"payments_planned,omitempty"`
	Conflicts         []Conflict   `json:"conflicts"`
	MatchedCount      int          `json:"matched_count"`
	ExternalOnlyCount int          `json:"external_only_count"`
	LedgerOnlyCount   int          `json:"ledger_only_count"`
	CandidateCount    int          `json:"candidate_count"`
	AddedCount        int          `json:"added_count"`
	Skipped           []Skip       `json:"skipped"`
	WriteBack         WriteBack    `json:"writeback"`
	Error             string       `json:"error,omitempty"`
}

type PaymentRow struct {
	ID     string      `json:"id"`
	Date   string      `json:"date"`
	Amount json.Number `json:"amount"`
	Vendor *string     `json:"vendor"`
	Source string      `json:"source"`
}

type Conflict struct {
	RecordID       string       `json:"record_id"`
	Reason         string       `json:"reason"`
	ExternalAmount *json.Number `json:"external_amount"`
	LedgerAmount   *json.Number `json:"ledger_amount"`
	ExternalDate   *string      `json:"external_date"`
	LedgerDate     *string      `json:"ledger_date"`
	ExternalVendor *string      `json:"external_vendor"`
	LedgerVendor   *string      `json:"ledger_vendor"`
}

type Skip struct {
	Stage    string `json:"stage"`
	RecordID string `json:"record_id,omitempty"`
	Row      int    `json:"row,omitempty"`
	Reason   string `json:"reason"`
}

// WriteBack tells whether a batch was sent and how it failed, if it did. A
// failed batch leaves the run status untouched.
type WriteBack struct {
	Attempted bool   `json:"attempted"`
	Error     string `json:"error,omitempty"`
}

// Meta carries the run context that is not part of the diff.
type Meta struct {
	RunID       string
	GeneratedAt time.Time
	Workbook    string
	Sheet       string
	// Skipped are the rows dropped while normalizing.
	Skipped []models.Skip
}

// New returns an empty successful payload for meta.
func New(meta Meta) *Payload {
	p := &Payload{
		Status:        StatusSuccess,
		RunID:         meta.RunID,
		GeneratedAt:   meta.GeneratedAt.UTC(),
		Workbook:      meta.Workbook,
		Sheet:         meta.Sheet,
		PaymentsAdded: []PaymentRow{},
		Conflicts:     []Conflict{},
		Skipped:       []Skip{},
	}
	for _, s := range meta.Skipped {
		p.Skipped = append(p.Skipped, Skip{Stage: StageNormalize, RecordID: s.RecordID, Row: s.Row, Reason: s.Reason})
	}
	return p
}

// Assemble builds the payload for a finished comparison. outcome is nil when
// no write-back was attempted.
func Assemble(diff *models.DiffReport, outcome *writeback.Outcome, meta Meta) *Payload {
	p := New(meta)
	p.AddDiff(diff)
	p.AddOutcome(outcome)
	return p
}

// AddDiff fills the comparison part of the payload. Ledger-only payments are
// reported as conflicts.
func (p *Payload) AddDiff(diff *models.DiffReport) {
	if diff == nil {
		return
	}
	for _, c := range diff.Conflicts {
		p.Conflicts = append(p.Conflicts, conflictRow(c))
	}
	for _, l := range diff.LedgerOnly {
		p.Conflicts = append(p.Conflicts, conflictRow(models.NewLedgerOnlyConflict(l)))
	}
	p.MatchedCount = diff.MatchedCount
	p.ExternalOnlyCount = len(diff.ExternalOnly)
	p.LedgerOnlyCount = len(diff.LedgerOnly)
}

// AddOutcome fills the write-back part. Only acknowledged payments count as
// added.
func (p *Payload) AddOutcome(outcome *writeback.Outcome) {
	if outcome == nil {
		return
	}
	p.WriteBack.Attempted = !outcome.DryRun
	p.CandidateCount = len(outcome.Planned)
	if outcome.DryRun {
		for _, s := range outcome.Planned {
			p.PaymentsPlanned = append(p.PaymentsPlanned, paymentRow(s.Payment))
		}
	}
	for _, a := range outcome.Added {
		p.PaymentsAdded = append(p.PaymentsAdded, paymentRow(a))
	}
	p.AddedCount = len(p.PaymentsAdded)
	for _, s := range outcome.Skipped {
		p.Skipped = append(p.Skipped, Skip{Stage: StageWriteBack, RecordID: s.RecordID, Row: s.Row, Reason: s.Reason})
	}
	if outcome.Err != nil {
		p.WriteBack.Error = outcome.Err.Error()
	}
}

// Fail marks the run as failed. Fields filled before the failure stay as
// they are.
func (p *Payload) Fail(err error) {
	p.Status = StatusError
	p.Error = err.Error()
}

func (p *Payload) Failed() bool {
	return p.Status == StatusError
}

func paymentRow(pm models.Payment) PaymentRow {
	return PaymentRow{
		ID:     pm.ID,
		Date:   pm.DateString(),
		Amount: number(pm.Amount),
		Vendor: optional(pm.Vendor),
		Source: string(pm.Source),
	}
}

func conflictRow(c models.Conflict) Conflict {
	out := Conflict{
		RecordID:       c.RecordID,
		Reason:         string(c.Reason),
		ExternalVendor: c.ExternalVendor,
		LedgerVendor:   c.LedgerVendor,
	}
	if c.ExternalAmount != nil {
		n := number(*c.ExternalAmount)
		out.ExternalAmount = &n
	}
	if c.LedgerAmount != nil {
		n := number(*c.LedgerAmount)
		out.LedgerAmount = &n
	}
	if c.ExternalDate != nil {
		d := c.ExternalDate.Format(models.DateLayout)
		out.ExternalDate = &d
	}
	if c.LedgerDate != nil {
		d := c.LedgerDate.Format(models.DateLayout)
		out.LedgerDate = &d
	}
	return out
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
