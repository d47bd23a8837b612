package ledger

import (
	"context"
	"strings"
	"sync"

	"github.com/yurifrl/paybills/pkg/models"
)

// Memory is an in-process ledger. It backs offline runs and tests.
type Memory struct {
	mu          sync.Mutex
	payments    []models.Payment
	obligations []models.Obligation

	// Reject, when set, decides per submission whether the ledger refuses it.
	Reject func(models.Submission) bool
	// SubmitErr, when set, fails every Submit call as a whole.
	SubmitErr error
	// ReadErr, when set, fails every Payments call.
	ReadErr error

	Submitted [][]models.Submission
	closed    bool
}

func NewMemory(payments []models.Payment, obligations []models.Obligation) *Memory {
	return &Memory{payments: payments, obligations: obligations}
}

// Opener returns an Opener handing out m.
func (m *Memory) Opener() Opener {
	return func(context.Context) (Gateway, error) {
		m.mu.Lock()
		m.closed = false
		m.mu.Unlock()
		return m, nil
	}
}

func (m *Memory) Payments(context.Context) ([]models.RawRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, Wrap("read payments", m.ReadErr)
	}
	out := make([]models.RawRecord, 0, len(m.payments))
	for _, p := range m.payments {
		r := models.RawRecord{
			"Memo":   p.ID,
			"Date":   p.DateString(),
			"Amount": p.Amount,
		}
		if p.Vendor != "" {
			r["Vendor"] = p.Vendor
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *Memory) OpenObligations(_ context.Context, vendor string) ([]models.Obligation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Obligation
	for _, o := range m.obligations {
		if strings.EqualFold(strings.TrimSpace(o.Vendor), strings.TrimSpace(vendor)) && o.AmountDue.IsPositive() {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *Memory) Submit(_ context.Context, batch []models.Submission) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Submitted = append(m.Submitted, batch)
	if m.SubmitErr != nil {
		return nil, Wrap("submit", m.SubmitErr)
	}

	created := make([]models.Payment, 0, len(batch))
	for _, s := range batch {
		if m.Reject != nil && m.Reject(s) {
			continue
		}
		p := s.Payment.WithSource(models.SourceLedger)
		m.payments = append(m.payments, p)
		for i := range m.obligations {
			if m.obligations[i].ID == s.ObligationID {
				m.obligations[i].AmountDue = m.obligations[i].AmountDue.Sub(p.Amount)
			}
		}
		created = append(created, p)
	}
	return created, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether the last session was closed.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
