package writeback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"github.com/yurifrl/paybills/pkg/ledger"
	"github.com/yurifrl/paybills/pkg/models"
)

func candidate(id, amount, vendor string) models.Payment {
	return models.Payment{
		ID:     id,
		Date:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Amount: decimal.RequireFromString(amount),
		Vendor: vendor,
		Source: models.SourceExternal,
	}
}

func obligation(id, due, vendor string) models.Obligation {
	return models.Obligation{ID: id, AmountDue: decimal.RequireFromString(due), Vendor: vendor}
}

type countingSource struct {
	calls int
	open  []models.Obligation
	err   error
}

func (s *countingSource) OpenObligations(context.Context, string) ([]models.Obligation, error) {
	s.calls++
	return s.open, s.err
}

func TestPlanNeverOverpays(t *testing.T) {
	src := &countingSource{open: []models.Obligation{obligation("bill-1", "300.00", "X")}}

	batch, skipped := New(log.Default()).Plan(context.Background(), []models.Payment{candidate("A1", "500.00", "X")}, src)

	if len(skipped) != 0 || len(batch) != 1 {
		t.Fatalf("expected one planned submission, got batch=%v skipped=%v", batch, skipped)
	}
	if !batch[0].Payment.Amount.Equal(decimal.RequireFromString("300")) {
		t.Errorf("expected submitted amount 300.00, got %s", batch[0].Payment.Amount)
	}
	if batch[0].ObligationID != "bill-1" {
		t.Errorf("expected obligation bill-1, got %q", batch[0].ObligationID)
	}
}

func TestPlanSkipsWithoutVendorOrObligation(t *testing.T) {
	src := &countingSource{}

	batch, skipped := New(log.Default()).Plan(context.Background(), []models.Payment{
		candidate("B2", "50.00", ""),
		candidate("C3", "50.00", "Nobody"),
		candidate("D4", "0", "Nobody"),
	}, src)

	if len(batch) != 0 {
		t.Errorf("expected nothing planned, got %v", batch)
	}
	want := map[string]string{"B2": ReasonNoVendor, "C3": ReasonNoObligation, "D4": ReasonNonPositive}
	if len(skipped) != len(want) {
		t.Fatalf("expected %d skips, got %v", len(want), skipped)
	}
	for _, s := range skipped {
		if want[s.RecordID] != s.Reason {
			t.Errorf("%s: expected reason %q, got %q", s.RecordID, want[s.RecordID], s.Reason)
		}
	}
}

func TestPlanLookupFailureIsASkip(t *testing.T) {
	src := &countingSource{err: errors.New("timeout")}

	batch, skipped := New(log.Default()).Plan(context.Background(), []models.Payment{candidate("A1", "5", "X")}, src)

	if len(batch) != 0 || len(skipped) != 1 || skipped[0].Reason != ReasonLookupFailed {
		t.Errorf("expected lookup failure skip, got batch=%v skipped=%v", batch, skipped)
	}
}

func TestPlanDrawsDownSharedObligation(t *testing.T) {
	src := &countingSource{open: []models.Obligation{obligation("bill-1", "100.00", "X")}}

	batch, skipped := New(log.Default()).Plan(context.Background(), []models.Payment{
		candidate("A1", "70.00", "X"),
		candidate("A2", "70.00", "X"),
		candidate("A3", "70.00", "x"),
	}, src)

	if src.calls != 1 {
		t.Errorf("expected one obligation lookup per vendor, got %d", src.calls)
	}
	if len(batch) != 2 {
		t.Fatalf("expected two planned submissions, got %v", batch)
	}
	if batch[0].Payment.Amount.String() != "70" || batch[1].Payment.Amount.String() != "30" {
		t.Errorf("expected 70 then 30, got %s then %s", batch[0].Payment.Amount, batch[1].Payment.Amount)
	}
	if len(skipped) != 1 || skipped[0].RecordID != "A3" {
		t.Errorf("expected A3 skipped once the bill is paid off, got %v", skipped)
	}
}

func TestSelectObligation(t *testing.T) {
	open := []models.Obligation{
		obligation("far", "500", "X"),
		obligation("near", "120", "X"),
		obligation("exact", "100.01", "X"),
		obligation("exact-later", "100", "X"),
	}

	idx, ok := SelectObligation(decimal.NewFromInt(100), open)
	if !ok || open[idx].ID != "exact" {
		t.Errorf("expected exact match within a cent, got %v", idx)
	}

	idx, ok = SelectObligation(decimal.NewFromInt(130), open[:2])
	if !ok || open[idx].ID != "near" {
		t.Errorf("expected closest amount, got %v", idx)
	}

	tie := []models.Obligation{obligation("first", "90", "X"), obligation("second", "110", "X")}
	idx, ok = SelectObligation(decimal.NewFromInt(100), tie)
	if !ok || tie[idx].ID != "first" {
		t.Errorf("expected tie to go to the earlier entry, got %v", idx)
	}

	if _, ok := SelectObligation(decimal.NewFromInt(1), []models.Obligation{obligation("paid", "0", "X")}); ok {
		t.Errorf("expected paid-off obligations to be ignored")
	}
}

func TestPlanAndSubmit(t *testing.T) {
	gw := ledger.NewMemory(nil, []models.Obligation{obligation("bill-x", "100.0", "X")})

	out := New(log.Default()).PlanAndSubmit(context.Background(), []models.Payment{
		candidate("A1", "100.0", "X"),
		candidate("B2", "50.0", ""),
	}, gw)

	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if len(out.Added) != 1 || out.Added[0].ID != "A1" || !out.Added[0].Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected A1 for 100.0 added, got %v", out.Added)
	}
	if len(gw.Submitted) != 1 || len(gw.Submitted[0]) != 1 {
		t.Errorf("expected one batch with one submission, got %v", gw.Submitted)
	}
	if len(out.Skipped) != 1 || out.Skipped[0].RecordID != "B2" {
		t.Errorf("expected B2 skipped, got %v", out.Skipped)
	}
}

func TestPlanAndSubmitPartialAcknowledgement(t *testing.T) {
	gw := ledger.NewMemory(nil, []models.Obligation{
		obligation("b1", "10", "X"),
		obligation("b2", "20", "X"),
	})
	gw.Reject = func(s models.Submission) bool { return s.ObligationID == "b2" }

	out := New(log.Default()).PlanAndSubmit(context.Background(), []models.Payment{
		candidate("A1", "10", "X"),
		candidate("A2", "20", "X"),
	}, gw)

	if out.Err != nil {
		t.Fatalf("partial success is not an error: %v", out.Err)
	}
	if len(out.Planned) != 2 || len(out.Added) != 1 || out.Added[0].ID != "A1" {
		t.Errorf("expected 2 planned, only A1 added, got planned=%v added=%v", out.Planned, out.Added)
	}
	if len(out.Skipped) != 1 || out.Skipped[0].Reason != ReasonNotAcknowledged {
		t.Errorf("expected A2 not acknowledged, got %v", out.Skipped)
	}
}

func TestPlanAndSubmitBatchFailure(t *testing.T) {
	gw := ledger.NewMemory(nil, []models.Obligation{obligation("b1", "10", "X")})
	gw.SubmitErr = errors.New("connection refused")

	out := New(log.Default()).PlanAndSubmit(context.Background(), []models.Payment{candidate("A1", "10", "X")}, gw)

	var cerr *ledger.CollaboratorError
	if !errors.As(out.Err, &cerr) {
		t.Fatalf("expected CollaboratorError, got %v", out.Err)
	}
	if len(out.Added) != 0 {
		t.Errorf("expected nothing added on batch failure, got %v", out.Added)
	}
}
