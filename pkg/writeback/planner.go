// Package writeback decides which external-only payments are created in the
// ledger, and against which open obligation.
package writeback

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/yurifrl/paybills/pkg/compare"
	"github.com/yurifrl/paybills/pkg/ledger"
	"github.com/yurifrl/paybills/pkg/models"
)

// Skip reasons.
const (
	ReasonNoVendor         = "missing_vendor"
	ReasonNoObligation     = "no_open_obligation"
	ReasonLookupFailed     = "obligation_lookup_failed"
	ReasonNonPositive      = "non_positive_amount"
	ReasonNotAcknowledged  = "not_acknowledged"
	ReasonAlreadySubmitted = "already_submitted"
)

// ObligationSource is the part of the ledger the planner reads.
type ObligationSource interface {
	OpenObligations(ctx context.Context, vendor string) ([]models.Obligation, error)
}

// Planner matches candidates to obligations. Obligation lists are fetched
// once per vendor and drawn down as candidates are assigned, so a batch
// never pays more into an obligation than it has due.
type Planner struct {
	logger *log.Logger
	open   *cache.Cache
}

func New(logger *log.Logger) *Planner {
	return &Planner{
		logger: logger,
		open:   cache.New(10*time.Minute, 20*time.Minute),
	}
}

// Outcome is what a write-back attempt produced.
type Outcome struct {
	Planned []models.Submission
	Added   []models.Payment
	Skipped []models.Skip
	// Err is set when the batch failed as a whole; Added is then empty and
	// nothing may be assumed persisted.
	Err error
	// DryRun marks a batch that was planned but never sent.
	DryRun bool
}

// Plan builds the batch for candidates. Candidates that cannot be placed are
// returned as skips; they are warnings, not errors.
func (p *Planner) Plan(ctx context.Context, candidates []models.Payment, src ObligationSource) ([]models.Submission, []models.Skip) {
	batch := make([]models.Submission, 0, len(candidates))
	var skipped []models.Skip

	skip := func(c models.Payment, reason string, kv ...any) {
		p.logger.Warn("skipping write-back", append([]any{"record_id", c.ID, "reason", reason}, kv...)...)
		skipped = append(skipped, models.Skip{RecordID: c.ID, Reason: reason})
	}

	for _, c := range candidates {
		vendor := strings.TrimSpace(c.Vendor)
		if vendor == "" {
			skip(c, ReasonNoVendor)
			continue
		}
		if !c.Amount.IsPositive() {
			skip(c, ReasonNonPositive, "amount", c.Amount.StringFixed(2))
			continue
		}

		open, err := p.obligations(ctx, vendor, src)
		if err != nil {
			skip(c, ReasonLookupFailed, "vendor", vendor, "error", err)
			continue
		}
		idx, ok := SelectObligation(c.Amount, open)
		if !ok {
			skip(c, ReasonNoObligation, "vendor", vendor)
			continue
		}

		ob := open[idx]
		amount := decimal.Min(c.Amount, ob.AmountDue)
		p.drawDown(vendor, open, idx, amount)

		sub := c
		sub.Amount = amount
		batch = append(batch, models.Submission{Payment: sub, ObligationID: ob.ID})
		p.logger.Debug("planned write-back", "record_id", c.ID, "obligation_id", ob.ID,
			"amount", amount.StringFixed(2), "due", ob.AmountDue.StringFixed(2))
	}
	return batch, skipped
}

// PlanAndSubmit plans the batch and sends it to the ledger in one request.
func (p *Planner) PlanAndSubmit(ctx context.Context, candidates []models.Payment, gw ledger.Gateway) Outcome {
	batch, skipped := p.Plan(ctx, candidates, gw)
	out := Outcome{Planned: batch, Skipped: skipped, Added: make([]models.Payment, 0)}
	if len(batch) == 0 {
		return out
	}

	created, err := gw.Submit(ctx, batch)
	if err != nil {
		p.logger.Error("write-back batch failed", "count", len(batch), "error", err)
		out.Err = ledger.Wrap("submit", err)
		return out
	}

	acked := make(map[string]bool, len(created))
	for i := range created {
		created[i] = created[i].WithSource(models.SourceLedger)
		acked[created[i].ID] = true
	}
	for _, s := range batch {
		if !acked[s.Payment.ID] {
			out.Skipped = append(out.Skipped, models.Skip{RecordID: s.Payment.ID, Reason: ReasonNotAcknowledged})
		}
	}
	if len(created) < len(batch) {
		p.logger.Warn("ledger acknowledged part of the batch", "submitted", len(batch), "created", len(created))
	}
	out.Added = created
	return out
}

// SelectObligation picks the obligation for amount: the first one due
// within one cent of it, otherwise the one closest in amount, ties going to
// the earlier entry.
func SelectObligation(amount decimal.Decimal, open []models.Obligation) (int, bool) {
	best := -1
	var bestDiff decimal.Decimal
	for i, ob := range open {
		if !ob.AmountDue.IsPositive() {
			continue
		}
		if compare.AmountsEqual(ob.AmountDue, amount) {
			return i, true
		}
		diff := ob.AmountDue.Sub(amount).Abs()
		if best < 0 || diff.LessThan(bestDiff) {
			best, bestDiff = i, diff
		}
	}
	return best, best >= 0
}

func (p *Planner) obligations(ctx context.Context, vendor string, src ObligationSource) ([]models.Obligation, error) {
	key := strings.ToLower(vendor)
	if v, ok := p.open.Get(key); ok {
		return v.([]models.Obligation), nil
	}
	open, err := src.OpenObligations(ctx, vendor)
	if err != nil {
		return nil, err
	}
	p.open.Set(key, open, cache.DefaultExpiration)
	return open, nil
}

func (p *Planner) drawDown(vendor string, open []models.Obligation, idx int, amount decimal.Decimal) {
	next := make([]models.Obligation, len(open))
	copy(next, open)
	next[idx].AmountDue = next[idx].AmountDue.Sub(amount)
	p.open.Set(strings.ToLower(vendor), next, cache.DefaultExpiration)
}
