package executors

import (
	"context"
	"fmt"

	"github.com/yurifrl/paybills/pkg/ledger"
	"github.com/yurifrl/paybills/pkg/models"
	"github.com/yurifrl/paybills/pkg/reconcile"
	"github.com/yurifrl/paybills/pkg/report"
	"github.com/yurifrl/paybills/pkg/writeback"
)

// Apply reconciles the run and creates the missing payments in the ledger.
// The payload is returned and persisted even when the run fails.
func (e *Executor) Apply(ctx context.Context, run Run) (*report.Payload, error) {
	return e.execute(ctx, run, !run.SkipLedger)
}

func (e *Executor) execute(ctx context.Context, run Run, writeBack bool) (*report.Payload, error) {
	meta := e.meta(run)
	log := e.logger.With("run_id", meta.RunID)
	log.Info("starting run", "workbook", run.Workbook, "sheet", meta.Sheet, "write_back", writeBack, "skip_ledger", run.SkipLedger)

	raws, err := e.read(run)
	if err != nil {
		return e.finish(ctx, run, report.New(meta), err)
	}
	external := e.externalParser().ParseRecords(raws, models.SourceExternal)
	meta.Skipped = external.Skipped
	log.Info("normalized external payments", "rows", len(raws), "payments", len(external.Payments), "dropped", len(external.Skipped))

	if run.SkipLedger {
		diff := reconcile.Build(external.Payments, nil)
		return e.finish(ctx, run, report.Assemble(diff, nil, meta), nil)
	}
	if e.open == nil {
		return e.finish(ctx, run, report.New(meta), ErrNoLedger)
	}

	var (
		diff    *models.DiffReport
		outcome *writeback.Outcome
	)
	err = ledger.WithSession(ctx, e.open, func(gw ledger.Gateway) error {
		raws, err := gw.Payments(ctx)
		if err != nil {
			return ledger.Wrap("read payments", err)
		}
		existing := e.ledgerParser().ParseRecords(raws, models.SourceLedger)
		meta.Skipped = append(meta.Skipped, existing.Skipped...)

		diff = reconcile.Build(external.Payments, existing.Payments)
		log.Info("reconciled", "matched", diff.MatchedCount, "external_only", len(diff.ExternalOnly),
			"ledger_only", len(diff.LedgerOnly), "conflicts", len(diff.Conflicts))

		candidates, journaled, err := e.unjournaled(ctx, reconcile.Candidates(diff))
		if err != nil {
			return err
		}
		planner := writeback.New(e.logger)
		var out writeback.Outcome
		if writeBack {
			out = planner.PlanAndSubmit(ctx, candidates, gw)
		} else {
			batch, skipped := planner.Plan(ctx, candidates, gw)
			out = writeback.Outcome{Planned: batch, Skipped: skipped, Added: []models.Payment{}, DryRun: true}
		}
		out.Skipped = append(journaled, out.Skipped...)
		outcome = &out
		return nil
	})

	p := report.New(meta)
	p.AddDiff(diff)
	if err != nil {
		return e.finish(ctx, run, p, err)
	}
	p.AddOutcome(outcome)

	if outcome != nil && !outcome.DryRun {
		if err := e.record(ctx, meta.RunID, outcome.Added); err != nil {
			log.Warn("failed to journal submissions", "error", err)
		}
		if outcome.Err != nil {
			return e.finish(ctx, run, p, fmt.Errorf("%w: %w", ErrWriteBack, outcome.Err))
		}
		log.Info("write-back finished", "planned", len(outcome.Planned), "added", len(outcome.Added), "skipped", len(outcome.Skipped))
	}
	return e.finish(ctx, run, p, nil)
}

// unjournaled drops candidates an earlier run already got acknowledged.
func (e *Executor) unjournaled(ctx context.Context, candidates []models.Payment) ([]models.Payment, []models.Skip, error) {
	if e.journal == nil || len(candidates) == 0 {
		return candidates, nil, nil
	}
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	done, err := e.journal.Submitted(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	keep := make([]models.Payment, 0, len(candidates))
	var skipped []models.Skip
	for _, c := range candidates {
		if done[c.ID] {
			e.logger.Warn("skipping write-back", "record_id", c.ID, "reason", writeback.ReasonAlreadySubmitted)
			skipped = append(skipped, models.Skip{RecordID: c.ID, Reason: writeback.ReasonAlreadySubmitted})
			continue
		}
		keep = append(keep, c)
	}
	return keep, skipped, nil
}

func (e *Executor) record(ctx context.Context, runID string, added []models.Payment) error {
	if e.journal == nil {
		return nil
	}
	return e.journal.Record(ctx, runID, added)
}
