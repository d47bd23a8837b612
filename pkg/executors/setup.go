package executors

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"github.com/yurifrl/paybills/pkg/config"
	"github.com/yurifrl/paybills/pkg/journal"
	"github.com/yurifrl/paybills/pkg/ledger"
	"github.com/yurifrl/paybills/pkg/models"
	"github.com/yurifrl/paybills/pkg/ynab"
)

// Setup builds an executor for cfg: the configured ledger, and the journal
// when a path is set. The returned func releases the journal.
func Setup(logger *log.Logger, cfg *config.Config) (*Executor, func() error, error) {
	open, err := Opener(logger, cfg)
	if err != nil {
		return nil, nil, err
	}

	var j *journal.Journal
	closeFn := func() error { return nil }
	if cfg.Journal.Path != "" {
		j, err = journal.Open(cfg.Journal.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		closeFn = j.Close
	}
	return New(logger, cfg, open, j), closeFn, nil
}

// Opener returns the ledger named by cfg, or nil when runs skip it.
func Opener(logger *log.Logger, cfg *config.Config) (ledger.Opener, error) {
	if cfg.SkipLedger {
		return nil, nil
	}
	switch cfg.Ledger.Kind {
	case config.LedgerMemory:
		mem, err := memoryLedger(cfg.Ledger.Memory)
		if err != nil {
			return nil, err
		}
		logger.Debug("using in-memory ledger", "payments", len(cfg.Ledger.Memory.Payments), "obligations", len(cfg.Ledger.Memory.Obligations))
		return mem.Opener(), nil
	case config.LedgerYNAB, "":
		return ynab.Opener(cfg.Ledger.Token(), ynab.Options{
			BudgetID:        cfg.Ledger.BudgetID,
			AccountID:       cfg.Ledger.AccountID,
			RequestsPerHour: cfg.Ledger.RequestsPerHour,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown ledger kind %q", cfg.Ledger.Kind)
	}
}

// memoryLedger builds the in-memory ledger from its configured seed.
func memoryLedger(seed config.MemoryLedger) (*ledger.Memory, error) {
	payments := make([]models.Payment, 0, len(seed.Payments))
	for _, p := range seed.Payments {
		date, err := time.Parse(models.DateLayout, p.Date)
		if err != nil {
			return nil, fmt.Errorf("memory ledger payment %s: %w", p.ID, err)
		}
		amount, err := decimal.NewFromString(p.Amount)
		if err != nil {
			return nil, fmt.Errorf("memory ledger payment %s: %w", p.ID, err)
		}
		payments = append(payments, models.Payment{ID: p.ID, Date: date, Amount: amount, Vendor: p.Vendor, Source: models.SourceLedger})
	}

	obligations := make([]models.Obligation, 0, len(seed.Obligations))
	for _, o := range seed.Obligations {
		due, err := decimal.NewFromString(o.AmountDue)
		if err != nil {
			return nil, fmt.Errorf("memory ledger obligation %s: %w", o.ID, err)
		}
		obligations = append(obligations, models.Obligation{ID: o.ID, AmountDue: due, Vendor: o.Vendor})
	}
	return ledger.NewMemory(payments, obligations), nil
}
