package executors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/yurifrl/paybills/pkg/config"
	"github.com/yurifrl/paybills/pkg/journal"
	"github.com/yurifrl/paybills/pkg/ledger"
	"github.com/yurifrl/paybills/pkg/models"
	"github.com/yurifrl/paybills/pkg/parser"
	"github.com/yurifrl/paybills/pkg/plan"
	"github.com/yurifrl/paybills/pkg/report"
	"github.com/yurifrl/paybills/pkg/workbook"
)

var (
	// ErrNoLedger is returned when a run needs the ledger but none is configured.
	ErrNoLedger = errors.New("no ledger configured")
	// ErrWriteBack wraps a failed write-back batch. The comparison itself
	// succeeded, so the payload keeps status success.
	ErrWriteBack = errors.New("write-back failed")
)

type Executor struct {
	logger  *log.Logger
	config  *config.Config
	open    ledger.Opener
	journal *journal.Journal
	reader  *workbook.Reader
	writer  *report.Writer
	now     func() time.Time
}

// New builds an executor. open may be nil when every run skips the ledger;
// j may be nil to disable the submission journal.
func New(logger *log.Logger, config *config.Config, open ledger.Opener, j *journal.Journal) *Executor {
	return &Executor{
		logger:  logger,
		config:  config,
		open:    open,
		journal: j,
		reader:  workbook.New(logger),
		writer:  report.NewWriter(logger),
		now:     time.Now,
	}
}

// Run is one reconciliation of a worksheet against the ledger.
type Run struct {
	Workbook   string
	Sheet      string
	Output     string
	SkipLedger bool
	// Data, when set, is the workbook content and Workbook only names it.
	Data []byte
}

// RunFromConfig returns the run described by the loaded configuration.
func RunFromConfig(cfg *config.Config) Run {
	return Run{
		Workbook:   cfg.Workbook,
		Sheet:      cfg.Sheet,
		Output:     cfg.Output,
		SkipLedger: cfg.SkipLedger,
	}
}

// RunFromPlan returns a plan entry as a run. Fields the entry and the plan
// defaults leave empty come from cfg.
func RunFromPlan(cfg *config.Config, r plan.Run) Run {
	run := RunFromConfig(cfg)
	if r.Workbook != "" {
		run.Workbook = r.Workbook
	}
	if r.Sheet != "" {
		run.Sheet = r.Sheet
	}
	if r.Output != "" {
		run.Output = r.Output
	}
	if r.SkipLedger != nil {
		run.SkipLedger = *r.SkipLedger
	}
	return run
}

// Records reads and normalizes the run's worksheet.
func (e *Executor) Records(run Run) (parser.Result, error) {
	raws, err := e.read(run)
	if err != nil {
		return parser.Result{}, err
	}
	return e.externalParser().ParseRecords(raws, models.SourceExternal), nil
}

func (e *Executor) read(run Run) ([]models.RawRecord, error) {
	if run.Workbook == "" {
		return nil, fmt.Errorf("no workbook given")
	}
	if run.Data != nil {
		return e.reader.ReadBytes(run.Data, run.Workbook, run.Sheet)
	}
	return e.reader.ReadFile(run.Workbook, run.Sheet)
}

func (e *Executor) externalParser() *parser.Parser {
	return parser.New(e.logger, e.config.ExternalFields(), parser.WithMarkers(e.config.Markers()...))
}

func (e *Executor) ledgerParser() *parser.Parser {
	return parser.New(e.logger, e.config.LedgerFields(), parser.WithMarkers())
}

func (e *Executor) meta(run Run) report.Meta {
	return report.Meta{
		RunID:       uuid.NewString(),
		GeneratedAt: e.now(),
		Workbook:    run.Workbook,
		Sheet:       workbook.SheetName(run.Sheet),
	}
}

// finish persists p when the run names an output. A failed payload still
// gets written.
func (e *Executor) finish(ctx context.Context, run Run, p *report.Payload, runErr error) (*report.Payload, error) {
	if runErr != nil {
		if !errors.Is(runErr, ErrWriteBack) {
			p.Fail(runErr)
		}
		e.logger.Error("run failed", "run_id", p.RunID, "error", runErr)
	}
	if run.Output == "" {
		return p, runErr
	}
	if _, err := e.writer.Persist(ctx, p, run.Output); err != nil {
		return p, errors.Join(runErr, err)
	}
	return p, runErr
}
