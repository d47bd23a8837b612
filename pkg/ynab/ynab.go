// Package ynab implements the ledger gateway on top of a YNAB budget: bill
// payments are outflow transactions on one account whose memo starts with
// the payment ID, and open obligations are the scheduled outflows of a payee.
package ynab

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/brunomvsouza/ynab.go"
	"github.com/brunomvsouza/ynab.go/api"
	"github.com/brunomvsouza/ynab.go/api/transaction"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/yurifrl/paybills/pkg/ledger"
	"github.com/yurifrl/paybills/pkg/models"
)

// importIDPrefix marks transactions created by this tool; YNAB rejects a
// second transaction with the same import ID on the same account.
const importIDPrefix = "PAYBILLS:"

// YNAB caps import IDs at 36 characters.
const maxImportIDLen = 36

// TransactionAPI is the subset of the YNAB transaction service in use.
type TransactionAPI interface {
	GetTransactionsByAccount(budgetID, accountID string, f *transaction.Filter) ([]*transaction.Transaction, error)
	GetScheduledTransactions(budgetID string) ([]*transaction.Scheduled, error)
	CreateTransactions(budgetID string, p []transaction.PayloadTransaction) (*transaction.OperationSummary, error)
}

// Options select the budget and account payments live in.
type Options struct {
	BudgetID        string
	AccountID       string
	RequestsPerHour int
}

// Gateway is a ledger.Gateway over one YNAB account.
type Gateway struct {
	logger  *log.Logger
	svc     TransactionAPI
	opts    Options
	limiter *rate.Limiter

	// account transactions, read once per session and dropped on Submit
	txs []*transaction.Transaction
}

// New wraps svc. A non-positive RequestsPerHour disables throttling.
func New(svc TransactionAPI, opts Options, logger *log.Logger) *Gateway {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerHour > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Hour/time.Duration(opts.RequestsPerHour)), 10)
	}
	return &Gateway{logger: logger, svc: svc, opts: opts, limiter: limiter}
}

// Opener returns a ledger.Opener authenticating with token.
func Opener(token string, opts Options, logger *log.Logger) ledger.Opener {
	return func(context.Context) (ledger.Gateway, error) {
		if token == "" {
			return nil, fmt.Errorf("ynab token is empty")
		}
		client := ynab.NewClient(token)
		return New(client.Transaction(), opts, logger), nil
	}
}

func (g *Gateway) Payments(ctx context.Context) ([]models.RawRecord, error) {
	txs, err := g.transactions(ctx)
	if err != nil {
		return nil, ledger.Wrap("read payments", err)
	}

	out := make([]models.RawRecord, 0, len(txs))
	for _, tx := range txs {
		if tx == nil || tx.Deleted || tx.Amount >= 0 {
			continue
		}
		id := extractID(tx.Memo)
		if id == "" {
			continue
		}
		out = append(out, models.RawRecord{
			"Memo":   id,
			"Date":   tx.Date.Time,
			"Amount": fromMilliunits(-tx.Amount),
			"Payee":  deref(tx.PayeeName),
		})
	}
	g.logger.Debug("fetched ledger payments", "account_id", g.opts.AccountID, "total", len(txs), "with_id", len(out))
	return out, nil
}

// OpenObligations returns the payee's scheduled outflows, next due first.
// Each obligation is one occurrence of a scheduled transaction; payments this
// gateway already posted against that occurrence are deducted from it and
// settled occurrences are left out.
func (g *Gateway) OpenObligations(ctx context.Context, vendor string) ([]models.Obligation, error) {
	txs, err := g.transactions(ctx)
	if err != nil {
		return nil, ledger.Wrap("read obligations", err)
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, ledger.Wrap("read obligations", err)
	}
	scheduled, err := g.svc.GetScheduledTransactions(g.opts.BudgetID)
	if err != nil {
		return nil, ledger.Wrap("read obligations", err)
	}

	paid := make(map[string]int64)
	for _, tx := range txs {
		if tx == nil || tx.Deleted || tx.Amount >= 0 {
			continue
		}
		if ref := obligationRef(tx.Memo); ref != "" {
			paid[ref] += -tx.Amount
		}
	}

	open := make([]*transaction.Scheduled, 0, len(scheduled))
	for _, s := range scheduled {
		if s != nil && !s.Deleted && s.Amount < 0 {
			open = append(open, s)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		return open[i].DateNext.Before(open[j].DateNext.Time)
	})

	var out []models.Obligation
	for _, s := range open {
		payee := deref(s.PayeeName)
		if !strings.EqualFold(strings.TrimSpace(payee), strings.TrimSpace(vendor)) {
			continue
		}
		id := occurrenceID(s)
		due := -s.Amount - paid[id]
		if due <= 0 {
			g.logger.Debug("obligation already settled", "obligation_id", id, "payee", payee)
			continue
		}
		out = append(out, models.Obligation{
			ID:        id,
			AmountDue: fromMilliunits(due),
			Vendor:    payee,
		})
	}
	return out, nil
}

// Submit creates the batch in one request. Transactions YNAB reports as
// duplicate imports already exist and are not returned as created.
func (g *Gateway) Submit(ctx context.Context, batch []models.Submission) ([]models.Payment, error) {
	if len(batch) == 0 {
		return []models.Payment{}, nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, ledger.Wrap("submit", err)
	}

	payloads := make([]transaction.PayloadTransaction, 0, len(batch))
	for _, s := range batch {
		payloads = append(payloads, g.payload(s))
	}

	summary, err := g.svc.CreateTransactions(g.opts.BudgetID, payloads)
	g.txs = nil
	if err != nil {
		return nil, ledger.Wrap("submit", err)
	}
	if summary == nil {
		return []models.Payment{}, nil
	}
	if len(summary.DuplicateImportIDs) > 0 {
		g.logger.Warn("ledger already holds some payments", "duplicate_import_ids", summary.DuplicateImportIDs)
	}

	created := make([]models.Payment, 0, len(summary.Transactions))
	for _, tx := range summary.Transactions {
		if tx == nil {
			continue
		}
		created = append(created, models.Payment{
			ID:     extractID(tx.Memo),
			Date:   models.NewDate(tx.Date.Time),
			Amount: fromMilliunits(-tx.Amount),
			Vendor: deref(tx.PayeeName),
			Source: models.SourceLedger,
		})
	}
	g.logger.Info("created ledger payments", "submitted", len(batch), "created", len(created))
	return created, nil
}

func (g *Gateway) Close() error {
	return nil
}

func (g *Gateway) transactions(ctx context.Context) ([]*transaction.Transaction, error) {
	if g.txs != nil {
		return g.txs, nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	txs, err := g.svc.GetTransactionsByAccount(g.opts.BudgetID, g.opts.AccountID, nil)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []*transaction.Transaction{}
	}
	g.txs = txs
	return txs, nil
}

// occurrenceID names the next occurrence of a scheduled transaction. Once
// YNAB enters it, DateNext moves on and the next occurrence starts unpaid.
func occurrenceID(s *transaction.Scheduled) string {
	return s.ID + "@" + s.DateNext.Format(models.DateLayout)
}

func (g *Gateway) payload(s models.Submission) transaction.PayloadTransaction {
	p := s.Payment
	memo := p.ID
	if s.ObligationID != "" {
		memo = p.ID + "," + s.ObligationID
	}
	importID := ImportID(p.ID)

	out := transaction.PayloadTransaction{
		AccountID: g.opts.AccountID,
		Date:      api.Date{Time: p.Date},
		Amount:    -toMilliunits(p.Amount),
		Cleared:   transaction.ClearingStatusCleared,
		Approved:  true,
		Memo:      &memo,
		ImportID:  &importID,
	}
	if p.Vendor != "" {
		vendor := p.Vendor
		out.PayeeName = &vendor
	}
	return out
}

// ImportID is the YNAB import ID for a payment. IDs too long to fit are
// replaced by a name-based UUID so distinct IDs never share an import ID.
func ImportID(id string) string {
	if len(importIDPrefix)+len(id) <= maxImportIDLen {
		return importIDPrefix + id
	}
	digest := strings.ReplaceAll(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String(), "-", "")
	return importIDPrefix + digest[:maxImportIDLen-len(importIDPrefix)]
}

// extractID returns the payment ID from a memo: the first comma-separated
// field, unquoted.
func extractID(memo *string) string {
	return memoField(memo, 0)
}

// obligationRef returns the occurrence a memo says the payment settles: the
// second field, when it has the occurrenceID shape.
func obligationRef(memo *string) string {
	ref := memoField(memo, 1)
	if !strings.Contains(ref, "@") {
		return ""
	}
	return ref
}

func memoField(memo *string, i int) string {
	if memo == nil {
		return ""
	}
	m := strings.Trim(strings.TrimSpace(*memo), "\"")
	fields := strings.SplitN(m, ",", 3)
	if i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

func toMilliunits(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(1000)).Round(0).IntPart()
}

func fromMilliunits(m int64) decimal.Decimal {
	return decimal.New(m, -3)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
