package parser

import (
	"errors"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/paybills/pkg/models"
)

// RowKey is the raw record field record sources use to carry the 1-based
// spreadsheet row a record came from.
const RowKey = "__row__"

// DefaultMarkers exclude shipping charges from the payment sheets.
var DefaultMarkers = []string{"shipping charge"}

// Parser turns raw records into canonical payments using one alias table.
type Parser struct {
	logger    *log.Logger
	id        aliases
	child     aliases
	date      aliases
	amount    aliases
	vendor    aliases
	exclude   aliases
	separator string
	markers   []string
}

// Option customises a Parser.
type Option func(*Parser)

// WithMarkers replaces the exclusion markers.
func WithMarkers(markers ...string) Option {
	return func(p *Parser) {
		p.markers = p.markers[:0]
		for _, m := range markers {
			if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
				p.markers = append(p.markers, m)
			}
		}
	}
}

func New(logger *log.Logger, fields Fields, opts ...Option) *Parser {
	p := &Parser{
		logger:    logger,
		id:        fold(fields.ID),
		child:     fold(fields.Child),
		date:      fold(fields.Date),
		amount:    fold(fields.Amount),
		vendor:    fold(fields.Vendor),
		exclude:   fold(fields.Exclude),
		separator: fields.Separator,
	}
	WithMarkers(DefaultMarkers...)(p)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Normalize converts one raw record. ErrExcluded and ErrNoAmount mean the
// row is not a payment; *NormalizationError and *ResolutionError mean it is
// one that cannot be used.
func (p *Parser) Normalize(raw models.RawRecord) (models.Payment, error) {
	rec := index(raw)
	row := rowNumber(rec)

	if p.excluded(rec) {
		return models.Payment{}, ErrExcluded
	}

	amountField, amountValue, ok := rec.lookup(p.amount)
	if !ok {
		return models.Payment{}, ErrNoAmount
	}
	amount, err := ParseAmount(amountValue)
	if err != nil {
		if errors.Is(err, ErrNoAmount) {
			return models.Payment{}, err
		}
		return models.Payment{}, &NormalizationError{Row: row, Field: amountField, Value: amountValue, Err: err}
	}

	id := p.resolveID(rec)
	if id == "" {
		return models.Payment{}, &ResolutionError{Row: row}
	}

	dateField, dateValue, ok := rec.lookup(p.date)
	if !ok {
		return models.Payment{}, &NormalizationError{Row: row, Field: "date", Err: ErrNoDate}
	}
	date, err := ParseDate(dateValue)
	if err != nil {
		return models.Payment{}, &NormalizationError{Row: row, Field: dateField, Value: dateValue, Err: err}
	}

	var vendor string
	if _, v, ok := rec.lookup(p.vendor); ok {
		vendor = strings.TrimSpace(idString(v))
	}

	return models.Payment{
		ID:     id,
		Date:   date,
		Amount: amount,
		Vendor: vendor,
	}, nil
}

// Result is the outcome of normalising a batch of rows.
type Result struct {
	Payments []models.Payment
	Skipped  []models.Skip
}

// ParseRecords normalises every row, tagging payments with source. Rows that
// fail are logged and reported as skipped; they never abort the batch.
func (p *Parser) ParseRecords(raws []models.RawRecord, source models.Source) Result {
	res := Result{Payments: make([]models.Payment, 0, len(raws))}
	for i, raw := range raws {
		payment, err := p.Normalize(raw)
		if err == nil {
			res.Payments = append(res.Payments, payment.WithSource(source))
			continue
		}

		row := rowNumber(index(raw))
		if row == 0 {
			row = i + 1
		}
		if Skippable(err) {
			p.logger.Debug("skipping row", "source", source, "row", row, "reason", err)
			continue
		}
		p.logger.Warn("dropping row", "source", source, "row", row, "error", err)
		res.Skipped = append(res.Skipped, models.Skip{
			RecordID: p.resolveID(index(raw)),
			Row:      row,
			Reason:   err.Error(),
		})
	}
	return res
}

func (p *Parser) resolveID(rec record) string {
	_, parent, ok := rec.lookup(p.id)
	if !ok {
		return ""
	}
	var child string
	if _, c, ok := rec.lookup(p.child); ok {
		child = idString(c)
	}
	return ResolveID(idString(parent), child, p.separator)
}

func (p *Parser) excluded(rec record) bool {
	if len(p.markers) == 0 {
		return false
	}
	for _, name := range p.exclude {
		v, ok := rec[name]
		if !ok || isBlank(v) {
			continue
		}
		text := strings.ToLower(idString(v))
		for _, m := range p.markers {
			if strings.Contains(text, m) {
				return true
			}
		}
	}
	return false
}

func rowNumber(rec record) int {
	switch v := rec[RowKey].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
