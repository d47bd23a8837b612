package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/charmbracelet/log"
	"github.com/xuri/excelize/v2"

	"github.com/yurifrl/paybills/pkg/csv"
)

const gcsScheme = "gs://"

var csvHeader = []string{
	"section", "record_id", "reason", "date", "amount", "vendor",
	"external_amount", "ledger_amount", "external_date", "ledger_date", "external_vendor", "ledger_vendor",
}

type csvRow []string

func (r csvRow) Values() []string { return r }

// Writer persists payloads to local files or Cloud Storage. The format
// follows the location's extension; anything unknown is written as JSON.
type Writer struct {
	logger *log.Logger
}

func NewWriter(logger *log.Logger) *Writer {
	return &Writer{logger: logger}
}

// Persist writes p to location and returns where it landed.
func (w *Writer) Persist(ctx context.Context, p *Payload, location string) (string, error) {
	if location == "" {
		return "", fmt.Errorf("report location is empty")
	}

	data, err := Encode(p, location)
	if err != nil {
		return "", err
	}

	if strings.HasPrefix(location, gcsScheme) {
		if err := w.writeGCS(ctx, location, data); err != nil {
			return "", err
		}
	} else {
		if dir := filepath.Dir(location); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", fmt.Errorf("failed to create report directory: %w", err)
			}
		}
		if err := os.WriteFile(location, data, 0o644); err != nil {
			return "", fmt.Errorf("failed to write report: %w", err)
		}
	}

	w.logger.Info("report written", "location", location, "status", p.Status, "bytes", len(data))
	return location, nil
}

// Encode renders p in the format named by the extension of name.
func Encode(p *Payload, name string) ([]byte, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv":
		return encodeCSV(p)
	case ".xlsx":
		return encodeXLSX(p)
	default:
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode report: %w", err)
		}
		return append(data, '\n'), nil
	}
}

func encodeCSV(p *Payload) ([]byte, error) {
	return csv.Create(csvHeader, flatten(p), nil)
}

// flatten lists additions, planned additions and conflicts as rows of
// csvHeader.
func flatten(p *Payload) []csvRow {
	rows := make([]csvRow, 0, len(p.PaymentsAdded)+len(p.PaymentsPlanned)+len(p.Conflicts))
	for _, a := range p.PaymentsAdded {
		rows = append(rows, csvRow{"added", a.ID, "", a.Date, a.Amount.String(), str(a.Vendor), "", "", "", "", "", ""})
	}
	for _, a := range p.PaymentsPlanned {
		rows = append(rows, csvRow{"planned", a.ID, "", a.Date, a.Amount.String(), str(a.Vendor), "", "", "", "", "", ""})
	}
	for _, c := range p.Conflicts {
		rows = append(rows, csvRow{
			"conflict", c.RecordID, c.Reason, "", "", "",
			num(c.ExternalAmount), num(c.LedgerAmount),
			str(c.ExternalDate), str(c.LedgerDate),
			str(c.ExternalVendor), str(c.LedgerVendor),
		})
	}
	return rows
}

func encodeXLSX(p *Payload) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "summary"); err != nil {
		return nil, err
	}
	summary := [][]any{
		{"status", p.Status},
		{"run_id", p.RunID},
		{"generated_at", p.GeneratedAt.Format("2006-01-02T15:04:05Z07:00")},
		{"workbook", p.Workbook},
		{"sheet", p.Sheet},
		{"matched_count", p.MatchedCount},
		{"external_only_count", p.ExternalOnlyCount},
		{"ledger_only_count", p.LedgerOnlyCount},
		{"candidate_count", p.CandidateCount},
		{"added_count", p.AddedCount},
		{"skipped_count", len(p.Skipped)},
		{"writeback_attempted", p.WriteBack.Attempted},
		{"writeback_error", p.WriteBack.Error},
		{"error", p.Error},
	}
	if err := setRows(f, "summary", summary); err != nil {
		return nil, err
	}

	added := [][]any{{"id", "date", "amount", "vendor", "source"}}
	for _, a := range p.PaymentsAdded {
		amount, _ := a.Amount.Float64()
		added = append(added, []any{a.ID, a.Date, amount, str(a.Vendor), a.Source})
	}
	if err := addSheet(f, "added", added); err != nil {
		return nil, err
	}

	conflicts := [][]any{{"record_id", "reason", "external_amount", "ledger_amount", "external_date", "ledger_date", "external_vendor", "ledger_vendor"}}
	for _, c := range p.Conflicts {
		conflicts = append(conflicts, []any{
			c.RecordID, c.Reason,
			cellNumber(c.ExternalAmount), cellNumber(c.LedgerAmount),
			str(c.ExternalDate), str(c.LedgerDate),
			str(c.ExternalVendor), str(c.LedgerVendor),
		})
	}
	if err := addSheet(f, "conflicts", conflicts); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to encode xlsx report: %w", err)
	}
	return buf.Bytes(), nil
}

func addSheet(f *excelize.File, name string, rows [][]any) error {
	if _, err := f.NewSheet(name); err != nil {
		return err
	}
	return setRows(f, name, rows)
}

func setRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeGCS(ctx context.Context, location string, data []byte) error {
	bucket, object, err := splitGCS(location)
	if err != nil {
		return err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create storage client: %w", err)
	}
	defer client.Close()

	ow := client.Bucket(bucket).Object(object).NewWriter(ctx)
	ow.ContentType = contentType(object)
	if _, err := ow.Write(data); err != nil {
		ow.Close()
		return fmt.Errorf("failed to upload report: %w", err)
	}
	if err := ow.Close(); err != nil {
		return fmt.Errorf("failed to upload report: %w", err)
	}
	w.logger.Debug("uploaded report", "bucket", bucket, "object", object)
	return nil
}

// splitGCS parses gs://bucket/object.
func splitGCS(location string) (string, string, error) {
	rest := strings.TrimPrefix(location, gcsScheme)
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("invalid storage location %q, want gs://bucket/object", location)
	}
	return bucket, object, nil
}

func contentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func num(n *json.Number) string {
	if n == nil {
		return ""
	}
	return n.String()
}

func cellNumber(n *json.Number) any {
	if n == nil {
		return nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return n.String()
	}
	return f
}
