// Package workbook reads payment worksheets into raw records: the first row
// holds the headers, every following row becomes one record.
package workbook

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/paybills/pkg/models"
	"github.com/yurifrl/paybills/pkg/parser"
)

// SheetKey is the raw record field naming the worksheet a row came from.
const SheetKey = "__sheet__"

var (
	// ErrSheetNotFound is returned when the workbook has no such worksheet.
	ErrSheetNotFound = errors.New("worksheet not found")
	// ErrUnsupportedFormat is returned for extensions no reader handles.
	ErrUnsupportedFormat = errors.New("unsupported workbook format")
)

// Sheet shortcuts accepted in place of a full worksheet name.
var sheetAliases = map[string]string{
	"vendor":    "account debit vendor",
	"nonvendor": "account debit nonvendor",
}

// SheetName expands a shortcut into the worksheet name.
func SheetName(sheet string) string {
	if full, ok := sheetAliases[strings.ToLower(strings.TrimSpace(sheet))]; ok {
		return full
	}
	return sheet
}

type Reader struct {
	logger *log.Logger
}

func New(logger *log.Logger) *Reader {
	return &Reader{logger: logger}
}

// ReadFile reads sheet from the workbook at path. Missing files and sheets
// are structural failures and abort the read.
func (r *Reader) ReadFile(path, sheet string) ([]models.RawRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook %s: %w", path, err)
	}
	return r.ReadBytes(data, filepath.Base(path), sheet)
}

// ReadBytes reads sheet from workbook content; filename selects the format.
func (r *Reader) ReadBytes(data []byte, filename, sheet string) ([]models.RawRecord, error) {
	sheet = SheetName(sheet)
	format := strings.ToLower(filepath.Ext(filename))
	r.logger.Debug("reading workbook", "file", filename, "format", format, "sheet", sheet)

	var (
		rows [][]string
		err  error
	)
	switch format {
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(data, sheet)
	case ".xls":
		rows, err = readXLS(data, sheet)
	case ".csv":
		rows, err = readCSV(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
	if err != nil {
		return nil, err
	}

	records := toRecords(rows, sheet)
	r.logger.Info("loaded rows", "file", filename, "sheet", sheet, "count", len(records))
	return records, nil
}

// toRecords maps every data row onto the header row. Missing or empty
// headers become column_<i>; fully empty rows are dropped.
func toRecords(rows [][]string, sheet string) []models.RawRecord {
	if len(rows) == 0 {
		return []models.RawRecord{}
	}

	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}

	headers := make([]string, width)
	for i := range headers {
		var h string
		if i < len(rows[0]) {
			h = strings.TrimSpace(rows[0][i])
		}
		if h == "" {
			h = fmt.Sprintf("column_%d", i)
		}
		headers[i] = h
	}

	records := make([]models.RawRecord, 0, len(rows)-1)
	for n, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		rec := make(models.RawRecord, len(headers)+2)
		for i, h := range headers {
			var v any
			if i < len(row) && strings.TrimSpace(row[i]) != "" {
				v = row[i]
			}
			rec[h] = v
		}
		rec[SheetKey] = sheet
		rec[parser.RowKey] = n + 2
		records = append(records, rec)
	}
	return records
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func sheetNotFound(sheet string, available []string) error {
	return fmt.Errorf("%w: %q (have %s)", ErrSheetNotFound, sheet, strings.Join(available, ", "))
}
