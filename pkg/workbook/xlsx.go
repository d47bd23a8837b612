package workbook

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

func readXLSX(data []byte, sheet string) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error opening workbook: %w", err)
	}
	defer f.Close()

	names := f.GetSheetList()
	name, ok := matchSheet(names, sheet)
	if !ok {
		return nil, sheetNotFound(sheet, names)
	}

	// Raw values keep dates as serials and amounts at full precision; the
	// displayed text depends on the cell's number format.
	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("error reading sheet %q: %w", name, err)
	}
	return rows, nil
}

// matchSheet finds sheet among names, ignoring case and surrounding spaces.
func matchSheet(names []string, sheet string) (string, bool) {
	want := strings.ToLower(strings.TrimSpace(sheet))
	for _, n := range names {
		if strings.ToLower(strings.TrimSpace(n)) == want {
			return n, true
		}
	}
	return "", false
}
