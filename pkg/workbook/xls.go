package workbook

import (
	"bytes"
	"fmt"

	"github.com/extrame/xls"
)

// BIFF8 sheets are at most 256 columns wide.
const maxXLSColumns = 256

func readXLS(data []byte, sheet string) ([][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "cp1252")
	if err != nil {
		return nil, fmt.Errorf("error creating workbook: %w", err)
	}

	var (
		ws    *xls.WorkSheet
		names []string
	)
	for i := 0; i < wb.NumSheets(); i++ {
		s := wb.GetSheet(i)
		if s == nil {
			continue
		}
		names = append(names, s.Name)
		if _, ok := matchSheet([]string{s.Name}, sheet); ok && ws == nil {
			ws = s
		}
	}
	if ws == nil {
		return nil, sheetNotFound(sheet, names)
	}

	rows := make([][]string, 0, int(ws.MaxRow)+1)
	for i := 0; i <= int(ws.MaxRow); i++ {
		row := sheetRow(ws, i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, 0, 8)
		for c := 0; c < maxXLSColumns; c++ {
			cells = append(cells, row.Col(c))
		}
		rows = append(rows, trimTrailing(cells))
	}
	return rows, nil
}

// sheetRow returns row i, or nil when the file never defined it;
// WorkSheet.Row dereferences missing rows.
func sheetRow(ws *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return ws.Row(i)
}

func trimTrailing(cells []string) []string {
	n := len(cells)
	for n > 0 && cells[n-1] == "" {
		n--
	}
	return cells[:n]
}
