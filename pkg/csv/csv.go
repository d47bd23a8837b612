package csv

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Record is one CSV row.
type Record interface {
	Values() []string
}

type FilterFunc[T Record] func(T) bool

// Create renders header followed by every record the filter keeps. A nil
// filter keeps everything.
func Create[T Record](header []string, records []T, filter FilterFunc[T]) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, r := range records {
		if filter == nil || filter(r) {
			if err := w.Write(r.Values()); err != nil {
				return nil, fmt.Errorf("failed to write csv row: %w", err)
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}
	return buf.Bytes(), nil
}
