package parser

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAmount marks a row without an amount. Such rows are not payments
	// and are skipped rather than reported.
	ErrNoAmount = errors.New("no amount")
	// ErrNoDate marks a row without a date value.
	ErrNoDate = errors.New("no date")
	// ErrExcluded marks a row carrying an exclusion marker.
	ErrExcluded = errors.New("excluded by marker")
)

// NormalizationError names the row and field a raw record failed on.
type NormalizationError struct {
	Row   int
	Field string
	Value any
	Err   error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("row %d: field %q value %v: %v", e.Row, e.Field, e.Value, e.Err)
}

func (e *NormalizationError) Unwrap() error {
	return e.Err
}

// ResolutionError is returned when no join key can be derived from a row.
type ResolutionError struct {
	Row int
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("row %d: no identifier", e.Row)
}

// Skippable reports whether err only means the row is not a payment.
func Skippable(err error) bool {
	return errors.Is(err, ErrNoAmount) || errors.Is(err, ErrExcluded)
}
