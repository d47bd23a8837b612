// Package ledger defines what the reconciliation pipeline needs from the
// accounting system of record.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/yurifrl/paybills/pkg/models"
)

// Gateway is one open session with the ledger.
type Gateway interface {
	// Payments returns the existing bill payments as raw records; the
	// payment identifier travels in the "Memo" field.
	Payments(ctx context.Context) ([]models.RawRecord, error)
	// OpenObligations lists unpaid bills for vendor.
	OpenObligations(ctx context.Context, vendor string) ([]models.Obligation, error)
	// Submit creates the payments in one batch, continuing past individual
	// failures. Only payments the ledger created are returned, refreshed
	// with its authoritative fields.
	Submit(ctx context.Context, batch []models.Submission) ([]models.Payment, error)
	Close() error
}

// Opener starts a ledger session.
type Opener func(ctx context.Context) (Gateway, error)

// CollaboratorError wraps a ledger call that failed as a whole.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// Wrap returns err as a *CollaboratorError for op, or nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var cerr *CollaboratorError
	if errors.As(err, &cerr) {
		return err
	}
	return &CollaboratorError{Op: op, Err: err}
}

// WithSession opens a gateway, runs fn with it and always closes it. A close
// failure is reported only when fn succeeded.
func WithSession(ctx context.Context, open Opener, fn func(Gateway) error) (err error) {
	gw, err := open(ctx)
	if err != nil {
		return Wrap("open", err)
	}
	defer func() {
		if cerr := gw.Close(); cerr != nil && err == nil {
			err = Wrap("close", cerr)
		}
	}()
	return fn(gw)
}
