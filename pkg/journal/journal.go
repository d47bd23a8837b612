// Package journal remembers which payments the ledger acknowledged, so a
// re-run does not submit them again while the ledger read still lags.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/yurifrl/paybills/pkg/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Journal is a sqlite-backed record of acknowledged submissions.
type Journal struct {
	db     *sql.DB
	logger *log.Logger
}

// Open opens (creating if needed) the journal at path and applies migrations.
func Open(path string, logger *log.Logger) (*Journal, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("journal ready", "path", path)
	return &Journal{db: db, logger: logger}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load journal migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create journal migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create journal migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate journal: %w", err)
	}
	return nil
}

// Submitted returns the subset of ids already acknowledged in an earlier run.
func (j *Journal) Submitted(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := "SELECT record_id FROM submissions WHERE record_id IN (?" + strings.Repeat(",?", len(ids)-1) + ")"

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// Record stores the payments the ledger acknowledged in run runID.
func (j *Journal) Record(ctx context.Context, runID string, payments []models.Payment) error {
	if len(payments) == 0 {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin journal transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO submissions (record_id, run_id, payment_date, amount, vendor, submitted_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(record_id) DO UPDATE SET run_id = excluded.run_id, payment_date = excluded.payment_date,
  amount = excluded.amount, vendor = excluded.vendor, submitted_at = excluded.submitted_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare journal insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, p := range payments {
		if _, err := stmt.ExecContext(ctx, p.ID, runID, p.DateString(), p.Amount.StringFixed(2), p.Vendor, now); err != nil {
			return fmt.Errorf("failed to journal payment %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit journal: %w", err)
	}
	j.logger.Debug("journaled submissions", "run_id", runID, "count", len(payments))
	return nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
