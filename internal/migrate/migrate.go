// ABOUTME: Ordered, ledgered schema migration engine for workspace databases
// ABOUTME: Each migration runs exactly once per database, tracked in a migrations table

package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcpr/mcpr-gateway/internal/store"
)

// Migration is a single schema change. ID must be globally unique and sort
// by creation time (YYYYMMDD prefix by convention). Apply must guard its own
// side effect (e.g. add a column only if absent) so that a migration which
// partially applied before a crash converges when re-attempted.
type Migration struct {
	ID          string
	Description string
	Apply       func(ctx context.Context, db *store.DB) error
}

// Engine applies registered migrations in registration order against a
// storage handle. The ledger table in each database records which migration
// ids have completed there; the same id is tracked independently per
// database.
type Engine struct {
	migrations []Migration
	logger     *slog.Logger
}

// NewEngine creates an engine with the given ordered migration list.
func NewEngine(migrations []Migration) *Engine {
	return &Engine{
		migrations: migrations,
		logger:     slog.Default().With("component", "migrate"),
	}
}

// Migrations returns the registered list in order.
func (e *Engine) Migrations() []Migration {
	return e.migrations
}

// Run applies all pending migrations against the given handle.
//
// The ledger is the sole source of truth for "already applied": completed
// ids are skipped without invoking Apply. Migrations execute strictly in
// registration order; on the first failure the engine stops, records
// nothing for the failed migration, and returns the error. A partially
// migrated database is a visible failure, never silently skipped.
func (e *Engine) Run(ctx context.Context, db *store.DB) error {
	if err := e.ensureLedger(ctx, db); err != nil {
		return err
	}

	completed, err := e.completedIDs(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range e.migrations {
		if completed[m.ID] {
			continue
		}

		e.logger.Info("applying migration", "id", m.ID, "description", m.Description)

		if err := m.Apply(ctx, db); err != nil {
			e.logger.Error("migration failed",
				"id", m.ID,
				"description", m.Description,
				"error", err,
			)
			return fmt.Errorf("migration %s (%s): %w", m.ID, m.Description, err)
		}

		if err := e.recordComplete(ctx, db, m.ID); err != nil {
			return fmt.Errorf("recording migration %s: %w", m.ID, err)
		}
	}

	return nil
}

// ensureLedger creates the ledger table if it does not exist.
func (e *Engine) ensureLedger(ctx context.Context, db *store.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			id          TEXT PRIMARY KEY,
			executed_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}
	return nil
}

// completedIDs loads the set of migration ids already recorded in the ledger.
func (e *Engine) completedIDs(ctx context.Context, db *store.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT id FROM migrations")
	if err != nil {
		return nil, fmt.Errorf("reading migration ledger: %w", err)
	}
	defer rows.Close()

	completed := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		completed[id] = true
	}
	return completed, rows.Err()
}

// recordComplete appends a ledger entry for the given migration id.
func (e *Engine) recordComplete(ctx context.Context, db *store.DB, id string) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO migrations (id, executed_at) VALUES (?, ?)",
		id, time.Now().Unix(),
	)
	return err
}
