// ABOUTME: Tests for the migration engine
// ABOUTME: Covers ordering, ledger idempotency, and halt-on-failure semantics

package migrate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpr/mcpr-gateway/internal/store"
)

func setupTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func countingMigration(id string, calls *int) Migration {
	return Migration{
		ID:          id,
		Description: "counting " + id,
		Apply: func(ctx context.Context, db *store.DB) error {
			*calls++
			return nil
		},
	}
}

func TestEngine_RunAppliesInOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	var order []string
	record := func(id string) Migration {
		return Migration{
			ID: id,
			Apply: func(ctx context.Context, db *store.DB) error {
				order = append(order, id)
				return nil
			},
		}
	}

	engine := NewEngine([]Migration{record("001"), record("002"), record("003")})
	require.NoError(t, engine.Run(ctx, db))

	assert.Equal(t, []string{"001", "002", "003"}, order)
}

func TestEngine_RunIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	var calls int
	engine := NewEngine([]Migration{
		countingMigration("001", &calls),
		countingMigration("002", &calls),
	})

	require.NoError(t, engine.Run(ctx, db))
	assert.Equal(t, 2, calls)

	// Second run finds both ids in the ledger and applies nothing
	require.NoError(t, engine.Run(ctx, db))
	assert.Equal(t, 2, calls)
}

func TestEngine_FailureHaltsAndRecordsNothingForFailed(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	boom := errors.New("boom")
	var beforeCalls, afterCalls int

	engine := NewEngine([]Migration{
		countingMigration("001", &beforeCalls),
		{
			ID: "002",
			Apply: func(ctx context.Context, db *store.DB) error {
				return boom
			},
		},
		countingMigration("003", &afterCalls),
	})

	err := engine.Run(ctx, db)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, beforeCalls)
	assert.Equal(t, 0, afterCalls)

	// The ledger holds the migration before the failure, nothing from it on
	ledgered := ledgerIDs(t, db)
	assert.Equal(t, []string{"001"}, ledgered)

	// Retrying after the failure picks up from the failed migration
	var retried int
	engine2 := NewEngine([]Migration{
		countingMigration("001", &beforeCalls),
		countingMigration("002", &retried),
		countingMigration("003", &afterCalls),
	})
	require.NoError(t, engine2.Run(ctx, db))
	assert.Equal(t, 1, beforeCalls, "already ledgered migration must not rerun")
	assert.Equal(t, 1, retried)
	assert.Equal(t, 1, afterCalls)
}

func TestEngine_LedgersAreIndependentPerDatabase(t *testing.T) {
	ctx := context.Background()
	db1 := setupTestDB(t)
	db2 := setupTestDB(t)

	var calls int
	engine := NewEngine([]Migration{countingMigration("001", &calls)})

	require.NoError(t, engine.Run(ctx, db1))
	require.NoError(t, engine.Run(ctx, db2))
	assert.Equal(t, 2, calls)
}

func TestRegistered_ConvergesLegacySchema(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Simulate a database from before the column additions
	_, err := db.ExecContext(ctx, `
		CREATE TABLE servers (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)
	`)
	require.NoError(t, err)

	engine := NewEngine(Registered())
	require.NoError(t, engine.Run(ctx, db))

	for _, col := range []string{"server_type", "remote_url", "bearer_token", "description", "version", "project_id"} {
		ok, err := db.HasColumn(ctx, "servers", col)
		require.NoError(t, err)
		assert.True(t, ok, "expected column %s", col)
	}

	ok, err := db.HasTable(ctx, "tokens")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegistered_NoopOnFreshDatabase(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// No servers table exists; every column migration must skip cleanly
	engine := NewEngine(Registered())
	require.NoError(t, engine.Run(ctx, db))
	require.NoError(t, engine.Run(ctx, db))
}

func ledgerIDs(t *testing.T, db *store.DB) []string {
	t.Helper()
	rows, err := db.QueryContext(context.Background(), "SELECT id FROM migrations ORDER BY id")
	require.NoError(t, err)
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	return ids
}
