// ABOUTME: The ordered list of schema migrations for the main workspace database
// ABOUTME: New migrations are appended here, never inserted or reordered

package migrate

import (
	"context"
	"fmt"

	"github.com/mcpr/mcpr-gateway/internal/store"
)

// Registered returns the full migration history in application order.
// Databases created by older releases converge to the current schema by
// replaying whatever suffix of this list their ledger has not recorded.
func Registered() []Migration {
	return []Migration{
		{
			ID:          "20240912-add-server-type",
			Description: "add server_type column to servers",
			Apply:       addColumn("servers", "server_type", "TEXT NOT NULL DEFAULT 'local'"),
		},
		{
			ID:          "20240912-add-remote-url",
			Description: "add remote_url column to servers",
			Apply:       addColumn("servers", "remote_url", "TEXT"),
		},
		{
			ID:          "20241003-add-bearer-token",
			Description: "add bearer_token column to servers",
			Apply:       addColumn("servers", "bearer_token", "TEXT"),
		},
		{
			ID:          "20241105-add-server-description",
			Description: "add description column to servers",
			Apply:       addColumn("servers", "description", "TEXT"),
		},
		{
			ID:          "20241105-add-server-version",
			Description: "add version column to servers",
			Apply:       addColumn("servers", "version", "TEXT"),
		},
		{
			ID:          "20250122-create-tokens",
			Description: "create tokens table",
			Apply: func(ctx context.Context, db *store.DB) error {
				_, err := db.ExecContext(ctx, `
					CREATE TABLE IF NOT EXISTS tokens (
						id            TEXT PRIMARY KEY,
						client_id     TEXT NOT NULL,
						issued_at     INTEGER NOT NULL,
						server_access TEXT NOT NULL DEFAULT '{}'
					)
				`)
				return err
			},
		},
		{
			ID:          "20250214-add-server-project",
			Description: "add project_id column to servers",
			Apply:       addColumn("servers", "project_id", "TEXT"),
		},
	}
}

// addColumn builds an apply-function that adds a column to a table, skipping
// the ALTER when the column already exists or the table has not been created
// yet. Repositories create tables with the current full schema, so a fresh
// database needs none of these ALTERs.
func addColumn(table, column, definition string) func(context.Context, *store.DB) error {
	return func(ctx context.Context, db *store.DB) error {
		hasTable, err := db.HasTable(ctx, table)
		if err != nil {
			return err
		}
		if !hasTable {
			return nil
		}

		hasColumn, err := db.HasColumn(ctx, table, column)
		if err != nil {
			return err
		}
		if hasColumn {
			return nil
		}

		_, err = db.ExecContext(ctx,
			fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
		return err
	}
}
