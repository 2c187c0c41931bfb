package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for the provenance index.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS invocations (
		id           TEXT PRIMARY KEY,
		plugin_id    TEXT NOT NULL,
		action_id    TEXT NOT NULL,
		stage        TEXT NOT NULL DEFAULT 'IDLE',
		inputs       TEXT NOT NULL DEFAULT '{}',
		created_at   TEXT NOT NULL,
		completed_at TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS results (
		id            TEXT PRIMARY KEY,
		invocation_id TEXT NOT NULL REFERENCES invocations(id) ON DELETE CASCADE,
		name          TEXT NOT NULL,
		uuid          TEXT NOT NULL,
		type          TEXT NOT NULL,
		format        TEXT NOT NULL DEFAULT '',
		path          TEXT NOT NULL,
		size          INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_invocations_plugin ON invocations(plugin_id, action_id)`,
	`CREATE INDEX IF NOT EXISTS idx_invocations_stage ON invocations(stage)`,
	`CREATE INDEX IF NOT EXISTS idx_results_invocation_id ON results(invocation_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_results_uuid ON results(uuid)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // Optional index to create after column is added
}{
	{
		table:    "invocations",
		column:   "error_kind",
		alterSQL: "ALTER TABLE invocations ADD COLUMN error_kind TEXT NOT NULL DEFAULT ''",
		indexSQL: "CREATE INDEX IF NOT EXISTS idx_invocations_error_kind ON invocations(error_kind) WHERE error_kind != ''",
	},
	{
		table:    "invocations",
		column:   "error",
		alterSQL: "ALTER TABLE invocations ADD COLUMN error TEXT NOT NULL DEFAULT ''",
	},
}

// migrate executes all schema DDL statements, alter migrations, and post-migration indexes.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			return nil // Column already exists
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, alterSQL)
	return err
}
