package migrations

import (
	"database/sql"

	"github.com/jbweber/homelab/policyd/internal/dialect"
)

// GetInitialMigrations returns all initial migrations
func GetInitialMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_policies_table",
			Up: func(tx *sql.Tx, d dialect.Dialect) error {
				_, err := tx.Exec(createPoliciesTable(d))
				return err
			},
			Down: func(tx *sql.Tx, d dialect.Dialect) error {
				_, err := tx.Exec(`DROP TABLE IF EXISTS policies`)
				return err
			},
		},
	}
}

// createPoliciesTable returns the policies DDL for the dialect.
// SQLite keeps amounts as TEXT so decimals survive without float rounding.
func createPoliciesTable(d dialect.Dialect) string {
	if d == dialect.Postgres {
		return `
			CREATE TABLE IF NOT EXISTS policies (
				id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
				policy_number TEXT NOT NULL,
				type TEXT NOT NULL,
				coverage_amount NUMERIC(19,2) NOT NULL,
				premium NUMERIC(19,2) NOT NULL,
				start_date DATE NOT NULL,
				end_date DATE NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
			)
		`
	}
	return `
		CREATE TABLE IF NOT EXISTS policies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			policy_number TEXT NOT NULL,
			type TEXT NOT NULL,
			coverage_amount TEXT NOT NULL,
			premium TEXT NOT NULL,
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`
}
