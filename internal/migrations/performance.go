package migrations

import (
	"database/sql"

	"github.com/jbweber/homelab/policyd/internal/dialect"
)

// GetPerformanceMigrations returns performance optimization migrations
func GetPerformanceMigrations() []Migration {
	return []Migration{
		{
			Version: 2,
			Name:    "add_policy_number_index",
			Up: func(tx *sql.Tx, _ dialect.Dialect) error {
				_, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_policies_policy_number ON policies(policy_number)")
				return err
			},
			Down: func(tx *sql.Tx, _ dialect.Dialect) error {
				_, err := tx.Exec("DROP INDEX IF EXISTS idx_policies_policy_number")
				return err
			},
		},
	}
}
