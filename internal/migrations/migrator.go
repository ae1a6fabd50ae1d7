package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/jbweber/homelab/policyd/internal/dialect"
)

// Migration represents a database migration with up and down functions.
// Both run inside the transaction that records the version change.
type Migration struct {
	Version int64
	Name    string
	Up      func(tx *sql.Tx, d dialect.Dialect) error
	Down    func(tx *sql.Tx, d dialect.Dialect) error
}

// Migrator handles database migrations
type Migrator struct {
	db         *sql.DB
	dialect    dialect.Dialect
	migrations []Migration
}

// NewMigrator creates a new migrator instance
func NewMigrator(db *sql.DB, d dialect.Dialect) *Migrator {
	return &Migrator{
		db:         db,
		dialect:    d,
		migrations: []Migration{},
	}
}

// NewDefaultMigrator returns a migrator loaded with every policyd migration
func NewDefaultMigrator(db *sql.DB, d dialect.Dialect) *Migrator {
	m := NewMigrator(db, d)
	for _, migration := range All() {
		m.AddMigration(migration)
	}
	return m
}

// All returns every policyd migration in version order
func All() []Migration {
	all := append(GetInitialMigrations(), GetPerformanceMigrations()...)
	sort.Slice(all, func(i, j int) bool {
		return all[i].Version < all[j].Version
	})
	return all
}

// AddMigration adds a migration to the migrator
func (m *Migrator) AddMigration(migration Migration) {
	m.migrations = append(m.migrations, migration)
	sort.Slice(m.migrations, func(i, j int) bool {
		return m.migrations[i].Version < m.migrations[j].Version
	})
}

// RunMigrations runs all pending migrations
func (m *Migrator) RunMigrations(ctx context.Context) error {
	if err := m.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := m.getCurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, migration := range m.migrations {
		if migration.Version > currentVersion {
			if err := m.runMigration(ctx, migration); err != nil {
				return fmt.Errorf("failed to run migration %d (%s): %w", migration.Version, migration.Name, err)
			}
		}
	}

	return nil
}

// RollbackLast reverts the most recently applied migration.
// It returns the version that was reverted, or 0 when nothing was applied.
func (m *Migrator) RollbackLast(ctx context.Context) (int64, error) {
	if err := m.createMigrationsTable(ctx); err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := m.getCurrentVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	if currentVersion == 0 {
		return 0, nil
	}

	for _, migration := range m.migrations {
		if migration.Version != currentVersion {
			continue
		}
		if migration.Down == nil {
			return 0, fmt.Errorf("migration %d (%s) cannot be reverted", migration.Version, migration.Name)
		}
		err := m.inTx(ctx, func(tx *sql.Tx) error {
			if err := migration.Down(tx, m.dialect); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, m.dialect.Rebind("DELETE FROM schema_migrations WHERE version = ?"), migration.Version)
			return err
		})
		if err != nil {
			return 0, fmt.Errorf("failed to revert migration %d (%s): %w", migration.Version, migration.Name, err)
		}
		return migration.Version, nil
	}

	return 0, fmt.Errorf("applied migration %d is not registered", currentVersion)
}

// createMigrationsTable creates the migrations tracking table
func (m *Migrator) createMigrationsTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// getCurrentVersion returns the current migration version
func (m *Migrator) getCurrentVersion(ctx context.Context) (int64, error) {
	var version int64
	err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// runMigration executes a single migration and records it atomically
func (m *Migrator) runMigration(ctx context.Context, migration Migration) error {
	return m.inTx(ctx, func(tx *sql.Tx) error {
		if err := migration.Up(tx, m.dialect); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			m.dialect.Rebind("INSERT INTO schema_migrations (version, name) VALUES (?, ?)"),
			migration.Version, migration.Name)
		return err
	})
}

func (m *Migrator) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	// Rollback after Commit is a no-op returning ErrTxDone
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// GetCurrentVersion returns the current migration version (public method)
func (m *Migrator) GetCurrentVersion(ctx context.Context) (int64, error) {
	if err := m.createMigrationsTable(ctx); err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}
	return m.getCurrentVersion(ctx)
}

// GetMigrations returns all registered migrations
func (m *Migrator) GetMigrations() []Migration {
	return m.migrations
}
