package datastore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/jbweber/homelab/policyd/internal/dialect"
	"github.com/jbweber/homelab/policyd/internal/migrations"
)

// Datastore owns the database handle and the dialect it speaks
type Datastore struct {
	DB      *sql.DB
	Dialect dialect.Dialect
}

// Open connects to the database named by dsn and verifies the connection.
// Migrations are not run.
func Open(ctx context.Context, d dialect.Dialect, dsn string) (*Datastore, error) {
	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d, err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", d, err)
	}

	if d == dialect.SQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	return &Datastore{DB: db, Dialect: d}, nil
}

// Migrate applies all pending schema migrations
func (ds *Datastore) Migrate(ctx context.Context) error {
	if err := migrations.NewDefaultMigrator(ds.DB, ds.Dialect).RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// SchemaVersion returns the most recently applied migration version
func (ds *Datastore) SchemaVersion(ctx context.Context) (int64, error) {
	return migrations.NewDefaultMigrator(ds.DB, ds.Dialect).GetCurrentVersion(ctx)
}

// Ping reports whether the database is reachable
func (ds *Datastore) Ping(ctx context.Context) error {
	return ds.DB.PingContext(ctx)
}

// Close closes the underlying database handle
func (ds *Datastore) Close() error {
	return ds.DB.Close()
}
