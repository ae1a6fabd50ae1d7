package testutil

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/jbweber/homelab/policyd/internal/dialect"
	"github.com/jbweber/homelab/policyd/internal/migrations"
)

// CleanupTestDB removes the test database file. In-memory databases are left alone.
func CleanupTestDB(dsn string) error {
	if !strings.HasPrefix(dsn, "file:") {
		return errors.New("invalid DSN format")
	}

	path, query, _ := strings.Cut(dsn[len("file:"):], "?")
	if strings.Contains(query, "mode=memory") {
		return nil
	}
	return os.Remove(path)
}

// SetupTestDB creates and returns a test database connection.
// The connection is closed when the test finishes; the returned func may
// be used to close it earlier.
func SetupTestDB(t *testing.T, testName string) (*sql.DB, func()) {
	t.Helper()

	dsn := NewTestDSN(testName)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// One connection keeps the shared in-memory database free of table locks
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}

	closed := false
	cleanup := func() {
		if closed {
			return
		}
		closed = true
		db.Close()
		CleanupTestDB(dsn)
	}
	t.Cleanup(cleanup)

	return db, cleanup
}

// SetupTestDBWithMigrations is SetupTestDB with the full schema applied
func SetupTestDBWithMigrations(t *testing.T, testName string) (*sql.DB, func()) {
	t.Helper()

	db, cleanup := SetupTestDB(t, testName)

	if err := migrations.NewDefaultMigrator(db, dialect.SQLite).RunMigrations(context.Background()); err != nil {
		cleanup()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db, cleanup
}
