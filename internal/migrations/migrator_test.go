package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/jbweber/homelab/policyd/internal/dialect"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	t.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Logf("Warning: failed to close test database: %v", closeErr)
		}
	})
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()

	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&count)
	require.NoError(t, err)
	return count == 1
}

func TestMigrator_RunMigrations(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	migrator := NewDefaultMigrator(db, dialect.SQLite)
	require.NoError(t, migrator.RunMigrations(ctx))

	version, err := migrator.GetCurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	assert.True(t, tableExists(t, db, "policies"))
	assert.True(t, tableExists(t, db, "schema_migrations"))

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = 1 AND name = 'create_policies_table'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_policies_policy_number'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMigrator_RunMigrations_Idempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	migrator := NewDefaultMigrator(db, dialect.SQLite)
	require.NoError(t, migrator.RunMigrations(ctx))
	require.NoError(t, migrator.RunMigrations(ctx))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestMigrator_FailedMigrationIsNotRecorded(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, dialect.SQLite)
	migrator.AddMigration(Migration{
		Version: 1,
		Name:    "half_done",
		Up: func(tx *sql.Tx, _ dialect.Dialect) error {
			if _, err := tx.Exec("CREATE TABLE scratch (id INTEGER)"); err != nil {
				return err
			}
			return errors.New("boom")
		},
	})

	err := migrator.RunMigrations(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "half_done")

	version, err := migrator.GetCurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)
	assert.False(t, tableExists(t, db, "scratch"))
}

func TestMigrator_RollbackLast(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	migrator := NewDefaultMigrator(db, dialect.SQLite)
	require.NoError(t, migrator.RunMigrations(ctx))

	reverted, err := migrator.RollbackLast(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), reverted)

	reverted, err = migrator.RollbackLast(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reverted)
	assert.False(t, tableExists(t, db, "policies"))

	reverted, err = migrator.RollbackLast(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), reverted)

	// Reapplying after a full rollback restores the schema
	require.NoError(t, migrator.RunMigrations(ctx))
	assert.True(t, tableExists(t, db, "policies"))
}

func TestMigrator_AddMigration(t *testing.T) {
	migrator := NewMigrator(openTestDB(t), dialect.SQLite)

	// Add migrations out of order
	migrator.AddMigration(Migration{Version: 3, Name: "third"})
	migrator.AddMigration(Migration{Version: 1, Name: "first"})
	migrator.AddMigration(Migration{Version: 2, Name: "second"})

	migrations := migrator.GetMigrations()
	require.Len(t, migrations, 3)
	assert.Equal(t, int64(1), migrations[0].Version)
	assert.Equal(t, int64(2), migrations[1].Version)
	assert.Equal(t, int64(3), migrations[2].Version)
}

func TestAll_VersionsAreUnique(t *testing.T) {
	seen := map[int64]string{}
	for _, m := range All() {
		prev, dup := seen[m.Version]
		assert.False(t, dup, "version %d used by %s and %s", m.Version, prev, m.Name)
		seen[m.Version] = m.Name
		assert.NotNil(t, m.Up, m.Name)
		assert.NotNil(t, m.Down, m.Name)
	}
}

func TestCreatePoliciesTable_Dialects(t *testing.T) {
	assert.Contains(t, createPoliciesTable(dialect.SQLite), "AUTOINCREMENT")
	pg := createPoliciesTable(dialect.Postgres)
	assert.Contains(t, pg, "GENERATED BY DEFAULT AS IDENTITY")
	assert.Contains(t, pg, "NUMERIC(19,2)")
}
