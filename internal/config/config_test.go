package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/homelab/policyd/internal/dialect"
)

func TestNewConfig(t *testing.T) {
	config := NewConfig()

	if config == nil {
		t.Fatal("Expected non-nil config")
	}

	if config.Database.Path != "~/policyd/data/policyd.db" {
		t.Errorf("Expected Database.Path '~/policyd/data/policyd.db', got '%s'", config.Database.Path)
	}

	if config.Server.Port != 8080 {
		t.Errorf("Expected Port 8080, got %d", config.Server.Port)
	}

	if config.Database.Driver != "sqlite" {
		t.Errorf("Expected sqlite driver, got '%s'", config.Database.Driver)
	}

	if !config.Validation.NonNegativeAmounts || !config.Validation.RequireDateOrder {
		t.Error("Expected validation rules to be enabled by default")
	}
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, NewConfig().Server, cfg.Server)
	assert.Equal(t, NewConfig().Database, cfg.Database)
	assert.Equal(t, "policyd:policies", cfg.Redis.Channel)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.True(t, cfg.Validation.NonNegativeAmounts)
	assert.True(t, cfg.Validation.RequireDateOrder)
	assert.Empty(t, cfg.Validation.AllowedTypes)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policyd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
  read_timeout: 2s
database:
  driver: pgx
  url: postgres://policyd@localhost/policyd
logger:
  level: debug
  format: console
validation:
  require_date_order: false
  allowed_types: [AUTO, HOME]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, "postgres://policyd@localhost/policyd", cfg.Database.URL)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.True(t, cfg.Validation.NonNegativeAmounts)
	assert.False(t, cfg.Validation.RequireDateOrder)
	assert.Equal(t, []string{"AUTO", "HOME"}, cfg.Validation.AllowedTypes)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policyd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))

	t.Setenv("POLICYD_SERVER_PORT", "7070")
	t.Setenv("POLICYD_REDIS_ADDR", "localhost:6379")
	t.Setenv("POLICYD_VALIDATION_NON_NEGATIVE_AMOUNTS", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.False(t, cfg.Validation.NonNegativeAmounts)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestServerConfig_Addr(t *testing.T) {
	assert.Equal(t, ":8080", ServerConfig{Port: 8080}.Addr())
	assert.Equal(t, "127.0.0.1:9000", ServerConfig{Host: "127.0.0.1", Port: 9000}.Addr())
}

func TestValidationConfig_Rules(t *testing.T) {
	rules := ValidationConfig{NonNegativeAmounts: true, AllowedTypes: []string{"AUTO"}}.Rules()

	assert.True(t, rules.NonNegativeAmounts)
	assert.False(t, rules.RequireDateOrder)
	assert.Equal(t, []string{"AUTO"}, rules.AllowedTypes)
}

func TestConfig_expandPath_WithTilde(t *testing.T) {
	config := NewConfig()

	path := "~/test/path"
	expanded := config.expandPath(path)

	if strings.HasPrefix(expanded, "~/") {
		t.Errorf("Expected path to be expanded, got '%s'", expanded)
	}

	if !strings.HasSuffix(expanded, "test/path") {
		t.Errorf("Expected expanded path to end with 'test/path', got '%s'", expanded)
	}
}

func TestConfig_expandPath_WithoutTilde(t *testing.T) {
	config := NewConfig()

	path := "/absolute/path"
	expanded := config.expandPath(path)

	if expanded != path {
		t.Errorf("Expected path to remain unchanged, got '%s'", expanded)
	}
}

func TestConfig_expandPath_RelativePath(t *testing.T) {
	config := NewConfig()

	path := "relative/path"
	expanded := config.expandPath(path)

	if expanded != path {
		t.Errorf("Expected path to remain unchanged, got '%s'", expanded)
	}
}

func TestConfig_InitializeDatabase_Success(t *testing.T) {
	config := NewConfig()
	config.Database.Path = filepath.Join(t.TempDir(), "test.db")

	ds, err := config.InitializeDatabase(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer ds.Close()

	if ds.Dialect != dialect.SQLite {
		t.Errorf("Expected sqlite dialect, got %s", ds.Dialect)
	}

	if err := ds.Ping(context.Background()); err != nil {
		t.Errorf("Database ping failed: %v", err)
	}

	var tableName string
	err = ds.DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='policies'").Scan(&tableName)
	if err != nil {
		t.Errorf("Expected policies table to exist: %v", err)
	}
}

func TestConfig_InitializeDatabase_DirectoryCreation(t *testing.T) {
	config := NewConfig()

	// Set path to a nested directory that doesn't exist
	config.Database.Path = filepath.Join(t.TempDir(), "nested", "path", "test.db")

	ds, err := config.InitializeDatabase(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer ds.Close()

	dbDir := filepath.Dir(config.Database.Path)
	if _, err := os.Stat(dbDir); os.IsNotExist(err) {
		t.Errorf("Expected directory to be created: %s", dbDir)
	}
}

func TestConfig_InitializeDatabase_InvalidPath(t *testing.T) {
	config := NewConfig()

	// A regular file cannot be used as a parent directory
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	config.Database.Path = filepath.Join(blocker, "policyd.db")

	ds, err := config.InitializeDatabase(context.Background())
	if err == nil {
		ds.Close()
		t.Fatal("Expected error for invalid path")
	}

	if !strings.Contains(err.Error(), "failed to create database directory") {
		t.Errorf("Expected directory creation error, got: %v", err)
	}
}

func TestConfig_InitializeDatabase_UnknownDriver(t *testing.T) {
	config := NewConfig()
	config.Database.Driver = "mysql"

	_, err := config.InitializeDatabase(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestConfig_InitializeDatabase_PostgresRequiresURL(t *testing.T) {
	config := NewConfig()
	config.Database.Driver = "pgx"

	_, err := config.InitializeDatabase(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url")
}

// chdir changes the working directory for the duration of the test
// (equivalent to testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(wd)) })
}
