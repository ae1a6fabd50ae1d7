package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jbweber/homelab/policyd/internal/datastore"
	"github.com/jbweber/homelab/policyd/internal/dialect"
	"github.com/jbweber/homelab/policyd/internal/validation"
)

// EnvPrefix prefixes every environment override, e.g. POLICYD_SERVER_PORT
const EnvPrefix = "POLICYD"

// Config holds all configuration for the policyd service
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Validation ValidationConfig `mapstructure:"validation"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// DatabaseConfig selects the store and tunes its connection pool.
// Path is used by sqlite, URL by pgx.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// RedisConfig configures the change event publisher. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// LoggerConfig configures the zap logger
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// ValidationConfig toggles the optional request validation rules
type ValidationConfig struct {
	NonNegativeAmounts bool     `mapstructure:"non_negative_amounts"`
	RequireDateOrder   bool     `mapstructure:"require_date_order"`
	AllowedTypes       []string `mapstructure:"allowed_types"`
}

// Rules converts the configuration into a validation rule set
func (v ValidationConfig) Rules() validation.Rules {
	return validation.Rules{
		NonNegativeAmounts: v.NonNegativeAmounts,
		RequireDateOrder:   v.RequireDateOrder,
		AllowedTypes:       v.AllowedTypes,
	}
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          string(dialect.SQLite),
			Path:            "~/policyd/data/policyd.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 1 * time.Minute,
		},
		Redis: RedisConfig{
			Channel: "policyd:policies",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "json",
		},
		Validation: ValidationConfig{
			NonNegativeAmounts: true,
			RequireDateOrder:   true,
			AllowedTypes:       []string{},
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// POLICYD_* environment variables, in increasing order of precedence.
// When path is empty, policyd.yaml is looked up in . and ./configs and
// may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("policyd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := NewConfig()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", d.Database.ConnMaxIdleTime)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.channel", d.Redis.Channel)

	v.SetDefault("logger.level", d.Logger.Level)
	v.SetDefault("logger.format", d.Logger.Format)

	v.SetDefault("validation.non_negative_amounts", d.Validation.NonNegativeAmounts)
	v.SetDefault("validation.require_date_order", d.Validation.RequireDateOrder)
	v.SetDefault("validation.allowed_types", d.Validation.AllowedTypes)
}

// InitializeDatabase opens the configured datastore, tunes it and runs migrations
func (c *Config) InitializeDatabase(ctx context.Context) (*datastore.Datastore, error) {
	ds, err := c.OpenDatabase(ctx)
	if err != nil {
		return nil, err
	}

	if err := ds.Migrate(ctx); err != nil {
		_ = ds.Close()
		return nil, err
	}

	return ds, nil
}

// OpenDatabase opens and tunes the configured datastore without migrating it
func (c *Config) OpenDatabase(ctx context.Context) (*datastore.Datastore, error) {
	d, err := dialect.Parse(c.Database.Driver)
	if err != nil {
		return nil, err
	}

	dsn, err := c.dsn(d)
	if err != nil {
		return nil, err
	}

	ds, err := datastore.Open(ctx, d, dsn)
	if err != nil {
		return nil, err
	}

	OptimizeDatabaseConnection(ds.DB, c.Database)

	if d == dialect.SQLite {
		if err := ApplyPragmaOptimizations(ctx, ds.DB); err != nil {
			_ = ds.Close()
			return nil, fmt.Errorf("failed to apply performance optimizations: %w", err)
		}
	}

	return ds, nil
}

func (c *Config) dsn(d dialect.Dialect) (string, error) {
	if d == dialect.Postgres {
		if c.Database.URL == "" {
			return "", errors.New("database.url is required for the pgx driver")
		}
		return c.Database.URL, nil
	}

	dbPath := c.expandPath(c.Database.Path)

	// Ensure database directory exists
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return dbPath, nil
}

// expandPath expands ~ to home directory
func (c *Config) expandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Return original path if we can't get home dir
		return path
	}

	return filepath.Join(homeDir, path[2:])
}
