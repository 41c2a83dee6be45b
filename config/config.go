package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	unifiederrors "cellar/errors"
)

// DefaultPath is used when no --config flag is given
const DefaultPath = "cellar.toml"

// Config represents the complete cellar configuration
type Config struct {
	Version   string          `toml:"version"`
	Database  DatabaseConfig  `toml:"database"`
	RPC       RPCConfig       `toml:"rpc"`
	Sync      SyncConfig      `toml:"sync"`
	Web       WebConfig       `toml:"web"`
	Dashboard DashboardConfig `toml:"dashboard"`
	Logging   LoggingConfig   `toml:"logging"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver             string        `toml:"driver"`
	DSN                string        `toml:"dsn"`
	MaxIdleConns       int           `toml:"max_idle_conns"`
	MaxOpenConns       int           `toml:"max_open_conns"`
	ConnMaxLifetime    time.Duration `toml:"conn_max_lifetime"`
	SlowQueryThreshold time.Duration `toml:"slow_query_threshold"`
}

// RPCConfig holds the node endpoint settings
type RPCConfig struct {
	URL       string        `toml:"url"`
	Timeout   time.Duration `toml:"timeout"`
	RateLimit float64       `toml:"rate_limit"`
	RateBurst int           `toml:"rate_burst"`
}

// SyncConfig caps the two backoff schedules of the sync loop
type SyncConfig struct {
	FailureBackoffCap time.Duration `toml:"failure_backoff_cap"`
	IdleBackoffCap    time.Duration `toml:"idle_backoff_cap"`
}

// WebConfig holds the status server settings
type WebConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// DashboardConfig selects the interactive progress display
type DashboardConfig struct {
	Type string `toml:"type"`
}

// LoggingConfig holds log level and error log settings
type LoggingConfig struct {
	Level    string `toml:"level"`
	ErrorLog string `toml:"error_log"`
}

var knownDrivers = map[string]bool{"postgres": true, "mysql": true, "sqlite": true}

var knownLevels = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}

// Default returns the configuration used before file and environment overrides
func Default() *Config {
	return &Config{
		Version: "1.0",
		Database: DatabaseConfig{
			Driver:             "postgres",
			MaxIdleConns:       4,
			MaxOpenConns:       8,
			ConnMaxLifetime:    time.Hour,
			SlowQueryThreshold: time.Second,
		},
		RPC: RPCConfig{
			Timeout:   30 * time.Second,
			RateLimit: 50,
			RateBurst: 10,
		},
		Sync: SyncConfig{
			FailureBackoffCap: 90 * time.Second,
			IdleBackoffCap:    10 * time.Second,
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		Dashboard: DashboardConfig{
			Type: "none",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from TOML file with environment variable overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}

			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func (c *Config) applyEnvOverrides() {
	// Database overrides
	if driver := os.Getenv("CELLAR_DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("CELLAR_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if conns := getEnvInt("DB_MAX_OPEN_CONNS"); conns > 0 {
		c.Database.MaxOpenConns = conns
	}

	// RPC overrides
	if url := os.Getenv("CELLAR_RPC_URL"); url != "" {
		c.RPC.URL = url
	}
	if limit := getEnvFloat("RPC_RATE_LIMIT"); limit > 0 {
		c.RPC.RateLimit = limit
	}

	// Dashboard overrides
	if dashType := os.Getenv("DASHBOARD_TYPE"); dashType != "" {
		c.Dashboard.Type = dashType
	}
	if port := getEnvInt("WEB_PORT"); port > 0 {
		c.Web.Port = port
	}
	if enabled := getEnvBool("WEB_ENABLED"); enabled != nil {
		c.Web.Enabled = *enabled
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	c.Database.Driver = strings.ToLower(c.Database.Driver)
	c.Logging.Level = strings.ToLower(c.Logging.Level)

	switch {
	case !knownDrivers[c.Database.Driver]:
		return &unifiederrors.ConfigError{Field: "database.driver", Reason: fmt.Sprintf("%q is not one of postgres, mysql, sqlite", c.Database.Driver)}
	case c.Database.DSN == "":
		return &unifiederrors.ConfigError{Field: "database.dsn", Reason: "is required (set CELLAR_DSN)"}
	case c.Database.MaxOpenConns <= 0:
		return &unifiederrors.ConfigError{Field: "database.max_open_conns", Reason: "must be positive"}
	case c.RPC.URL == "":
		return &unifiederrors.ConfigError{Field: "rpc.url", Reason: "is required (set CELLAR_RPC_URL)"}
	case c.RPC.RateLimit <= 0 || c.RPC.RateBurst <= 0:
		return &unifiederrors.ConfigError{Field: "rpc.rate_limit", Reason: "and rpc.rate_burst must be positive"}
	case c.Sync.FailureBackoffCap <= 0 || c.Sync.IdleBackoffCap <= 0:
		return &unifiederrors.ConfigError{Field: "sync", Reason: "backoff caps must be positive"}
	case !knownLevels[c.Logging.Level]:
		return &unifiederrors.ConfigError{Field: "logging.level", Reason: fmt.Sprintf("%q is not one of trace, debug, info, warn, error", c.Logging.Level)}
	case c.Dashboard.Type != "terminal" && c.Dashboard.Type != "none":
		return &unifiederrors.ConfigError{Field: "dashboard.type", Reason: fmt.Sprintf("%q is not one of terminal, none", c.Dashboard.Type)}
	case c.Web.Enabled && (c.Web.Port <= 0 || c.Web.Port > 65535):
		return &unifiederrors.ConfigError{Field: "web.port", Reason: "must be between 1 and 65535"}
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvInt(key string) int {
	if val := os.Getenv(key); val != "" {
		i, _ := strconv.Atoi(val)
		return i
	}
	return 0
}

func getEnvFloat(key string) float64 {
	if val := os.Getenv(key); val != "" {
		f, _ := strconv.ParseFloat(val, 64)
		return f
	}
	return 0
}

func getEnvBool(key string) *bool {
	if val := os.Getenv(key); val != "" {
		b, _ := strconv.ParseBool(val)
		return &b
	}
	return nil
}

// Marshal converts a Config struct to TOML bytes
func Marshal(cfg *Config) ([]byte, error) {
	return toml.Marshal(cfg)
}
