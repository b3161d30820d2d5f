// Package config loads engine configuration from a TOML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Environment variable overrides.
const (
	EnvBackend  = "LIFEOS_BACKEND"
	EnvDBPath   = "LIFEOS_DB_PATH"
	EnvPgDsn    = "LIFEOS_PG_DSN"
	EnvRulePack = "LIFEOS_RULEPACK"
	EnvLogLevel = "LIFEOS_LOG_LEVEL"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// #region config
// Config is the root configuration for the decision engine.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Store    StoreConfig    `toml:"store"`
	Learning LearningConfig `toml:"learning"`
	Logging  LoggingConfig  `toml:"logging"`
}

// EngineConfig tunes evaluator behavior.
type EngineConfig struct {
	// DenyOnSoftTrigger keeps the fail-closed policy: any triggered
	// constraint denies the action.
	DenyOnSoftTrigger bool `toml:"deny_on_soft_trigger"`
	// RulePack is the path of a YAML preset document, or "".
	RulePack string `toml:"rule_pack"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend         string `toml:"backend"` // memory | sqlite | postgres
	Path            string `toml:"path"`    // sqlite database path
	Dsn             string `toml:"dsn"`     // postgres DSN
	MaxOpenConns    int    `toml:"max_open_conns"`
	MaxIdleConns    int    `toml:"max_idle_conns"`
	ConnMaxLifetime string `toml:"conn_max_lifetime"`
}

// ConnMaxLifetimeDuration returns ConnMaxLifetime as a duration.
func (s StoreConfig) ConnMaxLifetimeDuration() time.Duration {
	d, err := time.ParseDuration(s.ConnMaxLifetime)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// LearningConfig tunes the confidence gates.
type LearningConfig struct {
	AutoApply float64 `toml:"auto_apply"`
	Suggest   float64 `toml:"suggest"`
}

// LoggingConfig tunes slog output.
type LoggingConfig struct {
	Level string `toml:"level"` // debug | info | warn | error
}

// #endregion config

// #region defaults

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Engine: EngineConfig{DenyOnSoftTrigger: true},
		Store: StoreConfig{
			Backend:         BackendMemory,
			Path:            "lifeos.db",
			MaxOpenConns:    8,
			MaxIdleConns:    4,
			ConnMaxLifetime: "30m",
		},
		Learning: LearningConfig{AutoApply: 0.85, Suggest: 0.60},
		Logging:  LoggingConfig{Level: "info"},
	}
}

// #endregion defaults

// #region load

// Load reads a TOML config file (path "" = defaults only) and applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvBackend); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv(EnvPgDsn); v != "" {
		cfg.Store.Dsn = v
	}
	if v := os.Getenv(EnvRulePack); v != "" {
		cfg.Engine.RulePack = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
}

func validate(cfg Config) error {
	switch cfg.Store.Backend {
	case BackendMemory, BackendSQLite, BackendPostgres:
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	if cfg.Store.Backend == BackendPostgres && cfg.Store.Dsn == "" {
		return fmt.Errorf("postgres backend requires a dsn")
	}
	if cfg.Learning.AutoApply < cfg.Learning.Suggest {
		return fmt.Errorf("auto_apply (%s) must not be below suggest (%s)",
			strconv.FormatFloat(cfg.Learning.AutoApply, 'f', -1, 64),
			strconv.FormatFloat(cfg.Learning.Suggest, 'f', -1, 64))
	}
	return nil
}

// #endregion load
