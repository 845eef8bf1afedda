// Package config loads brick-matrix settings from file, environment and
// defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultConfigDir is relative to the user's home directory.
	DefaultConfigDir = ".brick-matrix"
	// EnvPrefix prefixes every environment override, e.g. BRICK_MATRIX_STORE_BACKEND.
	EnvPrefix = "BRICK_MATRIX"
)

// Backend names accepted by store.backend.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Config is the full application configuration.
type Config struct {
	Store  StoreConfig  `mapstructure:"store"`
	Admin  AdminConfig  `mapstructure:"admin"`
	Log    LogConfig    `mapstructure:"log"`
	Prompt PromptConfig `mapstructure:"prompt"`
	Ingest IngestConfig `mapstructure:"ingest"`
}

type StoreConfig struct {
	Backend       string `mapstructure:"backend"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	FilePath      string `mapstructure:"file_path"`
	HistoryDepth  int    `mapstructure:"history_depth"`
	SchemaVersion int    `mapstructure:"schema_version"`
	Environment   string `mapstructure:"environment"`
	// SeedFile is a matrix document imported when the store is empty.
	SeedFile string `mapstructure:"seed_file"`
}

type AdminConfig struct {
	Name string `mapstructure:"name"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type PromptConfig struct {
	Mode         string `mapstructure:"mode"`
	PreviewChars int    `mapstructure:"preview_chars"`
	PreviewAfter int    `mapstructure:"preview_after"`
	Budget       int    `mapstructure:"budget"`
}

type IngestConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxBodyBytes  int64         `mapstructure:"max_body_bytes"`
	Parallelism   int           `mapstructure:"parallelism"`
	RequireReview bool          `mapstructure:"require_review"`
	DefaultType   string        `mapstructure:"default_type"`
}

// Load reads ~/.brick-matrix/config.{yaml,json} when path is empty, or the
// given file otherwise. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, DefaultConfigDir))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	dir := filepath.Join(home, DefaultConfigDir)

	v.SetDefault("store.backend", BackendSQLite)
	v.SetDefault("store.sqlite_path", filepath.Join(dir, "matrix.db"))
	v.SetDefault("store.file_path", filepath.Join(dir, "matrix.json"))
	v.SetDefault("store.history_depth", 10)
	v.SetDefault("store.schema_version", 2)
	v.SetDefault("store.environment", "production")
	v.SetDefault("store.seed_file", "")

	v.SetDefault("admin.name", "admin")

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.development", false)

	v.SetDefault("prompt.mode", "production")
	v.SetDefault("prompt.preview_chars", 300)
	v.SetDefault("prompt.preview_after", 5)
	v.SetDefault("prompt.budget", 0)

	v.SetDefault("ingest.timeout", "15s")
	v.SetDefault("ingest.max_body_bytes", 2<<20)
	v.SetDefault("ingest.parallelism", 4)
	v.SetDefault("ingest.require_review", false)
	v.SetDefault("ingest.default_type", "Knowledge")
}

func validate(cfg *Config) error {
	switch cfg.Store.Backend {
	case BackendSQLite:
		if cfg.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required when backend is 'sqlite'")
		}
	case BackendFile:
		if cfg.Store.FilePath == "" {
			return fmt.Errorf("store.file_path is required when backend is 'file'")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("store.backend must be 'sqlite', 'file' or 'memory', got '%s'", cfg.Store.Backend)
	}

	if cfg.Store.SchemaVersion < 1 {
		return fmt.Errorf("store.schema_version must be at least 1, got %d", cfg.Store.SchemaVersion)
	}
	if cfg.Store.HistoryDepth < 0 {
		return fmt.Errorf("store.history_depth must not be negative, got %d", cfg.Store.HistoryDepth)
	}

	switch cfg.Prompt.Mode {
	case "production", "training":
	default:
		return fmt.Errorf("prompt.mode must be 'production' or 'training', got '%s'", cfg.Prompt.Mode)
	}

	if cfg.Ingest.Timeout <= 0 {
		return fmt.Errorf("ingest.timeout must be positive, got %s", cfg.Ingest.Timeout)
	}
	if cfg.Ingest.Parallelism < 1 {
		return fmt.Errorf("ingest.parallelism must be at least 1, got %d", cfg.Ingest.Parallelism)
	}

	return nil
}
