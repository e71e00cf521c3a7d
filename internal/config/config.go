// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override, prefix KBSTORE_)
//  2. Config file (~/.kbstore/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Storage: PostgreSQL connection (see storage.go)
//   - Embedder: Embedding model and vector dimension
//   - Search: Similarity threshold and result limit defaults
//
// Security: Sensitive data (passwords) are never logged.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidEmbedderModel indicates the embedder model name is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidEmbedderDimension indicates the embedder vector dimension is out of range.
	ErrInvalidEmbedderDimension = errors.New("invalid embedder dimension")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidSearchThreshold indicates the similarity threshold is out of range.
	ErrInvalidSearchThreshold = errors.New("invalid search threshold")

	// ErrInvalidSearchLimit indicates the search result limit is out of range.
	ErrInvalidSearchLimit = errors.New("invalid search limit")
)

const (
	// DefaultEmbedderModel is the default OpenAI embedding model.
	// text-embedding-3-small outputs 1536 dimensions; the knowledge_entries
	// schema uses vector(1536) to match.
	DefaultEmbedderModel = "text-embedding-3-small"

	// DefaultEmbedderDimension is the vector dimension for the default model.
	DefaultEmbedderDimension = 1536

	// DefaultSearchThreshold is the minimum cosine similarity for vector hits.
	// Results at or below the threshold are excluded.
	DefaultSearchThreshold = 0.5

	// DefaultSearchLimit is the default maximum number of search results.
	DefaultSearchLimit = 10

	// MaxSearchLimit is the absolute maximum result limit to prevent
	// unbounded result sets.
	MaxSearchLimit = 100
)

// Config stores application configuration.
type Config struct {
	// PostgreSQL connection settings
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// Embedding generator settings
	EmbedderModel     string `mapstructure:"embedder_model"`
	EmbedderDimension int    `mapstructure:"embedder_dimension"`

	// Search defaults (caller-overridable per request)
	SearchThreshold float64 `mapstructure:"search_threshold"`
	SearchLimit     int     `mapstructure:"search_limit"`

	// Logging
	LogLevel string `mapstructure:"log_level"` // debug, info, warn, error
	LogJSON  bool   `mapstructure:"log_json"`
}

// Load reads configuration from file, environment, and defaults.
//
// The config file is optional; missing files are not an error. Environment
// variables use the KBSTORE_ prefix (e.g. KBSTORE_POSTGRES_HOST). A
// DATABASE_URL environment variable, when present, overrides the individual
// postgres_* settings.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "kbstore")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_dbname", "kbstore")
	v.SetDefault("postgres_sslmode", "disable")
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("embedder_dimension", DefaultEmbedderDimension)
	v.SetDefault("search_threshold", DefaultSearchThreshold)
	v.SetDefault("search_limit", DefaultSearchLimit)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".kbstore"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("KBSTORE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Missing config file is fine; defaults and env apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks all configuration values against their allowed ranges.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d out of range [1, 65535]", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	switch c.PostgresSSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: model must not be empty", ErrInvalidEmbedderModel)
	}
	if c.EmbedderDimension < 1 || c.EmbedderDimension > 4096 {
		return fmt.Errorf("%w: dimension %d out of range [1, 4096]", ErrInvalidEmbedderDimension, c.EmbedderDimension)
	}

	if c.SearchThreshold < -1 || c.SearchThreshold >= 1 {
		return fmt.Errorf("%w: threshold %g out of range [-1, 1)", ErrInvalidSearchThreshold, c.SearchThreshold)
	}
	if c.SearchLimit < 1 || c.SearchLimit > MaxSearchLimit {
		return fmt.Errorf("%w: limit %d out of range [1, %d]", ErrInvalidSearchLimit, c.SearchLimit, MaxSearchLimit)
	}

	return nil
}
