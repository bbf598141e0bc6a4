// Package config provides application configuration with multi-source
// priority.
//
// Sources, highest to lowest:
//  1. Environment variables (ADVISOR_* prefix)
//  2. Config file (~/.advisor/config.yaml, overridable with --config)
//  3. Defaults
//
// Sections:
//   - AI: embedder and completion model selection
//   - Storage: PostgreSQL connection (see storage.go)
//   - Retrieval: top-k and per-call timeouts
//   - Session: history cap and idle eviction
//   - Server: HTTP bind address and rate limiting
//   - Ingest: catalog source location
//   - Telemetry: OTLP trace export
//
// Sensitive values (the database password) are masked when the config is
// marshalled for logging. Validation uses sentinel errors so callers can
// branch with errors.Is.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidEmbedderModel indicates the embedder model name is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidCompletionModel indicates the completion model name is empty.
	ErrInvalidCompletionModel = errors.New("invalid completion model")

	// ErrInvalidTopK indicates retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top_k")

	// ErrInvalidTimeout indicates a timeout is zero or negative.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidHistoryCap indicates the session history cap is out of range.
	ErrInvalidHistoryCap = errors.New("invalid session history cap")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")
)

const (
	// DefaultEmbedderModel is the Gemini embedder used for chunk and query
	// vectors. gemini-embedding-001 supports truncation to 768 dimensions,
	// which matches the pgvector column in db/migrations.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultCompletionModel is the model specialists compose answers with.
	DefaultCompletionModel = "gemini-2.5-flash"

	// DefaultTopK is the retrieval result count when the caller passes none.
	DefaultTopK = 5

	// MaxTopK bounds retrieval fan-out.
	MaxTopK = 20

	// DefaultHistoryCap bounds per-session history; oldest exchanges are
	// evicted first.
	DefaultHistoryCap = 50

	// MaxHistoryCap is the absolute ceiling, guarding against OOM via config.
	MaxHistoryCap = 1000
)

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON. When adding new
// secrets, update MarshalJSON as well.
type Config struct {
	// AI models
	EmbedderModel   string  `mapstructure:"embedder_model" json:"embedder_model"`
	CompletionModel string  `mapstructure:"completion_model" json:"completion_model"`
	Temperature     float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens       int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Retrieval
	TopK              int           `mapstructure:"top_k" json:"top_k"`
	EmbedTimeout      time.Duration `mapstructure:"embed_timeout" json:"embed_timeout"`
	SearchTimeout     time.Duration `mapstructure:"search_timeout" json:"search_timeout"`
	SpecialistTimeout time.Duration `mapstructure:"specialist_timeout" json:"specialist_timeout"`

	// Session
	SessionHistoryCap  int           `mapstructure:"session_history_cap" json:"session_history_cap"`
	SessionIdleTTL     time.Duration `mapstructure:"session_idle_ttl" json:"session_idle_ttl"`
	SessionSweepPeriod time.Duration `mapstructure:"session_sweep_period" json:"session_sweep_period"`

	// Storage. When Postgres is disabled the engine runs on the in-memory
	// index and session store (snapshots keep them across restarts).
	PostgresEnabled  bool   `mapstructure:"postgres_enabled" json:"postgres_enabled"`
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"-"`
	PostgresDBName   string `mapstructure:"postgres_dbname" json:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode" json:"postgres_sslmode"`

	// DataDir holds local state: index snapshots and their lock file.
	DataDir string `mapstructure:"data_dir" json:"data_dir"`

	// Ingest
	CatalogURL    string `mapstructure:"catalog_url" json:"catalog_url"`
	CatalogDomain string `mapstructure:"catalog_domain" json:"catalog_domain"`

	// Server
	ServerAddr     string  `mapstructure:"server_addr" json:"server_addr"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst" json:"rate_limit_burst"`
	TrustProxy     bool    `mapstructure:"trust_proxy" json:"trust_proxy"`

	// Telemetry
	TracingEnabled bool   `mapstructure:"tracing_enabled" json:"tracing_enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName    string `mapstructure:"service_name" json:"service_name"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// MarshalJSON masks sensitive fields so the config can be logged safely.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	masked := alias(c)
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = "********"
	}
	return json.Marshal(masked)
}

// setDefaults registers every default with viper so that a bare
// environment still produces a runnable configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("completion_model", DefaultCompletionModel)
	v.SetDefault("temperature", 0.2)
	v.SetDefault("max_tokens", 2048)

	v.SetDefault("top_k", DefaultTopK)
	v.SetDefault("embed_timeout", 10*time.Second)
	v.SetDefault("search_timeout", 10*time.Second)
	v.SetDefault("specialist_timeout", 30*time.Second)

	v.SetDefault("session_history_cap", DefaultHistoryCap)
	v.SetDefault("session_idle_ttl", 24*time.Hour)
	v.SetDefault("session_sweep_period", 15*time.Minute)

	v.SetDefault("postgres_enabled", false)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "advisor")
	v.SetDefault("postgres_dbname", "advisor")
	v.SetDefault("postgres_sslmode", "disable")

	v.SetDefault("data_dir", defaultDataDir())

	v.SetDefault("catalog_url", "")
	v.SetDefault("catalog_domain", "")

	v.SetDefault("server_addr", "127.0.0.1:8470")
	v.SetDefault("rate_limit_rps", 5.0)
	v.SetDefault("rate_limit_burst", 10)
	v.SetDefault("trust_proxy", false)

	v.SetDefault("tracing_enabled", false)
	v.SetDefault("otlp_endpoint", "localhost:4318")
	v.SetDefault("service_name", "advisor")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// Load reads the configuration from defaults, an optional config file, and
// the environment. path selects an explicit config file; empty uses the
// default search location.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ADVISOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".advisor"))
		}
		v.AddConfigPath(".")
		// Missing file is fine; defaults plus env carry a fresh install.
		var notFound viper.ConfigFileNotFoundError
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks ranges and required fields, returning sentinel errors
// wrapped with detail.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder_model must not be empty", ErrInvalidEmbedderModel)
	}
	if strings.TrimSpace(c.CompletionModel) == "" {
		return fmt.Errorf("%w: completion_model must not be empty", ErrInvalidCompletionModel)
	}
	if c.TopK < 1 || c.TopK > MaxTopK {
		return fmt.Errorf("%w: top_k must be in [1, %d], got %d", ErrInvalidTopK, MaxTopK, c.TopK)
	}
	for name, d := range map[string]time.Duration{
		"embed_timeout":      c.EmbedTimeout,
		"search_timeout":     c.SearchTimeout,
		"specialist_timeout": c.SpecialistTimeout,
		"session_idle_ttl":   c.SessionIdleTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidTimeout, name, d)
		}
	}
	if c.SessionHistoryCap < 1 || c.SessionHistoryCap > MaxHistoryCap {
		return fmt.Errorf("%w: session_history_cap must be in [1, %d], got %d",
			ErrInvalidHistoryCap, MaxHistoryCap, c.SessionHistoryCap)
	}
	if c.PostgresEnabled {
		if strings.TrimSpace(c.PostgresHost) == "" {
			return fmt.Errorf("%w: postgres_host must not be empty", ErrInvalidPostgresHost)
		}
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("%w: postgres_port must be in [1, 65535], got %d",
				ErrInvalidPostgresPort, c.PostgresPort)
		}
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".advisor"
	}
	return filepath.Join(home, ".advisor", "data")
}
