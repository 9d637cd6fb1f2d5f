// Package config loads the engine's runtime configuration: LLM routing,
// search/fetch providers, planner/writer budgets, and storage DSNs. A
// single viper instance is populated from file + environment and
// unmarshalled into Config; callers pass *Config explicitly rather than
// reading a package-global.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research engine.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Planner   PlannerConfig   `mapstructure:"planner"`
	Writer    WriterConfig    `mapstructure:"writer"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	ArtifactsDir  string        `mapstructure:"artifacts_dir"`
	LogLevel      string        `mapstructure:"log_level"`
	RunTimeout    time.Duration `mapstructure:"run_timeout"`
	ResumePollInt time.Duration `mapstructure:"resume_poll_interval"`
}

// ServerConfig contains HTTP server and auth settings for `serve`.
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LLMConfig configures the chat-completion client used by both agents
// and the outline judge.
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

// SearchConfig selects and authenticates the search provider (C2).
type SearchConfig struct {
	Provider        string `mapstructure:"provider"` // tavily | duckduckgo
	APIKey          string `mapstructure:"api_key"`
	MaxResults      int    `mapstructure:"max_results"`
	MaxURLsPerQuery int    `mapstructure:"max_urls_per_query"`
}

// FetchConfig bounds the page fetcher (C3) and its worker pool.
type FetchConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxChars     int           `mapstructure:"max_chars"`
	MinBodyChars int           `mapstructure:"min_body_chars"`
	Concurrency  int           `mapstructure:"concurrency"`
}

// PlannerConfig bounds the Planner ReAct loop (C7).
type PlannerConfig struct {
	MaxSteps        int `mapstructure:"max_steps"`
	MaxRetries      int `mapstructure:"max_retries"`
	StagnationLimit int `mapstructure:"stagnation_limit"`
	MinEvidence     int `mapstructure:"min_evidence"`
	MaxFetches      int `mapstructure:"max_fetches"`
}

// WriterConfig bounds the Writer's per-section work (C8).
type WriterConfig struct {
	WriteLevel        int `mapstructure:"write_level"` // outline depth targeted, H2 = 2
	MaxCharsPerSection int `mapstructure:"max_chars_per_section"`
	MaxStepsPerSection int `mapstructure:"max_steps_per_section"`
	RetrieveTopK       int `mapstructure:"retrieve_top_k"`
}

// StorageConfig groups the run index and dedup cache DSNs.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig configures the run index (internal/store).
type PostgresConfig struct {
	URL             string `mapstructure:"url"`
	MigrationsDir   string `mapstructure:"migrations_dir"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) == "" {
		return nil // Postgres is optional; runs still work via the journal alone
	}
	return nil
}

// RedisConfig configures the cross-run hash-claim cache (internal/cache)
// and, over the same connection, the journal's optional event mirror
// (internal/journal.RedisMirror) used by the status server.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Addr) == "" {
		return nil // falls back to cache.NoopHashClaims
	}
	return nil
}

// TelemetryConfig controls OpenTelemetry/Prometheus instrumentation.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort <= 0 {
		return fmt.Errorf("telemetry.metrics_port must be > 0 when telemetry is enabled")
	}
	return nil
}

// LoadConfig loads config from a JSON file (the config type is fixed to
// JSON, whatever the file's extension) plus OEDR_-prefixed environment
// variables, applying defaults
// for every field an operator may reasonably omit.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.artifacts_dir", "./runs")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.run_timeout", 30*time.Minute)
	viper.SetDefault("general.resume_poll_interval", 5*time.Minute)

	viper.SetDefault("server.address", ":8080")

	viper.SetDefault("llm.base_url", "https://api.openai.com/v1")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.3)
	viper.SetDefault("llm.max_tokens", 2000)
	viper.SetDefault("llm.timeout", 60*time.Second)
	viper.SetDefault("llm.max_retries", 3)
	viper.SetDefault("llm.backoff", 500*time.Millisecond)

	viper.SetDefault("search.provider", "duckduckgo")
	viper.SetDefault("search.max_results", 10)
	viper.SetDefault("search.max_urls_per_query", 5)

	viper.SetDefault("fetch.timeout", 20*time.Second)
	viper.SetDefault("fetch.max_chars", 20000)
	viper.SetDefault("fetch.min_body_chars", 200)
	viper.SetDefault("fetch.concurrency", 6)

	viper.SetDefault("planner.max_steps", 20)
	viper.SetDefault("planner.max_retries", 3)
	viper.SetDefault("planner.stagnation_limit", 3)
	viper.SetDefault("planner.min_evidence", 5)
	viper.SetDefault("planner.max_fetches", 60)

	viper.SetDefault("writer.write_level", 2)
	viper.SetDefault("writer.max_chars_per_section", 6000)
	viper.SetDefault("writer.max_steps_per_section", 8)
	viper.SetDefault("writer.retrieve_top_k", 5)

	viper.SetDefault("storage.postgres.migrations_dir", "file://migrations")

	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.service_name", "oedr-engine")
	viper.SetDefault("telemetry.metrics_port", 9090)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("OEDR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := cfg.Telemetry.Validate(); err != nil {
		panic(err)
	}
	if err := cfg.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	if err := cfg.Storage.Redis.Validate(); err != nil {
		panic(err)
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("LLM_API_KEY")
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if cfg.Search.APIKey == "" {
		cfg.Search.APIKey = os.Getenv("SEARCH_API_KEY")
	}
	if v := os.Getenv("SEARCH_PROVIDER"); v != "" {
		cfg.Search.Provider = v
	}
	if v := os.Getenv("ARTIFACTS_DIR"); v != "" {
		cfg.General.ArtifactsDir = v
	}

	return &cfg
}
