// Package config loads process configuration from the environment.
//
// Variables use the ITK_ prefix, for example ITK_DB_PATH. A .env file in
// the working directory is loaded first when present; variables already set
// in the environment take precedence over it.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/poiesic/itk/ai"
	"github.com/poiesic/itk/scrape"
)

// Prefix is prepended to every variable name.
const Prefix = "ITK"

// Config is the process configuration. Field tags name the variables
// without the ITK_ prefix and give their defaults.
type Config struct {
	DBPath       string `envconfig:"DB_PATH" default:"itk.db"`
	RegistryPath string `envconfig:"REGISTRY_PATH" default:"sample_data/companies.csv"`
	Addr         string `envconfig:"ADDR" default:":8000"`
	Schedule     string `envconfig:"SCHEDULE" default:"0 0 * * *"`

	EmbeddingHost  string `envconfig:"EMBEDDING_HOST" default:"https://api.openai.com/v1"`
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	OpenAIAPIKey   string `envconfig:"OPENAI_API_KEY"`

	Concurrency       int           `envconfig:"CONCURRENCY" default:"100"`
	FetchTimeout      time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`
	RenderConcurrency int64         `envconfig:"RENDER_CONCURRENCY" default:"4"`
	BrowserURL        string        `envconfig:"BROWSER_URL"`
	DisableRender     bool          `envconfig:"DISABLE_RENDER" default:"false"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads .env if present, then the ITK_ environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("%w: %d", scrape.ErrInvalidConcurrency, c.Concurrency)
	}
	if c.RenderConcurrency <= 0 {
		return fmt.Errorf("%w: render concurrency %d", scrape.ErrInvalidConcurrency, c.RenderConcurrency)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// AI returns the embedding configuration.
func (c *Config) AI() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.EmbeddingHost),
		ai.WithEmbeddingModel(c.EmbeddingModel),
		ai.WithAPIKey(c.OpenAIAPIKey),
	)
}

// Fetch returns the per-page fetch configuration.
func (c *Config) Fetch() scrape.Config {
	return scrape.Config{
		Timeout:           c.FetchTimeout,
		RenderConcurrency: c.RenderConcurrency,
	}
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q: must be debug, info, warn, or error", level)
	}
}
