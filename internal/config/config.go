package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider-specific default model constants
const (
	DefaultAnthropicModel      = "claude-sonnet-4-20250514"
	DefaultAnthropicTitleModel = "claude-3-5-haiku-latest"
	DefaultMockModel           = "mock-model"
)

// Config captures the tunable runtime settings for the service.
type Config struct {
	ListenAddr            string  `yaml:"listen_addr"`
	DatabasePath          string  `yaml:"database_path"`
	LogPath               string  `yaml:"log_path"`
	Provider              string  `yaml:"provider"`
	Model                 string  `yaml:"model"`
	TitleModel            string  `yaml:"title_model"`
	BaseURL               string  `yaml:"base_url"`
	Temperature           float64 `yaml:"temperature"`
	MaxIterations         int     `yaml:"max_iterations"`
	WorkerCount           int     `yaml:"worker_count"`
	SettleDelaySeconds    int     `yaml:"settle_delay_seconds"`
	ScrapeTimeoutSeconds  int     `yaml:"scrape_timeout_seconds"`
	RecentMessageLimit    int     `yaml:"recent_message_limit"`
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`

	// Secrets are never read from the yaml file.
	InternalKey     string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
}

// Default returns the baseline configuration before file and env overrides.
func Default() Config {
	return Config{
		ListenAddr:            "127.0.0.1:8080",
		DatabasePath:          "codeloft.db",
		Provider:              "anthropic",
		Model:                 DefaultAnthropicModel,
		TitleModel:            DefaultAnthropicTitleModel,
		Temperature:           0.7,
		MaxIterations:         20,
		WorkerCount:           4,
		SettleDelaySeconds:    5,
		ScrapeTimeoutSeconds:  30,
		RecentMessageLimit:    20,
		RequestTimeoutSeconds: 120,
	}
}

// Load reads the yaml config at path (if it exists), applies env overrides,
// and validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.InternalKey = strings.TrimSpace(os.Getenv("CODELOFT_INTERNAL_KEY"))
	cfg.AnthropicAPIKey = strings.TrimSpace(os.Getenv("CODELOFT_ANTHROPIC_API_KEY"))
	if addr := strings.TrimSpace(os.Getenv("CODELOFT_LISTEN_ADDR")); addr != "" {
		cfg.ListenAddr = addr
	}
	if db := strings.TrimSpace(os.Getenv("CODELOFT_DATABASE_PATH")); db != "" {
		cfg.DatabasePath = db
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings that would misbehave at runtime.
func (c Config) Validate() error {
	switch strings.ToLower(c.Provider) {
	case "anthropic", "mock":
	default:
		return fmt.Errorf("unknown provider %q (expected anthropic or mock)", c.Provider)
	}
	if c.Temperature < 0 || c.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0 and 2.0, got %v", c.Temperature)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations)
	}
	if c.MaxIterations > 100 {
		return fmt.Errorf("max_iterations cannot exceed 100, got %d", c.MaxIterations)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("worker_count must be positive, got %d", c.WorkerCount)
	}
	if c.SettleDelaySeconds < 0 {
		return fmt.Errorf("settle_delay_seconds cannot be negative, got %d", c.SettleDelaySeconds)
	}
	if c.ScrapeTimeoutSeconds <= 0 {
		return fmt.Errorf("scrape_timeout_seconds must be positive, got %d", c.ScrapeTimeoutSeconds)
	}
	if c.RequestTimeoutSeconds > 600 {
		return fmt.Errorf("request_timeout_seconds cannot exceed 600, got %d", c.RequestTimeoutSeconds)
	}
	if c.RecentMessageLimit <= 0 {
		return fmt.Errorf("recent_message_limit must be positive, got %d", c.RecentMessageLimit)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path must be set")
	}
	return nil
}

// SettleDelay returns the pre-job settle sleep as a duration.
func (c Config) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelaySeconds) * time.Second
}

// ScrapeTimeout returns the outbound scrape timeout as a duration.
func (c Config) ScrapeTimeout() time.Duration {
	return time.Duration(c.ScrapeTimeoutSeconds) * time.Second
}
