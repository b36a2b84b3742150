package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/abelbrown/sentix/internal/logging"
	"github.com/joho/godotenv"
)

// Config is the persistent application configuration
type Config struct {
	Backend  BackendConfig  `json:"backend"`
	Invoker  InvokerConfig  `json:"invoker"`
	Pipeline PipelineConfig `json:"pipeline"`
	Feeds    []FeedConfig   `json:"feeds"`
	Schedule ScheduleConfig `json:"schedule"`

	// Language selects the narrative localization: "en" or "th".
	Language string `json:"language"`

	// DataDir holds the database, logs and audit events.
	DataDir string `json:"data_dir,omitempty"`

	// LogLevel is "debug", "info", "warn" or "error".
	LogLevel string `json:"log_level,omitempty"`

	warnings []string
}

// BackendConfig selects the generative backend
type BackendConfig struct {
	Provider string `json:"provider"` // "gemini", "openai" or "ollama"
	APIKey   string `json:"api_key,omitempty"`
	Endpoint string `json:"endpoint,omitempty"` // Ollama host or OpenAI-compatible URL
	Primary  string `json:"primary_model"`
	Fallback string `json:"fallback_model"`
}

// InvokerConfig holds retry, breaker and throughput settings
type InvokerConfig struct {
	MaxAttempts       int     `json:"max_attempts"`
	BaseDelaySec      float64 `json:"base_delay_sec"`
	FailureThreshold  int     `json:"failure_threshold"`
	CooldownSec       int     `json:"cooldown_sec"`
	RequestsPerMinute float64 `json:"requests_per_minute"`
	AttemptTimeoutSec int     `json:"attempt_timeout_sec"`
	BudgetSec         int     `json:"budget_sec"` // 0 = no overall deadline
}

// PipelineConfig holds synthesis policy
type PipelineConfig struct {
	MinSourceCount  int `json:"min_source_count"`
	SummaryLimit    int `json:"summary_limit"`
	MaxItemAgeHours int `json:"max_item_age_hours"` // 0 = no age cutoff
}

// FeedConfig is one RSS source
type FeedConfig struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Limit int    `json:"limit"`
}

// ScheduleConfig controls daemon mode
type ScheduleConfig struct {
	IntervalMinutes int `json:"interval_minutes"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Provider: "gemini",
			Primary:  "gemini-3-flash-preview",
			Fallback: "gemini-2.5-flash",
		},
		Invoker: InvokerConfig{
			MaxAttempts:       5,
			BaseDelaySec:      5,
			FailureThreshold:  4,
			CooldownSec:       600,
			RequestsPerMinute: 15,
			AttemptTimeoutSec: 120,
		},
		Pipeline: PipelineConfig{
			MinSourceCount:  1,
			SummaryLimit:    200,
			MaxItemAgeHours: 48,
		},
		Feeds:    DefaultFeeds(),
		Schedule: ScheduleConfig{IntervalMinutes: 240},
		Language: "en",
		LogLevel: "info",
	}
}

// DefaultFeeds returns the built-in crypto news feeds.
func DefaultFeeds() []FeedConfig {
	return []FeedConfig{
		{Name: "WatcherGuru", URL: "https://watcher.guru/news/feed", Limit: 5},
		{Name: "CoinDesk", URL: "https://www.coindesk.com/arc/outboundfeeds/rss/", Limit: 5},
		{Name: "CoinTelegraph", URL: "https://cointelegraph.com/rss", Limit: 5},
		{Name: "TheBlock", URL: "https://www.theblock.co/rss", Limit: 5},
		{Name: "Decrypt", URL: "https://decrypt.co/feed", Limit: 5},
	}
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".sentix", "config.json")
}

// Load reads config from the default path, or returns defaults.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads config from path. A missing file yields defaults. Values
// from .env and the environment override the file, then Validate runs.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			cfg = DefaultConfig()
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	if err := loadEnvFile(); err != nil {
		logging.Warn("Ignoring .env", "error", err)
		cfg.warnings = append(cfg.warnings, err.Error())
	}
	cfg.AutoPopulateFromEnv()
	cfg.Validate()
	return cfg, nil
}

// loadEnvFile loads ./.env into the environment. A missing file is not an
// error; an unreadable or malformed one is.
func loadEnvFile() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load .env: %w", err)
}

// Warnings returns problems LoadFrom recovered from, for callers that set
// up logging only after the config is read.
func (c *Config) Warnings() []string {
	return c.warnings
}

// Save writes config to the default path
func (c *Config) Save() error {
	return c.SaveTo(ConfigPath())
}

// SaveTo writes config to path
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600) // Restrictive permissions for API keys
}

// AutoPopulateFromEnv fills in keys and overrides from environment variables
func (c *Config) AutoPopulateFromEnv() {
	switch c.Backend.Provider {
	case "", "gemini":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			c.Backend.APIKey = key
		} else if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
			c.Backend.APIKey = key
		}
	case "openai":
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			c.Backend.APIKey = key
		}
	case "ollama":
		if host := os.Getenv("OLLAMA_HOST"); host != "" {
			c.Backend.Endpoint = host
		}
	}
	if lang := os.Getenv("SENTIX_LANGUAGE"); lang != "" {
		c.Language = lang
	}
	if dir := os.Getenv("SENTIX_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
}

// Validate replaces out-of-range values with defaults.
func (c *Config) Validate() {
	def := DefaultConfig()

	if c.Backend.Provider == "" {
		c.Backend.Provider = def.Backend.Provider
	}
	if c.Backend.Provider == "gemini" {
		if c.Backend.Primary == "" {
			c.Backend.Primary = def.Backend.Primary
		}
		if c.Backend.Fallback == "" {
			c.Backend.Fallback = def.Backend.Fallback
		}
	}
	if c.Invoker.MaxAttempts < 1 || c.Invoker.MaxAttempts > 10 {
		c.Invoker.MaxAttempts = def.Invoker.MaxAttempts
	}
	if c.Invoker.BaseDelaySec <= 0 {
		c.Invoker.BaseDelaySec = def.Invoker.BaseDelaySec
	}
	if c.Invoker.FailureThreshold < 1 {
		c.Invoker.FailureThreshold = def.Invoker.FailureThreshold
	}
	if c.Invoker.CooldownSec < 1 {
		c.Invoker.CooldownSec = def.Invoker.CooldownSec
	}
	if c.Invoker.RequestsPerMinute < 0 {
		c.Invoker.RequestsPerMinute = def.Invoker.RequestsPerMinute
	}
	if c.Invoker.AttemptTimeoutSec < 0 {
		c.Invoker.AttemptTimeoutSec = def.Invoker.AttemptTimeoutSec
	}
	if c.Invoker.BudgetSec < 0 {
		c.Invoker.BudgetSec = 0
	}
	if c.Pipeline.MinSourceCount < 1 {
		c.Pipeline.MinSourceCount = 1
	}
	if c.Pipeline.SummaryLimit < 1 {
		c.Pipeline.SummaryLimit = def.Pipeline.SummaryLimit
	}
	if c.Pipeline.MaxItemAgeHours < 0 {
		c.Pipeline.MaxItemAgeHours = def.Pipeline.MaxItemAgeHours
	}
	if len(c.Feeds) == 0 {
		c.Feeds = def.Feeds
	}
	for i := range c.Feeds {
		if c.Feeds[i].Limit < 1 {
			c.Feeds[i].Limit = 5
		}
	}
	if c.Schedule.IntervalMinutes < 1 {
		c.Schedule.IntervalMinutes = def.Schedule.IntervalMinutes
	}
	if c.Language != "en" && c.Language != "th" {
		c.Language = "en"
	}
}

// BaseDelay returns the backoff base as a duration.
func (c InvokerConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelaySec * float64(time.Second))
}

// Cooldown returns the breaker cooldown as a duration.
func (c InvokerConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSec) * time.Second
}

// AttemptTimeout returns the per-attempt deadline as a duration.
func (c InvokerConfig) AttemptTimeout() time.Duration {
	return time.Duration(c.AttemptTimeoutSec) * time.Second
}

// Budget returns the overall per-call deadline, 0 when disabled.
func (c InvokerConfig) Budget() time.Duration {
	return time.Duration(c.BudgetSec) * time.Second
}

// MaxItemAge returns the item age cutoff, 0 when disabled.
func (c PipelineConfig) MaxItemAge() time.Duration {
	return time.Duration(c.MaxItemAgeHours) * time.Hour
}

// Interval returns the daemon cycle interval.
func (c ScheduleConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// ResolveDataDir returns DataDir, defaulting to ~/.sentix.
func (c *Config) ResolveDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sentix"
	}
	return filepath.Join(home, ".sentix")
}
