// Package config loads and validates reader configuration via Viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Paths     PathsConfig     `mapstructure:"paths"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Transform TransformConfig `mapstructure:"transform"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// PathsConfig sets where the vault, media, index and inbox live.
type PathsConfig struct {
	Root    string `mapstructure:"root"`
	Vault   string `mapstructure:"vault"`
	Media   string `mapstructure:"media"`
	Index   string `mapstructure:"index"`
	Inbox   string `mapstructure:"inbox"`
	Cookies string `mapstructure:"cookies"`
}

// FetchConfig governs the strategy cascade.
type FetchConfig struct {
	UserAgent       string  `mapstructure:"user_agent"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
	StrategySeconds int     `mapstructure:"strategy_timeout_seconds"`
	PerDomainRPS    float64 `mapstructure:"per_domain_rps"`
}

// HeadlessConfig configures the browser strategy.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// ProxyConfig configures the hosted reader proxy strategy.
type ProxyConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
}

// SyncConfig controls sync runs and scheduling.
type SyncConfig struct {
	Concurrency     int `mapstructure:"concurrency"`
	IntervalMinutes int `mapstructure:"interval_minutes"`
}

// TransformConfig selects the LLM provider and transforms.
type TransformConfig struct {
	Provider       string  `mapstructure:"provider"`
	Model          string  `mapstructure:"model"`
	APIKey         string  `mapstructure:"api_key"`
	BaseURL        string  `mapstructure:"base_url"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature"`
	Translate      bool    `mapstructure:"translate"`
	TargetLanguage string  `mapstructure:"target_language"`
	Summarize      bool    `mapstructure:"summarize"`
	ChunkRunes     int     `mapstructure:"chunk_runes"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("METIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyPathDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("paths.root", "data")
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.strategy_timeout_seconds", 60)
	v.SetDefault("fetch.per_domain_rps", 1)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("proxy.enabled", true)
	v.SetDefault("proxy.endpoint", "https://r.jina.ai")
	v.SetDefault("sync.concurrency", 3)
	v.SetDefault("sync.interval_minutes", 30)
	v.SetDefault("transform.provider", "anthropic")
	v.SetDefault("transform.max_tokens", 4096)
	v.SetDefault("transform.temperature", 0.2)
	v.SetDefault("transform.target_language", "English")
	v.SetDefault("transform.chunk_runes", 4500)
	v.SetDefault("logging.development", true)
}

// applyPathDefaults derives unset paths from the root so a single
// paths.root setting yields a complete layout.
func (c *Config) applyPathDefaults() {
	if c.Paths.Vault == "" {
		c.Paths.Vault = filepath.Join(c.Paths.Root, "vault")
	}
	if c.Paths.Media == "" {
		c.Paths.Media = filepath.Join(c.Paths.Vault, "media")
	}
	if c.Paths.Index == "" {
		c.Paths.Index = filepath.Join(c.Paths.Root, "index.db")
	}
	if c.Paths.Inbox == "" {
		c.Paths.Inbox = filepath.Join(c.Paths.Root, "inbox.md")
	}
	if c.Paths.Cookies == "" {
		c.Paths.Cookies = filepath.Join(c.Paths.Root, "cookies")
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Paths.Root == "" {
		return fmt.Errorf("paths.root must be set")
	}
	if c.Sync.Concurrency <= 0 {
		return fmt.Errorf("sync.concurrency must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if (c.Transform.Translate || c.Transform.Summarize) && c.Transform.Model == "" {
		return fmt.Errorf("transform.model must be set when transforms are enabled")
	}
	return nil
}

// FetchTimeout returns the per-request HTTP timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// StrategyTimeout returns the per-strategy budget for the cascade.
func (c Config) StrategyTimeout() time.Duration {
	return time.Duration(c.Fetch.StrategySeconds) * time.Second
}

// SyncInterval returns the scheduled sync interval.
func (c Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalMinutes) * time.Minute
}
