package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all tripmate configuration.
type Config struct {
	Listen    string           `yaml:"listen"`
	DBPath    string           `yaml:"db_path"`
	Log       LogConfig        `yaml:"log"`
	Providers []ProviderConfig `yaml:"providers"`
	Gateway   GatewayConfig    `yaml:"gateway"`
	Client    ClientConfig     `yaml:"client"`
	Cache     CacheConfig      `yaml:"cache"`
	Parser    ParserConfig     `yaml:"parser"`
	Journal   JournalConfig    `yaml:"journal"`
}

// LogConfig selects the logger flavour: "dev" or "prod".
type LogConfig struct {
	Mode string `yaml:"mode"`
}

// ProviderConfig defines an OpenAI-compatible upstream.
// Providers are tried in the order they are listed.
type ProviderConfig struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// GatewayConfig controls the HTTP gateway in front of the model.
type GatewayConfig struct {
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`
	RateLimit       int           `yaml:"rate_limit"` // requests per minute per client IP, 0 disables
	PromptCache     bool          `yaml:"prompt_cache"`
	PromptCacheTTL  time.Duration `yaml:"prompt_cache_ttl"`
}

// ClientConfig controls how the pipeline reaches the gateway.
type ClientConfig struct {
	Endpoint       string        `yaml:"endpoint"`        // all-at-once JSON replies
	StreamEndpoint string        `yaml:"stream_endpoint"` // streamed text replies
	Timeout        time.Duration `yaml:"timeout"`
}

// CacheConfig controls the itinerary cache store.
type CacheConfig struct {
	Backend     string        `yaml:"backend"` // sqlite, redis or memory
	TTL         time.Duration `yaml:"ttl"`
	RedisAddr   string        `yaml:"redis_addr"`
	RedisPrefix string        `yaml:"redis_prefix"`
}

// ParserConfig tunes day segmentation.
type ParserConfig struct {
	AnchorHeaders bool `yaml:"anchor_headers"`
}

// JournalConfig controls the reply journal.
type JournalConfig struct {
	Enabled       bool `yaml:"enabled"`
	RetentionDays int  `yaml:"retention_days"`
	MaxBodySize   int  `yaml:"max_body_size"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		DBPath: "tripmate.db",
		Log:    LogConfig{Mode: "dev"},
		Gateway: GatewayConfig{
			UpstreamTimeout: 60 * time.Second,
			RateLimit:       20,
			PromptCache:     true,
			PromptCacheTTL:  time.Hour,
		},
		Client: ClientConfig{
			Endpoint:       "http://localhost:8080/api/itinerary",
			StreamEndpoint: "http://localhost:8080/api/ask",
			Timeout:        2 * time.Minute,
		},
		Cache: CacheConfig{
			Backend:     "sqlite",
			TTL:         10 * time.Minute,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "tripmate",
		},
		Journal: JournalConfig{
			Enabled:       true,
			RetentionDays: 30,
			MaxBodySize:   8192,
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to Default otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

func (c *Config) validate() error {
	switch c.Cache.Backend {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %v", c.Cache.TTL)
	}
	return nil
}
