// Package config loads service configuration from a YAML file with
// PHARMALENS_* environment overrides layered on top.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Addr        string        `koanf:"addr" yaml:"addr"`
	TokenSecret string        `koanf:"token_secret" yaml:"token_secret"`
	TokenTTL    time.Duration `koanf:"token_ttl" yaml:"token_ttl"`

	// PostgresDSN enables the durable audit sink. Empty keeps audit on
	// structured logs only.
	PostgresDSN string `koanf:"postgres_dsn" yaml:"postgres_dsn"`

	// RedisAddr enables shared preference storage. Empty falls back to
	// the in-process store.
	RedisAddr     string `koanf:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `koanf:"redis_password" yaml:"redis_password"`

	HistoryPath string `koanf:"history_path" yaml:"history_path"`

	OpenAIKey   string `koanf:"openai_key" yaml:"openai_key"`
	OpenAIModel string `koanf:"openai_model" yaml:"openai_model"`

	// DemoMode seeds an in-memory identity provider and serves canned
	// answers when no OpenAI key is configured.
	DemoMode bool `koanf:"demo_mode" yaml:"demo_mode"`

	RateLimitRPS   float64 `koanf:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst" yaml:"rate_limit_burst"`
}

// Default returns the configuration used when nothing is specified.
func Default() *Config {
	return &Config{
		Addr:           ":8080",
		TokenTTL:       12 * time.Hour,
		HistoryPath:    "data/history.db",
		OpenAIModel:    "gpt-4o-mini",
		DemoMode:       true,
		RateLimitRPS:   10,
		RateLimitBurst: 30,
	}
}

// Load reads the YAML file at path (if it exists), then overlays
// PHARMALENS_* environment variables: PHARMALENS_TOKEN_SECRET maps to
// token_secret, and so on.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("PHARMALENS_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "PHARMALENS_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.TokenSecret == "" {
		return fmt.Errorf("token_secret is required")
	}
	if len(c.TokenSecret) < 32 {
		return fmt.Errorf("token_secret must be at least 32 bytes")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token_ttl must be positive")
	}
	if c.HistoryPath == "" {
		return fmt.Errorf("history_path is required")
	}
	if !c.DemoMode && c.OpenAIKey == "" {
		return fmt.Errorf("openai_key is required outside demo mode")
	}
	if c.OpenAIKey != "" && c.OpenAIModel == "" {
		return fmt.Errorf("openai_model is required when openai_key is set")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit values must be positive")
	}
	return nil
}
