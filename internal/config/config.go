// Package config loads server configuration from an optional config file and
// ATLAS_-prefixed environment variables, environment taking precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"atlas/internal/auth"
)

// ProviderConfig holds generation backend settings. An empty APIKey leaves
// the backend disabled; the server still starts and reports the condition.
type ProviderConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MetricsConfig holds the Prometheus scrape endpoint settings.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Config is the full server configuration.
type Config struct {
	Port           int            `mapstructure:"port"`
	AllowedOrigins []string       `mapstructure:"allowed_origins"`
	AgentCardPath  string         `mapstructure:"agent_card_path"`
	APIKeys        string         `mapstructure:"api_keys"`
	MaxConcurrent  int            `mapstructure:"max_concurrent"`
	TaskTTL        time.Duration  `mapstructure:"task_ttl"`
	SweepInterval  time.Duration  `mapstructure:"sweep_interval"`
	StreamInterval time.Duration  `mapstructure:"stream_interval"`
	Provider       ProviderConfig `mapstructure:"provider"`
	Metrics        MetricsConfig  `mapstructure:"metrics"`
}

// Load reads configuration from atlas-config.json (searched in the working
// directory and $HOME, both optional) and the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("atlas-config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")

	v.SetEnvPrefix("ATLAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	// Empty defaults register the keys so AutomaticEnv can fill them.
	v.SetDefault("api_keys", "")
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("provider.api_key", "")
	v.SetDefault("agent_card_path", ".well-known/agent-card.json")
	v.SetDefault("max_concurrent", 8)
	v.SetDefault("task_ttl", "24h")
	v.SetDefault("sweep_interval", "1h")
	v.SetDefault("stream_interval", "1s")
	v.SetDefault("provider.model", "gemini-pro-latest")
	v.SetDefault("provider.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("provider.timeout", "30s")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port %d", c.Metrics.Port)
	}
	if c.Metrics.Enabled && c.Metrics.Port == c.Port {
		return fmt.Errorf("metrics port %d collides with the API port", c.Metrics.Port)
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max_concurrent must be positive, got %d", c.MaxConcurrent)
	}
	if c.TaskTTL <= 0 {
		return fmt.Errorf("task_ttl must be positive, got %s", c.TaskTTL)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive, got %s", c.SweepInterval)
	}
	if c.Provider.Timeout <= 0 {
		return fmt.Errorf("provider timeout must be positive, got %s", c.Provider.Timeout)
	}
	return nil
}

// KeySet parses the configured API keys. An empty setting disables auth; a
// malformed one is reported to the caller, which should also disable auth
// rather than refuse to start.
func (c *Config) KeySet() (map[string]auth.KeyRecord, error) {
	if strings.TrimSpace(c.APIKeys) == "" {
		return nil, nil
	}
	keys, err := auth.ParseKeySet(c.APIKeys)
	if err != nil {
		return nil, fmt.Errorf("invalid api_keys: %w", err)
	}
	return keys, nil
}
