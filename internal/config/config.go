package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	ErrNoConfig          = errors.New("config file not found")
	ErrNoAPIKey          = errors.New("api_key not set in config")
	ErrInvalidConfig     = errors.New("invalid config file")
	ErrInvalidWindowSize = errors.New("context_window_size must be positive")
)

// Config holds the global chatcore configuration.
type Config struct {
	APIKey             string        `mapstructure:"api_key"`
	BaseURL            string        `mapstructure:"base_url"`
	ContextWindowSize  int           `mapstructure:"context_window_size"`  // max turns sent as conversation context
	ContextTokenBudget int           `mapstructure:"context_token_budget"` // 0 disables token-based trimming
	HealthInterval     time.Duration `mapstructure:"health_interval"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	CancelOnSwitch     *bool         `mapstructure:"cancel_on_switch"` // cancel in-flight stream when switching sessions (default: true)
}

// Load reads the config from ~/.config/chatcore/config.yaml.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(filepath.Join(homeDir, ".config", "chatcore", "config.yaml"))
}

// LoadFrom reads the config from a specific path. Values may be overridden
// through the environment with a CHATCORE_ prefix (e.g. CHATCORE_API_KEY).
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("chatcore")
	v.AutomaticEnv()

	v.SetDefault("base_url", "http://localhost:8000")
	v.SetDefault("context_window_size", 15)
	v.SetDefault("context_token_budget", 0)
	v.SetDefault("health_interval", 30*time.Second)
	v.SetDefault("request_timeout", 30*time.Second)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoConfig
		}
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, ErrNoConfig
		}
		return nil, ErrInvalidConfig
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, ErrInvalidConfig
	}

	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.ContextWindowSize <= 0 {
		return nil, ErrInvalidWindowSize
	}
	if cfg.CancelOnSwitch == nil {
		t := true
		cfg.CancelOnSwitch = &t
	}

	return &cfg, nil
}
