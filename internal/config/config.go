package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration
type Config struct {
	Backend Backend `mapstructure:"backend"`
	Auth    Auth    `mapstructure:"auth"`
	Sync    Sync    `mapstructure:"sync"`
}

// Backend holds messaging backend configuration
type Backend struct {
	BaseURL      string        `mapstructure:"base_url"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Auth holds client credentials
type Auth struct {
	// Token is the bearer token issued by the identity provider. The
	// current user id is derived from its claims.
	Token string `mapstructure:"token"`
	// UserId overrides the token-derived identity when set (useful for
	// local testing against a backend without auth).
	UserId string `mapstructure:"user_id"`
}

// Sync holds engine paging configuration
type Sync struct {
	ConversationPageSize int `mapstructure:"conversation_page_size"`
	MessagePageSize      int `mapstructure:"message_page_size"`
}

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set defaults
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = "http://localhost:8080"
	}
	if cfg.Backend.DialTimeout == 0 {
		cfg.Backend.DialTimeout = 10 * time.Second
	}
	if cfg.Backend.ReadTimeout == 0 {
		cfg.Backend.ReadTimeout = 30 * time.Second
	}
	if cfg.Backend.WriteTimeout == 0 {
		cfg.Backend.WriteTimeout = 30 * time.Second
	}
	if cfg.Sync.ConversationPageSize == 0 {
		cfg.Sync.ConversationPageSize = 20
	}
	if cfg.Sync.MessagePageSize == 0 {
		cfg.Sync.MessagePageSize = 50
	}

	return &cfg, nil
}
