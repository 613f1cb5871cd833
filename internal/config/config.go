// Package config loads runtime configuration from environment variables and
// an optional config file through viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is everything the server binary needs to run.
type Config struct {
	Addr          string `mapstructure:"addr"`
	PublicBaseURL string `mapstructure:"public_base_url"`

	DatabaseDSN string `mapstructure:"database_dsn"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisDB     int    `mapstructure:"redis_db"`

	TokenSecret string `mapstructure:"token_secret"`

	AlertWebhookURL string `mapstructure:"alert_webhook_url"`
	RunbookBaseURL  string `mapstructure:"runbook_base_url"`

	MoveApplyTargetMS int `mapstructure:"move_apply_target_ms"`
	DisconnectGraceS  int `mapstructure:"disconnect_grace_s"`

	LogLevel string `mapstructure:"log_level"`
}

// Load reads configuration with BOARDLY_-prefixed env overrides, e.g.
// BOARDLY_ADDR, BOARDLY_DATABASE_DSN, BOARDLY_TOKEN_SECRET.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("boardly")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", ":8080")
	v.SetDefault("public_base_url", "http://localhost:8080")
	v.SetDefault("database_dsn", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("token_secret", "")
	v.SetDefault("alert_webhook_url", "")
	v.SetDefault("runbook_base_url", "")
	v.SetDefault("move_apply_target_ms", 500)
	v.SetDefault("disconnect_grace_s", 10)
	v.SetDefault("log_level", "info")

	v.SetConfigName("boardly")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/boardly")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.TokenSecret == "" {
		return nil, fmt.Errorf("BOARDLY_TOKEN_SECRET must be set")
	}
	return &cfg, nil
}
