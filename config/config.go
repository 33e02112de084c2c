// Package config provides configuration for the chat backend.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full service configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Chat      ChatConfig      `mapstructure:"chat"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Auth      AuthConfig      `mapstructure:"auth"`
	LogLevel  string          `mapstructure:"log_level"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds the relational store settings.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig holds the rate-limit counter store settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RateLimitConfig holds the fixed-window rate limiter settings.
type RateLimitConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Limit         int    `mapstructure:"limit"`
	WindowSeconds int    `mapstructure:"window_seconds"`
	KeyPrefix     string `mapstructure:"key_prefix"`
}

// ChatConfig holds the conversation settings.
type ChatConfig struct {
	// ContextSize is the number of trailing turns sent to the completion API.
	ContextSize int `mapstructure:"context_size"`
}

// OpenAIConfig holds the upstream completion provider settings.
type OpenAIConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	APIKey            string `mapstructure:"api_key"`
	Model             string `mapstructure:"model"`
	ConnectTimeoutMs  int    `mapstructure:"connect_timeout_ms"`
	ResponseTimeoutMs int    `mapstructure:"response_timeout_ms"`
}

// ConnectTimeout returns the dial timeout.
func (c OpenAIConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMs) * time.Millisecond
}

// ResponseTimeout returns the overall request timeout.
func (c OpenAIConfig) ResponseTimeout() time.Duration {
	return time.Duration(c.ResponseTimeoutMs) * time.Millisecond
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// BootstrapAPIKey, when set, seeds a user with that key at startup so a
	// fresh deployment can be exercised without a separate provisioning step.
	BootstrapAPIKey string `mapstructure:"bootstrap_api_key"`
}

// Load reads config.yaml (path overridable via CONFIG_PATH) with environment
// overrides prefixed CHATBOT_. A missing config file is not an error; defaults
// apply.
func Load() (*Config, error) {
	v := viper.New()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("CHATBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.dsn", "file:chatbot.db?cache=shared&mode=rwc")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.limit", 30)
	v.SetDefault("rate_limit.window_seconds", 60)
	v.SetDefault("rate_limit.key_prefix", "rate_limit")
	v.SetDefault("chat.context_size", 10)
	v.SetDefault("openai.base_url", "https://api.openai.com")
	// Empty defaults so environment-only values survive Unmarshal.
	v.SetDefault("openai.api_key", "")
	v.SetDefault("auth.bootstrap_api_key", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.connect_timeout_ms", 3000)
	v.SetDefault("openai.response_timeout_ms", 30000)
	v.SetDefault("log_level", "info")
}
