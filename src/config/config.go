package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the complete bot configuration. Keys mirror the YAML file and
// the SIREN_ environment variables, e.g. gateway.max_backoff is
// SIREN_GATEWAY_MAX_BACKOFF.
type Config struct {
	Token     string          `mapstructure:"token" yaml:"token"`
	Intents   int             `mapstructure:"intents" yaml:"intents"`
	API       APIConfig       `mapstructure:"api" yaml:"api"`
	Gateway   GatewayConfig   `mapstructure:"gateway" yaml:"gateway"`
	Identify  IdentifyConfig  `mapstructure:"identify" yaml:"identify"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit" yaml:"ratelimit"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Stats     StatsConfig     `mapstructure:"stats" yaml:"stats"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url"`
	Version   int           `mapstructure:"version" yaml:"version"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// URL is the versioned REST base, e.g. https://discord.com/api/v10.
func (a APIConfig) URL() string {
	return fmt.Sprintf("%s/v%d", strings.TrimRight(a.BaseURL, "/"), a.Version)
}

type GatewayConfig struct {
	Encoding             string        `mapstructure:"encoding" yaml:"encoding"`
	ResumeCloseCodes     []int         `mapstructure:"resume_close_codes" yaml:"resume_close_codes"`
	ReconnectCloseCodes  []int         `mapstructure:"reconnect_close_codes" yaml:"reconnect_close_codes"`
	SendPerMinute        int           `mapstructure:"send_per_minute" yaml:"send_per_minute"`
	SendBurst            int           `mapstructure:"send_burst" yaml:"send_burst"`
	IdentifyInterval     time.Duration `mapstructure:"identify_interval" yaml:"identify_interval"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`
	MaxBackoff           time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
}

// IdentifyConfig is the client metadata sent with IDENTIFY.
type IdentifyConfig struct {
	OS      string `mapstructure:"os" yaml:"os"`
	Browser string `mapstructure:"browser" yaml:"browser"`
	Device  string `mapstructure:"device" yaml:"device"`
}

type RateLimitConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	GlobalCapacity int           `mapstructure:"global_capacity" yaml:"global_capacity"`
	GlobalPeriod   time.Duration `mapstructure:"global_period" yaml:"global_period"`
}

// ServerConfig is the ops HTTP server.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
}

type StatsConfig struct {
	// Driver is one of memory, redis or none.
	Driver string           `mapstructure:"driver" yaml:"driver"`
	Redis  RedisStatsConfig `mapstructure:"redis" yaml:"redis"`
}

type RedisStatsConfig struct {
	Address  string        `mapstructure:"address" yaml:"address"`
	Password string        `mapstructure:"password" yaml:"password"`
	DB       int           `mapstructure:"db" yaml:"db"`
	Prefix   string        `mapstructure:"prefix" yaml:"prefix"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`
	// Format is console or json.
	Format string `mapstructure:"format" yaml:"format"`
}

const redacted = "********"

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Token != "" {
		c.Token = redacted
	}
	if c.Stats.Redis.Password != "" {
		c.Stats.Redis.Password = redacted
	}
	return c
}
