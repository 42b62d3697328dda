// Package config loads the bot configuration from defaults, an optional
// YAML file, .env files and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"slices"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "SIREN"

var ErrMissingToken = errors.New("config: bot token is not provided (set SIREN_TOKEN or DC_BOT_TOKEN)")

// Older variable names, still honoured.
var envAliases = map[string][]string{
	"token":          {"DC_BOT_TOKEN"},
	"api.base_url":   {"DC_HTTP_BASE_URL"},
	"api.version":    {"DC_GATEWAY_VERSION"},
	"server.address": {"API_ADDRESS"},
}

// LoadEnvFile loads .env style files into the process environment. Missing
// files are skipped; variables already set are kept.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, aliases := range envAliases {
		names := append([]string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		_ = v.BindEnv(append([]string{key}, names...)...)
	}
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("token", "")
	v.SetDefault("intents", 1<<0|1<<9|1<<15)

	v.SetDefault("api.base_url", "https://discord.com/api")
	v.SetDefault("api.version", 10)
	v.SetDefault("api.user_agent", "DiscordBot (https://github.com/hendrywilliam/siren, 1.0.0)")
	v.SetDefault("api.timeout", "30s")

	v.SetDefault("gateway.encoding", "json")
	v.SetDefault("gateway.resume_close_codes", []int{1000, 4420})
	v.SetDefault("gateway.reconnect_close_codes", []int{4007, 4009})
	v.SetDefault("gateway.send_per_minute", 120)
	v.SetDefault("gateway.send_burst", 5)
	v.SetDefault("gateway.identify_interval", "5s")
	v.SetDefault("gateway.max_reconnect_attempts", 5)
	v.SetDefault("gateway.max_backoff", "1m")

	v.SetDefault("identify.os", "linux")
	v.SetDefault("identify.browser", "siren")
	v.SetDefault("identify.device", "siren")

	v.SetDefault("ratelimit.max_attempts", 4)
	v.SetDefault("ratelimit.global_capacity", 50)
	v.SetDefault("ratelimit.global_period", "1s")

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.address", ":8080")

	v.SetDefault("stats.driver", "memory")
	v.SetDefault("stats.redis.address", "localhost:6379")
	v.SetDefault("stats.redis.password", "")
	v.SetDefault("stats.redis.db", 0)
	v.SetDefault("stats.redis.prefix", "siren:rest")
	v.SetDefault("stats.redis.ttl", "24h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// ReadFile merges a YAML config file into v.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	return nil
}

// Load decodes the effective settings of v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToWeakSliceHookFunc(","),
			trimSliceHookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Token = strings.TrimSpace(cfg.Token)
	return cfg, nil
}

// trimSliceHookFunc drops the blanks around comma separated list items, so
// "4007, 4009" decodes into []int.
func trimSliceHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		parts, ok := data.([]string)
		if !ok || t.Kind() != reflect.Slice {
			return data, nil
		}
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Token == "" {
		errs = append(errs, ErrMissingToken)
	}
	positive := map[string]int64{
		"api.version":                    int64(c.API.Version),
		"api.timeout":                    int64(c.API.Timeout),
		"gateway.send_per_minute":        int64(c.Gateway.SendPerMinute),
		"gateway.send_burst":             int64(c.Gateway.SendBurst),
		"gateway.identify_interval":      int64(c.Gateway.IdentifyInterval),
		"gateway.max_reconnect_attempts": int64(c.Gateway.MaxReconnectAttempts),
		"gateway.max_backoff":            int64(c.Gateway.MaxBackoff),
		"ratelimit.max_attempts":         int64(c.RateLimit.MaxAttempts),
		"ratelimit.global_capacity":      int64(c.RateLimit.GlobalCapacity),
		"ratelimit.global_period":        int64(c.RateLimit.GlobalPeriod),
	}
	keys := make([]string, 0, len(positive))
	for k := range positive {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if positive[k] <= 0 {
			errs = append(errs, fmt.Errorf("config: %s must be positive", k))
		}
	}
	if c.Gateway.Encoding != "json" {
		errs = append(errs, fmt.Errorf("config: gateway.encoding %q is not supported", c.Gateway.Encoding))
	}
	if !slices.Contains([]string{"memory", "redis", "none"}, c.Stats.Driver) {
		errs = append(errs, fmt.Errorf("config: unknown stats.driver %q", c.Stats.Driver))
	}
	if !slices.Contains([]string{"console", "json"}, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("config: unknown logging.format %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}
