// Package config loads runtime configuration from environment
// variables (and an optional YAML file) with spf13/viper, the way the
// teacher's config package does, trimmed to the settings this resolver
// actually uses.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root configuration structure.
type Config struct {
	DNSPort     int    `mapstructure:"dns_port"`
	BindAddress string `mapstructure:"bind_address"`

	RedisHost string `mapstructure:"redis_host"`
	RedisPort int    `mapstructure:"redis_port"`

	NodeEnv string `mapstructure:"node_env"`

	DBPath string `mapstructure:"db_path"`

	APIHost string `mapstructure:"api_host"`
	APIPort int    `mapstructure:"api_port"`
	APIKey  string `mapstructure:"api_key"`

	LogLevel      string `mapstructure:"log_level"`
	LogStructured bool   `mapstructure:"log_structured"`
}

// Load reads configuration from environment variables (DNS_PORT,
// BIND_ADDRESS, REDIS_HOST, REDIS_PORT, NODE_ENV, and the HYDRADNS_*
// prefixed settings), optionally layered under a YAML file at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// These five are bare, unprefixed names per the external interface
	// contract; everything added by the expanded scope uses the
	// HYDRADNS_ prefix so it can't collide with an operator's existing
	// environment.
	bindEnv(v, "dns_port", "DNS_PORT")
	bindEnv(v, "bind_address", "BIND_ADDRESS")
	bindEnv(v, "redis_host", "REDIS_HOST")
	bindEnv(v, "redis_port", "REDIS_PORT")
	bindEnv(v, "node_env", "NODE_ENV")

	v.SetEnvPrefix("HYDRADNS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func bindEnv(v *viper.Viper, key, env string) {
	_ = v.BindEnv(key, env)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dns_port", 8053)
	v.SetDefault("bind_address", "0.0.0.0")

	v.SetDefault("redis_host", "127.0.0.1")
	v.SetDefault("redis_port", 6379)

	v.SetDefault("node_env", "development")

	v.SetDefault("db_path", "hydradns.db")

	v.SetDefault("api_host", "127.0.0.1")
	v.SetDefault("api_port", 8080)
	v.SetDefault("api_key", "")

	v.SetDefault("log_level", "INFO")
	v.SetDefault("log_structured", false)
}
