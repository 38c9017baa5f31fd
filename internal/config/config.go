package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the runtime settings of the expression evaluator: typing
// strictness, plan caching, logging and the optional schema directory.
type Config struct {
	Env           string `mapstructure:"ENV"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	StrictTypes   bool   `mapstructure:"STRICT_TYPES"`
	PlanCacheSize int    `mapstructure:"PLAN_CACHE_SIZE"`
	SchemaDir     string `mapstructure:"SCHEMA_DIR"`
	BaseType      string `mapstructure:"BASE_TYPE"`
}

// Load reads configuration from the environment with FHIRPATH_ prefixed
// variables and an optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetEnvPrefix("FHIRPATH")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STRICT_TYPES", false)
	v.SetDefault("PLAN_CACHE_SIZE", 256)
	v.SetDefault("SCHEMA_DIR", "")
	v.SetDefault("BASE_TYPE", "")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("ENV")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("STRICT_TYPES")
	v.BindEnv("PLAN_CACHE_SIZE")
	v.BindEnv("SCHEMA_DIR")
	v.BindEnv("BASE_TYPE")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// IsDev reports whether the evaluator runs in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is usable before the engine starts.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL must be a zerolog level name, got %q", c.LogLevel)
	}
	if c.PlanCacheSize < 0 {
		return fmt.Errorf("PLAN_CACHE_SIZE must not be negative, got %d", c.PlanCacheSize)
	}
	return nil
}
