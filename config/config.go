// Package config loads daemon settings from routine.yaml, a .env file and ROUTINE_*
// environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/cyp0633/libroutine/eventlog"
)

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "ROUTINE"

// Storage backends
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Config holds all configuration values
type Config struct {
	ListenAddr string `mapstructure:"LISTEN_ADDR"`
	Env        string `mapstructure:"ENV"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`
	LogFormat  string `mapstructure:"LOG_FORMAT"`
	Timezone   string `mapstructure:"TIMEZONE"`

	// Snapshot storage
	Storage       string `mapstructure:"STORAGE"`
	DataDir       string `mapstructure:"DATA_DIR"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	RedisPrefix   string `mapstructure:"REDIS_PREFIX"`
	PostgresURL   string `mapstructure:"POSTGRES_URL"`
	PostgresTable string `mapstructure:"POSTGRES_TABLE"`

	// NotifyChannel publishes domain events on redis when set
	NotifyChannel string `mapstructure:"NOTIFY_CHANNEL"`

	// Transition detector
	ScanInterval        time.Duration `mapstructure:"SCAN_INTERVAL"`
	TransitionDeadline  time.Duration `mapstructure:"TRANSITION_DEADLINE"`
	TransitionRetention time.Duration `mapstructure:"TRANSITION_RETENTION"`
	RecurrenceCache     bool          `mapstructure:"RECURRENCE_CACHE"`

	// Sleep auto-expiry
	NapCeiling    time.Duration `mapstructure:"NAP_CEILING"`
	NightCeiling  time.Duration `mapstructure:"NIGHT_CEILING"`
	NapFallback   time.Duration `mapstructure:"NAP_FALLBACK"`
	NightFallback time.Duration `mapstructure:"NIGHT_FALLBACK"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("TIMEZONE", "Local")

	v.SetDefault("STORAGE", StorageMemory)
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", "routine:")
	v.SetDefault("POSTGRES_URL", "postgres://localhost:5432/routine")
	v.SetDefault("POSTGRES_TABLE", "routine_snapshots")
	v.SetDefault("NOTIFY_CHANNEL", "")

	v.SetDefault("SCAN_INTERVAL", 5*time.Minute)
	v.SetDefault("TRANSITION_DEADLINE", 30*time.Minute)
	v.SetDefault("TRANSITION_RETENTION", 7*24*time.Hour)
	v.SetDefault("RECURRENCE_CACHE", true)

	v.SetDefault("NAP_CEILING", eventlog.DefaultExpiry.NapCeiling)
	v.SetDefault("NIGHT_CEILING", eventlog.DefaultExpiry.NightCeiling)
	v.SetDefault("NAP_FALLBACK", eventlog.DefaultExpiry.NapFallback)
	v.SetDefault("NIGHT_FALLBACK", eventlog.DefaultExpiry.NightFallback)
}

// Load reads configuration. dirs are searched for routine.yaml and .env; the working
// directory is used when none are given.
func Load(dirs ...string) (*Config, error) {
	if len(dirs) == 0 {
		dirs = []string{"."}
	}

	for _, dir := range dirs {
		// .env never overrides variables already set in the environment
		if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", filepath.Join(dir, ".env"), err)
		}
	}

	v := viper.New()
	v.SetConfigName("routine")
	v.SetConfigType("yaml")
	for _, dir := range dirs {
		v.AddConfigPath(dir)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
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

// Validate checks values that would otherwise fail late
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory, StorageFile, StorageRedis, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}
	if c.ScanInterval < time.Second {
		return fmt.Errorf("scan interval %s is shorter than a second", c.ScanInterval)
	}
	if c.TransitionDeadline <= 0 {
		return fmt.Errorf("transition deadline must be positive")
	}
	if c.TransitionRetention < 24*time.Hour {
		return fmt.Errorf("transition retention %s is shorter than a day", c.TransitionRetention)
	}
	for name, d := range map[string]time.Duration{
		"nap ceiling":    c.NapCeiling,
		"night ceiling":  c.NightCeiling,
		"nap fallback":   c.NapFallback,
		"night fallback": c.NightFallback,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Location resolves the household time zone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Expiry returns the sleep auto-expiry settings
func (c *Config) Expiry() eventlog.Expiry {
	return eventlog.Expiry{
		NapCeiling:    c.NapCeiling,
		NightCeiling:  c.NightCeiling,
		NapFallback:   c.NapFallback,
		NightFallback: c.NightFallback,
	}
}

// IsProduction reports whether the daemon runs in production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
