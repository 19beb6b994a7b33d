// Package config loads the service configuration from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/SanteonNL/ekaemr/cmd/ekaemr/converter"
	"github.com/SanteonNL/ekaemr/cmd/ekaemr/fhir/client"
	"github.com/SanteonNL/ekaemr/cmd/ekaemr/fhir/coding"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port            string        `mapstructure:"PORT"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	Lenient         bool          `mapstructure:"LENIENT"`
	AnySystem       bool          `mapstructure:"ANY_SYSTEM"`
	Workers         int           `mapstructure:"WORKERS"`
	ConceptMapDir   string        `mapstructure:"CONCEPTMAP_DIR"`
	FHIRTimeout     time.Duration `mapstructure:"FHIR_TIMEOUT"`
	FHIRRetryMax    int           `mapstructure:"FHIR_RETRY_MAX"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	CacheEnabled    bool          `mapstructure:"CACHE_ENABLED"`
	CacheTTL        time.Duration `mapstructure:"CACHE_TTL"`
	CacheMaxSize    int           `mapstructure:"CACHE_MAX_SIZE"`
	CacheCleanup    time.Duration `mapstructure:"CACHE_CLEANUP_INTERVAL"`
	OutputDir       string        `mapstructure:"OUTPUT_DIR"`
	PrioritySystems []string      `mapstructure:"-"`
	ConceptMapURLs  []string      `mapstructure:"-"`
}

var keys = []string{
	"PORT", "LOG_LEVEL", "PRIORITY_SYSTEMS", "LENIENT", "ANY_SYSTEM", "WORKERS",
	"CONCEPTMAP_DIR", "CONCEPTMAP_URLS", "FHIR_TIMEOUT", "FHIR_RETRY_MAX", "DATABASE_URL",
	"CACHE_ENABLED", "CACHE_TTL", "CACHE_MAX_SIZE", "CACHE_CLEANUP_INTERVAL", "OUTPUT_DIR",
}

// Load reads the configuration. Environment variables win over values from
// envFile, which win over the defaults. A missing envFile is not an error.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PRIORITY_SYSTEMS", strings.Join(coding.DefaultPrioritySystems, ","))
	v.SetDefault("LENIENT", false)
	v.SetDefault("ANY_SYSTEM", false)
	v.SetDefault("WORKERS", 1)
	v.SetDefault("CONCEPTMAP_DIR", "")
	v.SetDefault("CONCEPTMAP_URLS", "")
	v.SetDefault("FHIR_TIMEOUT", "60s")
	v.SetDefault("FHIR_RETRY_MAX", 3)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("CACHE_TTL", "15m")
	v.SetDefault("CACHE_MAX_SIZE", 1000)
	v.SetDefault("CACHE_CLEANUP_INTERVAL", "5m")
	v.SetDefault("OUTPUT_DIR", "")

	if envFile != "" {
		values, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
		for key, value := range values {
			v.SetDefault(strings.ToUpper(key), value)
		}
	}

	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.PrioritySystems = splitList(v.GetString("PRIORITY_SYSTEMS"))
	cfg.ConceptMapURLs = splitList(v.GetString("CONCEPTMAP_URLS"))

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.CacheMaxSize < 0 {
		return fmt.Errorf("CACHE_MAX_SIZE must not be negative, got %d", c.CacheMaxSize)
	}
	if c.FHIRRetryMax < 0 {
		return fmt.Errorf("FHIR_RETRY_MAX must not be negative, got %d", c.FHIRRetryMax)
	}
	return nil
}

func (c *Config) ResolverConfig() coding.Config {
	return coding.Config{PrioritySystems: c.PrioritySystems, AnySystem: c.AnySystem}
}

func (c *Config) CacheConfig() converter.CacheConfig {
	return converter.CacheConfig{
		Enabled:         c.CacheEnabled,
		DefaultTTL:      c.CacheTTL,
		MaxSize:         c.CacheMaxSize,
		CleanupInterval: c.CacheCleanup,
	}
}

func (c *Config) ClientConfig() client.Config {
	return client.Config{Timeout: c.FHIRTimeout, RetryMax: c.FHIRRetryMax}
}
