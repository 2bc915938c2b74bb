// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/swarm-handbook/editor/model"
)

// DefaultProductID is the product preloaded when no deep link is given.
const DefaultProductID = "SW_MAGx_LR_1B"

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Schema        SchemaConfig        `yaml:"schema"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	Enumerations  *model.Enumerations `yaml:"enumerations"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// CatalogConfig describes where product records are read from.
type CatalogConfig struct {
	Directory        string `yaml:"directory"`
	HotReload        bool   `yaml:"hot_reload"`
	DefaultProductID string `yaml:"default_product_id"`
}

// SchemaConfig points at the JSON Schema document used for preview hints.
// An empty path disables schema hints.
type SchemaConfig struct {
	Path string `yaml:"path"`
}

// SessionsConfig describes where editor sessions are kept between requests.
type SessionsConfig struct {
	Store        string        `yaml:"store"`
	RedisAddrEnv string        `yaml:"redis_addr_env"`
	RedisDB      int           `yaml:"redis_db"`
	TTL          time.Duration `yaml:"ttl"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel  string        `yaml:"log_level"`
	LogOutput string        `yaml:"log_output"`
	Tracing   TracingConfig `yaml:"tracing"`
	Metrics   MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxUploadBytes:  5 << 20,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		Catalog: CatalogConfig{
			Directory:        "catalog",
			DefaultProductID: DefaultProductID,
		},
		Sessions: SessionsConfig{
			Store:        "memory",
			RedisAddrEnv: "EDITOR_REDIS_ADDR",
			TTL:          12 * time.Hour,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogOutput: "stdout",
			Tracing: TracingConfig{
				Exporter:     "stdout",
				SamplingRate: 1.0,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// LoadDefaults returns Defaults with environment variable overrides applied,
// for running without a config file.
func LoadDefaults() (*Config, error) {
	cfg := Defaults()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, "server.max_upload_bytes must be positive")
	}
	if c.Catalog.Directory == "" {
		errs = append(errs, "catalog.directory is required")
	}
	if c.Catalog.DefaultProductID == "" {
		errs = append(errs, "catalog.default_product_id is required")
	}
	switch c.Sessions.Store {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("sessions.store %q is not supported (memory, redis)", c.Sessions.Store))
	}
	if c.Enumerations != nil {
		for _, sc := range c.Enumerations.Spacecraft {
			if _, ok := c.Enumerations.Missions[sc]; !ok {
				errs = append(errs, fmt.Sprintf("enumerations.missions has no entry for spacecraft %q", sc))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Enums returns the configured enumerations, or the built-in defaults if the
// file does not override them.
func (c *Config) Enums() *model.Enumerations {
	if c.Enumerations == nil {
		return model.DefaultEnumerations()
	}
	return c.Enumerations
}

// applyEnvOverrides reads EDITOR_* environment variables and overrides config
// values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EDITOR_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("EDITOR_CATALOG_DIRECTORY"); v != "" {
		cfg.Catalog.Directory = v
	}
	if v := os.Getenv("EDITOR_CATALOG_DEFAULT_PRODUCT_ID"); v != "" {
		cfg.Catalog.DefaultProductID = v
	}
	if v := os.Getenv("EDITOR_SCHEMA_PATH"); v != "" {
		cfg.Schema.Path = v
	}
	if v := os.Getenv("EDITOR_SESSIONS_STORE"); v != "" {
		cfg.Sessions.Store = v
	}
	if v := os.Getenv("EDITOR_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
}
