// Package config loads the application configuration.
//
// Values come from three layers, later layers winning:
//
//  1. built-in defaults (Defaults)
//  2. the legacy DB_NAME / DB_USER / DB_PASSWORD / DB_HOST variables
//  3. USERS_* variables, e.g. USERS_SERVER_PORT -> server.port
//
// A `.env` file in the working directory is loaded into the process
// environment first. The result is validated with go-playground/validator
// so a bad deployment fails at startup rather than on the first request.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix of every application variable.
	EnvPrefix = "USERS_"

	// LegacyDBPrefix is the prefix of the database variables the service
	// has always honored (DB_NAME, DB_USER, DB_PASSWORD, DB_HOST).
	LegacyDBPrefix = "DB_"

	// ServiceName labels logs and APM data.
	ServiceName = "user-registry"
)

// Config is the root configuration object.
//
// Observability is a pointer because the whole block is optional; when it
// is absent DefaultObservabilityConfig is used.
type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Server        ServerConfig         `koanf:"server" validate:"required"`
	Database      DatabaseConfig       `koanf:"database" validate:"required"`
	Observability *ObservabilityConfig `koanf:"observability"`
}

// Primary holds top-level runtime information.
type Primary struct {
	// Env is "local", "development" or "production". "local" turns on SQL
	// query logging.
	Env string `koanf:"env" validate:"required,oneof=local development production"`
}

// ServerConfig groups HTTP server settings. Timeouts are in seconds.
type ServerConfig struct {
	Port               string   `koanf:"port" validate:"required"`
	ReadTimeout        int      `koanf:"read_timeout" validate:"required,min=1"`
	WriteTimeout       int      `koanf:"write_timeout" validate:"required,min=1"`
	IdleTimeout        int      `koanf:"idle_timeout" validate:"required,min=1"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins" validate:"required,min=1"`

	// RateLimit is the number of requests per second allowed per client IP.
	RateLimit float64 `koanf:"rate_limit" validate:"required,gt=0"`
}

// DatabaseConfig holds the PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `koanf:"host" validate:"required"`
	Port     int    `koanf:"port" validate:"required,min=1,max=65535"`
	User     string `koanf:"user" validate:"required"`
	Password string `koanf:"password"`
	Name     string `koanf:"name" validate:"required"`
	SSLMode  string `koanf:"ssl_mode" validate:"required,oneof=disable allow prefer require verify-ca verify-full"`

	// ConnectTimeout bounds the initial connection and ping, in seconds.
	ConnectTimeout int `koanf:"connect_timeout" validate:"required,min=1"`

	// QueryTimeout bounds each unit of work on the connection, in seconds.
	// It applies whatever the request's own deadline is.
	QueryTimeout int `koanf:"query_timeout" validate:"required,min=1"`
}

// Defaults returns the built-in configuration values as a flat koanf map.
//
// The database defaults match what the service has always used when no
// variables are set: postgres/postgres on localhost.
func Defaults() map[string]any {
	return map[string]any{
		"primary.env": "local",

		"server.port":                 "8000",
		"server.read_timeout":         30,
		"server.write_timeout":        30,
		"server.idle_timeout":         60,
		"server.cors_allowed_origins": []string{"*"},
		"server.rate_limit":           20.0,

		"database.host":            "localhost",
		"database.port":            5432,
		"database.user":            "postgres",
		"database.password":        "postgres",
		"database.name":            "postgres",
		"database.ssl_mode":        "disable",
		"database.connect_timeout": 10,
		"database.query_timeout":   10,

		"observability.logging.level":                         "info",
		"observability.logging.format":                        "json",
		"observability.logging.slow_query_threshold":          "100ms",
		"observability.new_relic.license_key":                 "",
		"observability.new_relic.app_log_forwarding_enabled":  true,
		"observability.new_relic.distributed_tracing_enabled": true,
		"observability.new_relic.debug_logging":               false,
		"observability.health_checks.timeout":                 "5s",
	}
}

// nestedSections are the second-level blocks. Their names are joined back
// with a dot so USERS_OBSERVABILITY_NEW_RELIC_LICENSE_KEY reaches
// observability.new_relic.license_key.
var nestedSections = []string{
	"observability.logging",
	"observability.new_relic",
	"observability.health_checks",
}

// envKey maps an application variable to its koanf key. The first
// underscore after the prefix separates the section from the field:
//
//	USERS_DATABASE_SSL_MODE -> database.ssl_mode
//	USERS_OBSERVABILITY_LOGGING_LEVEL -> observability.logging.level
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	key = strings.Replace(key, "_", ".", 1)

	for _, section := range nestedSections {
		if strings.HasPrefix(key, section+"_") {
			return section + "." + strings.TrimPrefix(key, section+"_")
		}
	}

	return key
}

// legacyDBKey maps DB_HOST -> database.host and so on.
func legacyDBKey(s string) string {
	return "database." + strings.ToLower(strings.TrimPrefix(s, LegacyDBPrefix))
}

// LoadConfig builds, validates and returns the configuration.
func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading config defaults: %w", err)
	}

	if err := k.Load(env.Provider(LegacyDBPrefix, ".", legacyDBKey), nil); err != nil {
		return nil, fmt.Errorf("loading legacy database env variables: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env variables: %w", err)
	}

	// koanf's default decoder splits comma-separated strings into slices
	// (server.cors_allowed_origins) and converts numeric strings.
	mainConfig := &Config{}
	if err := k.Unmarshal("", mainConfig); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := mainConfig.finalize(); err != nil {
		return nil, err
	}

	return mainConfig, nil
}

// finalize fills in the observability block, then validates everything.
func (c *Config) finalize() error {
	if c.Observability == nil {
		c.Observability = DefaultObservabilityConfig()
	}

	// The service name is fixed and the environment always follows
	// primary.env, whatever was configured.
	c.Observability.ServiceName = ServiceName
	c.Observability.Environment = c.Primary.Env

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}
