// Package config provides configuration loading for the notebooklets
// runtime: provider connections, enrichment cache, display behavior and
// the optional HTTP API server.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opensoc/notebooklets/pkg/cache"
	"github.com/opensoc/notebooklets/pkg/middleware"
	"github.com/opensoc/notebooklets/pkg/observability"
	"github.com/opensoc/notebooklets/pkg/providers"
)

// Config is the main configuration structure.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Cache         CacheConfig         `yaml:"cache"`
	Display       DisplayConfig       `yaml:"display"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds settings for the HTTP API server.
type ServerConfig struct {
	Host      string                     `yaml:"host"`
	Port      int                        `yaml:"port"`
	Auth      AuthConfig                 `yaml:"auth"`
	RateLimit middleware.RateLimitConfig `yaml:"rate_limit"`
}

// AuthConfig holds bearer token authentication settings for the server.
type AuthConfig struct {
	Enabled   bool   `yaml:"enabled"`
	SecretKey string `yaml:"secret_key"`
}

// ProvidersConfig selects and configures the upstream providers.
// Default lists the providers loaded at startup; per-provider blocks
// hold their connection settings.
type ProvidersConfig struct {
	Default    []string                    `yaml:"default"`
	ClickHouse *providers.ClickHouseConfig `yaml:"clickhouse,omitempty"`
	LocalData  *providers.LocalDataConfig  `yaml:"localdata,omitempty"`
	TILookup   *providers.TIConfig         `yaml:"tilookup,omitempty"`
	GeoLookup  *providers.GeoIPConfig      `yaml:"geolookup,omitempty"`
	Whois      *providers.WhoisConfig      `yaml:"whois,omitempty"`
}

// CacheConfig selects the enrichment cache backend.
type CacheConfig struct {
	// Backend is "memory" (default) or "redis".
	Backend string            `yaml:"backend"`
	TTL     time.Duration     `yaml:"ttl"`
	Redis   cache.RedisConfig `yaml:"redis,omitempty"`
}

// DisplayConfig holds process-wide display behavior.
type DisplayConfig struct {
	// Silent suppresses every render call when set.
	Silent bool `yaml:"silent"`
}

// ObservabilityConfig holds logging and metrics configuration.
type ObservabilityConfig struct {
	Logging        observability.LoggerConfig `yaml:"logging"`
	MetricsEnabled bool                       `yaml:"metrics_enabled"`
}

// Load loads configuration from a YAML file with environment variable
// substitution.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		if path == "" {
			path = "config.yaml"
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	substituted, err := substituteEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("substituting env vars: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(substituted), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// envVarWithDefaultPattern matches ${VAR_NAME:-default} patterns.
var envVarWithDefaultPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// substituteEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-default}
// patterns with environment variable values. Comment lines are skipped.
// Missing variables without defaults become empty strings.
func substituteEnvVars(content string) (string, error) {
	lines := strings.Split(content, "\n")

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			continue
		}

		lines[i] = envVarWithDefaultPattern.ReplaceAllStringFunc(line, func(match string) string {
			parts := envVarWithDefaultPattern.FindStringSubmatch(match)
			varName := parts[1]
			defaultVal := ""
			if len(parts) > 2 {
				defaultVal = parts[2]
			}

			value := os.Getenv(varName)
			if value == "" {
				return defaultVal
			}

			return value
		})
	}

	return strings.Join(lines, "\n"), nil
}

// ApplyDefaults sets default values for configuration fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}

	if c.Server.Port == 0 {
		c.Server.Port = 2680
	}

	if len(c.Providers.Default) == 0 {
		c.Providers.Default = []string{"localdata"}
	}

	if c.Providers.LocalData == nil {
		c.Providers.LocalData = &providers.LocalDataConfig{}
	}

	if c.Providers.LocalData.Path == "" {
		c.Providers.LocalData.Path = "testdata"
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}

	if c.Cache.TTL == 0 {
		c.Cache.TTL = time.Hour
	}

	c.Observability.Logging.ApplyDefaults()

	// API keys come from the environment, never the config file.
	if c.Providers.TILookup != nil && c.Providers.TILookup.APIKeyEnv != "" {
		c.Providers.TILookup.APIKey = os.Getenv(c.Providers.TILookup.APIKeyEnv)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, name := range c.Providers.Default {
		switch name {
		case "clickhouse":
			if c.Providers.ClickHouse == nil || len(c.Providers.ClickHouse.Addresses) == 0 {
				return fmt.Errorf("provider %q is enabled but providers.clickhouse.addresses is empty", name)
			}
		case "localdata":
			if c.Providers.LocalData == nil || c.Providers.LocalData.Path == "" {
				return fmt.Errorf("provider %q is enabled but providers.localdata.path is empty", name)
			}
		case "tilookup":
			if c.Providers.TILookup == nil || c.Providers.TILookup.BaseURL == "" {
				return fmt.Errorf("provider %q is enabled but providers.tilookup.base_url is empty", name)
			}
		case "geolookup":
			if c.Providers.GeoLookup == nil || c.Providers.GeoLookup.BaseURL == "" {
				return fmt.Errorf("provider %q is enabled but providers.geolookup.base_url is empty", name)
			}
		case "whois":
			// whois has a built-in default server.
		default:
			return fmt.Errorf("unknown provider %q in providers.default", name)
		}
	}

	if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
		return fmt.Errorf("cache.backend must be \"memory\" or \"redis\", got %q", c.Cache.Backend)
	}

	if c.Cache.Backend == "redis" && c.Cache.Redis.Address == "" {
		return fmt.Errorf("cache.backend is \"redis\" but cache.redis.address is empty")
	}

	if c.Server.Auth.Enabled && c.Server.Auth.SecretKey == "" {
		return fmt.Errorf("server.auth.enabled is set but server.auth.secret_key is empty")
	}

	return nil
}
