package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Server  ServerConfig  `mapstructure:"server"`
	Render  RenderConfig  `mapstructure:"render"`
	Sandbox SandboxConfig `mapstructure:"sandbox"`
	Secret  SecretConfig  `mapstructure:"secret"`
	Apollo  ApolloConfig  `mapstructure:"apollo"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
	Dev         bool   `mapstructure:"dev"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// RenderConfig holds render-pipeline settings: fetch retry/timeout policy,
// the overall render deadline, and cache housekeeping cadence.
type RenderConfig struct {
	FetchTimeout       time.Duration `mapstructure:"fetch_timeout"`
	FetchMaxAttempts   int           `mapstructure:"fetch_max_attempts"`
	FetchRetryInterval time.Duration `mapstructure:"fetch_retry_interval"`
	RenderTimeout      time.Duration `mapstructure:"render_timeout"`
	CacheSweepInterval time.Duration `mapstructure:"cache_sweep_interval"`
}

// SandboxConfig holds headless-Chrome sandbox pool settings.
type SandboxConfig struct {
	ChromePath string `mapstructure:"chrome_path"`
	PoolSize   int    `mapstructure:"pool_size"`
	Headless   bool   `mapstructure:"headless"`
}

// SecretConfig holds the shared-secret auth settings for /render and /flush.
type SecretConfig struct {
	FilePath string `mapstructure:"file_path"`
}

// ApolloConfig holds default settings for the Apollo-like network shim.
type ApolloConfig struct {
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/arcana-ssr/")

	v.SetEnvPrefix("ARCANA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "arcana-ssr")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", true)
	v.SetDefault("app.dev", false)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.max_body_bytes", int64(5*1024*1024))

	v.SetDefault("render.fetch_timeout", 60*time.Second)
	v.SetDefault("render.fetch_max_attempts", 3)
	v.SetDefault("render.fetch_retry_interval", 200*time.Millisecond)
	v.SetDefault("render.render_timeout", 30*time.Second)
	v.SetDefault("render.cache_sweep_interval", time.Minute)

	v.SetDefault("sandbox.chrome_path", "")
	v.SetDefault("sandbox.pool_size", 4)
	v.SetDefault("sandbox.headless", true)

	v.SetDefault("secret.file_path", "/etc/arcana-ssr/secret")

	v.SetDefault("apollo.default_timeout", time.Second)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Render.FetchMaxAttempts < 1 {
		return fmt.Errorf("render.fetch_max_attempts must be at least 1")
	}
	if c.Sandbox.PoolSize < 1 {
		return fmt.Errorf("sandbox.pool_size must be at least 1")
	}
	if !c.App.Dev && c.Secret.FilePath == "" {
		return fmt.Errorf("secret.file_path is required outside dev mode")
	}
	return nil
}
