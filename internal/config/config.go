// Package config provides configuration management for the archive ingestion
// server. Configuration can be loaded from YAML files and environment
// variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Chunked ChunkedConfig `mapstructure:"chunked"`
	Index   IndexConfig   `mapstructure:"index"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Extract ExtractConfig `mapstructure:"extract"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address in host:port form.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ArchiveConfig holds archive collection settings.
type ArchiveConfig struct {
	// CollectionDir is the directory holding stored archives.
	CollectionDir string `mapstructure:"collection_dir"`

	// BaseURL is the logical URL prefix archives are served under.
	// Identifiers are derived from this prefix plus the filename.
	BaseURL string `mapstructure:"base_url"`

	// ThumbBaseURL is the URL prefix for sidecar thumbnails.
	ThumbBaseURL string `mapstructure:"thumb_base_url"`
}

// UploadConfig holds whole-file upload settings.
type UploadConfig struct {
	// TempDir holds in-flight upload sinks.
	TempDir string `mapstructure:"temp_dir"`

	// MaxUploadSize is the total request-byte ceiling for whole-file mode.
	MaxUploadSize int64 `mapstructure:"max_upload_size"`
}

// ChunkedConfig holds chunked upload settings.
type ChunkedConfig struct {
	// Enabled turns the chunked mode (and its sweeper) on.
	Enabled bool `mapstructure:"enabled"`

	// SessionDir is the root directory for session subdirectories.
	SessionDir string `mapstructure:"session_dir"`

	// MaxChunkSize is the per-chunk byte ceiling. Larger than the
	// whole-file ceiling by design; chunked mode targets bigger files.
	MaxChunkSize int64 `mapstructure:"max_chunk_size"`

	// SweepInterval is how often the stale-session sweeper runs.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	// Retention is how long an untouched session survives.
	Retention time.Duration `mapstructure:"retention"`
}

// IndexConfig holds identifier index settings.
type IndexConfig struct {
	// Driver selects the index backend: "file" or "sqlite".
	Driver string `mapstructure:"driver"`

	// Path is the index file (file driver) or database file (sqlite).
	Path string `mapstructure:"path"`
}

// RedisConfig holds Redis settings for the distributed locker.
type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// Addr returns the Redis address in host:port format.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ExtractConfig holds metadata-extraction tool settings.
type ExtractConfig struct {
	// Command is the extraction binary; empty disables extraction.
	Command string `mapstructure:"command"`

	// Args are prepended before the archive path.
	Args []string `mapstructure:"args"`

	// Timeout bounds a single invocation.
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from the specified file and environment variables.
// Environment variables take precedence over file values and are prefixed
// with VITRINE_ (e.g. VITRINE_SERVER_PORT).
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("VITRINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/vitrine")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine; defaults and env vars cover everything.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", 10*time.Minute)
	v.SetDefault("server.write_timeout", 10*time.Minute)
	v.SetDefault("server.idle_timeout", 2*time.Minute)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	// Archive defaults
	v.SetDefault("archive.collection_dir", "./data/archives")
	v.SetDefault("archive.base_url", "/archives")
	v.SetDefault("archive.thumb_base_url", "/thumbs")

	// Upload defaults
	v.SetDefault("upload.temp_dir", "./data/tmp")
	v.SetDefault("upload.max_upload_size", int64(512*1024*1024)) // 512 MiB

	// Chunked defaults. The per-chunk ceiling is deliberately above the
	// whole-file ceiling; chunked mode exists for very large files.
	v.SetDefault("chunked.enabled", true)
	v.SetDefault("chunked.session_dir", "./data/sessions")
	v.SetDefault("chunked.max_chunk_size", int64(1024*1024*1024)) // 1 GiB
	v.SetDefault("chunked.sweep_interval", 1*time.Hour)
	v.SetDefault("chunked.retention", 24*time.Hour)

	// Index defaults
	v.SetDefault("index.driver", "file")
	v.SetDefault("index.path", "./data/archive-ids.json")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", 5*time.Second)

	// Extraction defaults
	v.SetDefault("extract.command", "")
	v.SetDefault("extract.timeout", 2*time.Minute)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks the configuration for required values and valid ranges.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if c.Archive.CollectionDir == "" {
		return fmt.Errorf("archive.collection_dir is required")
	}
	if c.Upload.TempDir == "" {
		return fmt.Errorf("upload.temp_dir is required")
	}
	if c.Upload.MaxUploadSize <= 0 {
		return fmt.Errorf("upload.max_upload_size must be positive")
	}

	if c.Chunked.Enabled {
		if c.Chunked.SessionDir == "" {
			return fmt.Errorf("chunked.session_dir is required when chunked mode is enabled")
		}
		if c.Chunked.MaxChunkSize <= 0 {
			return fmt.Errorf("chunked.max_chunk_size must be positive")
		}
	}

	validDrivers := map[string]bool{"file": true, "sqlite": true}
	if !validDrivers[c.Index.Driver] {
		return fmt.Errorf("index.driver must be 'file' or 'sqlite'")
	}
	if c.Index.Path == "" {
		return fmt.Errorf("index.path is required")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error, fatal, panic")
	}

	return nil
}

// MustLoad loads configuration or panics on error.
// Useful for main function initialization.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
