// Package config loads the service configuration from a YAML file with
// environment overrides for secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables overriding file-borne secrets.
const (
	EnvDatabaseDSN    = "INGEST_DATABASE_DSN"
	EnvJWTSecret      = "INGEST_JWT_SECRET"
	EnvFallbackAPIKey = "INGEST_FALLBACK_API_KEY"
	EnvRedisPassword  = "INGEST_REDIS_PASSWORD"
)

// Config is the top-level service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Storage  StorageConfig  `yaml:"storage"`
	OCR      OCRConfig      `yaml:"ocr"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
	Usage    UsageConfig    `yaml:"usage"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig points at the backing datastore.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// AuthConfig holds bearer verification material.
type AuthConfig struct {
	JWTSecret   string             `yaml:"jwt_secret"`
	ServiceKeys []ServiceKeyConfig `yaml:"service_keys"`
}

// ServiceKeyConfig maps a bcrypt service key hash to its owner.
type ServiceKeyConfig struct {
	OwnerID uint64 `yaml:"owner_id"`
	Hash    string `yaml:"hash"`
}

// StorageConfig selects the object store backing raw blobs.
type StorageConfig struct {
	Bucket string `yaml:"bucket"` // GCS bucket; empty selects the in-memory store.
}

// OCRConfig configures the providers.
type OCRConfig struct {
	Vertex      VertexConfig   `yaml:"vertex"`
	Fallback    FallbackConfig `yaml:"fallback"`
	CallTimeout time.Duration  `yaml:"call_timeout"`
}

// VertexConfig configures the primary Vertex AI provider.
type VertexConfig struct {
	Project string `yaml:"project"`
	Region  string `yaml:"region"`
	Model   string `yaml:"model"`
}

// FallbackConfig configures the secondary HTTP OCR provider.
type FallbackConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

// RedisConfig enables the optional status cache.
type RedisConfig struct {
	Addr      string        `yaml:"addr"` // Empty disables the cache.
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	StatusTTL time.Duration `yaml:"status_ttl"`
}

// LogConfig configures structured logging and file rotation.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // Empty logs to stderr only.
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// UsageConfig tunes the usage ledger maintenance.
type UsageConfig struct {
	RetentionDays int `yaml:"retention_days"` // 0 keeps records forever.
}

// Load reads a YAML configuration file, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, errRead := os.ReadFile(path)
	if errRead != nil {
		return nil, fmt.Errorf("read config: %w", errRead)
	}

	var cfg Config
	if errDecode := yaml.Unmarshal(data, &cfg); errDecode != nil {
		return nil, fmt.Errorf("parse config: %w", errDecode)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	if errValidate := cfg.validate(); errValidate != nil {
		return nil, errValidate
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv(EnvDatabaseDSN); dsn != "" {
		c.Database.DSN = dsn
	}
	if secret := os.Getenv(EnvJWTSecret); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if key := os.Getenv(EnvFallbackAPIKey); key != "" {
		c.OCR.Fallback.APIKey = key
	}
	if password := os.Getenv(EnvRedisPassword); password != "" {
		c.Redis.Password = password
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8317"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.OCR.CallTimeout <= 0 {
		c.OCR.CallTimeout = 2 * time.Minute
	}
	if c.OCR.Vertex.Region == "" {
		c.OCR.Vertex.Region = "us-central1"
	}
	if c.OCR.Vertex.Model == "" {
		c.OCR.Vertex.Model = "gemini-2.0-flash"
	}
	if c.Redis.StatusTTL <= 0 {
		c.Redis.StatusTTL = 30 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = 30
	}
}

func (c *Config) validate() error {
	if c.Database.DSN == "" {
		return errors.New("config: database.dsn is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("config: auth.jwt_secret is required")
	}
	for i, key := range c.Auth.ServiceKeys {
		if key.OwnerID == 0 || key.Hash == "" {
			return fmt.Errorf("config: auth.service_keys[%d] needs owner_id and hash", i)
		}
	}
	return nil
}
