package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Whop     WhopConfig     `yaml:"whop"`
	SES      SESConfig      `yaml:"ses"`
	Workers  WorkersConfig  `yaml:"workers"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis settings for the sweep locks
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// WhopConfig holds Whop API configuration for membership sync
type WhopConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c WhopConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SESConfig holds AWS SES configuration for email outreach. DigestEmail is
// the operator address the daily digest is delivered to; when empty the
// digest worker skips sending.
type SESConfig struct {
	Region      string `yaml:"region"`
	AccessKey   string `yaml:"access_key"`
	SecretKey   string `yaml:"secret_key"`
	FromEmail   string `yaml:"from_email"`
	FromName    string `yaml:"from_name"`
	DigestEmail string `yaml:"digest_email"`
	Enabled     bool   `yaml:"enabled"`
}

// WorkersConfig holds the sweep intervals and batch sizes
type WorkersConfig struct {
	StepIntervalMinutes int `yaml:"step_interval_minutes"`
	StepBatchSize       int `yaml:"step_batch_size"`
	RiskIntervalHours   int `yaml:"risk_interval_hours"`
	SyncIntervalHours   int `yaml:"sync_interval_hours"`
	EnrollIntervalHours int `yaml:"enroll_interval_hours"`
	DigestIntervalHours int `yaml:"digest_interval_hours"`
}

// StepInterval returns the step executor poll interval as a duration
func (c WorkersConfig) StepInterval() time.Duration {
	return time.Duration(c.StepIntervalMinutes) * time.Minute
}

// RiskInterval returns the risk recalculation interval as a duration
func (c WorkersConfig) RiskInterval() time.Duration {
	return time.Duration(c.RiskIntervalHours) * time.Hour
}

// SyncInterval returns the membership sync interval as a duration
func (c WorkersConfig) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalHours) * time.Hour
}

// EnrollInterval returns the auto-enrollment sweep interval as a duration
func (c WorkersConfig) EnrollInterval() time.Duration {
	return time.Duration(c.EnrollIntervalHours) * time.Hour
}

// DigestInterval returns the daily digest interval as a duration
func (c WorkersConfig) DigestInterval() time.Duration {
	return time.Duration(c.DigestIntervalHours) * time.Hour
}

// LoggingConfig holds log level and redaction settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII bool   `yaml:"redact_pii"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Whop.BaseURL == "" {
		cfg.Whop.BaseURL = "https://api.whop.com/api/v2"
	}
	if cfg.Whop.TimeoutSeconds == 0 {
		cfg.Whop.TimeoutSeconds = 30
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.SES.FromName == "" {
		cfg.SES.FromName = "Grip"
	}
	if cfg.Workers.StepIntervalMinutes == 0 {
		cfg.Workers.StepIntervalMinutes = 15
	}
	if cfg.Workers.StepBatchSize == 0 {
		cfg.Workers.StepBatchSize = 50
	}
	if cfg.Workers.RiskIntervalHours == 0 {
		cfg.Workers.RiskIntervalHours = 6
	}
	if cfg.Workers.SyncIntervalHours == 0 {
		cfg.Workers.SyncIntervalHours = 1
	}
	if cfg.Workers.EnrollIntervalHours == 0 {
		cfg.Workers.EnrollIntervalHours = 1
	}
	if cfg.Workers.DigestIntervalHours == 0 {
		cfg.Workers.DigestIntervalHours = 24
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if apiKey := os.Getenv("WHOP_API_KEY"); apiKey != "" {
		cfg.Whop.APIKey = apiKey
	}
	if baseURL := os.Getenv("WHOP_BASE_URL"); baseURL != "" {
		cfg.Whop.BaseURL = baseURL
	}
	if accessKey := os.Getenv("AWS_SES_ACCESS_KEY"); accessKey != "" {
		cfg.SES.AccessKey = accessKey
	}
	if secretKey := os.Getenv("AWS_SES_SECRET_KEY"); secretKey != "" {
		cfg.SES.SecretKey = secretKey
	}
	if region := os.Getenv("AWS_SES_REGION"); region != "" {
		cfg.SES.Region = region
	}
	if from := os.Getenv("SES_FROM_EMAIL"); from != "" {
		cfg.SES.FromEmail = from
	}
	if digest := os.Getenv("SES_DIGEST_EMAIL"); digest != "" {
		cfg.SES.DigestEmail = digest
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	return cfg, nil
}
