package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Search        SearchConfig        `yaml:"search"`
	Auth          AuthConfig          `yaml:"auth"`
	Verification  VerificationConfig  `yaml:"verification"`
	Jobs          JobsConfig          `yaml:"jobs"`
	Notifications NotificationsConfig `yaml:"notifications"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Type     string         `yaml:"type"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
}

// MySQLConfig contains MySQL connection settings
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PostgresConfig contains PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// SQLiteConfig contains the SQLite file path (development only)
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig contains Redis connection settings used for job locks.
// An empty Addr disables Redis and falls back to an in-process lock.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SearchConfig contains search engine settings
type SearchConfig struct {
	Meilisearch MeilisearchConfig `yaml:"meilisearch"`
}

// MeilisearchConfig contains Meilisearch connection settings
type MeilisearchConfig struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`
	Index  string `yaml:"index"`
}

// AuthConfig contains bearer token settings
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// VerificationConfig is the single source of verification policy values
type VerificationConfig struct {
	DefaultFrequencyDays int     `yaml:"default_frequency_days"`
	ResponseWindowDays   int     `yaml:"response_window_days"`
	MaxManualWindowDays  int     `yaml:"max_manual_window_days"`
	VerifiedValidityDays int     `yaml:"verified_validity_days"`
	ReliabilityPenalty   float64 `yaml:"reliability_penalty"`
	DefaultReliability   float64 `yaml:"default_reliability"`
	OwnerResponseReward  int     `yaml:"owner_response_reward"`
	MaxNotifyAttempts    int     `yaml:"max_notify_attempts"`
	BatchSize            int     `yaml:"batch_size"`
}

// JobsConfig controls the embedded cron runner
type JobsConfig struct {
	Embedded       bool   `yaml:"embedded"`
	ScheduleSpec   string `yaml:"schedule_spec"`
	SweepSpec      string `yaml:"sweep_spec"`
	DailyRunTime   string `yaml:"daily_run_time"`
	LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
}

// NotificationsConfig contains owner notification settings
type NotificationsConfig struct {
	FrontendURL      string         `yaml:"frontend_url"`
	OrganizationName string         `yaml:"organization_name"`
	SendGrid         SendGridConfig `yaml:"sendgrid"`
	Twilio           TwilioConfig   `yaml:"twilio"`
	Breaker          BreakerConfig  `yaml:"breaker"`
}

// SendGridConfig contains email delivery settings
type SendGridConfig struct {
	APIKey      string `yaml:"api_key"`
	FromEmail   string `yaml:"from_email"`
	SandboxMode bool   `yaml:"sandbox_mode"`
}

// TwilioConfig contains SMS delivery settings
type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromPhone  string `yaml:"from_phone"`
}

// BreakerConfig contains circuit breaker settings per channel
type BreakerConfig struct {
	FailureThreshold    int `yaml:"failure_threshold"`
	ResetTimeoutSeconds int `yaml:"reset_timeout_seconds"`
}

// RateLimitConfig contains rate limiting settings for manual requests
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	RequestsPerHour   int  `yaml:"requests_per_hour"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogSQL  bool   `yaml:"log_sql"`
	AppName string `yaml:"app_name"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8084",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{
			Type: "mysql",
			MySQL: MySQLConfig{
				Host:     "localhost",
				Port:     3306,
				User:     "rental_user",
				Database: "rental_db",
			},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "rental_user",
				Database: "rental_db",
				SSLMode:  "disable",
			},
			SQLite: SQLiteConfig{
				Path: "rental.db",
			},
		},
		Search: SearchConfig{
			Meilisearch: MeilisearchConfig{
				Index: "property_trust",
			},
		},
		Verification: VerificationConfig{
			DefaultFrequencyDays: 7,
			ResponseWindowDays:   3,
			MaxManualWindowDays:  14,
			VerifiedValidityDays: 30,
			ReliabilityPenalty:   0.1,
			DefaultReliability:   0.5,
			OwnerResponseReward:  2,
			MaxNotifyAttempts:    5,
			BatchSize:            200,
		},
		Jobs: JobsConfig{
			Embedded:       false,
			ScheduleSpec:   "",
			SweepSpec:      "0 * * * *",
			DailyRunTime:   "02:00",
			LockTTLSeconds: 900,
		},
		Notifications: NotificationsConfig{
			FrontendURL:      "http://localhost:3000",
			OrganizationName: "Rental Marketplace",
			SendGrid: SendGridConfig{
				SandboxMode: true,
			},
			Breaker: BreakerConfig{
				FailureThreshold:    5,
				ResetTimeoutSeconds: 300,
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 5,
			RequestsPerHour:   30,
		},
		Logging: LoggingConfig{
			Level:   "info",
			AppName: "verification",
		},
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filepath string) (*Config, error) {
	// Start with default config
	config := DefaultConfig()

	// If file doesn't exist, return default config
	if _, err := os.Stat(filepath); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyEnv overrides secrets and connection details from the environment
func (c *Config) ApplyEnv() {
	c.Server.Port = getEnvOrConfig("PORT", c.Server.Port)
	c.Database.Type = getEnvOrConfig("DB_TYPE", c.Database.Type)
	c.Database.MySQL.Host = getEnvOrConfig("DB_HOST", c.Database.MySQL.Host)
	c.Database.MySQL.Port = getEnvIntOrConfig("DB_PORT", c.Database.MySQL.Port)
	c.Database.MySQL.User = getEnvOrConfig("DB_USER", c.Database.MySQL.User)
	c.Database.MySQL.Password = getEnvOrConfig("DB_PASSWORD", c.Database.MySQL.Password)
	c.Database.MySQL.Database = getEnvOrConfig("DB_NAME", c.Database.MySQL.Database)
	c.Database.Postgres.Host = getEnvOrConfig("POSTGRES_HOST", c.Database.Postgres.Host)
	c.Database.Postgres.Port = getEnvIntOrConfig("POSTGRES_PORT", c.Database.Postgres.Port)
	c.Database.Postgres.User = getEnvOrConfig("POSTGRES_USER", c.Database.Postgres.User)
	c.Database.Postgres.Password = getEnvOrConfig("POSTGRES_PASSWORD", c.Database.Postgres.Password)
	c.Database.Postgres.Database = getEnvOrConfig("POSTGRES_DB", c.Database.Postgres.Database)
	c.Database.SQLite.Path = getEnvOrConfig("SQLITE_PATH", c.Database.SQLite.Path)
	c.Redis.Addr = getEnvOrConfig("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnvOrConfig("REDIS_PASSWORD", c.Redis.Password)
	c.Search.Meilisearch.Host = getEnvOrConfig("MEILISEARCH_HOST", c.Search.Meilisearch.Host)
	c.Search.Meilisearch.APIKey = getEnvOrConfig("MEILISEARCH_API_KEY", c.Search.Meilisearch.APIKey)
	c.Auth.JWTSecret = getEnvOrConfig("JWT_SECRET", c.Auth.JWTSecret)
	c.Notifications.FrontendURL = getEnvOrConfig("FRONTEND_URL", c.Notifications.FrontendURL)
	c.Notifications.SendGrid.APIKey = getEnvOrConfig("SENDGRID_API_KEY", c.Notifications.SendGrid.APIKey)
	c.Notifications.SendGrid.FromEmail = getEnvOrConfig("SENDGRID_FROM_EMAIL", c.Notifications.SendGrid.FromEmail)
	c.Notifications.Twilio.AccountSID = getEnvOrConfig("TWILIO_ACCOUNT_SID", c.Notifications.Twilio.AccountSID)
	c.Notifications.Twilio.AuthToken = getEnvOrConfig("TWILIO_AUTH_TOKEN", c.Notifications.Twilio.AuthToken)
	c.Notifications.Twilio.FromPhone = getEnvOrConfig("TWILIO_FROM_PHONE", c.Notifications.Twilio.FromPhone)
	c.Logging.Level = getEnvOrConfig("LOG_LEVEL", c.Logging.Level)
}

// Validate rejects policy values that would break the engine invariants
func (c *Config) Validate() error {
	v := c.Verification
	if v.ResponseWindowDays <= 0 {
		return fmt.Errorf("verification.response_window_days must be positive, got %d", v.ResponseWindowDays)
	}
	if v.MaxManualWindowDays < v.ResponseWindowDays {
		return fmt.Errorf("verification.max_manual_window_days (%d) is below response_window_days (%d)",
			v.MaxManualWindowDays, v.ResponseWindowDays)
	}
	if v.DefaultFrequencyDays <= 0 {
		return fmt.Errorf("verification.default_frequency_days must be positive, got %d", v.DefaultFrequencyDays)
	}
	if v.ReliabilityPenalty < 0 || v.ReliabilityPenalty > 1 {
		return fmt.Errorf("verification.reliability_penalty must be within [0,1], got %v", v.ReliabilityPenalty)
	}
	if v.BatchSize <= 0 {
		return fmt.Errorf("verification.batch_size must be positive, got %d", v.BatchSize)
	}
	return nil
}

// GetLockTTL returns the job lock TTL as a duration
func (c *JobsConfig) GetLockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// GetResetTimeout returns the breaker reset timeout as a duration
func (c *BreakerConfig) GetResetTimeout() time.Duration {
	return time.Duration(c.ResetTimeoutSeconds) * time.Second
}

func getEnvOrConfig(key, configValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return configValue
}

func getEnvIntOrConfig(key string, configValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return configValue
}
