package slurmproxy

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// AppConfig holds top-level settings for the proxy HTTP server.
type AppConfig struct {
	Name      string
	Host      string
	Port      int
	DebugMode bool
}

// SlurmRestConfig holds configuration for the Slurm REST API.
type SlurmRestConfig struct {
	Host          string // Base URL for the Slurm REST API, e.g. "http://login01:6820"
	ParserVersion string // Data parser plugin version, e.g. "0.0.42"
	Timeout       time.Duration
}

// SlurmEndpointURL returns the base URL for the live scheduler endpoints.
func (c SlurmRestConfig) SlurmEndpointURL() string {
	return fmt.Sprintf("%s/slurm/v%s", c.Host, c.ParserVersion)
}

// SlurmdbEndpointURL returns the base URL for the accounting endpoints.
func (c SlurmRestConfig) SlurmdbEndpointURL() string {
	return fmt.Sprintf("%s/slurmdb/v%s", c.Host, c.ParserVersion)
}

// TokenConfig holds configuration for minting Slurm REST JWT tokens.
type TokenConfig struct {
	KeyBase64      string // Base64-encoded HS256 signing key
	ExpirationSecs int64  // Token lifetime in seconds
}

// RegistryConfig selects and configures the job registry backend.
type RegistryConfig struct {
	Backend         string // "mongodb", "sqlite", "redis" or "memory"
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	MongoTimeout    time.Duration
	SQLitePath      string
	RedisURL        string
	CreatedAtMaxAge time.Duration // Scan window for the poller; <= 0 scans everything
}

// MonitorConfig holds configuration for the background job poller.
type MonitorConfig struct {
	PollingInterval time.Duration
}

// SSHConfig holds configuration for the SSH fallback transport.
type SSHConfig struct {
	Hostname       string
	Username       string
	PrivateKeyPath string
}

// RabbitMQConfig holds connection parameters for the AMQP notifier.
type RabbitMQConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Path     string
}

// URL assembles the AMQP connection URL.
func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s", c.Username, c.Password, c.Host, c.Port, c.Path)
}

// SMTPConfig holds connection parameters for the email notifier.
type SMTPConfig struct {
	Server   string
	Port     int
	Username string
	Password string
}

// GmailConfig holds parameters for the Gmail API notifier.
type GmailConfig struct {
	CredentialsPath string
}

// SlackConfig holds parameters for the Slack notifier.
type SlackConfig struct {
	BotToken string
	Channel  string
}

// Config aggregates every configurable knob of the proxy. It is loaded once
// at startup from environment variables and passed by reference into the
// components that need its sections.
type Config struct {
	App       AppConfig
	SlurmRest SlurmRestConfig
	Token     TokenConfig
	Registry  RegistryConfig
	Monitor   MonitorConfig
	SSH       SSHConfig
	RabbitMQ  RabbitMQConfig
	SMTP      SMTPConfig
	Gmail     GmailConfig
	Slack     SlackConfig
}

// LoadConfigFromEnv reads the full proxy configuration from the environment,
// applying the documented defaults for anything unset. It returns an error
// only for settings without a usable default, so callers can fail fast.
func LoadConfigFromEnv() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:      getEnv("FLASK_APP_NAME", "slurm-proxy"),
			Host:      getEnv("FLASK_APP_HOST", "0.0.0.0"),
			Port:      getEnvInt("FLASK_APP_PORT", 5001),
			DebugMode: getEnvBool("FLASK_APP_DEBUG_MODE", true),
		},
		SlurmRest: SlurmRestConfig{
			Host:          getEnv("SLURM_REST_HOST", "http://localhost:6820"),
			ParserVersion: getEnv("SLURM_REST_API_DATA_PARSER_PLUGIN_VERSION", "0.0.42"),
			Timeout:       time.Duration(getEnvInt("SLURM_REST_TIMEOUT", 10)) * time.Second,
		},
		Token: TokenConfig{
			KeyBase64:      os.Getenv("SLURM_JWT_HS256_KEY_BASE64"),
			ExpirationSecs: int64(getEnvInt("SLURM_REST_JWT_EXPIRATION_TIME", 10)),
		},
		Registry: RegistryConfig{
			Backend:         getEnv("MONITOR_REGISTRY_BACKEND", "mongodb"),
			MongoURI:        getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			MongoDatabase:   getEnv("MONGODB_MONITOR_DB", "monitordb"),
			MongoCollection: getEnv("MONGODB_MONITOR_JOBS_COLLECTION", "jobs"),
			MongoTimeout:    time.Duration(getEnvInt("MONGODB_TIMEOUT", 1000)) * time.Millisecond,
			SQLitePath:      getEnv("MONITOR_SQLITE_PATH", "monitor_jobs.db"),
			RedisURL:        getEnv("MONITOR_REDIS_URL", "redis://localhost:6379/0"),
			CreatedAtMaxAge: time.Duration(getEnvInt("MONGODB_MONITOR_JOB_CREATED_AT_MAX_AGE", 24)) * time.Hour,
		},
		Monitor: MonitorConfig{
			PollingInterval: time.Duration(getEnvInt("MONITOR_POLLING_INTERVAL", 1)) * time.Minute,
		},
		SSH: SSHConfig{
			Hostname:       getEnv("SSH_HOSTNAME", "localhost"),
			Username:       getEnv("SSH_USERNAME", ""),
			PrivateKeyPath: getEnv("SSH_PRIVATE_KEY_PATH", ""),
		},
		RabbitMQ: RabbitMQConfig{
			Host:     getEnv("RABBITMQ_HOST", "localhost"),
			Port:     getEnvInt("RABBITMQ_PORT", 5672),
			Username: getEnv("RABBITMQ_USERNAME", "guest"),
			Password: getEnv("RABBITMQ_PASSWORD", "guest"),
			Path:     getEnv("RABBITMQ_PATH", "/"),
		},
		SMTP: SMTPConfig{
			Server:   getEnv("SMTP_SERVER", "smtp.example.com"),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", "username@example.com"),
			Password: getEnv("SMTP_PASSWORD", "api_token"),
		},
		Gmail: GmailConfig{
			CredentialsPath: getEnv("GMAIL_CREDENTIALS_PATH", "gmail.credentials.json"),
		},
		Slack: SlackConfig{
			BotToken: getEnv("SLACK_BOT_TOKEN", ""),
			Channel:  getEnv("SLACK_CHANNEL", "general"),
		},
	}

	if cfg.Token.KeyBase64 == "" {
		return nil, fmt.Errorf("SLURM_JWT_HS256_KEY_BASE64 environment variable not set")
	}

	return cfg, nil
}

// getEnv returns the value of the environment variable or the fallback if unset.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvInt returns the integer value of the environment variable or the
// fallback if unset or unparseable.
func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvBool returns the boolean value of the environment variable or the
// fallback if unset. "true", "1" and "yes" count as true.
func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	switch value {
	case "true", "True", "TRUE", "1", "yes", "Yes", "YES":
		return true
	default:
		return false
	}
}
