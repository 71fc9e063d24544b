// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	Auth    AuthConfig
	Storage StorageConfig
	Broker  BrokerConfig
	Upload  UploadConfig

	LogLevel string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// AuthConfig holds identity-provider settings. Audience is the service
// (machine-to-machine) audience; PortalAudience is the interactive portal's.
type AuthConfig struct {
	Domain         string
	Audience       string
	PortalAudience string
}

// Issuer is the OIDC issuer URL derived from the authority domain.
func (c AuthConfig) Issuer() string {
	return "https://" + c.Domain + "/"
}

// StorageConfig selects and configures the document-store backend.
type StorageConfig struct {
	// Backend is "memory" or "mongo".
	Backend  string
	MongoURL string
	Database string
}

// BrokerConfig holds task-broker settings.
type BrokerConfig struct {
	RedisURL string
	Queue    string
}

// UploadConfig is the upload destination echoed to clients on every
// response.
type UploadConfig struct {
	BaseURL    string
	FolderPath string
}

// Destination is the full path uploads land under.
func (c UploadConfig) Destination() string {
	return c.BaseURL + c.FolderPath
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("INGEST_HOST", "0.0.0.0"),
			Port:            getEnv("INGEST_PORT", "5000"),
			ReadTimeout:     getEnvDuration("INGEST_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("INGEST_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("INGEST_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("INGEST_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Auth: AuthConfig{
			Domain:         getEnv("INGEST_AUTH_DOMAIN", ""),
			Audience:       getEnv("INGEST_AUTH_AUDIENCE", ""),
			PortalAudience: getEnv("INGEST_AUTH_PORTAL_AUDIENCE", ""),
		},
		Storage: StorageConfig{
			Backend:  getEnv("INGEST_STORAGE_BACKEND", "memory"),
			MongoURL: getEnv("INGEST_MONGO_URL", ""),
			Database: getEnv("INGEST_MONGO_DATABASE", "registry"),
		},
		Broker: BrokerConfig{
			RedisURL: getEnv("INGEST_REDIS_URL", "redis://localhost:6379/0"),
			Queue:    getEnv("INGEST_BROKER_QUEUE", "celery"),
		},
		Upload: UploadConfig{
			BaseURL:    getEnv("INGEST_UPLOAD_BASE_URL", ""),
			FolderPath: getEnv("INGEST_UPLOAD_FOLDER", ""),
		},
		LogLevel: getEnv("INGEST_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Auth.Domain == "" {
		return fmt.Errorf("auth domain is required")
	}
	if c.Auth.Audience == "" {
		return fmt.Errorf("service audience is required")
	}

	switch c.Storage.Backend {
	case "memory":
	case "mongo":
		if c.Storage.MongoURL == "" {
			return fmt.Errorf("mongo URL is required for mongo storage")
		}
		if c.Storage.Database == "" {
			return fmt.Errorf("mongo database is required for mongo storage")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be memory or mongo)", c.Storage.Backend)
	}

	if c.Broker.RedisURL == "" {
		return fmt.Errorf("broker redis URL is required")
	}
	if c.Broker.Queue == "" {
		return fmt.Errorf("broker queue is required")
	}
	return nil
}

// getEnv returns an environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
