package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv("INGEST_AUTH_DOMAIN", "auth.example.com")
	t.Setenv("INGEST_AUTH_AUDIENCE", "https://api.example.com")
}

func TestLoadDefaults(t *testing.T) {
	validEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "5000", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "celery", cfg.Broker.Queue)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
}

func TestIssuerFromDomain(t *testing.T) {
	cfg := AuthConfig{Domain: "auth.example.com"}
	assert.Equal(t, "https://auth.example.com/", cfg.Issuer())
}

func TestUploadDestination(t *testing.T) {
	cfg := UploadConfig{BaseURL: "gs://bucket", FolderPath: "/staging"}
	assert.Equal(t, "gs://bucket/staging", cfg.Destination())
}

func TestValidateRequiresAuth(t *testing.T) {
	t.Setenv("INGEST_AUTH_DOMAIN", "")
	t.Setenv("INGEST_AUTH_AUDIENCE", "")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidateMongoBackendNeedsURL(t *testing.T) {
	validEnv(t)
	t.Setenv("INGEST_STORAGE_BACKEND", "mongo")
	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mongo URL")
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	validEnv(t)
	t.Setenv("INGEST_STORAGE_BACKEND", "dynamo")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	validEnv(t)
	t.Setenv("INGEST_PORT", "8080")
	t.Setenv("INGEST_READ_TIMEOUT", "5s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
}
