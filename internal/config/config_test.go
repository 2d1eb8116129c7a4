package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, StorageMemory, cfg.StorageDriver)
	assert.Equal(t, 1000, cfg.AttendeeCacheSize)
	assert.Equal(t, 30*time.Minute, cfg.AttendeeCacheTTL)
	assert.Equal(t, 10*time.Second, cfg.CollaboratorTimeout)
	assert.False(t, cfg.NATSNeeded())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE_DRIVER", "nats")
	t.Setenv("COLLABORATOR_TIMEOUT", "3s")
	t.Setenv("CONTEXT_MAX_TOKENS", "500")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 3*time.Second, cfg.CollaboratorTimeout)
	assert.Equal(t, 500, cfg.ContextMaxTokens)
	assert.True(t, cfg.NATSNeeded())
}

func TestLoad_RejectsUnknownStorageDriver(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_Lists(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "https://app.example.com,https://admin.example.com")
	t.Setenv("DIRECTORY_DOMAINS", "example.com,corp.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, []string{"example.com", "corp.example.com"}, cfg.DirectoryDomains)
	assert.Equal(t, 5*time.Second, cfg.PersistTimeout)
}
