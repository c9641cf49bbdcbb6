package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Equal(t, "Asia/Seoul", cfg.DisplayTimezone)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9090")
	t.Setenv("HISTORY_LIMIT", "10")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com,https://chat.example.org")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, 10, cfg.HistoryLimit)
	assert.Equal(t, []string{"https://chat.example.com", "https://chat.example.org"}, cfg.AllowedOrigins)
}

func TestSanitizeConfigRepairsInvalidValues(t *testing.T) {
	cfg := sanitizeConfig(&Config{Port: "", MaxMessageSize: -1, HistoryLimit: 0})

	assert.Equal(t, ":8080", cfg.Port)
	assert.Positive(t, cfg.MaxMessageSize)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Positive(t, cfg.SendBufferSize)
}
