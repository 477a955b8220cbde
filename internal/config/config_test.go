package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func resetViper() {
	viper.Reset()
	os.Clearenv()
}

func TestLoadDefaultValues(t *testing.T) {
	resetViper()

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "automationd", cfg.ServerName)
	require.Equal(t, "UTC", cfg.TimeZone)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 30*time.Second, cfg.AsyncReplyTimeout)
	require.Equal(t, 256, cfg.NotificationBufferSize)
	require.True(t, cfg.TCPLine.AuthRequired)
	require.False(t, cfg.PushButtonHardwareEnabled)
	require.Equal(t, "/ws", cfg.WebSocketPath)
}

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	resetViper()
	os.Setenv("SERVER_NAME", "test-server")
	os.Setenv("TCP_LISTEN_ADDR", ":9000")
	os.Setenv("DATABASE_URL", "postgres://example/db")
	os.Setenv("PUSH_BUTTON_HARDWARE_ENABLED", "true")
	os.Setenv("ASYNC_REPLY_TIMEOUT_SECONDS", "5")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "test-server", cfg.ServerName)
	require.Equal(t, ":9000", cfg.TCPLine.Address)
	require.Equal(t, "postgres://example/db", cfg.PostgresDSN)
	require.True(t, cfg.PushButtonHardwareEnabled)
	require.Equal(t, 5*time.Second, cfg.AsyncReplyTimeout)
}
