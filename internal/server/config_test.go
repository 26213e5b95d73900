package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := NewConfig()

	require.Equal(t, ":3500", cfg.Port)
	require.Equal(t, int64(512), cfg.MaxMessageSize)
	require.Equal(t, 256, cfg.SendBufferSize)
	require.NotEmpty(t, cfg.AllowedOrigins)
}

func TestSetConfigSanitizes(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })

	SetConfig(&Config{
		Port:           "9000",
		AllowedOrigins: []string{" http://Example.COM:8080 ", "", "not a url"},
		MaxMessageSize: -1,
		SendBufferSize: 0,
	})

	cfg := currentConfig()
	require.Equal(t, ":9000", cfg.Port, "bare port numbers get a colon prefix")
	require.Equal(t, int64(512), cfg.MaxMessageSize, "non-positive sizes fall back to defaults")
	require.Equal(t, 256, cfg.SendBufferSize)
	require.Equal(t, []string{"http://example.com:8080"}, cfg.AllowedOrigins)
}

func TestSetConfigNilResetsDefaults(t *testing.T) {
	SetConfig(&Config{Port: ":1234"})
	SetConfig(nil)

	require.Equal(t, ":3500", currentConfig().Port)
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", ":4000")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("SEND_BUFFER_SIZE", "64")

	cfg := NewConfigFromEnv()
	require.Equal(t, ":4000", cfg.Port)
	require.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	require.Equal(t, int64(1024), cfg.MaxMessageSize)
	require.Equal(t, 64, cfg.SendBufferSize)
}

func TestNewConfigFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "not-a-number")
	t.Setenv("SEND_BUFFER_SIZE", "-5")

	cfg := NewConfigFromEnv()
	require.Equal(t, int64(512), cfg.MaxMessageSize)
	require.Equal(t, 256, cfg.SendBufferSize)
}
