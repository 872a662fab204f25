package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var overrideKeys = []string{
	"PORT", "WABRIDGE_HOST", "WABRIDGE_PORT", "WABRIDGE_TOKEN",
	"WABRIDGE_STORE_DIALECT", "WABRIDGE_STORE_DSN", "WABRIDGE_DATABASE_URL", "WABRIDGE_STORE_SSL_ENABLED",
	"WABRIDGE_PRINT_QR", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB", "POSTGRES_HOST",
	"WABRIDGE_RECONNECT_DELAY", "WABRIDGE_SEND_TIMEOUT",
	"WABRIDGE_WEBHOOK_MESSAGE_URL", "WABRIDGE_WEBHOOK_STATUS_URL", "WABRIDGE_WEBHOOK_GROUP_URL",
	"WABRIDGE_WEBHOOK_MAX_ATTEMPTS", "WABRIDGE_WEBHOOK_REPLAY_CRON", "WABRIDGE_WEBHOOK_SIGN",
	"WABRIDGE_WEBHOOK_SECRET", "WABRIDGE_LOG_LEVEL", "WABRIDGE_LOG_FORMAT",
}

// clearEnv blanks every override so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range overrideKeys {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.WhatsApp.StoreDialect)
	assert.Equal(t, 5*time.Second, cfg.Session.ReconnectDelay.Duration)
	assert.Equal(t, 2*time.Second, cfg.Session.RestartDelay.Duration)
	assert.Equal(t, 10*time.Second, cfg.Webhooks.MessageTimeout.Duration)
	assert.Equal(t, 3, cfg.Webhooks.MaxAttempts)
}

func TestLoadConfigYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", `
server:
  port: 8080
  token: s3cret
whatsapp:
  store_dialect: postgres
  store_dsn: postgres://wa@db/wa
session:
  reconnect_delay: 10s
webhooks:
  message_url: https://hooks.example.com/in
  max_attempts: 1
  replay_cron: "*/5 * * * *"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Server.Token)
	assert.Equal(t, "postgres", cfg.WhatsApp.StoreDialect)
	assert.Equal(t, 10*time.Second, cfg.Session.ReconnectDelay.Duration)
	assert.Equal(t, 2*time.Second, cfg.Session.RestartDelay.Duration)
	assert.Equal(t, "https://hooks.example.com/in", cfg.Webhooks.MessageURL)
	assert.Equal(t, 1, cfg.Webhooks.MaxAttempts)
	assert.Equal(t, "*/5 * * * *", cfg.Webhooks.ReplayCron)
}

func TestLoadConfigJSON(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.json", `{
		"server": {"port": 4000},
		"webhooks": {"default_timeout": "45s", "retry_max": 12}
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Webhooks.DefaultTimeout.Duration)
	assert.Equal(t, 12*time.Second, cfg.Webhooks.RetryMax.Duration)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		content string
	}{
		{"bad dialect", `{"whatsapp": {"store_dialect": "mysql"}}`},
		{"bad port", `{"server": {"port": 70000}}`},
		{"bad duration", `{"session": {"send_timeout": "soon"}}`},
		{"zero attempts", `{"webhooks": {"max_attempts": 0}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeFile(t, "config.json", tt.content))
			assert.Error(t, err)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "5050")
	t.Setenv("WABRIDGE_TOKEN", "from-env")
	t.Setenv("WABRIDGE_WEBHOOK_STATUS_URL", "https://hooks.example.com/status")
	t.Setenv("WABRIDGE_PRINT_QR", "false")
	t.Setenv("WABRIDGE_RECONNECT_DELAY", "1s")

	cfg := DefaultConfig()
	assert.True(t, applyEnvOverrides(cfg))

	assert.Equal(t, 5050, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Server.Token)
	assert.Equal(t, "https://hooks.example.com/status", cfg.Webhooks.StatusURL)
	assert.False(t, cfg.WhatsApp.PrintQR)
	assert.Equal(t, time.Second, cfg.Session.ReconnectDelay.Duration)
}

func TestEnvOverridesPrefersWabridgePort(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "5050")
	t.Setenv("WABRIDGE_PORT", "6060")

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)
	assert.Equal(t, 6060, cfg.Server.Port)
}

func TestEnvOverridesBuildsPostgresURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("WABRIDGE_STORE_DIALECT", "postgres")
	t.Setenv("POSTGRES_USER", "wa")
	t.Setenv("POSTGRES_PASSWORD", "pw")
	t.Setenv("POSTGRES_DB", "wabridge")

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)
	assert.Equal(t, "postgres://wa:pw@postgres:5432/wabridge", cfg.WhatsApp.StoreDSN)
}

func TestEnvOverridesIgnoresInvalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "not-a-port")

	cfg := DefaultConfig()
	assert.False(t, applyEnvOverrides(cfg))
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	clearEnv(t)
	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			cfg := DefaultConfig()
			cfg.Server.Port = 9000
			cfg.Session.SendTimeout = Duration{90 * time.Second}

			require.NoError(t, SaveConfig(path, cfg))

			loaded, err := LoadConfig(path)
			require.NoError(t, err)
			assert.Equal(t, 9000, loaded.Server.Port)
			assert.Equal(t, 90*time.Second, loaded.Session.SendTimeout.Duration)
		})
	}
}

func TestDurationJSON(t *testing.T) {
	clearEnv(t)
	data, err := json.Marshal(Duration{1500 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, `"1.5s"`, string(data))
}
