package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestWebhookSecretDisabled(t *testing.T) {
	cfg := DefaultConfig()
	secret, err := cfg.WebhookSecret()
	require.NoError(t, err)
	assert.Nil(t, secret)
}

func TestWebhookSecretFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Webhooks.SignPayloads = true
	cfg.Webhooks.Secret = " configured "

	secret, err := cfg.WebhookSecret()
	require.NoError(t, err)
	assert.Equal(t, []byte("configured"), secret)
}

func TestWebhookSecretGeneratedOnceInKeyring(t *testing.T) {
	keyring.MockInit()

	cfg := DefaultConfig()
	cfg.Webhooks.SignPayloads = true

	first, err := cfg.WebhookSecret()
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(string(first))
	require.NoError(t, err)
	assert.Len(t, raw, secretLength)

	second, err := cfg.WebhookSecret()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFallbackSecretFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ".webhook-secret")
	orig := fallbackSecretPath
	fallbackSecretPath = func() string { return path }
	t.Cleanup(func() { fallbackSecretPath = orig })

	encoded := base64.StdEncoding.EncodeToString(make([]byte, secretLength))
	require.NoError(t, saveSecretToFallbackFile(encoded))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := loadSecretFromFallbackFile()
	require.NoError(t, err)
	assert.Equal(t, encoded, loaded)

	require.NoError(t, os.WriteFile(path, []byte("c2hvcnQ="), 0600))
	_, err = loadSecretFromFallbackFile()
	assert.Error(t, err)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "*****abc", MaskSecret("abc"))
	assert.Equal(t, "*****67890", MaskSecret("1234567890"))
}
