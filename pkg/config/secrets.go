package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService   = "wabridge"
	keyringSecretKey = "webhook-signing-secret"
	secretLength     = 32
)

// fallbackSecretPath is where the signing secret lives when no system
// keyring is available.
var fallbackSecretPath = func() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wabridge", ".webhook-secret")
}

// WebhookSecret returns the HMAC key for signing webhook bodies, or nil when
// signing is disabled. A configured secret wins; otherwise the key is read
// from the system keyring or the fallback file, and generated on first use.
func (c *Config) WebhookSecret() ([]byte, error) {
	if !c.Webhooks.SignPayloads {
		return nil, nil
	}
	if s := strings.TrimSpace(c.Webhooks.Secret); s != "" {
		return []byte(s), nil
	}
	encoded, err := getSigningSecret()
	if err != nil {
		return nil, err
	}
	return []byte(encoded), nil
}

func getSigningSecret() (string, error) {
	encoded, err := keyring.Get(keyringService, keyringSecretKey)
	if err == nil {
		if err := checkSecret(encoded); err != nil {
			return "", err
		}
		return encoded, nil
	}

	// First fallback: read the secret from a local file (headless/container-safe).
	if encoded, fileErr := loadSecretFromFallbackFile(); fileErr == nil {
		return encoded, nil
	}

	key := make([]byte, secretLength)
	if _, readErr := rand.Read(key); readErr != nil {
		return "", readErr
	}
	encoded = base64.StdEncoding.EncodeToString(key)

	// Best-effort write to system keyring; if it fails, persist to fallback file.
	if setErr := keyring.Set(keyringService, keyringSecretKey, encoded); setErr != nil {
		return encoded, saveSecretToFallbackFile(encoded)
	}
	return encoded, nil
}

func checkSecret(encoded string) error {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return err
	}
	if len(key) != secretLength {
		return fmt.Errorf("invalid webhook secret length")
	}
	return nil
}

func loadSecretFromFallbackFile() (string, error) {
	data, err := os.ReadFile(fallbackSecretPath())
	if err != nil {
		return "", err
	}
	encoded := strings.TrimSpace(string(data))
	if err := checkSecret(encoded); err != nil {
		return "", err
	}
	return encoded, nil
}

func saveSecretToFallbackFile(encoded string) error {
	path := fallbackSecretPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(encoded), 0600)
}

func MaskSecret(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 5 {
		return "*****" + value
	}
	return "*****" + value[len(value)-5:]
}
