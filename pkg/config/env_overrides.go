package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies selected runtime environment variables into config.
// It returns true when any value changed.
func applyEnvOverrides(cfg *Config) bool {
	if cfg == nil {
		return false
	}

	changed := false

	setString := func(dst *string, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		if *dst != value {
			*dst = value
			changed = true
		}
	}
	setInt := func(dst *int, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return
		}
		if *dst != parsed {
			*dst = parsed
			changed = true
		}
	}
	setBool := func(dst *bool, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return
		}
		if *dst != parsed {
			*dst = parsed
			changed = true
		}
	}
	setDuration := func(dst *Duration, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return
		}
		if dst.Duration != parsed {
			dst.Duration = parsed
			changed = true
		}
	}

	env := func(keys ...string) string {
		for _, key := range keys {
			if value := strings.TrimSpace(os.Getenv(key)); value != "" {
				return value
			}
		}
		return ""
	}

	setString(&cfg.Server.Host, env("WABRIDGE_HOST"))
	setInt(&cfg.Server.Port, env("WABRIDGE_PORT", "PORT"))
	setString(&cfg.Server.Token, env("WABRIDGE_TOKEN"))

	setString(&cfg.WhatsApp.StoreDialect, env("WABRIDGE_STORE_DIALECT"))
	setString(&cfg.WhatsApp.StoreDSN, env("WABRIDGE_STORE_DSN", "WABRIDGE_DATABASE_URL"))
	setBool(&cfg.WhatsApp.SSLEnabled, env("WABRIDGE_STORE_SSL_ENABLED"))
	setBool(&cfg.WhatsApp.PrintQR, env("WABRIDGE_PRINT_QR"))

	// If the store is postgres but no URL was given, build one from the
	// individual POSTGRES_* variables a compose file usually provides.
	if strings.EqualFold(cfg.WhatsApp.StoreDialect, "postgres") && !strings.HasPrefix(cfg.WhatsApp.StoreDSN, "postgres") {
		pgUser := strings.TrimSpace(os.Getenv("POSTGRES_USER"))
		pgPass := strings.TrimSpace(os.Getenv("POSTGRES_PASSWORD"))
		pgDB := strings.TrimSpace(os.Getenv("POSTGRES_DB"))
		pgHost := strings.TrimSpace(os.Getenv("POSTGRES_HOST"))
		if pgHost == "" {
			pgHost = "postgres"
		}
		if pgUser != "" && pgPass != "" && pgDB != "" {
			built := fmt.Sprintf("postgres://%s:%s@%s:5432/%s", pgUser, pgPass, pgHost, pgDB)
			setString(&cfg.WhatsApp.StoreDSN, built)
		}
	}

	setDuration(&cfg.Session.ReconnectDelay, env("WABRIDGE_RECONNECT_DELAY"))
	setDuration(&cfg.Session.SendTimeout, env("WABRIDGE_SEND_TIMEOUT"))

	setString(&cfg.Webhooks.MessageURL, env("WABRIDGE_WEBHOOK_MESSAGE_URL"))
	setString(&cfg.Webhooks.StatusURL, env("WABRIDGE_WEBHOOK_STATUS_URL"))
	setString(&cfg.Webhooks.GroupURL, env("WABRIDGE_WEBHOOK_GROUP_URL"))
	setInt(&cfg.Webhooks.MaxAttempts, env("WABRIDGE_WEBHOOK_MAX_ATTEMPTS"))
	setString(&cfg.Webhooks.ReplayCron, env("WABRIDGE_WEBHOOK_REPLAY_CRON"))
	setBool(&cfg.Webhooks.SignPayloads, env("WABRIDGE_WEBHOOK_SIGN"))
	setString(&cfg.Webhooks.Secret, env("WABRIDGE_WEBHOOK_SECRET"))

	setString(&cfg.Log.Level, env("WABRIDGE_LOG_LEVEL"))
	setString(&cfg.Log.Format, env("WABRIDGE_LOG_FORMAT"))

	return changed
}
