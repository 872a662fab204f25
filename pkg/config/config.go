package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	WhatsApp WhatsAppConfig `json:"whatsapp" yaml:"whatsapp"`
	Session  SessionConfig  `json:"session" yaml:"session"`
	Webhooks WebhooksConfig `json:"webhooks" yaml:"webhooks"`
	History  HistoryConfig  `json:"history" yaml:"history"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

type ServerConfig struct {
	Host           string   `json:"host" yaml:"host"`
	Port           int      `json:"port" yaml:"port"`
	Token          string   `json:"token" yaml:"token"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

type WhatsAppConfig struct {
	StoreDialect  string   `json:"store_dialect" yaml:"store_dialect"`
	StoreDSN      string   `json:"store_dsn" yaml:"store_dsn"`
	SSLEnabled    bool     `json:"ssl_enabled" yaml:"ssl_enabled"`
	PrintQR       bool     `json:"print_qr" yaml:"print_qr"`
	MediaTimeout  Duration `json:"media_timeout" yaml:"media_timeout"`
	MaxMediaBytes int      `json:"max_media_bytes" yaml:"max_media_bytes"`
}

type SessionConfig struct {
	ReconnectDelay Duration `json:"reconnect_delay" yaml:"reconnect_delay"`
	RestartDelay   Duration `json:"restart_delay" yaml:"restart_delay"`
	SendTimeout    Duration `json:"send_timeout" yaml:"send_timeout"`
}

type WebhooksConfig struct {
	MessageURL      string   `json:"message_url" yaml:"message_url"`
	StatusURL       string   `json:"status_url" yaml:"status_url"`
	GroupURL        string   `json:"group_url" yaml:"group_url"`
	MessageTimeout  Duration `json:"message_timeout" yaml:"message_timeout"`
	DefaultTimeout  Duration `json:"default_timeout" yaml:"default_timeout"`
	Workers         int      `json:"workers" yaml:"workers"`
	QueueSize       int      `json:"queue_size" yaml:"queue_size"`
	MaxAttempts     int      `json:"max_attempts" yaml:"max_attempts"`
	RetryInitial    Duration `json:"retry_initial" yaml:"retry_initial"`
	RetryMax        Duration `json:"retry_max" yaml:"retry_max"`
	DeadLetterLimit int      `json:"dead_letter_limit" yaml:"dead_letter_limit"`
	ReplayCron      string   `json:"replay_cron" yaml:"replay_cron"`
	SignPayloads    bool     `json:"sign_payloads" yaml:"sign_payloads"`
	Secret          string   `json:"secret" yaml:"secret"`
}

type HistoryConfig struct {
	PerChat int `json:"per_chat" yaml:"per_chat"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		WhatsApp: WhatsAppConfig{
			StoreDialect:  "sqlite",
			StoreDSN:      "~/.wabridge/whatsapp.db",
			PrintQR:       true,
			MediaTimeout:  Duration{60 * time.Second},
			MaxMediaBytes: 64 << 20,
		},
		Session: SessionConfig{
			ReconnectDelay: Duration{5 * time.Second},
			RestartDelay:   Duration{2 * time.Second},
			SendTimeout:    Duration{30 * time.Second},
		},
		Webhooks: WebhooksConfig{
			MessageTimeout:  Duration{10 * time.Second},
			DefaultTimeout:  Duration{30 * time.Second},
			Workers:         4,
			QueueSize:       256,
			MaxAttempts:     3,
			RetryInitial:    Duration{time.Second},
			RetryMax:        Duration{30 * time.Second},
			DeadLetterLimit: 100,
		},
		History: HistoryConfig{PerChat: 200},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wabridge", "config.yaml")
}

// LoadConfig reads path over the defaults and applies environment overrides.
// A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := decode(path, data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// SaveConfig writes cfg as JSON or YAML depending on the file extension.
func SaveConfig(path string, cfg *Config) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.WhatsApp.StoreDialect {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("whatsapp.store_dialect must be sqlite or postgres, got %q", c.WhatsApp.StoreDialect)
	}
	if c.Webhooks.MaxAttempts < 1 {
		return fmt.Errorf("webhooks.max_attempts must be at least 1")
	}
	return nil
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Duration is a time.Duration written as a Go duration string ("5s").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var secs float64
		if err := json.Unmarshal(b, &secs); err != nil {
			return fmt.Errorf("invalid duration %s", string(b))
		}
		d.Duration = time.Duration(secs * float64(time.Second))
		return nil
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.parse(value.Value)
}

func (d *Duration) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
