package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/wabridge/pkg/config"
	"github.com/sipeed/wabridge/pkg/webhook"
)

type recorded struct {
	method string
	path   string
	auth   string
	body   map[string]string
}

func consoleServer(t *testing.T, status int, reply map[string]interface{}) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.RequestURI(), auth: r.Header.Get("Authorization")}
		json.NewDecoder(r.Body).Decode(&rec.body)
		calls = append(calls, rec)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestConsoleSend(t *testing.T) {
	srv, calls := consoleServer(t, http.StatusOK, map[string]interface{}{"success": true, "messageId": "3EB0"})
	c := newConsoleClient(srv.URL, "s3cret")

	out, err := c.execute("send 628123 hello there")
	require.NoError(t, err)
	assert.Contains(t, out, `"messageId": "3EB0"`)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, "/send-message", call.path)
	assert.Equal(t, "Bearer s3cret", call.auth)
	assert.Equal(t, "628123", call.body["to"])
	assert.Equal(t, "hello there", call.body["message"])
}

func TestConsoleRoutes(t *testing.T) {
	tests := []struct {
		line   string
		method string
		path   string
	}{
		{"status", http.MethodGet, "/status"},
		{"messages 628123 5", http.MethodGet, "/messages/628123?limit=5"},
		{"webhook status https://hooks.example.com/s", http.MethodPost, "/set-webhook"},
		{"webhooks", http.MethodGet, "/webhooks"},
		{"test group", http.MethodPost, "/test-webhook"},
		{"media image 628123 https://cdn.example.com/a.png look", http.MethodPost, "/send-media"},
		{"dead", http.MethodGet, "/webhooks/dead-letters"},
		{"replay", http.MethodPost, "/webhooks/dead-letters/replay"},
		{"restart", http.MethodPost, "/restart"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			srv, calls := consoleServer(t, http.StatusOK, map[string]interface{}{"success": true})
			c := newConsoleClient(srv.URL, "")

			_, err := c.execute(tt.line)
			require.NoError(t, err)
			require.Len(t, *calls, 1)
			assert.Equal(t, tt.method, (*calls)[0].method)
			assert.Equal(t, tt.path, (*calls)[0].path)
		})
	}
}

func TestConsoleErrors(t *testing.T) {
	srv, _ := consoleServer(t, http.StatusBadRequest, map[string]interface{}{"error": "WhatsApp not connected"})
	c := newConsoleClient(srv.URL, "")

	_, err := c.execute("send 628123 hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WhatsApp not connected")

	_, err = c.execute("send 628123")
	assert.ErrorContains(t, err, "usage")

	_, err = c.execute("messages 628123 many")
	assert.ErrorContains(t, err, "limit")

	_, err = c.execute("frobnicate")
	assert.ErrorContains(t, err, "unknown command")

	_, err = c.execute("quit")
	assert.ErrorIs(t, err, errQuit)

	out, err := c.execute("   ")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSeedWebhooks(t *testing.T) {
	registry := webhook.NewRegistry()
	require.NoError(t, seedWebhooks(registry, configWithHooks("https://hooks.example.com/m", "")))

	url, ok := registry.Get(webhook.CategoryMessage)
	assert.True(t, ok)
	assert.Equal(t, "https://hooks.example.com/m", url)
	_, ok = registry.Get(webhook.CategoryStatus)
	assert.False(t, ok)

	err := seedWebhooks(webhook.NewRegistry(), configWithHooks("not a url", ""))
	assert.ErrorIs(t, err, webhook.ErrInvalidURL)
}

func configWithHooks(message, status string) config.WebhooksConfig {
	return config.WebhooksConfig{MessageURL: message, StatusURL: status}
}
