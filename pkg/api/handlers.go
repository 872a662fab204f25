package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sipeed/wabridge/pkg/logger"
	"github.com/sipeed/wabridge/pkg/outbound"
	"github.com/sipeed/wabridge/pkg/qrcode"
	"github.com/sipeed/wabridge/pkg/session"
	"github.com/sipeed/wabridge/pkg/webhook"
)

const defaultMessageLimit = 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) qrOr404(w http.ResponseWriter) (session.QRArtifact, bool) {
	qr, ok := s.session.QR()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error":  "QR code not available",
			"status": s.session.Snapshot().Status,
		})
	}
	return qr, ok
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	qr, ok := s.qrOr404(w)
	if !ok {
		return
	}

	if r.URL.Query().Get("format") == "svg" {
		svg, err := qrcode.SVG(qr.Token, 256)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		io.WriteString(w, svg)
		return
	}

	if len(qr.PNG) == 0 {
		writeError(w, http.StatusInternalServerError, "QR code image unavailable")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(qr.PNG)))
	w.WriteHeader(http.StatusOK)
	w.Write(qr.PNG)
}

func (s *Server) handleQRJSON(w http.ResponseWriter, r *http.Request) {
	qr, ok := s.qrOr404(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"qrCodeImage": qr.DataURL,
		"qrCodeText":  qr.Token,
		"status":      s.session.Snapshot().Status,
		"timestamp":   time.Now().UTC(),
	})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Restart(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Connection restart initiated",
	})
}

// ---------------------------------------------------------------------------
// Outbound
// ---------------------------------------------------------------------------

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if !s.requireConnected(w) {
		return
	}
	if strings.TrimSpace(body.To) == "" {
		writeError(w, http.StatusBadRequest, "to is required")
		return
	}

	msg, err := outbound.Text(body.Message)
	if err != nil {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	s.send(w, r, body.To, msg)
}

func (s *Server) handleSendMedia(w http.ResponseWriter, r *http.Request) {
	var body struct {
		To        string `json:"to"`
		MediaURL  string `json:"mediaUrl"`
		MediaType string `json:"mediaType"`
		Caption   string `json:"caption"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if !s.requireConnected(w) {
		return
	}
	if strings.TrimSpace(body.To) == "" {
		writeError(w, http.StatusBadRequest, "to is required")
		return
	}

	msg, err := outbound.Media(body.MediaType, body.MediaURL, body.Caption)
	switch {
	case errors.Is(err, outbound.ErrInvalidMediaType):
		writeError(w, http.StatusBadRequest, "Invalid media type")
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, "mediaUrl is required")
		return
	}
	s.send(w, r, body.To, msg)
}

func (s *Server) send(w http.ResponseWriter, r *http.Request, to string, msg outbound.Message) {
	receipt, err := s.session.Send(r.Context(), to, msg)
	if err != nil {
		if errors.Is(err, session.ErrNotConnected) {
			writeError(w, http.StatusBadRequest, session.ErrNotConnected.Error())
			return
		}
		logger.ErrorCF("api", "Send failed", map[string]interface{}{
			"kind":  string(msg.Kind),
			"error": err.Error(),
		})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"messageId": receipt.MessageID,
		"timestamp": receipt.Timestamp.Unix(),
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("chatId")

	limit := defaultMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	messages, err := s.session.Messages(chatID, limit)
	if err != nil {
		if errors.Is(err, session.ErrNotConnected) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"messages": messages,
	})
}

func (s *Server) requireConnected(w http.ResponseWriter) bool {
	if !s.session.Snapshot().Connected {
		writeError(w, http.StatusBadRequest, session.ErrNotConnected.Error())
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Webhooks
// ---------------------------------------------------------------------------

func (s *Server) handleSetWebhook(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL  string `json:"url"`
		Type string `json:"type"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	category, err := webhook.ParseCategory(body.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.registry.Set(category, body.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	logger.InfoCF("api", "Webhook updated", map[string]interface{}{
		"type": string(category),
		"set":  strings.TrimSpace(body.URL) != "",
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"webhookUrls": s.registry.Snapshot(),
	})
}

func (s *Server) handleWebhooks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"webhookUrls": s.registry.Snapshot(),
	})
}

func (s *Server) handleTestWebhook(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type string `json:"type"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	category, err := webhook.ParseCategory(body.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.deliveries.Test(r.Context(), category); err != nil {
		if errors.Is(err, webhook.ErrNoWebhook) {
			writeError(w, http.StatusBadRequest, "No webhook URL set for type: "+string(category))
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Test webhook sent",
	})
}

// handleWebhookSink accepts anything, so the bridge can be pointed at itself
// while wiring up a consumer.
func (s *Server) handleWebhookSink(w http.ResponseWriter, r *http.Request) {
	n, _ := io.Copy(io.Discard, r.Body)
	logger.DebugCF("api", "Webhook sink received payload", map[string]interface{}{
		"bytes": n,
		"event": r.Header.Get(webhook.HeaderEvent),
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{"received": true})
}

func (s *Server) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deadLetters": s.deliveries.DeadLetters(),
	})
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"replayed": s.deliveries.Replay(),
	})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// decodeBody parses a JSON body. An empty body decodes to the zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
