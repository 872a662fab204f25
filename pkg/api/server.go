// Package api exposes the session over HTTP: status polling, QR retrieval,
// outbound sends, webhook management and a websocket event stream.
package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sipeed/wabridge/pkg/bus"
	"github.com/sipeed/wabridge/pkg/config"
	"github.com/sipeed/wabridge/pkg/history"
	"github.com/sipeed/wabridge/pkg/logger"
	"github.com/sipeed/wabridge/pkg/outbound"
	"github.com/sipeed/wabridge/pkg/session"
	"github.com/sipeed/wabridge/pkg/webhook"
)

// Session is the part of the session manager the HTTP surface drives.
type Session interface {
	Snapshot() session.Status
	QR() (session.QRArtifact, bool)
	Restart(ctx context.Context) error
	Send(ctx context.Context, to string, msg outbound.Message) (outbound.Receipt, error)
	Messages(chatID string, limit int) ([]history.Entry, error)
}

// Deliveries is the part of the webhook dispatcher the HTTP surface drives.
type Deliveries interface {
	Test(ctx context.Context, category webhook.Category) error
	DeadLetters() []webhook.DeadLetter
	Replay() int
}

type Server struct {
	config     config.ServerConfig
	session    Session
	registry   *webhook.Registry
	deliveries Deliveries
	msgBus     *bus.MessageBus
	hub        *Hub
	httpServer *http.Server
	startTime  time.Time
}

func NewServer(cfg config.ServerConfig, sess Session, registry *webhook.Registry, deliveries Deliveries, msgBus *bus.MessageBus) *Server {
	return &Server{
		config:     cfg,
		session:    sess,
		registry:   registry,
		deliveries: deliveries,
		msgBus:     msgBus,
		hub:        NewHub(msgBus),
		startTime:  time.Now(),
	}
}

// Handler builds the routed handler with auth and CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /status", s.authMiddleware(s.handleStatus))
	mux.HandleFunc("GET /qr", s.authMiddleware(s.handleQR))
	mux.HandleFunc("GET /qr-json", s.authMiddleware(s.handleQRJSON))
	mux.HandleFunc("POST /restart", s.authMiddleware(s.handleRestart))

	mux.HandleFunc("POST /send-message", s.authMiddleware(s.handleSendMessage))
	mux.HandleFunc("POST /send-media", s.authMiddleware(s.handleSendMedia))
	mux.HandleFunc("GET /messages/{chatId}", s.authMiddleware(s.handleMessages))

	mux.HandleFunc("POST /set-webhook", s.authMiddleware(s.handleSetWebhook))
	mux.HandleFunc("GET /webhooks", s.authMiddleware(s.handleWebhooks))
	mux.HandleFunc("POST /test-webhook", s.authMiddleware(s.handleTestWebhook))
	mux.HandleFunc("POST /webhook", s.authMiddleware(s.handleWebhookSink))
	mux.HandleFunc("GET /webhooks/dead-letters", s.authMiddleware(s.handleDeadLetters))
	mux.HandleFunc("POST /webhooks/dead-letters/replay", s.authMiddleware(s.handleReplay))

	// WebSocket (auth via query param)
	mux.HandleFunc("GET /events", s.authMiddleware(s.hub.ServeWS))

	return s.corsMiddleware(mux)
}

// Start runs the event hub and begins serving on the configured address.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	go func() {
		logger.InfoCF("api", "HTTP server started", map[string]interface{}{
			"address": addr,
			"auth":    s.config.Token != "",
		})
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("api", "HTTP server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return nil
}

func (s *Server) Stop() {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
		logger.InfoC("api", "HTTP server stopped")
	}
}

// authMiddleware enforces the bearer token when one is configured.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.config.Token != "" {
			token := extractToken(r)
			if subtle.ConstantTimeCompare([]byte(token), []byte(s.config.Token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next(w, r)
	}
}

// extractToken gets the bearer token from Authorization header.
func extractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	// Fallback: query parameter (for WebSocket)
	return r.URL.Query().Get("token")
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// originAllowed accepts every origin unless an allow list is configured.
func (s *Server) originAllowed(origin string) bool {
	if len(s.config.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
