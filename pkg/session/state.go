package session

import (
	"errors"
	"time"
)

// State is the connection lifecycle state of the session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateQRReady      State = "qr_ready"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateLoggedOut    State = "logged_out"
	StateRestarting   State = "restarting"
)

var ErrNotConnected = errors.New("WhatsApp not connected")

// QRArtifact is the current pairing token and its rendering. It only exists
// while the session is in StateQRReady.
type QRArtifact struct {
	Token     string    `json:"token"`
	PNG       []byte    `json:"-"`
	DataURL   string    `json:"dataUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

// StateSnapshot is the compact view returned by CurrentState.
type StateSnapshot struct {
	State     State `json:"state"`
	HasQR     bool  `json:"hasQR"`
	Connected bool  `json:"connected"`
}

// Status is the polling view of the session.
type Status struct {
	Connected bool      `json:"connected"`
	Status    State     `json:"status"`
	QRCode    *string   `json:"qrCode"`
	HasQR     bool      `json:"hasQR"`
	Timestamp time.Time `json:"timestamp"`
}
