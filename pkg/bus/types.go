package bus

import (
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
)

// EventKind identifies what a transport handle observed.
type EventKind string

const (
	EventConnecting EventKind = "connecting"
	EventQR         EventKind = "qr"
	EventOpen       EventKind = "open"
	EventClose      EventKind = "close"
	EventMessage    EventKind = "message"
	EventGroups     EventKind = "groups"
)

// TransportEvent is published by a transport handle. Generation identifies
// the handle that produced it; consumers drop events from superseded handles.
type TransportEvent struct {
	Kind       EventKind    `json:"kind"`
	Generation uint64       `json:"generation"`
	QR         string       `json:"qr,omitempty"`
	Close      *CloseReason `json:"close,omitempty"`
	Message    *RawMessage  `json:"message,omitempty"`
	Groups     []GroupInfo  `json:"groups,omitempty"`
	Time       time.Time    `json:"time"`
}

// CloseReason describes why a connection closed. LoggedOut closures are
// terminal: the paired device was revoked.
type CloseReason struct {
	Code      int    `json:"code"`
	Reason    string `json:"reason"`
	LoggedOut bool   `json:"loggedOut"`
}

// RawMessage is an inbound message as delivered by the transport, before
// normalization.
type RawMessage struct {
	ID          string         `json:"id"`
	Chat        string         `json:"chat"`
	Participant string         `json:"participant,omitempty"`
	FromMe      bool           `json:"fromMe"`
	PushName    string         `json:"pushName,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Message     *waE2E.Message `json:"-"`
}

// GroupInfo describes a group the session was added to or created.
type GroupInfo struct {
	JID          string    `json:"id"`
	Name         string    `json:"subject"`
	Owner        string    `json:"owner,omitempty"`
	Participants []string  `json:"participants,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	CreatedAt    time.Time `json:"creation,omitempty"`
}

// BusEvent is an observed event for live streaming to clients.
type BusEvent struct {
	Type     string      `json:"type"` // "state" or "webhook"
	Category string      `json:"category,omitempty"`
	Payload  interface{} `json:"payload,omitempty"`
	Time     time.Time   `json:"time"`
}
