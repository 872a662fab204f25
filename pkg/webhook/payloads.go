package webhook

import (
	"encoding/json"
	"fmt"
	"time"
)

// Category partitions events across destination URLs.
type Category string

const (
	CategoryMessage Category = "message"
	CategoryStatus  Category = "status"
	CategoryGroup   Category = "group"
)

// Categories lists every routable category in a stable order.
var Categories = []Category{CategoryMessage, CategoryStatus, CategoryGroup}

// ParseCategory validates a category name. An empty name means message.
func ParseCategory(s string) (Category, error) {
	if s == "" {
		return CategoryMessage, nil
	}
	for _, c := range Categories {
		if Category(s) == c {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// IncomingMessage is posted to the message webhook for every inbound message.
type IncomingMessage struct {
	Type        string          `json:"type"`
	MessageID   string          `json:"messageId"`
	From        string          `json:"from"`
	Sender      string          `json:"sender"`
	Message     string          `json:"message"`
	MessageType string          `json:"messageType"`
	Timestamp   int64           `json:"timestamp"`
	IsGroup     bool            `json:"isGroup"`
	PushName    string          `json:"pushName,omitempty"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// LastDisconnect mirrors the close reason of a connection update.
type LastDisconnect struct {
	Error      string `json:"error"`
	StatusCode int    `json:"statusCode"`
	LoggedOut  bool   `json:"loggedOut"`
	Date       int64  `json:"date"`
}

// ConnectionUpdate is posted to the status webhook on lifecycle changes.
type ConnectionUpdate struct {
	Type           string          `json:"type"`
	Connection     *string         `json:"connection"`
	LastDisconnect *LastDisconnect `json:"lastDisconnect"`
	QR             bool            `json:"qr"`
	Timestamp      int64           `json:"timestamp"`
}

// GroupCreated is posted to the group webhook when the session joins groups.
type GroupCreated struct {
	Type      string      `json:"type"`
	Groups    interface{} `json:"groups"`
	Timestamp int64       `json:"timestamp"`
}

// TestMessage is the synthetic payload sent by Dispatcher.Test.
type TestMessage struct {
	Test      bool   `json:"test"`
	Type      string `json:"type"`
	From      string `json:"from"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	MessageID string `json:"messageId"`
}

const (
	TypeIncomingMessage  = "incoming_message"
	TypeConnectionUpdate = "connection_update"
	TypeGroupCreated     = "group_created"
	TypeTestMessage      = "test_message"
)

// NewTestMessage builds the synthetic payload used to verify a destination.
func NewTestMessage(now time.Time) TestMessage {
	ms := now.UnixMilli()
	return TestMessage{
		Test:      true,
		Type:      TypeTestMessage,
		From:      "test@s.whatsapp.net",
		Message:   "Test message from wabridge",
		Timestamp: ms,
		MessageID: fmt.Sprintf("test_%d", ms),
	}
}
