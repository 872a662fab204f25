// Package normalizer converts raw transport events into the canonical
// records posted to webhooks.
package normalizer

import (
	"bytes"
	"encoding/json"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/sipeed/wabridge/pkg/bus"
	"github.com/sipeed/wabridge/pkg/jid"
	"github.com/sipeed/wabridge/pkg/webhook"
)

// ContentType classifies the body of a normalized message.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentImage    ContentType = "image"
	ContentVideo    ContentType = "video"
	ContentDocument ContentType = "document"
	ContentAudio    ContentType = "audio"
	ContentUnknown  ContentType = "unknown"
)

const (
	defaultDocumentName = "Document"
	audioPlaceholder    = "Audio message"
)

// NormalizedEvent is the canonical form of an inbound message.
type NormalizedEvent struct {
	ID          string           `json:"id"`
	Category    webhook.Category `json:"category"`
	From        string           `json:"from"`
	Sender      string           `json:"sender"`
	Content     string           `json:"content"`
	ContentType ContentType      `json:"contentType"`
	Timestamp   time.Time        `json:"timestamp"`
	IsGroup     bool             `json:"isGroup"`
	PushName    string           `json:"pushName,omitempty"`
	Raw         json.RawMessage  `json:"raw,omitempty"`
}

// Normalize converts a raw message. It never fails: shapes it does not
// recognise yield ContentUnknown with empty content.
func Normalize(raw bus.RawMessage) NormalizedEvent {
	content, contentType := extractContent(raw.Message)

	sender := raw.Participant
	if sender == "" {
		sender = raw.Chat
	}

	return NormalizedEvent{
		ID:          raw.ID,
		Category:    webhook.CategoryMessage,
		From:        raw.Chat,
		Sender:      sender,
		Content:     content,
		ContentType: contentType,
		Timestamp:   raw.Timestamp,
		IsGroup:     jid.IsGroup(raw.Chat),
		PushName:    raw.PushName,
		Raw:         renderRaw(raw),
	}
}

// extractContent applies the fixed precedence: conversation, extended text,
// image caption, video caption, document, audio. Media without a caption
// falls through.
func extractContent(msg *waE2E.Message) (string, ContentType) {
	if msg == nil {
		return "", ContentUnknown
	}
	if t := msg.GetConversation(); t != "" {
		return t, ContentText
	}
	if t := msg.GetExtendedTextMessage().GetText(); t != "" {
		return t, ContentText
	}
	if c := msg.GetImageMessage().GetCaption(); c != "" {
		return c, ContentImage
	}
	if c := msg.GetVideoMessage().GetCaption(); c != "" {
		return c, ContentVideo
	}
	if doc := msg.GetDocumentMessage(); doc != nil {
		if name := doc.GetFileName(); name != "" {
			return name, ContentDocument
		}
		return defaultDocumentName, ContentDocument
	}
	if msg.GetAudioMessage() != nil {
		return audioPlaceholder, ContentAudio
	}
	return "", ContentUnknown
}

type rawKey struct {
	RemoteJID   string `json:"remoteJid"`
	FromMe      bool   `json:"fromMe"`
	ID          string `json:"id"`
	Participant string `json:"participant,omitempty"`
}

type rawEnvelope struct {
	Key              rawKey          `json:"key"`
	Message          json.RawMessage `json:"message,omitempty"`
	MessageTimestamp int64           `json:"messageTimestamp"`
	PushName         string          `json:"pushName,omitempty"`
}

// renderRaw keeps the full message for consumers that need fields the
// normalized form drops.
func renderRaw(raw bus.RawMessage) json.RawMessage {
	env := rawEnvelope{
		Key: rawKey{
			RemoteJID:   raw.Chat,
			FromMe:      raw.FromMe,
			ID:          raw.ID,
			Participant: raw.Participant,
		},
		MessageTimestamp: raw.Timestamp.Unix(),
		PushName:         raw.PushName,
	}
	if raw.Message != nil {
		if data, err := protojson.Marshal(raw.Message); err == nil {
			// protojson output whitespace is unstable; compact it.
			var buf bytes.Buffer
			if json.Compact(&buf, data) == nil {
				env.Message = buf.Bytes()
			}
		}
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil
	}
	return data
}

// Payload renders the incoming_message webhook body.
func (e NormalizedEvent) Payload() webhook.IncomingMessage {
	return webhook.IncomingMessage{
		Type:        webhook.TypeIncomingMessage,
		MessageID:   e.ID,
		From:        e.From,
		Sender:      e.Sender,
		Message:     e.Content,
		MessageType: string(e.ContentType),
		Timestamp:   e.Timestamp.Unix(),
		IsGroup:     e.IsGroup,
		PushName:    e.PushName,
		Raw:         e.Raw,
	}
}
