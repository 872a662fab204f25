package outbound

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidMediaType = errors.New("invalid media type")
	ErrMissingField     = errors.New("missing required field")
)

// Kind is the closed set of outbound message variants.
type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindDocument Kind = "document"
	KindAudio    Kind = "audio"
	KindVideo    Kind = "video"
)

// MediaKinds lists every kind accepted by Media, in a stable order.
var MediaKinds = []Kind{KindImage, KindDocument, KindAudio, KindVideo}

// Message is an outbound send request. Build it with Text or Media.
type Message struct {
	Kind     Kind   `json:"kind"`
	Text     string `json:"text,omitempty"`
	MediaURL string `json:"media_url,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// Receipt is what the transport reports after a successful send.
type Receipt struct {
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

// Text builds a plain text message.
func Text(body string) (Message, error) {
	if body == "" {
		return Message{}, fmt.Errorf("%w: message", ErrMissingField)
	}
	return Message{Kind: KindText, Text: body}, nil
}

// ParseMediaKind validates a media type string.
func ParseMediaKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, mk := range MediaKinds {
		if k == mk {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMediaType, s)
}

// Media builds a media message. Audio messages never carry a caption.
func Media(mediaType, url, caption string) (Message, error) {
	kind, err := ParseMediaKind(mediaType)
	if err != nil {
		return Message{}, err
	}
	if strings.TrimSpace(url) == "" {
		return Message{}, fmt.Errorf("%w: mediaUrl", ErrMissingField)
	}

	msg := Message{Kind: kind, MediaURL: url}
	switch kind {
	case KindImage, KindDocument, KindVideo:
		msg.Caption = caption
	case KindAudio:
	}
	return msg, nil
}

// IsMedia reports whether the message carries an attachment.
func (m Message) IsMedia() bool {
	return m.Kind != KindText && m.Kind != ""
}
