package normalizer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"

	"github.com/sipeed/wabridge/pkg/bus"
	"github.com/sipeed/wabridge/pkg/webhook"
)

func rawFrom(chat string, msg *waE2E.Message) bus.RawMessage {
	return bus.RawMessage{
		ID:        "3EB0ABCDEF",
		Chat:      chat,
		Timestamp: time.Unix(1700000000, 0),
		Message:   msg,
	}
}

func TestNormalizePlainText(t *testing.T) {
	raw := rawFrom("628123@s.whatsapp.net", &waE2E.Message{Conversation: proto.String("hi")})

	evt := Normalize(raw)

	assert.Equal(t, "hi", evt.Content)
	assert.Equal(t, ContentText, evt.ContentType)
	assert.False(t, evt.IsGroup)
	assert.Equal(t, "628123@s.whatsapp.net", evt.Sender)
	assert.Equal(t, "628123@s.whatsapp.net", evt.From)
	assert.Equal(t, webhook.CategoryMessage, evt.Category)
}

func TestNormalizePrecedence(t *testing.T) {
	tests := []struct {
		name        string
		msg         *waE2E.Message
		wantContent string
		wantType    ContentType
	}{
		{
			name: "plain text beats caption",
			msg: &waE2E.Message{
				Conversation: proto.String("body"),
				ImageMessage: &waE2E.ImageMessage{Caption: proto.String("caption")},
			},
			wantContent: "body",
			wantType:    ContentText,
		},
		{
			name: "quoted text beats caption",
			msg: &waE2E.Message{
				ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("quoted")},
				ImageMessage:        &waE2E.ImageMessage{Caption: proto.String("caption")},
			},
			wantContent: "quoted",
			wantType:    ContentText,
		},
		{
			name: "plain text beats quoted text",
			msg: &waE2E.Message{
				Conversation:        proto.String("body"),
				ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("quoted")},
			},
			wantContent: "body",
			wantType:    ContentText,
		},
		{
			name:        "image caption",
			msg:         &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("sunset")}},
			wantContent: "sunset",
			wantType:    ContentImage,
		},
		{
			name: "image beats video",
			msg: &waE2E.Message{
				ImageMessage: &waE2E.ImageMessage{Caption: proto.String("img")},
				VideoMessage: &waE2E.VideoMessage{Caption: proto.String("vid")},
			},
			wantContent: "img",
			wantType:    ContentImage,
		},
		{
			name:        "video caption",
			msg:         &waE2E.Message{VideoMessage: &waE2E.VideoMessage{Caption: proto.String("clip")}},
			wantContent: "clip",
			wantType:    ContentVideo,
		},
		{
			name: "uncaptioned image falls through to document",
			msg: &waE2E.Message{
				ImageMessage:    &waE2E.ImageMessage{},
				DocumentMessage: &waE2E.DocumentMessage{FileName: proto.String("a.pdf")},
			},
			wantContent: "a.pdf",
			wantType:    ContentDocument,
		},
		{
			name: "uncaptioned image falls through to video caption",
			msg: &waE2E.Message{
				ImageMessage: &waE2E.ImageMessage{},
				VideoMessage: &waE2E.VideoMessage{Caption: proto.String("clip")},
			},
			wantContent: "clip",
			wantType:    ContentVideo,
		},
		{
			name:        "uncaptioned image alone",
			msg:         &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}},
			wantContent: "",
			wantType:    ContentUnknown,
		},
		{
			name:        "uncaptioned video alone",
			msg:         &waE2E.Message{VideoMessage: &waE2E.VideoMessage{}},
			wantContent: "",
			wantType:    ContentUnknown,
		},
		{
			name:        "document file name",
			msg:         &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{FileName: proto.String("invoice.pdf")}},
			wantContent: "invoice.pdf",
			wantType:    ContentDocument,
		},
		{
			name:        "document without name",
			msg:         &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{}},
			wantContent: "Document",
			wantType:    ContentDocument,
		},
		{
			name:        "audio",
			msg:         &waE2E.Message{AudioMessage: &waE2E.AudioMessage{PTT: proto.Bool(true)}},
			wantContent: "Audio message",
			wantType:    ContentAudio,
		},
		{
			name:        "unrecognised shape",
			msg:         &waE2E.Message{StickerMessage: &waE2E.StickerMessage{}},
			wantContent: "",
			wantType:    ContentUnknown,
		},
		{
			name:        "nil message",
			msg:         nil,
			wantContent: "",
			wantType:    ContentUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt := Normalize(rawFrom("628123@s.whatsapp.net", tt.msg))
			assert.Equal(t, tt.wantContent, evt.Content)
			assert.Equal(t, tt.wantType, evt.ContentType)
		})
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	raw := rawFrom("628123@s.whatsapp.net", &waE2E.Message{
		Conversation: proto.String("same"),
		ImageMessage: &waE2E.ImageMessage{Caption: proto.String("other")},
	})

	assert.Equal(t, Normalize(raw), Normalize(raw))
}

func TestNormalizeGroupSender(t *testing.T) {
	raw := rawFrom("120363012345@g.us", &waE2E.Message{Conversation: proto.String("hello all")})
	raw.Participant = "628999@s.whatsapp.net"
	raw.PushName = "Budi"

	evt := Normalize(raw)

	assert.True(t, evt.IsGroup)
	assert.Equal(t, "120363012345@g.us", evt.From)
	assert.Equal(t, "628999@s.whatsapp.net", evt.Sender)
	assert.Equal(t, "Budi", evt.PushName)
}

func TestPayloadCarriesRaw(t *testing.T) {
	raw := rawFrom("628123@s.whatsapp.net", &waE2E.Message{Conversation: proto.String("hi")})

	payload := Normalize(raw).Payload()

	assert.Equal(t, webhook.TypeIncomingMessage, payload.Type)
	assert.Equal(t, "3EB0ABCDEF", payload.MessageID)
	assert.Equal(t, "text", payload.MessageType)
	assert.Equal(t, int64(1700000000), payload.Timestamp)

	var decoded struct {
		Key struct {
			RemoteJID string `json:"remoteJid"`
			ID        string `json:"id"`
		} `json:"key"`
		Message struct {
			Conversation string `json:"conversation"`
		} `json:"message"`
	}
	require.NoError(t, json.Unmarshal(payload.Raw, &decoded))
	assert.Equal(t, "628123@s.whatsapp.net", decoded.Key.RemoteJID)
	assert.Equal(t, "3EB0ABCDEF", decoded.Key.ID)
	assert.Equal(t, "hi", decoded.Message.Conversation)
}
