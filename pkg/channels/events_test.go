package channels

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/sipeed/wabridge/pkg/bus"
)

func TestTranslateLifecycle(t *testing.T) {
	tests := []struct {
		name      string
		in        interface{}
		kind      bus.EventKind
		code      int
		loggedOut bool
	}{
		{"connected", &events.Connected{}, bus.EventOpen, 0, false},
		{"disconnected", &events.Disconnected{}, bus.EventClose, CodeConnectionLost, false},
		{"replaced", &events.StreamReplaced{}, bus.EventClose, CodeReplaced, false},
		{"logged out", &events.LoggedOut{Reason: events.ConnectFailureLoggedOut}, bus.EventClose, CodeLoggedOut, true},
		{"connect failure logged out", &events.ConnectFailure{Reason: events.ConnectFailureLoggedOut}, bus.EventClose, 401, true},
		{"connect failure transient", &events.ConnectFailure{Reason: events.ConnectFailureReason(503)}, bus.EventClose, 503, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, ok := translateEvent(tt.in)
			require.True(t, ok)
			assert.Equal(t, tt.kind, evt.Kind)
			if tt.kind == bus.EventClose {
				require.NotNil(t, evt.Close)
				assert.Equal(t, tt.code, evt.Close.Code)
				assert.Equal(t, tt.loggedOut, evt.Close.LoggedOut)
				assert.NotEmpty(t, evt.Close.Reason)
			}
		})
	}
}

func TestTranslateGroupMessage(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	in := &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:    types.NewJID("1203630", types.GroupServer),
				Sender:  types.NewJID("628999", types.DefaultUserServer),
				IsGroup: true,
			},
			ID:        "3EB0ABC",
			PushName:  "Ana",
			Timestamp: ts,
		},
		Message: &waE2E.Message{Conversation: proto.String("hello")},
	}

	evt, ok := translateEvent(in)
	require.True(t, ok)
	require.Equal(t, bus.EventMessage, evt.Kind)

	raw := evt.Message
	require.NotNil(t, raw)
	assert.Equal(t, "3EB0ABC", raw.ID)
	assert.Equal(t, "1203630@g.us", raw.Chat)
	assert.Equal(t, "628999@s.whatsapp.net", raw.Participant)
	assert.Equal(t, "Ana", raw.PushName)
	assert.Equal(t, ts, raw.Timestamp)
	assert.Equal(t, "hello", raw.Message.GetConversation())
}

func TestTranslateDirectMessageHasNoParticipant(t *testing.T) {
	chat := types.NewJID("628123", types.DefaultUserServer)
	in := &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: chat, Sender: chat, IsFromMe: true},
			ID:            "3EB0DEF",
		},
	}

	evt, ok := translateEvent(in)
	require.True(t, ok)
	assert.Empty(t, evt.Message.Participant)
	assert.True(t, evt.Message.FromMe)
}

func TestTranslateJoinedGroup(t *testing.T) {
	in := &events.JoinedGroup{
		Reason: "create",
		GroupInfo: types.GroupInfo{
			JID:       types.NewJID("1203630", types.GroupServer),
			OwnerJID:  types.NewJID("628123", types.DefaultUserServer),
			GroupName: types.GroupName{Name: "Ops"},
			Participants: []types.GroupParticipant{
				{JID: types.NewJID("628123", types.DefaultUserServer)},
				{JID: types.NewJID("628999", types.DefaultUserServer)},
			},
		},
	}

	evt, ok := translateEvent(in)
	require.True(t, ok)
	require.Equal(t, bus.EventGroups, evt.Kind)
	require.Len(t, evt.Groups, 1)

	g := evt.Groups[0]
	assert.Equal(t, "1203630@g.us", g.JID)
	assert.Equal(t, "Ops", g.Name)
	assert.Equal(t, "628123@s.whatsapp.net", g.Owner)
	assert.Equal(t, "create", g.Reason)
	assert.Len(t, g.Participants, 2)
}

func TestTranslateIgnoresOtherEvents(t *testing.T) {
	_, ok := translateEvent(&events.HistorySync{})
	assert.False(t, ok)

	_, ok = translateEvent("not an event")
	assert.False(t, ok)
}
