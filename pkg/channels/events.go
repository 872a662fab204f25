package channels

import (
	"fmt"
	"time"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/sipeed/wabridge/pkg/bus"
)

// Close codes reported to webhook consumers, matching the disconnect reasons
// WhatsApp Web clients conventionally use.
const (
	CodeLoggedOut      = 401
	CodeQRTimeout      = 408
	CodeConnectionLost = 428
	CodeReplaced       = 440
	CodeQRError        = 500
)

// translateEvent maps a whatsmeow event onto a transport event. The second
// return value is false for events the bridge does not surface.
func translateEvent(raw interface{}) (bus.TransportEvent, bool) {
	now := time.Now()
	switch v := raw.(type) {
	case *events.Connected:
		return bus.TransportEvent{Kind: bus.EventOpen, Time: now}, true

	case *events.Disconnected:
		return closeEvent(CodeConnectionLost, "connection lost", false), true

	case *events.StreamReplaced:
		return closeEvent(CodeReplaced, "connection replaced by another session", false), true

	case *events.LoggedOut:
		return closeEvent(CodeLoggedOut, fmt.Sprintf("logged out: %v", v.Reason), true), true

	case *events.ConnectFailure:
		return closeEvent(int(v.Reason), fmt.Sprintf("connect failure: %v", v.Reason), v.Reason.IsLoggedOut()), true

	case *events.Message:
		return bus.TransportEvent{Kind: bus.EventMessage, Message: rawMessage(v), Time: now}, true

	case *events.JoinedGroup:
		return bus.TransportEvent{Kind: bus.EventGroups, Groups: []bus.GroupInfo{groupInfo(v)}, Time: now}, true
	}
	return bus.TransportEvent{}, false
}

func closeEvent(code int, reason string, loggedOut bool) bus.TransportEvent {
	return bus.TransportEvent{
		Kind:  bus.EventClose,
		Close: &bus.CloseReason{Code: code, Reason: reason, LoggedOut: loggedOut},
		Time:  time.Now(),
	}
}

func rawMessage(v *events.Message) *bus.RawMessage {
	raw := &bus.RawMessage{
		ID:        v.Info.ID,
		Chat:      v.Info.Chat.String(),
		FromMe:    v.Info.IsFromMe,
		PushName:  v.Info.PushName,
		Timestamp: v.Info.Timestamp,
		Message:   v.Message,
	}
	if v.Info.Chat.Server == types.GroupServer && !v.Info.Sender.IsEmpty() {
		raw.Participant = v.Info.Sender.ToNonAD().String()
	}
	return raw
}

func groupInfo(v *events.JoinedGroup) bus.GroupInfo {
	info := bus.GroupInfo{
		JID:       v.GroupInfo.JID.String(),
		Name:      v.GroupInfo.Name,
		Reason:    v.Reason,
		CreatedAt: v.GroupInfo.GroupCreated,
	}
	if !v.GroupInfo.OwnerJID.IsEmpty() {
		info.Owner = v.GroupInfo.OwnerJID.String()
	}
	for _, p := range v.GroupInfo.Participants {
		info.Participants = append(info.Participants, p.JID.String())
	}
	return info
}
