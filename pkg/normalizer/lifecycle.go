package normalizer

import (
	"time"

	"github.com/sipeed/wabridge/pkg/bus"
	"github.com/sipeed/wabridge/pkg/webhook"
)

// ConnectionPayload renders a connection_update body for a lifecycle event.
// QR events carry no connection value, matching the pairing update shape.
func ConnectionPayload(evt bus.TransportEvent, at time.Time) webhook.ConnectionUpdate {
	update := webhook.ConnectionUpdate{
		Type:      webhook.TypeConnectionUpdate,
		QR:        evt.Kind == bus.EventQR && evt.QR != "",
		Timestamp: at.UnixMilli(),
	}

	var conn string
	switch evt.Kind {
	case bus.EventConnecting:
		conn = "connecting"
	case bus.EventOpen:
		conn = "open"
	case bus.EventClose:
		conn = "close"
	}
	if conn != "" {
		update.Connection = &conn
	}

	if evt.Kind == bus.EventClose && evt.Close != nil {
		update.LastDisconnect = &webhook.LastDisconnect{
			Error:      evt.Close.Reason,
			StatusCode: evt.Close.Code,
			LoggedOut:  evt.Close.LoggedOut,
			Date:       evt.Time.UnixMilli(),
		}
	}
	return update
}

// GroupPayload renders a group_created body.
func GroupPayload(groups []bus.GroupInfo, at time.Time) webhook.GroupCreated {
	if groups == nil {
		groups = []bus.GroupInfo{}
	}
	return webhook.GroupCreated{
		Type:      webhook.TypeGroupCreated,
		Groups:    groups,
		Timestamp: at.UnixMilli(),
	}
}
