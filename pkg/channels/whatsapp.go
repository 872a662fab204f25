package channels

import (
	"context"
	"fmt"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/sipeed/wabridge/pkg/bus"
	"github.com/sipeed/wabridge/pkg/jid"
	"github.com/sipeed/wabridge/pkg/logger"
	"github.com/sipeed/wabridge/pkg/outbound"
	"github.com/sipeed/wabridge/pkg/session"
	"github.com/sipeed/wabridge/pkg/storage"
)

// WhatsAppTransport is one whatsmeow connection. It never reconnects on its
// own; every lifecycle change is reported through emit and the session
// manager decides what happens next.
type WhatsAppTransport struct {
	store *storage.DeviceStore
	media *MediaFetcher
	emit  session.Emitter

	mu     sync.Mutex
	client *whatsmeow.Client
	cancel context.CancelFunc
}

// NewWhatsAppFactory returns a session.TransportFactory backed by store.
func NewWhatsAppFactory(store *storage.DeviceStore, media *MediaFetcher) session.TransportFactory {
	return func(ctx context.Context, emit session.Emitter) (session.Transport, error) {
		return NewWhatsAppTransport(store, media, emit), nil
	}
}

func NewWhatsAppTransport(store *storage.DeviceStore, media *MediaFetcher, emit session.Emitter) *WhatsAppTransport {
	if media == nil {
		media = NewMediaFetcher(0, 0)
	}
	return &WhatsAppTransport{store: store, media: media, emit: emit}
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Connect opens the websocket. Unpaired devices get a QR channel whose codes
// are emitted as EventQR.
func (t *WhatsAppTransport) Connect(ctx context.Context) error {
	device, err := t.store.Device(ctx)
	if err != nil {
		return err
	}

	client := whatsmeow.NewClient(device, waLog.Zerolog(logger.Zerolog("whatsmeow")))
	client.EnableAutoReconnect = false
	client.AddEventHandler(t.eventHandler)

	connCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.client = client
	t.cancel = cancel
	t.mu.Unlock()

	t.emit(bus.TransportEvent{Kind: bus.EventConnecting})

	if client.Store.ID == nil {
		logger.InfoC("whatsapp", "No existing session found, starting QR code login")
		qrChan, err := client.GetQRChannel(connCtx)
		if err != nil {
			return fmt.Errorf("failed to get QR channel: %w", err)
		}
		if err := client.Connect(); err != nil {
			return fmt.Errorf("failed to connect for QR: %w", err)
		}
		go t.watchQR(qrChan)
		return nil
	}

	logger.InfoCF("whatsapp", "Resuming existing session", map[string]interface{}{
		"device_id": client.Store.ID.String(),
	})
	if err := client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

func (t *WhatsAppTransport) watchQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			t.emit(bus.TransportEvent{Kind: bus.EventQR, QR: item.Code})

		case "success":
			logger.InfoC("whatsapp", "QR code scanned, pairing successful")

		case "timeout":
			logger.WarnC("whatsapp", "QR code timed out")
			t.emit(closeEvent(CodeQRTimeout, "QR code timed out", false))

		default:
			reason := item.Event
			if item.Error != nil {
				reason = item.Error.Error()
			}
			logger.ErrorCF("whatsapp", "QR login error", map[string]interface{}{
				"event":  item.Event,
				"reason": reason,
			})
			t.emit(closeEvent(CodeQRError, reason, false))
		}
	}
}

// Disconnect closes the websocket without unpairing.
func (t *WhatsAppTransport) Disconnect() {
	t.mu.Lock()
	client, cancel := t.client, t.cancel
	t.client, t.cancel = nil, nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if client != nil {
		client.RemoveEventHandlers()
		client.Disconnect()
	}
}

// Logout unpairs the device. The stored credentials are removed.
func (t *WhatsAppTransport) Logout(ctx context.Context) error {
	client := t.currentClient()
	if client == nil {
		return fmt.Errorf("whatsapp client not connected")
	}
	if err := client.Logout(ctx); err != nil {
		return fmt.Errorf("failed to log out: %w", err)
	}
	logger.InfoC("whatsapp", "Logged out")
	return nil
}

func (t *WhatsAppTransport) currentClient() *whatsmeow.Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client
}

// ---------------------------------------------------------------------------
// Event handling
// ---------------------------------------------------------------------------

func (t *WhatsAppTransport) eventHandler(raw interface{}) {
	evt, ok := translateEvent(raw)
	if !ok {
		return
	}
	if evt.Kind == bus.EventClose {
		logger.WarnCF("whatsapp", "WhatsApp connection closed", map[string]interface{}{
			"code":       evt.Close.Code,
			"reason":     evt.Close.Reason,
			"logged_out": evt.Close.LoggedOut,
		})
	}
	t.emit(evt)
}

// ---------------------------------------------------------------------------
// Outbound messages
// ---------------------------------------------------------------------------

// Send delivers msg to the chat identified by the full address to.
func (t *WhatsAppTransport) Send(ctx context.Context, to string, msg outbound.Message) (outbound.Receipt, error) {
	client := t.currentClient()
	if client == nil || !client.IsConnected() {
		return outbound.Receipt{}, fmt.Errorf("whatsapp client not connected")
	}

	target, err := jid.Parse(to)
	if err != nil {
		return outbound.Receipt{}, err
	}

	var waMsg *waE2E.Message
	if msg.IsMedia() {
		waMsg, err = t.prepareMedia(ctx, client, msg)
		if err != nil {
			return outbound.Receipt{}, err
		}
	} else {
		_ = client.SendChatPresence(ctx, target, types.ChatPresenceComposing, "")
		waMsg = &waE2E.Message{Conversation: proto.String(msg.Text)}
	}

	resp, err := client.SendMessage(ctx, target, waMsg)
	if err != nil {
		return outbound.Receipt{}, fmt.Errorf("failed to send whatsapp message: %w", err)
	}

	if !msg.IsMedia() {
		_ = client.SendChatPresence(ctx, target, types.ChatPresencePaused, "")
	}

	logger.DebugCF("whatsapp", "Message sent", map[string]interface{}{
		"to":         target.String(),
		"kind":       string(msg.Kind),
		"message_id": resp.ID,
	})
	return outbound.Receipt{MessageID: resp.ID, Timestamp: resp.Timestamp}, nil
}

func (t *WhatsAppTransport) prepareMedia(ctx context.Context, client *whatsmeow.Client, msg outbound.Message) (*waE2E.Message, error) {
	mediaType, err := mediaTypeFor(msg.Kind)
	if err != nil {
		return nil, err
	}

	media, err := t.media.Fetch(ctx, msg.MediaURL)
	if err != nil {
		return nil, err
	}

	up, err := client.Upload(ctx, media.Data, mediaType)
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", msg.Kind, err)
	}

	logger.DebugCF("whatsapp", "Media uploaded", map[string]interface{}{
		"kind": string(msg.Kind),
		"mime": media.MimeType,
		"size": len(media.Data),
	})
	return buildMediaMessage(msg, media, up)
}
