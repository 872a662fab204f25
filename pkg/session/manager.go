package session

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sipeed/wabridge/pkg/bus"
	"github.com/sipeed/wabridge/pkg/history"
	"github.com/sipeed/wabridge/pkg/jid"
	"github.com/sipeed/wabridge/pkg/logger"
	"github.com/sipeed/wabridge/pkg/normalizer"
	"github.com/sipeed/wabridge/pkg/outbound"
	"github.com/sipeed/wabridge/pkg/qrcode"
	"github.com/sipeed/wabridge/pkg/webhook"
)

// Transport is one live protocol handle.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect()
	Logout(ctx context.Context) error
	Send(ctx context.Context, to string, msg outbound.Message) (outbound.Receipt, error)
}

// Emitter publishes a transport event on behalf of one handle.
type Emitter func(evt bus.TransportEvent)

// TransportFactory builds a fresh handle that reports through emit.
type TransportFactory func(ctx context.Context, emit Emitter) (Transport, error)

// Dispatcher receives webhook payloads.
type Dispatcher interface {
	Dispatch(category webhook.Category, payload interface{})
}

type Options struct {
	Factory        TransportFactory
	Bus            *bus.MessageBus
	Dispatcher     Dispatcher
	History        *history.Store
	ReconnectDelay time.Duration
	RestartDelay   time.Duration
	SendTimeout    time.Duration
	// QRWriter, when set, receives a terminal rendering of every QR code.
	QRWriter  io.Writer
	Scheduler Scheduler
	Now       func() time.Time
}

// Manager owns the connection state machine of the single session.
//
// Every start attempt gets a new generation number. Timers and transport
// events carry the generation they were created for and are ignored once a
// newer attempt has begun, so at most one handle is ever live.
type Manager struct {
	opts Options

	mu         sync.Mutex
	state      State
	qr         *QRArtifact
	transport  Transport
	generation uint64
	timer      Timer
	baseCtx    context.Context
}

func NewManager(opts Options) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = 2 * time.Second
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	if opts.Scheduler == nil {
		opts.Scheduler = realScheduler{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.History == nil {
		opts.History = history.NewStore(0)
	}
	return &Manager{
		opts:    opts,
		state:   StateDisconnected,
		baseCtx: context.Background(),
	}
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Start begins a new connection attempt, superseding any previous one.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	gen, old := m.beginLocked()
	m.mu.Unlock()

	if old != nil {
		old.Disconnect()
	}
	return m.connect(ctx, gen)
}

// startIfCurrent is the timer callback: it starts only if no newer attempt
// happened since the timer was armed.
func (m *Manager) startIfCurrent(armed uint64) {
	m.mu.Lock()
	if m.generation != armed {
		m.mu.Unlock()
		logger.DebugCF("session", "Ignoring stale timer", map[string]interface{}{
			"armed_generation": armed,
		})
		return
	}
	m.timer = nil
	gen, old := m.beginLocked()
	ctx := m.baseCtx
	m.mu.Unlock()

	if old != nil {
		old.Disconnect()
	}
	if err := m.connect(ctx, gen); err != nil {
		logger.ErrorCF("session", "Scheduled connection attempt failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (m *Manager) beginLocked() (uint64, Transport) {
	m.stopTimerLocked()
	m.generation++
	old := m.transport
	m.transport = nil
	m.setStateLocked(StateConnecting)
	return m.generation, old
}

func (m *Manager) connect(ctx context.Context, gen uint64) error {
	emit := func(evt bus.TransportEvent) {
		evt.Generation = gen
		m.opts.Bus.PublishTransport(evt)
	}

	t, err := m.opts.Factory(ctx, emit)
	if err == nil {
		m.mu.Lock()
		if m.generation == gen {
			m.transport = t
		}
		m.mu.Unlock()
		err = t.Connect(ctx)
	}

	m.mu.Lock()
	current := m.generation == gen
	if err != nil && current {
		m.transport = nil
		m.setStateLocked(StateReconnecting)
		m.scheduleLocked(m.opts.ReconnectDelay)
	}
	m.mu.Unlock()

	if err != nil {
		if t != nil {
			t.Disconnect()
		}
		logger.ErrorCF("session", "Failed to start session", map[string]interface{}{
			"generation": gen,
			"error":      err.Error(),
		})
		return fmt.Errorf("failed to start session: %w", err)
	}

	if !current {
		logger.WarnCF("session", "Connection attempt superseded, discarding handle", map[string]interface{}{
			"generation": gen,
		})
		t.Disconnect()
	}
	return nil
}

// Restart tears down the current handle, logging out if the session is
// connected, and starts again after the restart delay.
func (m *Manager) Restart(ctx context.Context) error {
	m.mu.Lock()
	m.stopTimerLocked()
	m.generation++
	old := m.transport
	m.transport = nil
	wasConnected := m.state == StateConnected
	m.setStateLocked(StateRestarting)
	m.scheduleLocked(m.opts.RestartDelay)
	m.mu.Unlock()

	if old == nil {
		return nil
	}
	defer old.Disconnect()

	if wasConnected {
		if err := old.Logout(ctx); err != nil {
			logger.ErrorCF("session", "Logout during restart failed", map[string]interface{}{
				"error": err.Error(),
			})
			return fmt.Errorf("failed to log out: %w", err)
		}
	}
	return nil
}

// Stop cancels pending timers and disconnects without logging out.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	m.stopTimerLocked()
	m.generation++
	old := m.transport
	m.transport = nil
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if old != nil {
		old.Disconnect()
	}
	logger.InfoC("session", "Session stopped")
}

func (m *Manager) scheduleLocked(delay time.Duration) {
	m.stopTimerLocked()
	armed := m.generation
	m.timer = m.opts.Scheduler.AfterFunc(delay, func() { m.startIfCurrent(armed) })
	logger.InfoCF("session", "Connection attempt scheduled", map[string]interface{}{
		"delay":      delay.String(),
		"generation": armed,
	})
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// setStateLocked is the only place the state changes. A QR artifact only
// exists while the state is qr_ready.
func (m *Manager) setStateLocked(s State) {
	if s != StateQRReady {
		m.qr = nil
	}
	if m.state == s {
		return
	}
	logger.InfoCF("session", "Connection state changed", map[string]interface{}{
		"from": string(m.state),
		"to":   string(s),
	})
	m.state = s
	if m.opts.Bus != nil {
		m.opts.Bus.Notify(bus.BusEvent{Type: "state", Payload: s, Time: m.opts.Now()})
	}
}

// ---------------------------------------------------------------------------
// Event loop
// ---------------------------------------------------------------------------

// Run consumes transport events until ctx is cancelled. It is the only
// goroutine that applies transport events to the state machine.
func (m *Manager) Run(ctx context.Context) {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()

	for {
		evt, ok := m.opts.Bus.ConsumeTransport(ctx)
		if !ok {
			return
		}
		m.handle(evt)
	}
}

func (m *Manager) handle(evt bus.TransportEvent) {
	m.mu.Lock()
	if evt.Generation != m.generation {
		m.mu.Unlock()
		logger.DebugCF("session", "Dropping event from superseded handle", map[string]interface{}{
			"kind":       string(evt.Kind),
			"generation": evt.Generation,
		})
		return
	}

	var stale Transport
	switch evt.Kind {
	case bus.EventConnecting:
		m.setStateLocked(StateConnecting)
	case bus.EventQR:
		m.qr = m.renderQR(evt.QR)
		m.setStateLocked(StateQRReady)
	case bus.EventOpen:
		m.setStateLocked(StateConnected)
	case bus.EventClose:
		stale = m.handleCloseLocked(evt.Close)
	}
	m.mu.Unlock()

	if stale != nil {
		stale.Disconnect()
	}

	switch evt.Kind {
	case bus.EventConnecting, bus.EventQR, bus.EventOpen, bus.EventClose:
		m.opts.Dispatcher.Dispatch(webhook.CategoryStatus, normalizer.ConnectionPayload(evt, m.opts.Now()))
	case bus.EventMessage:
		m.handleMessage(evt.Message)
	case bus.EventGroups:
		m.opts.Dispatcher.Dispatch(webhook.CategoryGroup, normalizer.GroupPayload(evt.Groups, m.opts.Now()))
	}
}

func (m *Manager) handleCloseLocked(reason *bus.CloseReason) Transport {
	if reason == nil {
		reason = &bus.CloseReason{Reason: "connection closed"}
	}
	t := m.transport
	m.transport = nil

	if reason.LoggedOut {
		m.stopTimerLocked()
		m.setStateLocked(StateLoggedOut)
		m.opts.History.Reset()
		logger.WarnCF("session", "Session logged out, not reconnecting", map[string]interface{}{
			"reason": reason.Reason,
			"code":   reason.Code,
		})
		return t
	}

	m.setStateLocked(StateReconnecting)
	m.scheduleLocked(m.opts.ReconnectDelay)
	logger.WarnCF("session", "Connection closed, reconnecting", map[string]interface{}{
		"reason": reason.Reason,
		"code":   reason.Code,
	})
	return t
}

func (m *Manager) renderQR(token string) *QRArtifact {
	artifact := &QRArtifact{Token: token, CreatedAt: m.opts.Now()}
	img, err := qrcode.Render(token)
	if err != nil {
		logger.ErrorCF("session", "Failed to render QR code", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		artifact.PNG = img.PNG
		artifact.DataURL = img.DataURL
	}
	if m.opts.QRWriter != nil {
		qrcode.PrintTerminal(m.opts.QRWriter, token)
	}
	logger.InfoC("session", "QR code generated, available via /qr")
	return artifact
}

func (m *Manager) handleMessage(raw *bus.RawMessage) {
	if raw == nil || raw.FromMe || strings.HasSuffix(raw.Chat, "@broadcast") {
		return
	}

	evt := normalizer.Normalize(*raw)
	m.opts.History.Append(history.Entry{
		ID:          evt.ID,
		Chat:        evt.From,
		Sender:      evt.Sender,
		Direction:   history.DirectionIn,
		Content:     evt.Content,
		ContentType: string(evt.ContentType),
		IsGroup:     evt.IsGroup,
		Timestamp:   evt.Timestamp,
	})

	logger.DebugCF("session", "Message received", map[string]interface{}{
		"from":         evt.From,
		"content_type": string(evt.ContentType),
	})

	payload := evt.Payload()
	if m.opts.Bus != nil {
		m.opts.Bus.Notify(bus.BusEvent{Type: "webhook", Category: string(webhook.CategoryMessage), Payload: payload})
	}
	m.opts.Dispatcher.Dispatch(webhook.CategoryMessage, payload)
}

// ---------------------------------------------------------------------------
// Queries and commands
// ---------------------------------------------------------------------------

// CurrentState returns the compact state triple.
func (m *Manager) CurrentState() StateSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return StateSnapshot{
		State:     m.state,
		HasQR:     m.qr != nil,
		Connected: m.state == StateConnected,
	}
}

// Snapshot returns the polling status view.
func (m *Manager) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		Connected: m.state == StateConnected,
		Status:    m.state,
		HasQR:     m.qr != nil,
		Timestamp: m.opts.Now().UTC(),
	}
	if m.qr != nil {
		token := m.qr.Token
		st.QRCode = &token
	}
	return st
}

// QR returns the current pairing artifact, if any.
func (m *Manager) QR() (QRArtifact, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.qr == nil {
		return QRArtifact{}, false
	}
	return *m.qr, true
}

// Send forwards an outbound message. It fails with ErrNotConnected unless the
// session is connected.
func (m *Manager) Send(ctx context.Context, to string, msg outbound.Message) (outbound.Receipt, error) {
	m.mu.Lock()
	t := m.transport
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || t == nil {
		return outbound.Receipt{}, ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, m.opts.SendTimeout)
	defer cancel()

	target := jid.Format(to)
	receipt, err := t.Send(ctx, target, msg)
	if err != nil {
		return outbound.Receipt{}, fmt.Errorf("failed to send %s message: %w", msg.Kind, err)
	}

	content := msg.Text
	if msg.IsMedia() {
		content = msg.Caption
	}
	m.opts.History.Append(history.Entry{
		ID:          receipt.MessageID,
		Chat:        target,
		Direction:   history.DirectionOut,
		Content:     content,
		ContentType: string(msg.Kind),
		IsGroup:     jid.IsGroup(target),
		Timestamp:   receipt.Timestamp,
	})
	return receipt, nil
}

// Messages returns recent history for a chat.
func (m *Manager) Messages(chatID string, limit int) ([]history.Entry, error) {
	if !m.CurrentState().Connected {
		return nil, ErrNotConnected
	}
	return m.opts.History.Recent(jid.Format(chatID), limit), nil
}
