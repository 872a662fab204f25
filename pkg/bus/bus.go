package bus

import (
	"context"
	"sync"
	"time"
)

// MessageBus carries transport events to the single session consumer and
// fans observer events out to subscribers.
type MessageBus struct {
	transport chan TransportEvent
	done      chan struct{}
	closeOnce sync.Once
	observers []chan BusEvent
	obsMu     sync.RWMutex
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		transport: make(chan TransportEvent, 100),
		done:      make(chan struct{}),
		observers: make([]chan BusEvent, 0),
	}
}

// Subscribe returns a channel that receives copies of all observer events.
func (mb *MessageBus) Subscribe() chan BusEvent {
	ch := make(chan BusEvent, 50)
	mb.obsMu.Lock()
	mb.observers = append(mb.observers, ch)
	mb.obsMu.Unlock()
	return ch
}

// Unsubscribe removes an observer channel.
func (mb *MessageBus) Unsubscribe(ch chan BusEvent) {
	mb.obsMu.Lock()
	defer mb.obsMu.Unlock()
	for i, obs := range mb.observers {
		if obs == ch {
			mb.observers = append(mb.observers[:i], mb.observers[i+1:]...)
			close(ch)
			return
		}
	}
}

// Notify delivers an event to every observer without blocking.
func (mb *MessageBus) Notify(event BusEvent) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	mb.obsMu.RLock()
	defer mb.obsMu.RUnlock()
	for _, obs := range mb.observers {
		select {
		case obs <- event:
		default:
			// Non-blocking: skip slow observers
		}
	}
}

// PublishTransport queues a transport event. It blocks while the queue is
// full and returns false once the bus is closed.
func (mb *MessageBus) PublishTransport(evt TransportEvent) bool {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}
	select {
	case <-mb.done:
		return false
	default:
	}
	select {
	case mb.transport <- evt:
		return true
	case <-mb.done:
		return false
	}
}

func (mb *MessageBus) ConsumeTransport(ctx context.Context) (TransportEvent, bool) {
	select {
	case evt := <-mb.transport:
		return evt, true
	case <-mb.done:
		return TransportEvent{}, false
	case <-ctx.Done():
		return TransportEvent{}, false
	}
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() { close(mb.done) })
}
