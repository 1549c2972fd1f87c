// Package introspect exposes the engine's health, device, plugin, and
// metrics state over HTTP, and fans out its event stream to any number of
// websocket subscribers. Grounded on the teacher server's Echo app
// (server/internal/httpapi/server.go) and websocket handler
// (server/internal/ws/handler.go), generalized from a chat-room wire
// protocol to the player's own command/event set.
package introspect

import (
	"log/slog"
	"sync"

	"github.com/stellatune/engine/internal/protocol"
)

// WireEvent is the JSON envelope one event is broadcast as: a stable kind
// tag plus the event's own exported fields.
type WireEvent struct {
	Kind  string         `json:"kind"`
	Event protocol.Event `json:"event"`
}

// NewWireEvent wraps ev for the wire.
func NewWireEvent(ev protocol.Event) WireEvent {
	return WireEvent{Kind: protocol.EventKind(ev), Event: ev}
}

// Hub fans out engine events to every connected websocket subscriber,
// decoupling the control actor's single events channel (consumed once, by
// the engine facade) from however many introspection clients happen to be
// connected at a given moment.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan WireEvent]struct{}
	logger *slog.Logger
}

// NewHub returns an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: make(map[chan WireEvent]struct{}), logger: logger}
}

// Broadcast delivers ev to every current subscriber. A subscriber whose
// channel is full has the event dropped for it and a warning logged,
// mirroring the control actor's own non-blocking publish.
func (h *Hub) Broadcast(ev protocol.Event) {
	w := NewWireEvent(ev)
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- w:
		default:
			h.logger.Warn("introspect: subscriber channel full, dropping event", "kind", w.Kind)
		}
	}
}

// Run drains events off ch, broadcasting each, until ch is closed or stop
// fires. The engine facade does not call Run: its own fan-out goroutine
// reads the control-actor event channel and calls Broadcast directly.
func (h *Hub) Run(events <-chan protocol.Event, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.Broadcast(ev)
		}
	}
}

// Subscribe registers a new buffered subscriber channel. The caller must
// invoke the returned unsubscribe func exactly once when done, typically
// in a defer right after Subscribe.
func (h *Hub) Subscribe(buffer int) (ch chan WireEvent, unsubscribe func()) {
	ch = make(chan WireEvent, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
		close(ch)
	}
}

// SubscriberCount returns the number of currently connected subscribers,
// for tests and the /healthz response.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
