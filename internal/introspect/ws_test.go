package introspect

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stellatune/engine/internal/protocol"
)

func TestWSHandlerBroadcastsHubEventsToSubscriber(t *testing.T) {
	// This server owns its own hub instance so the test can broadcast
	// directly on it, rather than going through New()'s private field.
	hub := NewHub(nil)
	s := New(hub, nil, nil)
	httpServer := httptest.NewServer(s.Echo())
	t.Cleanup(httpServer.Close)
	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()

	// Give the server goroutine time to register the subscriber before
	// broadcasting; poll instead of a fixed sleep.
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", hub.SubscriberCount())
	}

	hub.Broadcast(protocol.StateChanged{State: protocol.Playing})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got WireEvent
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if got.Kind != "StateChanged" {
		t.Fatalf("Kind = %q, want StateChanged", got.Kind)
	}
}

func TestWSHandlerUnsubscribesOnClientDisconnect(t *testing.T) {
	hub := NewHub(nil)
	s := New(hub, nil, nil)
	httpServer := httptest.NewServer(s.Echo())
	t.Cleanup(httpServer.Close)
	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.SubscriberCount() != 0 {
		t.Fatalf("SubscriberCount after disconnect = %d, want 0", hub.SubscriberCount())
	}
}
