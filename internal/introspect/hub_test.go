package introspect

import (
	"testing"
	"time"

	"github.com/stellatune/engine/internal/protocol"
)

func TestHubBroadcastDeliversToAllSubscribers(t *testing.T) {
	hub := NewHub(nil)
	a, unsubA := hub.Subscribe(4)
	defer unsubA()
	b, unsubB := hub.Subscribe(4)
	defer unsubB()

	hub.Broadcast(protocol.TrackChanged{Token: "track-1"})

	for _, ch := range []chan WireEvent{a, b} {
		select {
		case w := <-ch:
			if w.Kind != "TrackChanged" {
				t.Fatalf("Kind = %q, want TrackChanged", w.Kind)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for broadcast event")
		}
	}
}

func TestHubUnsubscribeRemovesSubscriber(t *testing.T) {
	hub := NewHub(nil)
	_, unsubscribe := hub.Subscribe(1)
	if hub.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", hub.SubscriberCount())
	}
	unsubscribe()
	if hub.SubscriberCount() != 0 {
		t.Fatalf("SubscriberCount after unsubscribe = %d, want 0", hub.SubscriberCount())
	}
}

func TestHubBroadcastDoesNotBlockOnFullSubscriberChannel(t *testing.T) {
	hub := NewHub(nil)
	ch, unsubscribe := hub.Subscribe(1)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		hub.Broadcast(protocol.Eof{})
		hub.Broadcast(protocol.Eof{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a full subscriber channel")
	}
	<-ch
}

func TestHubRunStopsOnStopSignal(t *testing.T) {
	hub := NewHub(nil)
	events := make(chan protocol.Event)
	stop := make(chan struct{})

	done := make(chan struct{})
	go func() {
		hub.Run(events, stop)
		close(done)
	}()

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after stop was closed")
	}
}

func TestHubRunStopsWhenEventsChannelCloses(t *testing.T) {
	hub := NewHub(nil)
	events := make(chan protocol.Event)
	stop := make(chan struct{})

	done := make(chan struct{})
	go func() {
		hub.Run(events, stop)
		close(done)
	}()

	close(events)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after events channel closed")
	}
}
