package event

import (
	"sync"
	"testing"
)

func TestBus_SubscribeScopedToSession(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var mu sync.Mutex
	var receivedA, receivedB []Event

	unsubA := bus.Subscribe("session-a", func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		receivedA = append(receivedA, e)
	})
	defer unsubA()

	unsubB := bus.Subscribe("session-b", func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		receivedB = append(receivedB, e)
	})
	defer unsubB()

	bus.PublishSync(Event{Type: TranscriptAppended, SessionID: "session-a"})

	mu.Lock()
	defer mu.Unlock()
	if len(receivedA) != 1 {
		t.Fatalf("expected 1 event for session-a, got %d", len(receivedA))
	}
	if len(receivedB) != 0 {
		t.Fatalf("expected 0 events for session-b, got %d", len(receivedB))
	}
}

func TestBus_SubscribeAllReceivesEverySession(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var mu sync.Mutex
	var count int

	unsub := bus.SubscribeAll(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		count++
	})
	defer unsub()

	bus.PublishSync(Event{Type: StatusUpdated, SessionID: "session-a"})
	bus.PublishSync(Event{Type: StatusUpdated, SessionID: "session-b"})

	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Fatalf("expected 2 events, got %d", count)
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int
	unsub := bus.Subscribe("session-a", func(e Event) { count++ })
	unsub()

	bus.PublishSync(Event{Type: TranscriptAppended, SessionID: "session-a"})
	if count != 0 {
		t.Fatalf("expected 0 events after unsubscribe, got %d", count)
	}
}

func TestBus_CloseDropsSubscribers(t *testing.T) {
	bus := NewBus()
	var count int
	bus.Subscribe("session-a", func(e Event) { count++ })

	if err := bus.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	bus.PublishSync(Event{Type: TranscriptAppended, SessionID: "session-a"})
	if count != 0 {
		t.Fatalf("expected no delivery after Close, got %d", count)
	}
}

func TestType_Replayable(t *testing.T) {
	replayable := []Type{TranscriptAppended, SystemUrgentQueue, UserQueue, SettingsUpdated, StatusUpdated}
	for _, ty := range replayable {
		if !ty.Replayable() {
			t.Errorf("expected %s to be replayable", ty)
		}
	}
	ephemeral := []Type{StreamBegan, StreamDelta, StreamEnded}
	for _, ty := range ephemeral {
		if ty.Replayable() {
			t.Errorf("expected %s to be ephemeral", ty)
		}
	}
}
