package subscription

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/wuhu-dev/wuhu/internal/event"
	"github.com/wuhu-dev/wuhu/internal/storage"
	"github.com/wuhu-dev/wuhu/pkg/types"
)

func newTestHub(t *testing.T) (*Hub, *storage.TranscriptStore, *storage.QueueStore, *event.Bus, context.Context) {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	transcript := storage.NewTranscriptStore(db)
	queue := storage.NewQueueStore(db, transcript)
	bus := event.NewBus()

	sess := types.Session{ID: "sess-1", ProviderID: "anthropic", ModelID: "claude", CreatedAt: 1, UpdatedAt: 1}
	if err := transcript.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	hub := NewHub(bus, transcript, queue, nil)
	return hub, transcript, queue, bus, ctx
}

func TestSubscribe_BackfillReflectsExistingEntries(t *testing.T) {
	hub, transcript, _, _, ctx := newTestHub(t)

	if _, err := transcript.Append(ctx, "sess-1", types.Header{SystemPrompt: "sp"}, nil, 1); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := transcript.Append(ctx, "sess-1", types.UserMessage{User: "alice"}, nil, 2); err != nil {
		t.Fatalf("append: %v", err)
	}

	state, sub, err := hub.Subscribe(ctx, "sess-1", Cursors{})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if len(state.Entries) != 2 {
		t.Fatalf("expected 2 backfilled entries, got %d", len(state.Entries))
	}
	if state.TranscriptCursor != state.Entries[1].EntryID {
		t.Errorf("expected cursor to match last entry id, got %d", state.TranscriptCursor)
	}
	if state.Status != types.StatusExecuting {
		t.Errorf("expected executing (trailing user message), got %q", state.Status)
	}
}

func TestSubscribe_LiveEventsArriveAfterRegistration(t *testing.T) {
	hub, transcript, _, bus, ctx := newTestHub(t)

	if _, err := transcript.Append(ctx, "sess-1", types.Header{}, nil, 1); err != nil {
		t.Fatalf("append: %v", err)
	}

	_, sub, err := hub.Subscribe(ctx, "sess-1", Cursors{})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	go func() {
		lock := bus.SessionLock("sess-1")
		lock.RLock()
		defer lock.RUnlock()
		bus.PublishSync(event.Event{Type: event.TranscriptAppended, SessionID: "sess-1", Data: "entry-2"})
	}()

	select {
	case ev := <-sub.C:
		if ev.Data != "entry-2" {
			t.Errorf("unexpected event data %v", ev.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live event")
	}
}

func TestSubscribe_PageSizeCapsBackfill(t *testing.T) {
	hub, transcript, queue, _, ctx := newTestHub(t)
	hub.pageSize = 2
	_ = queue

	for i := 0; i < 5; i++ {
		if _, err := transcript.Append(ctx, "sess-1", types.UserMessage{User: "alice"}, nil, int64(i)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	state, sub, err := hub.Subscribe(ctx, "sess-1", Cursors{})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if len(state.Entries) != 2 {
		t.Fatalf("expected page size to cap backfill at 2, got %d", len(state.Entries))
	}
}

func TestSubscribe_QueueBackfillIncludesPendingItems(t *testing.T) {
	hub, transcript, queue, _, ctx := newTestHub(t)

	if _, err := transcript.Append(ctx, "sess-1", types.Header{}, nil, 1); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := queue.Enqueue(ctx, "sess-1", types.LaneSteer, []byte(`{"user":"alice"}`), 1); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	state, sub, err := hub.Subscribe(ctx, "sess-1", Cursors{})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if len(state.Steer.Pending) != 1 {
		t.Fatalf("expected 1 pending steer item, got %d", len(state.Steer.Pending))
	}
}

func TestSubscription_CloseStopsDelivery(t *testing.T) {
	hub, transcript, _, bus, ctx := newTestHub(t)
	if _, err := transcript.Append(ctx, "sess-1", types.Header{}, nil, 1); err != nil {
		t.Fatalf("append: %v", err)
	}

	_, sub, err := hub.Subscribe(ctx, "sess-1", Cursors{})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sub.Close()

	lock := bus.SessionLock("sess-1")
	lock.RLock()
	bus.PublishSync(event.Event{Type: event.TranscriptAppended, SessionID: "sess-1", Data: "after-close"})
	lock.RUnlock()

	select {
	case ev, ok := <-sub.C:
		if ok {
			t.Fatalf("expected no further delivery after Close, got %v", ev)
		}
	case <-time.After(100 * time.Millisecond):
		// no delivery within the window: expected.
	}
}
