package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wuhu-dev/wuhu/internal/event"
	"github.com/wuhu-dev/wuhu/internal/subscription"
	"github.com/wuhu-dev/wuhu/pkg/types"
)

type mockResponseWriter struct {
	*httptest.ResponseRecorder
	flushed int
}

func (m *mockResponseWriter) Flush() { m.flushed++ }

func newMockResponseWriter() *mockResponseWriter {
	return &mockResponseWriter{ResponseRecorder: httptest.NewRecorder()}
}

func TestNewSSEWriter_AcceptsResponseRecorder(t *testing.T) {
	if _, err := newSSEWriter(httptest.NewRecorder()); err != nil {
		t.Fatalf("httptest.ResponseRecorder implements Flusher, expected no error: %v", err)
	}
}

func TestSSEWriter_WriteEvent(t *testing.T) {
	w := newMockResponseWriter()
	sse, err := newSSEWriter(w)
	if err != nil {
		t.Fatalf("newSSEWriter: %v", err)
	}
	if err := sse.writeEvent(SessionStreamEvent{Type: "idle"}); err != nil {
		t.Fatalf("writeEvent: %v", err)
	}
	body := w.Body.String()
	if !strings.Contains(body, "event: idle") || !strings.Contains(body, `"type":"idle"`) {
		t.Errorf("unexpected SSE frame: %q", body)
	}
}

func TestTranslateEvent(t *testing.T) {
	entry := types.Entry{EntryID: 1, SessionID: "s1"}

	frame, closes := translateEvent(event.Event{Type: event.TranscriptAppended, Data: entry})
	if frame == nil || frame.Type != "entry_appended" || frame.Entry == nil || frame.Entry.EntryID != 1 {
		t.Fatalf("unexpected frame for TranscriptAppended: %+v", frame)
	}
	if closes {
		t.Error("TranscriptAppended must not close the stream")
	}

	frame, closes = translateEvent(event.Event{Type: event.StreamDelta, Data: "hello"})
	if frame == nil || frame.Type != "assistant_text_delta" || frame.Delta != "hello" {
		t.Fatalf("unexpected frame for StreamDelta: %+v", frame)
	}
	if closes {
		t.Error("StreamDelta must not close the stream")
	}

	frame, closes = translateEvent(event.Event{Type: event.StatusUpdated, Data: types.StatusExecuting})
	if frame != nil || closes {
		t.Errorf("StatusExecuting must not close the stream, got frame=%+v closes=%v", frame, closes)
	}

	frame, closes = translateEvent(event.Event{Type: event.StatusUpdated, Data: types.StatusIdle})
	if frame != nil || !closes {
		t.Errorf("StatusIdle must close the stream with no frame, got frame=%+v closes=%v", frame, closes)
	}

	frame, closes = translateEvent(event.Event{Type: event.StatusUpdated, Data: types.StatusStopped})
	if frame != nil || !closes {
		t.Errorf("StatusStopped must close the stream with no frame, got frame=%+v closes=%v", frame, closes)
	}

	frame, closes = translateEvent(event.Event{Type: event.SettingsUpdated, Data: nil})
	if frame != nil || closes {
		t.Errorf("unrecognized-for-streaming event types must be ignored, got frame=%+v closes=%v", frame, closes)
	}
}

func TestStreamSession_EndsWithDoneOnStatusIdle(t *testing.T) {
	events := make(chan event.Event, 4)
	sub := &subscription.Subscription{C: events, Dropped: func() int { return 0 }}

	events <- event.Event{Type: event.TranscriptAppended, Data: types.Entry{EntryID: 1}}
	events <- event.Event{Type: event.StatusUpdated, Data: types.StatusIdle}

	req := httptest.NewRequest(http.MethodGet, "/v2/sessions/s1/prompt", nil)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		streamSession(w, req, sub, false, time.Time{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("streamSession did not return")
	}

	body := w.Body.String()
	if !strings.Contains(body, `"type":"entry_appended"`) {
		t.Errorf("expected entry_appended frame, got %q", body)
	}
	if !strings.Contains(body, `"type":"done"`) {
		t.Errorf("expected terminal done frame, got %q", body)
	}
}

func TestStreamSession_ClientDisconnectEndsImmediately(t *testing.T) {
	events := make(chan event.Event)
	sub := &subscription.Subscription{C: events, Dropped: func() int { return 0 }}

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/v2/sessions/s1/follow", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		streamSession(w, req, sub, false, time.Time{})
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("streamSession did not return after client disconnect")
	}
}

