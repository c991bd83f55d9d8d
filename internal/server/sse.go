// SSE Implementation Note:
//
// This keeps a hand-rolled Server-Sent Events writer rather than a
// third-party client/server SSE package: it is small, integrates
// directly with the Subscription Hub's channel-based API, and a
// heavier SSE framework would add an adapter layer for no benefit
// over ~60 lines of net/http.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wuhu-dev/wuhu/internal/event"
	"github.com/wuhu-dev/wuhu/internal/subscription"
	"github.com/wuhu-dev/wuhu/pkg/types"
)

// sseHeartbeatInterval keeps idle connections (and any intermediate
// proxy) from timing out a long-lived follow/prompt stream.
const sseHeartbeatInterval = 30 * time.Second

var errNoFlush = errors.New("streaming not supported by response writer")

// SessionStreamEvent is the wire shape of spec.md §6's
// `SessionStreamEvent`, JSON-tagged by Type. Only the fields relevant
// to a given Type are populated.
type SessionStreamEvent struct {
	Type  string       `json:"type"`
	Entry *types.Entry `json:"entry,omitempty"`
	Delta string       `json:"delta,omitempty"`
}

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errNoFlush
	}
	return &sseWriter{w: w, flusher: flusher, rc: http.NewResponseController(w)}, nil
}

func (s *sseWriter) writeEvent(ev SessionStreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *sseWriter) writeHeartbeat() {
	fmt.Fprint(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// writeBackfillFrames replays a Subscribe call's initial_state as
// entry_appended frames, so a follow stream's client sees the same
// event shape whether an entry arrived in backfill or live.
func writeBackfillFrames(sse *sseWriter, state subscription.InitialState) {
	for i := range state.Entries {
		sse.writeEvent(SessionStreamEvent{Type: "entry_appended", Entry: &state.Entries[i]})
	}
	if state.Partial != nil {
		if text := partialText(state.Partial); text != "" {
			sse.writeEvent(SessionStreamEvent{Type: "assistant_text_delta", Delta: text})
		}
	}
}

func partialText(msg *types.AssistantMessage) string {
	var text string
	for _, c := range msg.Content {
		if t, ok := c.(types.TextContent); ok {
			text += t.Text
		}
	}
	return text
}

// translateEvent maps a bus event onto its SessionStreamEvent frame
// (nil when the event carries nothing a v2 stream client needs) and
// reports whether it signals the turn returning to idle/stopped.
func translateEvent(ev event.Event) (*SessionStreamEvent, bool) {
	switch ev.Type {
	case event.TranscriptAppended:
		entry, ok := ev.Data.(types.Entry)
		if !ok {
			return nil, false
		}
		return &SessionStreamEvent{Type: "entry_appended", Entry: &entry}, false

	case event.StreamDelta:
		delta, _ := ev.Data.(string)
		return &SessionStreamEvent{Type: "assistant_text_delta", Delta: delta}, false

	case event.StatusUpdated:
		status, _ := ev.Data.(types.Status)
		return nil, status == types.StatusIdle || status == types.StatusStopped

	default:
		return nil, false
	}
}

// streamSession writes the SSE headers, then drains sub's events onto
// the response via runStream, translating bus events into
// SessionStreamEvent frames, until the session goes idle/stopped,
// stopAfterIdle's 500ms hold elapses, deadline (zero means none)
// passes, or the client disconnects. A terminal `done` frame is
// written unless the client disconnected or a frame write failed. The
// follow endpoint, which writes backfill frames first, calls
// startStream and runStream itself instead.
func streamSession(w http.ResponseWriter, r *http.Request, sub *subscription.Subscription, stopAfterIdle bool, deadline time.Time) {
	sse, err := startStream(w)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{Kind: "internal", Message: err.Error()}})
		return
	}
	runStream(r, sse, sub, stopAfterIdle, deadline)
}

// startStream writes the SSE response headers and returns a writer
// ready for writeEvent calls.
func startStream(w http.ResponseWriter) (*sseWriter, error) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sse, err := newSSEWriter(w)
	if err != nil {
		return nil, err
	}
	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()
	return sse, nil
}

func runStream(r *http.Request, sse *sseWriter, sub *subscription.Subscription, stopAfterIdle bool, deadline time.Time) {
	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()

	var idleTimer *time.Timer
	var idleFired <-chan time.Time
	stopIdleTimer := func() {
		if idleTimer != nil {
			idleTimer.Stop()
		}
	}
	defer stopIdleTimer()

	var deadlineCh <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		deadlineCh = timer.C
	}

	for {
		select {
		case <-r.Context().Done():
			return

		case ev, ok := <-sub.C:
			if !ok {
				sse.writeEvent(SessionStreamEvent{Type: "done"})
				return
			}
			frame, closes := translateEvent(ev)
			if frame != nil {
				if err := sse.writeEvent(*frame); err != nil {
					return
				}
			}
			if closes {
				if stopAfterIdle {
					stopIdleTimer()
					idleTimer = time.NewTimer(500 * time.Millisecond)
					idleFired = idleTimer.C
					continue
				}
				sse.writeEvent(SessionStreamEvent{Type: "done"})
				return
			}
			stopIdleTimer()
			idleFired = nil

		case <-idleFired:
			sse.writeEvent(SessionStreamEvent{Type: "done"})
			return

		case <-deadlineCh:
			sse.writeEvent(SessionStreamEvent{Type: "done"})
			return

		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}
