package subscription

import (
	"context"
	"sync/atomic"

	"github.com/wuhu-dev/wuhu/internal/event"
	"github.com/wuhu-dev/wuhu/internal/session"
	"github.com/wuhu-dev/wuhu/internal/storage"
	"github.com/wuhu-dev/wuhu/pkg/types"
)

// DefaultTranscriptPageSize bounds how many transcript entries a
// Subscribe call's initial_state carries before the caller must page
// further with a plain transcript read.
const DefaultTranscriptPageSize = 200

// DefaultBufferSize is the per-subscriber channel buffer. A full
// buffer drops the newest event rather than blocking the session
// actor's publish call.
const DefaultBufferSize = 64

// Cursors are the per-stream watermarks a subscriber already holds;
// nil means "from the beginning" for that stream.
type Cursors struct {
	TranscriptSince *int64
	SystemSince     *int64
	SteerSince      *int64
	FollowUpSince   *int64
}

// InitialState is what a subscriber receives atomically at
// registration time, before any live event.
type InitialState struct {
	Settings         types.Settings  `json:"settings"`
	Status           types.Status    `json:"status"`
	Entries          []types.Entry   `json:"entries"`
	TranscriptCursor int64           `json:"transcriptCursor"`
	SystemUrgent     types.Backfill  `json:"systemUrgent"`
	Steer            types.Backfill  `json:"steer"`
	FollowUp         types.Backfill  `json:"followUp"`
	Partial          *types.AssistantMessage `json:"partial,omitempty"`
}

// Subscription is a live handle on a session's event stream. Events
// arrive on C until Close is called; the Hub's delivery callback
// never blocks, so a slow reader risks dropped (not stalled) events —
// Dropped reports how many.
type Subscription struct {
	C       <-chan event.Event
	Dropped func() int
	close   func()
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() { s.close() }

// Hub serves subscribe-then-backfill requests. One Hub per process,
// shared across every session; per-session coordination is done via
// event.Bus.SessionLock rather than a lock owned by the Hub itself,
// so the same guarantee holds regardless of how many Hub instances a
// future transport layer constructs.
type Hub struct {
	bus        *event.Bus
	transcript *storage.TranscriptStore
	queue      *storage.QueueStore
	manager    *session.Manager
	pageSize   int
	bufSize    int
}

// Option configures a Hub at construction.
type Option func(*Hub)

// WithPageSize overrides DefaultTranscriptPageSize.
func WithPageSize(n int) Option { return func(h *Hub) { h.pageSize = n } }

// WithBufferSize overrides DefaultBufferSize.
func WithBufferSize(n int) Option { return func(h *Hub) { h.bufSize = n } }

func NewHub(bus *event.Bus, transcript *storage.TranscriptStore, queue *storage.QueueStore, manager *session.Manager, opts ...Option) *Hub {
	h := &Hub{bus: bus, transcript: transcript, queue: queue, manager: manager, pageSize: DefaultTranscriptPageSize, bufSize: DefaultBufferSize}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers for sessionID's live events and returns an
// atomically-consistent initial_state alongside the subscription.
//
// Registration and the backfill snapshot happen under the write side
// of the session's lock; the session actor's publishEntry/publishEvent
// hold the read side while publishing (internal/session/actor.go). So
// no event the actor emits can land in the gap between a subscriber
// registering and its snapshot being taken — the actor is simply
// blocked from publishing for that instant.
func (h *Hub) Subscribe(ctx context.Context, sessionID string, cursors Cursors) (InitialState, *Subscription, error) {
	lock := h.bus.SessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	events := make(chan event.Event, h.bufSize)
	var dropped int64
	unsub := h.bus.Subscribe(sessionID, func(e event.Event) {
		select {
		case events <- e:
		default:
			atomic.AddInt64(&dropped, 1)
		}
	})

	state, err := h.snapshot(ctx, sessionID, cursors)
	if err != nil {
		unsub()
		return InitialState{}, nil, err
	}

	sub := &Subscription{
		C:       events,
		Dropped: func() int { return int(atomic.LoadInt64(&dropped)) },
		close:   unsub,
	}
	return state, sub, nil
}

func (h *Hub) snapshot(ctx context.Context, sessionID string, cursors Cursors) (InitialState, error) {
	sess, err := h.transcript.GetSession(ctx, sessionID)
	if err != nil {
		return InitialState{}, err
	}

	full, err := h.transcript.Read(ctx, sessionID, nil, nil)
	if err != nil {
		return InitialState{}, err
	}
	status, _ := session.InferStatus(full)

	page, err := h.transcript.Read(ctx, sessionID, cursors.TranscriptSince, nil)
	if err != nil {
		return InitialState{}, err
	}
	if len(page) > h.pageSize {
		page = page[:h.pageSize]
	}
	cursor := int64(0)
	if cursors.TranscriptSince != nil {
		cursor = *cursors.TranscriptSince
	}
	if len(page) > 0 {
		cursor = page[len(page)-1].EntryID
	}

	systemUrgent, err := h.queue.Snapshot(ctx, sessionID, types.LaneSystemUrgent, cursors.SystemSince)
	if err != nil {
		return InitialState{}, err
	}
	steer, err := h.queue.Snapshot(ctx, sessionID, types.LaneSteer, cursors.SteerSince)
	if err != nil {
		return InitialState{}, err
	}
	followUp, err := h.queue.Snapshot(ctx, sessionID, types.LaneFollowUp, cursors.FollowUpSince)
	if err != nil {
		return InitialState{}, err
	}

	var partial *types.AssistantMessage
	if h.manager != nil {
		if a, ok := h.manager.Lookup(sessionID); ok {
			partial = a.CurrentPartial()
		}
	}

	return InitialState{
		Settings:         types.Settings{ProviderID: sess.ProviderID, ModelID: sess.ModelID, ReasoningEffort: sess.ReasoningEffort},
		Status:           status,
		Entries:          page,
		TranscriptCursor: cursor,
		SystemUrgent:     systemUrgent,
		Steer:            steer,
		FollowUp:         followUp,
		Partial:          partial,
	}, nil
}
