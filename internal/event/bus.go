// Package event provides the pub/sub event bus used by the
// Subscription Hub to fan session events out to HTTP/SSE listeners.
package event

import (
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Type is one of the event vocabulary members a subscriber may
// receive after backfill.
type Type string

const (
	TranscriptAppended Type = "transcript_appended"
	SystemUrgentQueue  Type = "system_urgent_queue"
	UserQueue          Type = "user_queue"
	SettingsUpdated    Type = "settings_updated"
	StatusUpdated      Type = "status_updated"
	StreamBegan        Type = "stream_began"
	StreamDelta        Type = "stream_delta"
	StreamEnded        Type = "stream_ended"
)

// Replayable reports whether events of this type are re-derivable
// from cursors and therefore exactly consistent with a post-hoc
// read, as opposed to the ephemeral stream_* events.
func (t Type) Replayable() bool {
	switch t {
	case StreamBegan, StreamDelta, StreamEnded:
		return false
	default:
		return true
	}
}

// Event is one published occurrence, always scoped to a session.
type Event struct {
	Type      Type   `json:"type"`
	SessionID string `json:"sessionID"`
	Data      any    `json:"data"`
}

// Subscriber receives events synchronously; it must not block.
type Subscriber func(Event)

type subscriberEntry struct {
	id        uint64
	sessionID string // "" means global (all sessions)
	fn        Subscriber
}

// Bus is a session-scoped pub/sub bus with a direct typed callback
// API: PublishSync calls the matching subscribers itself, so events
// are never marshalled into watermill's []byte envelope. NewBus also
// creates a watermill in-process gochannel, exposed through PubSub()
// and closed by Close; events published with PublishSync do not pass
// through it.
type Bus struct {
	mu          sync.RWMutex
	pubsub      *gochannel.GoChannel
	subscribers []subscriberEntry
	nextID      uint64
	closed      bool

	sessionLocksMu sync.Mutex
	sessionLocks   map[string]*sync.RWMutex
}

// NewBus constructs an independent bus instance. Production wiring
// creates one Bus per server process; tests create one per case.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 256, Persistent: false},
			watermill.NopLogger{},
		),
		sessionLocks: make(map[string]*sync.RWMutex),
	}
}

// SessionLock returns the per-session coordination lock for
// sessionID, creating it on first use. A publisher (the session
// actor) holds this for reading while it publishes; the Subscription
// Hub holds it for writing while it registers a subscriber and takes
// its initial_state backfill snapshot, so no event can be emitted
// into that gap (spec §4.6 step 1).
func (b *Bus) SessionLock(sessionID string) *sync.RWMutex {
	b.sessionLocksMu.Lock()
	defer b.sessionLocksMu.Unlock()
	lock, ok := b.sessionLocks[sessionID]
	if !ok {
		lock = &sync.RWMutex{}
		b.sessionLocks[sessionID] = lock
	}
	return lock
}

func (b *Bus) newID() uint64 { return atomic.AddUint64(&b.nextID, 1) }

// Subscribe registers fn for events belonging to sessionID. Returns
// an unsubscribe function.
func (b *Bus) Subscribe(sessionID string, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	id := b.newID()
	b.subscribers = append(b.subscribers, subscriberEntry{id: id, sessionID: sessionID, fn: fn})
	return func() { b.unsubscribe(id) }
}

// SubscribeAll registers fn for events across every session.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	return b.Subscribe("", fn)
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.subscribers {
		if e.id == id {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// PublishSync delivers ev to matching subscribers synchronously, in
// the calling goroutine. The Subscription Hub relies on this: the
// session actor publishes while holding SessionLock for reading and
// the Hub registers subscribers while holding it for writing, so no
// event can land between a subscriber's registration and its
// initial_state backfill (spec §4.6 step 1).
func (b *Bus) PublishSync(ev Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	matching := make([]Subscriber, 0, len(b.subscribers))
	for _, e := range b.subscribers {
		if e.sessionID == "" || e.sessionID == ev.SessionID {
			matching = append(matching, e.fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range matching {
		fn(ev)
	}
}

// Close tears down the bus. Pending subscribers are dropped.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.subscribers = nil
	b.mu.Unlock()
	return b.pubsub.Close()
}

// PubSub exposes the underlying watermill GoChannel for components
// that want broker-style routing (topic wildcards, middleware)
// instead of the typed Subscribe API above.
func (b *Bus) PubSub() *gochannel.GoChannel {
	return b.pubsub
}
