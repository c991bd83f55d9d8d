package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wuhu-dev/wuhu/internal/config"
	"github.com/wuhu-dev/wuhu/internal/event"
	"github.com/wuhu-dev/wuhu/internal/logging"
	"github.com/wuhu-dev/wuhu/internal/provider"
	"github.com/wuhu-dev/wuhu/internal/storage"
	"github.com/wuhu-dev/wuhu/internal/tool"
	"github.com/wuhu-dev/wuhu/internal/toolexec"
	"github.com/wuhu-dev/wuhu/pkg/types"
)

// maxToolRounds bounds how many tool-call rounds a single wake may
// run before the actor forces a stop, a safety valve against a model
// stuck issuing tool calls forever.
const maxToolRounds = 50

// Deps are the shared, process-wide collaborators every Actor is
// built from. They must all be internally concurrency-safe: many
// actors run against the same TranscriptStore/QueueStore/Bus.
type Deps struct {
	Transcript  *storage.TranscriptStore
	Queue       *storage.QueueStore
	Tools       *toolexec.Executor
	ToolCatalog *tool.Registry
	Bus         *event.Bus
}

// stopResult is what Stop reports back to its caller once the
// in-flight turn has actually finished unwinding.
type stopResult struct {
	StopEntry *types.Entry
	Repaired  []types.Entry
}

// Actor is one session's single-threaded agent loop. All transcript
// mutation for a session flows through this type's run goroutine;
// everything else (Prompt, Stop, SetModel, enqueue) either writes
// directly to shared storage (safe, since storage serializes itself)
// or flips a lock-guarded flag the run goroutine observes at its next
// checkpoint.
type Actor struct {
	id      string
	workDir string
	deps    Deps

	providers *provider.Registry
	log       zerolog.Logger

	wake chan struct{}

	mu              sync.Mutex
	state           State
	cancel          context.CancelFunc
	stopRequested   bool
	stopWaiters     []chan stopResult
	pendingSettings *types.Settings
	toolRounds      int
	partial         *types.AssistantMessage
}

// CurrentPartial returns the in-flight assistant message's latest
// accumulated state, or nil when no stream is active. The Subscription
// Hub includes this in a subscriber's initial_state when mid-stream
// (spec.md §4.6 step 2).
func (a *Actor) CurrentPartial() *types.AssistantMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.partial
}

// NewActor builds an actor for sessionID. cfg is used once, to
// construct a provider registry whose retry/give-up telemetry is
// bound to this session's transcript (see emitRetry) — a fresh
// registry per actor rather than a shared one, since a provider's
// llm.retry callback has no per-call session parameter to thread
// through.
func NewActor(sessionID, workDir string, deps Deps, cfg *config.Config) *Actor {
	a := &Actor{
		id:      sessionID,
		workDir: workDir,
		deps:    deps,
		state:   StateIdle,
		wake:    make(chan struct{}, 1),
		log:     logging.Component("session.actor").With().Str("session", sessionID).Logger(),
	}
	a.providers = provider.InitializeFromConfig(cfg, a.emitRetry)
	return a
}

// Start launches the actor's run goroutine. It returns immediately;
// ctx governs the actor's entire lifetime, not one turn.
func (a *Actor) Start(ctx context.Context) {
	go a.run(ctx)
	a.nudge()
}

func (a *Actor) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.wake:
		}
		a.tick(ctx)
	}
}

func (a *Actor) nudge() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *Actor) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func (a *Actor) currentState() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Actor) isStopRequested() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopRequested
}

// Prompt appends a user message directly when the actor is idle, or
// queues it onto the steer lane when a turn is already in flight, so
// a live prompt call can interrupt the current tool-call round the
// same way an already-queued steer message would.
func (a *Actor) Prompt(ctx context.Context, user string, content types.ContentList) (*types.Entry, *types.QueueItem, error) {
	if a.currentState() == StateIdle || a.currentState() == StateStopped {
		a.setState(StateDrafting)
		entry, err := a.deps.Transcript.Append(ctx, a.id, types.UserMessage{User: user, Content: content, Timestamp: nowMillis()}, nil, nowMillis())
		if err != nil {
			a.setState(StateIdle)
			return nil, nil, err
		}
		a.publishEntry(entry)
		a.nudge()
		return &entry, nil, nil
	}

	payload, err := json.Marshal(types.UserQueuePayload{User: user, Content: content})
	if err != nil {
		return nil, nil, err
	}
	item, err := a.deps.Queue.Enqueue(ctx, a.id, types.LaneSteer, payload, nowMillis())
	if err != nil {
		return nil, nil, err
	}
	a.publishEvent(event.UserQueue, item)
	return nil, &item, nil
}

// Stop requests cancellation of the current turn and blocks until the
// actor's own goroutine has finished the stop-finalization sequence
// (spec.md §4.5 "Stop"), or ctx is done first. It is a no-op,
// returning immediately, when the actor is already idle.
func (a *Actor) Stop(ctx context.Context) (*types.Entry, []types.Entry, error) {
	a.mu.Lock()
	if a.state == StateIdle {
		a.mu.Unlock()
		return nil, nil, nil
	}
	a.stopRequested = true
	cancelFn := a.cancel
	waitCh := make(chan stopResult, 1)
	a.stopWaiters = append(a.stopWaiters, waitCh)
	a.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
	} else {
		// No turn is currently streaming/executing (e.g. between
		// checkpoints); nudge so the run loop observes stopRequested
		// promptly instead of waiting for the next natural wake.
		a.nudge()
	}

	select {
	case res := <-waitCh:
		return res.StopEntry, res.Repaired, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// SetModel applies a provider/model/reasoning-effort change
// immediately if the actor is idle, or records it as pending,
// applied at the next Idle boundary, if a turn is in flight (spec.md
// §4.5 "Model switch").
func (a *Actor) SetModel(ctx context.Context, providerID, modelID, reasoningEffort string) (applied bool, err error) {
	a.mu.Lock()
	if a.state != StateIdle && a.state != StateStopped {
		a.pendingSettings = &types.Settings{ProviderID: providerID, ModelID: modelID, ReasoningEffort: reasoningEffort}
		a.mu.Unlock()
		return false, nil
	}
	a.mu.Unlock()

	if err := a.applySettings(ctx, providerID, modelID, reasoningEffort); err != nil {
		return false, err
	}
	return true, nil
}

func (a *Actor) applySettings(ctx context.Context, providerID, modelID, reasoningEffort string) error {
	if err := a.deps.Transcript.UpdateSettings(ctx, a.id, providerID, modelID, reasoningEffort); err != nil {
		return err
	}
	entry, err := a.deps.Transcript.Append(ctx, a.id, types.SessionSettingsPayload{
		Provider: providerID, Model: modelID, ReasoningEffort: reasoningEffort,
	}, nil, nowMillis())
	if err != nil {
		return err
	}
	a.publishEntry(entry)
	a.publishEvent(event.SettingsUpdated, types.Settings{ProviderID: providerID, ModelID: modelID, ReasoningEffort: reasoningEffort})
	return nil
}

func (a *Actor) applyPendingSettings(ctx context.Context) {
	a.mu.Lock()
	pending := a.pendingSettings
	a.pendingSettings = nil
	a.mu.Unlock()
	if pending == nil {
		return
	}
	if err := a.applySettings(ctx, pending.ProviderID, pending.ModelID, pending.ReasoningEffort); err != nil {
		a.log.Error().Err(err).Msg("apply pending model switch")
	}
}

// CancelQueueItem cancels a pending steer/follow_up item.
func (a *Actor) CancelQueueItem(ctx context.Context, lane types.Lane, itemID int64) error {
	return a.deps.Queue.Cancel(ctx, a.id, lane, itemID, nowMillis())
}

// enqueueSystemUrgent is wired as tool.Context.OnAsyncComplete: an
// async_bash completion lands on the system_urgent lane and wakes the
// actor so it gets delivered even while otherwise idle.
func (a *Actor) enqueueSystemUrgent(ctx context.Context, payload types.SystemUrgentPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	item, err := a.deps.Queue.Enqueue(ctx, a.id, types.LaneSystemUrgent, data, nowMillis())
	if err != nil {
		return err
	}
	a.publishEvent(event.SystemUrgentQueue, item)
	a.nudge()
	return nil
}

// emitRetry is bound into the per-actor provider registry's adapters
// at construction. It runs on whatever goroutine a Stream call's
// retry loop is using, which may not be the actor's own goroutine, so
// it goes through TranscriptStore directly rather than touching actor
// state.
func (a *Actor) emitRetry(payload types.CustomPayload) {
	entry, err := a.deps.Transcript.Append(context.Background(), a.id, payload, nil, nowMillis())
	if err != nil {
		a.log.Error().Err(err).Msg("append retry telemetry")
		return
	}
	a.publishEntry(entry)
}

// publishEntry and publishEvent hold the session's read lock while
// publishing so a Subscription Hub registering a subscriber (which
// takes the write side of the same lock around register+backfill)
// never sees an event land in the gap between the two.
func (a *Actor) publishEntry(entry types.Entry) {
	lock := a.deps.Bus.SessionLock(a.id)
	lock.RLock()
	defer lock.RUnlock()
	a.deps.Bus.PublishSync(event.Event{Type: event.TranscriptAppended, SessionID: a.id, Data: entry})
}

func (a *Actor) publishEvent(t event.Type, data any) {
	lock := a.deps.Bus.SessionLock(a.id)
	lock.RLock()
	defer lock.RUnlock()
	a.deps.Bus.PublishSync(event.Event{Type: t, SessionID: a.id, Data: data})
}

func nowMillis() int64 { return time.Now().UnixMilli() }
