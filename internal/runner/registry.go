package runner

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/wuhu-dev/wuhu/internal/logging"
	"github.com/wuhu-dev/wuhu/internal/wuhuerr"
	"github.com/wuhu-dev/wuhu/pkg/types"
)

// Registry tracks runner_name -> active Link under a sync.RWMutex:
// mutations take the write lock and lookups (Get, Snapshot) take the
// read lock, so lookups are not lock-free.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Link
	log  zerolog.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		byID: make(map[string]*Link),
		log:  logging.Component("runner.registry"),
	}
}

// Get returns the active link for a runner name, if connected.
func (r *Registry) Get(name string) (*Link, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.byID[name]
	return l, ok
}

// Snapshot returns every currently-connected runner's name and last-seen time.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.byID))
	for name, l := range r.byID {
		out = append(out, Info{Name: name, LastSeen: l.LastSeen()})
	}
	return out
}

// Info is a connected runner's identity plus liveness timestamp.
type Info struct {
	Name     string    `json:"name"`
	LastSeen time.Time `json:"lastSeen"`
}

func (r *Registry) register(l *Link) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byID[l.name]; ok {
		existing.Close()
	}
	r.byID[l.name] = l
	r.log.Info().Str("runner", l.name).Msg("runner connected")
}

func (r *Registry) unregister(l *Link) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.byID[l.name]; ok && current == l {
		delete(r.byID, l.name)
		r.log.Info().Str("runner", l.name).Msg("runner disconnected")
	}
}

// ServeWS upgrades an incoming connection, waits for its hello frame,
// registers the link, and blocks serving it until the connection
// closes. Runners that connect to the server (the preferred
// direction per spec) hit this handler.
func (r *Registry) ServeWS(w http.ResponseWriter, req *http.Request) {
	conn, err := websocket.Accept(w, req, nil)
	if err != nil {
		r.log.Error().Err(err).Msg("runner ws accept failed")
		return
	}
	r.serve(req.Context(), conn)
}

// Dial connects out to a runner at address (the "server dials the
// runner" direction spec.md allows) and serves it the same way.
func (r *Registry) Dial(ctx context.Context, address string) error {
	conn, _, err := websocket.Dial(ctx, address, nil)
	if err != nil {
		return wuhuerr.Wrap(wuhuerr.Transport, err, "dial runner at "+address)
	}
	go r.serve(ctx, conn)
	return nil
}

func (r *Registry) serve(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close(websocket.StatusInternalError, "link closed")

	var hello types.Frame
	if err := wsjson.Read(ctx, conn, &hello); err != nil || hello.Type != types.FrameHello {
		r.log.Warn().Err(err).Msg("runner link did not send hello")
		return
	}
	var h types.Hello
	if err := decodeFrameData(hello, &h); err != nil || h.RunnerName == "" {
		r.log.Warn().Msg("runner hello missing runner_name")
		return
	}

	// Reply with our own hello so either dial direction completes the
	// handshake symmetrically.
	reply, _ := types.Encode(types.FrameHello, types.Hello{RunnerName: "wuhu-server", Version: "1"})
	_ = wsjson.Write(ctx, conn, reply)

	link := newLink(h.RunnerName, conn)
	r.register(link)
	defer r.unregister(link)

	if err := link.readLoop(ctx); err != nil {
		r.log.Debug().Err(err).Str("runner", h.RunnerName).Msg("runner link closed")
	}
}

func decodeFrameData(f types.Frame, v any) error {
	return json.Unmarshal(f.Data, v)
}
