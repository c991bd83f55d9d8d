// Package runner implements the server side of the runner wire
// protocol: a WebSocket link per connected runner carrying
// hello/resolve_environment/register_session/tool_request frames.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/wuhu-dev/wuhu/internal/wuhuerr"
	"github.com/wuhu-dev/wuhu/pkg/types"
)

// Link is one connected runner's WebSocket session. It owns the
// request/response correlation for tool_request and
// resolve_environment_request frames issued against this runner.
type Link struct {
	name     string
	conn     *websocket.Conn
	lastSeen time.Time

	mu      sync.Mutex
	pending map[string]chan types.Frame
}

func newLink(name string, conn *websocket.Conn) *Link {
	return &Link{
		name:     name,
		conn:     conn,
		lastSeen: time.Now(),
		pending:  make(map[string]chan types.Frame),
	}
}

// Name is the runner_name this link authenticated as in its hello frame.
func (l *Link) Name() string { return l.name }

// LastSeen is the last time a frame was read from this link.
func (l *Link) LastSeen() time.Time { return l.lastSeen }

// ResolveEnvironment asks the runner to resolve a named environment
// for a session, blocking until resolve_environment_response arrives
// or ctx is done.
func (l *Link) ResolveEnvironment(ctx context.Context, req types.ResolveEnvironmentRequest) (types.ResolveEnvironmentResponse, error) {
	frame, err := types.Encode(types.FrameResolveEnvironmentRequest, req)
	if err != nil {
		return types.ResolveEnvironmentResponse{}, wuhuerr.Wrap(wuhuerr.Transport, err, "encode resolve_environment_request")
	}

	respCh := l.await(req.ID)
	defer l.cancelAwait(req.ID)

	if err := l.send(ctx, frame); err != nil {
		return types.ResolveEnvironmentResponse{}, err
	}

	select {
	case resp := <-respCh:
		var out types.ResolveEnvironmentResponse
		if err := json.Unmarshal(resp.Data, &out); err != nil {
			return types.ResolveEnvironmentResponse{}, wuhuerr.Wrap(wuhuerr.Decoding, err, "decode resolve_environment_response")
		}
		return out, nil
	case <-ctx.Done():
		return types.ResolveEnvironmentResponse{}, wuhuerr.New(wuhuerr.Cancelled, "resolve_environment_request cancelled")
	}
}

// RegisterSession tells the runner which environment a session is bound to.
func (l *Link) RegisterSession(ctx context.Context, msg types.RegisterSession) error {
	frame, err := types.Encode(types.FrameRegisterSession, msg)
	if err != nil {
		return wuhuerr.Wrap(wuhuerr.Transport, err, "encode register_session")
	}
	return l.send(ctx, frame)
}

// ToolRequest dispatches one tool call over this link and blocks
// until tool_response arrives or ctx is done.
func (l *Link) ToolRequest(ctx context.Context, req types.ToolRequest) (types.ToolResponse, error) {
	frame, err := types.Encode(types.FrameToolRequest, req)
	if err != nil {
		return types.ToolResponse{}, wuhuerr.Wrap(wuhuerr.Transport, err, "encode tool_request")
	}

	respCh := l.await(req.ID)
	defer l.cancelAwait(req.ID)

	if err := l.send(ctx, frame); err != nil {
		return types.ToolResponse{}, err
	}

	select {
	case resp := <-respCh:
		var out types.ToolResponse
		if err := json.Unmarshal(resp.Data, &out); err != nil {
			return types.ToolResponse{}, wuhuerr.Wrap(wuhuerr.Decoding, err, "decode tool_response")
		}
		return out, nil
	case <-ctx.Done():
		return types.ToolResponse{}, wuhuerr.New(wuhuerr.Cancelled, "tool_request cancelled")
	}
}

func (l *Link) send(ctx context.Context, frame types.Frame) error {
	if err := wsjson.Write(ctx, l.conn, frame); err != nil {
		return wuhuerr.Wrap(wuhuerr.Transport, err, fmt.Sprintf("write %s frame", frame.Type))
	}
	return nil
}

func (l *Link) await(id string) chan types.Frame {
	ch := make(chan types.Frame, 1)
	l.mu.Lock()
	l.pending[id] = ch
	l.mu.Unlock()
	return ch
}

func (l *Link) cancelAwait(id string) {
	l.mu.Lock()
	delete(l.pending, id)
	l.mu.Unlock()
}

// deliver routes an inbound response frame to its waiting caller by
// the id embedded in its data payload.
func (l *Link) deliver(id string, frame types.Frame) bool {
	l.mu.Lock()
	ch, ok := l.pending[id]
	if ok {
		delete(l.pending, id)
	}
	l.mu.Unlock()
	if !ok {
		return false
	}
	ch <- frame
	return true
}

// readLoop reads frames from the connection until it closes,
// correlating responses to pending requests; any other frame type
// arriving on a link past its hello handshake is ignored.
func (l *Link) readLoop(ctx context.Context) error {
	for {
		var frame types.Frame
		if err := wsjson.Read(ctx, l.conn, &frame); err != nil {
			return err
		}
		l.lastSeen = time.Now()

		switch frame.Type {
		case types.FrameResolveEnvironmentResponse:
			var payload struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(frame.Data, &payload); err == nil {
				l.deliver(payload.ID, frame)
			}
		case types.FrameToolResponse:
			var payload struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(frame.Data, &payload); err == nil {
				l.deliver(payload.ID, frame)
			}
		}
	}
}

// Close terminates the underlying connection.
func (l *Link) Close() error {
	return l.conn.Close(websocket.StatusNormalClosure, "closing")
}
