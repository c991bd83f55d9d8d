// Package tool implements the engine's built-in tool set: read,
// write, edit, bash, async_bash, grep, ls, find.
package tool

import (
	"context"
	"encoding/json"

	"github.com/wuhu-dev/wuhu/pkg/types"
)

// Tool is one named, JSON-schema-described capability the agent loop
// can dispatch a tool call to.
type Tool interface {
	ID() string
	Description() string
	Parameters() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage, toolCtx *Context) (*Result, error)
}

// Context carries per-call state a tool's Execute needs: the working
// directory to resolve relative paths against, and a cancellation
// channel exposed through IsAborted. The built-in tools, bash
// included, stop on ctx cancellation and do not read the channel.
type Context struct {
	SessionID  string
	ToolCallID string
	WorkDir    string
	AbortCh    <-chan struct{}

	// OnAsyncComplete is invoked by async_bash when its detached
	// command finishes, to enqueue the system_urgent completion
	// notice. Nil in contexts where async dispatch isn't wired (e.g.
	// unit tests exercising the tool directly).
	OnAsyncComplete func(taskID string, payload types.SystemUrgentPayload)
}

// IsAborted reports whether the in-flight turn has been cancelled.
func (c *Context) IsAborted() bool {
	select {
	case <-c.AbortCh:
		return true
	default:
		return false
	}
}

// Result is a tool's outcome: a content block list plus an
// executor-private Details blob and the is_error flag that
// distinguishes a tool-reported failure (shown to the LLM) from an
// executor exception (wrapped by the caller into the same shape with
// ExecutorFault semantics per spec §4.4).
type Result struct {
	Content types.ContentList
	Details json.RawMessage
	IsError bool
}

// TextResult is a convenience constructor for the common case of a
// single text content block.
func TextResult(text string, isError bool) *Result {
	return &Result{
		Content: types.ContentList{types.TextContent{Text: text}},
		IsError: isError,
	}
}
