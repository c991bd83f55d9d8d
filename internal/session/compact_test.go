package session

import (
	"context"
	"testing"

	"github.com/wuhu-dev/wuhu/internal/provider"
	"github.com/wuhu-dev/wuhu/pkg/types"
)

type fakeAdapter struct {
	id     string
	models []provider.Model
	events []provider.Event
	err    error
}

func (f *fakeAdapter) ID() string              { return f.id }
func (f *fakeAdapter) Models() []provider.Model { return f.models }

func (f *fakeAdapter) Stream(ctx context.Context, req provider.StreamRequest) (<-chan provider.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan provider.Event, len(f.events))
	for _, e := range f.events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

func TestShouldCompact(t *testing.T) {
	cases := []struct {
		name          string
		contextLength int
		messages      []provider.Message
		want          bool
	}{
		{"no context length means never compact", 0, []provider.Message{{Content: types.ContentList{types.TextContent{Text: bigText(10000)}}}}, false},
		{"well under threshold", 100000, []provider.Message{{Content: types.ContentList{types.TextContent{Text: "short"}}}}, false},
		{"over threshold", 40, []provider.Message{{Content: types.ContentList{types.TextContent{Text: bigText(200)}}}}, true},
	}
	a := &Actor{}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := a.shouldCompact(assembled{Messages: c.messages}, c.contextLength)
			if got != c.want {
				t.Errorf("shouldCompact() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestCompact_AppendsSummaryEntryAndFreezesCursor(t *testing.T) {
	a, ctx := newTestActor(t)
	mustAppend(t, a, ctx, types.Header{SystemPrompt: "sp"})
	mustAppend(t, a, ctx, types.UserMessage{Content: types.ContentList{types.TextContent{Text: "do a thing"}}})
	mustAppend(t, a, ctx, types.AssistantMessage{Content: types.ContentList{types.TextContent{Text: "done"}}})

	current, err := a.assembleContext(ctx)
	if err != nil {
		t.Fatalf("assembleContext: %v", err)
	}

	adapter := &fakeAdapter{id: "anthropic", events: []provider.Event{
		provider.TextDeltaEvent{Delta: "sum"},
		provider.TextDeltaEvent{Delta: "mary"},
		provider.DoneEvent{Final: types.AssistantMessage{Content: types.ContentList{types.TextContent{Text: "summary"}}}},
	}}

	if err := a.compact(ctx, current, adapter, "claude"); err != nil {
		t.Fatalf("compact: %v", err)
	}

	entries, err := a.deps.Transcript.Read(ctx, a.id, nil, nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	last := entries[len(entries)-1]
	comp, ok := last.Payload.(types.Compaction)
	if !ok {
		t.Fatalf("expected last entry to be a Compaction, got %T", last.Payload)
	}
	if comp.Summary != "summary" {
		t.Errorf("expected summary from deltas, got %q", comp.Summary)
	}
	if comp.FirstKeptEntry != last.EntryID {
		t.Errorf("expected FirstKeptEntry to freeze at the cursor taken before streaming, got %d (last entry %d)", comp.FirstKeptEntry, last.EntryID)
	}
}

func bigText(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}
