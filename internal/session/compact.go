package session

import (
	"context"
	"strings"

	"github.com/wuhu-dev/wuhu/internal/provider"
	"github.com/wuhu-dev/wuhu/pkg/types"
)

// compactionThreshold is the fraction of a model's context window
// that context assembly may occupy before a turn boundary triggers
// compaction (spec.md §4.5 "Compaction").
const compactionThreshold = 0.75

// compactionSystemPrompt is the instruction given to the model when
// summarizing a transcript prefix for compaction.
const compactionSystemPrompt = `You are a conversation summarizer. Create a concise summary of the conversation that preserves key context for continuing the discussion.

Focus on:
1. What was accomplished
2. Current work in progress
3. Files involved
4. Next steps
5. Any key user requests or constraints

Be concise but detailed enough that work can continue seamlessly.`

// estimateTokens is a rough, tokenizer-free estimate (characters / 4)
// used only to decide whether compaction should fire, not for
// accounting sent to a provider.
func estimateTokens(ctx assembled) int {
	n := len(ctx.SystemPrompt)
	for _, m := range ctx.Messages {
		for _, item := range m.Content {
			if text, ok := item.(types.TextContent); ok {
				n += len(text.Text)
			}
		}
	}
	return n / 4
}

func (a *Actor) shouldCompact(ctx assembled, contextLength int) bool {
	if contextLength <= 0 {
		return false
	}
	return estimateTokens(ctx) > int(float64(contextLength)*compactionThreshold)
}

// compact freezes the current tail as the compaction cursor,
// summarizes everything up to it via the current provider/model, and
// appends a compaction entry so subsequent context assembly replaces
// that prefix with the summary.
func (a *Actor) compact(ctx context.Context, current assembled, adapter provider.Adapter, modelID string) error {
	freeze, err := a.deps.Transcript.Tail(ctx, a.id)
	if err != nil {
		return err
	}
	if freeze == 0 {
		return nil
	}

	req := provider.StreamRequest{
		Model:        modelID,
		SystemPrompt: compactionSystemPrompt,
		Messages:     current.Messages,
		MaxTokens:    2000,
	}
	events, err := adapter.Stream(ctx, req)
	if err != nil {
		return err
	}

	var summary strings.Builder
	for ev := range events {
		switch e := ev.(type) {
		case provider.TextDeltaEvent:
			summary.WriteString(e.Delta)
		case provider.DoneEvent:
			if summary.Len() == 0 {
				for _, item := range e.Final.Content {
					if text, ok := item.(types.TextContent); ok {
						summary.WriteString(text.Text)
					}
				}
			}
		}
	}

	entry, err := a.deps.Transcript.Append(ctx, a.id, types.Compaction{
		TokensBefore:   estimateTokens(current),
		FirstKeptEntry: freeze + 1,
		Summary:        summary.String(),
	}, nil, nowMillis())
	if err != nil {
		return err
	}
	a.publishEntry(entry)
	return nil
}
