package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAnthropicAdapter_StreamsTextAndUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing x-api-key header")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		frames := []string{
			`{"type":"message_start","message":{"usage":{"input_tokens":10}}}`,
			`{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi"}}`,
			`{"type":"content_block_stop","index":0}`,
			`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":5}}`,
			`{"type":"message_stop"}`,
		}
		for _, f := range frames {
			w.Write([]byte("data: " + f + "\n\n"))
		}
	}))
	defer srv.Close()

	adapter := NewAnthropicAdapter(AnthropicConfig{APIKey: "test-key", BaseURL: srv.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := adapter.Stream(ctx, StreamRequest{Model: "claude-sonnet-4-20250514", MaxTokens: 100, Messages: []Message{
		{Role: "user", Content: nil},
	}})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	var sawStart, sawDelta, sawDone bool
	var finalStop string
	for ev := range events {
		switch e := ev.(type) {
		case StartEvent:
			sawStart = true
		case TextDeltaEvent:
			sawDelta = true
			if e.Delta != "hi" {
				t.Errorf("unexpected delta %q", e.Delta)
			}
		case DoneEvent:
			sawDone = true
			finalStop = e.Final.StopReason
		}
	}

	if !sawStart || !sawDelta || !sawDone {
		t.Fatalf("missing expected events: start=%v delta=%v done=%v", sawStart, sawDelta, sawDone)
	}
	if finalStop != "stop" {
		t.Errorf("expected normalized stop reason %q, got %q", "stop", finalStop)
	}
}
