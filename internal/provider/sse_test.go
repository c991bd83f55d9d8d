package provider

import (
	"strings"
	"testing"
)

func TestSSEScanner_ReadsMultipleEvents(t *testing.T) {
	body := "event: content_block_delta\ndata: {\"a\":1}\n\n" +
		"data: {\"a\":2}\n\n"
	s := newSSEScanner(strings.NewReader(body))

	ev, ok := s.Next()
	if !ok {
		t.Fatal("expected first event")
	}
	if ev.Name != "content_block_delta" || string(ev.Data) != `{"a":1}` {
		t.Errorf("unexpected first event: %+v", ev)
	}

	ev, ok = s.Next()
	if !ok {
		t.Fatal("expected second event")
	}
	if string(ev.Data) != `{"a":2}` {
		t.Errorf("unexpected second event: %+v", ev)
	}

	if _, ok := s.Next(); ok {
		t.Fatal("expected EOF")
	}
	if err := s.Err(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSSEScanner_MultilineData(t *testing.T) {
	body := "data: line one\ndata: line two\n\n"
	s := newSSEScanner(strings.NewReader(body))

	ev, ok := s.Next()
	if !ok {
		t.Fatal("expected event")
	}
	if string(ev.Data) != "line one\nline two" {
		t.Errorf("unexpected joined data: %q", ev.Data)
	}
}
