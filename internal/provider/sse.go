package provider

import (
	"bufio"
	"io"
	"strings"
)

// rawEvent is one decoded Server-Sent Event frame: an optional event
// name and the concatenated data lines.
type rawEvent struct {
	Name string
	Data []byte
}

// sseScanner reads a provider's SSE response body one frame at a
// time. Hand-rolled in the same spirit as the teacher's
// internal/server/sse.go: the provider SSE surface is small (a
// handful of field names per variant) and a generic SSE client would
// add a dependency for less code than it replaces.
type sseScanner struct {
	r   *bufio.Reader
	err error
}

func newSSEScanner(r io.Reader) *sseScanner {
	return &sseScanner{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next reads and returns the next event, or ok=false at EOF or on
// error (check Err after a false return).
func (s *sseScanner) Next() (rawEvent, bool) {
	var ev rawEvent
	var data strings.Builder
	sawAny := false

	for {
		line, err := s.r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "" && sawAny:
			ev.Data = []byte(data.String())
			return ev, true
		case strings.HasPrefix(line, "event:"):
			ev.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			sawAny = true
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			sawAny = true
		case strings.HasPrefix(line, ":"):
			// comment / heartbeat, ignored
		}

		if err != nil {
			if sawAny && data.Len() > 0 {
				ev.Data = []byte(data.String())
				s.err = nil
				return ev, true
			}
			s.err = err
			return rawEvent{}, false
		}
	}
}

func (s *sseScanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
