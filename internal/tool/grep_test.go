package tool

import "testing"

func TestParseGrepOutput(t *testing.T) {
	output := []byte("a.go:3:foo bar\nb.go:10:baz qux\n")
	matches := parseGrepOutput(output)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].File != "a.go" || matches[0].Line != 3 || matches[0].Content != "foo bar" {
		t.Errorf("unexpected first match: %+v", matches[0])
	}
}

func TestParseGrepOutput_Empty(t *testing.T) {
	if matches := parseGrepOutput([]byte("")); len(matches) != 0 {
		t.Errorf("expected 0 matches for empty output, got %d", len(matches))
	}
}
