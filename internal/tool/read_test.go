package tool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/wuhu-dev/wuhu/pkg/types"
)

func TestReadTool_ReadsWholeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	os.WriteFile(path, []byte("line1\nline2\nline3\n"), 0o644)

	rt := NewReadTool(dir)
	args, _ := json.Marshal(ReadArgs{Path: path})
	result, err := rt.Execute(context.Background(), args, &Context{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result")
	}
	text := result.Content[0].(types.TextContent).Text
	if !contains(text, "line1") || !contains(text, "line3") {
		t.Errorf("expected all lines present, got %q", text)
	}
}

func TestReadTool_LineRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	os.WriteFile(path, []byte("a\nb\nc\nd\ne\n"), 0o644)

	rt := NewReadTool(dir)
	args, _ := json.Marshal(ReadArgs{Path: path, LineRange: &LineRange{Start: 2, End: 3}})
	result, err := rt.Execute(context.Background(), args, &Context{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	text := result.Content[0].(types.TextContent).Text
	if contains(text, "\ta") || contains(text, "\td") {
		t.Errorf("expected only lines 2-3, got %q", text)
	}
}

func TestReadTool_FileNotFound(t *testing.T) {
	rt := NewReadTool(t.TempDir())
	args, _ := json.Marshal(ReadArgs{Path: "/nonexistent/path.txt"})
	result, err := rt.Execute(context.Background(), args, &Context{})
	if err != nil {
		t.Fatalf("Execute returned unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError for missing file")
	}
}

func TestReadTool_BlocksEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	os.WriteFile(path, []byte("SECRET=1"), 0o644)

	rt := NewReadTool(dir)
	args, _ := json.Marshal(ReadArgs{Path: path})
	result, _ := rt.Execute(context.Background(), args, &Context{})
	if !result.IsError {
		t.Error("expected .env read to be blocked")
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}
