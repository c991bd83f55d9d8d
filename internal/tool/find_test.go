package tool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/wuhu-dev/wuhu/pkg/types"
)

func TestFindTool_MatchesPattern(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "sub"), 0o755)
	os.WriteFile(filepath.Join(dir, "a.go"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "sub", "b.go"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "c.txt"), []byte("x"), 0o644)

	ft := NewFindTool(dir)
	args, _ := json.Marshal(FindArgs{Pattern: "**/*.go"})
	result, err := ft.Execute(context.Background(), args, &Context{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	text := result.Content[0].(types.TextContent).Text
	if !contains(text, "a.go") || !contains(text, "sub/b.go") || contains(text, "c.txt") {
		t.Errorf("unexpected match set: %q", text)
	}
}

func TestFindTool_HonorsGitignore(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("ignored.go\n"), 0o644)
	os.WriteFile(filepath.Join(dir, "ignored.go"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "kept.go"), []byte("x"), 0o644)

	ft := NewFindTool(dir)
	args, _ := json.Marshal(FindArgs{Pattern: "*.go"})
	result, err := ft.Execute(context.Background(), args, &Context{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	var details map[string]any
	json.Unmarshal(result.Details, &details)
	if int(details["count"].(float64)) != 1 {
		t.Errorf("expected 1 match after gitignore filtering, got details: %+v", details)
	}
}
