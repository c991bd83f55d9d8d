package tool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestEditTool_ReplacesUniqueOccurrence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.go")
	os.WriteFile(path, []byte("package main\nfunc foo() {}\n"), 0o644)

	et := NewEditTool(dir)
	args, _ := json.Marshal(EditArgs{Path: path, OldString: "func foo()", NewString: "func bar()"})
	result, err := et.Execute(context.Background(), args, &Context{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %+v", result)
	}
	data, _ := os.ReadFile(path)
	if !contains(string(data), "func bar()") {
		t.Errorf("expected replacement, got %q", string(data))
	}
}

func TestEditTool_FailsOnAmbiguousMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.go")
	os.WriteFile(path, []byte("foo\nfoo\n"), 0o644)

	et := NewEditTool(dir)
	args, _ := json.Marshal(EditArgs{Path: path, OldString: "foo", NewString: "bar"})
	result, _ := et.Execute(context.Background(), args, &Context{})
	if !result.IsError {
		t.Error("expected error for ambiguous match without replace_all")
	}
}

func TestEditTool_ReplaceAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.go")
	os.WriteFile(path, []byte("foo\nfoo\n"), 0o644)

	et := NewEditTool(dir)
	args, _ := json.Marshal(EditArgs{Path: path, OldString: "foo", NewString: "bar", ReplaceAll: true})
	result, err := et.Execute(context.Background(), args, &Context{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %+v", result)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "bar\nbar\n" {
		t.Errorf("expected both replaced, got %q", string(data))
	}
}

func TestEditTool_NotFound(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.go")
	os.WriteFile(path, []byte("hello world\n"), 0o644)

	et := NewEditTool(dir)
	args, _ := json.Marshal(EditArgs{Path: path, OldString: "completely different text", NewString: "x"})
	result, _ := et.Execute(context.Background(), args, &Context{})
	if !result.IsError {
		t.Error("expected error when old_string has no match")
	}
}
