package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wuhu-dev/wuhu/pkg/types"
)

const writeDescription = `Writes content to a file on the local filesystem.

Usage:
- path must be absolute (or resolved against the session's directory)
- Overwrites existing files
- Parent directories are created if they don't exist
- Prefer editing existing files over creating new ones`

// WriteTool implements the "write" built-in tool.
type WriteTool struct {
	workDir string
}

// WriteArgs is the "write" tool's argument shape.
type WriteArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func NewWriteTool(workDir string) *WriteTool {
	return &WriteTool{workDir: workDir}
}

func (t *WriteTool) ID() string          { return "write" }
func (t *WriteTool) Description() string { return writeDescription }

func (t *WriteTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Absolute path to the file to write"},
			"content": {"type": "string", "description": "Content to write"}
		},
		"required": ["path", "content"]
	}`)
}

func (t *WriteTool) Execute(ctx context.Context, args json.RawMessage, toolCtx *Context) (*Result, error) {
	var params WriteArgs
	if err := json.Unmarshal(args, &params); err != nil {
		return TextResult(fmt.Sprintf("invalid arguments: %v", err), true), nil
	}

	path := params.Path
	if !filepath.IsAbs(path) && t.workDir != "" {
		path = filepath.Join(t.workDir, path)
	}

	var before string
	if existing, err := os.ReadFile(path); err == nil {
		before = string(existing)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return TextResult(fmt.Sprintf("create parent directories: %v", err), true), nil
	}
	if err := os.WriteFile(path, []byte(params.Content), 0o644); err != nil {
		return TextResult(fmt.Sprintf("write file: %v", err), true), nil
	}

	diffText, additions, deletions := buildDiffMetadata(path, before, params.Content, t.workDir)
	details, _ := json.Marshal(map[string]any{
		"path":      path,
		"bytes":     len(params.Content),
		"diff":      diffText,
		"additions": additions,
		"deletions": deletions,
	})
	return &Result{
		Content: types.ContentList{types.TextContent{
			Text: fmt.Sprintf("Wrote %d bytes to %s", len(params.Content), path),
		}},
		Details: details,
	}, nil
}
