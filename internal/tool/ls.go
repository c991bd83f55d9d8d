package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wuhu-dev/wuhu/pkg/types"
)

const lsDescription = `Lists directory entries.

Usage:
- path is required
- Returns each entry's name, type (file/dir), and size
- A handful of noisy directories (.git, node_modules, vendor, ...) are skipped by default`

// LsTool implements the "ls" built-in tool.
type LsTool struct {
	workDir string
}

// LsArgs is the "ls" tool's argument shape.
type LsArgs struct {
	Path string `json:"path"`
}

// defaultIgnorePatterns are skipped when listing, matching the noisy
// directories most toolchains already exclude from version control.
var defaultIgnorePatterns = []string{
	"node_modules", "__pycache__", ".git", "dist", "build", "target",
	"vendor", "bin", "obj", ".idea", ".vscode", ".cache", "tmp", "temp",
	".venv", "venv",
}

func NewLsTool(workDir string) *LsTool {
	return &LsTool{workDir: workDir}
}

func (t *LsTool) ID() string          { return "ls" }
func (t *LsTool) Description() string { return lsDescription }

func (t *LsTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Directory to list"}
		},
		"required": ["path"]
	}`)
}

// LsEntry is one listed directory entry.
type LsEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

func (t *LsTool) Execute(ctx context.Context, args json.RawMessage, toolCtx *Context) (*Result, error) {
	var params LsArgs
	if err := json.Unmarshal(args, &params); err != nil {
		return TextResult(fmt.Sprintf("invalid arguments: %v", err), true), nil
	}

	listPath := t.resolvePath(params.Path, toolCtx)

	dirEntries, err := os.ReadDir(listPath)
	if err != nil {
		return TextResult(fmt.Sprintf("failed to read directory: %v", err), true), nil
	}

	var entries []LsEntry
	for _, de := range dirEntries {
		if isDefaultIgnored(de.Name()) {
			continue
		}
		info, _ := de.Info()
		var size int64
		if info != nil {
			size = info.Size()
		}
		entries = append(entries, LsEntry{Name: de.Name(), IsDir: de.IsDir(), Size: size})
	}

	var sb strings.Builder
	for _, e := range entries {
		kind := "file"
		if e.IsDir {
			kind = "dir "
		}
		fmt.Fprintf(&sb, "[%s] %s", kind, e.Name)
		if !e.IsDir {
			fmt.Fprintf(&sb, " (%d bytes)", e.Size)
		}
		sb.WriteString("\n")
	}
	if len(entries) == 0 {
		sb.WriteString("(empty)")
	}

	details, _ := json.Marshal(map[string]any{"path": listPath, "entries": entries})
	return &Result{
		Content: types.ContentList{types.TextContent{Text: sb.String()}},
		Details: details,
	}, nil
}

func (t *LsTool) resolvePath(path string, toolCtx *Context) string {
	base := t.workDir
	if toolCtx != nil && toolCtx.WorkDir != "" {
		base = toolCtx.WorkDir
	}
	if path == "" {
		return base
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func isDefaultIgnored(name string) bool {
	for _, p := range defaultIgnorePatterns {
		if name == p {
			return true
		}
	}
	return false
}
