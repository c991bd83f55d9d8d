package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/wuhu-dev/wuhu/pkg/types"
)

const findDescription = `Glob-matches relative paths under a directory, honoring .gitignore by default.

Usage:
- pattern supports "**/*.go"-style glob syntax
- Optional path restricts the search root (default: session directory)
- Optional limit caps the number of returned paths (default 100)`

const defaultFindLimit = 100

// FindTool implements the "find" built-in tool.
type FindTool struct {
	workDir string
}

// FindArgs is the "find" tool's argument shape.
type FindArgs struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

func NewFindTool(workDir string) *FindTool {
	return &FindTool{workDir: workDir}
}

func (t *FindTool) ID() string          { return "find" }
func (t *FindTool) Description() string { return findDescription }

func (t *FindTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {"type": "string", "description": "Glob pattern to match relative paths against"},
			"path": {"type": "string", "description": "Directory to search in"},
			"limit": {"type": "integer", "description": "Maximum number of matches to return (default 100)"}
		},
		"required": ["pattern"]
	}`)
}

func (t *FindTool) Execute(ctx context.Context, args json.RawMessage, toolCtx *Context) (*Result, error) {
	var params FindArgs
	if err := json.Unmarshal(args, &params); err != nil {
		return TextResult(fmt.Sprintf("invalid arguments: %v", err), true), nil
	}

	root := t.searchPath(params.Path, toolCtx)
	limit := params.Limit
	if limit <= 0 {
		limit = defaultFindLimit
	}

	ignore := loadGitignore(root)

	var matches []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if ignore.matches(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ok, err := doublestar.Match(params.Pattern, rel)
		if err == nil && ok {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return TextResult(fmt.Sprintf("find failed: %v", err), true), nil
	}

	sort.Strings(matches)
	truncated := len(matches) > limit
	if truncated {
		matches = matches[:limit]
	}

	var sb strings.Builder
	for _, m := range matches {
		sb.WriteString(m)
		sb.WriteString("\n")
	}
	if truncated {
		fmt.Fprintf(&sb, "\n(showing first %d matches)", limit)
	}
	if len(matches) == 0 {
		sb.WriteString("no files matched")
	}

	details, _ := json.Marshal(map[string]any{"count": len(matches), "truncated": truncated})
	return &Result{
		Content: types.ContentList{types.TextContent{Text: sb.String()}},
		Details: details,
	}, nil
}

func (t *FindTool) searchPath(path string, toolCtx *Context) string {
	if path != "" {
		if filepath.IsAbs(path) {
			return path
		}
		base := t.workDir
		if toolCtx != nil && toolCtx.WorkDir != "" {
			base = toolCtx.WorkDir
		}
		return filepath.Join(base, path)
	}
	if toolCtx != nil && toolCtx.WorkDir != "" {
		return toolCtx.WorkDir
	}
	return t.workDir
}

// gitignoreSet is a minimal .gitignore matcher: one pattern per line,
// matched against path segments with doublestar. It only reads the
// root .gitignore, not nested ones.
type gitignoreSet struct {
	patterns []string
}

func loadGitignore(root string) gitignoreSet {
	data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return gitignoreSet{}
	}
	var patterns []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, strings.TrimSuffix(line, "/"))
	}
	patterns = append(patterns, ".git")
	return gitignoreSet{patterns: patterns}
}

func (g gitignoreSet) matches(rel string, isDir bool) bool {
	base := filepath.Base(rel)
	for _, p := range g.patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(p, base); ok {
			return true
		}
	}
	return false
}
