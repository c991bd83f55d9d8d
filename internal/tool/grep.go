package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/wuhu-dev/wuhu/pkg/types"
)

const grepDescription = `Regex content search over files, honoring .gitignore by default.

Usage:
- pattern is a regex (ripgrep syntax)
- Optional path restricts the search root (default: session directory)
- Optional include filters by glob (e.g. "*.go")`

// GrepTool implements the "grep" built-in tool by shelling out to
// ripgrep, which honors .gitignore by default.
type GrepTool struct {
	workDir string
}

// GrepArgs is the "grep" tool's argument shape.
type GrepArgs struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
	Include string `json:"include,omitempty"`
}

// GrepMatch is one matched line.
type GrepMatch struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

func NewGrepTool(workDir string) *GrepTool {
	return &GrepTool{workDir: workDir}
}

func (t *GrepTool) ID() string          { return "grep" }
func (t *GrepTool) Description() string { return grepDescription }

func (t *GrepTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {"type": "string", "description": "Regex pattern to search for"},
			"path": {"type": "string", "description": "Directory to search in"},
			"include": {"type": "string", "description": "Glob filter, e.g. \"*.go\""}
		},
		"required": ["pattern"]
	}`)
}

const maxGrepMatches = 200

func (t *GrepTool) Execute(ctx context.Context, args json.RawMessage, toolCtx *Context) (*Result, error) {
	var params GrepArgs
	if err := json.Unmarshal(args, &params); err != nil {
		return TextResult(fmt.Sprintf("invalid arguments: %v", err), true), nil
	}

	rgArgs := []string{"--line-number", "--with-filename", "--color=never"}
	if params.Include != "" {
		rgArgs = append(rgArgs, "--glob", params.Include)
	}
	rgArgs = append(rgArgs, params.Pattern, t.searchPath(params.Path, toolCtx))

	cmd := exec.CommandContext(ctx, "rg", rgArgs...)
	output, _ := cmd.Output() // ripgrep exits 1 on no matches; treat any output as authoritative

	matches := parseGrepOutput(output)
	truncated := len(matches) > maxGrepMatches
	if truncated {
		matches = matches[:maxGrepMatches]
	}

	var sb strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&sb, "%s:%d: %s\n", m.File, m.Line, m.Content)
	}
	if truncated {
		sb.WriteString(fmt.Sprintf("\n(showing first %d matches)", maxGrepMatches))
	}
	if len(matches) == 0 {
		sb.WriteString("no matches found")
	}

	details, _ := json.Marshal(map[string]any{"count": len(matches), "truncated": truncated})
	return &Result{
		Content: types.ContentList{types.TextContent{Text: sb.String()}},
		Details: details,
	}, nil
}

func (t *GrepTool) searchPath(path string, toolCtx *Context) string {
	if path != "" {
		return path
	}
	if toolCtx != nil && toolCtx.WorkDir != "" {
		return toolCtx.WorkDir
	}
	return t.workDir
}

func parseGrepOutput(output []byte) []GrepMatch {
	var matches []GrepMatch
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 3 {
			continue
		}
		lineNum, _ := strconv.Atoi(parts[1])
		matches = append(matches, GrepMatch{File: parts[0], Line: lineNum, Content: parts[2]})
	}
	return matches
}
