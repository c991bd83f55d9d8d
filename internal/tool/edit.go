package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/wuhu-dev/wuhu/pkg/types"
)

const editDescription = `Performs exact string replacements in files.

Usage:
- path must be absolute (or resolved against the session's directory)
- old_string must exist in the file (exact match required)
- new_string replaces old_string
- Use replace_all to replace every occurrence
- Fails if old_string is not unique, unless replace_all is set`

// EditTool implements the "edit" built-in tool.
type EditTool struct {
	workDir string
}

// EditArgs is the "edit" tool's argument shape.
type EditArgs struct {
	Path       string `json:"path"`
	OldString  string `json:"old_string"`
	NewString  string `json:"new_string"`
	ReplaceAll bool   `json:"replace_all,omitempty"`
}

func NewEditTool(workDir string) *EditTool {
	return &EditTool{workDir: workDir}
}

func (t *EditTool) ID() string          { return "edit" }
func (t *EditTool) Description() string { return editDescription }

func (t *EditTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Absolute path to the file to edit"},
			"old_string": {"type": "string", "description": "The exact text to replace"},
			"new_string": {"type": "string", "description": "The text to replace it with"},
			"replace_all": {"type": "boolean", "description": "Replace every occurrence (default: false)"}
		},
		"required": ["path", "old_string", "new_string"]
	}`)
}

func (t *EditTool) Execute(ctx context.Context, args json.RawMessage, toolCtx *Context) (*Result, error) {
	var params EditArgs
	if err := json.Unmarshal(args, &params); err != nil {
		return TextResult(fmt.Sprintf("invalid arguments: %v", err), true), nil
	}
	if params.OldString == params.NewString {
		return TextResult("old_string and new_string must be different", true), nil
	}

	path := params.Path
	if !filepath.IsAbs(path) && t.workDir != "" {
		path = filepath.Join(t.workDir, path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return TextResult(fmt.Sprintf("read file: %v", err), true), nil
	}
	text := string(content)

	count := strings.Count(text, params.OldString)
	if count == 0 {
		return t.fuzzyReplace(path, text, params)
	}
	if !params.ReplaceAll && count > 1 {
		return TextResult(fmt.Sprintf("old_string appears %d times in file; use replace_all or provide more context", count), true), nil
	}

	var newText string
	if params.ReplaceAll {
		newText = strings.ReplaceAll(text, params.OldString, params.NewString)
	} else {
		newText = strings.Replace(text, params.OldString, params.NewString, 1)
		count = 1
	}

	if err := os.WriteFile(path, []byte(newText), 0o644); err != nil {
		return TextResult(fmt.Sprintf("write file: %v", err), true), nil
	}

	diffText, additions, deletions := buildDiffMetadata(path, text, newText, t.workDir)
	details, _ := json.Marshal(map[string]any{
		"path": path, "replacements": count,
		"diff": diffText, "additions": additions, "deletions": deletions,
	})
	return &Result{
		Content: types.ContentList{types.TextContent{Text: fmt.Sprintf("Replaced %d occurrence(s)", count)}},
		Details: details,
	}, nil
}

// fuzzyReplace rescues an edit whose old_string doesn't exact-match
// due to line-ending drift or minor whitespace, falling back to a
// line-normalized match and then a Levenshtein-similarity match
// before giving up.
func (t *EditTool) fuzzyReplace(path, text string, params EditArgs) (*Result, error) {
	normalizedOld := normalizeLineEndings(params.OldString)
	normalizedText := normalizeLineEndings(text)

	if strings.Contains(normalizedText, normalizedOld) {
		newText := strings.Replace(normalizedText, normalizedOld, params.NewString, 1)
		if err := os.WriteFile(path, []byte(newText), 0o644); err != nil {
			return TextResult(fmt.Sprintf("write file: %v", err), true), nil
		}
		diffText, additions, deletions := buildDiffMetadata(path, normalizedText, newText, t.workDir)
		details, _ := json.Marshal(map[string]any{"diff": diffText, "additions": additions, "deletions": deletions})
		return &Result{Content: types.ContentList{types.TextContent{
			Text: "Replaced 1 occurrence (line-ending normalized)",
		}}, Details: details}, nil
	}

	match, sim := findBestMatch(text, params.OldString)
	const minSimilarity = 0.7
	if match != "" && sim >= minSimilarity {
		newText := strings.Replace(text, match, params.NewString, 1)
		if err := os.WriteFile(path, []byte(newText), 0o644); err != nil {
			return TextResult(fmt.Sprintf("write file: %v", err), true), nil
		}
		diffText, additions, deletions := buildDiffMetadata(path, text, newText, t.workDir)
		details, _ := json.Marshal(map[string]any{"diff": diffText, "additions": additions, "deletions": deletions})
		return &Result{Content: types.ContentList{types.TextContent{
			Text: fmt.Sprintf("Replaced 1 occurrence (%.0f%% similarity match)", sim*100),
		}}, Details: details}, nil
	}

	return TextResult("old_string not found in file", true), nil
}

func normalizeLineEndings(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

func findBestMatch(text, target string) (string, float64) {
	lines := strings.Split(text, "\n")
	targetLines := strings.Split(target, "\n")

	if len(targetLines) == 1 {
		bestMatch, bestSim := "", 0.0
		for _, line := range lines {
			if sim := similarity(line, target); sim > bestSim {
				bestSim, bestMatch = sim, line
			}
		}
		return bestMatch, bestSim
	}

	targetLen := len(targetLines)
	bestMatch, bestSim := "", 0.0
	for i := 0; i <= len(lines)-targetLen; i++ {
		block := strings.Join(lines[i:i+targetLen], "\n")
		if sim := similarity(block, target); sim > bestSim {
			bestSim, bestMatch = sim, block
		}
	}
	return bestMatch, bestSim
}

func similarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	if len(a) > 10000 || len(b) > 10000 {
		maxLen, minLen := max(len(a), len(b)), min(len(a), len(b))
		return float64(minLen) / float64(maxLen)
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxLen := max(len(a), len(b))
	return 1.0 - float64(dist)/float64(maxLen)
}
