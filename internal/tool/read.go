package tool

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"context"

	"github.com/wuhu-dev/wuhu/pkg/types"
)

const readDescription = `Reads a file from the local filesystem.

Usage:
- path must be absolute
- By default, reads up to 2000 lines from the beginning
- Optional line_range restricts to [start, end] (1-indexed, inclusive)
- Returns file contents with line numbers
- Image files are returned as a base64-encoded image content block`

// ReadTool implements the "read" built-in tool.
type ReadTool struct {
	workDir string
}

// LineRange restricts Read to a 1-indexed, inclusive line window.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ReadArgs is the "read" tool's argument shape.
type ReadArgs struct {
	Path      string     `json:"path"`
	LineRange *LineRange `json:"line_range,omitempty"`
}

const (
	maxReadLines    = 2000
	maxReadLineLen  = 2000
	scannerBufBytes = 1024 * 1024
)

func NewReadTool(workDir string) *ReadTool {
	return &ReadTool{workDir: workDir}
}

func (t *ReadTool) ID() string          { return "read" }
func (t *ReadTool) Description() string { return readDescription }

func (t *ReadTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Absolute path to the file to read"},
			"line_range": {
				"type": "object",
				"properties": {
					"start": {"type": "integer"},
					"end": {"type": "integer"}
				},
				"description": "1-indexed inclusive line window"
			}
		},
		"required": ["path"]
	}`)
}

func (t *ReadTool) Execute(ctx context.Context, args json.RawMessage, toolCtx *Context) (*Result, error) {
	var params ReadArgs
	if err := json.Unmarshal(args, &params); err != nil {
		return TextResult(fmt.Sprintf("invalid arguments: %v", err), true), nil
	}

	path := t.resolvePath(params.Path)

	if shouldBlockEnvFile(path) {
		return TextResult(fmt.Sprintf("reading %s is blocked", path), true), nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return TextResult(fmt.Sprintf("file not found: %s", path), true), nil
	}
	if info.IsDir() {
		return TextResult(fmt.Sprintf("path is a directory, not a file: %s", path), true), nil
	}

	if isImageFile(path) {
		return t.readImage(path)
	}
	if isBinaryFile(path) {
		return TextResult("file appears to be binary", true), nil
	}

	return t.readText(path, params.LineRange)
}

func (t *ReadTool) resolvePath(path string) string {
	if filepath.IsAbs(path) || t.workDir == "" {
		return path
	}
	return filepath.Join(t.workDir, path)
}

func (t *ReadTool) readText(path string, lineRange *LineRange) (*Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return TextResult(err.Error(), true), nil
	}
	defer file.Close()

	start, limit := 0, maxReadLines
	if lineRange != nil {
		if lineRange.Start > 0 {
			start = lineRange.Start - 1
		}
		if lineRange.End > 0 {
			limit = lineRange.End - start
		}
	}

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, scannerBufBytes), scannerBufBytes)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		if lineNum <= start {
			continue
		}
		if len(lines) >= limit {
			break
		}
		line := scanner.Text()
		if len(line) > maxReadLineLen {
			line = line[:maxReadLineLen] + "..."
		}
		lines = append(lines, fmt.Sprintf("%5d\t%s", lineNum, line))
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(lines, "\n"))
	lastReadLine := start + len(lines)
	if lineNum > lastReadLine {
		sb.WriteString(fmt.Sprintf("\n\n(file has more lines; re-read with line_range starting at %d)", lastReadLine+1))
	}

	details, _ := json.Marshal(map[string]any{"path": path, "lines": len(lines), "totalLines": lineNum})
	return &Result{
		Content: types.ContentList{types.TextContent{Text: sb.String()}},
		Details: details,
	}, nil
}

func (t *ReadTool) readImage(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TextResult(err.Error(), true), nil
	}
	mediaType := detectMediaType(path)
	return &Result{
		Content: types.ContentList{types.ImageContent{
			MediaType: mediaType,
			Data:      base64.StdEncoding.EncodeToString(data),
		}},
	}, nil
}

func isImageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp":
		return true
	default:
		return false
	}
}

func isBinaryFile(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	buf := make([]byte, 8000)
	n, _ := file.Read(buf)
	if n == 0 {
		return false
	}
	nonPrintable := 0
	for i := 0; i < n; i++ {
		if buf[i] == 0 {
			return true
		}
		if buf[i] < 32 && buf[i] != '\n' && buf[i] != '\r' && buf[i] != '\t' {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(n) > 0.3
}

func detectMediaType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// shouldBlockEnvFile blocks reads of .env-like files except the
// common "safe to share" sample/example suffixes.
func shouldBlockEnvFile(path string) bool {
	for _, allowed := range []string{".env.sample", ".example"} {
		if strings.HasSuffix(path, allowed) {
			return false
		}
	}
	return strings.Contains(path, ".env")
}
