package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wuhu-dev/wuhu/pkg/types"
)

const asyncBashDescription = `Launches a command detached from the current turn.

Usage:
- command is required
- Returns task_id immediately; the command keeps running after this
  call returns
- Completion is delivered later as a system-urgent queue message
  carrying {duration, exit_code, output} for this task_id`

// AsyncBashTool implements the "async_bash" built-in tool. It reuses
// BashTool's shell detection and process-group lifecycle but detaches
// the command and reports completion through a callback instead of
// blocking the calling turn.
type AsyncBashTool struct {
	workDir string
	shell   string
}

// AsyncBashArgs is the "async_bash" tool's argument shape.
type AsyncBashArgs struct {
	Command string `json:"command"`
}

func NewAsyncBashTool(workDir string) *AsyncBashTool {
	return &AsyncBashTool{workDir: workDir, shell: detectShell()}
}

func (t *AsyncBashTool) ID() string          { return "async_bash" }
func (t *AsyncBashTool) Description() string { return asyncBashDescription }

func (t *AsyncBashTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "The shell command to run detached"}
		},
		"required": ["command"]
	}`)
}

func (t *AsyncBashTool) Execute(ctx context.Context, args json.RawMessage, toolCtx *Context) (*Result, error) {
	var params AsyncBashArgs
	if err := json.Unmarshal(args, &params); err != nil {
		return TextResult(fmt.Sprintf("invalid arguments: %v", err), true), nil
	}

	taskID := ulid.Make().String()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command(t.shell, "/c", params.Command)
	} else {
		cmd = exec.Command(t.shell, "-c", params.Command)
	}
	if toolCtx != nil && toolCtx.WorkDir != "" {
		cmd.Dir = toolCtx.WorkDir
	} else {
		cmd.Dir = t.workDir
	}
	cmd.Env = os.Environ()
	if runtime.GOOS != "windows" {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Start(); err != nil {
		return TextResult(fmt.Sprintf("failed to start command: %v", err), true), nil
	}

	start := time.Now()
	go func() {
		_ = cmd.Wait()
		duration := time.Since(start)
		exitCode := 0
		if cmd.ProcessState != nil {
			exitCode = cmd.ProcessState.ExitCode()
		}

		details, _ := json.Marshal(BashDetails{
			Duration: duration.Milliseconds(),
			ExitCode: exitCode,
			Output:   output.String(),
		})

		if toolCtx != nil && toolCtx.OnAsyncComplete != nil {
			toolCtx.OnAsyncComplete(taskID, types.SystemUrgentPayload{
				Source: types.SourceAsyncBashCallback,
				Text:   fmt.Sprintf("async_bash task %s completed", taskID),
				Data:   details,
			})
		}
	}()

	details, _ := json.Marshal(map[string]string{"task_id": taskID})
	return &Result{
		Content: types.ContentList{types.TextContent{Text: fmt.Sprintf("Launched task %s", taskID)}},
		Details: details,
	}, nil
}
