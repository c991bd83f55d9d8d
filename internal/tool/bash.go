package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"time"

	"github.com/wuhu-dev/wuhu/pkg/types"
)

const (
	DefaultBashTimeout = 120 * time.Second
	MaxBashTimeout     = 10 * time.Minute
	MaxOutputLength    = 30000
	SigkillTimeout     = 200 * time.Millisecond
)

const bashDescription = `Executes a command via the shell, synchronously.

Usage:
- command is required
- Optional timeout_ms (max 600000, default 120000)
- stdout/stderr are combined and captured, along with the exit code
- Commands run in a process group so timeouts clean up children`

// BashTool implements the "bash" built-in tool.
type BashTool struct {
	workDir string
	shell   string
}

// BashArgs is the "bash" tool's argument shape.
type BashArgs struct {
	Command   string `json:"command"`
	TimeoutMS int    `json:"timeout_ms,omitempty"`
}

// BashDetails is the structured result.details payload for bash and
// async_bash, matching the async completion notice's JSON shape so
// both paths are parsed the same way downstream.
type BashDetails struct {
	Duration int64  `json:"duration"` // milliseconds
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
	TimedOut bool   `json:"timedOut,omitempty"`
}

func NewBashTool(workDir string) *BashTool {
	return &BashTool{workDir: workDir, shell: detectShell()}
}

func detectShell() string {
	if s := os.Getenv("SHELL"); s != "" && s != "/bin/fish" && s != "/usr/bin/fish" {
		return s
	}
	if runtime.GOOS == "darwin" {
		return "/bin/zsh"
	}
	if runtime.GOOS == "windows" {
		if comspec := os.Getenv("COMSPEC"); comspec != "" {
			return comspec
		}
		return "cmd.exe"
	}
	if bash, err := exec.LookPath("bash"); err == nil {
		return bash
	}
	return "/bin/sh"
}

func (t *BashTool) ID() string          { return "bash" }
func (t *BashTool) Description() string { return bashDescription }

func (t *BashTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "The shell command to run"},
			"timeout_ms": {"type": "integer", "description": "Timeout in milliseconds (max 600000)"}
		},
		"required": ["command"]
	}`)
}

func (t *BashTool) Execute(ctx context.Context, args json.RawMessage, toolCtx *Context) (*Result, error) {
	var params BashArgs
	if err := json.Unmarshal(args, &params); err != nil {
		return TextResult(fmt.Sprintf("invalid arguments: %v", err), true), nil
	}

	timeout := DefaultBashTimeout
	if params.TimeoutMS > 0 {
		timeout = time.Duration(params.TimeoutMS) * time.Millisecond
		if timeout > MaxBashTimeout {
			timeout = MaxBashTimeout
		}
	}

	start := time.Now()
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := t.buildCmd(cmdCtx, params.Command, toolCtx)
	output, err := cmd.CombinedOutput()
	duration := time.Since(start)
	timedOut := cmdCtx.Err() == context.DeadlineExceeded

	result := string(output)
	if len(result) > MaxOutputLength {
		result = result[:MaxOutputLength] + "\n\n(output truncated)"
	}
	if timedOut {
		killProcessGroup(cmd)
		result += fmt.Sprintf("\n\n(command timed out after %v)", timeout)
	}

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil && !timedOut {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			result += fmt.Sprintf("\n\nerror: %v", err)
		}
	}

	details, _ := json.Marshal(BashDetails{
		Duration: duration.Milliseconds(),
		ExitCode: exitCode,
		Output:   result,
		TimedOut: timedOut,
	})

	return &Result{
		Content: types.ContentList{types.TextContent{Text: result}},
		Details: details,
		IsError: exitCode != 0,
	}, nil
}

func (t *BashTool) buildCmd(ctx context.Context, command string, toolCtx *Context) *exec.Cmd {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, t.shell, "/c", command)
	} else {
		cmd = exec.CommandContext(ctx, t.shell, "-c", command)
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
	return cmd
}

// killProcessGroup terminates a timed-out command's whole process
// group, escalating to SIGKILL if SIGTERM doesn't land in time.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil || runtime.GOOS == "windows" {
		return
	}
	pid := cmd.Process.Pid
	syscall.Kill(-pid, syscall.SIGTERM)
	time.Sleep(SigkillTimeout)
	if cmd.ProcessState == nil {
		syscall.Kill(-pid, syscall.SIGKILL)
	}
}
