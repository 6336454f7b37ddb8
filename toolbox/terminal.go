package toolbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/martinemde/taskrouter/agentloop"
)

// TerminalName is the registered name of the shell tool.
const TerminalName = "terminal"

// TerminalParams are the parameters of the terminal tool.
type TerminalParams struct {
	Command        string `json:"command" validate:"required" jsonschema:"description=Shell command to run"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" validate:"gte=0,lte=600" jsonschema:"description=Optional timeout in seconds"`
}

// ExecResult holds the result of a command execution.
type ExecResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// Output returns combined stdout and stderr.
func (r ExecResult) Output() string {
	stdout := strings.TrimRight(r.Stdout, "\n")
	if r.Stderr == "" {
		return stdout
	}
	if stdout == "" {
		return r.Stderr
	}
	return stdout + "\n" + r.Stderr
}

// Terminal runs shell commands in a working directory with secrets removed
// from the environment.
type Terminal struct {
	workDir string
	timeout time.Duration
}

// NewTerminal creates a Terminal. A zero timeout means 30 seconds.
func NewTerminal(workDir string, timeout time.Duration) *Terminal {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Terminal{workDir: workDir, timeout: timeout}
}

func (t *Terminal) Name() string { return TerminalName }

func (t *Terminal) Description() string {
	return "Runs a shell command in the workspace and returns its output and exit code. Plain text input is treated as the command."
}

func (t *Terminal) Parameters() map[string]any { return schemaFor[TerminalParams]() }

func terminalParamsFromRaw(raw string) TerminalParams {
	return TerminalParams{Command: raw}
}

// Validate implements agentloop.Validatable.
func (t *Terminal) Validate(input agentloop.ActionInput) error {
	_, err := bind(input, terminalParamsFromRaw)
	return err
}

func (t *Terminal) Execute(ctx context.Context, input agentloop.ActionInput) (agentloop.ToolOutcome, error) {
	p, err := bind(input, terminalParamsFromRaw)
	if err != nil {
		return failure("%v", err), nil
	}
	timeout := t.timeout
	if p.TimeoutSeconds > 0 {
		timeout = time.Duration(p.TimeoutSeconds) * time.Second
	}

	res, err := t.Run(ctx, p.Command, timeout)
	if err != nil {
		return agentloop.ToolOutcome{}, err
	}

	meta := map[string]any{
		"exit_code":   res.ExitCode,
		"duration_ms": res.Duration.Milliseconds(),
	}
	output := strings.TrimRight(res.Output(), "\n")
	switch {
	case res.TimedOut:
		return agentloop.ToolOutcome{Success: false, Output: output, Error: fmt.Sprintf("command timed out after %s", timeout), Metadata: meta}, nil
	case res.ExitCode != 0:
		msg := fmt.Sprintf("command exited with code %d", res.ExitCode)
		if output != "" {
			msg += ": " + agentloop.TruncateOutput(output, 2000, agentloop.TruncateTail)
		}
		return agentloop.ToolOutcome{Success: false, Output: output, Error: msg, Metadata: meta}, nil
	}
	if output == "" {
		output = "command completed successfully with no output (exit code 0)"
	}
	return agentloop.ToolOutcome{Success: true, Output: output, Metadata: meta}, nil
}

// Run executes command through the shell. A non-zero exit status is reported
// in the result, not as an error.
func (t *Terminal) Run(ctx context.Context, command string, timeout time.Duration) (*ExecResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shell, flag := "/bin/sh", "-c"
	if path, err := exec.LookPath("bash"); err == nil {
		shell = path
	}
	if runtime.GOOS == "windows" {
		shell, flag = "cmd.exe", "/c"
	}

	cmd := exec.CommandContext(ctx, shell, flag, command)
	cmd.Dir = t.workDir
	cmd.Env = commandEnvironment()
	// Own process group so a timeout kills the whole pipeline.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := &ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err == nil {
		return res, nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.ExitCode = -1
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return nil, fmt.Errorf("exec command: %w", err)
}
