package toolbox

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/martinemde/taskrouter/agentloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTerminal(t *testing.T) *Terminal {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell tests need a POSIX shell")
	}
	return NewTerminal(t.TempDir(), 10*time.Second)
}

func TestTerminalRunsCommand(t *testing.T) {
	term := newTestTerminal(t)

	out, err := term.Execute(context.Background(), agentloop.StructuredInput(map[string]any{"command": "echo hello"}))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "hello", out.Output)
	assert.Equal(t, 0, out.Metadata["exit_code"])
}

func TestTerminalRawInputAndWorkDir(t *testing.T) {
	term := newTestTerminal(t)

	out, err := term.Execute(context.Background(), agentloop.RawInput("pwd"))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Contains(t, out.Output, filepath.Base(term.workDir))
}

func TestTerminalNonZeroExit(t *testing.T) {
	term := newTestTerminal(t)

	out, err := term.Execute(context.Background(), agentloop.RawInput("echo partial; echo broken >&2; exit 3"))
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "command exited with code 3")
	assert.Contains(t, out.Error, "broken")
	assert.Equal(t, "partial\nbroken", out.Output)
}

func TestExecResultOutput(t *testing.T) {
	tests := []struct {
		name string
		res  ExecResult
		want string
	}{
		{"both streams", ExecResult{Stdout: "partial\n", Stderr: "broken\n"}, "partial\nbroken\n"},
		{"stdout only", ExecResult{Stdout: "done\n"}, "done"},
		{"stderr only", ExecResult{Stderr: "oops\n"}, "oops\n"},
		{"empty", ExecResult{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.res.Output())
		})
	}
}

func TestTerminalNoOutput(t *testing.T) {
	term := newTestTerminal(t)

	out, err := term.Execute(context.Background(), agentloop.RawInput("true"))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Contains(t, out.Output, "no output")
}

func TestTerminalTimeout(t *testing.T) {
	term := newTestTerminal(t)

	res, err := term.Run(context.Background(), "sleep 5", 200*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, -1, res.ExitCode)
	assert.Less(t, res.Duration, 4*time.Second)
}

func TestTerminalFiltersSecrets(t *testing.T) {
	term := newTestTerminal(t)
	t.Setenv("TASKROUTER_TEST_API_KEY", "secret")
	t.Setenv("TASKROUTER_TEST_VISIBLE", "shown")

	out, err := term.Execute(context.Background(), agentloop.RawInput(`echo "${TASKROUTER_TEST_API_KEY:-missing} ${TASKROUTER_TEST_VISIBLE}"`))
	require.NoError(t, err)
	assert.Equal(t, "missing shown", out.Output)
}

func TestTerminalValidate(t *testing.T) {
	term := newTestTerminal(t)

	assert.EqualError(t, term.Validate(agentloop.RawInput("  ")), "command is required")
	err := term.Validate(agentloop.StructuredInput(map[string]any{"command": "ls", "timeout_seconds": 9000}))
	assert.EqualError(t, err, "timeout_seconds must be at most 600")
}

func TestIsSensitiveEnvVar(t *testing.T) {
	assert.True(t, isSensitiveEnvVar("OPENAI_API_KEY"))
	assert.True(t, isSensitiveEnvVar("github_token"))
	assert.True(t, isSensitiveEnvVar("DB_PASSWORD"))
	assert.False(t, isSensitiveEnvVar("PATH"))
	assert.False(t, isSensitiveEnvVar("TOKEN_COUNT"))
}
