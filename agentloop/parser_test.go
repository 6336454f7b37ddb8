package agentloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStepAction(t *testing.T) {
	step, err := ParseStep("Thought: I need the file list\nAction: file_manager\nAction Input: {\"operation\": \"list\", \"path\": \".\"}")
	require.NoError(t, err)

	assert.Equal(t, "I need the file list", step.Thought)
	assert.Equal(t, "file_manager", step.Action)
	assert.False(t, step.IsFinalAnswer())
	assert.True(t, step.HasInput())
	require.True(t, step.Input.IsStructured())
	assert.Equal(t, "list", step.Input.Structured["operation"])
	assert.Equal(t, ".", step.Input.Structured["path"])
}

func TestParseStepFinalAnswer(t *testing.T) {
	step, err := ParseStep("Thought: I know this\nFinal Answer: Paris is the capital of France.\nIt has been since 987.")
	require.NoError(t, err)

	assert.True(t, step.IsFinalAnswer())
	assert.Equal(t, "Paris is the capital of France.\nIt has been since 987.", step.FinalAnswer)
	assert.Empty(t, step.Action)
}

func TestParseStepFinalAnswerWinsOverAction(t *testing.T) {
	step, err := ParseStep("Thought: done\nAction: terminal\nAction Input: ls\nFinal Answer: three files")
	require.NoError(t, err)
	assert.True(t, step.IsFinalAnswer())
	assert.Equal(t, "three files", step.FinalAnswer)
}

func TestParseStepCaseInsensitiveMarkers(t *testing.T) {
	step, err := ParseStep("THOUGHT: check\n  action: web_search\naction input: {\"query\": \"go 1.24\"}")
	require.NoError(t, err)
	assert.Equal(t, "web_search", step.Action)
	assert.Equal(t, "go 1.24", step.Input.Structured["query"])
}

func TestParseStepMultilineThought(t *testing.T) {
	step, err := ParseStep("Thought: first line\nsecond line\nAction: terminal\nAction Input: pwd")
	require.NoError(t, err)
	assert.Equal(t, "first line\nsecond line", step.Thought)
}

func TestParseStepRawInput(t *testing.T) {
	step, err := ParseStep("Thought: run it\nAction: terminal\nAction Input: df -h")
	require.NoError(t, err)
	assert.False(t, step.Input.IsStructured())
	assert.Equal(t, "df -h", step.Input.Raw)
}

func TestParseStepFencedInput(t *testing.T) {
	text := "Thought: write\nAction: file_manager\nAction Input: ```json\n{\"operation\": \"write\", \"path\": \"a.txt\", \"content\": \"x\"}\n```"
	step, err := ParseStep(text)
	require.NoError(t, err)
	require.True(t, step.Input.IsStructured())
	assert.Equal(t, "a.txt", step.Input.Structured["path"])
}

func TestParseStepQuotedInput(t *testing.T) {
	step, err := ParseStep("Thought: t\nAction: terminal\nAction Input: \"uptime\"")
	require.NoError(t, err)
	assert.Equal(t, "uptime", step.Input.Raw)
}

func TestParseStepTrimsActionDecoration(t *testing.T) {
	step, err := ParseStep("Thought: t\nAction: `terminal`\nAction Input: pwd")
	require.NoError(t, err)
	assert.Equal(t, "terminal", step.Action)
}

func TestParseStepStopsAtInventedObservation(t *testing.T) {
	step, err := ParseStep("Thought: t\nAction: terminal\nAction Input: ls\nObservation: a.txt b.txt")
	require.NoError(t, err)
	assert.Equal(t, "ls", step.Input.Raw)
}

func TestParseStepErrors(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		reason string
	}{
		{"empty", "", "missing thought"},
		{"no thought", "Action: terminal\nAction Input: ls", "missing thought"},
		{"thought only", "Thought: hmm", "missing action or final answer"},
		{"action without input", "Thought: t\nAction: terminal", "action without action input"},
		{"empty final answer", "Thought: t\nFinal Answer:   ", "missing action or final answer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step, err := ParseStep(tt.text)
			require.Error(t, err)
			require.NotNil(t, step)

			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.reason, pe.Reason)
			assert.Equal(t, tt.text, pe.Text)
		})
	}
}

func TestParsedStepValidateNil(t *testing.T) {
	var step *ParsedStep
	assert.False(t, step.IsFinalAnswer())
	assert.EqualError(t, step.Validate(), "parse error: empty step")
}
