package agentloop

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestBuildSystemPrompt(t *testing.T) {
	tools := []ToolDescriptor{{
		Name:        "file_manager",
		Description: "Reads and writes files.",
		Parameters:  map[string]any{"type": "object", "required": []string{"operation"}},
	}}
	cls := Classification{Type: TaskFileOperation, Confidence: 0.9}
	policy := ExecutionPolicy{AllowedTools: []string{"file_manager"}, MaxIterations: 3}

	prompt := BuildSystemPrompt(tools, cls, policy, Experience{})
	assert.Contains(t, prompt, "## file_manager")
	assert.Contains(t, prompt, `"required":["operation"]`)
	assert.Contains(t, prompt, "Action Input:")
	assert.Contains(t, prompt, "Final Answer:")
	assert.Contains(t, prompt, "classified as file_operation")
	assert.Contains(t, prompt, "at most 3 steps")
	assert.Contains(t, prompt, "<environment>")
	assert.NotContains(t, prompt, "Relevant experience")

	prompt = BuildSystemPrompt(tools, cls, policy, Experience{
		SimilarExperiences: []PastExperience{{Task: "buat file a.txt", Outcome: "created", Success: true}},
		RelevantLessons:    []Lesson{{Lesson: "write with operation=write"}},
	})
	assert.Contains(t, prompt, `Earlier task "buat file a.txt" succeeded`)
	assert.Contains(t, prompt, "Lesson: write with operation=write")
}

func TestBuildIterationPrompt(t *testing.T) {
	window := []HistoryEntry{
		{Action: "terminal", Input: RawInput("ls"), Observation: "a.txt"},
		{Action: loopWarningAction, Observation: "Stop repeating", Synthetic: true},
	}

	prompt := BuildIterationPrompt("list files", window, 2, 5)
	assert.True(t, strings.HasPrefix(prompt, "Task: list files"))
	assert.Contains(t, prompt, "Action: terminal\nAction Input: ls\nObservation: a.txt")
	assert.Contains(t, prompt, "[system] Stop repeating")
	assert.Contains(t, prompt, "Step 2 of 5.")
	assert.NotContains(t, prompt, "last step")

	prompt = BuildIterationPrompt("list files", nil, 3, 3)
	assert.NotContains(t, prompt, "Recent steps")
	assert.Contains(t, prompt, "last step")
}

func TestBuildIterationPromptTruncatesObservations(t *testing.T) {
	window := []HistoryEntry{{Action: "web_fetch", Observation: strings.Repeat("z", 5000)}}
	prompt := BuildIterationPrompt("read", window, 1, 3)
	assert.Less(t, len(prompt), 2500)
	assert.Contains(t, prompt, "characters were removed")
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, language.Indonesian, DetectLanguage("halo", nil))
	assert.Equal(t, language.English, DetectLanguage("hello", nil))
	assert.Equal(t, language.Indonesian, DetectLanguage("apa kabar?", nil))
	assert.Equal(t, language.English,
		DetectLanguage("Could you please explain how the garbage collector works in this runtime and why pauses are so short?", nil))
	assert.Equal(t, language.Indonesian,
		DetectLanguage("Tolong jelaskan bagaimana cara kerja pengumpul sampah pada bahasa pemrograman ini dan mengapa jedanya sangat singkat", nil))

	// Only configured languages are returned.
	assert.Equal(t, language.English, DetectLanguage("selamat pagi semuanya", []language.Tag{language.English}))
}

func TestDirectSystemPrompt(t *testing.T) {
	assert.Contains(t, directSystemPrompt(TaskConversational, language.Indonesian), "Bahasa Indonesia")
	assert.Contains(t, directSystemPrompt(TaskSimpleQA, language.Indonesian), "tanpa menggunakan alat")
	assert.Contains(t, directSystemPrompt(TaskConversational, language.English), "friendly")
	assert.Contains(t, directSystemPrompt(TaskSimpleQA, language.English), "without using tools")
}
