package agentloop

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// maxPromptObservation caps each history observation echoed into a prompt.
const maxPromptObservation = 1500

// BuildEnvironmentContext generates the structured environment context block.
func BuildEnvironmentContext() string {
	var sb strings.Builder
	sb.WriteString("<environment>\n")
	if wd, err := os.Getwd(); err == nil {
		fmt.Fprintf(&sb, "Working directory: %s\n", wd)
	}
	fmt.Fprintf(&sb, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format("2006-01-02"))
	sb.WriteString("</environment>")
	return sb.String()
}

// BuildSystemPrompt enumerates the available tools with their schemas and
// gives the reasoning format and decision guidance for the loop.
func BuildSystemPrompt(tools []ToolDescriptor, cls Classification, policy ExecutionPolicy, experience Experience) string {
	var sb strings.Builder
	sb.WriteString("You are a task-solving agent. You work in steps: think, pick one tool, observe its result, and repeat until you can answer.\n\n")

	sb.WriteString("# Available tools\n\n")
	for _, t := range tools {
		fmt.Fprintf(&sb, "## %s\n%s\n", t.Name, t.Description)
		if len(t.Parameters) > 0 {
			if schema, err := json.Marshal(t.Parameters); err == nil {
				fmt.Fprintf(&sb, "Parameters (JSON schema): %s\n", schema)
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString("# Response format\n\n")
	sb.WriteString("Reply with exactly one of these two forms and nothing else:\n\n")
	sb.WriteString("Thought: <your reasoning>\nAction: <tool name>\nAction Input: <JSON object matching the tool parameters>\n\n")
	sb.WriteString("or\n\n")
	sb.WriteString("Thought: <your reasoning>\nFinal Answer: <the answer for the user>\n\n")
	sb.WriteString("Never write an Observation yourself; it is supplied after the tool runs.\n\n")

	sb.WriteString("# Guidance\n\n")
	fmt.Fprintf(&sb, "- The task was classified as %s. You have at most %d steps.\n", cls.Type, policy.MaxIterations)
	sb.WriteString("- Give the Final Answer as soon as an observation answers the task. Do not re-verify results you already have.\n")
	sb.WriteString("- Do not call the same tool with the same input twice. If a tool fails, change the input or the tool.\n")
	sb.WriteString("- Answer in the language the task was written in.\n")

	if !experience.Empty() {
		sb.WriteString("\n# Relevant experience\n\n")
		for _, e := range experience.SimilarExperiences {
			status := "failed"
			if e.Success {
				status = "succeeded"
			}
			fmt.Fprintf(&sb, "- Earlier task %q %s: %s\n", e.Task, status, truncateRunes(e.Outcome, 200))
		}
		for _, l := range experience.RelevantLessons {
			fmt.Fprintf(&sb, "- Lesson: %s\n", l.Lesson)
		}
	}

	sb.WriteString("\n")
	sb.WriteString(BuildEnvironmentContext())
	return sb.String()
}

// BuildIterationPrompt assembles the user turn for one iteration from the
// task, a bounded window of history and budget metadata.
func BuildIterationPrompt(task string, window []HistoryEntry, iteration, maxIterations int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n\n", task)

	if len(window) > 0 {
		sb.WriteString("Recent steps:\n")
		for _, e := range window {
			if e.Synthetic {
				fmt.Fprintf(&sb, "[system] %s\n", e.Observation)
				continue
			}
			fmt.Fprintf(&sb, "Action: %s\nAction Input: %s\nObservation: %s\n\n",
				e.Action, e.Input.String(), TruncateOutput(e.Observation, maxPromptObservation, TruncateHeadTail))
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Step %d of %d.", iteration, maxIterations)
	if remaining := maxIterations - iteration; remaining <= 1 {
		sb.WriteString(" This is your last step: give the Final Answer with what you have.")
	}
	sb.WriteString("\n")
	return sb.String()
}

var whatlangCodes = map[language.Tag]whatlanggo.Lang{
	language.English:    whatlanggo.Eng,
	language.Indonesian: whatlanggo.Ind,
}

// DetectLanguage picks the configured language a text is written in,
// defaulting to the first configured language.
func DetectLanguage(text string, languages []language.Tag) language.Tag {
	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	whitelist := make(map[whatlanggo.Lang]bool)
	for _, tag := range languages {
		if lang, ok := whatlangCodes[tag]; ok {
			whitelist[lang] = true
		}
	}

	// Short texts carry too little signal for trigram detection; prefer an
	// exact keyword hit such as a greeting.
	f := newFolded(text)
	for _, tag := range languages {
		if v, ok := vocabularies[tag]; ok && (f.hasAny(v.greetings) || f.startsWithAny(v.interrogatives)) && len(f.tokens) <= 3 {
			return tag
		}
	}

	info := whatlanggo.DetectWithOptions(text, whatlanggo.Options{Whitelist: whitelist})
	if info.Lang == -1 {
		return languages[0]
	}
	detected := language.Make(info.Lang.Iso6391())
	matcher := language.NewMatcher(languages)
	_, index, confidence := matcher.Match(detected)
	if confidence == language.No {
		return languages[0]
	}
	return languages[index]
}

// directSystemPrompt returns the system prompt for the direct path in the
// task's language.
func directSystemPrompt(t TaskType, lang language.Tag) string {
	base, _ := lang.Base()
	indonesian, _ := language.Indonesian.Base()
	if base == indonesian {
		if t == TaskConversational {
			return "Kamu adalah asisten yang ramah. Balas dengan singkat dan natural dalam Bahasa Indonesia."
		}
		return "Kamu adalah asisten yang membantu. Jawab pertanyaan secara langsung, akurat, dan singkat dalam Bahasa Indonesia tanpa menggunakan alat."
	}
	if t == TaskConversational {
		return "You are a friendly assistant. Reply briefly and naturally in English."
	}
	return "You are a helpful assistant. Answer the question directly, accurately and concisely in English without using tools."
}
