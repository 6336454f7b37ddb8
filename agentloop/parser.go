package agentloop

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Markers are recognized case-insensitively at the start of a line.
// "action input" must precede "action" in the alternation.
var markerPattern = regexp.MustCompile(`(?im)^[ \t]*(thought|action input|action|final answer|observation)[ \t]*:`)

var fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// ParsedStep is one reasoning step produced by the model. Thought is always
// present on a valid step, together with exactly one of an action (with its
// input) or a final answer.
type ParsedStep struct {
	Thought     string      `json:"thought"`
	Action      string      `json:"action,omitempty"`
	Input       ActionInput `json:"action_input"`
	FinalAnswer string      `json:"final_answer,omitempty"`

	hasInput bool
	hasFinal bool
}

// IsFinalAnswer reports whether the step ends the loop.
func (s *ParsedStep) IsFinalAnswer() bool {
	return s != nil && s.hasFinal
}

// HasInput reports whether an Action Input payload was present.
func (s *ParsedStep) HasInput() bool {
	return s != nil && s.hasInput
}

// Validate checks the shape of the step.
func (s *ParsedStep) Validate() error {
	switch {
	case s == nil:
		return &ParseError{Reason: "empty step"}
	case s.Thought == "":
		return &ParseError{Reason: "missing thought"}
	case s.hasFinal:
		return nil
	case s.Action == "":
		return &ParseError{Reason: "missing action or final answer"}
	case !s.hasInput:
		return &ParseError{Reason: "action without action input"}
	}
	return nil
}

type section struct {
	marker     string
	at         int // offset of the marker itself
	start, end int // body bounds in the source text
}

// ParseStep parses model output in the ReAct wire format:
//
//	Thought: <text>
//	Final Answer: <text>
//
// or
//
//	Thought: <text>
//	Action: <tool name>
//	Action Input: <json object or plain text>
//
// A final answer wins over any action present. The returned step is never
// nil; the error is the result of Validate, so callers can inspect partial
// parses.
func ParseStep(text string) (*ParsedStep, error) {
	step := &ParsedStep{}
	sections := splitSections(text)

	if sec, ok := firstSection(sections, "thought"); ok {
		step.Thought = strings.TrimSpace(text[sec.start:sec.end])
	}

	if sec, ok := firstSection(sections, "final answer"); ok {
		answer := strings.TrimSpace(text[sec.start:])
		if answer != "" {
			step.FinalAnswer = answer
			step.hasFinal = true
			return step, wrapParseError(step.Validate(), text)
		}
	}

	if sec, ok := firstSection(sections, "action"); ok {
		body := strings.TrimSpace(text[sec.start:sec.end])
		if i := strings.IndexByte(body, '\n'); i >= 0 {
			body = body[:i]
		}
		step.Action = strings.Trim(strings.TrimSpace(body), "`\"'")
	}

	if sec, ok := firstSection(sections, "action input"); ok {
		// The payload runs to the end of text, stopping only at an
		// observation the model invented for itself.
		end := len(text)
		for _, other := range sections {
			if other.marker == "observation" && other.at > sec.start {
				end = other.at
				break
			}
		}
		payload := strings.TrimSpace(text[sec.start:end])
		if payload != "" {
			step.Input = parseActionInput(payload)
			step.hasInput = true
		}
	}

	return step, wrapParseError(step.Validate(), text)
}

func wrapParseError(err error, text string) error {
	if err == nil {
		return nil
	}
	if pe, ok := err.(*ParseError); ok {
		pe.Text = text
	}
	return err
}

func splitSections(text string) []section {
	matches := markerPattern.FindAllStringSubmatchIndex(text, -1)
	sections := make([]section, 0, len(matches))
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		sections = append(sections, section{
			marker: strings.ToLower(text[m[2]:m[3]]),
			at:     m[0],
			start:  m[1],
			end:    end,
		})
	}
	return sections
}

func firstSection(sections []section, marker string) (section, bool) {
	for _, s := range sections {
		if s.marker == marker {
			return s, true
		}
	}
	return section{}, false
}

// parseActionInput interprets the payload as a JSON object, optionally
// wrapped in a code fence, and falls back to the raw text.
func parseActionInput(payload string) ActionInput {
	candidate := payload
	if m := fencePattern.FindStringSubmatch(candidate); m != nil {
		candidate = m[1]
	}
	if strings.HasPrefix(candidate, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
			return StructuredInput(obj)
		}
	}
	if strings.HasPrefix(candidate, `"`) {
		var s string
		if err := json.Unmarshal([]byte(candidate), &s); err == nil {
			return RawInput(s)
		}
	}
	return RawInput(candidate)
}
