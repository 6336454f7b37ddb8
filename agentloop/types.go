package agentloop

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/martinemde/taskrouter/unifiedllm"
)

// TaskType is the category assigned to a task by the Classifier.
type TaskType string

const (
	TaskConversational   TaskType = "conversational"
	TaskSimpleQA         TaskType = "simple_qa"
	TaskFileOperation    TaskType = "file_operation"
	TaskWebSearch        TaskType = "web_search"
	TaskCodeGeneration   TaskType = "code_generation"
	TaskPentest          TaskType = "pentest"
	TaskTerminalCommand  TaskType = "terminal_command"
	TaskComplexMultiStep TaskType = "complex_multi_step"
)

// AllTaskTypes lists every TaskType in classification priority order, with
// the fallback-only type last.
var AllTaskTypes = []TaskType{
	TaskConversational,
	TaskPentest,
	TaskFileOperation,
	TaskCodeGeneration,
	TaskWebSearch,
	TaskTerminalCommand,
	TaskSimpleQA,
	TaskComplexMultiStep,
}

// Valid reports whether t is one of the known task types.
func (t TaskType) Valid() bool {
	for _, known := range AllTaskTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Classification is the result of classifying a task. Confidence is a
// heuristic weight in [0,1], not a probability.
type Classification struct {
	Type       TaskType `json:"type"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason,omitempty"`
}

// ExecutionPolicy is derived from a TaskType. An empty AllowedTools means
// every registered tool is allowed.
type ExecutionPolicy struct {
	AllowedTools  []string `json:"allowed_tools"`
	Temperature   float64  `json:"temperature"`
	MaxIterations int      `json:"max_iterations"`
}

// Allows reports whether the policy permits the named tool.
func (p ExecutionPolicy) Allows(name string) bool {
	if len(p.AllowedTools) == 0 {
		return true
	}
	for _, allowed := range p.AllowedTools {
		if allowed == name {
			return true
		}
	}
	return false
}

// ActionInput is the payload of an action: either structured key/value data
// or the raw text when the payload did not parse as an object.
type ActionInput struct {
	Structured map[string]any
	Raw        string
}

// StructuredInput wraps a key/value payload.
func StructuredInput(m map[string]any) ActionInput {
	if m == nil {
		m = map[string]any{}
	}
	return ActionInput{Structured: m}
}

// RawInput wraps a plain-text payload.
func RawInput(s string) ActionInput {
	return ActionInput{Raw: s}
}

// IsStructured reports whether the input holds key/value data.
func (in ActionInput) IsStructured() bool {
	return in.Structured != nil
}

// IsZero reports whether the input carries nothing at all.
func (in ActionInput) IsZero() bool {
	return in.Structured == nil && in.Raw == ""
}

// String renders the input as it would appear in a prompt.
func (in ActionInput) String() string {
	if in.IsStructured() {
		b, err := json.Marshal(in.Structured)
		if err != nil {
			return fmt.Sprintf("%v", in.Structured)
		}
		return string(b)
	}
	return in.Raw
}

// Decode fills v from a structured input by round-tripping through JSON.
func (in ActionInput) Decode(v any) error {
	if !in.IsStructured() {
		return errors.New("action input is not structured")
	}
	b, err := json.Marshal(in.Structured)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// MarshalJSON encodes structured input as an object and raw input as a string.
func (in ActionInput) MarshalJSON() ([]byte, error) {
	if in.IsStructured() {
		return json.Marshal(in.Structured)
	}
	return json.Marshal(in.Raw)
}

// UnmarshalJSON accepts either an object or a string.
func (in *ActionInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		*in = StructuredInput(m)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*in = RawInput(s)
	return nil
}

// HistoryEntry is one completed action/observation cycle. Synthetic entries
// are injected by the orchestrator (loop warnings) and are ignored by loop,
// stagnation and alternation detection.
type HistoryEntry struct {
	Action      string      `json:"action"`
	Input       ActionInput `json:"input"`
	Observation string      `json:"observation"`
	Synthetic   bool        `json:"synthetic,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// ErrIterationBudget is returned by Advance when the iteration budget is spent.
var ErrIterationBudget = errors.New("iteration budget exhausted")

// ExecutionState is the per-run working memory. It is owned by a single run
// and never shared across tasks.
type ExecutionState struct {
	Task          string         `json:"task"`
	History       []HistoryEntry `json:"history"`
	Iteration     int            `json:"iteration"`
	MaxIterations int            `json:"max_iterations"`
	Errors        []string       `json:"errors"`
}

// NewExecutionState creates the state for a run with the given budget.
func NewExecutionState(task string, maxIterations int) *ExecutionState {
	if maxIterations <= 0 {
		maxIterations = 1
	}
	return &ExecutionState{
		Task:          task,
		MaxIterations: maxIterations,
	}
}

// Advance consumes one iteration.
func (s *ExecutionState) Advance() error {
	if s.Iteration >= s.MaxIterations {
		return ErrIterationBudget
	}
	s.Iteration++
	return nil
}

// Exhausted reports whether no iterations remain.
func (s *ExecutionState) Exhausted() bool {
	return s.Iteration >= s.MaxIterations
}

// Append records a completed cycle.
func (s *ExecutionState) Append(entry HistoryEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	s.History = append(s.History, entry)
}

// RecordError adds a message to the run's error list.
func (s *ExecutionState) RecordError(msg string) {
	s.Errors = append(s.Errors, msg)
}

// Actions returns the names of all non-synthetic actions in order.
func (s *ExecutionState) Actions() []string {
	var actions []string
	for _, e := range s.History {
		if !e.Synthetic {
			actions = append(actions, e.Action)
		}
	}
	return actions
}

// LastObservation returns the most recent non-synthetic observation.
func (s *ExecutionState) LastObservation() string {
	for i := len(s.History) - 1; i >= 0; i-- {
		if !s.History[i].Synthetic {
			return s.History[i].Observation
		}
	}
	return ""
}

// Window returns the trailing n history entries.
func (s *ExecutionState) Window(n int) []HistoryEntry {
	if n <= 0 || len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// ToolOutcome is the result of one tool invocation.
type ToolOutcome struct {
	Success  bool           `json:"success"`
	Output   string         `json:"output"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Outcome tells how a run terminated.
type Outcome string

const (
	OutcomeDirect           Outcome = "direct"
	OutcomeFinalAnswer      Outcome = "final_answer"
	OutcomeForcedConclusion Outcome = "forced_conclusion"
	OutcomeExhausted        Outcome = "exhausted"
	OutcomeError            Outcome = "error"
)

// Succeeded reports whether the outcome produced an answer rather than an
// error.
func (o Outcome) Succeeded() bool {
	switch o {
	case OutcomeDirect, OutcomeFinalAnswer, OutcomeForcedConclusion:
		return true
	}
	return false
}

// Result is what Run returns. Answer is always a plain string, including
// for errors; Outcome distinguishes the cases.
type Result struct {
	RunID          string           `json:"run_id"`
	Task           string           `json:"task"`
	Answer         string           `json:"answer"`
	Outcome        Outcome          `json:"outcome"`
	Reason         string           `json:"reason,omitempty"`
	TaskType       TaskType         `json:"task_type"`
	Classification Classification   `json:"classification"`
	Iterations     int              `json:"iterations"`
	History        []HistoryEntry   `json:"history"`
	Errors         []string         `json:"errors"`
	Usage          unifiedllm.Usage `json:"usage"`
	StartedAt      time.Time        `json:"started_at"`
	Duration       time.Duration    `json:"duration"`
}

// Snapshot is the serializable projection of a run handed to a SessionStore.
type Snapshot struct {
	RunID          string           `json:"run_id"`
	Task           string           `json:"task"`
	Classification Classification   `json:"classification"`
	Policy         ExecutionPolicy  `json:"policy"`
	State          ExecutionState   `json:"state"`
	Answer         string           `json:"answer"`
	Outcome        Outcome          `json:"outcome"`
	Usage          unifiedllm.Usage `json:"usage"`
	StartedAt      time.Time        `json:"started_at"`
	FinishedAt     time.Time        `json:"finished_at"`
}
