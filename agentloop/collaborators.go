package agentloop

import (
	"context"

	"github.com/martinemde/taskrouter/unifiedllm"
)

// Completer is the completion service the orchestrator drives.
// *unifiedllm.Client satisfies it. Usage statistics are cumulative across
// calls until ResetTokenStats.
type Completer interface {
	Chat(ctx context.Context, messages []unifiedllm.Message, temperature float64, maxTokens int) (*unifiedllm.Response, error)
	TokenStats() unifiedllm.Usage
	ResetTokenStats()
}

// PastExperience is a previously recorded task.
type PastExperience struct {
	Task    string `json:"task"`
	Outcome string `json:"outcome"`
	Success bool   `json:"success"`
}

// Lesson is advice derived from earlier tasks.
type Lesson struct {
	Lesson string `json:"lesson"`
}

// Experience is what a Learner knows about tasks similar to the current one.
type Experience struct {
	SimilarExperiences []PastExperience `json:"similar_experiences"`
	RelevantLessons    []Lesson         `json:"relevant_lessons"`
}

// Empty reports whether there is nothing to share.
func (e Experience) Empty() bool {
	return len(e.SimilarExperiences) == 0 && len(e.RelevantLessons) == 0
}

// TaskRecord is written to the Learner after a run terminates.
type TaskRecord struct {
	Task     string         `json:"task"`
	TaskType TaskType       `json:"task_type"`
	Actions  []string       `json:"actions"`
	Outcome  string         `json:"outcome"`
	Success  bool           `json:"success"`
	Errors   []string       `json:"errors"`
	Context  map[string]any `json:"context,omitempty"`
}

// LearningReport summarizes what a Learner stored.
type LearningReport struct {
	ExperienceID          string `json:"experience_id"`
	LessonsCount          int    `json:"lessons_count"`
	StrategiesCount       int    `json:"strategies_count"`
	ImprovementsSuggested int    `json:"improvements_suggested"`
}

// Learner is the learning/memory collaborator.
type Learner interface {
	RelevantExperience(ctx context.Context, task string, n int) (Experience, error)
	LearnFromTask(ctx context.Context, record TaskRecord) (LearningReport, error)
}

// SessionStore persists run snapshots. Load returns nil, nil when the id is
// unknown.
type SessionStore interface {
	Save(ctx context.Context, id string, snapshot Snapshot) error
	Load(ctx context.Context, id string) (*Snapshot, error)
}
