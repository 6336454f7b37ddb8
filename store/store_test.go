package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/martinemde/taskrouter/agentloop"
	"github.com/martinemde/taskrouter/unifiedllm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "taskrouter.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "taskrouter.db")
	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	var applied int
	require.NoError(t, second.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	assert.Equal(t, 1, applied)
}

func TestOpenInMemory(t *testing.T) {
	t.Parallel()

	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	snap, err := s.Load(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open("  ")
	assert.Error(t, err)
}

func TestMigrationVersion(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, migrationVersion("001_init.sql"))
	assert.Equal(t, 12, migrationVersion("12.sql"))
	assert.Equal(t, 0, migrationVersion("init.sql"))
}

func TestCloseNil(t *testing.T) {
	t.Parallel()

	var s *Store
	assert.NoError(t, s.Close())
}

func testSnapshot(id, task string) agentloop.Snapshot {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return agentloop.Snapshot{
		RunID: id,
		Task:  task,
		Classification: agentloop.Classification{
			Type:       agentloop.TaskFileOperation,
			Confidence: 0.8,
		},
		Answer:     "done",
		Outcome:    agentloop.OutcomeFinalAnswer,
		Usage:      unifiedllm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
	}
}

func TestSessionSaveLoad(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "run-1", testSnapshot("run-1", "read notes.txt")))

	got, err := s.Load(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "read notes.txt", got.Task)
	assert.Equal(t, agentloop.TaskFileOperation, got.Classification.Type)
	assert.Equal(t, agentloop.OutcomeFinalAnswer, got.Outcome)
	assert.Equal(t, 15, got.Usage.TotalTokens)
	assert.True(t, got.FinishedAt.Equal(got.StartedAt.Add(2*time.Second)))

	// Saving the same id replaces the snapshot.
	updated := testSnapshot("run-1", "read notes.txt")
	updated.Answer = "changed"
	updated.Outcome = agentloop.OutcomeExhausted
	require.NoError(t, s.Save(ctx, "run-1", updated))

	got, err = s.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "changed", got.Answer)

	list, err := s.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, agentloop.OutcomeExhausted, list[0].Outcome)
	assert.Equal(t, agentloop.TaskFileOperation, list[0].TaskType)
}

func TestSessionSaveRequiresID(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	assert.Error(t, s.Save(context.Background(), "", testSnapshot("", "x")))
}

func TestListAndDeleteSessions(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, id, testSnapshot(id, "task "+id)))
	}

	list, err := s.ListSessions(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, s.DeleteSession(ctx, "b"))
	list, err = s.ListSessions(ctx, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, item := range list {
		ids = append(ids, item.ID)
	}
	assert.ElementsMatch(t, []string{"a", "c"}, ids)
}

func TestLearnFromTaskSuccess(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	report, err := s.LearnFromTask(ctx, agentloop.TaskRecord{
		Task:     "create file config.json with defaults",
		TaskType: agentloop.TaskFileOperation,
		Actions:  []string{"file_manager"},
		Outcome:  "File config.json created successfully",
		Success:  true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, report.ExperienceID)
	assert.Equal(t, 1, report.LessonsCount)
	assert.Equal(t, 1, report.StrategiesCount)
	assert.Zero(t, report.ImprovementsSuggested)

	exp, err := s.RelevantExperience(ctx, "Create the file settings.json", 3)
	require.NoError(t, err)
	require.Len(t, exp.SimilarExperiences, 1)
	assert.True(t, exp.SimilarExperiences[0].Success)
	assert.Equal(t, "create file config.json with defaults", exp.SimilarExperiences[0].Task)
	require.Len(t, exp.RelevantLessons, 1)
	assert.Equal(t, "For file_operation tasks, the sequence file_manager reached an answer", exp.RelevantLessons[0].Lesson)
}

func TestLearnFromTaskFailure(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	report, err := s.LearnFromTask(ctx, agentloop.TaskRecord{
		Task:     "scan the network for open ports",
		TaskType: agentloop.TaskPentest,
		Actions:  []string{"terminal", "terminal"},
		Outcome:  "Error: rate limit exceeded",
		Errors:   []string{"terminal: command not found", "terminal: command not found", "iteration 2: no action"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.LessonsCount)
	assert.Zero(t, report.StrategiesCount)
	assert.Zero(t, report.ImprovementsSuggested)

	report, err = s.LearnFromTask(ctx, agentloop.TaskRecord{
		Task:     "scan ports on the staging host",
		TaskType: agentloop.TaskPentest,
		Outcome:  "I was unable to complete the task within the allowed steps.",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.ImprovementsSuggested)

	exp, err := s.RelevantExperience(ctx, "scan ports", 5)
	require.NoError(t, err)
	require.Len(t, exp.SimilarExperiences, 2)
	var lessons []string
	for _, l := range exp.RelevantLessons {
		lessons = append(lessons, l.Lesson)
	}
	assert.Contains(t, lessons, "In a pentest task this failed: terminal: command not found")
	assert.Contains(t, lessons, "In a pentest task this failed: iteration 2: no action")
}

func TestRelevantExperienceRanking(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	tasks := []string{
		"search latest golang release notes",
		"search weather forecast",
		"write a python function",
	}
	for _, task := range tasks {
		_, err := s.LearnFromTask(ctx, agentloop.TaskRecord{Task: task, Success: true, Actions: []string{"web_search"}})
		require.NoError(t, err)
	}

	exp, err := s.RelevantExperience(ctx, "search golang release", 5)
	require.NoError(t, err)
	require.Len(t, exp.SimilarExperiences, 2)
	assert.Equal(t, tasks[0], exp.SimilarExperiences[0].Task)
	assert.Equal(t, tasks[1], exp.SimilarExperiences[1].Task)
	// Lessons shared by several experiences are returned once.
	assert.Len(t, exp.RelevantLessons, 1)

	exp, err = s.RelevantExperience(ctx, "search golang release", 1)
	require.NoError(t, err)
	assert.Len(t, exp.SimilarExperiences, 1)

	exp, err = s.RelevantExperience(ctx, "bake bread", 5)
	require.NoError(t, err)
	assert.True(t, exp.Empty())

	exp, err = s.RelevantExperience(ctx, "search", 0)
	require.NoError(t, err)
	assert.True(t, exp.Empty())
}

func TestRelevantExperienceConcurrent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.LearnFromTask(ctx, agentloop.TaskRecord{Task: "list files in the workspace", Success: true, Actions: []string{"file_manager"}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]agentloop.Experience, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.RelevantExperience(ctx, "list workspace files", 2)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Len(t, results[i].SimilarExperiences, 1)
	}
}

func TestRelevantExperienceCancelledCallerDoesNotFailOthers(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.LearnFromTask(ctx, agentloop.TaskRecord{Task: "list files in the workspace", Success: true, Actions: []string{"file_manager"}})
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	var wg sync.WaitGroup
	var cancelledErr, liveErr error
	var live agentloop.Experience
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, cancelledErr = s.RelevantExperience(cancelled, "list workspace files", 2)
	}()
	go func() {
		defer wg.Done()
		live, liveErr = s.RelevantExperience(ctx, "list workspace files", 2)
	}()
	wg.Wait()

	assert.ErrorIs(t, cancelledErr, context.Canceled)
	require.NoError(t, liveErr)
	assert.Len(t, live.SimilarExperiences, 1)
}

func TestTaskTerms(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"create", "file", "config", "json"}, taskTerms("Create the FILE config.json, please"))
	assert.Equal(t, []string{"buat", "file", "baru"}, taskTerms("tolong buat file baru"))
	assert.Empty(t, taskTerms("a an to"))
}

func TestDeriveLessonsClipsLongErrors(t *testing.T) {
	t.Parallel()

	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	lessons := deriveLessons(agentloop.TaskRecord{Errors: []string{string(long)}})
	require.Len(t, lessons, 1)
	assert.Equal(t, lessonFailure, lessons[0].kind)
	assert.Len(t, lessons[0].text, maxLessonText)
	assert.Contains(t, lessons[0].text, "general task")
}
