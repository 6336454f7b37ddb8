package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/martinemde/taskrouter/agentloop"
	"golang.org/x/text/cases"
)

const (
	lessonFailure  = "failure"
	lessonStrategy = "strategy"
	lessonAdvice   = "improvement"

	// candidateLimit bounds how many recent experiences are scored per lookup.
	candidateLimit = 500
	maxLessonText  = 240
)

// stopTerms are frequent words that carry no signal for similarity.
var stopTerms = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "this": {}, "that": {},
	"from": {}, "into": {}, "what": {}, "how": {}, "please": {},
	"yang": {}, "dan": {}, "untuk": {}, "dari": {}, "ini": {}, "itu": {},
	"dengan": {}, "apa": {}, "tolong": {},
}

// LearnFromTask records a finished run and the lessons derived from it.
func (s *Store) LearnFromTask(ctx context.Context, record agentloop.TaskRecord) (agentloop.LearningReport, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	actions, err := json.Marshal(nonNil(record.Actions))
	if err != nil {
		return agentloop.LearningReport{}, fmt.Errorf("encode actions: %w", err)
	}
	errs, err := json.Marshal(nonNil(record.Errors))
	if err != nil {
		return agentloop.LearningReport{}, fmt.Errorf("encode errors: %w", err)
	}

	lessons := deriveLessons(record)
	report := agentloop.LearningReport{ExperienceID: id, LessonsCount: len(lessons)}
	for _, l := range lessons {
		switch l.kind {
		case lessonStrategy:
			report.StrategiesCount++
		case lessonAdvice:
			report.ImprovementsSuggested++
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return agentloop.LearningReport{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO experiences (id, task, task_type, terms, actions_json, outcome, success, errors_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		record.Task,
		string(record.TaskType),
		strings.Join(taskTerms(record.Task), " "),
		string(actions),
		record.Outcome,
		boolToInt(record.Success),
		string(errs),
		now,
	); err != nil {
		return agentloop.LearningReport{}, fmt.Errorf("insert experience: %w", err)
	}
	for _, l := range lessons {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO lessons (experience_id, task_type, kind, lesson, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, string(record.TaskType), l.kind, l.text, now,
		); err != nil {
			return agentloop.LearningReport{}, fmt.Errorf("insert lesson: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return agentloop.LearningReport{}, err
	}
	return report, nil
}

// RelevantExperience returns up to n recorded tasks sharing terms with task,
// best match first, with their lessons. Concurrent identical lookups share
// one query.
func (s *Store) RelevantExperience(ctx context.Context, task string, n int) (agentloop.Experience, error) {
	if n <= 0 {
		return agentloop.Experience{}, nil
	}
	terms := taskTerms(task)
	if len(terms) == 0 {
		return agentloop.Experience{}, nil
	}
	key := fmt.Sprintf("%d|%s", n, strings.Join(terms, " "))
	// The shared query outlives any one caller's cancellation.
	shared := context.WithoutCancel(ctx)
	ch := s.lookups.DoChan(key, func() (any, error) {
		return s.relevantExperience(shared, terms, n)
	})
	select {
	case <-ctx.Done():
		return agentloop.Experience{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return agentloop.Experience{}, res.Err
		}
		return res.Val.(agentloop.Experience), nil
	}
}

type scoredExperience struct {
	id        string
	past      agentloop.PastExperience
	score     float64
	createdAt time.Time
}

func (s *Store) relevantExperience(ctx context.Context, terms []string, n int) (agentloop.Experience, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, task, terms, outcome, success, created_at
		 FROM experiences
		 ORDER BY created_at DESC
		 LIMIT ?`,
		candidateLimit,
	)
	if err != nil {
		return agentloop.Experience{}, fmt.Errorf("query experiences: %w", err)
	}
	defer rows.Close()

	want := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		want[t] = struct{}{}
	}

	var matches []scoredExperience
	for rows.Next() {
		var (
			item    scoredExperience
			stored  string
			success int
		)
		if err := rows.Scan(&item.id, &item.past.Task, &stored, &item.past.Outcome, &success, &item.createdAt); err != nil {
			return agentloop.Experience{}, err
		}
		shared := 0
		for _, t := range strings.Fields(stored) {
			if _, ok := want[t]; ok {
				shared++
			}
		}
		if shared == 0 {
			continue
		}
		item.past.Success = success != 0
		item.score = float64(shared) / float64(len(want))
		matches = append(matches, item)
	}
	if err := rows.Err(); err != nil {
		return agentloop.Experience{}, err
	}
	_ = rows.Close()

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].createdAt.After(matches[j].createdAt)
	})
	if len(matches) > n {
		matches = matches[:n]
	}

	var exp agentloop.Experience
	seen := make(map[string]struct{})
	for _, m := range matches {
		exp.SimilarExperiences = append(exp.SimilarExperiences, m.past)
		lessons, err := s.lessonsFor(ctx, m.id)
		if err != nil {
			return agentloop.Experience{}, err
		}
		for _, l := range lessons {
			if _, ok := seen[l]; ok || len(exp.RelevantLessons) >= n*2 {
				continue
			}
			seen[l] = struct{}{}
			exp.RelevantLessons = append(exp.RelevantLessons, agentloop.Lesson{Lesson: l})
		}
	}
	return exp, nil
}

func (s *Store) lessonsFor(ctx context.Context, experienceID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT lesson FROM lessons WHERE experience_id = ? ORDER BY id`, experienceID)
	if err != nil {
		return nil, fmt.Errorf("query lessons: %w", err)
	}
	defer rows.Close()
	var ret []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		ret = append(ret, l)
	}
	return ret, rows.Err()
}

type lesson struct {
	kind string
	text string
}

// deriveLessons turns a run record into lessons: one per distinct error, a
// strategy for a successful action sequence, and advice for a failure that
// left no error behind.
func deriveLessons(record agentloop.TaskRecord) []lesson {
	taskType := string(record.TaskType)
	if taskType == "" {
		taskType = "general"
	}
	var out []lesson
	seen := make(map[string]struct{})
	for _, e := range record.Errors {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, lesson{kind: lessonFailure, text: clip(fmt.Sprintf("In a %s task this failed: %s", taskType, e))})
	}
	switch {
	case record.Success && len(record.Actions) > 0:
		out = append(out, lesson{kind: lessonStrategy, text: clip(fmt.Sprintf("For %s tasks, the sequence %s reached an answer", taskType, strings.Join(record.Actions, " -> ")))})
	case !record.Success && len(seen) == 0:
		out = append(out, lesson{kind: lessonAdvice, text: clip(fmt.Sprintf("A similar %s task ran out of steps; give the Final Answer as soon as an observation answers it", taskType))})
	}
	return out
}

// taskTerms returns the distinct case-folded words of task that are at least
// three characters long and not stop words, in order of appearance.
func taskTerms(task string) []string {
	text := cases.Fold().String(task)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	seen := make(map[string]struct{}, len(words))
	var terms []string
	for _, w := range words {
		if utf8.RuneCountInString(w) < 3 {
			continue
		}
		if _, ok := stopTerms[w]; ok {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		terms = append(terms, w)
	}
	return terms
}

func clip(s string) string {
	if utf8.RuneCountInString(s) <= maxLessonText {
		return s
	}
	r := []rune(s)
	return string(r[:maxLessonText-3]) + "..."
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
