package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/martinemde/taskrouter/agentloop"
)

// SessionSummary is a listing row of a saved run.
type SessionSummary struct {
	ID        string             `json:"id"`
	Task      string             `json:"task"`
	TaskType  agentloop.TaskType `json:"task_type"`
	Outcome   agentloop.Outcome  `json:"outcome"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Save stores or replaces the snapshot of run id.
func (s *Store) Save(ctx context.Context, id string, snapshot agentloop.Snapshot) error {
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO sessions (id, task, task_type, outcome, snapshot_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			task=excluded.task,
			task_type=excluded.task_type,
			outcome=excluded.outcome,
			snapshot_json=excluded.snapshot_json,
			updated_at=excluded.updated_at`,
		id,
		snapshot.Task,
		string(snapshot.Classification.Type),
		string(snapshot.Outcome),
		string(payload),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	return nil
}

// Load returns the snapshot of run id, or nil when none was saved.
func (s *Store) Load(ctx context.Context, id string) (*agentloop.Snapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot_json FROM sessions WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	var snap agentloop.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &snap, nil
}

// ListSessions returns the most recent sessions first. limit <= 0 means 50.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, task, task_type, outcome, created_at, updated_at
		 FROM sessions
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]SessionSummary, 0)
	for rows.Next() {
		var item SessionSummary
		var taskType, outcome string
		if err := rows.Scan(&item.ID, &item.Task, &taskType, &outcome, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		item.TaskType = agentloop.TaskType(taskType)
		item.Outcome = agentloop.Outcome(outcome)
		ret = append(ret, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// DeleteSession removes a saved run.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}
