package state

import (
	"context"
	"database/sql"
	"fmt"
)

// RecordTaskRun stores the outcome of a task and sets tr.ID.
func (s *SQLiteStore) RecordTaskRun(ctx context.Context, tr *TaskRun) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO task_runs (run_id, task, status, started_at, duration_ms, error) VALUES (?, ?, ?, ?, ?, ?)`,
		tr.RunID, tr.Task, string(tr.Status), tr.StartedAt.UTC(), tr.DurationMS, nullString(tr.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to record task %s: %w", tr.Task, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		tr.ID = id
	}
	return nil
}

// GetTaskRuns returns the task outcomes of a run in the order they finished.
func (s *SQLiteStore) GetTaskRuns(ctx context.Context, runID string) ([]*TaskRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, task, status, started_at, duration_ms, error
		 FROM task_runs WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*TaskRun
	for rows.Next() {
		tr := &TaskRun{}
		var status string
		var errMsg sql.NullString
		if err := rows.Scan(&tr.ID, &tr.RunID, &tr.Task, &status, &tr.StartedAt, &tr.DurationMS, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan task run: %w", err)
		}
		tr.Status = TaskStatus(status)
		tr.Error = errMsg.String
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get task runs: %w", err)
	}
	return out, nil
}
