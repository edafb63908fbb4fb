package store

import (
	"context"
	"database/sql"
	"fmt"
)

const taskColumns = "id, kind, case_id, source_path, dest_path, automation_name, state, error_kind, error_message, stderr, enqueued_at, started_at, finished_at"

// RecordTask upserts a task history row.
func (s *Store) RecordTask(ctx context.Context, t TaskRecord) error {
	return s.exec(ctx, `INSERT INTO task_history (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET state = excluded.state, error_kind = excluded.error_kind,
			error_message = excluded.error_message, stderr = excluded.stderr,
			started_at = COALESCE(excluded.started_at, task_history.started_at),
			finished_at = COALESCE(excluded.finished_at, task_history.finished_at)`,
		t.ID, t.Kind, nullable(t.CaseID), nullable(t.SourcePath), nullable(t.DestPath), nullable(t.AutomationName),
		string(t.State), nullable(t.ErrorKind), nullable(t.ErrorMessage), nullable(t.Stderr),
		formatTime(t.EnqueuedAt), formatTime(t.StartedAt), formatTime(t.FinishedAt))
}

// RecentTasks returns up to limit history rows, newest first.
func (s *Store) RecentTasks(ctx context.Context, limit int) ([]TaskRecord, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+taskColumns+" FROM task_history ORDER BY enqueued_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		var (
			t                                TaskRecord
			state                            string
			caseID, source, dest, automation sql.NullString
			errKind, errMsg, stderr          sql.NullString
			enqueued, started, finished      sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Kind, &caseID, &source, &dest, &automation, &state,
			&errKind, &errMsg, &stderr, &enqueued, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.CaseID, t.SourcePath, t.DestPath, t.AutomationName = caseID.String, source.String, dest.String, automation.String
		t.State = TaskState(state)
		t.ErrorKind, t.ErrorMessage, t.Stderr = errKind.String, errMsg.String, stderr.String
		t.EnqueuedAt, t.StartedAt, t.FinishedAt = parseTime(enqueued), parseTime(started), parseTime(finished)
		out = append(out, t)
	}
	return out, rows.Err()
}

// FailInterruptedTasks marks tasks left non-terminal by a previous daemon run
// as failed. It returns the number of rows changed.
func (s *Store) FailInterruptedTasks(ctx context.Context, reason string) (int64, error) {
	ctx = ensureContext(ctx)
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			"UPDATE task_history SET state = ?, error_kind = 'transient', error_message = ? WHERE state NOT IN (?, ?)",
			string(TaskFailed), reason, string(TaskSucceeded), string(TaskFailed))
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("fail interrupted tasks: %w", err)
	}
	return affected, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
