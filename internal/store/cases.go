package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PutCase inserts or updates a case.
func (s *Store) PutCase(ctx context.Context, c Case) error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("case id is required")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	return s.exec(ctx, `INSERT INTO cases (id, remote_path, local_path, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET remote_path = excluded.remote_path, local_path = excluded.local_path`,
		c.ID, c.RemotePath, c.LocalPath, formatTime(c.CreatedAt))
}

// GetCase returns the case or nil when it does not exist.
func (s *Store) GetCase(ctx context.Context, id string) (*Case, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT id, remote_path, local_path, created_at FROM cases WHERE id = ?", id)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get case %s: %w", id, err)
	}
	return c, nil
}

// ListCases returns every case ordered by id.
func (s *Store) ListCases(ctx context.Context) ([]Case, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT id, remote_path, local_path, created_at FROM cases ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	var cases []Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		cases = append(cases, *c)
	}
	return cases, rows.Err()
}

// DeleteCase removes a case together with its records, sync state, and favorites.
func (s *Store) DeleteCase(ctx context.Context, id string) error {
	return s.exec(ctx, "DELETE FROM cases WHERE id = ?", id)
}

func scanCase(scanner interface{ Scan(dest ...any) error }) (*Case, error) {
	var (
		c       Case
		created sql.NullString
	)
	if err := scanner.Scan(&c.ID, &c.RemotePath, &c.LocalPath, &created); err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(created)
	return &c, nil
}

// GetSyncState returns the poll state of a case. ok is false when the case
// has never been polled.
func (s *Store) GetSyncState(ctx context.Context, caseID string) (state CaseSyncState, ok bool, err error) {
	ctx = ensureContext(ctx)
	var polled sql.NullString
	err = s.db.QueryRowContext(ctx,
		"SELECT case_id, last_file_count, last_poll_time FROM case_sync_state WHERE case_id = ?", caseID,
	).Scan(&state.CaseID, &state.LastFileCount, &polled)
	if errors.Is(err, sql.ErrNoRows) {
		return CaseSyncState{CaseID: caseID}, false, nil
	}
	if err != nil {
		return CaseSyncState{}, false, fmt.Errorf("get sync state %s: %w", caseID, err)
	}
	state.LastPollTime = parseTime(polled)
	return state, true, nil
}

// PutSyncState upserts the poll state of a case.
func (s *Store) PutSyncState(ctx context.Context, state CaseSyncState) error {
	return s.exec(ctx, `INSERT INTO case_sync_state (case_id, last_file_count, last_poll_time) VALUES (?, ?, ?)
		ON CONFLICT(case_id) DO UPDATE SET last_file_count = excluded.last_file_count,
			last_poll_time = COALESCE(excluded.last_poll_time, case_sync_state.last_poll_time)`,
		state.CaseID, state.LastFileCount, formatTime(state.LastPollTime))
}
