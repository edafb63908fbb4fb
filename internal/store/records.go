package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const recordColumns = "case_id, path, location, name, type, size, created_at, modified_at, depth_index, favorite, notes"

// UpsertFileRecords writes records keyed by (case, path, location) in one
// transaction. Notes already attached to a record are preserved when the
// incoming record carries none. Records for files that no longer exist are
// left untouched.
func (s *Store) UpsertFileRecords(ctx context.Context, records []FileRecord) error {
	if len(records) == 0 {
		return nil
	}
	ctx = ensureContext(ctx)
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO file_records (`+recordColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(case_id, path, location) DO UPDATE SET
				name = excluded.name,
				type = excluded.type,
				size = excluded.size,
				created_at = excluded.created_at,
				modified_at = excluded.modified_at,
				depth_index = excluded.depth_index,
				favorite = excluded.favorite,
				notes = COALESCE(excluded.notes, file_records.notes)`)
		if err != nil {
			return fmt.Errorf("prepare record upsert: %w", err)
		}
		defer stmt.Close()

		for _, r := range records {
			if r.CaseID == "" || r.Path == "" {
				return fmt.Errorf("record %q: case id and path are required", r.Path)
			}
			var notes any
			if strings.TrimSpace(r.Notes) != "" {
				notes = r.Notes
			}
			if _, err := stmt.ExecContext(ctx,
				r.CaseID, r.Path, string(r.Location), r.Name, r.Type, r.Size,
				formatTime(r.CreatedAt), formatTime(r.ModifiedAt), r.DepthIndex, boolToInt(r.Favorite), notes,
			); err != nil {
				return fmt.Errorf("upsert record %s: %w", r.Path, err)
			}
		}
		return nil
	})
}

// GetFileRecord returns a single record or nil.
func (s *Store) GetFileRecord(ctx context.Context, caseID, path string, location Location) (*FileRecord, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM file_records WHERE case_id = ? AND path = ? AND location = ?",
		caseID, path, string(location))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", path, err)
	}
	return rec, nil
}

// ListFileRecords returns a case's records for one location ordered by depth
// then path. An empty location lists both.
func (s *Store) ListFileRecords(ctx context.Context, caseID string, location Location) ([]FileRecord, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + recordColumns + " FROM file_records WHERE case_id = ?"
	args := []any{caseID}
	if location != "" {
		query += " AND location = ?"
		args = append(args, string(location))
	}
	query += " ORDER BY location, depth_index, path"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// SetNotes attaches a free-form note to a record.
func (s *Store) SetNotes(ctx context.Context, caseID, path string, location Location, notes string) error {
	return s.exec(ctx, "UPDATE file_records SET notes = ? WHERE case_id = ? AND path = ? AND location = ?",
		notes, caseID, path, string(location))
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*FileRecord, error) {
	var (
		rec      FileRecord
		location string
		created  sql.NullString
		modified sql.NullString
		favorite int
		notes    sql.NullString
	)
	if err := scanner.Scan(&rec.CaseID, &rec.Path, &location, &rec.Name, &rec.Type, &rec.Size,
		&created, &modified, &rec.DepthIndex, &favorite, &notes); err != nil {
		return nil, err
	}
	rec.Location = Location(location)
	rec.CreatedAt = parseTime(created)
	rec.ModifiedAt = parseTime(modified)
	rec.Favorite = favorite != 0
	rec.Notes = notes.String
	return &rec, nil
}

// UpsertFavorites records favorites, keeping only the newest copy per name.
func (s *Store) UpsertFavorites(ctx context.Context, favorites []Favorite) error {
	if len(favorites) == 0 {
		return nil
	}
	ctx = ensureContext(ctx)
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, f := range favorites {
			if _, err := tx.ExecContext(ctx, `INSERT INTO favorites (name, case_id, path, location, modified_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(name) DO UPDATE SET case_id = excluded.case_id, path = excluded.path,
					location = excluded.location, modified_at = excluded.modified_at
				WHERE excluded.modified_at >= favorites.modified_at`,
				f.Name, f.CaseID, f.Path, string(f.Location), formatTime(f.ModifiedAt),
			); err != nil {
				return fmt.Errorf("upsert favorite %s: %w", f.Name, err)
			}
		}
		return nil
	})
}

// ListFavorites returns the favorites index ordered by name.
func (s *Store) ListFavorites(ctx context.Context) ([]Favorite, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT name, case_id, path, location, modified_at FROM favorites ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	var out []Favorite
	for rows.Next() {
		var (
			f        Favorite
			location string
			modified sql.NullString
		)
		if err := rows.Scan(&f.Name, &f.CaseID, &f.Path, &location, &modified); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		f.Location = Location(location)
		f.ModifiedAt = parseTime(modified)
		out = append(out, f)
	}
	return out, rows.Err()
}
