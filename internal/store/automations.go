package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const automationColumns = "name, enabled, version, kind, executable_path, executable_hash, discovered_at"

// SyncAutomation records a discovered automation. New rows start enabled;
// existing rows keep their enabled flag.
func (s *Store) SyncAutomation(ctx context.Context, a Automation) error {
	if a.DiscoveredAt.IsZero() {
		a.DiscoveredAt = time.Now()
	}
	return s.exec(ctx, `INSERT INTO automations (`+automationColumns+`) VALUES (?, 1, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET version = excluded.version, kind = excluded.kind,
			executable_path = excluded.executable_path, executable_hash = excluded.executable_hash,
			discovered_at = excluded.discovered_at`,
		a.Name, a.Version, a.Kind, a.ExecutablePath, a.ExecutableHash, formatTime(a.DiscoveredAt))
}

// SetAutomationEnabled toggles an automation. It reports false when no row matched.
func (s *Store) SetAutomationEnabled(ctx context.Context, name string, enabled bool) (bool, error) {
	ctx = ensureContext(ctx)
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, "UPDATE automations SET enabled = ? WHERE name = ?", boolToInt(enabled), name)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("set automation %s enabled: %w", name, err)
	}
	return affected > 0, nil
}

// ListAutomations returns persisted automations keyed by name.
func (s *Store) ListAutomations(ctx context.Context) (map[string]Automation, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT "+automationColumns+" FROM automations")
	if err != nil {
		return nil, fmt.Errorf("list automations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Automation)
	for rows.Next() {
		var (
			a          Automation
			enabled    int
			version    sql.NullString
			discovered sql.NullString
		)
		if err := rows.Scan(&a.Name, &enabled, &version, &a.Kind, &a.ExecutablePath, &a.ExecutableHash, &discovered); err != nil {
			return nil, fmt.Errorf("scan automation: %w", err)
		}
		a.Enabled = enabled != 0
		a.Version = version.String
		a.DiscoveredAt = parseTime(discovered)
		out[a.Name] = a
	}
	return out, rows.Err()
}
