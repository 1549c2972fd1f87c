package pluginrt

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// LeaseStore persists the plugin lease audit trail: every fingerprint a
// plugin id was ever activated with, its load timestamp, and an
// append-only event log, so a crash never loses the history a lease
// decision was made from.
type LeaseStore struct {
	db *sql.DB
}

// OpenLeaseStore opens (or creates) the lease SQLite database at path and
// runs migrations.
func OpenLeaseStore(path string) (*LeaseStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("pluginrt: lease store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lease store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open lease store: %w", err)
	}

	st := &LeaseStore{db: db}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("plugin lease store opened", "path", path)
	return st, nil
}

// Close closes the underlying database connection.
func (s *LeaseStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *LeaseStore) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS lease_activations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	plugin_id TEXT NOT NULL,
	library_path TEXT NOT NULL,
	file_size INTEGER NOT NULL,
	modified_unix_ms INTEGER NOT NULL,
	loaded_at_unix_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lease_activations_plugin ON lease_activations(plugin_id, loaded_at_unix_ms);

CREATE TABLE IF NOT EXISTS lease_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	plugin_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	at_unix_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lease_events_plugin ON lease_events(plugin_id, at_unix_ms);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("run lease store migrations: %w", err)
	}
	return nil
}

// RecordActivation appends one activation row for pluginID at fp.
func (s *LeaseStore) RecordActivation(ctx context.Context, pluginID string, fp Fingerprint) error {
	const q = `INSERT INTO lease_activations (plugin_id, library_path, file_size, modified_unix_ms, loaded_at_unix_ms) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, pluginID, fp.LibraryPath, fp.FileSize, fp.ModifiedUnixMs, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("record lease activation: %w", err)
	}
	return nil
}

// RecordEvent appends one lease-lifecycle event row (loaded, reloaded,
// deactivated, error, applied, requires_recreate, recreated, ...).
func (s *LeaseStore) RecordEvent(ctx context.Context, pluginID, kind, reason string) error {
	const q = `INSERT INTO lease_events (plugin_id, kind, reason, at_unix_ms) VALUES (?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, pluginID, kind, reason, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("record lease event: %w", err)
	}
	return nil
}

// ActivationRow is one historical activation record.
type ActivationRow struct {
	PluginID       string
	LibraryPath    string
	FileSize       int64
	ModifiedUnixMs int64
	LoadedAtUnixMs int64
}

// Activations returns every recorded activation for pluginID, oldest
// first. The lease/sync decision itself never reads this history back —
// it is an audit trail, not an input — so no caller does this on the hot
// path.
func (s *LeaseStore) Activations(ctx context.Context, pluginID string) ([]ActivationRow, error) {
	const q = `
SELECT plugin_id, library_path, file_size, modified_unix_ms, loaded_at_unix_ms
FROM lease_activations
WHERE plugin_id = ?
ORDER BY loaded_at_unix_ms ASC
`
	rows, err := s.db.QueryContext(ctx, q, pluginID)
	if err != nil {
		return nil, fmt.Errorf("query lease activations: %w", err)
	}
	defer rows.Close()

	var out []ActivationRow
	for rows.Next() {
		var row ActivationRow
		if err := rows.Scan(&row.PluginID, &row.LibraryPath, &row.FileSize, &row.ModifiedUnixMs, &row.LoadedAtUnixMs); err != nil {
			return nil, fmt.Errorf("scan lease activation: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
