package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_state (
	scope_key  TEXT NOT NULL,
	kind       TEXT NOT NULL,
	payload    BLOB NOT NULL,
	started_at INTEGER NOT NULL,
	PRIMARY KEY (scope_key, kind)
);
CREATE TABLE IF NOT EXISTS feature_flags (
	group_id TEXT NOT NULL,
	feature  TEXT NOT NULL,
	enabled  INTEGER NOT NULL,
	PRIMARY KEY (group_id, feature)
);
CREATE TABLE IF NOT EXISTS counters (
	scope_key TEXT NOT NULL,
	name      TEXT NOT NULL,
	day       TEXT NOT NULL,
	value     INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (scope_key, name, day)
);
`

// Store is the persistent collaborator behind session state, per-group
// feature flags and daily counters.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite serializes writers; a single connection avoids SQLITE_BUSY
	// churn under concurrent handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) GetState(scopeKey, kind string) ([]byte, time.Time, bool, error) {
	var payload []byte
	var startedAt int64
	err := s.db.QueryRow(
		`SELECT payload, started_at FROM session_state WHERE scope_key = ? AND kind = ?`,
		scopeKey, kind,
	).Scan(&payload, &startedAt)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("get state %s/%s: %w", scopeKey, kind, err)
	}
	return payload, time.Unix(startedAt, 0), true, nil
}

func (s *Store) SetState(scopeKey, kind string, payload []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO session_state (scope_key, kind, payload, started_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (scope_key, kind) DO UPDATE SET payload = excluded.payload, started_at = excluded.started_at`,
		scopeKey, kind, payload, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("set state %s/%s: %w", scopeKey, kind, err)
	}
	return nil
}

func (s *Store) DeleteState(scopeKey, kind string) error {
	_, err := s.db.Exec(
		`DELETE FROM session_state WHERE scope_key = ? AND kind = ?`,
		scopeKey, kind,
	)
	if err != nil {
		return fmt.Errorf("delete state %s/%s: %w", scopeKey, kind, err)
	}
	return nil
}

// IsEnabled reports whether a feature is on for a group, falling back to
// def when the group never toggled it.
func (s *Store) IsEnabled(groupID, feature string, def bool) (bool, error) {
	var enabled int
	err := s.db.QueryRow(
		`SELECT enabled FROM feature_flags WHERE group_id = ? AND feature = ?`,
		groupID, feature,
	).Scan(&enabled)
	if err == sql.ErrNoRows {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("read flag %s/%s: %w", groupID, feature, err)
	}
	return enabled != 0, nil
}

func (s *Store) SetEnabled(groupID, feature string, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO feature_flags (group_id, feature, enabled) VALUES (?, ?, ?)
		 ON CONFLICT (group_id, feature) DO UPDATE SET enabled = excluded.enabled`,
		groupID, feature, v,
	)
	if err != nil {
		return fmt.Errorf("set flag %s/%s: %w", groupID, feature, err)
	}
	return nil
}

// Flags returns every explicit toggle recorded for a group.
func (s *Store) Flags(groupID string) (map[string]bool, error) {
	rows, err := s.db.Query(
		`SELECT feature, enabled FROM feature_flags WHERE group_id = ?`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list flags %s: %w", groupID, err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var feature string
		var enabled int
		if err := rows.Scan(&feature, &enabled); err != nil {
			return nil, err
		}
		out[feature] = enabled != 0
	}
	return out, rows.Err()
}

// IncrCounter bumps a per-day counter and returns the new value.
func (s *Store) IncrCounter(scopeKey, name, day string) (int64, error) {
	_, err := s.db.Exec(
		`INSERT INTO counters (scope_key, name, day, value) VALUES (?, ?, ?, 1)
		 ON CONFLICT (scope_key, name, day) DO UPDATE SET value = value + 1`,
		scopeKey, name, day,
	)
	if err != nil {
		return 0, fmt.Errorf("incr counter %s/%s: %w", scopeKey, name, err)
	}
	return s.Counter(scopeKey, name, day)
}

func (s *Store) Counter(scopeKey, name, day string) (int64, error) {
	var v int64
	err := s.db.QueryRow(
		`SELECT value FROM counters WHERE scope_key = ? AND name = ? AND day = ?`,
		scopeKey, name, day,
	).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s/%s: %w", scopeKey, name, err)
	}
	return v, nil
}

// CounterTotals sums a counter across days for one scope.
func (s *Store) CounterTotals(scopeKey, name string) (int64, error) {
	var v sql.NullInt64
	err := s.db.QueryRow(
		`SELECT SUM(value) FROM counters WHERE scope_key = ? AND name = ?`,
		scopeKey, name,
	).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("sum counter %s/%s: %w", scopeKey, name, err)
	}
	return v.Int64, nil
}
