package store

import (
	"database/sql"
	"errors"
	"time"
)

// Keys the daemon records in daemon_state at startup.
const (
	LastRunKey     = "last_run_id"
	LastBackendKey = "last_backend"
)

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

type queryRower interface {
	QueryRow(query string, args ...any) *sql.Row
}

func setState(db execer, key, value string) error {
	_, err := db.Exec(
		`INSERT INTO daemon_state (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// getState returns "" for a key that was never set.
func getState(db queryRower, key string) (string, error) {
	var val string
	err := db.QueryRow(`SELECT value FROM daemon_state WHERE key = ?`, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return val, err
}

// GetDaemonState returns the stored value for key, or "" when unset.
func (s *Store) GetDaemonState(key string) (string, error) {
	return getState(s.db, key)
}

// SetDaemonState stores value under key.
func (s *Store) SetDaemonState(key, value string) error {
	return setState(s.db, key, value)
}
