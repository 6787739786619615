// Package report summarizes the event journal for the CLI. It reads the
// SQLite database directly, so the daemon does not need to be running.
package report

import (
	"fmt"

	"github.com/anthropic/dirwatch/internal/store"
)

// Summary is a snapshot of the journal.
type Summary struct {
	DBPath      string              `json:"db_path"`
	DBSizeBytes int64               `json:"db_size_bytes"`
	Runs        int64               `json:"runs"`
	Events      int64               `json:"events"`
	LastRunID   string              `json:"last_run_id"`
	LastBackend string              `json:"last_backend"`
	ByWatch     []store.WatchCount  `json:"by_watch"`
	Recent      []store.EventRecord `json:"recent"`
}

// Generate opens the journal at dbPath and summarizes it, including up to
// limit recent events.
func Generate(dbPath string, limit int) (*Summary, error) {
	s, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	return FromStore(s, limit)
}

// FromStore summarizes an open journal.
func FromStore(s *store.Store, limit int) (*Summary, error) {
	sum := &Summary{DBPath: s.Path()}

	var err error
	if sum.DBSizeBytes, err = s.DBSizeBytes(); err != nil {
		return nil, fmt.Errorf("db size: %w", err)
	}
	if sum.Runs, err = s.RunsCount(); err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}
	if sum.Events, err = s.EventsCount(); err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	if sum.LastRunID, err = s.GetDaemonState(store.LastRunKey); err != nil {
		return nil, fmt.Errorf("last run: %w", err)
	}
	if sum.LastBackend, err = s.GetDaemonState(store.LastBackendKey); err != nil {
		return nil, fmt.Errorf("last backend: %w", err)
	}
	if sum.ByWatch, err = s.EventsByWatch(); err != nil {
		return nil, fmt.Errorf("events by watch: %w", err)
	}
	if sum.Recent, err = s.RecentEvents(limit); err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}

	if sum.ByWatch == nil {
		sum.ByWatch = []store.WatchCount{}
	}
	if sum.Recent == nil {
		sum.Recent = []store.EventRecord{}
	}
	return sum, nil
}
