package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventRecord is one delivered event as stored in the journal.
type EventRecord struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id"`
	WatchpointID int       `json:"watchpoint_id"`
	WatchPath    string    `json:"watch_path"`
	RelativeName string    `json:"relative_name"`
	Filename     string    `json:"filename"`
	DeliveredAt  time.Time `json:"delivered_at"`
}

// StartRun records a new daemon run and returns its ID.
func (s *Store) StartRun(backend string, startedAt time.Time) (string, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, backend, started_at) VALUES (?, ?, ?)`,
		id, backend, startedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the stop time on a run.
func (s *Store) FinishRun(id string, stoppedAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE runs SET stopped_at = ? WHERE id = ?`,
		stoppedAt.UTC().Format(time.RFC3339Nano), id,
	)
	return err
}

// InsertEvent appends a delivered event to the journal.
func (s *Store) InsertEvent(r EventRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO events (run_id, watchpoint_id, watch_path, relative_name, filename, delivered_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.RunID, r.WatchpointID, r.WatchPath, r.RelativeName, r.Filename,
		r.DeliveredAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// RecentEvents returns up to limit events, newest first.
func (s *Store) RecentEvents(limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, run_id, watchpoint_id, watch_path, relative_name, filename, delivered_at
		 FROM events
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []EventRecord
	for rows.Next() {
		var r EventRecord
		var ts string
		if err := rows.Scan(&r.ID, &r.RunID, &r.WatchpointID, &r.WatchPath, &r.RelativeName, &r.Filename, &ts); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse event timestamp %q: %w", ts, err)
		}
		r.DeliveredAt = t
		records = append(records, r)
	}
	return records, rows.Err()
}

// EventsCount returns the number of journaled events.
func (s *Store) EventsCount() (int64, error) {
	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&count)
	return count, err
}

// RunsCount returns the number of recorded daemon runs.
func (s *Store) RunsCount() (int64, error) {
	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count)
	return count, err
}

// WatchCount is the number of events journaled for one watched directory.
type WatchCount struct {
	WatchPath string `json:"watch_path"`
	Events    int64  `json:"events"`
}

// EventsByWatch counts journaled events per watched directory, busiest first.
func (s *Store) EventsByWatch() ([]WatchCount, error) {
	rows, err := s.db.Query(
		`SELECT watch_path, COUNT(*) AS n
		 FROM events
		 GROUP BY watch_path
		 ORDER BY n DESC, watch_path`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []WatchCount
	for rows.Next() {
		var c WatchCount
		if err := rows.Scan(&c.WatchPath, &c.Events); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
