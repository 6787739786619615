package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/anthropic/dirwatch/internal/ipc"
	"github.com/anthropic/dirwatch/internal/store"
)

var baseTime = time.Date(2026, 2, 9, 12, 0, 0, 0, time.UTC)

// setupTestStore creates a temporary SQLite store and returns it with a
// cleanup function.
func setupTestStore(t *testing.T) (*store.Store, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "report-test-*")
	if err != nil {
		t.Fatal(err)
	}

	s, err := store.New(filepath.Join(dir, "test.db"))
	if err != nil {
		os.RemoveAll(dir)
		t.Fatal(err)
	}

	return s, func() {
		s.Close()
		os.RemoveAll(dir)
	}
}

func insertEvent(t *testing.T, s *store.Store, runID, dir, name string, at time.Time) {
	t.Helper()
	err := s.InsertEvent(store.EventRecord{
		RunID:        runID,
		WatchpointID: 1,
		WatchPath:    dir,
		RelativeName: name,
		Filename:     filepath.Join(dir, name),
		DeliveredAt:  at,
	})
	if err != nil {
		t.Fatalf("insert event: %v", err)
	}
}

func TestFromStore(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	runID, err := s.StartRun("native", baseTime)
	if err != nil {
		t.Fatal(err)
	}
	insertEvent(t, s, runID, "/srv/in", "a.csv", baseTime)
	insertEvent(t, s, runID, "/srv/in", "b.csv", baseTime.Add(time.Second))
	insertEvent(t, s, runID, "/srv/out", "c.csv", baseTime.Add(2*time.Second))

	if err := s.SetDaemonState(store.LastRunKey, runID); err != nil {
		t.Fatal(err)
	}
	if err := s.SetDaemonState(store.LastBackendKey, "native"); err != nil {
		t.Fatal(err)
	}

	sum, err := FromStore(s, 2)
	if err != nil {
		t.Fatalf("FromStore: %v", err)
	}
	if sum.LastRunID != runID || sum.LastBackend != "native" {
		t.Errorf("last run = %q (%q), want %q (native)", sum.LastRunID, sum.LastBackend, runID)
	}
	if out := FormatSummary(Plain, sum, baseTime); !strings.Contains(out, runID+" (native)") {
		t.Errorf("summary missing last run:\n%s", out)
	}
	if sum.Runs != 1 || sum.Events != 3 {
		t.Errorf("runs=%d events=%d, want 1 and 3", sum.Runs, sum.Events)
	}
	if len(sum.ByWatch) != 2 || sum.ByWatch[0].WatchPath != "/srv/in" || sum.ByWatch[0].Events != 2 {
		t.Errorf("ByWatch = %+v", sum.ByWatch)
	}
	if len(sum.Recent) != 2 || sum.Recent[0].RelativeName != "c.csv" {
		t.Errorf("Recent = %+v", sum.Recent)
	}
	if sum.DBSizeBytes <= 0 {
		t.Errorf("DBSizeBytes = %d", sum.DBSizeBytes)
	}
}

func TestFromStoreEmpty(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	sum, err := FromStore(s, 10)
	if err != nil {
		t.Fatalf("FromStore: %v", err)
	}

	// Empty slices, not null, in JSON output.
	out := FormatJSON(sum)
	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("FormatJSON produced invalid JSON: %v", err)
	}
	if _, ok := decoded["recent"].([]interface{}); !ok {
		t.Errorf("recent = %v, want an empty array", decoded["recent"])
	}

	text := FormatSummary(Plain, sum, baseTime)
	if !strings.Contains(text, "no events journaled") {
		t.Errorf("expected empty-journal message, got:\n%s", text)
	}
}

func TestGenerateReadsFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	s, err := store.New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	insertEvent(t, s, "", "/srv/in", "a.csv", baseTime)
	s.Close()

	sum, err := Generate(dbPath, 5)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sum.DBPath != dbPath || sum.Events != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestFormatSummary(t *testing.T) {
	sum := &Summary{
		DBPath:      "/data/dirwatch.db",
		DBSizeBytes: 8192,
		Runs:        2,
		Events:      1234,
		ByWatch:     []store.WatchCount{{WatchPath: "/srv/in", Events: 1234}},
		Recent: []store.EventRecord{
			{WatchpointID: 1, Filename: "/srv/in/a.csv", DeliveredAt: baseTime.Add(-2 * time.Minute)},
		},
	}

	out := FormatSummary(Plain, sum, baseTime)
	for _, want := range []string{"/data/dirwatch.db", "8.2 kB", "1,234", "/srv/in", "/srv/in/a.csv", "2 minutes ago"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("plain style emitted ANSI codes")
	}

	colored := FormatSummary(Style{Color: true}, sum, baseTime)
	if !strings.Contains(colored, bold) {
		t.Error("color style emitted no ANSI codes")
	}
}

func TestFormatStatus(t *testing.T) {
	status := &ipc.StatusData{
		Uptime:      "5m0s",
		RunID:       "run-1",
		Watches:     []ipc.WatchStatus{{ID: 1, Path: "/srv/in", Flags: "merge_paths"}},
		Delivered:   7,
		Hidden:      1,
		Duplicates:  2,
		EventsCount: 7,
		DBSizeBytes: 4096,
	}

	out := FormatStatus(Plain, status)
	for _, want := range []string{"5m0s", "run-1", "4.1 kB", "/srv/in", "merge_paths", "1 hidden, 2 duplicate, 0 unreadable"} {
		if !strings.Contains(out, want) {
			t.Errorf("status missing %q:\n%s", want, out)
		}
	}

	empty := FormatStatus(Plain, &ipc.StatusData{})
	if !strings.Contains(empty, "(none)") {
		t.Errorf("expected (none) for no watches:\n%s", empty)
	}
}

func TestFormatEventsAligned(t *testing.T) {
	events := []store.EventRecord{
		{WatchpointID: 1, Filename: "/a/x", DeliveredAt: baseTime.Add(-time.Hour)},
		{WatchpointID: 12, Filename: "/a/y", DeliveredAt: baseTime.Add(-3 * time.Hour)},
	}

	lines := strings.Split(strings.TrimRight(FormatEvents(Plain, events, baseTime), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header plus 2", len(lines))
	}
	col := strings.Index(lines[0], "file")
	for _, l := range lines[1:] {
		if strings.Index(l, "/a/") != col {
			t.Errorf("file column misaligned: %q", l)
		}
	}
}
