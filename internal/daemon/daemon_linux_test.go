//go:build linux

package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/anthropic/dirwatch/internal/config"
	"github.com/anthropic/dirwatch/internal/store"
	"github.com/anthropic/dirwatch/internal/watcher"
)

// idleIPC blocks in Listen until the daemon cancels it.
type idleIPC struct {
	stopped bool
	store   interface{}
}

func (s *idleIPC) Listen(_ string, ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (s *idleIPC) Stop() error {
	s.stopped = true
	return nil
}

func (s *idleIPC) SetStore(st interface{}) {
	s.store = st
}

func testConfig(t *testing.T, watches ...config.Watch) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.DBPath = filepath.Join(dir, "dirwatch.db")
	cfg.SocketPath = filepath.Join(dir, "dirwatch.sock")
	cfg.Capacity = 4
	cfg.PollInterval = config.Duration(5 * time.Millisecond)
	cfg.Watches = watches
	return cfg
}

// TestDaemonJournalsEvents runs the daemon end to end: a file written in a
// watched directory ends up in the journal with both name forms.
func TestDaemonJournalsEvents(t *testing.T) {
	watched := t.TempDir()
	cfg := testConfig(t,
		config.Watch{Path: watched, Label: "inbox", MergePaths: true, SkipHidden: true},
		config.Watch{Path: filepath.Join(watched, "missing")},
	)

	ipc := &idleIPC{}
	d := New(cfg, ipc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(d.Watches()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := d.Watches(); len(got) != 1 || got[0].ID != 1 || got[0].Flags != watcher.MergePaths|watcher.SkipHidden {
		t.Fatalf("Watches = %+v, want only the existing directory", got)
	}

	if err := os.WriteFile(filepath.Join(watched, ".swap"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(watched, "report.csv"), []byte("a,b"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Wait for at least one delivered event to show up in the counters.
	for d.Stats().Delivered == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if d.Stats().Delivered == 0 {
		t.Fatal("no event delivered before deadline")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !ipc.stopped {
		t.Error("IPC server was not stopped")
	}
	if ipc.store == nil {
		t.Error("IPC server never received the store")
	}
	if d.Running() {
		t.Error("daemon still reports running")
	}

	s, err := store.New(cfg.DBPath)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer s.Close()

	if v, _ := s.GetDaemonState(store.LastRunKey); v != d.RunID() {
		t.Errorf("last run id = %q, want %q", v, d.RunID())
	}
	if v, _ := s.GetDaemonState(store.LastBackendKey); v != watcher.BackendNative {
		t.Errorf("last backend = %q, want %q", v, watcher.BackendNative)
	}

	events, err := s.RecentEvents(10)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("journal is empty")
	}
	for _, ev := range events {
		if ev.RelativeName != "report.csv" {
			t.Errorf("journaled %q, want only report.csv", ev.RelativeName)
		}
		if ev.Filename != watched+"/report.csv" || ev.WatchPath != watched {
			t.Errorf("unexpected paths: %+v", ev)
		}
		if ev.RunID == "" || ev.RunID != d.RunID() {
			t.Errorf("RunID = %q, want %q", ev.RunID, d.RunID())
		}
	}
}

func TestDaemonRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Capacity = 0

	if err := New(cfg, &idleIPC{}).Run(context.Background()); err == nil {
		t.Fatal("expected error for zero capacity")
	}
}

func TestDaemonStop(t *testing.T) {
	d := New(testConfig(t, config.Watch{Path: t.TempDir()}), &idleIPC{})

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for d.Uptime() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	// Stop before the cancel func is published is a no-op, so retry.
	for {
		d.Stop()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			return
		case <-time.After(20 * time.Millisecond):
			if time.Now().After(deadline) {
				t.Fatal("daemon did not stop")
			}
		}
	}
}
