//go:build linux

package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// pollFor polls until an event arrives or the deadline passes.
func pollFor(t *testing.T, w *Watcher, timeout time.Duration) (Event, bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var ev Event
		ok, err := w.Poll(&ev)
		require.NoError(t, err)
		if ok {
			return ev, true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return Event{}, false
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))
}

func TestInotifySkipsHiddenAndMergesPaths(t *testing.T) {
	w, err := New(2)
	require.NoError(t, err)
	defer w.Close()

	dir := t.TempDir()
	id, err := w.AddWatchpoint(dir, SkipHidden|MergePaths)
	require.NoError(t, err)

	var delivered []string
	require.NoError(t, w.SetCallback(id, func(filename string, _ any, _ int) {
		delivered = append(delivered, filename)
	}, nil, 0))

	writeFile(t, filepath.Join(dir, ".tmp"))
	_, ok := pollFor(t, w, 100*time.Millisecond)
	require.False(t, ok, "hidden file must not be reported")

	writeFile(t, filepath.Join(dir, "data.txt"))
	ev, ok := pollFor(t, w, 2*time.Second)
	require.True(t, ok)
	require.Equal(t, id, ev.WatchpointID)
	require.Equal(t, dir+"/data.txt", ev.Filename)
	require.Equal(t, []string{dir + "/data.txt"}, delivered)
}

func TestInotifyBareNames(t *testing.T) {
	w, err := New(1)
	require.NoError(t, err)
	defer w.Close()

	dir := t.TempDir()
	id, err := w.AddWatchpoint(dir, 0)
	require.NoError(t, err)

	var delivered string
	require.NoError(t, w.SetCallback(id, func(filename string, _ any, _ int) {
		delivered = filename
	}, nil, 0))

	writeFile(t, filepath.Join(dir, "x.txt"))
	_, ok := pollFor(t, w, 2*time.Second)
	require.True(t, ok)
	require.Equal(t, "x.txt", delivered)
}

func TestInotifyOnlyReportsCloseAfterWrite(t *testing.T) {
	w, err := New(1)
	require.NoError(t, err)
	defer w.Close()

	dir := t.TempDir()
	_, err = w.AddWatchpoint(dir, 0)
	require.NoError(t, err)

	f, err := os.Create(filepath.Join(dir, "open.log"))
	require.NoError(t, err)
	_, err = f.WriteString("partial")
	require.NoError(t, err)

	_, ok := pollFor(t, w, 100*time.Millisecond)
	require.False(t, ok, "no event while the file is still open")

	require.NoError(t, f.Close())
	ev, ok := pollFor(t, w, 2*time.Second)
	require.True(t, ok)
	require.Equal(t, "open.log", ev.RelativeFilename)
}

func TestInotifyDrainsManyEvents(t *testing.T) {
	w, err := New(1)
	require.NoError(t, err)
	defer w.Close()

	dir := t.TempDir()
	_, err = w.AddWatchpoint(dir, 0)
	require.NoError(t, err)

	const files = 100
	for i := 0; i < files; i++ {
		writeFile(t, filepath.Join(dir, "f"+string(rune('a'+i%26))+string(rune('a'+i/26))))
	}

	seen := map[string]bool{}
	deadline := time.Now().Add(5 * time.Second)
	for len(seen) < files && time.Now().Before(deadline) {
		ev, ok := pollFor(t, w, 50*time.Millisecond)
		if ok {
			require.False(t, seen[ev.RelativeFilename], "duplicate %s", ev.RelativeFilename)
			seen[ev.RelativeFilename] = true
		}
	}
	require.Len(t, seen, files)
}

func TestInotifyRejectsMissingAndDuplicate(t *testing.T) {
	w, err := New(2)
	require.NoError(t, err)
	defer w.Close()

	id, err := w.AddWatchpoint(filepath.Join(t.TempDir(), "nope"), 0)
	require.Error(t, err)
	require.Zero(t, id)

	dir := t.TempDir()
	_, err = w.AddWatchpoint(dir, 0)
	require.NoError(t, err)
	_, err = w.AddWatchpoint(dir, 0)
	require.ErrorIs(t, err, ErrDuplicateWatch)
	require.Len(t, w.Watchpoints(), 1)
}

func TestInotifyPumpUsesPartialRoom(t *testing.T) {
	w, err := New(1)
	require.NoError(t, err)
	defer w.Close()

	dir := t.TempDir()
	_, err = w.AddWatchpoint(dir, 0)
	require.NoError(t, err)

	const files = DefaultQueueCapacity + 10
	for i := 0; i < files; i++ {
		writeFile(t, filepath.Join(dir, fmt.Sprintf("f%02d", i)))
	}

	seen := map[string]bool{}
	take := func() {
		var ev Event
		ok, err := w.Poll(&ev)
		require.NoError(t, err)
		require.True(t, ok)
		require.False(t, seen[ev.RelativeFilename], "duplicate %s", ev.RelativeFilename)
		seen[ev.RelativeFilename] = true
	}

	n, err := w.Pump()
	require.NoError(t, err)
	require.Greater(t, n, w.src.BatchSize(1), "pump stopped after one read")

	// Free a few slots, fewer than one full read, and pump again.
	for w.queue.room() < 3 {
		take()
	}
	require.Less(t, w.queue.room(), w.src.BatchSize(1))
	n, err = w.Pump()
	require.NoError(t, err)
	require.Positive(t, n)

	deadline := time.Now().Add(5 * time.Second)
	for len(seen) < files && time.Now().Before(deadline) {
		ev, ok := pollFor(t, w, 50*time.Millisecond)
		if ok {
			require.False(t, seen[ev.RelativeFilename], "duplicate %s", ev.RelativeFilename)
			seen[ev.RelativeFilename] = true
		}
	}
	require.Len(t, seen, files)
}
