package watcher

import "fmt"

// Backend names accepted by NewSource.
const (
	BackendNative   = "native"
	BackendFsnotify = "fsnotify"
)

// Notification is a raw report from a Source: a name relative to the
// directory of watchpoint ID.
type Notification struct {
	ID   ID
	Name string
}

// Source is a platform notification mechanism. A Source is driven by a
// single Watcher and is not safe for concurrent use.
type Source interface {
	// Watch starts watching dir on behalf of watchpoint id.
	Watch(id ID, dir string) error

	// Pump makes one non-blocking pass over the OS and passes every pending
	// notification to emit. It must not emit more than room notifications;
	// notifications it cannot take stay with the OS until the next pump.
	// An error from emit aborts the pass and is returned.
	Pump(room int, emit func(Notification) error) error

	// BatchSize is the most notifications one Pump can produce with
	// watches directories registered. A Watcher sizes its queue with it,
	// so a pump on an empty queue never has to leave work behind.
	BatchSize(watches int) int

	// DuplicatesWrites reports whether the mechanism may announce a single
	// write several times or before the writer is done with the file.
	DuplicatesWrites() bool

	// Close releases every OS resource held by the source.
	Close() error
}

// NewSource returns the Source for the named backend. An empty name
// selects the native backend for the platform.
func NewSource(backend string) (Source, error) {
	switch backend {
	case "", BackendNative:
		return newNativeSource()
	case BackendFsnotify:
		return newFsnotifySource()
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}
