package watcher

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrCapacity is returned when every watchpoint slot is taken.
	ErrCapacity = errors.New("watchpoint capacity exhausted")
	// ErrUnknownWatchpoint is returned for an ID that was never registered.
	ErrUnknownWatchpoint = errors.New("unknown watchpoint")
	// ErrUnknownDescriptor means the OS reported an event for a watch the
	// source never established. Pumping stops for good once it is seen.
	ErrUnknownDescriptor = errors.New("event for unknown watch descriptor")
	// ErrDuplicateWatch is returned when a directory is already watched.
	ErrDuplicateWatch = errors.New("directory already watched")
	// ErrNotDirectory is returned when registering something that is not a directory.
	ErrNotDirectory = errors.New("not a directory")
	// ErrPathTooLong is returned for paths of MaxPathSize bytes or more.
	ErrPathTooLong = errors.New("path too long")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("watcher closed")
)

// ID identifies a watchpoint. IDs start at 1 and are never reused; 0 is
// never a valid ID.
type ID int

// Callback is invoked for every delivered event with the file name chosen
// by the watchpoint's MergePaths flag and the user values bound through
// SetCallback. It runs synchronously inside Poll and must not call Poll.
type Callback func(filename string, userPtr any, userInt int)

// Event is a file that was closed after being written.
type Event struct {
	WatchpointID ID
	// Filename is the watched directory joined with RelativeFilename.
	Filename string
	// RelativeFilename is the name reported by the OS.
	RelativeFilename string
}

// WatchpointInfo describes a registered watchpoint.
type WatchpointInfo struct {
	ID    ID
	Path  string
	Flags Flags
}

// Stats counts what the watcher did with the notifications it saw.
type Stats struct {
	Pumps      uint64
	Delivered  uint64
	Hidden     uint64
	Duplicates uint64
	Unreadable uint64
}

type watchpoint struct {
	path    string
	flags   Flags
	cb      Callback
	userPtr any
	userInt int
}

// Watcher reports files closed after writing in a fixed set of
// directories. It never blocks and starts no goroutines of its own: the
// caller drives it by calling Poll. A Watcher must be used from one
// goroutine at a time.
type Watcher struct {
	src         Source
	watchpoints []watchpoint
	queue       *eventQueue
	dedup       dedupWindow
	probe       Probe
	stats       Stats
	err         error
	closed      bool
}

// Option configures New.
type Option func(*options)

type options struct {
	source        Source
	backend       string
	queueCapacity int
	probe         Probe
}

// WithSource makes the watcher use src instead of creating one.
func WithSource(src Source) Option {
	return func(o *options) { o.source = src }
}

// WithBackend selects the backend passed to NewSource.
func WithBackend(name string) Option {
	return func(o *options) { o.backend = name }
}

// WithQueueCapacity raises the event queue size above DefaultQueueCapacity.
// Values below the source's batch size are rounded up.
func WithQueueCapacity(n int) Option {
	return func(o *options) { o.queueCapacity = n }
}

// WithProbe replaces the openability check used for sources that
// duplicate writes.
func WithProbe(p Probe) Option {
	return func(o *options) { o.probe = p }
}

// New returns a Watcher with room for capacity watchpoints. All memory the
// watcher needs is allocated here.
func New(capacity int, opts ...Option) (*Watcher, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive, got %d", capacity)
	}

	o := options{queueCapacity: DefaultQueueCapacity, probe: defaultProbe}
	for _, opt := range opts {
		opt(&o)
	}

	src := o.source
	if src == nil {
		var err error
		if src, err = NewSource(o.backend); err != nil {
			return nil, fmt.Errorf("init source: %w", err)
		}
	}

	return &Watcher{
		src:         src,
		watchpoints: make([]watchpoint, 0, capacity),
		queue:       newEventQueue(max(o.queueCapacity, src.BatchSize(capacity))),
		probe:       o.probe,
	}, nil
}

// AddWatchpoint starts watching the directory at path and returns its ID.
// On failure it returns 0 and no slot is consumed.
func (w *Watcher) AddWatchpoint(path string, flags Flags) (ID, error) {
	if w == nil || w.closed || w.src == nil {
		return 0, ErrClosed
	}
	if len(w.watchpoints) == cap(w.watchpoints) {
		return 0, ErrCapacity
	}
	if len(path) >= MaxPathSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrPathTooLong, len(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat watchpoint: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%s: %w", path, ErrNotDirectory)
	}

	id := ID(len(w.watchpoints) + 1)
	if err := w.src.Watch(id, path); err != nil {
		return 0, fmt.Errorf("watch %s: %w", path, err)
	}

	w.watchpoints = append(w.watchpoints, watchpoint{path: path, flags: flags})
	return id, nil
}

// SetCallback binds cb and the user values to a watchpoint, replacing any
// previous binding. A nil cb removes the callback.
func (w *Watcher) SetCallback(id ID, cb Callback, userPtr any, userInt int) error {
	if w == nil || w.closed {
		return ErrClosed
	}
	wp := w.lookup(id)
	if wp == nil {
		return fmt.Errorf("%w: %d", ErrUnknownWatchpoint, id)
	}
	wp.cb, wp.userPtr, wp.userInt = cb, userPtr, userInt
	return nil
}

// Watchpoints lists the registered watchpoints in ID order.
func (w *Watcher) Watchpoints() []WatchpointInfo {
	if w == nil {
		return nil
	}
	infos := make([]WatchpointInfo, len(w.watchpoints))
	for i, wp := range w.watchpoints {
		infos[i] = WatchpointInfo{ID: ID(i + 1), Path: wp.path, Flags: wp.flags}
	}
	return infos
}

// Stats returns a snapshot of the watcher counters.
func (w *Watcher) Stats() Stats {
	if w == nil {
		return Stats{}
	}
	return w.stats
}

// Pump asks the source once for pending notifications and queues the ones
// that pass filtering. It returns how many events were queued.
//
// A source error is sticky: every later Pump returns it, and Poll returns
// it once the events queued before the error have been delivered.
func (w *Watcher) Pump() (int, error) {
	if w == nil || w.closed || w.src == nil {
		return 0, ErrClosed
	}
	if w.err != nil {
		return 0, w.err
	}

	w.dedup.advance()
	w.stats.Pumps++

	var queued int
	err := w.src.Pump(w.queue.room(), func(n Notification) error {
		ok, err := w.accept(n)
		if ok {
			queued++
		}
		return err
	})
	if err != nil {
		w.err = fmt.Errorf("pump: %w", err)
		return queued, w.err
	}
	return queued, nil
}

// accept filters one notification and queues it when it qualifies.
func (w *Watcher) accept(n Notification) (bool, error) {
	wp := w.lookup(n.ID)
	if wp == nil {
		return false, fmt.Errorf("%w: %d", ErrUnknownWatchpoint, n.ID)
	}

	name := bound(n.Name)
	if name == "" {
		return false, nil
	}
	if wp.flags.Has(SkipHidden) && hidden(name) {
		w.stats.Hidden++
		return false, nil
	}

	joined := JoinPath(wp.path, name)
	if w.src.DuplicatesWrites() {
		if w.dedup.recent(name) {
			w.stats.Duplicates++
			return false, nil
		}
		if !w.probe(joined) {
			w.stats.Unreadable++
			return false, nil
		}
		w.dedup.remember(name)
	}

	w.queue.push(Event{WatchpointID: n.ID, Filename: joined, RelativeFilename: name})
	return true, nil
}

// Poll delivers one event. When the queue is empty it pumps once first.
// It reports false when no event was available. If ev is not nil the
// delivered event is copied into it. The watchpoint callback, if any, is
// invoked before Poll returns.
func (w *Watcher) Poll(ev *Event) (bool, error) {
	if w == nil || w.closed || w.src == nil {
		return false, ErrClosed
	}

	if w.queue.len() == 0 {
		n, err := w.Pump()
		if n == 0 {
			return false, err
		}
	}

	w.deliver(ev)
	return true, nil
}

func (w *Watcher) deliver(out *Event) {
	ev, ok := w.queue.pop()
	if !ok {
		return
	}
	w.stats.Delivered++

	if wp := w.lookup(ev.WatchpointID); wp != nil && wp.cb != nil {
		name := ev.RelativeFilename
		if wp.flags.Has(MergePaths) {
			name = ev.Filename
		}
		wp.cb(name, wp.userPtr, wp.userInt)
	}

	if out != nil {
		*out = ev
	}
}

func (w *Watcher) lookup(id ID) *watchpoint {
	if id < 1 || int(id) > len(w.watchpoints) {
		return nil
	}
	return &w.watchpoints[id-1]
}

// Close releases the source and drops queued events. It is safe to call
// on a nil or zero Watcher and more than once.
func (w *Watcher) Close() error {
	if w == nil || w.closed || w.src == nil {
		return nil
	}
	w.closed = true
	w.queue.reset()
	return w.src.Close()
}
