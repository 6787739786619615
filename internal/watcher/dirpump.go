package watcher

import "fmt"

// notifyBufSize is the buffer each directory hands to ReadDirectoryChangesW.
const notifyBufSize = 1024

// notifyBatchSize is the most entries one directory buffer can hold: a
// header plus one UTF-16 unit, padded to a DWORD boundary.
const notifyBatchSize = notifyBufSize / (notifyHeaderSize + 4)

// dirBatchSize covers one full buffer from every directory, so a single
// pump on an empty queue reads all of them.
func dirBatchSize(watches int) int {
	return max(watches, 1) * notifyBatchSize
}

// pendingDir is a directory with one asynchronous change read in flight.
type pendingDir interface {
	watchID() ID
	// completed reports whether the read finished, without waiting, and
	// returns the bytes it filled.
	completed() ([]byte, bool, error)
	// rearm starts the next read.
	rearm() error
}

// dirPump visits directories that each carry their own read, starting one
// past the directory it started at last time so a busy directory cannot
// starve the ones after it.
type dirPump struct {
	next int
}

// pumpDirs checks every directory once. A directory is only read when room
// fits a full buffer; the rest wait for a later pump.
func pumpDirs[D pendingDir](p *dirPump, dirs []D, room int, emit func(Notification) error) error {
	if len(dirs) == 0 {
		return nil
	}
	start := p.next % len(dirs)
	p.next = start + 1

	for i := range dirs {
		if room < notifyBatchSize {
			return nil
		}
		d := dirs[(start+i)%len(dirs)]

		data, ok, err := d.completed()
		if err != nil {
			return fmt.Errorf("read watchpoint %d: %w", d.watchID(), err)
		} else if !ok {
			continue
		}

		c := notifyCursor{buf: data}
		for {
			rec, ok, err := c.next()
			if err != nil {
				return fmt.Errorf("watchpoint %d: %w", d.watchID(), err)
			} else if !ok {
				break
			}
			if rec.Name == "" {
				continue
			}
			if err := emit(Notification{ID: d.watchID(), Name: rec.Name}); err != nil {
				return err
			}
			room--
		}

		if err := d.rearm(); err != nil {
			return fmt.Errorf("re-arm watchpoint %d: %w", d.watchID(), err)
		}
	}
	return nil
}
