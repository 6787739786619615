package watcher

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

var _ Source = (*fsnotifySource)(nil)

var errStreamClosed = errors.New("fsnotify stream closed")

// fsnotifySource adapts fsnotify's channels to non-blocking pumps. fsnotify
// reports writes as they happen rather than on close, so it is treated as
// a source that duplicates writes.
type fsnotifySource struct {
	fsw  *fsnotify.Watcher
	dirs []fsnotifyDir
}

type fsnotifyDir struct {
	dir string
	id  ID
}

func newFsnotifySource() (Source, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	return &fsnotifySource{fsw: fsw}, nil
}

func (s *fsnotifySource) Watch(id ID, dir string) error {
	dir = filepath.Clean(dir)
	if owner, ok := s.lookup(dir); ok {
		return fmt.Errorf("%w by watchpoint %d", ErrDuplicateWatch, owner)
	}
	if err := s.fsw.Add(dir); err != nil {
		return err
	}
	s.dirs = append(s.dirs, fsnotifyDir{dir: dir, id: id})
	return nil
}

func (s *fsnotifySource) BatchSize(int) int      { return 1 }
func (s *fsnotifySource) DuplicatesWrites() bool { return true }

func (s *fsnotifySource) Pump(room int, emit func(Notification) error) error {
	for room > 0 {
		select {
		case ev, ok := <-s.fsw.Events:
			if !ok {
				return errStreamClosed
			}
			if !ev.Has(fsnotify.Write) {
				continue
			}
			id, ok := s.lookup(filepath.Dir(ev.Name))
			if !ok {
				return fmt.Errorf("%w: %s", ErrUnknownDescriptor, ev.Name)
			}
			if err := emit(Notification{ID: id, Name: filepath.Base(ev.Name)}); err != nil {
				return err
			}
			room--

		case err, ok := <-s.fsw.Errors:
			if !ok {
				return errStreamClosed
			}
			return fmt.Errorf("fsnotify: %w", err)

		default:
			return nil
		}
	}
	return nil
}

func (s *fsnotifySource) lookup(dir string) (ID, bool) {
	for _, d := range s.dirs {
		if d.dir == dir {
			return d.id, true
		}
	}
	return 0, false
}

func (s *fsnotifySource) Close() error {
	return s.fsw.Close()
}
