//go:build linux

package watcher

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	// inotifyMask only asks for files closed after being opened for writing.
	inotifyMask = unix.IN_CLOSE_WRITE | unix.IN_ONLYDIR

	// inotifyBufSize holds at least one record with a NAME_MAX name.
	inotifyBufSize = 512
)

var _ Source = (*inotifySource)(nil)

// inotifySource reads every watch from one inotify descriptor.
type inotifySource struct {
	fd      int
	buf     [inotifyBufSize]byte
	watches []inotifyWatch
}

type inotifyWatch struct {
	wd int32
	id ID
}

func newNativeSource() (Source, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("inotify init: %w", err)
	}
	return &inotifySource{fd: fd}, nil
}

func (s *inotifySource) Watch(id ID, dir string) error {
	wd, err := unix.InotifyAddWatch(s.fd, dir, inotifyMask)
	if err != nil {
		return fmt.Errorf("inotify add watch: %w", err)
	}
	// The kernel hands back the existing descriptor for a directory that
	// is already watched.
	if owner, ok := s.lookup(int32(wd)); ok {
		return fmt.Errorf("%w by watchpoint %d", ErrDuplicateWatch, owner)
	}
	s.watches = append(s.watches, inotifyWatch{wd: int32(wd), id: id})
	return nil
}

// BatchSize is what one full read can hold; every record is at least a
// header long.
func (s *inotifySource) BatchSize(int) int      { return inotifyBufSize / inotifyHeaderSize }
func (s *inotifySource) DuplicatesWrites() bool { return false }

// Pump reads while the queue has room. The read size shrinks with room so
// a read never returns more records than fit; when the next record does
// not fit it stays in the kernel.
func (s *inotifySource) Pump(room int, emit func(Notification) error) error {
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
	for {
		chunk := min(len(s.buf), room*inotifyHeaderSize)
		// A named record takes at least two header sizes.
		if chunk < 2*inotifyHeaderSize {
			return nil
		}

		n, err := unix.Poll(fds, 0)
		if errors.Is(err, unix.EINTR) {
			continue
		} else if err != nil {
			return fmt.Errorf("poll inotify: %w", err)
		} else if n == 0 {
			return nil
		}

		length, err := unix.Read(s.fd, s.buf[:chunk])
		if errors.Is(err, unix.EAGAIN) {
			return nil
		} else if errors.Is(err, unix.EINTR) {
			continue
		} else if errors.Is(err, unix.EINVAL) && chunk < len(s.buf) {
			// The next record is larger than the room left.
			return nil
		} else if err != nil {
			return fmt.Errorf("read inotify: %w", err)
		}

		c := inotifyCursor{buf: s.buf[:length]}
		for {
			rec, ok, err := c.next()
			if err != nil {
				return err
			} else if !ok {
				break
			}

			// Events about the watched directory itself carry no name.
			if rec.Name == "" {
				continue
			}

			id, ok := s.lookup(rec.Wd)
			if !ok {
				return fmt.Errorf("%w: %d", ErrUnknownDescriptor, rec.Wd)
			}
			if err := emit(Notification{ID: id, Name: rec.Name}); err != nil {
				return err
			}
			room--
		}
	}
}

// lookup scans the watch list; it is never longer than the watcher capacity.
func (s *inotifySource) lookup(wd int32) (ID, bool) {
	for _, w := range s.watches {
		if w.wd == wd {
			return w.id, true
		}
	}
	return 0, false
}

// Close closes the descriptor, which drops every kernel-side watch with it.
func (s *inotifySource) Close() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}
