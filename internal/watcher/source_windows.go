//go:build windows

package watcher

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
)

const notifyFilter = windows.FILE_NOTIFY_CHANGE_LAST_WRITE |
	windows.FILE_NOTIFY_CHANGE_FILE_NAME |
	windows.FILE_NOTIFY_CHANGE_DIR_NAME

var _ Source = (*readDirSource)(nil)

// readDirSource keeps one overlapped ReadDirectoryChangesW call in flight
// per watched directory.
type readDirSource struct {
	watches []*dirWatch
	pump    dirPump
}

type dirWatch struct {
	id     ID
	handle windows.Handle
	ov     windows.Overlapped
	buf    []byte
}

func newNativeSource() (Source, error) {
	return &readDirSource{}, nil
}

func (s *readDirSource) Watch(id ID, dir string) error {
	p, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return err
	}

	h, err := windows.CreateFile(p,
		windows.GENERIC_READ|windows.FILE_LIST_DIRECTORY,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS|windows.FILE_FLAG_OVERLAPPED,
		0,
	)
	if err != nil {
		return fmt.Errorf("open directory: %w", err)
	}

	// Auto-reset: a successful zero-timeout wait consumes the signal.
	ev, err := windows.CreateEvent(nil, 0, 0, nil)
	if err != nil {
		_ = windows.CloseHandle(h)
		return fmt.Errorf("create event: %w", err)
	}

	dw := &dirWatch{id: id, handle: h, buf: make([]byte, notifyBufSize)}
	dw.ov.HEvent = ev
	if err := dw.arm(); err != nil {
		_ = windows.CloseHandle(ev)
		_ = windows.CloseHandle(h)
		return fmt.Errorf("read directory changes: %w", err)
	}

	s.watches = append(s.watches, dw)
	return nil
}

// arm queues the next asynchronous read. A directory whose read is not
// re-armed stops reporting anything.
func (dw *dirWatch) arm() error {
	return windows.ReadDirectoryChanges(dw.handle, &dw.buf[0], uint32(len(dw.buf)), false, notifyFilter, nil, &dw.ov, 0)
}

func (dw *dirWatch) watchID() ID  { return dw.id }
func (dw *dirWatch) rearm() error { return dw.arm() }

// completed checks the auto-reset event with a zero timeout; a successful
// wait consumes the signal.
func (dw *dirWatch) completed() ([]byte, bool, error) {
	status, err := windows.WaitForSingleObject(dw.ov.HEvent, 0)
	if err != nil {
		return nil, false, err
	}
	if status != windows.WAIT_OBJECT_0 {
		return nil, false, nil
	}

	var n uint32
	if err := windows.GetOverlappedResult(dw.handle, &dw.ov, &n, false); err != nil {
		// The buffer overflowed and the changes are lost; keep watching.
		if !errors.Is(err, windows.ERROR_NOTIFY_ENUM_DIR) {
			return nil, false, err
		}
		n = 0
	}
	return dw.buf[:n], true, nil
}

func (s *readDirSource) BatchSize(watches int) int { return dirBatchSize(watches) }
func (s *readDirSource) DuplicatesWrites() bool    { return true }

func (s *readDirSource) Pump(room int, emit func(Notification) error) error {
	return pumpDirs(&s.pump, s.watches, room, emit)
}

func (s *readDirSource) Close() error {
	var errs []error
	for _, dw := range s.watches {
		// The kernel must be done with buf before the handle goes away.
		if err := windows.CancelIoEx(dw.handle, &dw.ov); err == nil {
			var n uint32
			_ = windows.GetOverlappedResult(dw.handle, &dw.ov, &n, true)
		}
		errs = append(errs, windows.CloseHandle(dw.ov.HEvent), windows.CloseHandle(dw.handle))
	}
	s.watches = nil
	return errors.Join(errs...)
}
