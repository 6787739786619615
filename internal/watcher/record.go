package watcher

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

var errShortRecord = errors.New("short notification record")

// inotifyHeaderSize is sizeof(struct inotify_event) without the name.
const inotifyHeaderSize = 16

// inotifyRecord is one decoded struct inotify_event.
type inotifyRecord struct {
	Wd     int32
	Mask   uint32
	Cookie uint32
	Name   string
}

// inotifyCursor walks the records read(2) returns for an inotify
// descriptor. Records are in host byte order.
type inotifyCursor struct {
	buf []byte
	off int
}

// next returns the next record, or false once the buffer is exhausted.
func (c *inotifyCursor) next() (inotifyRecord, bool, error) {
	if c.off >= len(c.buf) {
		return inotifyRecord{}, false, nil
	}
	rest := c.buf[c.off:]
	if len(rest) < inotifyHeaderSize {
		return inotifyRecord{}, false, fmt.Errorf("%w: %d bytes at offset %d", errShortRecord, len(rest), c.off)
	}

	nameLen := binary.NativeEndian.Uint32(rest[12:16])
	if uint64(nameLen) > uint64(len(rest)-inotifyHeaderSize) {
		return inotifyRecord{}, false, fmt.Errorf("%w: name length %d exceeds %d bytes at offset %d",
			errShortRecord, nameLen, len(rest)-inotifyHeaderSize, c.off)
	}
	end := inotifyHeaderSize + int(nameLen)

	rec := inotifyRecord{
		Wd:     int32(binary.NativeEndian.Uint32(rest[0:4])),
		Mask:   binary.NativeEndian.Uint32(rest[4:8]),
		Cookie: binary.NativeEndian.Uint32(rest[8:12]),
		Name:   cstring(rest[inotifyHeaderSize:end]),
	}
	c.off += end
	return rec, true, nil
}

// cstring returns b up to its first NUL byte. inotify pads names with NULs.
func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// notifyHeaderSize is the fixed part of FILE_NOTIFY_INFORMATION.
const notifyHeaderSize = 12

// notifyRecord is one decoded FILE_NOTIFY_INFORMATION entry.
type notifyRecord struct {
	Action uint32
	Name   string
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// notifyCursor walks the linked FILE_NOTIFY_INFORMATION entries
// ReadDirectoryChangesW leaves in a buffer. Every offset is checked
// against the buffer before it is followed.
type notifyCursor struct {
	buf  []byte
	off  int
	done bool
}

func (c *notifyCursor) next() (notifyRecord, bool, error) {
	if c.done || c.off >= len(c.buf) {
		return notifyRecord{}, false, nil
	}
	rest := c.buf[c.off:]
	if len(rest) < notifyHeaderSize {
		return notifyRecord{}, false, fmt.Errorf("%w: %d bytes at offset %d", errShortRecord, len(rest), c.off)
	}

	nextOff := binary.LittleEndian.Uint32(rest[0:4])
	action := binary.LittleEndian.Uint32(rest[4:8])
	nameLen := binary.LittleEndian.Uint32(rest[8:12])
	if nameLen%2 != 0 || uint64(nameLen) > uint64(len(rest)-notifyHeaderSize) {
		return notifyRecord{}, false, fmt.Errorf("%w: bad name length %d at offset %d", errShortRecord, nameLen, c.off)
	}

	name, err := utf16le.NewDecoder().Bytes(rest[notifyHeaderSize : notifyHeaderSize+int(nameLen)])
	if err != nil {
		return notifyRecord{}, false, fmt.Errorf("decode name at offset %d: %w", c.off, err)
	}

	switch {
	case nextOff == 0:
		c.done = true
	case nextOff < notifyHeaderSize || uint64(nextOff) > uint64(len(rest)):
		return notifyRecord{}, false, fmt.Errorf("%w: next entry offset %d out of range at offset %d", errShortRecord, nextOff, c.off)
	default:
		c.off += int(nextOff)
	}

	return notifyRecord{Action: action, Name: string(name)}, true, nil
}
