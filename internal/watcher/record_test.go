package watcher

import (
	"encoding/binary"
	"errors"
	"testing"
	"unicode/utf16"
)

func inotifyBytes(wd int32, mask uint32, name string, nameLen int) []byte {
	b := make([]byte, inotifyHeaderSize+nameLen)
	binary.NativeEndian.PutUint32(b[0:4], uint32(wd))
	binary.NativeEndian.PutUint32(b[4:8], mask)
	binary.NativeEndian.PutUint32(b[12:16], uint32(nameLen))
	copy(b[inotifyHeaderSize:], name)
	return b
}

func TestInotifyCursor(t *testing.T) {
	var buf []byte
	buf = append(buf, inotifyBytes(1, 8, "data.txt", 16)...)
	buf = append(buf, inotifyBytes(1, 0x8000, "", 0)...)
	buf = append(buf, inotifyBytes(2, 8, "x", 16)...)

	c := inotifyCursor{buf: buf}
	var got []inotifyRecord
	for {
		rec, ok, err := c.next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, rec)
	}

	want := []inotifyRecord{
		{Wd: 1, Mask: 8, Name: "data.txt"},
		{Wd: 1, Mask: 0x8000},
		{Wd: 2, Mask: 8, Name: "x"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestInotifyCursorRejectsTruncation(t *testing.T) {
	full := inotifyBytes(1, 8, "data.txt", 16)

	for _, buf := range [][]byte{full[:10], full[:20]} {
		c := inotifyCursor{buf: buf}
		if _, _, err := c.next(); !errors.Is(err, errShortRecord) {
			t.Errorf("len %d: err = %v, want errShortRecord", len(buf), err)
		}
	}
}

func notifyBytes(next, action uint32, name string, pad int) []byte {
	units := utf16.Encode([]rune(name))
	b := make([]byte, notifyHeaderSize+2*len(units)+pad)
	binary.LittleEndian.PutUint32(b[0:4], next)
	binary.LittleEndian.PutUint32(b[4:8], action)
	binary.LittleEndian.PutUint32(b[8:12], uint32(2*len(units)))
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[notifyHeaderSize+2*i:], u)
	}
	return b
}

func TestNotifyCursor(t *testing.T) {
	first := notifyBytes(0, 3, "report.txt", 0)
	// Pad the first entry to a DWORD boundary and link it to the second.
	first = append(first, make([]byte, (4-len(first)%4)%4)...)
	binary.LittleEndian.PutUint32(first[0:4], uint32(len(first)))
	buf := append(first, notifyBytes(0, 1, "übersicht.md", 0)...)
	// Bytes after the last entry are never read.
	buf = append(buf, 0xff, 0xff, 0xff)

	c := notifyCursor{buf: buf}
	var got []notifyRecord
	for {
		rec, ok, err := c.next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, rec)
	}

	want := []notifyRecord{{Action: 3, Name: "report.txt"}, {Action: 1, Name: "übersicht.md"}}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestNotifyCursorRejectsBadOffsets(t *testing.T) {
	cases := map[string][]byte{
		"short header":       make([]byte, 8),
		"name past buffer":   notifyBytes(0, 3, "abc", 0)[:14],
		"next past buffer":   notifyBytes(4096, 3, "abc", 0),
		"next inside header": notifyBytes(4, 3, "abc", 0),
	}
	for name, buf := range cases {
		c := notifyCursor{buf: buf}
		if _, _, err := c.next(); !errors.Is(err, errShortRecord) {
			t.Errorf("%s: err = %v, want errShortRecord", name, err)
		}
	}
}

func TestNotifyCursorEmpty(t *testing.T) {
	c := notifyCursor{}
	if _, ok, err := c.next(); ok || err != nil {
		t.Fatalf("empty buffer: ok=%v err=%v", ok, err)
	}
}
