//go:build windows

package watcher

import "golang.org/x/sys/windows"

// defaultProbe opens path without sharing, so it fails while any other
// process still holds the file open.
func defaultProbe(path string) bool {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return false
	}
	h, err := windows.CreateFile(p, windows.GENERIC_READ, 0, nil, windows.OPEN_EXISTING, 0, 0)
	if err != nil {
		return false
	}
	_ = windows.CloseHandle(h)
	return true
}
