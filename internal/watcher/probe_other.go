//go:build !windows

package watcher

import "os"

func defaultProbe(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}
