//go:build !linux && !windows

package watcher

func newNativeSource() (Source, error) {
	return newFsnotifySource()
}
