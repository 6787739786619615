package watcher

import "math"

// dedupWindow collapses repeated notifications for the same name that
// arrive within one pump of each other. Only the most recently accepted
// name is remembered, for the whole Watcher: two watchpoints reporting the
// same base name in adjacent pumps suppress each other.
type dedupWindow struct {
	lastName string
	lastTick uint32
	tick     uint32
}

// advance moves the window forward by one pump. The counter wraps.
func (d *dedupWindow) advance() {
	d.tick++
}

// recent reports whether name was accepted in this pump or the previous one.
func (d *dedupWindow) recent(name string) bool {
	if name != d.lastName {
		return false
	}
	return d.tick-d.lastTick <= 1 || d.lastTick-d.tick == math.MaxUint32
}

func (d *dedupWindow) remember(name string) {
	d.lastName = name
	d.lastTick = d.tick
}

// Probe reports whether the file at path can be opened for reading right
// now. Sources that report writes more than once use it to hold back
// events for files that are still being written.
type Probe func(path string) bool
