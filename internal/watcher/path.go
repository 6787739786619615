package watcher

import (
	"strings"
	"unicode/utf8"
)

// MaxPathSize bounds every path the watcher stores, in bytes. One byte is
// reserved so paths can always be handed to APIs that need a terminator.
const MaxPathSize = 256

// JoinPath joins base and name with a forward slash. The result never
// exceeds MaxPathSize-1 bytes; longer paths are cut without splitting a
// UTF-8 sequence.
func JoinPath(base, name string) string {
	return bound(strings.TrimRight(base, "/") + "/" + name)
}

func bound(s string) string {
	const limit = MaxPathSize - 1
	if len(s) <= limit {
		return s
	}
	n := limit
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
