package watcher

import "strings"

// Flags control how a watchpoint filters and reports events.
type Flags uint

const (
	// MergePaths delivers the watched directory joined with the file name
	// instead of the bare name.
	MergePaths Flags = 1 << iota
	// SkipHidden drops every event whose name starts with a dot.
	SkipHidden
)

// Has reports whether all bits of x are set in f.
func (f Flags) Has(x Flags) bool {
	return f&x == x
}

func (f Flags) String() string {
	var parts []string
	if f.Has(MergePaths) {
		parts = append(parts, "merge_paths")
	}
	if f.Has(SkipHidden) {
		parts = append(parts, "skip_hidden")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// hidden reports whether name should be dropped under SkipHidden.
func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
