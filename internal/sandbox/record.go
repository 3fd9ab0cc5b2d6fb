package sandbox

import "time"

// Record is the structured, read-only view of a namespace entry as scripts
// see it. Entries are seeded into the interpreter as Record values; the
// Lines slice is shared with the kernel's line index and must not be
// mutated by scripts.
type Record struct {
	Content   string
	Lines     []string
	LineCount int
	Size      int64
	Type      string
	Metadata  map[string]any
	Created   time.Time
	Accessed  time.Time
}
