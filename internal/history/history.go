// Package history keeps the lines submitted to a session and lets the
// user walk back through them.
package history

// DefaultCapacity is the number of lines kept when none is configured.
const DefaultCapacity = 500

// Buffer is an ordered log of submitted lines with a recall cursor.
// The cursor sits at len(lines) ("end", nothing selected) after every
// Append.
//
// A Buffer is owned by the coordinator goroutine and is not safe for
// concurrent use.
type Buffer struct {
	lines    []string
	cursor   int
	capacity int
}

// New returns an empty Buffer holding at most capacity lines.  A
// non-positive capacity selects DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{capacity: capacity}
}

// Append records line and moves the cursor to the end.  Empty lines are
// not recorded but still reset the cursor.
func (b *Buffer) Append(line string) {
	if line != "" {
		b.lines = append(b.lines, line)
		if over := len(b.lines) - b.capacity; over > 0 {
			b.lines = append(b.lines[:0:0], b.lines[over:]...)
		}
	}
	b.cursor = len(b.lines)
}

// Previous moves the cursor one line back and returns that line.  It
// returns ok=false, leaving the cursor in place, when there is nothing
// older.
func (b *Buffer) Previous() (line string, ok bool) {
	if b.cursor <= 0 || len(b.lines) == 0 {
		return "", false
	}
	b.cursor--
	return b.lines[b.cursor], true
}

// Next moves the cursor one line forward and returns that line.  Moving
// past the newest line returns "" and leaves the cursor at the end.
func (b *Buffer) Next() string {
	if b.cursor >= len(b.lines)-1 {
		b.cursor = len(b.lines)
		return ""
	}
	b.cursor++
	return b.lines[b.cursor]
}

// Len returns the number of recorded lines.
func (b *Buffer) Len() int { return len(b.lines) }

// AtEnd reports whether no line is currently selected.
func (b *Buffer) AtEnd() bool { return b.cursor == len(b.lines) }

// Entries returns a copy of the recorded lines, oldest first.
func (b *Buffer) Entries() []string {
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}
