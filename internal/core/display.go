package core

import "unicode/utf8"

// defaultDisplaySize is the default per-session scrollback (256 KiB).
const defaultDisplaySize = 256 * 1024

// Display holds a session's filtered output for replay when the
// session becomes active again.  When it exceeds maxLen, older text is
// trimmed from the front on a rune boundary.
//
// A Display is owned by the coordinator loop and is not synchronised.
type Display struct {
	data   []byte
	maxLen int
}

// NewDisplay creates a display keeping at most maxLen bytes.  If
// maxLen <= 0, defaultDisplaySize is used.
func NewDisplay(maxLen int) *Display {
	if maxLen <= 0 {
		maxLen = defaultDisplaySize
	}
	return &Display{maxLen: maxLen}
}

// Append adds text to the end of the display.
func (d *Display) Append(text string) {
	d.data = append(d.data, text...)
	if len(d.data) <= d.maxLen {
		return
	}
	cut := len(d.data) - d.maxLen
	for cut < len(d.data) && !utf8.RuneStart(d.data[cut]) {
		cut++
	}
	d.data = append(d.data[:0], d.data[cut:]...)
}

// String returns the display contents.
func (d *Display) String() string { return string(d.data) }

// Len returns the number of bytes held.
func (d *Display) Len() int { return len(d.data) }
