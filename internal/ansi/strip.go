// Package ansi removes terminal control sequences from a shell byte
// stream and decodes the rest to displayable text.
//
// The stripper is a byte-level state machine, so an escape sequence that
// straddles two reads is removed exactly as if it had arrived in one.
package ansi

import (
	"golang.org/x/text/transform"
)

// maxStringLen bounds OSC/DCS/APC payloads.  A string sequence that runs
// longer than this is abandoned and the stripper returns to text.
const maxStringLen = 4096

const (
	bel = 0x07
	can = 0x18
	sub = 0x1a
	esc = 0x1b
)

type state uint8

const (
	stGround state = iota
	stEscape       // saw ESC
	stEscInter     // ESC followed by intermediates 0x20-0x2F
	stCSI          // ESC [
	stString       // ESC ] / P / X / ^ / _
	stStringEsc    // ESC inside a string sequence
)

// Stripper is a [transform.Transformer] that drops escape sequences.
// It never needs more input to make progress, so it never returns
// [transform.ErrShortSrc]; partial sequences live in its state instead.
type Stripper struct {
	st     state
	osc    bool // current string sequence accepts BEL as terminator
	strLen int
}

// NewStripper returns a Stripper in the ground state.
func NewStripper() *Stripper { return &Stripper{} }

// Reset implements [transform.Transformer].
func (s *Stripper) Reset() {
	s.st = stGround
	s.osc = false
	s.strLen = 0
}

// Pending reports whether the stripper is inside an unfinished sequence.
func (s *Stripper) Pending() bool { return s.st != stGround }

// Transform implements [transform.Transformer].
func (s *Stripper) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		b := src[nSrc]
		emit, reprocess := s.step(b)
		if reprocess {
			// The sequence ended on a byte that belongs to the text.
			continue
		}
		if emit {
			if nDst >= len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = b
			nDst++
		}
		nSrc++
	}
	if atEOF {
		// An unterminated sequence at end of stream is dropped.
		s.Reset()
	}
	return nDst, nSrc, nil
}

// step advances the state machine by one byte.  emit means b is text;
// reprocess means the state changed and b must be looked at again.
func (s *Stripper) step(b byte) (emit, reprocess bool) {
	switch s.st {
	case stGround:
		if b == esc {
			s.st = stEscape
			return false, false
		}
		return true, false

	case stEscape:
		switch {
		case b == '[':
			s.st = stCSI
		case b == ']':
			s.enterString(true)
		case b == 'P' || b == 'X' || b == '^' || b == '_':
			s.enterString(false)
		case b == esc:
			// ESC ESC: the first one is dropped, start over.
		case b >= 0x20 && b <= 0x2f:
			s.st = stEscInter
		case b >= 0x30 && b <= 0x7e:
			s.st = stGround
		case b == can || b == sub:
			s.st = stGround
		default:
			s.st = stGround
			return false, true
		}
		return false, false

	case stEscInter:
		switch {
		case b >= 0x20 && b <= 0x2f:
		case b >= 0x30 && b <= 0x7e:
			s.st = stGround
		case b == esc:
			s.st = stEscape
		case b == can || b == sub:
			s.st = stGround
		default:
			s.st = stGround
			return false, true
		}
		return false, false

	case stCSI:
		switch {
		case b >= 0x20 && b <= 0x3f:
			// parameters and intermediates
		case b >= 0x40 && b <= 0x7e:
			s.st = stGround
		case b == esc:
			s.st = stEscape
		case b == can || b == sub:
			s.st = stGround
		default:
			s.st = stGround
			return false, true
		}
		return false, false

	case stString:
		switch {
		case b == bel && s.osc:
			s.st = stGround
		case b == esc:
			s.st = stStringEsc
		case b == can || b == sub:
			s.st = stGround
		default:
			s.strLen++
			if s.strLen > maxStringLen {
				s.st = stGround
			}
		}
		return false, false

	case stStringEsc:
		if b == '\\' {
			s.st = stGround
			return false, false
		}
		// Any other escape ends the string and starts a new sequence.
		s.st = stEscape
		return false, true
	}
	return true, false
}

func (s *Stripper) enterString(osc bool) {
	s.st = stString
	s.osc = osc
	s.strLen = 0
}

// StripControlSequences removes every escape sequence from text.  An
// unterminated sequence at the end of text is dropped.
func StripControlSequences(text string) string {
	out, _, err := transform.String(NewStripper(), text)
	if err != nil {
		return text
	}
	return out
}
