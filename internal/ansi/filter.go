package ansi

import (
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Filter turns successive raw chunks from a shell channel into text.
// Escape sequences are stripped and bytes are decoded as UTF-8 with
// invalid input replaced by U+FFFD.  A rune split across two chunks is
// held back until the rest arrives.
//
// A Filter is not safe for concurrent use; each reader task owns one.
type Filter struct {
	strip   *Stripper
	decode  transform.Transformer
	pending []byte // undecoded tail: an incomplete UTF-8 sequence
}

// NewFilter returns a Filter ready for the first chunk.
func NewFilter() *Filter {
	return &Filter{
		strip:  NewStripper(),
		decode: unicode.UTF8.NewDecoder(),
	}
}

// Write filters chunk and returns the text that is complete so far.
func (f *Filter) Write(chunk []byte) string {
	return f.run(chunk, false)
}

// Flush ends the stream.  Held bytes are emitted as U+FFFD and an
// unfinished escape sequence is discarded.  The Filter can be reused
// afterwards.
func (f *Filter) Flush() string {
	out := f.run(nil, true)
	f.strip.Reset()
	f.decode.Reset()
	f.pending = nil
	return out
}

func (f *Filter) run(chunk []byte, atEOF bool) string {
	stripped, _ := apply(f.strip, chunk, atEOF)

	src := stripped
	if len(f.pending) > 0 {
		src = append(f.pending, stripped...)
	}
	text, rest := apply(f.decode, src, atEOF)
	f.pending = append([]byte(nil), rest...)
	return string(text)
}

// apply runs t over src and returns the output plus any input t asked
// to see again with more data (transform.ErrShortSrc).
func apply(t transform.Transformer, src []byte, atEOF bool) (out, rest []byte) {
	size := len(src) + len(src)/2 + 16
	buf := make([]byte, size)
	for {
		nDst, nSrc, err := t.Transform(buf, src, atEOF)
		out = append(out, buf[:nDst]...)
		src = src[nSrc:]
		switch err {
		case nil:
			return out, nil
		case transform.ErrShortSrc:
			return out, src
		case transform.ErrShortDst:
			if nDst == 0 && nSrc == 0 {
				buf = make([]byte, len(buf)*2)
			}
		default:
			// The UTF-8 decoder replaces instead of failing; anything
			// else is dropped rather than corrupting later output.
			return out, nil
		}
	}
}
