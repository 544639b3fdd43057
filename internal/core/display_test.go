package core

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestDisplay_Append(t *testing.T) {
	d := NewDisplay(0)
	d.Append("hello ")
	d.Append("world")
	if got := d.String(); got != "hello world" {
		t.Errorf("got %q", got)
	}
	if d.Len() != 11 {
		t.Errorf("len = %d", d.Len())
	}
}

func TestDisplay_TrimsFront(t *testing.T) {
	d := NewDisplay(10)
	d.Append("0123456789")
	d.Append("abc")
	if got := d.String(); got != "3456789abc" {
		t.Errorf("got %q", got)
	}
}

func TestDisplay_TrimOnRuneBoundary(t *testing.T) {
	d := NewDisplay(7)
	d.Append(strings.Repeat("世", 4)) // 12 bytes
	got := d.String()
	if !utf8.ValidString(got) {
		t.Fatalf("trim split a rune: %q", got)
	}
	if got != "世世" {
		t.Errorf("got %q", got)
	}
}
