package history

import (
	"reflect"
	"testing"
)

func TestBuffer_Navigation(t *testing.T) {
	b := New(0)
	for _, l := range []string{"a", "b", "c"} {
		b.Append(l)
	}

	for _, want := range []string{"c", "b", "a"} {
		got, ok := b.Previous()
		if !ok || got != want {
			t.Fatalf("Previous() = %q, %v; want %q", got, ok, want)
		}
	}
	if got, ok := b.Previous(); ok || got != "" {
		t.Errorf("Previous() at start = %q, %v; want none", got, ok)
	}

	for _, want := range []string{"b", "c"} {
		if got := b.Next(); got != want {
			t.Fatalf("Next() = %q, want %q", got, want)
		}
	}
	if got := b.Next(); got != "" {
		t.Errorf("Next() past end = %q, want empty", got)
	}
	if !b.AtEnd() {
		t.Error("cursor should be at end")
	}
	if got := b.Next(); got != "" || !b.AtEnd() {
		t.Errorf("repeated Next() = %q, AtEnd=%v", got, b.AtEnd())
	}
	if got, _ := b.Previous(); got != "c" {
		t.Errorf("Previous() from end = %q, want c", got)
	}
}

func TestBuffer_Empty(t *testing.T) {
	b := New(10)
	if got, ok := b.Previous(); ok || got != "" {
		t.Errorf("Previous() = %q, %v", got, ok)
	}
	if got := b.Next(); got != "" {
		t.Errorf("Next() = %q", got)
	}
	if b.Len() != 0 || !b.AtEnd() {
		t.Error("empty buffer should be at end")
	}
}

func TestBuffer_AppendResetsCursor(t *testing.T) {
	b := New(10)
	b.Append("one")
	b.Append("two")
	b.Previous()
	b.Previous()

	b.Append("three")
	if !b.AtEnd() {
		t.Fatal("append should reset cursor to end")
	}
	if got, _ := b.Previous(); got != "three" {
		t.Errorf("Previous() = %q, want three", got)
	}
}

func TestBuffer_SkipsEmptyLines(t *testing.T) {
	b := New(10)
	b.Append("ls")
	b.Append("")
	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
}

func TestBuffer_Capacity(t *testing.T) {
	b := New(3)
	for _, l := range []string{"1", "2", "3", "4", "5"} {
		b.Append(l)
	}
	if want := []string{"3", "4", "5"}; !reflect.DeepEqual(b.Entries(), want) {
		t.Errorf("Entries() = %v, want %v", b.Entries(), want)
	}
	if got, _ := b.Previous(); got != "5" {
		t.Errorf("Previous() = %q, want 5", got)
	}
}

func TestBuffer_EntriesIsCopy(t *testing.T) {
	b := New(10)
	b.Append("x")
	e := b.Entries()
	e[0] = "mutated"
	if b.Entries()[0] != "x" {
		t.Error("Entries must return a copy")
	}
}
