package records

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestOpen_MissingFile(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "nope", FileName))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestAdd_Deduplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", FileName)
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		added, err := s.Add(Record{Host: "10.0.0.5", Username: "root"})
		if err != nil {
			t.Fatalf("Add #%d: %v", i, err)
		}
		if added != (i == 0) {
			t.Errorf("Add #%d added = %v", i, added)
		}
	}
	// Port 22 is the same record as no port.
	if added, _ := s.Add(Record{Host: "10.0.0.5", Username: "root", Port: 22}); added {
		t.Error("explicit default port should be a duplicate")
	}
	if added, _ := s.Add(Record{Host: "10.0.0.5", Username: "admin"}); !added {
		t.Error("different user should be added")
	}

	reloaded, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []Record{
		{Host: "10.0.0.5", Username: "root"},
		{Host: "10.0.0.5", Username: "admin"},
	}
	if got := reloaded.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("reloaded = %+v, want %+v", got, want)
	}
}

func TestSave_FileMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s, _ := Open(path)
	if _, err := s.Add(Record{Host: "h", Username: "u", Port: 2222}); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("mode = %o, want 600", perm)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"port": 2222`) {
		t.Errorf("port not persisted: %s", data)
	}
}

func TestOpen_DedupesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	content := `[{"ip":"a","username":"u"},{"host":"a","username":"u"},{"ip":"b","username":"u"}]`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestOpen_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	os.WriteFile(path, []byte("{not json"), 0o600) //nolint:errcheck
	if _, err := Open(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestAdd_WriteFailureKeepsRecord(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	// The parent "directory" is a regular file, so MkdirAll fails.
	s := &Store{path: filepath.Join(blocker, FileName)}
	added, err := s.Add(Record{Host: "h", Username: "u"})
	if err == nil {
		t.Fatal("expected write error")
	}
	if !added || s.Len() != 1 {
		t.Errorf("record should be kept in memory: added=%v len=%d", added, s.Len())
	}
}

func TestOpen_OriginalFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	content := `[{"ip": "10.0.0.5", "username": "root"}, {"ip": "", "username": "ghost"}]`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []Record{{Host: "10.0.0.5", Username: "root"}}
	if got := s.List(); !reflect.DeepEqual(got, want) {
		t.Fatalf("List() = %+v, want %+v", got, want)
	}

	if _, err := s.Add(Record{Host: "box", Username: "admin"}); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"ip": "10.0.0.5"`) || strings.Contains(string(data), `"host"`) {
		t.Errorf("file not written with ip keys: %s", data)
	}
}

func TestOpen_DefaultPortMatchesAdd(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	content := `[{"ip":"box","username":"root","port":22}]`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	added, err := s.Add(Record{Host: "box", Username: "root", Port: 22})
	if err != nil {
		t.Fatal(err)
	}
	if added || s.Len() != 1 {
		t.Errorf("added=%v len=%d, want a duplicate", added, s.Len())
	}
}
