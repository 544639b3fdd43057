// Package records persists the set of (host, username) pairs the user
// has connected to successfully, so they can be offered again later.
//
// The file is a JSON array loaded wholesale at startup and rewritten
// wholesale whenever a new pair is added.  Only one process is expected
// to write it.  No secrets are ever stored.
package records

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileName is the name of the records file inside the config directory.
const FileName = "sessions.json"

// Record is one remembered connection.  Host is stored under "ip", the
// key older files use; "host" is accepted when reading.  Port is omitted
// when it is the SSH default.
type Record struct {
	Host     string `json:"ip"`
	Username string `json:"username"`
	Port     int    `json:"port,omitempty"`
}

// UnmarshalJSON reads a record written under either host key.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		IP       string `json:"ip"`
		Host     string `json:"host"`
		Username string `json:"username"`
		Port     int    `json:"port"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Host = raw.IP
	if r.Host == "" {
		r.Host = raw.Host
	}
	r.Username, r.Port = raw.Username, raw.Port
	return nil
}

// normalize folds the default port into the zero value so equal
// connections compare equal.
func (r Record) normalize() Record {
	if r.Port == 22 {
		r.Port = 0
	}
	return r
}

// Store is the in-memory copy of the records file.  It is safe for
// concurrent use; Add may be called from connection goroutines.
type Store struct {
	path    string
	mu      sync.Mutex
	records []Record
}

// DefaultPath returns <user config dir>/termphyrio/sessions.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config directory: %w", err)
	}
	return filepath.Join(dir, "termphyrio", FileName), nil
}

// Open loads the records at path.  A missing file yields an empty store;
// entries without a host are skipped.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}

	var loaded []Record
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for _, r := range loaded {
		// An entry without a host would dial the local machine.
		if r.Host == "" {
			continue
		}
		r = r.normalize()
		if !s.contains(r) {
			s.records = append(s.records, r)
		}
	}
	return s, nil
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

// Add appends r and rewrites the file, unless an equal record is
// already present.  added reports whether the set changed.  On a write
// error the record stays in memory so the session list is still
// complete for this run.
func (s *Store) Add(r Record) (added bool, err error) {
	r = r.normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.contains(r) {
		return false, nil
	}
	s.records = append(s.records, r)
	return true, s.save()
}

// List returns a copy of the records in insertion order.
func (s *Store) List() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Store) contains(r Record) bool {
	for _, have := range s.records {
		if have == r {
			return true
		}
	}
	return false
}

// save writes the whole set through a temp file and rename.  Caller
// holds s.mu.
func (s *Store) save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+FileName+".*")
	if err != nil {
		return fmt.Errorf("writing records: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // already renamed on success

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing records: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("writing records: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing records: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	return nil
}
