package transport

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	tperr "termphyrio/internal/errors"
)

// HostKeyPolicy selects how server host keys are verified.
type HostKeyPolicy int

const (
	// HostKeyStrict accepts only keys already in known_hosts.
	HostKeyStrict HostKeyPolicy = iota
	// HostKeyAcceptNew records keys of unknown hosts (trust on first
	// use) but still rejects a key that changed.
	HostKeyAcceptNew
	// HostKeyInsecure accepts any key.
	HostKeyInsecure
)

var policyNames = map[HostKeyPolicy]string{
	HostKeyStrict:    "strict",
	HostKeyAcceptNew: "accept-new",
	HostKeyInsecure:  "insecure",
}

func (p HostKeyPolicy) String() string {
	if s, ok := policyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("HostKeyPolicy(%d)", int(p))
}

// ParseHostKeyPolicy accepts "strict", "accept-new" or "insecure".
func ParseHostKeyPolicy(s string) (HostKeyPolicy, error) {
	for p, name := range policyNames {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return HostKeyStrict, fmt.Errorf("unknown host key policy %q", s)
}

// DefaultKnownHostsPath returns ~/.ssh/known_hosts.
func DefaultKnownHostsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, ".ssh", "known_hosts"), nil
}

// knownHostsMu serialises appends to known_hosts across sessions.
var knownHostsMu sync.Mutex

// hostKeyVerifier implements one connection's host key check and
// remembers why it rejected a key, so the handshake error can be
// reported as a HostKeyError.
type hostKeyVerifier struct {
	policy HostKeyPolicy
	path   string

	mu      sync.Mutex
	failure *tperr.HostKeyError
}

func newHostKeyVerifier(policy HostKeyPolicy, path string) *hostKeyVerifier {
	return &hostKeyVerifier{policy: policy, path: path}
}

// Failure returns the rejection recorded by the callback, if any.
func (v *hostKeyVerifier) Failure() *tperr.HostKeyError {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.failure
}

// Callback is the ssh.HostKeyCallback for this verifier.
func (v *hostKeyVerifier) Callback(hostname string, remote net.Addr, key ssh.PublicKey) error {
	if v.policy == HostKeyInsecure {
		//nolint:gosec // user opted out of host key checking
		return nil
	}

	knownHostsMu.Lock()
	defer knownHostsMu.Unlock()

	err := v.check(hostname, remote, key)
	if err == nil {
		return nil
	}

	var keyErr *knownhosts.KeyError
	if !errors.As(err, &keyErr) {
		return v.fail(hostname, key, false, err)
	}
	if len(keyErr.Want) > 0 {
		return v.fail(hostname, key, true, nil)
	}
	if v.policy == HostKeyAcceptNew {
		if err := v.remember(hostname, key); err != nil {
			return v.fail(hostname, key, false, err)
		}
		return nil
	}
	return v.fail(hostname, key, false, nil)
}

// check consults known_hosts.  A missing file means every host is
// unknown.  Caller holds knownHostsMu.
func (v *hostKeyVerifier) check(hostname string, remote net.Addr, key ssh.PublicKey) error {
	if _, err := os.Stat(v.path); errors.Is(err, os.ErrNotExist) {
		return &knownhosts.KeyError{}
	}
	cb, err := knownhosts.New(v.path)
	if err != nil {
		return fmt.Errorf("loading known_hosts from %s: %w", v.path, err)
	}
	return cb(hostname, remote, key)
}

// remember appends a known_hosts line for hostname.  Caller holds
// knownHostsMu.
func (v *hostKeyVerifier) remember(hostname string, key ssh.PublicKey) error {
	if err := os.MkdirAll(filepath.Dir(v.path), 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(v.path), err)
	}
	f, err := os.OpenFile(v.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening known_hosts: %w", err)
	}
	w := bufio.NewWriter(f)
	w.WriteString(knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)) //nolint:errcheck
	w.WriteByte('\n')                                                            //nolint:errcheck
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing known_hosts: %w", err)
	}
	return f.Close()
}

func (v *hostKeyVerifier) fail(hostname string, key ssh.PublicKey, known bool, cause error) error {
	he := &tperr.HostKeyError{
		Addr:        hostname,
		Fingerprint: ssh.FingerprintSHA256(key),
		Known:       known,
		Err:         cause,
	}
	v.mu.Lock()
	v.failure = he
	v.mu.Unlock()
	return he
}
