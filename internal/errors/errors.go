// Package errors provides domain-specific error types for termphyrio.
//
// The types follow the session failure taxonomy: establishment failures
// (network, authentication, host key) mark a session Failed, runtime
// channel failures (read, write) tear it down. None of them are retried;
// Classify tells callers which bucket an arbitrary error falls into.
package errors

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrNotConnected    = errors.New("not connected")
	ErrChannelClosed   = errors.New("channel is closed")
	ErrSessionNotFound = errors.New("session not found")
	ErrQueueFull       = errors.New("send queue is full")
	ErrTimeout         = errors.New("operation timed out")
	ErrAuthFailed      = errors.New("authentication failed")
	ErrHostKeyMismatch = errors.New("host key mismatch")
	ErrUnknownHost     = errors.New("host key is not known")
)

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure to reach the remote host.
type NetworkError struct {
	Op   string // "dial", "handshake", "keepalive"
	Addr string // network address involved
	Err  error  // underlying error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AuthError reports that the server rejected every offered credential.
type AuthError struct {
	User string
	Addr string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth %s@%s: %v", e.User, e.Addr, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrAuthFailed) match any AuthError.
func (e *AuthError) Is(target error) bool { return target == ErrAuthFailed }

// HostKeyError reports a host key that failed verification.
type HostKeyError struct {
	Addr        string
	Fingerprint string // SHA256 fingerprint of the presented key
	Known       bool   // true if the host is known with a different key
	Err         error
}

func (e *HostKeyError) Error() string {
	what := "unknown host key"
	if e.Known {
		what = "host key changed"
	}
	msg := fmt.Sprintf("hostkey %s: %s (%s)", e.Addr, what, e.Fingerprint)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *HostKeyError) Unwrap() error { return e.Err }

// Is matches ErrHostKeyMismatch for changed keys and ErrUnknownHost for
// keys that are simply missing from known_hosts.
func (e *HostKeyError) Is(target error) bool {
	if e.Known {
		return target == ErrHostKeyMismatch
	}
	return target == ErrUnknownHost
}

// SSHError represents any other SSH protocol failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ChannelError is a failure on an established shell channel.  Op "read"
// and "write" are the runtime ReadError/WriteError cases; "open", "pty"
// and "shell" happen while the channel is being set up.
type ChannelError struct {
	Op      string
	Session string // session ID, empty while opening
	Err     error
}

func (e *ChannelError) Error() string {
	if e.Session == "" {
		return fmt.Sprintf("channel %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("channel %s [%s]: %v", e.Op, e.Session, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{Op: op, Addr: addr, Err: err}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// WrapChannel creates a ChannelError.
func WrapChannel(op, session string, err error) *ChannelError {
	return &ChannelError{Op: op, Session: session, Err: err}
}

// ── Classification ───────────────────────────────────────────────────

// Kind is the taxonomy bucket of an error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindAuth
	KindHostKey
	KindChannel
	KindRead
	KindWrite
	KindConfig
	KindLocal
)

var kindNames = [...]string{
	KindUnknown: "unknown",
	KindNetwork: "network",
	KindAuth:    "auth",
	KindHostKey: "hostkey",
	KindChannel: "channel",
	KindRead:    "read",
	KindWrite:   "write",
	KindConfig:  "config",
	KindLocal:   "local",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Classify maps err to its taxonomy bucket.  A nil error is KindUnknown.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var (
		authErr *AuthError
		hkErr   *HostKeyError
		chErr   *ChannelError
		netErr  *NetworkError
		cfgErr  *ConfigError
		sshErr  *SSHError
	)
	switch {
	case errors.As(err, &authErr), errors.Is(err, ErrAuthFailed):
		return KindAuth
	case errors.As(err, &hkErr), errors.Is(err, ErrHostKeyMismatch), errors.Is(err, ErrUnknownHost):
		return KindHostKey
	case errors.As(err, &chErr):
		switch chErr.Op {
		case "read":
			return KindRead
		case "write":
			return KindWrite
		}
		return KindChannel
	case errors.As(err, &cfgErr):
		return KindConfig
	case errors.As(err, &netErr):
		return KindNetwork
	case errors.As(err, &sshErr):
		if sshErr.Op == "auth" {
			return KindAuth
		}
		return KindNetwork
	case errors.Is(err, ErrChannelClosed), errors.Is(err, ErrQueueFull):
		return KindWrite
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindNetwork
	}
	return KindLocal
}

// IsAuthFailure reports whether an SSH handshake error means the server
// rejected every offered authentication method.  x/crypto/ssh has no
// exported type for this, only a fixed message.
func IsAuthFailure(err error) bool {
	return err != nil && strings.Contains(err.Error(), "unable to authenticate")
}

// IsHarmless returns true for errors that are expected when a stream is
// closed on purpose.
func IsHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These let callers that already import termphyrio/internal/errors
// match errors without also importing the standard library package.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }
