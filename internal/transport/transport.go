// Package transport establishes authenticated SSH connections and opens
// PTY-backed shell channels over them.  Transports handle the "how" of
// reaching a remote shell, independent of what the session layer does
// with the byte stream.
package transport

import (
	"context"
	"net"

	"termphyrio/util"
)

// DefaultPort is the standard SSH port.
const DefaultPort = 22

// Dialer opens outbound network connections.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)
}

// Endpoint identifies the remote account a session logs into.
type Endpoint struct {
	Host string
	Port int
	User string
}

// Addr returns "host:port", defaulting the port to 22.
func (e Endpoint) Addr() string {
	port := e.Port
	if port == 0 {
		port = DefaultPort
	}
	return util.FormatAddr(e.Host, port)
}

// String renders user@host[:port].
func (e Endpoint) String() string {
	return util.UserAtHost(e.User, e.Host, e.Port)
}

// Credential is what the user supplied to log in.  It is only used for
// the handshake and is never persisted.
type Credential struct {
	Password   string
	KeyPath    string
	Passphrase string // for an encrypted KeyPath
	UseAgent   bool
}

// PTYRequest describes the pseudo-terminal requested for a shell.
type PTYRequest struct {
	Term string
	Cols int
	Rows int
}

// Connector creates transports.  Session registries depend on this
// interface so tests can substitute an in-memory implementation.
type Connector interface {
	Connect(ctx context.Context, ep Endpoint, cred Credential) (Transport, error)
}

// Transport is an authenticated connection over which shell channels
// are multiplexed.
type Transport interface {
	// OpenShell opens a session channel, requests a PTY and starts the
	// login shell.
	OpenShell(ctx context.Context, pty PTYRequest) (Channel, error)

	// IsAlive reports whether the underlying connection is still up.
	IsAlive() bool

	// Close tears down the connection and every channel on it.
	Close() error
}

// Channel is the duplex byte stream of one interactive shell.
type Channel interface {
	// Send writes p to the remote shell's input.
	Send(p []byte) error

	// Receive blocks until output is available.  It returns io.EOF once
	// the shell has exited or the channel was closed.
	Receive(p []byte) (int, error)

	// Resize reports a new terminal size to the remote PTY.
	Resize(cols, rows int) error

	// Close terminates the shell.  It is safe to call more than once.
	Close() error
}
