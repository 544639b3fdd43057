package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	tperr "termphyrio/internal/errors"
	"termphyrio/util"
)

// Defaults for SSH connections.
const (
	DefaultConnTimeout       = 15 * time.Second
	DefaultKeepAliveInterval = 30 * time.Second
	DefaultTerm              = "xterm-256color"
	DefaultCols              = 80
	DefaultRows              = 24
)

// SSHOptions configures an [SSHConnector].
type SSHOptions struct {
	HostKeyPolicy     HostKeyPolicy
	KnownHosts        string        // path to known_hosts; "" = ~/.ssh/known_hosts
	ConnTimeout       time.Duration // dial + handshake budget
	KeepAliveInterval time.Duration // 0 disables keepalives
	Dialer            Dialer        // nil = TCPDialer
}

// SSHConnector implements [Connector] with golang.org/x/crypto/ssh.
type SSHConnector struct {
	opts   SSHOptions
	logger *util.Logger
}

// NewSSHConnector returns a connector with defaults filled in.
func NewSSHConnector(opts SSHOptions, logger *util.Logger) *SSHConnector {
	if opts.ConnTimeout == 0 {
		opts.ConnTimeout = DefaultConnTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = &TCPDialer{Timeout: opts.ConnTimeout}
	}
	return &SSHConnector{opts: opts, logger: logger}
}

// Connect dials ep, verifies its host key and authenticates with cred.
// Failures are a *NetworkError, *AuthError or *HostKeyError.
func (c *SSHConnector) Connect(ctx context.Context, ep Endpoint, cred Credential) (Transport, error) {
	if ep.Port == 0 {
		ep.Port = DefaultPort
	}
	addr := ep.Addr()

	auth, err := BuildAuthMethods(cred)
	if err != nil {
		return nil, &tperr.AuthError{User: ep.User, Addr: addr, Err: err}
	}
	defer auth.Close()

	khPath := c.opts.KnownHosts
	if khPath == "" && c.opts.HostKeyPolicy != HostKeyInsecure {
		if khPath, err = DefaultKnownHostsPath(); err != nil {
			return nil, tperr.WrapSSH("hostkey", ep.Host, ep.Port, err)
		}
	}
	verifier := newHostKeyVerifier(c.opts.HostKeyPolicy, khPath)

	sshCfg := &ssh.ClientConfig{
		User:            ep.User,
		Auth:            auth.Methods,
		HostKeyCallback: verifier.Callback,
		Timeout:         c.opts.ConnTimeout,
	}

	c.logger.Debug("SSH: dialing %s as %s", addr, util.SanitizeForLog(ep.User))

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnTimeout)
	defer cancel()

	conn, err := c.opts.Dialer.Dial(dialCtx, "tcp", addr)
	if err != nil {
		return nil, tperr.Wrap("dial", addr, err)
	}

	// The handshake has no context of its own: bound it with a deadline
	// and abort it by closing the socket if ctx is cancelled.
	conn.SetDeadline(time.Now().Add(c.opts.ConnTimeout)) //nolint:errcheck
	stop := context.AfterFunc(dialCtx, func() { conn.Close() })

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if !stop() {
		// ctx fired; the conn is already closed.
		if err == nil {
			sshConn.Close()
		}
		return nil, tperr.Wrap("handshake", addr, context.Cause(dialCtx))
	}
	if err != nil {
		conn.Close()
		switch {
		case verifier.Failure() != nil:
			return nil, verifier.Failure()
		case tperr.IsAuthFailure(err):
			return nil, &tperr.AuthError{User: ep.User, Addr: addr, Err: err}
		default:
			return nil, tperr.Wrap("handshake", addr, err)
		}
	}
	conn.SetDeadline(time.Time{}) //nolint:errcheck

	t := &SSHTransport{
		client: ssh.NewClient(sshConn, chans, reqs),
		addr:   addr,
		logger: c.logger,
		done:   make(chan struct{}),
		alive:  true,
	}
	go t.monitor()
	if c.opts.KeepAliveInterval > 0 {
		go t.keepaliveLoop(c.opts.KeepAliveInterval)
	}

	c.logger.Verbose("SSH: connected to %s", addr)
	return t, nil
}

// SSHTransport is one authenticated SSH connection.
type SSHTransport struct {
	client *ssh.Client
	addr   string
	logger *util.Logger

	mu        sync.RWMutex
	alive     bool
	done      chan struct{}
	closeOnce sync.Once
}

// OpenShell opens a session channel with a PTY and starts the login
// shell on it.
func (t *SSHTransport) OpenShell(ctx context.Context, pty PTYRequest) (Channel, error) {
	if !t.IsAlive() {
		return nil, tperr.WrapChannel("open", "", tperr.ErrNotConnected)
	}
	if err := ctx.Err(); err != nil {
		return nil, tperr.WrapChannel("open", "", err)
	}
	if pty.Term == "" {
		pty.Term = DefaultTerm
	}
	if pty.Cols <= 0 || pty.Rows <= 0 {
		pty.Cols, pty.Rows = DefaultCols, DefaultRows
	}

	sess, err := t.client.NewSession()
	if err != nil {
		return nil, tperr.WrapChannel("open", "", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty(pty.Term, pty.Rows, pty.Cols, modes); err != nil {
		sess.Close()
		return nil, tperr.WrapChannel("pty", "", err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return nil, tperr.WrapChannel("open", "", fmt.Errorf("stdin pipe: %w", err))
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, tperr.WrapChannel("open", "", fmt.Errorf("stdout pipe: %w", err))
	}
	// With a PTY the server merges stderr into stdout; discard anything
	// sent on the extended channel so it cannot stall the session.
	sess.Stderr = io.Discard

	if err := sess.Shell(); err != nil {
		sess.Close()
		return nil, tperr.WrapChannel("shell", "", err)
	}

	t.logger.Debug("SSH: shell started on %s (%s %dx%d)", t.addr, pty.Term, pty.Cols, pty.Rows)
	return newShellChannel(sess, stdin, stdout), nil
}

// IsAlive reports whether the SSH connection is still up.
func (t *SSHTransport) IsAlive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.alive
}

// Close shuts down the SSH connection.  Further calls are no-ops.
func (t *SSHTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.alive = false
		t.mu.Unlock()
		close(t.done)
		err = t.client.Close()
		if tperr.IsHarmless(err) {
			err = nil
		}
	})
	return err
}

// monitor blocks until the SSH connection closes and flips the alive flag.
func (t *SSHTransport) monitor() {
	err := t.client.Wait()

	t.mu.Lock()
	t.alive = false
	t.mu.Unlock()

	if err != nil && !tperr.IsHarmless(err) {
		t.logger.Debug("SSH connection to %s closed: %v", t.addr, err)
	} else {
		t.logger.Debug("SSH connection to %s closed", t.addr)
	}
}

// keepaliveLoop sends periodic keep-alive requests and closes the
// connection once the server stops answering, which ends every shell
// reading from it.  Closing also unblocks a request still in flight.
func (t *SSHTransport) keepaliveLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if !t.IsAlive() {
				return
			}
			if err := t.sendKeepalive(interval); err != nil {
				t.logger.Warn("SSH keepalive to %s failed: %v", t.addr, err)
				t.Close() //nolint:errcheck
				return
			}
			t.logger.Debug("SSH keepalive to %s OK", t.addr)
		}
	}
}

// sendKeepalive sends one keepalive request and waits at most timeout
// for the reply.  A peer that drops traffic without resetting the
// connection never replies, so the wait must be bounded.
func (t *SSHTransport) sendKeepalive(timeout time.Duration) error {
	result := make(chan error, 1)
	go func() {
		_, _, err := t.client.SendRequest("keepalive@openssh.com", true, nil)
		result <- err
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-result:
		return err
	case <-timer.C:
		return fmt.Errorf("no reply within %s: %w", timeout, tperr.ErrTimeout)
	case <-t.done:
		return nil
	}
}
