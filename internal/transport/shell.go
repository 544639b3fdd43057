package transport

import (
	"errors"
	"io"
	"sync"

	"golang.org/x/crypto/ssh"

	tperr "termphyrio/internal/errors"
)

// ShellChannel is an interactive shell running on an SSH session
// channel.
type ShellChannel struct {
	sess   *ssh.Session
	stdin  io.WriteCloser
	stdout io.Reader

	writeMu   sync.Mutex
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

func newShellChannel(sess *ssh.Session, stdin io.WriteCloser, stdout io.Reader) *ShellChannel {
	return &ShellChannel{sess: sess, stdin: stdin, stdout: stdout}
}

func (c *ShellChannel) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Send writes p to the shell's stdin in full.
func (c *ShellChannel) Send(p []byte) error {
	if c.isClosed() {
		return tperr.WrapChannel("write", "", tperr.ErrChannelClosed)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.stdin.Write(p); err != nil {
		if c.isClosed() || errors.Is(err, io.EOF) {
			return tperr.WrapChannel("write", "", tperr.ErrChannelClosed)
		}
		return tperr.WrapChannel("write", "", err)
	}
	return nil
}

// Receive reads the next chunk of shell output.
func (c *ShellChannel) Receive(p []byte) (int, error) {
	n, err := c.stdout.Read(p)
	if err == nil {
		return n, nil
	}
	if errors.Is(err, io.EOF) || c.isClosed() {
		return n, io.EOF
	}
	return n, tperr.WrapChannel("read", "", err)
}

// Resize sends a window-change request for the new size.
func (c *ShellChannel) Resize(cols, rows int) error {
	if c.isClosed() {
		return tperr.WrapChannel("resize", "", tperr.ErrChannelClosed)
	}
	if err := c.sess.WindowChange(rows, cols); err != nil {
		return tperr.WrapChannel("resize", "", err)
	}
	return nil
}

// Close ends the shell channel.  It does not close the connection.
func (c *ShellChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.stdin.Close() //nolint:errcheck
		err = c.sess.Close()
		if tperr.IsHarmless(err) {
			err = nil
		}
	})
	return err
}
