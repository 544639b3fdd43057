// Package console is a line-oriented front end for the coordinator.
// Lines read from the input are commands (":open", ":close", ...) or
// text for the active session; coordinator output is written to the
// output as plain text.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/term"

	"termphyrio/internal/core"
	"termphyrio/internal/transport"
	"termphyrio/util"
)

// Poster accepts input events; *core.App implements it.
type Poster interface {
	Post(ctx context.Context, in core.Input) error
}

// SecretFunc reads a secret without echoing it.
type SecretFunc func(prompt string) (string, error)

// Console renders coordinator output and parses user input.  It
// implements core.Sink.
type Console struct {
	in       io.Reader
	defaults Defaults
	secret   SecretFunc
	logger   *util.Logger

	// mu serialises writes to out between the input goroutine and the
	// coordinator loop.
	mu     sync.Mutex
	out    io.Writer
	staged string // line offered by :prev / :next

	// Loop-owned view of the session list.
	order  []uuid.UUID
	labels map[uuid.UUID]string
	active uuid.UUID
}

// New creates a console reading in and writing out.  A nil secret
// prompts on the controlling terminal.
func New(in io.Reader, out io.Writer, def Defaults, secret SecretFunc, logger *util.Logger) *Console {
	if secret == nil {
		secret = TerminalSecret(out)
	}
	return &Console{
		in:       in,
		out:      out,
		defaults: def,
		secret:   secret,
		logger:   logger,
		labels:   make(map[uuid.UUID]string),
	}
}

// TerminalSecret prompts on out and reads a line from stdin with echo
// disabled.  It fails when stdin is not a terminal.
func TerminalSecret(out io.Writer) SecretFunc {
	return func(prompt string) (string, error) {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return "", errors.New("cannot prompt: stdin is not a terminal")
		}
		fmt.Fprint(out, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", strings.TrimSpace(prompt), err)
		}
		return string(b), nil
	}
}

// Run reads lines until the input ends, ctx is cancelled or :quit, and
// posts the resulting inputs to p.  The end of input posts Quit.
//
// Lines are read on the calling goroutine so that password prompts,
// which read the same terminal, never race with the line reader.
func (c *Console) Run(ctx context.Context, p Poster) error {
	c.printf("termphyrio – type :help for commands\n")

	sc := bufio.NewScanner(c.in)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		quit, err := c.handleLine(ctx, p, strings.TrimRight(sc.Text(), "\r"))
		if err != nil {
			if errors.Is(err, core.ErrStopped) || errors.Is(err, context.Canceled) {
				return nil
			}
			c.printf("! %v\n", err)
		}
		if quit {
			return nil
		}
	}
	if err := p.Post(ctx, core.Quit{}); err != nil && !errors.Is(err, core.ErrStopped) {
		c.logger.Debug("posting quit: %v", err)
	}
	return sc.Err()
}

// handleLine parses and posts one line.  quit reports a :quit.
func (c *Console) handleLine(ctx context.Context, p Poster, line string) (quit bool, err error) {
	cmd, err := parseLine(line, c.defaults)
	if err != nil {
		return false, err
	}
	if cmd.help {
		c.printf("%s", helpText)
		return false, nil
	}

	in := cmd.input
	if cmd.useLast {
		in = core.Submit{Target: core.Active, Line: c.takeStaged()}
	} else if _, ok := in.(core.Submit); ok {
		c.takeStaged()
	}

	if cmd.askPassword || cmd.askPassphrase {
		if in, err = c.askSecrets(cmd, in); err != nil {
			return false, err
		}
	}

	if err := p.Post(ctx, in); err != nil {
		return false, err
	}
	_, quit = in.(core.Quit)
	return quit, nil
}

func (c *Console) askSecrets(cmd command, in core.Input) (core.Input, error) {
	switch v := in.(type) {
	case core.Connect:
		err := c.fillSecrets(cmd, &v.Credential, v.Endpoint.String())
		return v, err
	case core.ConnectRecord:
		err := c.fillSecrets(cmd, &v.Credential, fmt.Sprintf("record #%d", v.Index))
		return v, err
	}
	return in, nil
}

func (c *Console) fillSecrets(cmd command, cred *transport.Credential, label string) error {
	if cmd.askPassphrase {
		pass, err := c.secret(fmt.Sprintf("Passphrase for %s: ", cred.KeyPath))
		if err != nil {
			return err
		}
		cred.Passphrase = pass
	}
	if cmd.askPassword {
		pass, err := c.secret(fmt.Sprintf("Password for %s: ", label))
		if err != nil {
			return err
		}
		cred.Password = pass
	}
	return nil
}

func (c *Console) takeStaged() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.staged
	c.staged = ""
	return s
}

func (c *Console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

const helpText = `Commands:
  :open [-p] [-A] [-i key] [user@]host[:port]   open a session (-p asks for a password)
  :open [-p] #N                                 open saved connection N (see :records)
  :close [N]                                    close the active or N-th session
  :N, :switch N                                 make session N active
  :list                                         list sessions
  :records                                      list saved connections
  :history [N]                                  show command history
  :prev, :next                                  recall history; an empty line sends it
  :stats                                        show counters
  :resize COLS ROWS                             change the remote terminal size
  :quit                                         close everything and exit
  ::text                                        send a line starting with ':'
Anything else is sent to the active session.
`
