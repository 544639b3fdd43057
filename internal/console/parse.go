package console

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"termphyrio/config"
	"termphyrio/internal/core"
	"termphyrio/internal/transport"
)

// command is a parsed input line.
type command struct {
	input core.Input

	// For Connect / ConnectRecord: what to ask for before posting.
	askPassword   bool
	askPassphrase bool

	help    bool
	useLast bool // empty line: submit the recalled line, if any
}

// Defaults fills in what :open leaves unsaid.
type Defaults struct {
	User     string
	KeyPath  string
	UseAgent bool
}

// parseLine turns one line of input into a command.
func parseLine(line string, def Defaults) (command, error) {
	switch {
	case line == "":
		return command{useLast: true}, nil
	case strings.HasPrefix(line, "::"):
		return command{input: core.Submit{Target: core.Active, Line: line[1:]}}, nil
	case !strings.HasPrefix(line, ":"):
		return command{input: core.Submit{Target: core.Active, Line: line}}, nil
	}

	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return command{}, fmt.Errorf("empty command – try :help")
	}
	name, args := fields[0], fields[1:]

	if n, err := strconv.Atoi(name); err == nil {
		return selectCmd(n, args)
	}

	switch name {
	case "open", "o":
		return parseOpen(args, def)
	case "close", "c":
		t, err := optionalIndex(args)
		if err != nil {
			return command{}, err
		}
		return command{input: core.Close{Target: t}}, nil
	case "switch", "s":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: :switch N")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return command{}, fmt.Errorf("session number %q: %w", args[0], err)
		}
		return selectCmd(n, nil)
	case "list", "ls":
		return noArgs(args, core.ListSessions{})
	case "records":
		return noArgs(args, core.ListRecords{})
	case "history":
		t, err := optionalIndex(args)
		if err != nil {
			return command{}, err
		}
		return command{input: core.ShowHistory{Target: t}}, nil
	case "prev", "up":
		return noArgs(args, core.Navigate{Target: core.Active, Dir: core.Previous})
	case "next", "down":
		return noArgs(args, core.Navigate{Target: core.Active, Dir: core.Next})
	case "stats":
		return noArgs(args, core.Stats{})
	case "resize":
		if len(args) != 2 {
			return command{}, fmt.Errorf("usage: :resize COLS ROWS")
		}
		cols, err1 := strconv.Atoi(args[0])
		rows, err2 := strconv.Atoi(args[1])
		if err1 != nil || err2 != nil || cols <= 0 || rows <= 0 {
			return command{}, fmt.Errorf("invalid size %s %s", args[0], args[1])
		}
		return command{input: core.Resize{Cols: cols, Rows: rows}}, nil
	case "help", "h", "?":
		return command{help: true}, nil
	case "quit", "q", "exit":
		return noArgs(args, core.Quit{})
	}
	return command{}, fmt.Errorf("unknown command :%s – try :help", name)
}

func selectCmd(n int, args []string) (command, error) {
	if len(args) != 0 {
		return command{}, fmt.Errorf("usage: :N")
	}
	if n < 1 {
		return command{}, fmt.Errorf("session numbers start at 1")
	}
	return command{input: core.Select{Target: core.Target{Index: n}}}, nil
}

func noArgs(args []string, in core.Input) (command, error) {
	if len(args) != 0 {
		return command{}, fmt.Errorf("unexpected arguments %q", strings.Join(args, " "))
	}
	return command{input: in}, nil
}

func optionalIndex(args []string) (core.Target, error) {
	switch len(args) {
	case 0:
		return core.Active, nil
	case 1:
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return core.Target{}, fmt.Errorf("invalid session number %q", args[0])
		}
		return core.Target{Index: n}, nil
	}
	return core.Target{}, fmt.Errorf("expected at most one session number")
}

// parseOpen handles ":open [-p] [-A] [-i key] [user@]host[:port]" and
// ":open [-p] #N".
func parseOpen(args []string, def Defaults) (command, error) {
	fs := flag.NewFlagSet("open", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	password := fs.BoolP("password", "p", false, "prompt for a password")
	keyPath := fs.StringP("identity", "i", def.KeyPath, "private key file")
	agent := fs.BoolP("agent", "A", def.UseAgent, "use ssh-agent")
	if err := fs.Parse(args); err != nil {
		return command{}, fmt.Errorf("open: %w", err)
	}
	if fs.NArg() != 1 {
		return command{}, fmt.Errorf("usage: :open [-p] [-A] [-i key] [user@]host[:port] | #N")
	}

	cred := transport.Credential{KeyPath: *keyPath, UseAgent: *agent}
	cmd := command{
		askPassword:   *password,
		askPassphrase: cred.KeyPath != "" && transport.KeyNeedsPassphrase(cred.KeyPath),
	}

	target := fs.Arg(0)
	if strings.HasPrefix(target, "#") {
		n, err := strconv.Atoi(target[1:])
		if err != nil || n < 1 {
			return command{}, fmt.Errorf("invalid record number %q", target)
		}
		cmd.input = core.ConnectRecord{Index: n, Credential: cred}
		return cmd, nil
	}

	ep, err := config.ParseEndpoint(target)
	if err != nil {
		return command{}, err
	}
	if ep.User == "" {
		ep.User = def.User
	}
	if ep.User == "" {
		return command{}, fmt.Errorf("no user given for %s and no default user configured", ep.Host)
	}
	cmd.input = core.Connect{Endpoint: ep, Credential: cred}
	return cmd, nil
}
