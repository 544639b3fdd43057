// Package cmd wires up the CLI flags and starts the session coordinator.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"termphyrio/config"
	"termphyrio/internal/console"
	"termphyrio/internal/core"
	"termphyrio/internal/transport"
	"termphyrio/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X termphyrio/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// options are flags that are not part of config.Config.
type options struct {
	configPath  string
	showVersion bool
	showHelp    bool
	dryRun      bool
	verbose     int // -v count, added to the configured level
}

// Execute parses args and runs an interactive session on the process's
// standard streams.
func Execute(ctx context.Context, args []string) error {
	return execute(ctx, args, os.Stdin, os.Stdout)
}

func execute(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	// First pass: syntax, --help, --version and --config.  The flags
	// are parsed again below on top of the file and environment.
	var opts options
	fs := newFlagSet(config.Defaults(), &opts)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if opts.showHelp {
		printUsage(fs)
		return nil
	}
	if opts.showVersion {
		fmt.Fprintf(out, "termphyrio %s\n", version)
		return nil
	}

	cfg, err := loadConfig(opts.configPath, args)
	if err != nil {
		return err
	}
	if cfg.Cols == 0 && cfg.Rows == 0 {
		cfg.Cols, cfg.Rows = terminalSize(out)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	startup, err := startupConnects(cfg)
	if err != nil {
		return err
	}

	if opts.dryRun {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)

	con := console.New(in, out, console.Defaults{
		User:     cfg.User,
		KeyPath:  cfg.KeyPath,
		UseAgent: cfg.UseAgent,
	}, nil, logger.Named("console"))
	app := core.Build(cfg, con, logger)

	// The console blocks on its input, so it runs beside the loop;
	// the loop ends on :quit, end of input or ctx.
	go func() {
		for _, c := range startup {
			if err := app.Post(ctx, c); err != nil {
				return
			}
		}
		if err := con.Run(ctx, app); err != nil {
			logger.Error("reading input: %v", err)
		}
	}()
	return app.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

func newFlagSet(cfg *config.Config, opts *options) *flag.FlagSet {
	fs := flag.NewFlagSet("termphyrio", flag.ContinueOnError)

	// ── connection ───────────────────────────────────────────────
	fs.StringVarP(&cfg.User, "user", "l", cfg.User, "Default login user")
	fs.StringVarP(&cfg.KeyPath, "identity", "i", cfg.KeyPath, "Private key file")
	fs.BoolVarP(&cfg.UseAgent, "agent", "A", cfg.UseAgent, "Authenticate with the SSH agent")
	fs.StringVar(&cfg.HostKeyPolicy, "host-key-policy", cfg.HostKeyPolicy, "Host key policy: strict, accept-new or insecure")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")
	fs.DurationVar(&cfg.ConnTimeout, "connect-timeout", cfg.ConnTimeout, "Dial and handshake timeout")
	fs.DurationVar(&cfg.KeepAlive, "keepalive", cfg.KeepAlive, "Keepalive interval (0 disables)")

	// ── terminal ─────────────────────────────────────────────────
	fs.StringVar(&cfg.Term, "term", cfg.Term, "TERM requested for remote shells")
	fs.IntVar(&cfg.Cols, "cols", cfg.Cols, "Terminal columns (default: local terminal)")
	fs.IntVar(&cfg.Rows, "rows", cfg.Rows, "Terminal rows (default: local terminal)")

	// ── sessions ─────────────────────────────────────────────────
	fs.IntVar(&cfg.HistorySize, "history-size", cfg.HistorySize, "Command history entries per session")
	fs.IntVar(&cfg.ScrollbackSize, "scrollback-size", cfg.ScrollbackSize, "Output bytes kept per session")
	fs.IntVar(&cfg.SendQueue, "send-queue", cfg.SendQueue, "Pending input lines per session")
	fs.StringVar(&cfg.RecordsFile, "records-file", cfg.RecordsFile, "Saved connections file")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&opts.verbose, "verbose", "v", "Increase verbosity (repeatable)")

	fs.StringVar(&opts.configPath, "config", "", "Config file (default: user config dir)")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Print the effective configuration and exit")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&opts.showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }
	return fs
}

// loadConfig applies defaults, the config file, the environment and
// finally the command line, in that order.  A missing file is only an
// error when it was named with --config.
func loadConfig(path string, args []string) (*config.Config, error) {
	cfg := config.Defaults()

	explicit := path != ""
	if !explicit {
		path, _ = config.DefaultFilePath()
	}
	if path != "" {
		err := config.LoadFile(cfg, path)
		if err != nil && (explicit || !errors.Is(err, os.ErrNotExist)) {
			return nil, err
		}
	}
	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, err
	}

	var opts options
	fs := newFlagSet(cfg, &opts)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Verbose += opts.verbose
	if open := fs.Args(); len(open) > 0 {
		cfg.Open = open
	}
	return cfg, nil
}

// startupConnects turns the positional endpoints into Connect inputs.
func startupConnects(cfg *config.Config) ([]core.Input, error) {
	var inputs []core.Input
	for _, spec := range cfg.Open {
		ep, err := config.ParseEndpoint(spec)
		if err != nil {
			return nil, err
		}
		if ep.User == "" {
			ep.User = cfg.User
		}
		if ep.User == "" {
			return nil, fmt.Errorf("%s: no user given and no default user (use --user)", spec)
		}
		inputs = append(inputs, core.Connect{
			Endpoint:   ep,
			Credential: transport.Credential{KeyPath: cfg.KeyPath, UseAgent: cfg.UseAgent},
		})
	}
	return inputs, nil
}

// terminalSize returns the size of out when it is a terminal, or 0x0.
func terminalSize(out io.Writer) (cols, rows int) {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0, 0
	}
	cols, rows, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0, 0
	}
	return cols, rows
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `termphyrio – SSH multi-session terminal v%s

Several interactive shells over SSH, one of them active at a time.

Usage:
  termphyrio [options] [[user@]host[:port] ...]

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Settings are read from %s/termphyrio/%s and from
%s_* environment variables (e.g. %s_KNOWN_HOSTS_PATH); flags win.

Examples:
  termphyrio                                   Start with no sessions
  termphyrio admin@bastion db@10.0.0.5:2222    Open two sessions
  termphyrio -A --host-key-policy accept-new host
  termphyrio --dry-run                         Show the effective settings

Type :help inside termphyrio for its commands.
`, "<user config dir>", config.ConfigFileName, config.EnvPrefix, config.EnvPrefix)
}
