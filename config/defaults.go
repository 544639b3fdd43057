package config

import (
	"os"
	"os/user"
	"path/filepath"

	"termphyrio/internal/history"
	"termphyrio/internal/records"
	"termphyrio/internal/session"
	"termphyrio/internal/transport"
)

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = transport.DefaultPort

	// DefaultHostKeyPolicy verifies against known_hosts only.
	DefaultHostKeyPolicy = "strict"

	// DefaultConnTimeout bounds the TCP dial plus SSH handshake.
	DefaultConnTimeout = transport.DefaultConnTimeout

	// DefaultKeepAlive is the SSH keepalive interval.
	DefaultKeepAlive = transport.DefaultKeepAliveInterval

	// DefaultTerm is the TERM requested for remote shells.
	DefaultTerm = transport.DefaultTerm

	// DefaultHistorySize is the per-session command history capacity.
	DefaultHistorySize = history.DefaultCapacity

	// DefaultScrollbackSize is the per-session display buffer (256 KiB).
	DefaultScrollbackSize = 256 * 1024

	// DefaultSendQueue is the per-session queue of pending input lines.
	DefaultSendQueue = session.DefaultQueueSize

	// DefaultVerbosity prints warnings and errors.
	DefaultVerbosity = 1

	// ConfigFileName is the YAML file looked up in the config directory.
	ConfigFileName = "config.yaml"

	// EnvPrefix prefixes every environment variable.
	EnvPrefix = "TERMPHYRIO"
)

// Defaults returns a Config with every default applied.
func Defaults() *Config {
	cfg := &Config{
		HostKeyPolicy:  DefaultHostKeyPolicy,
		ConnTimeout:    DefaultConnTimeout,
		KeepAlive:      DefaultKeepAlive,
		Term:           DefaultTerm,
		HistorySize:    DefaultHistorySize,
		ScrollbackSize: DefaultScrollbackSize,
		SendQueue:      DefaultSendQueue,
		Verbose:        DefaultVerbosity,
	}
	if u, err := user.Current(); err == nil {
		cfg.User = u.Username
	}
	if p, err := records.DefaultPath(); err == nil {
		cfg.RecordsFile = p
	}
	return cfg
}

// DefaultFilePath returns <user config dir>/termphyrio/config.yaml.
func DefaultFilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "termphyrio", ConfigFileName), nil
}
