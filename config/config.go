// Package config defines the runtime configuration for termphyrio and
// provides the parser for [user@]host[:port] endpoints.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tperr "termphyrio/internal/errors"
	"termphyrio/internal/transport"
)

// Config holds every tuneable of a termphyrio process.  Field tags name
// the YAML key; the environment variable is TERMPHYRIO_ plus the field
// name in upper snake case (KnownHostsPath → TERMPHYRIO_KNOWN_HOSTS_PATH).
type Config struct {
	// ── Connection ───────────────────────────────────────────────────
	User           string        `yaml:"user" split_words:"true"`
	KeyPath        string        `yaml:"identity" split_words:"true"`
	UseAgent       bool          `yaml:"use_agent" split_words:"true"`
	HostKeyPolicy  string        `yaml:"host_key_policy" split_words:"true"`
	KnownHostsPath string        `yaml:"known_hosts" split_words:"true"`
	ConnTimeout    time.Duration `yaml:"connect_timeout" split_words:"true"`
	KeepAlive      time.Duration `yaml:"keepalive" split_words:"true"`

	// ── Terminal ─────────────────────────────────────────────────────
	Term string `yaml:"term" split_words:"true"`
	Cols int    `yaml:"cols" split_words:"true"`
	Rows int    `yaml:"rows" split_words:"true"`

	// ── Sessions ─────────────────────────────────────────────────────
	HistorySize    int    `yaml:"history_size" split_words:"true"`
	ScrollbackSize int    `yaml:"scrollback_size" split_words:"true"`
	SendQueue      int    `yaml:"send_queue" split_words:"true"`
	RecordsFile    string `yaml:"records_file" split_words:"true"`

	// ── Output ───────────────────────────────────────────────────────
	Verbose int `yaml:"verbose" split_words:"true"`

	// Open lists endpoints to connect to at startup (positional args).
	Open []string `yaml:"open" ignored:"true"`
}

// Policy returns the parsed host key policy.  Call Validate first.
func (c *Config) Policy() transport.HostKeyPolicy {
	p, _ := transport.ParseHostKeyPolicy(c.HostKeyPolicy)
	return p
}

// PTY returns the terminal request for new shells.
func (c *Config) PTY() transport.PTYRequest {
	return transport.PTYRequest{Term: c.Term, Cols: c.Cols, Rows: c.Rows}
}

// ── Endpoint parser ──────────────────────────────────────────────────

// ParseEndpoint extracts user, host and port from a string such as
// "admin@bastion.example.com:2222" or "root@[fe80::1]:22".  A missing
// user is left empty; a missing port is 22.
func ParseEndpoint(spec string) (transport.Endpoint, error) {
	ep := transport.Endpoint{Port: DefaultSSHPort}
	rest := strings.TrimSpace(spec)

	if i := strings.LastIndex(rest, "@"); i >= 0 {
		ep.User = rest[:i]
		rest = rest[i+1:]
		if ep.User == "" {
			return ep, fmt.Errorf("invalid endpoint %q – empty user before @", spec)
		}
	}

	var portStr string
	switch {
	case strings.HasPrefix(rest, "["):
		end := strings.Index(rest, "]")
		if end < 0 {
			return ep, fmt.Errorf("invalid endpoint %q – missing ]", spec)
		}
		ep.Host = rest[1:end]
		tail := rest[end+1:]
		if tail != "" {
			if !strings.HasPrefix(tail, ":") {
				return ep, fmt.Errorf("invalid endpoint %q", spec)
			}
			portStr = tail[1:]
		}
	case strings.Count(rest, ":") == 1:
		i := strings.Index(rest, ":")
		ep.Host, portStr = rest[:i], rest[i+1:]
	default:
		// A bare IPv6 address has several colons and no port.
		ep.Host = rest
	}

	if ep.Host == "" {
		return ep, fmt.Errorf("invalid endpoint %q – expected [user@]host[:port]", spec)
	}
	if portStr != "" {
		port, err := ParsePort(portStr)
		if err != nil {
			return ep, err
		}
		ep.Port = port
	}
	return ep, nil
}

// ParsePort accepts a decimal port number in 1-65535.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is usable.  Errors are
// *errors.ConfigError with a hint where one helps.
func (c *Config) Validate() error {
	if _, err := transport.ParseHostKeyPolicy(c.HostKeyPolicy); err != nil {
		return &tperr.ConfigError{
			Field:   "host-key-policy",
			Value:   c.HostKeyPolicy,
			Message: "unknown policy",
			Hint:    "use strict, accept-new or insecure",
		}
	}
	if c.ConnTimeout <= 0 {
		return &tperr.ConfigError{
			Field:   "connect-timeout",
			Value:   c.ConnTimeout,
			Message: "must be positive",
		}
	}
	if c.KeepAlive < 0 {
		return &tperr.ConfigError{
			Field:   "keepalive",
			Value:   c.KeepAlive,
			Message: "must not be negative",
			Hint:    "use 0 to disable keepalives",
		}
	}
	if c.Cols < 0 || c.Rows < 0 || (c.Cols == 0) != (c.Rows == 0) {
		return &tperr.ConfigError{
			Field:   "size",
			Value:   fmt.Sprintf("%dx%d", c.Cols, c.Rows),
			Message: "columns and rows must both be set and positive",
			Hint:    "leave both at 0 to use the local terminal size",
		}
	}
	for _, f := range []struct {
		name string
		v    int
	}{
		{"history-size", c.HistorySize},
		{"scrollback-size", c.ScrollbackSize},
		{"send-queue", c.SendQueue},
	} {
		if f.v <= 0 {
			return &tperr.ConfigError{Field: f.name, Value: f.v, Message: "must be positive"}
		}
	}
	if c.RecordsFile == "" {
		return &tperr.ConfigError{
			Field:   "records-file",
			Message: "must not be empty",
		}
	}
	for _, spec := range c.Open {
		if _, err := ParseEndpoint(spec); err != nil {
			return &tperr.ConfigError{Field: "open", Value: spec, Message: err.Error()}
		}
	}
	return nil
}
