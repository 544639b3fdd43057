package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadFile(t *testing.T) {
	p := writeConfig(t, `
user: deploy
host_key_policy: accept-new
connect_timeout: 5s
keepalive: 0s
cols: 132
rows: 43
history_size: 50
open:
  - web1
  - deploy@db:2222
`)
	cfg := Defaults()
	if err := LoadFile(cfg, p); err != nil {
		t.Fatal(err)
	}
	if cfg.User != "deploy" || cfg.HostKeyPolicy != "accept-new" {
		t.Errorf("user=%q policy=%q", cfg.User, cfg.HostKeyPolicy)
	}
	if cfg.ConnTimeout != 5*time.Second || cfg.KeepAlive != 0 {
		t.Errorf("timeout=%v keepalive=%v", cfg.ConnTimeout, cfg.KeepAlive)
	}
	if cfg.Cols != 132 || cfg.Rows != 43 || cfg.HistorySize != 50 {
		t.Errorf("cols=%d rows=%d history=%d", cfg.Cols, cfg.Rows, cfg.HistorySize)
	}
	if len(cfg.Open) != 2 || cfg.Open[1] != "deploy@db:2222" {
		t.Errorf("open = %v", cfg.Open)
	}
	// Untouched keys keep their defaults.
	if cfg.Term != DefaultTerm || cfg.SendQueue != DefaultSendQueue {
		t.Errorf("defaults lost: term=%q queue=%d", cfg.Term, cfg.SendQueue)
	}
}

func TestLoadFile_Empty(t *testing.T) {
	cfg := Defaults()
	if err := LoadFile(cfg, writeConfig(t, "")); err != nil {
		t.Fatalf("empty file: %v", err)
	}
	if cfg.HostKeyPolicy != DefaultHostKeyPolicy {
		t.Error("empty file changed config")
	}
}

func TestLoadFile_UnknownKey(t *testing.T) {
	err := LoadFile(Defaults(), writeConfig(t, "hostkey_policy: strict\n"))
	if err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	err := LoadFile(Defaults(), filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want ErrNotExist", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TERMPHYRIO_USER", "ops")
	t.Setenv("TERMPHYRIO_HOST_KEY_POLICY", "insecure")
	t.Setenv("TERMPHYRIO_KNOWN_HOSTS_PATH", "/etc/ssh/ssh_known_hosts")
	t.Setenv("TERMPHYRIO_CONN_TIMEOUT", "3s")
	t.Setenv("TERMPHYRIO_USE_AGENT", "true")
	t.Setenv("TERMPHYRIO_VERBOSE", "3")

	cfg := Defaults()
	if err := LoadFromEnv(cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.User != "ops" || cfg.HostKeyPolicy != "insecure" {
		t.Errorf("user=%q policy=%q", cfg.User, cfg.HostKeyPolicy)
	}
	if cfg.KnownHostsPath != "/etc/ssh/ssh_known_hosts" {
		t.Errorf("known hosts = %q", cfg.KnownHostsPath)
	}
	if cfg.ConnTimeout != 3*time.Second || !cfg.UseAgent || cfg.Verbose != 3 {
		t.Errorf("timeout=%v agent=%v verbose=%d", cfg.ConnTimeout, cfg.UseAgent, cfg.Verbose)
	}
	// Unset variables leave values alone.
	if cfg.Term != DefaultTerm {
		t.Errorf("term = %q", cfg.Term)
	}
}

func TestLoadFromEnv_BadValue(t *testing.T) {
	t.Setenv("TERMPHYRIO_HISTORY_SIZE", "lots")
	if err := LoadFromEnv(Defaults()); err == nil {
		t.Fatal("expected error for non-numeric history size")
	}
}

// TestPrecedence checks defaults < file < env.
func TestPrecedence(t *testing.T) {
	p := writeConfig(t, "term: vt100\nhistory_size: 10\n")
	t.Setenv("TERMPHYRIO_HISTORY_SIZE", "20")

	cfg := Defaults()
	if err := LoadFile(cfg, p); err != nil {
		t.Fatal(err)
	}
	if err := LoadFromEnv(cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Term != "vt100" {
		t.Errorf("file should beat defaults: term = %q", cfg.Term)
	}
	if cfg.HistorySize != 20 {
		t.Errorf("env should beat file: history = %d", cfg.HistorySize)
	}
}
