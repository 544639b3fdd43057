package transport

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	tperr "termphyrio/internal/errors"
	"termphyrio/util"
)

const testPassword = "hunter2"

// testSSHServer starts an in-process SSH server with password auth.  On
// shell start it writes "PTY:<term>" and then echoes stdin back with an
// "echo:" prefix; window changes are reported as "resize:CxR".
func testSSHServer(t *testing.T) (addr string) {
	t.Helper()
	return startTestSSHServer(t, false)
}

// startTestSSHServer is testSSHServer; with silent set the server reads
// global requests but never answers them.
func startTestSSHServer(t *testing.T, silent bool) (addr string) {
	t.Helper()

	_, hostKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	hostSigner, err := ssh.NewSignerFromKey(hostKey)
	if err != nil {
		t.Fatalf("host signer: %v", err)
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(conn ssh.ConnMetadata, pw []byte) (*ssh.Permissions, error) {
			if conn.User() == "alice" && string(pw) == testPassword {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("password rejected for %q", conn.User())
		},
	}
	config.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			netConn, err := listener.Accept()
			if err != nil {
				return
			}
			go handleTestConnection(netConn, config, silent)
		}
	}()
	t.Cleanup(func() {
		listener.Close()
		<-done
	})
	return listener.Addr().String()
}

func handleTestConnection(netConn net.Conn, config *ssh.ServerConfig, silent bool) {
	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, config)
	if err != nil {
		netConn.Close()
		return
	}
	defer sshConn.Close()

	if silent {
		go func() {
			for range reqs {
				// never replied to
			}
		}()
	} else {
		go ssh.DiscardRequests(reqs)
	}

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unknown channel type") //nolint:errcheck
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go handleTestSession(ch, requests)
	}
}

func handleTestSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	defer ch.Close()

	term := ""
	for req := range requests {
		switch req.Type {
		case "pty-req":
			if len(req.Payload) >= 4 {
				n := binary.BigEndian.Uint32(req.Payload[:4])
				if int(n) <= len(req.Payload)-4 {
					term = string(req.Payload[4 : 4+n])
				}
			}
			req.Reply(true, nil) //nolint:errcheck

		case "window-change":
			if len(req.Payload) >= 8 {
				cols := binary.BigEndian.Uint32(req.Payload[0:4])
				rows := binary.BigEndian.Uint32(req.Payload[4:8])
				fmt.Fprintf(ch, "resize:%dx%d\n", cols, rows)
			}
			if req.WantReply {
				req.Reply(true, nil) //nolint:errcheck
			}

		case "shell":
			req.Reply(true, nil) //nolint:errcheck
			fmt.Fprintf(ch, "PTY:%s\n", term)
			go func() {
				buf := make([]byte, 4096)
				for {
					n, err := ch.Read(buf)
					if n > 0 {
						ch.Write([]byte("echo:")) //nolint:errcheck
						ch.Write(buf[:n])         //nolint:errcheck
					}
					if err != nil {
						return
					}
				}
			}()

		default:
			if req.WantReply {
				req.Reply(false, nil) //nolint:errcheck
			}
		}
	}
}

func splitAddr(t *testing.T, addr string) Endpoint {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	var port int
	fmt.Sscanf(portStr, "%d", &port) //nolint:errcheck
	return Endpoint{Host: host, Port: port, User: "alice"}
}

func newTestConnector(policy HostKeyPolicy, knownHosts string) *SSHConnector {
	return NewSSHConnector(SSHOptions{
		HostKeyPolicy: policy,
		KnownHosts:    knownHosts,
		ConnTimeout:   5 * time.Second,
	}, util.NewLogger(0))
}

// readUntil reads from ch until the output contains target.
func readUntil(t *testing.T, ch Channel, target string) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var acc string
	buf := make([]byte, 4096)
	for time.Now().Before(deadline) {
		n, err := ch.Receive(buf)
		acc += string(buf[:n])
		if strings.Contains(acc, target) {
			return acc
		}
		if err != nil {
			t.Fatalf("read error waiting for %q: %v, got %q", target, err, acc)
		}
	}
	t.Fatalf("timeout waiting for %q, got %q", target, acc)
	return ""
}

func TestSSHConnector_ShellRoundTrip(t *testing.T) {
	ep := splitAddr(t, testSSHServer(t))
	c := newTestConnector(HostKeyInsecure, "")

	tr, err := c.Connect(context.Background(), ep, Credential{Password: testPassword})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.Close()
	if !tr.IsAlive() {
		t.Fatal("transport should be alive")
	}

	ch, err := tr.OpenShell(context.Background(), PTYRequest{})
	if err != nil {
		t.Fatalf("open shell: %v", err)
	}
	readUntil(t, ch, "PTY:"+DefaultTerm)

	if err := ch.Send([]byte("ls\n")); err != nil {
		t.Fatalf("send: %v", err)
	}
	readUntil(t, ch, "echo:ls")

	if err := ch.Resize(120, 40); err != nil {
		t.Fatalf("resize: %v", err)
	}
	readUntil(t, ch, "resize:120x40")

	if err := ch.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if err := ch.Send([]byte("x")); !errors.Is(err, tperr.ErrChannelClosed) {
		t.Errorf("send after close = %v, want ErrChannelClosed", err)
	}
}

func TestSSHConnector_CloseTransport(t *testing.T) {
	ep := splitAddr(t, testSSHServer(t))
	tr, err := newTestConnector(HostKeyInsecure, "").Connect(context.Background(), ep, Credential{Password: testPassword})
	if err != nil {
		t.Fatal(err)
	}
	ch, err := tr.OpenShell(context.Background(), PTYRequest{Term: "vt100", Cols: 80, Rows: 24})
	if err != nil {
		t.Fatal(err)
	}
	readUntil(t, ch, "PTY:vt100")

	if err := tr.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if tr.IsAlive() {
		t.Error("closed transport reports alive")
	}

	buf := make([]byte, 64)
	for {
		_, err := ch.Receive(buf)
		if err == nil {
			continue
		}
		if err != io.EOF {
			t.Errorf("receive after close = %v, want io.EOF", err)
		}
		break
	}
}

func TestSSHConnector_WrongPassword(t *testing.T) {
	ep := splitAddr(t, testSSHServer(t))
	_, err := newTestConnector(HostKeyInsecure, "").Connect(context.Background(), ep, Credential{Password: "nope"})
	if !errors.Is(err, tperr.ErrAuthFailed) {
		t.Fatalf("err = %v, want ErrAuthFailed", err)
	}
	if tperr.Classify(err) != tperr.KindAuth {
		t.Errorf("classified as %v", tperr.Classify(err))
	}
}

func TestSSHConnector_HostKeyPolicies(t *testing.T) {
	ep := splitAddr(t, testSSHServer(t))
	kh := filepath.Join(t.TempDir(), "known_hosts")
	cred := Credential{Password: testPassword}

	_, err := newTestConnector(HostKeyStrict, kh).Connect(context.Background(), ep, cred)
	if !errors.Is(err, tperr.ErrUnknownHost) {
		t.Fatalf("strict on unknown host: err = %v, want ErrUnknownHost", err)
	}

	tr, err := newTestConnector(HostKeyAcceptNew, kh).Connect(context.Background(), ep, cred)
	if err != nil {
		t.Fatalf("accept-new: %v", err)
	}
	tr.Close()

	tr, err = newTestConnector(HostKeyStrict, kh).Connect(context.Background(), ep, cred)
	if err != nil {
		t.Fatalf("strict after accept-new: %v", err)
	}
	tr.Close()
}

func TestSSHConnector_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = newTestConnector(HostKeyInsecure, "").Connect(context.Background(), splitAddr(t, addr), Credential{Password: "x"})
	var netErr *tperr.NetworkError
	if !errors.As(err, &netErr) || netErr.Op != "dial" {
		t.Fatalf("err = %v, want dial NetworkError", err)
	}
}

func TestSSHConnector_HandshakeCancelled(t *testing.T) {
	// A server that accepts but never speaks SSH.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(io.Discard, conn) //nolint:errcheck
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = newTestConnector(HostKeyInsecure, "").Connect(ctx, splitAddr(t, ln.Addr().String()), Credential{Password: "x"})
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if time.Since(start) > 3*time.Second {
		t.Errorf("cancel took %v", time.Since(start))
	}
	if tperr.Classify(err) != tperr.KindNetwork {
		t.Errorf("classified as %v: %v", tperr.Classify(err), err)
	}
}

func TestSSHTransport_KeepaliveTimeoutCloses(t *testing.T) {
	ep := splitAddr(t, startTestSSHServer(t, true))
	conn := NewSSHConnector(SSHOptions{
		HostKeyPolicy:     HostKeyInsecure,
		ConnTimeout:       5 * time.Second,
		KeepAliveInterval: 50 * time.Millisecond,
	}, util.NewLogger(0))

	tr, err := conn.Connect(context.Background(), ep, Credential{Password: testPassword})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	deadline := time.Now().Add(5 * time.Second)
	for tr.IsAlive() {
		if time.Now().After(deadline) {
			t.Fatal("transport still alive although keepalives go unanswered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSSHTransport_KeepaliveAnswered(t *testing.T) {
	ep := splitAddr(t, testSSHServer(t))
	conn := NewSSHConnector(SSHOptions{
		HostKeyPolicy:     HostKeyInsecure,
		ConnTimeout:       5 * time.Second,
		KeepAliveInterval: 20 * time.Millisecond,
	}, util.NewLogger(0))

	tr, err := conn.Connect(context.Background(), ep, Credential{Password: testPassword})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	time.Sleep(200 * time.Millisecond)
	if !tr.IsAlive() {
		t.Error("transport closed although the server answers keepalives")
	}
}
