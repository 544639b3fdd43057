package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// AuthMethods is an ordered list of SSH authentication methods plus the
// resources (agent sockets) they hold until the handshake is over.
type AuthMethods struct {
	Methods []ssh.AuthMethod
	closers []io.Closer
}

// Close releases agent connections opened for the handshake.
func (a *AuthMethods) Close() {
	for _, c := range a.closers {
		c.Close() //nolint:errcheck
	}
	a.closers = nil
}

// BuildAuthMethods assembles the authentication methods for cred.
//
// x/crypto/ssh tries each method name once, so every key (explicit,
// agent or default) is offered through a single publickey method.
func BuildAuthMethods(cred Credential) (*AuthMethods, error) {
	am := &AuthMethods{}
	var keys publicKeys

	// 1. Explicit key file
	if cred.KeyPath != "" {
		signer, err := loadSigner(cred.KeyPath, cred.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", cred.KeyPath, err)
		}
		keys.signers = append(keys.signers, signer)
	}

	// 2. SSH agent (explicit)
	if cred.UseAgent {
		client, conn, err := agentClient()
		if err != nil {
			return nil, fmt.Errorf("ssh-agent: %w", err)
		}
		keys.agent = client
		am.closers = append(am.closers, conn)
	}

	// 3. Fallback: agent + common key files, only when nothing at all
	// was supplied.
	if cred.KeyPath == "" && !cred.UseAgent && cred.Password == "" {
		am.closers = append(am.closers, defaultKeys(&keys)...)
	}

	if !keys.empty() {
		am.Methods = append(am.Methods, ssh.PublicKeysCallback(keys.Signers))
	}

	// 4. Password, also offered through keyboard-interactive for
	// servers that only enable PAM challenges.
	if cred.Password != "" {
		am.Methods = append(am.Methods,
			ssh.Password(cred.Password),
			ssh.KeyboardInteractive(passwordChallenge(cred.Password)),
		)
	}

	if len(am.Methods) == 0 {
		am.Close()
		return nil, fmt.Errorf(
			"no SSH authentication methods available – " +
				"supply a password, a key, or run an ssh-agent")
	}
	return am, nil
}

// publicKeys combines key files with the agent's keys.
type publicKeys struct {
	signers []ssh.Signer
	agent   agent.ExtendedAgent
}

func (k *publicKeys) empty() bool { return len(k.signers) == 0 && k.agent == nil }

// Signers lists the key files first, then the agent's keys.  An agent
// that fails to answer contributes nothing.
func (k *publicKeys) Signers() ([]ssh.Signer, error) {
	out := append([]ssh.Signer(nil), k.signers...)
	if k.agent != nil {
		if fromAgent, err := k.agent.Signers(); err == nil {
			out = append(out, fromAgent...)
		}
	}
	return out, nil
}

// ── individual auth builders ─────────────────────────────────────────

func loadSigner(keyPath, passphrase string) (ssh.Signer, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if !errors.As(err, &missing) {
			return nil, fmt.Errorf("parsing key: %w", err)
		}
		if passphrase == "" {
			return nil, fmt.Errorf("key is encrypted and no passphrase was given")
		}
		signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("decrypting key: %w", err)
		}
	}
	return signer, nil
}

func agentClient() (agent.ExtendedAgent, net.Conn, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, nil, fmt.Errorf("SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to agent at %s: %w", sock, err)
	}
	return agent.NewClient(conn), conn, nil
}

// passwordChallenge answers every keyboard-interactive question with
// the password.  Servers send an empty question list to finish.
func passwordChallenge(password string) ssh.KeyboardInteractiveChallenge {
	return func(_, _ string, questions []string, _ []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range questions {
			answers[i] = password
		}
		return answers, nil
	}
}

// defaultKeys adds the agent and the three most common key files to
// keys.  Encrypted keys are skipped since there is no passphrase to
// open them with.  It returns the agent connection to close, if any.
func defaultKeys(keys *publicKeys) []io.Closer {
	var closers []io.Closer
	if client, conn, err := agentClient(); err == nil {
		keys.agent = client
		closers = append(closers, conn)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return closers
	}
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		p := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if signer, err := loadSigner(p, ""); err == nil {
			keys.signers = append(keys.signers, signer)
		}
	}
	return closers
}

// KeyNeedsPassphrase reports whether the private key at path is
// encrypted, so a caller can prompt before connecting.
func KeyNeedsPassphrase(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	_, err = ssh.ParsePrivateKey(data)
	var missing *ssh.PassphraseMissingError
	return errors.As(err, &missing)
}
