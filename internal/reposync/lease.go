package reposync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// lease is a private directory holding key material for one clone.
type lease struct {
	dir            string
	keyPath        string
	knownHostsPath string
}

// revoke deletes the key material.
func (l *lease) revoke() error {
	if l == nil {
		return nil
	}
	return os.RemoveAll(l.dir)
}

// keyMaterial is what a lease is provisioned from.
type keyMaterial struct {
	user       string
	privateKey []byte
	passphrase string
	// knownHosts is a single known_hosts line for the remote.
	knownHosts string
}

// provision writes the key and host trust into a new directory under workDir
// and returns go-git SSH auth that reads them.
func provision(workDir string, km keyMaterial) (*gitssh.PublicKeys, *lease, error) {
	if len(km.privateKey) == 0 {
		return nil, nil, errors.New("no ssh private key configured")
	}
	if err := checkPrivateKey(km.privateKey, km.passphrase); err != nil {
		return nil, nil, err
	}
	if _, _, _, _, _, err := ssh.ParseKnownHosts([]byte(km.knownHosts)); err != nil {
		return nil, nil, fmt.Errorf("invalid host key entry: %w", err)
	}

	dir, err := os.MkdirTemp(workDir, "repotaskrun-ssh-*")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	l := &lease{
		dir:            dir,
		keyPath:        filepath.Join(dir, "id"),
		knownHostsPath: filepath.Join(dir, "known_hosts"),
	}
	if err := os.WriteFile(l.keyPath, km.privateKey, 0o600); err != nil {
		_ = l.revoke()
		return nil, nil, fmt.Errorf("failed to write private key: %w", err)
	}
	if err := os.WriteFile(l.knownHostsPath, []byte(km.knownHosts+"\n"), 0o600); err != nil {
		_ = l.revoke()
		return nil, nil, fmt.Errorf("failed to write known_hosts: %w", err)
	}

	auth, err := gitssh.NewPublicKeysFromFile(km.user, l.keyPath, km.passphrase)
	if err != nil {
		_ = l.revoke()
		return nil, nil, fmt.Errorf("failed to load private key: %w", err)
	}
	callback, err := gitssh.NewKnownHostsCallback(l.knownHostsPath)
	if err != nil {
		_ = l.revoke()
		return nil, nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}
	auth.HostKeyCallback = callback
	return auth, l, nil
}

func checkPrivateKey(key []byte, passphrase string) error {
	var err error
	if passphrase != "" {
		_, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
	} else {
		_, err = ssh.ParsePrivateKey(key)
	}
	if err != nil {
		return fmt.Errorf("invalid ssh private key: %w", err)
	}
	return nil
}

// knownHostsLine turns a configured host key into a known_hosts line for
// address. hostKey may already be a known_hosts line, or a public key in
// authorized_keys format.
func knownHostsLine(address, hostKey string) (string, error) {
	if _, _, _, _, _, err := ssh.ParseKnownHosts([]byte(hostKey)); err == nil {
		return hostKey, nil
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(hostKey))
	if err != nil {
		return "", fmt.Errorf("invalid host key: %w", err)
	}
	return knownhosts.Line([]string{knownhosts.Normalize(address)}, pub), nil
}

var errKeyCaptured = errors.New("host key captured")

// scanHostKey performs the start of an SSH handshake with address and returns
// the host key the server presents.
func scanHostKey(ctx context.Context, dial DialFunc, address string, timeout time.Duration) (ssh.PublicKey, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dial(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	var captured ssh.PublicKey
	cfg := &ssh.ClientConfig{
		User: "keyscan",
		HostKeyCallback: func(_ string, _ net.Addr, key ssh.PublicKey) error {
			captured = key
			return errKeyCaptured
		},
		Timeout: timeout,
	}
	_, _, _, err = ssh.NewClientConn(conn, address, cfg)
	if captured != nil {
		return captured, nil
	}
	if err == nil {
		err = errors.New("server presented no host key")
	}
	return nil, err
}
