// Package credentials loads the agent's secrets: the SSH deploy key used to
// clone the task repository and the client secret for group lookups.
//
// Secrets live in a TOML file outside the main configuration:
//
//	[repository]
//	ssh_private_key_file = "/etc/repotaskrun/deploy_key"
//	ssh_passphrase = ""
//
//	[membership]
//	client_secret = "..."
//
// Each value falls back to an environment variable when the file does not
// set it.
package credentials

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Environment variables consulted when the file leaves a value unset.
const (
	EnvPrivateKey   = "REPOTASKRUN_SSH_PRIVATE_KEY"
	EnvPassphrase   = "REPOTASKRUN_SSH_PASSPHRASE"
	EnvClientSecret = "REPOTASKRUN_MEMBERSHIP_CLIENT_SECRET"
)

// ErrInsecurePermissions is returned when the credentials file is readable
// by group or others.
var ErrInsecurePermissions = errors.New("credentials file has insecure permissions")

// Credentials holds the resolved secrets.
type Credentials struct {
	// PrivateKey is the PEM encoded SSH key, empty for anonymous transports.
	PrivateKey   []byte
	Passphrase   string
	ClientSecret string
}

type rawCredentials struct {
	Repository struct {
		PrivateKey     string `toml:"ssh_private_key"`
		PrivateKeyFile string `toml:"ssh_private_key_file"`
		Passphrase     string `toml:"ssh_passphrase"`
	} `toml:"repository"`
	Membership struct {
		ClientSecret string `toml:"client_secret"`
	} `toml:"membership"`
}

// Load reads path, when non-empty, and fills the gaps from the environment.
// A missing file is not an error; the environment alone may be enough.
func Load(path string) (*Credentials, error) {
	var raw rawCredentials
	if path != "" {
		if err := decodeFile(path, &raw); err != nil {
			return nil, err
		}
	}

	creds := &Credentials{
		Passphrase:   raw.Repository.Passphrase,
		ClientSecret: raw.Membership.ClientSecret,
	}

	switch {
	case raw.Repository.PrivateKey != "":
		creds.PrivateKey = []byte(raw.Repository.PrivateKey)
	case raw.Repository.PrivateKeyFile != "":
		keyPath := raw.Repository.PrivateKeyFile
		if !filepath.IsAbs(keyPath) {
			keyPath = filepath.Join(filepath.Dir(path), keyPath)
		}
		if err := checkPermissions(keyPath); err != nil {
			return nil, err
		}
		key, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		creds.PrivateKey = key
	default:
		if v := os.Getenv(EnvPrivateKey); v != "" {
			creds.PrivateKey = []byte(v)
		}
	}
	if creds.Passphrase == "" {
		creds.Passphrase = os.Getenv(EnvPassphrase)
	}
	if creds.ClientSecret == "" {
		creds.ClientSecret = os.Getenv(EnvClientSecret)
	}
	return creds, nil
}

func decodeFile(path string, raw *rawCredentials) error {
	err := checkPermissions(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	md, err := toml.DecodeFile(path, raw)
	if err != nil {
		return fmt.Errorf("failed to parse credentials file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("credentials file %s: unknown key %q", path, undecoded[0].String())
	}
	return nil
}

// checkPermissions rejects secrets readable by group or others. Windows
// relies on ACLs and is not checked.
func checkPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if runtime.GOOS == "windows" {
		return nil
	}
	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		return fmt.Errorf("%w: %s has mode %04o (must not be accessible by group or others)",
			ErrInsecurePermissions, path, mode)
	}
	return nil
}
