package reposync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/specialistvlad/repotaskrun/internal/ctxlog"
	"golang.org/x/crypto/ssh"
)

const defaultDialTimeout = 10 * time.Second

// Options configures a Synchronizer.
type Options struct {
	// URL of the remote repository: ssh://, scp-like user@host:path,
	// https://, or a local path.
	URL string
	// Branch to check out. Empty means the remote HEAD.
	Branch string
	// Address dialed before cloning, as host:port. Derived from URL when empty.
	Address string
	// SSHUser overrides the user from URL. Defaults to "git".
	SSHUser string
	// PrivateKey is the PEM-encoded SSH key, optionally protected by Passphrase.
	PrivateKey []byte
	Passphrase string
	// HostKey pins the remote host key, as a known_hosts line or an
	// authorized_keys public key. When empty the key presented on first
	// contact is trusted.
	HostKey string
	// Shallow clones only the tip commit.
	Shallow bool
	// WorkDir receives the temporary key directory. Defaults to os.TempDir().
	WorkDir string
	// DialTimeout bounds the reachability check and host key scan.
	DialTimeout time.Duration
}

// cloneFunc clones into dir and returns the checked-out revision.
type cloneFunc func(ctx context.Context, dir string, o *git.CloneOptions) (string, error)

// Synchronizer mirrors one remote repository.
type Synchronizer struct {
	opts   Options
	remote remote
	clone  cloneFunc
	dial   DialFunc
}

// New validates opts and returns a Synchronizer.
func New(opts Options) (*Synchronizer, error) {
	if opts.URL == "" {
		return nil, errors.New("repository url is required")
	}
	r, err := parseRemote(opts.URL)
	if err != nil {
		return nil, err
	}
	if opts.Address != "" {
		r.address = opts.Address
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.SSHUser == "" {
		opts.SSHUser = r.user
	}
	if opts.SSHUser == "" {
		opts.SSHUser = "git"
	}
	dialer := &net.Dialer{}
	return &Synchronizer{
		opts:   opts,
		remote: r,
		clone:  gitClone,
		dial:   dialer.DialContext,
	}, nil
}

// Sync replaces destination with a fresh checkout of the remote and returns
// the checked-out revision.
func (s *Synchronizer) Sync(ctx context.Context, destination string) (string, error) {
	logger := ctxlog.FromContext(ctx).With("component", "reposync", "url", s.opts.URL)

	if s.remote.address != "" {
		if err := checkReachable(ctx, s.dial, s.remote.address, s.opts.DialTimeout); err != nil {
			return "", newError(ErrNetwork, "dial "+s.remote.address, err)
		}
		logger.Debug("Remote host reachable.", "address", s.remote.address)
	}

	var auth transport.AuthMethod
	if s.remote.isSSH() {
		sshAuth, l, err := s.provisionAuth(ctx)
		if err != nil {
			return "", err
		}
		defer func() {
			if err := l.revoke(); err != nil {
				logger.Error("Failed to remove key material.", "dir", l.dir, "error", err)
				return
			}
			logger.Debug("Key material removed.")
		}()
		auth = sshAuth
	}

	parent := filepath.Dir(destination)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", newError(ErrRepository, "prepare", err)
	}
	staging, err := os.MkdirTemp(parent, "."+filepath.Base(destination)+".staging-*")
	if err != nil {
		return "", newError(ErrRepository, "prepare", err)
	}
	defer os.RemoveAll(staging)

	cloneOpts := &git.CloneOptions{
		URL:  s.opts.URL,
		Auth: auth,
		Tags: git.NoTags,
	}
	if s.opts.Branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(s.opts.Branch)
		cloneOpts.SingleBranch = true
	}
	if s.opts.Shallow {
		cloneOpts.Depth = 1
	}

	logger.Info("Cloning repository.", "branch", s.opts.Branch)
	revision, err := s.clone(ctx, staging, cloneOpts)
	if err != nil {
		return "", newError(classify(err), "clone", err)
	}
	if err := os.RemoveAll(filepath.Join(staging, git.GitDirName)); err != nil {
		return "", newError(ErrRepository, "strip metadata", err)
	}

	if err := os.RemoveAll(destination); err != nil {
		return "", newError(ErrRepository, "remove old checkout", err)
	}
	if err := os.Rename(staging, destination); err != nil {
		return "", newError(ErrRepository, "install checkout", err)
	}

	logger.Info("Repository synchronized.", "revision", revision)
	return revision, nil
}

// provisionAuth leases SSH credentials, scanning the host key when none is
// pinned.
func (s *Synchronizer) provisionAuth(ctx context.Context) (transport.AuthMethod, *lease, error) {
	logger := ctxlog.FromContext(ctx)

	hostKey := s.opts.HostKey
	if hostKey == "" {
		if s.remote.address == "" {
			return nil, nil, newError(ErrCredential, "host key", errors.New("no host key configured and no address to scan"))
		}
		key, err := scanHostKey(ctx, s.dial, s.remote.address, s.opts.DialTimeout)
		if err != nil {
			return nil, nil, newError(ErrNetwork, "scan host key", err)
		}
		logger.Warn("No host key pinned, trusting the key presented by the remote.",
			"address", s.remote.address, "fingerprint", ssh.FingerprintSHA256(key))
		hostKey = strings.TrimSpace(string(ssh.MarshalAuthorizedKey(key)))
	}
	line, err := knownHostsLine(s.remote.address, hostKey)
	if err != nil {
		return nil, nil, newError(ErrCredential, "host key", err)
	}

	workDir := s.opts.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	auth, l, err := provision(workDir, keyMaterial{
		user:       s.opts.SSHUser,
		privateKey: s.opts.PrivateKey,
		passphrase: s.opts.Passphrase,
		knownHosts: line,
	})
	if err != nil {
		return nil, nil, newError(ErrCredential, "provision", err)
	}
	logger.Debug("Key material provisioned.", "dir", l.dir)
	return auth, l, nil
}

func gitClone(ctx context.Context, dir string, o *git.CloneOptions) (string, error) {
	repo, err := git.PlainCloneContext(ctx, dir, false, o)
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}
