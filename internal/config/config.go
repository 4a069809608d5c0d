package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/specialistvlad/repotaskrun/internal/model"
	"github.com/specialistvlad/repotaskrun/internal/statestore"
)

// AppName names the per-audience base directories.
const AppName = "RepoTaskRun"

// DefaultPollInterval is the wait between reachability attempts.
const DefaultPollInterval = 10 * time.Second

// Config is the resolved agent configuration.
type Config struct {
	Repository      Repository
	CredentialsFile string
	Paths           Paths
	// Scripts maps a script extension to the interpreter command.
	Scripts map[string][]string
	// Membership is nil when group lookups are not configured.
	Membership *Membership
	Reboot     Reboot
}

// Repository describes the remote task repository.
type Repository struct {
	URL          string
	Branch       string
	Address      string
	HostKey      string
	SSHUser      string
	PollInterval time.Duration
	Shallow      bool
}

// Paths holds the per-audience base directories.
type Paths struct {
	SystemDir string
	UserDir   string
	WorkDir   string
}

// Membership configures the group directory lookup.
type Membership struct {
	TenantID string
	ClientID string
	TokenURL string
	Endpoint string
	// Principal overrides the detected user principal name.
	Principal string
	// Groups, when set, is used as the membership instead of a lookup.
	Groups []string
}

// Reboot configures how an OS restart is requested.
type Reboot struct {
	Command []string
}

// BaseDir returns the directory holding an audience's checkout and state.
func (p Paths) BaseDir(aud model.Audience) string {
	if aud == model.AudienceSystem {
		return p.SystemDir
	}
	return p.UserDir
}

// RepositoryDir returns the checkout location for aud.
func (p Paths) RepositoryDir(aud model.Audience) string {
	return filepath.Join(p.BaseDir(aud), "repo")
}

// StateFile returns the snapshot location for aud.
func (p Paths) StateFile(aud model.Audience) string {
	return filepath.Join(p.BaseDir(aud), statestore.FileName)
}

// Extensions returns the configured script extensions in sorted order.
func (c *Config) Extensions() []string {
	exts := make([]string, 0, len(c.Scripts))
	for ext := range c.Scripts {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// DefaultPaths returns the platform default base directories.
func DefaultPaths() Paths {
	if runtime.GOOS == "windows" {
		return Paths{
			SystemDir: filepath.Join(envOr("ProgramData", `C:\ProgramData`), AppName),
			UserDir:   filepath.Join(os.Getenv("LOCALAPPDATA"), AppName),
		}
	}
	userDir := os.Getenv("XDG_STATE_HOME")
	if userDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			userDir = filepath.Join(home, ".local", "state")
		}
	}
	return Paths{
		SystemDir: "/var/lib/repotaskrun",
		UserDir:   filepath.Join(userDir, "repotaskrun"),
	}
}

// DefaultScripts returns the platform default interpreter for .ps1 scripts.
func DefaultScripts() map[string][]string {
	if runtime.GOOS == "windows" {
		return map[string][]string{
			".ps1": {"powershell.exe", "-NoProfile", "-NonInteractive", "-WindowStyle", "Hidden", "-ExecutionPolicy", "Bypass", "-File"},
		}
	}
	return map[string][]string{
		".ps1": {"pwsh", "-NoProfile", "-NonInteractive", "-File"},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Repository.URL == "" {
		errs = append(errs, errors.New("repository.url is required"))
	}
	if c.Repository.PollInterval <= 0 {
		errs = append(errs, errors.New("repository.poll_interval must be positive"))
	}
	if c.Paths.SystemDir == "" || c.Paths.UserDir == "" {
		errs = append(errs, errors.New("paths.system_dir and paths.user_dir must resolve to directories"))
	}
	for ext, cmd := range c.Scripts {
		if len(ext) < 2 || ext[0] != '.' {
			errs = append(errs, fmt.Errorf("script %q: extension must start with a dot", ext))
		}
		if len(cmd) == 0 {
			errs = append(errs, fmt.Errorf("script %q: command must not be empty", ext))
		}
	}
	if m := c.Membership; m != nil && len(m.Groups) == 0 {
		if m.TenantID == "" || m.ClientID == "" {
			errs = append(errs, errors.New("membership needs tenant_id and client_id, or a static groups list"))
		}
	}
	return errors.Join(errs...)
}
