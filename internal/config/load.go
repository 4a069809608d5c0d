package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/joho/godotenv"
	"github.com/specialistvlad/repotaskrun/internal/ctxlog"
	"github.com/specialistvlad/repotaskrun/internal/fsutil"
)

// fileRoot decodes the top-level blocks of one file.
type fileRoot struct {
	Repository      *repositoryBlock `hcl:"repository,block"`
	CredentialsFile string           `hcl:"credentials_file,optional"`
	Paths           *pathsBlock      `hcl:"paths,block"`
	Scripts         []*scriptBlock   `hcl:"script,block"`
	Membership      *membershipBlock `hcl:"membership,block"`
	Reboot          *rebootBlock     `hcl:"reboot,block"`
}

type repositoryBlock struct {
	URL          string `hcl:"url"`
	Branch       string `hcl:"branch,optional"`
	Address      string `hcl:"address,optional"`
	HostKey      string `hcl:"host_key,optional"`
	SSHUser      string `hcl:"ssh_user,optional"`
	PollInterval string `hcl:"poll_interval,optional"`
	Shallow      bool   `hcl:"shallow,optional"`
}

type pathsBlock struct {
	SystemDir string `hcl:"system_dir,optional"`
	UserDir   string `hcl:"user_dir,optional"`
	WorkDir   string `hcl:"work_dir,optional"`
}

type scriptBlock struct {
	Extension string   `hcl:"extension,label"`
	Command   []string `hcl:"command"`
}

type membershipBlock struct {
	TenantID  string   `hcl:"tenant_id,optional"`
	ClientID  string   `hcl:"client_id,optional"`
	TokenURL  string   `hcl:"token_url,optional"`
	Endpoint  string   `hcl:"endpoint,optional"`
	Principal string   `hcl:"principal,optional"`
	Groups    []string `hcl:"groups,optional"`
}

type rebootBlock struct {
	Command []string `hcl:"command"`
}

// LoadEnv loads .env files into the process environment without overriding
// variables that are already set. Missing files are skipped when optional.
func LoadEnv(ctx context.Context, optional bool, files ...string) error {
	logger := ctxlog.FromContext(ctx)
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) && optional {
			logger.Debug("No env file.", "path", f)
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
		logger.Debug("Env file loaded.", "path", f)
	}
	return nil
}

// Load reads the configuration at path, a file or a directory of .hcl
// files, applies defaults and validates the result.
func Load(ctx context.Context, path string) (*Config, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Config loader started.", "path", path)

	files, err := configFiles(path)
	if err != nil {
		return nil, err
	}

	parser := hclparse.NewParser()
	cfg := &Config{Scripts: make(map[string][]string)}
	var repoFile string

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse config file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, evalContext(filepath.Dir(file)), &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode config file %s: %w", file, diags)
		}

		if root.Repository != nil {
			if repoFile != "" {
				return nil, fmt.Errorf("repository block defined in both %s and %s", repoFile, file)
			}
			repoFile = file
			if err := cfg.applyRepository(root.Repository); err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
		}
		if root.CredentialsFile != "" {
			cfg.CredentialsFile = resolve(filepath.Dir(file), root.CredentialsFile)
		}
		if p := root.Paths; p != nil {
			cfg.Paths = Paths{SystemDir: p.SystemDir, UserDir: p.UserDir, WorkDir: p.WorkDir}
		}
		for _, s := range root.Scripts {
			cfg.Scripts[s.Extension] = s.Command
		}
		if m := root.Membership; m != nil {
			cfg.Membership = &Membership{
				TenantID:  m.TenantID,
				ClientID:  m.ClientID,
				TokenURL:  m.TokenURL,
				Endpoint:  m.Endpoint,
				Principal: m.Principal,
				Groups:    m.Groups,
			}
		}
		if r := root.Reboot; r != nil {
			cfg.Reboot.Command = r.Command
		}
		logger.Debug("Config file decoded.", "file", file)
	}

	if repoFile == "" {
		return nil, errors.New("no repository block found in configuration")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Debug("Config loaded.", "files", len(files), "url", cfg.Repository.URL)
	return cfg, nil
}

func (c *Config) applyRepository(b *repositoryBlock) error {
	c.Repository = Repository{
		URL:     b.URL,
		Branch:  b.Branch,
		Address: b.Address,
		HostKey: b.HostKey,
		SSHUser: b.SSHUser,
		Shallow: b.Shallow,
	}
	if b.PollInterval != "" {
		d, err := time.ParseDuration(b.PollInterval)
		if err != nil {
			return fmt.Errorf("invalid repository.poll_interval: %w", err)
		}
		c.Repository.PollInterval = d
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Repository.PollInterval == 0 {
		c.Repository.PollInterval = DefaultPollInterval
	}
	defaults := DefaultPaths()
	if c.Paths.SystemDir == "" {
		c.Paths.SystemDir = defaults.SystemDir
	}
	if c.Paths.UserDir == "" {
		c.Paths.UserDir = defaults.UserDir
	}
	if len(c.Scripts) == 0 {
		c.Scripts = DefaultScripts()
	}
}

func configFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	files, err := fsutil.FindFilesByExtension(path, ".hcl")
	if err != nil {
		return nil, fmt.Errorf("failed to list config files in %s: %w", path, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl files found in %s", path)
	}
	return files, nil
}

func resolve(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
