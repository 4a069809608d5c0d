package app

import (
	"errors"
	"fmt"
)

// Config holds the per-invocation settings supplied by the entrypoint.
type Config struct {
	// ConfigPath is an .hcl file or a directory of .hcl files.
	ConfigPath string
	// Audience is "auto", "system" or "user".
	Audience string
	// EnvFile is loaded into the environment before the config is read.
	// EnvFileOptional skips it silently when absent.
	EnvFile         string
	EnvFileOptional bool

	LogFormat string
	LogLevel  string
	// LogFile, when set, receives a copy of every log record.
	LogFile string

	// HealthcheckPort serves run status over HTTP while the cycle runs.
	// 0 disables it.
	HealthcheckPort int

	// Action selects what the entrypoint does with the App.
	Action Action
}

// Action is the operation an invocation performs.
type Action int

const (
	// ActionRun performs one sync, build and execute cycle.
	ActionRun Action = iota
	// ActionShowState prints the durable snapshot.
	ActionShowState
	// ActionResetState deletes the durable snapshot.
	ActionResetState
)

// NewConfig validates cfg and returns a copy.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
	}
	switch cfg.Audience {
	case "":
		cfg.Audience = AudienceAuto
	case AudienceAuto, "system", "user":
	default:
		return nil, fmt.Errorf("invalid audience %q: must be 'auto', 'system' or 'user'", cfg.Audience)
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("invalid healthcheck port %d", cfg.HealthcheckPort)
	}
	return &cfg, nil
}

// AudienceAuto selects the audience from the running identity.
const AudienceAuto = "auto"
