package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/specialistvlad/repotaskrun/internal/app"
)

// EnvConfigPath names the configuration when neither -config nor a
// positional argument is given.
const EnvConfigPath = "REPOTASKRUN_CONFIG"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("repotaskrun", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
RepoTaskRun - Runs the maintenance scripts published in a git repository.

Each invocation synchronizes the repository, selects the scripts for the
current audience, orders them by their dependencies and runs them one at a
time, resuming after reboots requested by a script.

Usage:
  repotaskrun [options] [CONFIG_PATH]

Arguments:
  CONFIG_PATH
    Path to an .hcl file or a directory containing .hcl files.
    Defaults to $`+EnvConfigPath+`.

Options:
`)
		flagSet.PrintDefaults()
	}

	configFlag := flagSet.String("config", "", "Path to the agent configuration file or directory.")
	cFlag := flagSet.String("c", "", "Path to the agent configuration file or directory (shorthand).")
	audienceFlag := flagSet.String("audience", app.AudienceAuto, "Audience to run for. Options: 'auto', 'system' or 'user'.")
	envFileFlag := flagSet.String("env-file", ".env", "Environment file loaded before the configuration is read.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	logFileFlag := flagSet.String("log-file", "", "Also append logs to this file.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	showStateFlag := flagSet.Bool("show-state", false, "Print the saved run state as YAML and exit.")
	resetStateFlag := flagSet.Bool("reset-state", false, "Delete the saved run state and exit.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *configFlag != "" {
		path = *configFlag
	} else if *cFlag != "" {
		path = *cFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	} else {
		path = os.Getenv(EnvConfigPath)
	}
	slog.Debug("Config path determined.", "path", path)

	if path == "" {
		slog.Debug("No config path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	if *showStateFlag && *resetStateFlag {
		return nil, false, &ExitError{Code: 2, Message: "-show-state and -reset-state are mutually exclusive"}
	}
	action := app.ActionRun
	switch {
	case *showStateFlag:
		action = app.ActionShowState
	case *resetStateFlag:
		action = app.ActionResetState
	}

	envFileSet := false
	flagSet.Visit(func(f *flag.Flag) {
		if f.Name == "env-file" {
			envFileSet = true
		}
	})
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ConfigPath:      path,
		Audience:        strings.ToLower(*audienceFlag),
		EnvFile:         *envFileFlag,
		EnvFileOptional: !envFileSet,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		LogFile:         *logFileFlag,
		HealthcheckPort: *healthPortFlag,
		Action:          action,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
