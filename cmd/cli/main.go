package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/specialistvlad/repotaskrun/internal/app"
	"github.com/specialistvlad/repotaskrun/internal/cli"
	"github.com/specialistvlad/repotaskrun/internal/runner"
)

// main is the entrypoint for the repotaskrun agent.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stderr, os.Args[1:])
	stop()

	if err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(ctx context.Context, outW io.Writer, args []string) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	agent, err := app.NewApp(outW, appConfig)
	if err != nil {
		return err
	}
	defer agent.Close()

	switch appConfig.Action {
	case app.ActionShowState:
		return agent.ShowState(ctx)
	case app.ActionResetState:
		return agent.ResetState(ctx)
	}

	outcome, err := agent.Run(ctx)
	if err != nil {
		return err
	}
	if outcome == runner.OutcomeRebootRequested {
		fmt.Fprintln(outW, "Reboot requested; the run resumes after restart.")
	}
	return nil
}
