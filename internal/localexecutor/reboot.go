package localexecutor

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/specialistvlad/repotaskrun/internal/ctxlog"
)

// DefaultRebootCommand returns the platform command that restarts the machine.
func DefaultRebootCommand() []string {
	if runtime.GOOS == "windows" {
		return []string{"shutdown.exe", "/r", "/t", "0"}
	}
	return []string{"systemctl", "reboot"}
}

// CommandRebooter requests an OS restart by running a command.
type CommandRebooter struct {
	Command []string
}

// Reboot runs the reboot command. It returns once the command exits; the
// restart itself happens asynchronously.
func (r *CommandRebooter) Reboot(ctx context.Context) error {
	argv := r.Command
	if len(argv) == 0 {
		argv = DefaultRebootCommand()
	}
	logger := ctxlog.FromContext(ctx)
	logger.Info("Requesting OS restart.", "command", argv)

	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("reboot command %q failed: %w: %s", argv[0], err, out)
	}
	return nil
}
