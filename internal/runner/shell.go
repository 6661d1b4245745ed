package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/vk/loomci/internal/ctxlog"
)

// LocalShell runs command steps as local child processes.
type LocalShell struct{}

// RunCommand implements CommandRunner.
func (LocalShell) RunCommand(ctx context.Context, spec CommandSpec) (CommandResult, error) {
	logger := ctxlog.FromContext(ctx)

	name, args := shellArgv(spec.Shell)
	cmd := exec.CommandContext(ctx, name, append(args, spec.Command)...)
	cmd.Dir = spec.Dir
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr

	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	logger.Debug("spawning command", "shell", name, "dir", spec.Dir)
	err := cmd.Run()
	if err == nil {
		return CommandResult{ExitCode: 0}, nil
	}

	// A context hit cancels or times out the process; surface that as
	// the context error so the scheduler records Cancelled, not Failed.
	if ctx.Err() != nil {
		return CommandResult{ExitCode: -1}, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return CommandResult{ExitCode: exitErr.ExitCode()}, nil
	}
	return CommandResult{ExitCode: -1}, fmt.Errorf("spawning %s: %w", name, err)
}

func shellArgv(shell string) (string, []string) {
	switch shell {
	case "", "bash":
		// -e matches the reference platform: first failing command
		// fails the step.
		return "bash", []string{"-e", "-c"}
	case "sh":
		return "sh", []string{"-e", "-c"}
	default:
		// Unrecognized shells are invoked as-is with -c.
		return shell, []string{"-c"}
	}
}
