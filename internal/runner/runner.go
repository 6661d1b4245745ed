// Package runner defines the two execution boundaries a step can cross:
// shell command invocation and delegated action invocation. The scheduler
// owns everything above these interfaces; implementations own nothing but
// the mechanics of running one step.
package runner

import (
	"context"
	"io"
)

// CommandSpec describes one `run` step invocation.
type CommandSpec struct {
	// Command is the raw (already interpolated) command text.
	Command string
	// Shell selects the interpreter: "bash" (default) or "sh".
	Shell string
	// Dir is the working directory.
	Dir string
	// Env is the complete environment for the process, secrets included.
	// Secret values must only ever travel through this map, never through
	// interpolated command text destined for logs.
	Env map[string]string
	// Stdout and Stderr receive the process output streams.
	Stdout io.Writer
	Stderr io.Writer
}

// CommandResult reports how a command invocation ended.
type CommandResult struct {
	ExitCode int
}

// CommandRunner executes shell command steps.
type CommandRunner interface {
	// RunCommand runs the command to completion. A non-zero exit status
	// is reported through CommandResult, not through the error; the
	// error is reserved for failures to invoke at all.
	RunCommand(ctx context.Context, spec CommandSpec) (CommandResult, error)
}

// ActionSpec describes one `uses` step invocation.
type ActionSpec struct {
	// Uses is the action reference, e.g. "actions/checkout@v4".
	Uses string
	// With holds the resolved input mapping.
	With map[string]string
	// Env is the environment visible to the action.
	Env map[string]string
	// Dir is the working directory.
	Dir string
	// Stdout and Stderr receive emitted log lines.
	Stdout io.Writer
	Stderr io.Writer
}

// ActionResult reports an action's exit status and declared outputs.
type ActionResult struct {
	ExitCode int
	Outputs  map[string]string
}

// ActionRunner executes delegated action steps. The engine never
// implements actions itself; it only moves inputs in and outputs out.
type ActionRunner interface {
	RunAction(ctx context.Context, spec ActionSpec) (ActionResult, error)
}
