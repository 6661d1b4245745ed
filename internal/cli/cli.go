// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package cli parses command-line arguments into an engine invocation.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/vk/loomci/internal/config"
)

// ExitError carries a specific process exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// Invocation is the parsed intent of one CLI call.
type Invocation struct {
	Config *config.Config

	// Serve selects daemon mode; otherwise WorkflowPath runs once.
	Serve        bool
	WorkflowPath string
	Event        string
	Ref          string
}

// Parse processes arguments. The boolean result is true when the program
// should exit cleanly without doing anything (help, no arguments).
func Parse(ctx context.Context, args []string, output io.Writer) (*Invocation, bool, error) {
	flagSet := flag.NewFlagSet("loomci", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
loomci - a minimal workflow orchestration engine.

Usage:
  loomci [options] WORKFLOW_PATH      run workflows once against an event
  loomci -serve [options]             serve HTTP intake and cron schedules

Arguments:
  WORKFLOW_PATH
    Path to a workflow .yml file or a directory containing them.

Options:
`)
		flagSet.PrintDefaults()
	}

	configFlag := flagSet.String("config", "", "Path to the engine HCL configuration file.")
	serveFlag := flagSet.Bool("serve", false, "Run as a daemon with HTTP intake and schedules.")
	eventFlag := flagSet.String("event", "push", "Event type to fire in one-shot mode.")
	refFlag := flagSet.String("ref", "refs/heads/main", "Git ref carried by the one-shot event.")
	strictFlag := flagSet.Bool("strict", false, "Treat unknown workflow keys as errors.")
	workersFlag := flagSet.Int("workers", 0, "Concurrent job executions. 0 keeps the configured value.")
	logFormatFlag := flagSet.String("log-format", "", "Log output format: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "", "Logging level: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	cfg, err := config.Load(ctx, *configFlag)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	if *strictFlag {
		cfg.Strict = true
	}
	if *workersFlag > 0 {
		cfg.Workers = *workersFlag
	}
	if *logFormatFlag != "" {
		cfg.LogFormat = strings.ToLower(*logFormatFlag)
	}
	if *logLevelFlag != "" {
		cfg.LogLevel = strings.ToLower(*logLevelFlag)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	inv := &Invocation{
		Config: cfg,
		Serve:  *serveFlag,
		Event:  *eventFlag,
		Ref:    *refFlag,
	}

	if inv.Serve {
		return inv, false, nil
	}

	if flagSet.NArg() == 0 {
		flagSet.Usage()
		return nil, true, nil
	}
	inv.WorkflowPath = flagSet.Arg(0)
	return inv, false, nil
}
