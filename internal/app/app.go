// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package app assembles the engine from configuration and drives the two
// entry modes: a one-shot run of a single workflow, and the long-running
// daemon with HTTP intake and cron schedules.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vk/loomci/internal/config"
	"github.com/vk/loomci/internal/ctxlog"
	"github.com/vk/loomci/internal/engine"
	"github.com/vk/loomci/internal/model"
	"github.com/vk/loomci/internal/notify"
	"github.com/vk/loomci/internal/run"
	"github.com/vk/loomci/internal/server"
	"github.com/vk/loomci/internal/wfparse"
)

// ErrRunFailed marks a one-shot invocation whose run did not succeed; the
// CLI maps it to a non-zero exit code.
var ErrRunFailed = errors.New("run failed")

// App holds the assembled application.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	cfg     *config.Config
	parser  *wfparse.Parser
	engOpts []engine.Option
}

// NewApp builds an App with its own isolated logger. Extra engine options
// let tests swap the command runner.
func NewApp(outW io.Writer, cfg *config.Config, engOpts ...engine.Option) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	var opts []wfparse.Option
	if cfg.Strict {
		opts = append(opts, wfparse.WithStrict(true))
	}
	return &App{
		outW:    outW,
		logger:  logger,
		cfg:     cfg,
		parser:  wfparse.New(opts...),
		engOpts: engOpts,
	}
}

func (a *App) context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

func (a *App) newEngine(workflows []*model.Workflow) (*engine.Engine, error) {
	opts := a.engOpts
	if a.cfg.NotifyURL != "" {
		opts = append(opts, engine.WithNotifier(notify.New(a.cfg.NotifyURL)))
	}
	return engine.New(a.cfg, workflows, opts...)
}

// RunOnce parses one workflow file or directory, fires a synthetic event
// at it, waits for completion and prints per-job results. It returns
// ErrRunFailed when any started run did not succeed.
func (a *App) RunOnce(ctx context.Context, path, eventType, ref string) error {
	ctx = a.context(ctx)

	workflows, err := a.loadPath(ctx, path)
	if err != nil {
		return err
	}

	eng, err := a.newEngine(workflows)
	if err != nil {
		return err
	}

	ev := &model.Event{Type: eventType, Ref: ref}
	started := eng.HandleEvent(ctx, ev)
	if len(started) == 0 {
		fmt.Fprintf(a.outW, "no workflow matched event %q\n", eventType)
		return nil
	}
	eng.Wait()

	failed := false
	for _, r := range eng.Runs() {
		status := r.Status()
		fmt.Fprintf(a.outW, "%s: %s\n", r.Workflow.Name, status)
		for _, exec := range r.Executions() {
			fmt.Fprintf(a.outW, "  %s: %s", exec.ID, exec.State())
			if reason := exec.Reason(); reason != run.ReasonNone {
				fmt.Fprintf(a.outW, " (%s)", reason)
			}
			fmt.Fprintln(a.outW)
		}
		if status != run.Succeeded {
			failed = true
		}
	}
	if failed {
		return ErrRunFailed
	}
	return nil
}

// Serve loads the configured workflow directory and runs the HTTP server
// and the cron scheduler until the context ends.
func (a *App) Serve(ctx context.Context) error {
	ctx = a.context(ctx)

	workflows, err := a.parser.LoadDir(ctx, a.cfg.WorkflowDir)
	if err != nil {
		return err
	}
	a.logger.Info("📋 Workflows loaded", "dir", a.cfg.WorkflowDir, "count", len(workflows))

	eng, err := a.newEngine(workflows)
	if err != nil {
		return err
	}

	go eng.RunScheduler(ctx)

	srv := server.New(a.cfg.Listen, eng)
	if err := srv.ListenAndServe(ctx); err != nil {
		return err
	}
	eng.Wait()
	return nil
}

// loadPath accepts either a single workflow file or a directory of them.
func (a *App) loadPath(ctx context.Context, path string) ([]*model.Workflow, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("workflow path: %w", err)
	}
	if info.IsDir() {
		return a.parser.LoadDir(ctx, path)
	}
	wf, err := a.parser.ParseFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return []*model.Workflow{wf}, nil
}
