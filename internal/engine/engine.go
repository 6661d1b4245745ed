// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package engine wires the dispatcher, the scheduler and the run executor
// into one component the CLI and the HTTP server both drive.
package engine

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vk/loomci/internal/actions"
	"github.com/vk/loomci/internal/config"
	"github.com/vk/loomci/internal/ctxlog"
	"github.com/vk/loomci/internal/dispatch"
	"github.com/vk/loomci/internal/model"
	"github.com/vk/loomci/internal/notify"
	"github.com/vk/loomci/internal/run"
	"github.com/vk/loomci/internal/runlog"
	"github.com/vk/loomci/internal/runner"
	"github.com/vk/loomci/internal/secrets"
)

// Engine owns the registered workflows and every run they produce.
type Engine struct {
	cfg        *config.Config
	dispatcher *dispatch.Dispatcher
	scheduler  *dispatch.Scheduler
	store      *runStore
	secrets    *secrets.Store
	notifier   *notify.Notifier
	actions    *runner.Registry
	commands   runner.CommandRunner

	wg sync.WaitGroup
}

type Option func(*Engine)

// WithCommandRunner replaces the shell runner; tests use it.
func WithCommandRunner(r runner.CommandRunner) Option {
	return func(e *Engine) { e.commands = r }
}

// WithActionRegistry replaces the built-in action registry.
func WithActionRegistry(reg *runner.Registry) Option {
	return func(e *Engine) { e.actions = reg }
}

// WithNotifier sets the completion webhook.
func WithNotifier(n *notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// New builds an engine over the given workflows. Secrets come from the
// configuration file plus any LOOMCI_SECRET_* environment entries.
func New(cfg *config.Config, workflows []*model.Workflow, opts ...Option) (*Engine, error) {
	store := secrets.FromMap(cfg.Secrets)
	store.LoadEnviron(os.Environ())

	e := &Engine{
		cfg:      cfg,
		store:    newRunStore(),
		secrets:  store,
		actions:  actions.Builtin(),
		commands: runner.LocalShell{},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.dispatcher = dispatch.New(e.start)
	e.dispatcher.RegisterAll(workflows)

	e.scheduler = dispatch.NewScheduler(e.dispatcher)
	for _, wf := range workflows {
		if err := e.scheduler.AddWorkflow(wf); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// HandleEvent fans the event out to every matching workflow and returns
// the names started. Runs execute in the background; Wait blocks on them.
func (e *Engine) HandleEvent(ctx context.Context, ev *model.Event) []string {
	return e.dispatcher.Dispatch(ctx, ev)
}

// DispatchManual starts one workflow by name.
func (e *Engine) DispatchManual(ctx context.Context, name string, inputs map[string]string) error {
	return e.dispatcher.DispatchManual(ctx, name, inputs)
}

// RunScheduler polls cron schedules until the context ends.
func (e *Engine) RunScheduler(ctx context.Context) {
	interval, err := time.ParseDuration(e.cfg.PollInterval)
	if err != nil || interval <= 0 {
		interval = 30 * time.Second
	}
	e.scheduler.Run(ctx, interval)
}

// Run returns a stored run by id.
func (e *Engine) Run(id string) (*run.Run, bool) {
	return e.store.get(id)
}

// Runs returns every run in start order.
func (e *Engine) Runs() []*run.Run {
	return e.store.all()
}

// Workflows returns the registered workflows.
func (e *Engine) Workflows() []*model.Workflow {
	return e.dispatcher.Workflows()
}

// Wait blocks until every in-flight run has settled.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// start is the dispatcher's Starter: it instantiates a run and executes
// it on its own goroutine.
func (e *Engine) start(ctx context.Context, wf *model.Workflow, ev *model.Event) {
	log := ctxlog.FromContext(ctx)

	runID := uuid.NewString()
	sink, closeSink := e.newSink(ctx, runID)
	r, err := run.New(wf, ev, run.Options{
		RunID:             runID,
		Workers:           e.cfg.Workers,
		AllowSkippedNeeds: e.cfg.AllowSkippedNeeds,
		Workspace:         e.cfg.Workspace,
		Secrets:           e.secrets,
		Log:               sink,
		Commands:          e.commands,
		Actions:           e.actions,
	})
	if err != nil {
		log.Error("workflow rejected", "workflow", wf.Name, "error", err)
		closeSink()
		return
	}
	e.store.add(r)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer closeSink()
		r.Execute(ctx)
		e.notifyDone(ctx, r)
	}()
}

func (e *Engine) newSink(ctx context.Context, runID string) (runlog.Sink, func()) {
	buffer := &runlog.Buffer{}
	if e.cfg.RunLogDir == "" {
		return buffer, func() {}
	}
	file, err := runlog.NewFileSink(e.cfg.RunLogDir, runID)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("run log file unavailable, buffering only", "error", err)
		return buffer, func() {}
	}
	return runlog.Fanout{buffer, file}, func() { _ = file.Close() }
}

func (e *Engine) notifyDone(ctx context.Context, r *run.Run) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, notify.FromRun(r)); err != nil {
		ctxlog.FromContext(ctx).Warn("run notification failed", "run_id", r.ID, "error", err)
	}
}
