// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package run

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vk/loomci/internal/ctxlog"
	"github.com/vk/loomci/internal/expr"
	"github.com/vk/loomci/internal/model"
)

// executor drives a Run's executions through a fixed-size worker pool.
// Readiness is edge-triggered: an execution enters the ready channel
// exactly once, when its dependency count reaches zero and its condition
// holds.
type executor struct {
	run       *Run
	ready     chan *JobExecution
	remaining atomic.Int32
	done      chan struct{}
	doneOnce  sync.Once
}

// Execute runs every job execution to a terminal state and returns the
// run's aggregate status. It blocks until all executions have finished,
// been skipped, or been cancelled.
func (r *Run) Execute(ctx context.Context) State {
	ex := &executor{
		run:   r,
		ready: make(chan *JobExecution, len(r.order)),
		done:  make(chan struct{}),
	}
	ex.remaining.Store(int32(len(r.order)))

	log := ctxlog.FromContext(ctx).With("run_id", r.ID, "workflow", r.Workflow.Name)
	log.Info("▶️ Starting run", "executions", len(r.order), "workers", r.opts.Workers)

	// Roots are gated up front, in declaration order, so single-worker
	// runs process independent jobs deterministically.
	for _, exec := range r.order {
		if exec.depCount.Load() == 0 {
			ex.gate(ctx, exec)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < r.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ex.worker(ctx)
		}()
	}

	select {
	case <-ex.done:
	case <-ctx.Done():
		ex.cancelPending()
		<-ex.done
	}
	wg.Wait()

	status := r.Status()
	log.Info("✅ Finished run", "status", status.String())
	return status
}

// worker drains the ready channel until the run settles. The channel is
// never closed; the done channel ends the loop once every execution is
// terminal, and any execution still queued at that point is already
// terminal too.
func (ex *executor) worker(ctx context.Context) {
	for {
		select {
		case <-ex.done:
			return
		case exec := <-ex.ready:
			switch {
			case exec.State().Terminal():
			case ctx.Err() != nil:
				ex.finish(ctx, exec, Cancelled, ReasonCancelled)
			case exec.group.failFastTriggered():
				ex.finish(ctx, exec, Cancelled, ReasonFailFast)
			default:
				ex.execute(ctx, exec)
			}
		}
	}
}

// gate decides, at the moment all dependencies have settled, whether an
// execution runs or is skipped. A condition that fails to evaluate is
// treated as false.
func (ex *executor) gate(ctx context.Context, exec *JobExecution) {
	env := ex.run.conditionEnv(exec)

	ok, err := ex.run.eval.EvalBool(exec.Job.Condition(), env)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("condition evaluation failed, skipping job",
			"job", exec.ID, "condition", exec.Job.Condition(), "error", err)
		ex.finish(ctx, exec, Skipped, ReasonCondition)
		return
	}
	if !ok {
		ex.finish(ctx, exec, Skipped, ReasonCondition)
		return
	}

	// Enqueue at most once; a concurrent teardown may already have
	// finished this execution.
	if exec.state.CompareAndSwap(int32(Pending), int32(Eligible)) {
		ex.ready <- exec
	}
}

func (ex *executor) execute(ctx context.Context, exec *JobExecution) {
	// A teardown between the worker's dequeue checks and this point may
	// already have finished the execution; never overwrite a terminal
	// state.
	if !exec.state.CompareAndSwap(int32(Eligible), int32(Running)) {
		return
	}

	jobCtx := ctx
	var cancel context.CancelFunc
	if exec.Job.Timeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, exec.Job.Timeout)
	} else {
		jobCtx, cancel = context.WithCancel(ctx)
	}
	exec.setCancel(cancel)
	defer cancel()

	log := ctxlog.FromContext(ctx).With("job", exec.ID)
	log.Info("▶️ Starting job")

	state, reason, err := ex.run.runSteps(jobCtx, exec)

	if state == Failed && jobCtx.Err() != nil {
		// Distinguish a genuine step failure from one induced by
		// cancellation or the job deadline.
		switch {
		case jobCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
			state, reason = Cancelled, ReasonTimeout
		case ctx.Err() != nil:
			state, reason = Cancelled, ReasonCancelled
		case exec.group.failFastTriggered():
			state, reason = Cancelled, ReasonFailFast
		}
	}
	exec.err = err

	if state == Failed {
		log.Warn("❌ Job failed", "reason", string(reason))
	} else {
		log.Info("✅ Finished job", "result", state.String())
	}
	ex.finish(ctx, exec, state, reason)
}

// finish moves an execution to a terminal state exactly once, publishes
// the job's aggregate result when its last matrix sibling settles, and
// only then releases dependents.
func (ex *executor) finish(ctx context.Context, exec *JobExecution, state State, reason Reason) {
	exec.finishOnce.Do(func() {
		exec.state.Store(int32(state))
		exec.reason.Store(reason)

		group := exec.group
		if state == Failed {
			if group.failed.CompareAndSwap(false, true) && group.failFast {
				for _, sibling := range group.executions {
					if sibling != exec {
						sibling.interrupt()
					}
				}
			}
		}

		if group.remaining.Add(-1) == 0 {
			ex.run.Context.PublishJobResult(group.jobID, ex.run.groupResult(group))
		}

		dependents, err := ex.run.graph.Dependents(exec.ID)
		if err == nil {
			for _, depID := range dependents {
				dep := ex.run.byID[depID]
				if dep.depCount.Add(-1) == 0 {
					ex.gate(ctx, dep)
				}
			}
		}

		if ex.remaining.Add(-1) == 0 {
			ex.doneOnce.Do(func() { close(ex.done) })
		}
	})
}

// cancelPending marks every not-yet-terminal execution Cancelled when the
// run context is torn down, so Execute never leaves a Pending node behind.
func (ex *executor) cancelPending() {
	for _, exec := range ex.run.order {
		if exec.State() == Running {
			exec.interrupt()
		}
	}
	for _, exec := range ex.run.order {
		if !exec.State().Terminal() {
			ex.finish(context.Background(), exec, Cancelled, ReasonCancelled)
		}
	}
}

// groupResult folds a finished job group into the value dependents see
// under needs.<job>.
func (r *Run) groupResult(group *jobGroup) model.NeedsResult {
	return model.NeedsResult{
		Result:  group.aggregateResult(),
		Outputs: group.mergedOutputs(),
	}
}

// conditionEnv builds the expression environment used to gate a job:
// status flags derive from the execution's direct dependencies.
func (r *Run) conditionEnv(exec *JobExecution) expr.Env {
	deps, _ := r.graph.Dependencies(exec.ID)

	succeeded := true
	failed := false
	cancelled := false
	for _, depID := range deps {
		dep := r.byID[depID]
		switch dep.State() {
		case Succeeded:
		case Skipped:
			if !r.opts.AllowSkippedNeeds {
				succeeded = false
			}
		case Cancelled:
			succeeded = false
			cancelled = true
		default:
			succeeded = false
			failed = true
		}
	}

	return expr.Env{
		GitHub:    r.Context.GitHubView(),
		Matrix:    map[string]any(exec.Combo),
		Needs:     r.Context.NeedsView(exec.Job.Needs),
		Vars:      mergeEnv(r.Workflow.Env, exec.Job.Env),
		Secrets:   r.opts.Secrets.All(),
		Succeeded: succeeded,
		Failed:    failed,
		Cancelled: cancelled,
	}
}

func mergeEnv(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
