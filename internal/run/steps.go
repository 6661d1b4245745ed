// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package run

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/avast/retry-go/v4"

	"github.com/vk/loomci/internal/ctxlog"
	"github.com/vk/loomci/internal/expr"
	"github.com/vk/loomci/internal/model"
	"github.com/vk/loomci/internal/runlog"
	"github.com/vk/loomci/internal/runner"
)

// runSteps executes a job's steps sequentially. A failed step does not end
// the loop: later steps still get their condition evaluated, so cleanup
// steps guarded by failure() or always() run. The job fails if any step's
// conclusion is failure.
func (r *Run) runSteps(ctx context.Context, exec *JobExecution) (State, Reason, error) {
	log := ctxlog.FromContext(ctx).With("job", exec.ID)

	jobFailed := false
	var firstErr error
	stepsView := make(map[string]any)

	baseVars, err := r.jobVars(exec, stepsView, jobFailed)
	if err != nil {
		// Job-level env that cannot resolve makes every step ambiguous;
		// fail before running anything.
		return Failed, ReasonStepFailed, fmt.Errorf("job env: %w", err)
	}

	for _, step := range exec.Job.Steps {
		if ctx.Err() != nil {
			exec.recordStep(StepResult{Step: step, Outcome: "cancelled", Conclusion: "cancelled"})
			return Failed, ReasonCancelled, ctx.Err()
		}

		env := r.stepEnv(exec, stepsView, baseVars, jobFailed, ctx.Err() != nil)

		ok, condErr := r.eval.EvalBool(step.Condition(), env)
		if condErr != nil {
			log.Warn("step condition failed to evaluate, skipping step",
				"step", step.DisplayName(), "condition", step.Condition(), "error", condErr)
			ok = false
		}
		if !ok {
			res := StepResult{Step: step, Outcome: "skipped", Conclusion: "skipped"}
			exec.recordStep(res)
			r.publishStep(stepsView, step, res)
			continue
		}

		res := r.runStep(ctx, exec, step, env)
		exec.recordStep(res)
		r.publishStep(stepsView, step, res)

		if res.Conclusion == "failure" {
			jobFailed = true
			if firstErr == nil {
				firstErr = res.Err
				if firstErr == nil {
					firstErr = fmt.Errorf("step %q exited with code %d", step.DisplayName(), res.ExitCode)
				}
			}
		}
	}

	if jobFailed {
		return Failed, ReasonStepFailed, firstErr
	}

	r.evaluateJobOutputs(ctx, exec, stepsView, baseVars)
	return Succeeded, ReasonNone, nil
}

// runStep resolves one step's inputs and hands it to the command or action
// runner, retrying per the step's policy.
func (r *Run) runStep(ctx context.Context, exec *JobExecution, step *model.Step, env expr.Env) StepResult {
	log := ctxlog.FromContext(ctx).With("job", exec.ID, "step", step.DisplayName())
	log.Info("▶️ Starting step")

	res := StepResult{Step: step}
	fail := func(err error) StepResult {
		res.Err = err
		res.Outcome = "failure"
		res.Conclusion = conclude(res.Outcome, step)
		log.Warn("❌ Step failed", "error", err)
		return res
	}

	stepVars, err := r.eval.InterpolateMap(step.Env, env)
	if err != nil {
		return fail(fmt.Errorf("step env: %w", err))
	}
	procEnv := mergeEnv(env.Vars, stepVars)

	outFile, err := os.CreateTemp("", "loomci-output-*")
	if err != nil {
		return fail(fmt.Errorf("output file: %w", err))
	}
	outPath := outFile.Name()
	outFile.Close()
	defer os.Remove(outPath)
	procEnv[runner.OutputFileEnv] = outPath

	redact := r.opts.Secrets.Redact
	stdout := runlog.NewWriter(r.logSink, exec.ID, step.DisplayName(), "stdout", redact)
	stderr := runlog.NewWriter(r.logSink, exec.ID, step.DisplayName(), "stderr", redact)
	defer stdout.Flush()
	defer stderr.Flush()

	dir := r.opts.Workspace
	if step.WorkingDirectory != "" {
		dir = filepath.Join(dir, step.WorkingDirectory)
	}

	var exitCode int
	var actionOutputs map[string]string

	switch step.Kind() {
	case model.StepRun:
		command, err := r.eval.Interpolate(step.Run, env)
		if err != nil {
			return fail(fmt.Errorf("run script: %w", err))
		}
		spec := runner.CommandSpec{
			Command: command,
			Shell:   step.Shell,
			Dir:     dir,
			Env:     procEnv,
			Stdout:  stdout,
			Stderr:  stderr,
		}
		result, err := r.runCommand(ctx, spec, step.Retry)
		if err != nil {
			return fail(err)
		}
		exitCode = result.ExitCode

	case model.StepUses:
		with, err := r.eval.InterpolateMap(step.With, env)
		if err != nil {
			return fail(fmt.Errorf("with inputs: %w", err))
		}
		spec := runner.ActionSpec{
			Uses:   step.Uses,
			With:   with,
			Env:    procEnv,
			Dir:    dir,
			Stdout: stdout,
			Stderr: stderr,
		}
		result, err := r.runAction(ctx, spec, step.Retry)
		if err != nil {
			return fail(err)
		}
		exitCode = result.ExitCode
		actionOutputs = result.Outputs
	}

	res.ExitCode = exitCode
	res.Outputs = mergeEnv(actionOutputs, runner.ReadOutputFile(outPath))

	if exitCode != 0 {
		res.Outcome = "failure"
	} else {
		res.Outcome = "success"
	}
	res.Conclusion = conclude(res.Outcome, step)

	log.Info("✅ Finished step", "outcome", res.Outcome, "exit_code", exitCode)
	return res
}

// runCommand applies the step's retry policy around the command runner.
// A non-zero exit counts as a retriable failure; the final attempt's
// result is what the step reports.
func (r *Run) runCommand(ctx context.Context, spec runner.CommandSpec, policy *model.Retry) (runner.CommandResult, error) {
	if policy == nil || policy.Attempts <= 1 {
		return r.opts.Commands.RunCommand(ctx, spec)
	}

	var last runner.CommandResult
	err := retry.Do(
		func() error {
			result, err := r.opts.Commands.RunCommand(ctx, spec)
			if err != nil {
				return err
			}
			last = result
			if result.ExitCode != 0 {
				return fmt.Errorf("exit code %d", result.ExitCode)
			}
			return nil
		},
		retryOptions(ctx, policy)...,
	)
	if last.ExitCode != 0 {
		// The command ran and kept failing; surface the exit code, not a
		// retry error.
		return last, nil
	}
	return last, err
}

func (r *Run) runAction(ctx context.Context, spec runner.ActionSpec, policy *model.Retry) (runner.ActionResult, error) {
	if policy == nil || policy.Attempts <= 1 {
		return r.opts.Actions.RunAction(ctx, spec)
	}

	var last runner.ActionResult
	var lastErr error
	retryErr := retry.Do(
		func() error {
			result, err := r.opts.Actions.RunAction(ctx, spec)
			lastErr = err
			if err != nil {
				return err
			}
			last = result
			if result.ExitCode != 0 {
				return fmt.Errorf("exit code %d", result.ExitCode)
			}
			return nil
		},
		retryOptions(ctx, policy)...,
	)
	if lastErr != nil {
		return last, lastErr
	}
	if last.ExitCode != 0 {
		return last, nil
	}
	return last, retryErr
}

func retryOptions(ctx context.Context, policy *model.Retry) []retry.Option {
	delayType := retry.FixedDelay
	if policy.Backoff {
		delayType = retry.BackOffDelay
	}
	return []retry.Option{
		retry.Attempts(uint(policy.Attempts)),
		retry.Delay(policy.Delay),
		retry.DelayType(delayType),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	}
}

// jobVars resolves workflow plus job environment once per job. Job env
// values may reference the event, needs and matrix contexts.
func (r *Run) jobVars(exec *JobExecution, stepsView map[string]any, jobFailed bool) (map[string]string, error) {
	env := r.stepEnv(exec, stepsView, r.Workflow.Env, jobFailed, false)
	jobEnv, err := r.eval.InterpolateMap(exec.Job.Env, env)
	if err != nil {
		return nil, err
	}
	return mergeEnv(r.Workflow.Env, jobEnv), nil
}

// stepEnv builds the expression environment a step sees: deps are settled
// by now, so the status functions reflect the job's own progress.
func (r *Run) stepEnv(exec *JobExecution, stepsView map[string]any, vars map[string]string, jobFailed, cancelled bool) expr.Env {
	return expr.Env{
		GitHub:    r.Context.GitHubView(),
		Matrix:    map[string]any(exec.Combo),
		Needs:     r.Context.NeedsView(exec.Job.Needs),
		Steps:     stepsView,
		Vars:      vars,
		Secrets:   r.opts.Secrets.All(),
		Succeeded: !jobFailed && !cancelled,
		Failed:    jobFailed,
		Cancelled: cancelled,
	}
}

// publishStep exposes a finished step under steps.<id> for later steps.
// Anonymous steps stay invisible.
func (r *Run) publishStep(stepsView map[string]any, step *model.Step, res StepResult) {
	if step.ID == "" {
		return
	}
	outputs := make(map[string]any, len(res.Outputs))
	for k, v := range res.Outputs {
		outputs[k] = v
	}
	stepsView[step.ID] = map[string]any{
		"outputs":    outputs,
		"outcome":    res.Outcome,
		"conclusion": res.Conclusion,
	}
}

// evaluateJobOutputs resolves the job's outputs mapping after all steps
// succeeded. An output that cannot resolve becomes empty rather than
// failing a job whose work is already done.
func (r *Run) evaluateJobOutputs(ctx context.Context, exec *JobExecution, stepsView map[string]any, vars map[string]string) {
	if len(exec.Job.Outputs) == 0 {
		return
	}
	env := r.stepEnv(exec, stepsView, vars, false, false)

	resolved := make(map[string]string, len(exec.Job.Outputs))
	for name, raw := range exec.Job.Outputs {
		value, err := r.eval.Interpolate(raw, env)
		if err != nil {
			ctxlog.FromContext(ctx).Warn("job output did not resolve",
				"job", exec.ID, "output", name, "error", err)
			value = ""
		}
		resolved[name] = value
	}

	exec.mu.Lock()
	exec.outputs = resolved
	exec.mu.Unlock()
}

// conclude downgrades a failure to success for continue-on-error steps.
// The raw outcome is preserved separately on the StepResult.
func conclude(outcome string, step *model.Step) string {
	if outcome == "failure" && step.ContinueOnError {
		return "success"
	}
	return outcome
}

func (e *JobExecution) recordStep(res StepResult) {
	e.mu.Lock()
	e.steps = append(e.steps, res)
	e.mu.Unlock()
}
