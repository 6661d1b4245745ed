// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the run-scoped Context. There is deliberately no
// process-wide state: every Run owns exactly one Context, created at run
// start and discarded at run end. Job results are published exactly once,
// on completion, and DAG ordering guarantees a dependent only reads results
// published before it started; the mutex below only provides the memory
// visibility for that hand-off.
package model

import "sync"

// NeedsResult is what a completed job exposes to its dependents.
type NeedsResult struct {
	// Result is the terminal state name: "success", "failure",
	// "cancelled" or "skipped".
	Result string

	// Outputs holds the job's evaluated `outputs` mapping.
	Outputs map[string]string
}

// Context is the per-run state visible to expressions and step executors.
// Secrets are readable by expressions and injected into step environments,
// but every log sink is wrapped so their values never appear in output.
type Context struct {
	RunID    string
	Workflow string
	Event    *Event

	// Env is the workflow-level environment.
	Env map[string]string

	// Secrets is read-only after run start.
	Secrets map[string]string

	mu    sync.RWMutex
	needs map[string]NeedsResult
}

// NewContext builds the Context for one Run.
func NewContext(runID, workflow string, event *Event, env, secrets map[string]string) *Context {
	if env == nil {
		env = map[string]string{}
	}
	if secrets == nil {
		secrets = map[string]string{}
	}
	return &Context{
		RunID:    runID,
		Workflow: workflow,
		Event:    event,
		Env:      env,
		Secrets:  secrets,
		needs:    make(map[string]NeedsResult),
	}
}

// PublishJobResult records a job's terminal result. Called exactly once per
// job id, by the scheduler, after the job reached a terminal state.
func (c *Context) PublishJobResult(jobID string, res NeedsResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.needs[jobID] = res
}

// JobResult returns the published result for a job id.
func (c *Context) JobResult(jobID string) (NeedsResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.needs[jobID]
	return res, ok
}

// NeedsView builds the needs.* namespace for a job that declared the given
// dependency ids.
func (c *Context) NeedsView(ids []string) map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	view := make(map[string]any, len(ids))
	for _, id := range ids {
		res, ok := c.needs[id]
		if !ok {
			continue
		}
		outputs := make(map[string]any, len(res.Outputs))
		for k, v := range res.Outputs {
			outputs[k] = v
		}
		view[id] = map[string]any{
			"result":  res.Result,
			"outputs": outputs,
		}
	}
	return view
}

// GitHubView builds the github.* namespace exposed to expressions.
func (c *Context) GitHubView() map[string]any {
	ev := c.Event
	if ev == nil {
		ev = &Event{}
	}
	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	inputs := make(map[string]any, len(ev.Inputs))
	for k, v := range ev.Inputs {
		inputs[k] = v
	}
	return map[string]any{
		"event_name": ev.Type,
		"event":      payload,
		"repository": ev.Repository,
		"actor":      ev.Actor,
		"ref":        ev.Ref,
		"ref_name":   refName(ev),
		"sha":        ev.SHA,
		"run_id":     c.RunID,
		"workflow":   c.Workflow,
		"inputs":     inputs,
	}
}

func refName(ev *Event) string {
	if b := ev.Branch(); b != "" {
		return b
	}
	if t := ev.Tag(); t != "" {
		return t
	}
	return ev.Ref
}
