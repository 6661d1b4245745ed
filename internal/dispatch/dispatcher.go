// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/loomci/internal/ctxlog"
	"github.com/vk/loomci/internal/model"
)

// Starter launches a run for a workflow that matched an event. The
// dispatcher does not wait for the run to finish.
type Starter func(ctx context.Context, wf *model.Workflow, ev *model.Event)

// UnknownWorkflowError reports a dispatch against a name that was never
// registered.
type UnknownWorkflowError struct {
	Name string
}

func (e *UnknownWorkflowError) Error() string {
	return fmt.Sprintf("unknown workflow %q", e.Name)
}

// NoManualTriggerError reports a manual dispatch against a workflow that
// does not declare workflow_dispatch.
type NoManualTriggerError struct {
	Name string
}

func (e *NoManualTriggerError) Error() string {
	return fmt.Sprintf("workflow %q has no workflow_dispatch trigger", e.Name)
}

// Dispatcher holds the registered workflows and fans events out to them.
type Dispatcher struct {
	start Starter

	mu        sync.RWMutex
	workflows map[string]*model.Workflow
	order     []string
}

func New(start Starter) *Dispatcher {
	return &Dispatcher{
		start:     start,
		workflows: make(map[string]*model.Workflow),
	}
}

// Register adds a workflow; re-registering a name replaces the previous
// definition but keeps its position.
func (d *Dispatcher) Register(wf *model.Workflow) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, seen := d.workflows[wf.Name]; !seen {
		d.order = append(d.order, wf.Name)
	}
	d.workflows[wf.Name] = wf
}

// RegisterAll registers workflows in the given order.
func (d *Dispatcher) RegisterAll(wfs []*model.Workflow) {
	for _, wf := range wfs {
		d.Register(wf)
	}
}

// Workflow returns a registered workflow by name.
func (d *Dispatcher) Workflow(name string) (*model.Workflow, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	wf, ok := d.workflows[name]
	return wf, ok
}

// Workflows returns all registered workflows in registration order.
func (d *Dispatcher) Workflows() []*model.Workflow {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*model.Workflow, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.workflows[name])
	}
	return out
}

// Dispatch starts a run for every registered workflow with a trigger
// matching the event, in registration order, and returns the names it
// started.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *model.Event) []string {
	log := ctxlog.FromContext(ctx)

	var started []string
	for _, wf := range d.Workflows() {
		matched := false
		for _, trigger := range wf.On {
			if Matches(trigger, ev) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		log.Info("🚚 Dispatching event", "event", ev.Type, "workflow", wf.Name)
		started = append(started, wf.Name)
		d.start(ctx, wf, ev)
	}
	return started
}

// DispatchManual starts one workflow by name, carrying the caller's
// inputs. Only workflows declaring workflow_dispatch accept it.
func (d *Dispatcher) DispatchManual(ctx context.Context, name string, inputs map[string]string) error {
	wf, ok := d.Workflow(name)
	if !ok {
		return &UnknownWorkflowError{Name: name}
	}
	if !wf.HasTriggerFor(model.EventWorkflowDispatch) {
		return &NoManualTriggerError{Name: name}
	}

	ev := &model.Event{
		Type:   model.EventWorkflowDispatch,
		Inputs: inputs,
	}
	ctxlog.FromContext(ctx).Info("🚚 Dispatching manual run", "workflow", name)
	d.start(ctx, wf, ev)
	return nil
}
