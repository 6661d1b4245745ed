// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the Workflow root container and its trigger spec.
package model

// Workflow is the parsed, validated form of one workflow document.
// It is immutable once returned by the parser.
type Workflow struct {
	// Name is the `name` key, falling back to the source file name.
	Name string

	// Source is the path the document was loaded from, for error reporting.
	Source string

	// On holds the trigger spec. A valid workflow has at least one trigger.
	On []Trigger

	// Permissions is parsed and carried for downstream collaborators but
	// never enforced by the engine itself.
	Permissions map[string]string

	// Env is workflow-level environment, inherited by every job.
	Env map[string]string

	// Jobs maps job id to its definition. JobOrder preserves declaration
	// order; map iteration must never drive scheduling decisions.
	Jobs     map[string]*Job
	JobOrder []string
}

// Job returns the job with the given id, or nil.
func (w *Workflow) Job(id string) *Job {
	return w.Jobs[id]
}

// OrderedJobs returns jobs in declaration order.
func (w *Workflow) OrderedJobs() []*Job {
	jobs := make([]*Job, 0, len(w.JobOrder))
	for _, id := range w.JobOrder {
		jobs = append(jobs, w.Jobs[id])
	}
	return jobs
}

// HasTriggerFor reports whether any trigger declares the given event type.
func (w *Workflow) HasTriggerFor(eventType string) bool {
	for _, t := range w.On {
		if t.Event == eventType {
			return true
		}
	}
	return false
}

// Schedules returns every cron entry declared across schedule triggers.
func (w *Workflow) Schedules() []string {
	var crons []string
	for _, t := range w.On {
		if t.Event == EventSchedule {
			crons = append(crons, t.Cron...)
		}
	}
	return crons
}
