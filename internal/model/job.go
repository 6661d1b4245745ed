// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the Job structure: the node type of the dependency
// graph walked by the scheduler.
package model

import "time"

// Job is one entry of the `jobs` mapping.
type Job struct {
	// ID is the mapping key; Name is the optional display name.
	ID   string
	Name string

	// RunsOn names the runner requirement. The engine treats it as an
	// opaque label; provisioning is a collaborator's concern.
	RunsOn string

	// Needs lists job ids that must reach a terminal state before this
	// job may start. Every entry is validated to name an existing job.
	Needs []string

	// If is the raw condition expression. Empty means the default
	// condition, success().
	If string

	// Strategy holds matrix expansion settings, nil when absent.
	Strategy *Strategy

	// Timeout bounds a single execution of this job. Zero means the
	// engine default applies.
	Timeout time.Duration

	// Env is job-level environment, layered over the workflow's.
	Env map[string]string

	// Outputs maps output name to an expression evaluated against the
	// job's steps context when the job succeeds. Dependents read the
	// results through needs.<id>.outputs.
	Outputs map[string]string

	// Steps execute strictly sequentially, exactly in declared order.
	Steps []*Step
}

// Condition returns the job's condition expression, defaulted.
func (j *Job) Condition() string {
	if j.If == "" {
		return "success()"
	}
	return j.If
}

// FailFast reports whether a matrix sibling failure cancels the rest.
// Matches the reference platform default of true.
func (j *Job) FailFast() bool {
	if j.Strategy == nil || j.Strategy.FailFast == nil {
		return true
	}
	return *j.Strategy.FailFast
}

// Strategy groups the matrix with its fan-out policy.
type Strategy struct {
	Matrix   *Matrix
	FailFast *bool
}
