// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the Step structure, the atomic unit of work within a
// Job. A step is a closed tagged variant: it either runs a shell command or
// delegates to an external action, never both and never neither. The parser
// enforces the invariant, so downstream code may branch on Kind without a
// default case.
package model

import "time"

// StepKind discriminates the two step variants.
type StepKind int

const (
	// StepRun executes shell command text through the command runner.
	StepRun StepKind = iota
	// StepUses delegates to an external action through the action runner.
	StepUses
)

// Step is one entry of a job's `steps` sequence.
type Step struct {
	// ID keys the step's outputs under steps.<id>; optional. Name is the
	// display name, falling back to the command or action reference.
	ID   string
	Name string

	// Run holds command text when Kind is StepRun.
	Run string
	// Shell selects the interpreter for Run ("bash" default, "sh").
	Shell string
	// WorkingDirectory overrides the job workspace for this step.
	WorkingDirectory string

	// Uses holds the action reference (owner/repo@ref) when Kind is StepUses.
	Uses string
	// With maps input names to (possibly interpolated) values for Uses.
	With map[string]string

	// Env is step-level environment, layered over job and workflow env.
	Env map[string]string

	// If is the raw condition expression; empty means success().
	If string

	// ContinueOnError records a failing step without failing the job.
	ContinueOnError bool

	// Retry, when non-nil, wraps only this step's invocation in a bounded
	// retry policy. Never applied by default.
	Retry *Retry
}

// Kind reports which variant this step is.
func (s *Step) Kind() StepKind {
	if s.Uses != "" {
		return StepUses
	}
	return StepRun
}

// Condition returns the step's condition expression, defaulted.
func (s *Step) Condition() string {
	if s.If == "" {
		return "success()"
	}
	return s.If
}

// DisplayName returns the best human-readable label for log lines.
func (s *Step) DisplayName() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.ID != "":
		return s.ID
	case s.Uses != "":
		return s.Uses
	default:
		return s.Run
	}
}

// Retry is an opt-in, per-step retry policy with a bounded attempt count
// and a fixed or exponentially backed-off delay.
type Retry struct {
	Attempts int
	Delay    time.Duration
	Backoff  bool
}
