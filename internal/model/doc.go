// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package model provides the Go struct representation of a workflow
// document. Its core purpose is to create a strongly-typed, in-memory model
// of the user's definitions by parsing the raw YAML files.
//
// # Core Concepts
//
// The model is built around a few key structures:
//
//   - Workflow: the root container. A named set of Triggers plus a mapping of
//     job id to Job. Immutable once parsed.
//
//   - Trigger: an (event type, filter) pair. An incoming Event starts a Run
//     of every workflow with at least one matching Trigger.
//
//   - Job: a unit of scheduled work composed of ordered Steps, runnable
//     independently of other jobs modulo its declared `needs` edges.
//
//   - Step: the smallest unit of execution. A tagged variant: exactly one of
//     a shell command (`run`) or a delegated action reference (`uses`).
//
//   - Matrix: a declared set of axes whose cross product expands one Job
//     declaration into many independent executions.
//
//   - Event: the structured payload delivered by an external hosting
//     platform (push, pull_request, schedule, and so on).
//
// Why a separate model package?
//
// The model is the contract between parsing, trigger matching, and
// scheduling. The parser produces it, the dispatcher matches against it, and
// the scheduler consumes it without ever touching YAML. Declaration order is
// preserved everywhere (JobOrder, axis order) because scheduling order is
// defined to be deterministic.
package model
