// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the Trigger structure: one (event type, filter) pair
// from a workflow's `on` section.
package model

// Recognized event types. The dispatcher is agnostic to how an event
// arrived (webhook, polling, manual API call); these tags only name what
// kind of thing happened.
const (
	EventPush             = "push"
	EventPullRequest      = "pull_request"
	EventIssues           = "issues"
	EventRelease          = "release"
	EventSchedule         = "schedule"
	EventWorkflowDispatch = "workflow_dispatch"
)

// Trigger is a single entry of the `on` spec. Filter fields are optional;
// an empty filter matches every event of the trigger's type.
type Trigger struct {
	// Event is the event-type tag ("push", "pull_request", ...).
	Event string

	// Branches / BranchesIgnore filter push and pull_request events by
	// branch glob. Tags / TagsIgnore filter pushes to tag refs.
	Branches       []string
	BranchesIgnore []string
	Tags           []string
	TagsIgnore     []string

	// Types filters activity events (pull_request, issues, release) by
	// their action, e.g. "opened" or "closed".
	Types []string

	// Cron holds the schedule expressions for "schedule" triggers.
	Cron []string
}
