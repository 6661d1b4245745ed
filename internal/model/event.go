// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the Event structure delivered by an external hosting
// platform. The engine never fabricates events other than schedule ticks.
package model

import "strings"

// Event is one structured occurrence on the hosting platform.
type Event struct {
	// Type is the event-type tag matched against Trigger.Event.
	Type string

	// Repository is the owner/name slug the event belongs to.
	Repository string

	// Actor is the login of whoever caused the event.
	Actor string

	// Ref is the full git ref ("refs/heads/main", "refs/tags/v1.0.0").
	Ref string

	// SHA is the commit the event points at.
	SHA string

	// Action is the activity type of pull_request/issues/release events
	// ("opened", "closed", "published", ...).
	Action string

	// Payload carries the raw event body, exposed to expressions as
	// github.event.
	Payload map[string]any

	// Inputs carries caller-supplied values for workflow_dispatch.
	Inputs map[string]string
}

// Branch returns the short branch name for branch refs, or "".
func (e *Event) Branch() string {
	if name, ok := strings.CutPrefix(e.Ref, "refs/heads/"); ok {
		return name
	}
	return ""
}

// Tag returns the short tag name for tag refs, or "".
func (e *Event) Tag() string {
	if name, ok := strings.CutPrefix(e.Ref, "refs/tags/"); ok {
		return name
	}
	return ""
}
