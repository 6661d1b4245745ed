// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package dispatch routes incoming events to the workflows whose triggers
// match them, and fires schedule triggers from a clock.
package dispatch

import (
	"slices"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/vk/loomci/internal/model"
)

// Matches reports whether a single trigger accepts the event. Schedule
// and manual triggers never match an external event; they fire through
// the Scheduler and DispatchManual respectively.
func Matches(trigger model.Trigger, ev *model.Event) bool {
	if trigger.Event != ev.Type {
		return false
	}
	switch trigger.Event {
	case model.EventSchedule, model.EventWorkflowDispatch:
		return false
	}
	if !refMatches(trigger, ev) {
		return false
	}
	return typeMatches(trigger, ev)
}

// refMatches applies the branch and tag filters. A trigger that only
// filters on tags does not accept branch pushes, and vice versa.
func refMatches(trigger model.Trigger, ev *model.Event) bool {
	branch := ev.Branch()
	tag := ev.Tag()
	if branch == "" && tag == "" {
		// Events without a pushed ref (issues, manual API calls with a
		// bare ref) are not subject to ref filters.
		return true
	}

	hasBranchFilters := len(trigger.Branches) > 0 || len(trigger.BranchesIgnore) > 0
	hasTagFilters := len(trigger.Tags) > 0 || len(trigger.TagsIgnore) > 0

	if branch != "" {
		if !hasBranchFilters && hasTagFilters {
			return false
		}
		if len(trigger.Branches) > 0 && !anyGlob(trigger.Branches, branch) {
			return false
		}
		return !anyGlob(trigger.BranchesIgnore, branch)
	}

	if !hasTagFilters && hasBranchFilters {
		return false
	}
	if len(trigger.Tags) > 0 && !anyGlob(trigger.Tags, tag) {
		return false
	}
	return !anyGlob(trigger.TagsIgnore, tag)
}

// typeMatches applies the activity-type filter. An empty filter accepts
// every activity type.
func typeMatches(trigger model.Trigger, ev *model.Event) bool {
	if len(trigger.Types) == 0 {
		return true
	}
	return slices.Contains(trigger.Types, ev.Action)
}

func anyGlob(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
