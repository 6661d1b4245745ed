// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package dispatch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vk/loomci/internal/dispatch"
	"github.com/vk/loomci/internal/model"
)

func workflow(name string, triggers ...model.Trigger) *model.Workflow {
	return &model.Workflow{Name: name, On: triggers}
}

type recorder struct {
	started []string
	events  []*model.Event
}

func (r *recorder) start(_ context.Context, wf *model.Workflow, ev *model.Event) {
	r.started = append(r.started, wf.Name)
	r.events = append(r.events, ev)
}

func TestMatches_BranchFilters(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		trigger model.Trigger
		ref     string
		want    bool
	}{
		{
			name:    "no filters accepts any branch",
			trigger: model.Trigger{Event: model.EventPush},
			ref:     "refs/heads/main",
			want:    true,
		},
		{
			name:    "exact branch",
			trigger: model.Trigger{Event: model.EventPush, Branches: []string{"main"}},
			ref:     "refs/heads/main",
			want:    true,
		},
		{
			name:    "glob branch",
			trigger: model.Trigger{Event: model.EventPush, Branches: []string{"release/**"}},
			ref:     "refs/heads/release/v2/hotfix",
			want:    true,
		},
		{
			name:    "branch not in filter",
			trigger: model.Trigger{Event: model.EventPush, Branches: []string{"main"}},
			ref:     "refs/heads/feature",
			want:    false,
		},
		{
			name:    "ignore wins",
			trigger: model.Trigger{Event: model.EventPush, Branches: []string{"**"}, BranchesIgnore: []string{"wip/*"}},
			ref:     "refs/heads/wip/thing",
			want:    false,
		},
		{
			name:    "tag push against branch-only filter",
			trigger: model.Trigger{Event: model.EventPush, Branches: []string{"main"}},
			ref:     "refs/tags/v1.0.0",
			want:    false,
		},
		{
			name:    "tag glob",
			trigger: model.Trigger{Event: model.EventPush, Tags: []string{"v*"}},
			ref:     "refs/tags/v1.0.0",
			want:    true,
		},
		{
			name:    "branch push against tag-only filter",
			trigger: model.Trigger{Event: model.EventPush, Tags: []string{"v*"}},
			ref:     "refs/heads/main",
			want:    false,
		},
		{
			name:    "tags-ignore",
			trigger: model.Trigger{Event: model.EventPush, Tags: []string{"v*"}, TagsIgnore: []string{"v*-rc*"}},
			ref:     "refs/tags/v2.0.0-rc1",
			want:    false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ev := &model.Event{Type: model.EventPush, Ref: tc.ref}
			require.Equal(t, tc.want, dispatch.Matches(tc.trigger, ev))
		})
	}
}

func TestMatches_ActivityTypes(t *testing.T) {
	t.Parallel()

	trigger := model.Trigger{Event: model.EventIssues, Types: []string{"opened", "labeled"}}

	require.True(t, dispatch.Matches(trigger, &model.Event{Type: model.EventIssues, Action: "opened"}))
	require.False(t, dispatch.Matches(trigger, &model.Event{Type: model.EventIssues, Action: "closed"}))
	require.True(t, dispatch.Matches(model.Trigger{Event: model.EventIssues}, &model.Event{Type: model.EventIssues, Action: "closed"}))
}

func TestMatches_ManualAndScheduleNeverMatchExternalEvents(t *testing.T) {
	t.Parallel()

	manual := model.Trigger{Event: model.EventWorkflowDispatch}
	schedule := model.Trigger{Event: model.EventSchedule, Cron: []string{"0 0 * * *"}}

	require.False(t, dispatch.Matches(manual, &model.Event{Type: model.EventWorkflowDispatch}))
	require.False(t, dispatch.Matches(schedule, &model.Event{Type: model.EventSchedule}))
}

func TestDispatcher_RoutesToMatchingWorkflows(t *testing.T) {
	t.Parallel()

	// Arrange
	rec := &recorder{}
	d := dispatch.New(rec.start)
	d.RegisterAll([]*model.Workflow{
		workflow("ci", model.Trigger{Event: model.EventPush}),
		workflow("docs", model.Trigger{Event: model.EventPush, Branches: []string{"docs/*"}}),
		workflow("release", model.Trigger{Event: model.EventRelease, Types: []string{"published"}}),
	})

	// Act
	started := d.Dispatch(context.Background(), &model.Event{Type: model.EventPush, Ref: "refs/heads/main"})

	// Assert
	require.Equal(t, []string{"ci"}, started)
	require.Equal(t, []string{"ci"}, rec.started)
}

func TestDispatcher_Manual(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	d := dispatch.New(rec.start)
	d.Register(workflow("deploy", model.Trigger{Event: model.EventWorkflowDispatch}))
	d.Register(workflow("ci", model.Trigger{Event: model.EventPush}))

	err := d.DispatchManual(context.Background(), "deploy", map[string]string{"environment": "staging"})
	require.NoError(t, err)
	require.Equal(t, []string{"deploy"}, rec.started)
	require.Equal(t, "staging", rec.events[0].Inputs["environment"])

	var noManual *dispatch.NoManualTriggerError
	require.ErrorAs(t, d.DispatchManual(context.Background(), "ci", nil), &noManual)

	var unknown *dispatch.UnknownWorkflowError
	require.ErrorAs(t, d.DispatchManual(context.Background(), "ghost", nil), &unknown)
}

func TestScheduler_FiresOncePerBoundary(t *testing.T) {
	t.Parallel()

	// Arrange: a simulated clock stepping across one midnight boundary.
	now := time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	rec := &recorder{}
	d := dispatch.New(rec.start)
	wf := workflow("nightly", model.Trigger{Event: model.EventSchedule, Cron: []string{"0 0 * * *"}})
	d.Register(wf)

	s := dispatch.NewScheduler(d, dispatch.WithClock(clock))
	require.NoError(t, s.AddWorkflow(wf))

	// Act / Assert: nothing before midnight.
	require.Empty(t, s.CheckDue(context.Background()))

	// Crossing midnight fires exactly once.
	now = now.Add(90 * time.Minute)
	require.Equal(t, []string{"nightly"}, s.CheckDue(context.Background()))
	require.Empty(t, s.CheckDue(context.Background()))

	// The next boundary fires again.
	now = now.Add(24 * time.Hour)
	require.Equal(t, []string{"nightly"}, s.CheckDue(context.Background()))

	require.Len(t, rec.events, 2)
	require.Equal(t, model.EventSchedule, rec.events[0].Type)
	require.Equal(t, "0 0 * * *", rec.events[0].Payload["schedule"])
}

func TestScheduler_RejectsInvalidCron(t *testing.T) {
	t.Parallel()

	d := dispatch.New(func(context.Context, *model.Workflow, *model.Event) {})
	s := dispatch.NewScheduler(d)
	wf := workflow("broken", model.Trigger{Event: model.EventSchedule, Cron: []string{"not a cron"}})

	require.Error(t, s.AddWorkflow(wf))
}
