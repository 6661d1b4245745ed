// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vk/loomci/internal/ctxlog"
	"github.com/vk/loomci/internal/model"
)

// Clock supplies the scheduler's notion of now; tests replace it.
type Clock func() time.Time

// Scheduler fires schedule triggers. Each cron entry keeps its own next
// deadline, so a single poll fires every entry that came due since the
// previous poll exactly once.
type Scheduler struct {
	dispatcher *Dispatcher
	now        Clock

	mu      sync.Mutex
	entries []*cronEntry
}

type cronEntry struct {
	workflow string
	spec     string
	schedule cron.Schedule
	next     time.Time
}

type SchedulerOption func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(now Clock) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

func NewScheduler(d *Dispatcher, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{dispatcher: d, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddWorkflow registers every cron expression of the workflow's schedule
// triggers. Expressions were validated at parse time; an invalid one here
// is skipped.
func (s *Scheduler) AddWorkflow(wf *model.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, spec := range wf.Schedules() {
		schedule, err := cron.ParseStandard(spec)
		if err != nil {
			return err
		}
		s.entries = append(s.entries, &cronEntry{
			workflow: wf.Name,
			spec:     spec,
			schedule: schedule,
			next:     schedule.Next(now),
		})
	}
	return nil
}

// CheckDue fires every entry whose deadline has passed and returns the
// workflow names started. Time moving backwards fires nothing.
func (s *Scheduler) CheckDue(ctx context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var started []string
	for _, entry := range s.entries {
		if entry.next.After(now) {
			continue
		}
		started = append(started, entry.workflow)
		s.fire(ctx, entry)
		entry.next = entry.schedule.Next(now)
	}
	return started
}

func (s *Scheduler) fire(ctx context.Context, entry *cronEntry) {
	wf, ok := s.dispatcher.Workflow(entry.workflow)
	if !ok {
		return
	}
	ctxlog.FromContext(ctx).Info("⏰ Firing schedule", "workflow", entry.workflow, "cron", entry.spec)
	ev := &model.Event{
		Type:    model.EventSchedule,
		Payload: map[string]any{"schedule": entry.spec},
	}
	s.dispatcher.start(ctx, wf, ev)
}

// Run polls at the given interval until the context ends.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckDue(ctx)
		}
	}
}
