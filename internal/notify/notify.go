// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package notify posts run completion summaries to a configured webhook.
package notify

import (
	"context"
	"fmt"
	"time"

	"resty.dev/v3"

	"github.com/vk/loomci/internal/ctxlog"
	"github.com/vk/loomci/internal/run"
)

// Summary is the JSON document delivered to the webhook.
type Summary struct {
	RunID    string       `json:"run_id"`
	Workflow string       `json:"workflow"`
	Event    string       `json:"event"`
	Status   string       `json:"status"`
	Jobs     []JobSummary `json:"jobs"`
}

type JobSummary struct {
	ID     string `json:"id"`
	Result string `json:"result"`
	Reason string `json:"reason,omitempty"`
}

// FromRun builds a Summary from a settled run.
func FromRun(r *run.Run) Summary {
	s := Summary{
		RunID:    r.ID,
		Workflow: r.Workflow.Name,
		Event:    r.Event.Type,
		Status:   r.Status().String(),
	}
	for _, exec := range r.Executions() {
		s.Jobs = append(s.Jobs, JobSummary{
			ID:     exec.ID,
			Result: exec.State().String(),
			Reason: string(exec.Reason()),
		})
	}
	return s
}

// Notifier delivers summaries to one webhook URL.
type Notifier struct {
	client *resty.Client
	url    string
}

func New(url string) *Notifier {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")
	return &Notifier{client: client, url: url}
}

// Notify posts the summary. A non-2xx response is an error; delivery is
// best effort and callers typically just log it.
func (n *Notifier) Notify(ctx context.Context, summary Summary) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(summary).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("notify webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("notify webhook: unexpected status %s", resp.Status())
	}
	ctxlog.FromContext(ctx).Debug("notified webhook", "run_id", summary.RunID, "status", summary.Status)
	return nil
}

// Close releases the underlying HTTP client.
func (n *Notifier) Close() error {
	return n.client.Close()
}
