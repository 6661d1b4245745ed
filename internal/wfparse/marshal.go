// This file renders a parsed Workflow back into its YAML document form.
// The encoder builds yaml.Node trees by hand so that job, step and matrix
// axis declaration order survives the round trip; plain map marshalling
// would reorder them.
package wfparse

import (
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vk/loomci/internal/model"
)

// Marshal serializes a Workflow into a YAML document that Parse accepts
// and that parses back into an equivalent Workflow.
func Marshal(wf *model.Workflow) ([]byte, error) {
	root := newMapping()
	if wf.Name != "" {
		root.add("name", scalar(wf.Name))
	}

	on, err := triggersNode(wf.On)
	if err != nil {
		return nil, err
	}
	root.add("on", on)

	if len(wf.Permissions) > 0 {
		root.add("permissions", stringMapNode(wf.Permissions))
	}
	if len(wf.Env) > 0 {
		root.add("env", stringMapNode(wf.Env))
	}

	jobs := newMapping()
	for _, job := range wf.OrderedJobs() {
		node, err := jobNode(job)
		if err != nil {
			return nil, fmt.Errorf("jobs.%s: %w", job.ID, err)
		}
		jobs.add(job.ID, node)
	}
	root.add("jobs", jobs.node)

	return yaml.Marshal(root.node)
}

func triggersNode(triggers []model.Trigger) (*yaml.Node, error) {
	on := newMapping()
	for _, t := range triggers {
		if t.Event == model.EventSchedule {
			entries := &yaml.Node{Kind: yaml.SequenceNode}
			for _, cron := range t.Cron {
				entry := newMapping()
				entry.add("cron", scalar(cron))
				entries.Content = append(entries.Content, entry.node)
			}
			on.add(t.Event, entries)
			continue
		}

		filter := newMapping()
		filter.addStrings("branches", t.Branches)
		filter.addStrings("branches-ignore", t.BranchesIgnore)
		filter.addStrings("tags", t.Tags)
		filter.addStrings("tags-ignore", t.TagsIgnore)
		filter.addStrings("types", t.Types)
		if len(filter.node.Content) == 0 {
			on.add(t.Event, nullNode())
			continue
		}
		on.add(t.Event, filter.node)
	}
	return on.node, nil
}

func jobNode(job *model.Job) (*yaml.Node, error) {
	m := newMapping()
	if job.Name != "" {
		m.add("name", scalar(job.Name))
	}
	if job.RunsOn != "" {
		m.add("runs-on", scalar(job.RunsOn))
	}
	m.addStrings("needs", job.Needs)
	if job.If != "" {
		m.add("if", scalar(job.If))
	}
	if job.Strategy != nil {
		strategy, err := strategyNode(job.Strategy)
		if err != nil {
			return nil, err
		}
		m.add("strategy", strategy)
	}
	if job.Timeout > 0 {
		m.add("timeout-minutes", scalar(int(job.Timeout/time.Minute)))
	}
	if len(job.Env) > 0 {
		m.add("env", stringMapNode(job.Env))
	}
	if len(job.Outputs) > 0 {
		m.add("outputs", stringMapNode(job.Outputs))
	}

	steps := &yaml.Node{Kind: yaml.SequenceNode}
	for _, step := range job.Steps {
		steps.Content = append(steps.Content, stepNode(step))
	}
	m.add("steps", steps)
	return m.node, nil
}

func strategyNode(s *model.Strategy) (*yaml.Node, error) {
	m := newMapping()
	if s.Matrix != nil {
		matrix := newMapping()
		for _, axis := range s.Matrix.AxisOrder {
			values := &yaml.Node{}
			if err := values.Encode(s.Matrix.Axes[axis]); err != nil {
				return nil, fmt.Errorf("matrix.%s: %w", axis, err)
			}
			matrix.add(axis, values)
		}
		m.add("matrix", matrix.node)
	}
	if s.FailFast != nil {
		m.add("fail-fast", scalar(*s.FailFast))
	}
	return m.node, nil
}

func stepNode(step *model.Step) *yaml.Node {
	m := newMapping()
	if step.ID != "" {
		m.add("id", scalar(step.ID))
	}
	if step.Name != "" {
		m.add("name", scalar(step.Name))
	}
	switch step.Kind() {
	case model.StepRun:
		m.add("run", scalar(step.Run))
		if step.Shell != "" {
			m.add("shell", scalar(step.Shell))
		}
	case model.StepUses:
		m.add("uses", scalar(step.Uses))
		if len(step.With) > 0 {
			m.add("with", stringMapNode(step.With))
		}
	}
	if step.WorkingDirectory != "" {
		m.add("working-directory", scalar(step.WorkingDirectory))
	}
	if len(step.Env) > 0 {
		m.add("env", stringMapNode(step.Env))
	}
	if step.If != "" {
		m.add("if", scalar(step.If))
	}
	if step.ContinueOnError {
		m.add("continue-on-error", scalar(true))
	}
	if step.Retry != nil {
		retry := newMapping()
		retry.add("attempts", scalar(step.Retry.Attempts))
		if step.Retry.Delay > 0 {
			retry.add("delay", scalar(step.Retry.Delay.String()))
		}
		if step.Retry.Backoff {
			retry.add("backoff", scalar(true))
		}
		m.add("retry", retry.node)
	}
	return m.node
}

type mappingBuilder struct {
	node *yaml.Node
}

func newMapping() *mappingBuilder {
	return &mappingBuilder{node: &yaml.Node{Kind: yaml.MappingNode}}
}

func (m *mappingBuilder) add(key string, value *yaml.Node) {
	m.node.Content = append(m.node.Content, scalar(key), value)
}

func (m *mappingBuilder) addStrings(key string, values []string) {
	if len(values) == 0 {
		return
	}
	seq := &yaml.Node{}
	// Encoding a []string never fails.
	_ = seq.Encode(values)
	m.add(key, seq)
}

func scalar(v any) *yaml.Node {
	n := &yaml.Node{}
	_ = n.Encode(v)
	return n
}

func nullNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
}

// stringMapNode renders a string map with sorted keys, so serialization is
// deterministic. These maps carry no declaration-order semantics.
func stringMapNode(m map[string]string) *yaml.Node {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := newMapping()
	for _, k := range keys {
		out.add(k, scalar(m[k]))
	}
	return out.node
}
