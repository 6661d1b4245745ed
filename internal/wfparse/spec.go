// This file holds the raw YAML-facing structures. They exist only as a
// decoding target; Parse converts them into the immutable model types.
package wfparse

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// document mirrors the top level of a workflow file.
type document struct {
	Name        string            `yaml:"name"`
	On          onSpec            `yaml:"on"`
	Permissions map[string]string `yaml:"permissions"`
	Env         map[string]string `yaml:"env"`
	Jobs        orderedJobs       `yaml:"jobs"`
}

// knownTopLevelKeys gates strict-mode rejection of unrecognized keys.
var knownTopLevelKeys = map[string]struct{}{
	"name":        {},
	"on":          {},
	"permissions": {},
	"env":         {},
	"jobs":        {},
}

// onSpec accepts the three shapes of the `on` key: a single event name, a
// list of event names, or a mapping of event name to filter spec.
type onSpec struct {
	entries []onEntry
}

type onEntry struct {
	event  string
	filter filterSpec
}

type filterSpec struct {
	Branches       stringList     `yaml:"branches"`
	BranchesIgnore stringList     `yaml:"branches-ignore"`
	Tags           stringList     `yaml:"tags"`
	TagsIgnore     stringList     `yaml:"tags-ignore"`
	Types          stringList     `yaml:"types"`
	Schedule       []scheduleSpec `yaml:"-"`
}

type scheduleSpec struct {
	Cron string `yaml:"cron"`
}

func (o *onSpec) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var event string
		if err := value.Decode(&event); err != nil {
			return err
		}
		o.entries = []onEntry{{event: event}}
		return nil

	case yaml.SequenceNode:
		var events []string
		if err := value.Decode(&events); err != nil {
			return err
		}
		for _, event := range events {
			o.entries = append(o.entries, onEntry{event: event})
		}
		return nil

	case yaml.MappingNode:
		// Content holds alternating key/value nodes.
		for i := 0; i+1 < len(value.Content); i += 2 {
			keyNode, valNode := value.Content[i], value.Content[i+1]
			entry := onEntry{event: keyNode.Value}

			switch {
			case valNode.Tag == "!!null":
				// `push:` with no filter body.
			case entry.event == "schedule":
				if err := valNode.Decode(&entry.filter.Schedule); err != nil {
					return fmt.Errorf("on.schedule: %w", err)
				}
			default:
				if err := valNode.Decode(&entry.filter); err != nil {
					return fmt.Errorf("on.%s: %w", entry.event, err)
				}
			}
			o.entries = append(o.entries, entry)
		}
		return nil
	}
	return fmt.Errorf("on: expected event name, list, or mapping")
}

// stringList accepts either a scalar or a sequence of scalars.
type stringList []string

func (s *stringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*s = []string{single}
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := value.Decode(&many); err != nil {
			return err
		}
		*s = many
		return nil
	}
	return fmt.Errorf("expected a string or a list of strings")
}

// orderedJobs preserves job declaration order, which the scheduler relies
// on for deterministic eligibility tie-breaks.
type orderedJobs struct {
	byID  map[string]*jobSpec
	order []string
}

func (j *orderedJobs) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("jobs: expected a mapping of job id to job")
	}
	j.byID = make(map[string]*jobSpec)
	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode, valNode := value.Content[i], value.Content[i+1]
		spec := &jobSpec{}
		if err := valNode.Decode(spec); err != nil {
			return fmt.Errorf("jobs.%s: %w", keyNode.Value, err)
		}
		j.byID[keyNode.Value] = spec
		j.order = append(j.order, keyNode.Value)
	}
	return nil
}

type jobSpec struct {
	Name           string            `yaml:"name"`
	RunsOn         string            `yaml:"runs-on"`
	Needs          stringList        `yaml:"needs"`
	If             string            `yaml:"if"`
	Strategy       *strategySpec     `yaml:"strategy"`
	TimeoutMinutes int               `yaml:"timeout-minutes"`
	Env            map[string]string `yaml:"env"`
	Outputs        map[string]string `yaml:"outputs"`
	Steps          []*stepSpec       `yaml:"steps"`
}

type strategySpec struct {
	Matrix   *matrixSpec `yaml:"matrix"`
	FailFast *bool       `yaml:"fail-fast"`
}

// matrixSpec preserves axis declaration order for deterministic expansion.
type matrixSpec struct {
	axes  map[string][]any
	order []string
}

func (m *matrixSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("matrix: expected a mapping of axis to value list")
	}
	m.axes = make(map[string][]any)
	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode, valNode := value.Content[i], value.Content[i+1]
		var values []any
		if err := valNode.Decode(&values); err != nil {
			return fmt.Errorf("matrix.%s: expected a list of values", keyNode.Value)
		}
		m.axes[keyNode.Value] = values
		m.order = append(m.order, keyNode.Value)
	}
	return nil
}

type stepSpec struct {
	ID               string            `yaml:"id"`
	Name             string            `yaml:"name"`
	Run              string            `yaml:"run"`
	Uses             string            `yaml:"uses"`
	With             map[string]string `yaml:"with"`
	Env              map[string]string `yaml:"env"`
	If               string            `yaml:"if"`
	ContinueOnError  bool              `yaml:"continue-on-error"`
	Shell            string            `yaml:"shell"`
	WorkingDirectory string            `yaml:"working-directory"`
	Retry            *retrySpec        `yaml:"retry"`
}

type retrySpec struct {
	Attempts int    `yaml:"attempts"`
	Delay    string `yaml:"delay"`
	Backoff  bool   `yaml:"backoff"`
}
