// Package wfparse parses declarative workflow documents into the model
// types. All structural validation happens here: a Workflow returned by
// Parse is safe to hand to the dispatcher and scheduler. Failures are
// *ParseError values pointing at the offending document path.
package wfparse

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/vk/loomci/internal/ctxlog"
	"github.com/vk/loomci/internal/fsutil"
	"github.com/vk/loomci/internal/model"
)

// Parser converts workflow documents into model.Workflow values.
type Parser struct {
	// strict rejects unknown top-level keys instead of warning.
	strict bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithStrict makes unknown top-level keys a parse error.
func WithStrict(strict bool) Option {
	return func(p *Parser) { p.strict = strict }
}

// New returns a ready Parser.
func New(opts ...Option) *Parser {
	p := &Parser{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse parses and validates one workflow document. name is used for error
// reporting and as the fallback workflow name.
func (p *Parser) Parse(ctx context.Context, name string, contents []byte) (*model.Workflow, error) {
	logger := ctxlog.FromContext(ctx)

	var root yaml.Node
	if err := yaml.Unmarshal(contents, &root); err != nil {
		return nil, &ParseError{Source: name, Msg: "malformed document", Err: err}
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, errAt(name, "", "empty document")
	}

	if err := p.checkTopLevelKeys(name, logger, root.Content[0]); err != nil {
		return nil, err
	}

	var doc document
	if err := root.Decode(&doc); err != nil {
		return nil, &ParseError{Source: name, Msg: "malformed document", Err: err}
	}

	wf := &model.Workflow{
		Name:        doc.Name,
		Source:      name,
		Permissions: doc.Permissions,
		Env:         doc.Env,
		Jobs:        make(map[string]*model.Job),
	}
	if wf.Name == "" {
		wf.Name = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	}

	triggers, err := buildTriggers(name, doc.On)
	if err != nil {
		return nil, err
	}
	wf.On = triggers

	if len(doc.Jobs.order) == 0 {
		return nil, errAt(name, "jobs", "at least one job is required")
	}
	for _, id := range doc.Jobs.order {
		job, err := buildJob(name, id, doc.Jobs.byID[id])
		if err != nil {
			return nil, err
		}
		wf.Jobs[id] = job
		wf.JobOrder = append(wf.JobOrder, id)
	}

	if err := validateNeeds(name, wf); err != nil {
		return nil, err
	}

	logger.Debug("parsed workflow", "workflow", wf.Name, "jobs", len(wf.Jobs), "triggers", len(wf.On))
	return wf, nil
}

// ParseFile parses a workflow document from disk.
func (p *Parser) ParseFile(ctx context.Context, path string) (*model.Workflow, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Source: path, Msg: "reading workflow file", Err: err}
	}
	return p.Parse(ctx, path, contents)
}

// LoadDir parses every .yml/.yaml file under dir. A single bad document
// fails the whole load; partially loaded workflow sets are never returned.
func (p *Parser) LoadDir(ctx context.Context, dir string) ([]*model.Workflow, error) {
	paths, err := fsutil.FindFilesByExtension(dir, ".yml", ".yaml")
	if err != nil {
		return nil, fmt.Errorf("scanning workflow dir: %w", err)
	}

	var workflows []*model.Workflow
	for _, path := range paths {
		wf, err := p.ParseFile(ctx, path)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, nil
}

func (p *Parser) checkTopLevelKeys(source string, logger *slog.Logger, mapping *yaml.Node) error {
	if mapping.Kind != yaml.MappingNode {
		return errAt(source, "", "expected a mapping at the top level")
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i].Value
		if _, ok := knownTopLevelKeys[key]; ok {
			continue
		}
		if p.strict {
			return errAt(source, key, "unknown top-level key")
		}
		logger.Warn("ignoring unknown top-level key", "source", source, "key", key)
	}
	return nil
}

func buildTriggers(source string, on onSpec) ([]model.Trigger, error) {
	if len(on.entries) == 0 {
		return nil, errAt(source, "on", "at least one trigger is required")
	}

	triggers := make([]model.Trigger, 0, len(on.entries))
	for _, entry := range on.entries {
		t := model.Trigger{
			Event:          entry.event,
			Branches:       entry.filter.Branches,
			BranchesIgnore: entry.filter.BranchesIgnore,
			Tags:           entry.filter.Tags,
			TagsIgnore:     entry.filter.TagsIgnore,
			Types:          entry.filter.Types,
		}
		if entry.event == model.EventSchedule {
			if len(entry.filter.Schedule) == 0 {
				return nil, errAt(source, "on.schedule", "at least one cron entry is required")
			}
			for i, s := range entry.filter.Schedule {
				if _, err := cron.ParseStandard(s.Cron); err != nil {
					return nil, &ParseError{
						Source: source,
						Path:   fmt.Sprintf("on.schedule[%d].cron", i),
						Msg:    fmt.Sprintf("invalid cron expression %q", s.Cron),
						Err:    err,
					}
				}
				t.Cron = append(t.Cron, s.Cron)
			}
		}
		triggers = append(triggers, t)
	}
	return triggers, nil
}

func buildJob(source, id string, spec *jobSpec) (*model.Job, error) {
	path := "jobs." + id

	job := &model.Job{
		ID:      id,
		Name:    spec.Name,
		RunsOn:  spec.RunsOn,
		Needs:   spec.Needs,
		If:      spec.If,
		Env:     spec.Env,
		Outputs: spec.Outputs,
		Timeout: time.Duration(spec.TimeoutMinutes) * time.Minute,
	}
	if spec.TimeoutMinutes < 0 {
		return nil, errAt(source, path+".timeout-minutes", "must not be negative")
	}

	if spec.Strategy != nil {
		job.Strategy = &model.Strategy{FailFast: spec.Strategy.FailFast}
		if spec.Strategy.Matrix != nil {
			matrix := &model.Matrix{
				Axes:      spec.Strategy.Matrix.axes,
				AxisOrder: spec.Strategy.Matrix.order,
			}
			for _, axis := range matrix.AxisOrder {
				if len(matrix.Axes[axis]) == 0 {
					// An empty axis would silently expand to zero jobs.
					return nil, errAt(source, path+".strategy.matrix."+axis, "matrix axis must list at least one value")
				}
			}
			job.Strategy.Matrix = matrix
		}
	}

	if len(spec.Steps) == 0 {
		return nil, errAt(source, path+".steps", "at least one step is required")
	}
	for i, ss := range spec.Steps {
		step, err := buildStep(source, fmt.Sprintf("%s.steps[%d]", path, i), ss)
		if err != nil {
			return nil, err
		}
		job.Steps = append(job.Steps, step)
	}
	return job, nil
}

func buildStep(source, path string, spec *stepSpec) (*model.Step, error) {
	hasRun := spec.Run != ""
	hasUses := spec.Uses != ""
	if hasRun == hasUses {
		return nil, errAt(source, path, "step must define exactly one of `run` or `uses`")
	}
	if hasUses && spec.Shell != "" {
		return nil, errAt(source, path+".shell", "shell applies only to `run` steps")
	}
	if hasRun && len(spec.With) > 0 {
		return nil, errAt(source, path+".with", "with applies only to `uses` steps")
	}

	step := &model.Step{
		ID:               spec.ID,
		Name:             spec.Name,
		Run:              spec.Run,
		Uses:             spec.Uses,
		With:             spec.With,
		Env:              spec.Env,
		If:               spec.If,
		ContinueOnError:  spec.ContinueOnError,
		Shell:            spec.Shell,
		WorkingDirectory: spec.WorkingDirectory,
	}

	if spec.Retry != nil {
		if spec.Retry.Attempts < 1 {
			return nil, errAt(source, path+".retry.attempts", "must be at least 1")
		}
		retry := &model.Retry{Attempts: spec.Retry.Attempts, Backoff: spec.Retry.Backoff}
		if spec.Retry.Delay != "" {
			delay, err := time.ParseDuration(spec.Retry.Delay)
			if err != nil {
				return nil, &ParseError{Source: source, Path: path + ".retry.delay", Msg: "invalid duration", Err: err}
			}
			retry.Delay = delay
		}
		step.Retry = retry
	}
	return step, nil
}

func validateNeeds(source string, wf *model.Workflow) error {
	for _, id := range wf.JobOrder {
		for _, need := range wf.Jobs[id].Needs {
			if _, ok := wf.Jobs[need]; !ok {
				return errAt(source, "jobs."+id+".needs", "references unknown job %q", need)
			}
		}
	}
	return nil
}
