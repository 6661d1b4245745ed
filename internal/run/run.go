// Package run instantiates a parsed workflow against one triggering event
// and drives the resulting job executions to a terminal state. Matrix
// expansion is materialized at instantiation time; the executor only ever
// sees concrete JobExecution values.
package run

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/vk/loomci/internal/dag"
	"github.com/vk/loomci/internal/expr"
	"github.com/vk/loomci/internal/model"
	"github.com/vk/loomci/internal/runlog"
	"github.com/vk/loomci/internal/runner"
	"github.com/vk/loomci/internal/secrets"
)

// Options configures one Run.
type Options struct {
	// RunID overrides the generated run id; callers that name external
	// resources after the run set it up front.
	RunID string

	// Workers caps concurrent job executions; it models the runner slot
	// pool. Zero or negative selects DefaultWorkers.
	Workers int

	// AllowSkippedNeeds treats a Skipped dependency as satisfied instead
	// of skipping the dependent.
	AllowSkippedNeeds bool

	// Workspace is the working directory for steps and hashFiles().
	Workspace string

	Secrets *secrets.Store
	Log     runlog.Sink

	Commands runner.CommandRunner
	Actions  runner.ActionRunner

	// Evaluator overrides the default expression evaluator; tests aside,
	// leave nil.
	Evaluator *expr.Evaluator
}

// DefaultWorkers is the runner slot cap when Options.Workers is unset.
const DefaultWorkers = 4

// Run is one instantiation of a Workflow against one Event.
type Run struct {
	ID       string
	Workflow *model.Workflow
	Event    *model.Event
	Context  *model.Context

	opts    Options
	eval    *expr.Evaluator
	graph   *dag.Graph
	order   []*JobExecution
	byID    map[string]*JobExecution
	groups  map[string]*jobGroup
	logSink runlog.Sink
}

// New builds a Run: expands matrices, builds the dependency graph over the
// concrete executions, and rejects cycles before anything starts.
func New(wf *model.Workflow, event *model.Event, opts Options) (*Run, error) {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Secrets == nil {
		opts.Secrets = secrets.NewStore()
	}
	if opts.Log == nil {
		opts.Log = &runlog.Buffer{}
	}
	if opts.Commands == nil {
		opts.Commands = runner.LocalShell{}
	}
	if opts.Actions == nil {
		opts.Actions = runner.NewRegistry()
	}
	eval := opts.Evaluator
	if eval == nil {
		eval = expr.New(expr.WithBaseDir(opts.Workspace))
	}

	id := opts.RunID
	if id == "" {
		id = uuid.NewString()
	}

	r := &Run{
		ID:       id,
		Workflow: wf,
		Event:    event,
		opts:     opts,
		eval:     eval,
		graph:    dag.New(),
		byID:     make(map[string]*JobExecution),
		groups:   make(map[string]*jobGroup),
		logSink:  opts.Log,
	}
	r.Context = model.NewContext(r.ID, wf.Name, event, wf.Env, opts.Secrets.All())

	r.expand()
	if err := r.link(); err != nil {
		return nil, err
	}
	if err := r.graph.DetectCycles(); err != nil {
		return nil, err
	}
	return r, nil
}

// expand materializes one JobExecution per job or matrix combination, in
// declaration order.
func (r *Run) expand() {
	for _, job := range r.Workflow.OrderedJobs() {
		group := &jobGroup{jobID: job.ID, failFast: job.FailFast()}

		var combos []model.Combination
		if job.Strategy != nil && job.Strategy.Matrix != nil {
			combos = job.Strategy.Matrix.Expand()
		}
		if len(combos) == 0 {
			combos = []model.Combination{nil}
		}

		for _, combo := range combos {
			exec := &JobExecution{
				ID:    executionID(job, combo),
				Job:   job,
				Combo: combo,
				group: group,
			}
			group.executions = append(group.executions, exec)
			r.order = append(r.order, exec)
			r.byID[exec.ID] = exec
			r.graph.AddNode(exec.ID)
		}
		group.remaining.Store(int32(len(group.executions)))
		r.groups[job.ID] = group
	}
}

// link adds one edge per (needed execution, dependent execution) pair:
// every matrix instance of a dependency blocks every instance of the
// dependent.
func (r *Run) link() error {
	for _, exec := range r.order {
		for _, need := range exec.Job.Needs {
			group, ok := r.groups[need]
			if !ok {
				// The parser validates needs; reaching this means the
				// workflow was mutated after parse.
				return fmt.Errorf("job %q needs unknown job %q", exec.Job.ID, need)
			}
			for _, dep := range group.executions {
				if err := r.graph.AddEdge(dep.ID, exec.ID); err != nil {
					return err
				}
			}
		}
	}

	for _, exec := range r.order {
		deps, err := r.graph.Dependencies(exec.ID)
		if err != nil {
			return err
		}
		exec.depCount.Store(int32(len(deps)))
	}
	return nil
}

func executionID(job *model.Job, combo model.Combination) string {
	if combo == nil {
		return job.ID
	}
	var order []string
	if job.Strategy != nil && job.Strategy.Matrix != nil {
		order = job.Strategy.Matrix.AxisOrder
	}
	return fmt.Sprintf("%s (%s)", job.ID, combo.Key(order))
}

// Executions returns every JobExecution in declaration order.
func (r *Run) Executions() []*JobExecution {
	out := make([]*JobExecution, len(r.order))
	copy(out, r.order)
	return out
}

// Execution returns one execution by id, or nil.
func (r *Run) Execution(id string) *JobExecution {
	return r.byID[id]
}

// Status folds all execution states into the run's overall status:
// Failed dominates Cancelled dominates Succeeded/Skipped.
func (r *Run) Status() State {
	status := Succeeded
	for _, exec := range r.order {
		switch exec.State() {
		case Failed:
			return Failed
		case Cancelled:
			status = Cancelled
		}
	}
	return status
}
