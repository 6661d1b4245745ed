package run

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vk/loomci/internal/model"
)

// JobExecution is one schedulable instance of a job: the job itself, or
// one matrix combination of it. Matrix siblings share the parent Job
// definition but are fully independent executions.
type JobExecution struct {
	// ID is unique within the run, e.g. "test (os=linux, node=20)".
	ID string

	Job   *model.Job
	Combo model.Combination

	group *jobGroup

	state  atomic.Int32
	reason atomic.Value // Reason
	err    error

	// depCount tracks unfinished dependency executions; the execution
	// is gated when it reaches zero.
	depCount atomic.Int32

	// finishOnce guarantees a single terminal transition.
	finishOnce sync.Once

	// cancel interrupts the job's currently running step. Set while
	// Running.
	cancelMu sync.Mutex
	cancel   context.CancelFunc

	mu      sync.Mutex
	steps   []StepResult
	outputs map[string]string
}

// State returns the current lifecycle state.
func (e *JobExecution) State() State {
	return State(e.state.Load())
}

// Reason returns the terminal reason, if any.
func (e *JobExecution) Reason() Reason {
	if r, ok := e.reason.Load().(Reason); ok {
		return r
	}
	return ReasonNone
}

// Err returns the error recorded at failure, if any.
func (e *JobExecution) Err() error { return e.err }

// Steps returns the per-step results recorded so far.
func (e *JobExecution) Steps() []StepResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]StepResult, len(e.steps))
	copy(out, e.steps)
	return out
}

// Outputs returns the job's evaluated output mapping.
func (e *JobExecution) Outputs() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.outputs))
	for k, v := range e.outputs {
		out[k] = v
	}
	return out
}

func (e *JobExecution) setCancel(cancel context.CancelFunc) {
	e.cancelMu.Lock()
	defer e.cancelMu.Unlock()
	e.cancel = cancel
}

// interrupt cancels the execution's running step, if any. Steps never
// partially roll back; interruption only stops the current one.
func (e *JobExecution) interrupt() {
	e.cancelMu.Lock()
	defer e.cancelMu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// StepResult records how one step ended.
type StepResult struct {
	Step *model.Step

	// Outcome is the raw result: "success", "failure", "skipped" or
	// "cancelled". Conclusion is the effective result after
	// continue-on-error downgrading.
	Outcome    string
	Conclusion string

	ExitCode int
	Outputs  map[string]string
	Err      error
}

// jobGroup ties matrix siblings together: the group publishes one
// aggregate result to the run Context when its last execution finishes,
// and coordinates fail-fast cancellation.
type jobGroup struct {
	jobID    string
	failFast bool

	executions []*JobExecution
	remaining  atomic.Int32
	failed     atomic.Bool
}

// aggregateResult folds sibling states into the result dependents see:
// failure wins over cancellation, cancellation over success.
func (g *jobGroup) aggregateResult() string {
	worst := Succeeded
	allSkipped := len(g.executions) > 0
	for _, e := range g.executions {
		s := e.State()
		if s != Skipped {
			allSkipped = false
		}
		switch s {
		case Failed:
			worst = Failed
		case Cancelled:
			if worst != Failed {
				worst = Cancelled
			}
		}
	}
	if allSkipped {
		return Skipped.resultName()
	}
	return worst.resultName()
}

// mergedOutputs folds sibling outputs; later declaration order wins.
func (g *jobGroup) mergedOutputs() map[string]string {
	merged := make(map[string]string)
	for _, e := range g.executions {
		for k, v := range e.Outputs() {
			merged[k] = v
		}
	}
	return merged
}

// failFastTriggered reports whether siblings of a failed execution must
// be cancelled.
func (g *jobGroup) failFastTriggered() bool {
	return g.failFast && len(g.executions) > 1 && g.failed.Load()
}
