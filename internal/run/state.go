package run

// State is the lifecycle of one JobExecution. The only legal paths are
// Pending → Eligible → Running → terminal, Pending → Skipped, and any
// non-terminal → Cancelled.
type State int32

const (
	Pending State = iota
	Eligible
	Running
	Succeeded
	Failed
	Skipped
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Eligible:
		return "eligible"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case Succeeded, Failed, Skipped, Cancelled:
		return true
	}
	return false
}

// resultName maps a terminal state to the name dependents see through
// needs.<job>.result.
func (s State) resultName() string {
	switch s {
	case Succeeded:
		return "success"
	case Failed:
		return "failure"
	case Cancelled:
		return "cancelled"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Reason refines a terminal state for reporting.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonStepFailed     Reason = "step_failed"
	ReasonUpstreamFailed Reason = "upstream_failed"
	ReasonCondition      Reason = "condition_false"
	ReasonTimeout        Reason = "timeout"
	ReasonCancelled      Reason = "cancelled"
	ReasonFailFast       Reason = "fail_fast"
)
