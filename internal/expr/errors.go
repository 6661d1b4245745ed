package expr

import "fmt"

// UnresolvedError reports an expression that referenced a path which does
// not exist in the evaluation environment, or otherwise failed to resolve.
// Callers decide severity: a condition treats it as false, a required input
// treats it as fatal.
type UnresolvedError struct {
	Expr  string
	Cause error
}

func (e *UnresolvedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("unresolved reference in %q: %v", e.Expr, e.Cause)
	}
	return fmt.Sprintf("unresolved reference in %q", e.Expr)
}

func (e *UnresolvedError) Unwrap() error { return e.Cause }
