package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// UnknownActionError reports a `uses` reference with no registered handler.
type UnknownActionError struct {
	Uses string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("no handler registered for action %q", e.Uses)
}

// ActionFunc is one in-process action implementation.
type ActionFunc func(ctx context.Context, spec ActionSpec) (ActionResult, error)

// Registry is an ActionRunner backed by registered Go handlers. Resolution
// tries the exact reference first, then the reference with its version
// stripped, so "actions/checkout@v4" can be served by a handler registered
// as "actions/checkout".
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]ActionFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]ActionFunc)}
}

// Register installs a handler for an action reference.
func (r *Registry) Register(ref string, fn ActionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[ref] = fn
}

// RunAction implements ActionRunner.
func (r *Registry) RunAction(ctx context.Context, spec ActionSpec) (ActionResult, error) {
	r.mu.RLock()
	fn, ok := r.handlers[spec.Uses]
	if !ok {
		name, _, _ := strings.Cut(spec.Uses, "@")
		fn, ok = r.handlers[name]
	}
	r.mu.RUnlock()

	if !ok {
		return ActionResult{ExitCode: -1}, &UnknownActionError{Uses: spec.Uses}
	}
	return fn(ctx, spec)
}
