// Package expr evaluates the restricted `${{ }}` expression language
// against a run-scoped environment: dotted field access, comparisons,
// boolean combinators and a small builtin function set. Evaluation is pure
// per call; the only shared state is a compiled-program cache.
package expr

import (
	"strings"
	"sync"

	exprlang "github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Env is the per-site evaluation environment. The scheduler assembles one
// for every condition, input and interpolation site from the run Context.
type Env struct {
	// GitHub is the github.* namespace: event payload, repository
	// metadata, actor, ref, sha, run id.
	GitHub map[string]any

	// Vars is the env.* namespace (merged workflow/job/step environment).
	Vars map[string]string

	// Matrix is the matrix.* namespace for matrix-expanded executions.
	Matrix map[string]any

	// Needs exposes needs.<job>.{result,outputs}.
	Needs map[string]any

	// Steps exposes steps.<id>.{outcome,outputs} for prior steps of the
	// same job.
	Steps map[string]any

	// Secrets is the secrets.* namespace. Values reach expressions and
	// step environments only; log sinks redact them.
	Secrets map[string]string

	// Succeeded, Failed and Cancelled back the status functions at this
	// evaluation site: success(), failure(), cancelled().
	Succeeded bool
	Failed    bool
	Cancelled bool
}

// Evaluator evaluates expressions and interpolates strings. Safe for
// concurrent use.
type Evaluator struct {
	// baseDir anchors hashFiles() globs; empty disables the function's
	// filesystem access (it then always hashes nothing).
	baseDir string

	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithBaseDir points hashFiles() at the run workspace.
func WithBaseDir(dir string) Option {
	return func(e *Evaluator) { e.baseDir = dir }
}

// New returns a ready Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{cache: make(map[string]*vm.Program)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Unwrap strips a single `${{ ... }}` wrapper when the whole string is one
// expression span. Conditions may be written either bare or wrapped.
func Unwrap(code string) string {
	trimmed := strings.TrimSpace(code)
	if strings.HasPrefix(trimmed, "${{") && strings.HasSuffix(trimmed, "}}") {
		inner := trimmed[3 : len(trimmed)-2]
		// A string like "${{ a }} and ${{ b }}" is not a single span.
		if !strings.Contains(inner, "${{") {
			return strings.TrimSpace(inner)
		}
	}
	return trimmed
}

// Eval evaluates one expression and returns its typed value. A reference to
// a path that does not exist yields *UnresolvedError.
func (e *Evaluator) Eval(code string, env Env) (any, error) {
	src := Unwrap(code)

	program, err := e.compile(src)
	if err != nil {
		return nil, &UnresolvedError{Expr: src, Cause: err}
	}

	out, err := exprlang.Run(program, e.runtimeEnv(env))
	if err != nil {
		return nil, &UnresolvedError{Expr: src, Cause: err}
	}
	if out == nil {
		return nil, &UnresolvedError{Expr: src}
	}
	return out, nil
}

// EvalBool evaluates a condition expression. Non-boolean results follow
// truthiness: empty string, zero number and nil are false.
func (e *Evaluator) EvalBool(code string, env Env) (bool, error) {
	out, err := e.Eval(code, env)
	if err != nil {
		return false, err
	}
	return truthy(out), nil
}

func (e *Evaluator) compile(src string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.cache[src]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	rewritten, err := rewriteOperatorCalls(src)
	if err != nil {
		return nil, err
	}

	// Compiled without a typed environment: identifiers resolve at run
	// time against the env map, which is what gives missing paths their
	// forgiving nil behavior.
	program, err = exprlang.Compile(rewritten)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[src] = program
	e.mu.Unlock()
	return program, nil
}

// runtimeEnv flattens Env into the identifier namespace expressions see.
func (e *Evaluator) runtimeEnv(env Env) map[string]any {
	m := map[string]any{
		"github":  orEmpty(env.GitHub),
		"env":     stringMap(env.Vars),
		"matrix":  orEmpty(env.Matrix),
		"needs":   orEmpty(env.Needs),
		"steps":   orEmpty(env.Steps),
		"secrets": stringMap(env.Secrets),
		"job":     map[string]any{"status": statusName(env)},
	}
	addBuiltins(m, env, e.baseDir)
	return m
}

func statusName(env Env) string {
	switch {
	case env.Cancelled:
		return "cancelled"
	case env.Failed:
		return "failure"
	default:
		return "success"
	}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func stringMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case nil:
		return false
	default:
		return true
	}
}
