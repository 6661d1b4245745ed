package expr

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func pushEnv() Env {
	return Env{
		GitHub: map[string]any{
			"event_name": "push",
			"ref":        "refs/heads/main",
			"event": map[string]any{
				"head_commit": map[string]any{"message": "fix: parser"},
			},
		},
		Vars:      map[string]string{"CI": "true"},
		Matrix:    map[string]any{"os": "linux", "node": 20},
		Secrets:   map[string]string{"TOKEN": "s3cr3t"},
		Succeeded: true,
	}
}

func TestEval_DottedAccessAndComparison(t *testing.T) {
	t.Parallel()

	e := New()

	val, err := e.Eval("github.event_name == 'push'", pushEnv())

	require.NoError(t, err)
	require.Equal(t, true, val)
}

func TestEval_BooleanCombinators(t *testing.T) {
	t.Parallel()

	e := New()

	val, err := e.Eval(
		"github.ref == 'refs/heads/main' && matrix.node >= 18 && !failure()",
		pushEnv(),
	)

	require.NoError(t, err)
	require.Equal(t, true, val)
}

func TestEval_WrappedCondition(t *testing.T) {
	t.Parallel()

	e := New()

	ok, err := e.EvalBool("${{ success() }}", pushEnv())

	require.NoError(t, err)
	require.True(t, ok)
}

func TestEval_StatusFunctions(t *testing.T) {
	t.Parallel()

	e := New()
	env := Env{Failed: true}

	failed, err := e.EvalBool("failure()", env)
	require.NoError(t, err)
	require.True(t, failed)

	succeeded, err := e.EvalBool("success()", env)
	require.NoError(t, err)
	require.False(t, succeeded)

	always, err := e.EvalBool("always()", env)
	require.NoError(t, err)
	require.True(t, always)
}

func TestEval_UnresolvedReference(t *testing.T) {
	t.Parallel()

	e := New()

	_, err := e.Eval("github.no_such_field.deeper", pushEnv())

	var unresolved *UnresolvedError
	require.Error(t, err)
	require.True(t, errors.As(err, &unresolved), "expected *UnresolvedError, got %T", err)
}

func TestEval_MissingTopLevelPathIsUnresolved(t *testing.T) {
	t.Parallel()

	e := New()

	_, err := e.Eval("steps.build.outputs.version", Env{})

	var unresolved *UnresolvedError
	require.True(t, errors.As(err, &unresolved))
}

func TestEval_ToJSON(t *testing.T) {
	t.Parallel()

	e := New()

	val, err := e.Eval("toJSON(matrix)", pushEnv())

	require.NoError(t, err)
	require.JSONEq(t, `{"os":"linux","node":20}`, val.(string))
}

func TestEval_StringFunctions(t *testing.T) {
	t.Parallel()

	e := New()

	ok, err := e.EvalBool("startsWith(github.ref, 'refs/heads/') && contains(github.event.head_commit.message, 'parser')", pushEnv())

	require.NoError(t, err)
	require.True(t, ok)
}

func TestEval_StringFunctionCallForms(t *testing.T) {
	t.Parallel()

	e := New()
	env := pushEnv()

	cases := []struct {
		name string
		code string
		want bool
	}{
		{"startsWith match", "startsWith(github.ref, 'refs/heads/')", true},
		{"startsWith miss", "startsWith(github.ref, 'refs/tags/')", false},
		{"endsWith match", "endsWith(github.ref, '/main')", true},
		{"endsWith miss", "endsWith(github.ref, '/develop')", false},
		{"contains match", "contains(github.event.head_commit.message, 'parser')", true},
		{"contains miss", "contains(github.event.head_commit.message, 'docs')", false},
		{"nested call", "contains(format('{0}/{1}', matrix.os, matrix.node), 'linux/20')", true},
		{"operator word inside literal", "contains('startsWith(x, y)', 'startsWith')", true},
		{"wrapped condition", "${{ startsWith(github.ref, 'refs/heads/') }}", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ok, err := e.EvalBool(tc.code, env)
			require.NoError(t, err)
			require.Equal(t, tc.want, ok)
		})
	}
}

func TestRewriteOperatorCalls(t *testing.T) {
	t.Parallel()

	out, err := rewriteOperatorCalls("startsWith(github.ref, 'refs/') && always()")
	require.NoError(t, err)
	require.Equal(t, "((github.ref) startsWith ('refs/')) && always()", out)

	// A literal holding a comma must not split the argument list.
	out, err = rewriteOperatorCalls("contains(x, 'a, b')")
	require.NoError(t, err)
	require.Equal(t, "((x) contains ('a, b'))", out)

	// Infix spellings pass through untouched.
	out, err = rewriteOperatorCalls("github.ref contains 'main'")
	require.NoError(t, err)
	require.Equal(t, "github.ref contains 'main'", out)

	_, err = rewriteOperatorCalls("startsWith(github.ref)")
	require.Error(t, err)
}

func TestEval_Format(t *testing.T) {
	t.Parallel()

	e := New()

	val, err := e.Eval("format('{0}-{1}', matrix.os, matrix.node)", pushEnv())

	require.NoError(t, err)
	require.Equal(t, "linux-20", val)
}

func TestEval_IsPurePerCall(t *testing.T) {
	t.Parallel()

	e := New()
	env := pushEnv()

	first, err := e.Eval("github.event_name", env)
	require.NoError(t, err)
	second, err := e.Eval("github.event_name", env)
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestInterpolate_MixedSpans(t *testing.T) {
	t.Parallel()

	e := New()

	out, err := e.Interpolate("build-${{ matrix.os }}-node${{ matrix.node }}", pushEnv())

	require.NoError(t, err)
	require.Equal(t, "build-linux-node20", out)
}

func TestInterpolate_NoSpansPassthrough(t *testing.T) {
	t.Parallel()

	e := New()

	out, err := e.Interpolate("echo hello", pushEnv())

	require.NoError(t, err)
	require.Equal(t, "echo hello", out)
}

func TestInterpolate_UnresolvedIsError(t *testing.T) {
	t.Parallel()

	e := New()

	_, err := e.Interpolate("v=${{ steps.missing.outputs.v }}", pushEnv())

	var unresolved *UnresolvedError
	require.True(t, errors.As(err, &unresolved))
}

func TestHashFiles(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.sum"), []byte("abc"), 0o600))
	e := New(WithBaseDir(dir))

	// --- Act ---
	val, err := e.Eval("hashFiles('go.sum')", Env{})
	require.NoError(t, err)

	empty, err := e.Eval("hashFiles('no-such-file') == ''", Env{})
	require.NoError(t, err)

	// --- Assert ---
	require.Len(t, val.(string), 64, "sha256 hex digest expected")
	require.Equal(t, true, empty)
}
