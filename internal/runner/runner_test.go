package runner

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalShell_CapturesOutputAndExitCode(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	sh := LocalShell{}

	res, err := sh.RunCommand(context.Background(), CommandSpec{
		Command: "echo out; echo err 1>&2",
		Stdout:  &stdout,
		Stderr:  &stderr,
	})

	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, "out\n", stdout.String())
	require.Equal(t, "err\n", stderr.String())
}

func TestLocalShell_NonZeroExit(t *testing.T) {
	t.Parallel()

	sh := LocalShell{}

	res, err := sh.RunCommand(context.Background(), CommandSpec{Command: "exit 3"})

	require.NoError(t, err, "non-zero exit is a result, not an invocation error")
	require.Equal(t, 3, res.ExitCode)
}

func TestLocalShell_FirstFailingCommandFailsStep(t *testing.T) {
	t.Parallel()

	var stdout bytes.Buffer
	sh := LocalShell{}

	res, err := sh.RunCommand(context.Background(), CommandSpec{
		Command: "false\necho unreachable",
		Stdout:  &stdout,
	})

	require.NoError(t, err)
	require.NotEqual(t, 0, res.ExitCode)
	require.NotContains(t, stdout.String(), "unreachable")
}

func TestLocalShell_EnvInjection(t *testing.T) {
	t.Parallel()

	var stdout bytes.Buffer
	sh := LocalShell{}

	_, err := sh.RunCommand(context.Background(), CommandSpec{
		Command: `echo "token=$DEPLOY_TOKEN"`,
		Env:     map[string]string{"DEPLOY_TOKEN": "abc123"},
		Stdout:  &stdout,
	})

	require.NoError(t, err)
	require.Equal(t, "token=abc123\n", stdout.String())
}

func TestLocalShell_ContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	sh := LocalShell{}

	_, err := sh.RunCommand(ctx, CommandSpec{Command: "sleep 5"})

	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegistry_ResolvesVersionedRef(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register("actions/checkout", func(ctx context.Context, spec ActionSpec) (ActionResult, error) {
		return ActionResult{Outputs: map[string]string{"ref": spec.With["ref"]}}, nil
	})

	res, err := reg.RunAction(context.Background(), ActionSpec{
		Uses: "actions/checkout@v4",
		With: map[string]string{"ref": "main"},
	})

	require.NoError(t, err)
	require.Equal(t, "main", res.Outputs["ref"])
}

func TestRegistry_UnknownAction(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()

	_, err := reg.RunAction(context.Background(), ActionSpec{Uses: "ghost/action@v1"})

	var unknown *UnknownActionError
	require.True(t, errors.As(err, &unknown))
	require.Contains(t, unknown.Error(), "ghost/action@v1")
}

func TestParseOutputs(t *testing.T) {
	t.Parallel()

	in := strings.NewReader("version=1.2.3\n\nnot-a-pair\nartifact=dist/app.tar.gz\nversion=1.2.4\n")

	outputs := ParseOutputs(in)

	require.Equal(t, map[string]string{
		"version":  "1.2.4",
		"artifact": "dist/app.tar.gz",
	}, outputs)
}
