// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package app_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/loomci/internal/app"
	"github.com/vk/loomci/internal/config"
	"github.com/vk/loomci/internal/engine"
	"github.com/vk/loomci/internal/runner"
)

type stubRunner struct {
	exitCode int
}

func (s stubRunner) RunCommand(context.Context, runner.CommandSpec) (runner.CommandResult, error) {
	return runner.CommandResult{ExitCode: s.exitCode}, nil
}

func writeWorkflow(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ci.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestRunOnce_Success(t *testing.T) {
	t.Parallel()

	// Arrange
	path := writeWorkflow(t, `
name: ci
on: push
jobs:
  build:
    steps:
      - run: make build
  test:
    needs: build
    steps:
      - run: make test
`)
	var out bytes.Buffer
	a := app.NewApp(&out, config.Default(), engine.WithCommandRunner(stubRunner{}))

	// Act
	err := a.RunOnce(context.Background(), path, "push", "refs/heads/main")

	// Assert
	require.NoError(t, err)
	require.Contains(t, out.String(), "ci: succeeded")
	require.Contains(t, out.String(), "build: succeeded")
	require.Contains(t, out.String(), "test: succeeded")
}

func TestRunOnce_FailurePropagates(t *testing.T) {
	t.Parallel()

	path := writeWorkflow(t, `
name: ci
on: push
jobs:
  build:
    steps:
      - run: make build
`)
	var out bytes.Buffer
	a := app.NewApp(&out, config.Default(), engine.WithCommandRunner(stubRunner{exitCode: 1}))

	err := a.RunOnce(context.Background(), path, "push", "refs/heads/main")

	require.ErrorIs(t, err, app.ErrRunFailed)
	require.Contains(t, out.String(), "build: failed (step_failed)")
}

func TestRunOnce_NoMatchingWorkflow(t *testing.T) {
	t.Parallel()

	path := writeWorkflow(t, `
name: ci
on: release
jobs:
  build:
    steps:
      - run: make build
`)
	var out bytes.Buffer
	a := app.NewApp(&out, config.Default(), engine.WithCommandRunner(stubRunner{}))

	err := a.RunOnce(context.Background(), path, "push", "refs/heads/main")

	require.NoError(t, err)
	require.Contains(t, out.String(), `no workflow matched event "push"`)
}

func TestRunOnce_ParseErrorSurfaces(t *testing.T) {
	t.Parallel()

	path := writeWorkflow(t, `jobs: {}`)
	var out bytes.Buffer
	a := app.NewApp(&out, config.Default(), engine.WithCommandRunner(stubRunner{}))

	err := a.RunOnce(context.Background(), path, "push", "refs/heads/main")
	require.Error(t, err)
	require.NotErrorIs(t, err, app.ErrRunFailed)
}
