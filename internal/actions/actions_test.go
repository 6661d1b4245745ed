// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package actions_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vk/loomci/internal/actions"
	"github.com/vk/loomci/internal/runner"
)

func TestWriteAndReadFile(t *testing.T) {
	t.Parallel()

	// Arrange
	reg := actions.Builtin()
	dir := t.TempDir()

	// Act
	_, err := reg.RunAction(context.Background(), runner.ActionSpec{
		Uses: "core/write-file",
		With: map[string]string{"path": "out/greeting.txt", "contents": "hello"},
		Dir:  dir,
	})
	require.NoError(t, err)

	res, err := reg.RunAction(context.Background(), runner.ActionSpec{
		Uses: "core/read-file",
		With: map[string]string{"path": "out/greeting.txt"},
		Dir:  dir,
	})

	// Assert
	require.NoError(t, err)
	require.Equal(t, "hello", res.Outputs["contents"])

	onDisk, err := os.ReadFile(filepath.Join(dir, "out", "greeting.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(onDisk))
}

func TestWriteFile_RequiresPath(t *testing.T) {
	t.Parallel()

	_, err := actions.Builtin().RunAction(context.Background(), runner.ActionSpec{
		Uses: "core/write-file",
		With: map[string]string{"contents": "x"},
	})
	require.ErrorContains(t, err, "'path' input is required")
}

func TestSleep_Cancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := actions.Builtin().RunAction(ctx, runner.ActionSpec{
		Uses: "core/sleep",
		With: map[string]string{"duration": "10s"},
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPRequest(t *testing.T) {
	t.Parallel()

	// Arrange
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	}))
	defer srv.Close()

	var out bytes.Buffer

	// Act
	res, err := actions.Builtin().RunAction(context.Background(), runner.ActionSpec{
		Uses:   "core/http-request",
		With:   map[string]string{"url": srv.URL},
		Stdout: &out,
	})

	// Assert
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, "200", res.Outputs["status"])
	require.Equal(t, "pong", res.Outputs["body"])
	require.Contains(t, out.String(), "GET "+srv.URL)
}

func TestHTTPRequest_ErrorStatusFailsStep(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	res, err := actions.Builtin().RunAction(context.Background(), runner.ActionSpec{
		Uses:   "core/http-request",
		With:   map[string]string{"url": srv.URL},
		Stdout: &bytes.Buffer{},
	})

	require.NoError(t, err)
	require.Equal(t, 1, res.ExitCode)
	require.Equal(t, "500", res.Outputs["status"])
}

func TestVersionedReference(t *testing.T) {
	t.Parallel()

	// A pinned reference resolves to the same built-in.
	res, err := actions.Builtin().RunAction(context.Background(), runner.ActionSpec{
		Uses:   "core/noop@v1",
		Stdout: &bytes.Buffer{},
	})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
}
