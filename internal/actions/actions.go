// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package actions ships the built-in action library. Every entry is a Go
// function behind a `uses:` reference; there is no marketplace and no
// remote fetch.
package actions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/vk/loomci/internal/runner"
)

// Builtin returns a registry pre-loaded with the core actions.
func Builtin() *runner.Registry {
	reg := runner.NewRegistry()
	reg.Register("core/noop", noop)
	reg.Register("core/sleep", sleep)
	reg.Register("core/write-file", writeFile)
	reg.Register("core/read-file", readFile)
	reg.Register("core/http-request", httpRequest)
	return reg
}

func noop(_ context.Context, spec runner.ActionSpec) (runner.ActionResult, error) {
	fmt.Fprintln(spec.Stdout, "noop")
	return runner.ActionResult{}, nil
}

// sleep blocks for `with.duration`; cancellation interrupts it.
func sleep(ctx context.Context, spec runner.ActionSpec) (runner.ActionResult, error) {
	d, err := time.ParseDuration(spec.With["duration"])
	if err != nil {
		return runner.ActionResult{}, fmt.Errorf("core/sleep: invalid duration %q: %w", spec.With["duration"], err)
	}
	select {
	case <-ctx.Done():
		return runner.ActionResult{ExitCode: -1}, ctx.Err()
	case <-time.After(d):
		return runner.ActionResult{}, nil
	}
}

// writeFile writes `with.contents` to `with.path`, relative to the step's
// working directory. Parent directories are created.
func writeFile(_ context.Context, spec runner.ActionSpec) (runner.ActionResult, error) {
	path := spec.With["path"]
	if path == "" {
		return runner.ActionResult{}, fmt.Errorf("core/write-file: 'path' input is required")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(spec.Dir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return runner.ActionResult{}, fmt.Errorf("core/write-file: %w", err)
	}
	if err := os.WriteFile(path, []byte(spec.With["contents"]), 0o644); err != nil {
		return runner.ActionResult{}, fmt.Errorf("core/write-file: %w", err)
	}
	return runner.ActionResult{}, nil
}

// readFile exposes a file's contents as the `contents` output.
func readFile(_ context.Context, spec runner.ActionSpec) (runner.ActionResult, error) {
	path := spec.With["path"]
	if path == "" {
		return runner.ActionResult{}, fmt.Errorf("core/read-file: 'path' input is required")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(spec.Dir, path)
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		return runner.ActionResult{}, fmt.Errorf("core/read-file: %w", err)
	}
	return runner.ActionResult{
		Outputs: map[string]string{"contents": string(contents)},
	}, nil
}

// httpRequest performs a simple HTTP call and reports the status code as
// the `status` output. A 4xx/5xx response fails the step through the exit
// code, not through an error.
func httpRequest(ctx context.Context, spec runner.ActionSpec) (runner.ActionResult, error) {
	url := spec.With["url"]
	if url == "" {
		return runner.ActionResult{}, fmt.Errorf("core/http-request: 'url' input is required")
	}
	method := strings.ToUpper(spec.With["method"])
	if method == "" {
		method = "GET"
	}

	client := resty.New().SetTimeout(30 * time.Second)
	defer client.Close()

	req := client.R().SetContext(ctx)
	if body := spec.With["body"]; body != "" {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, url)
	if err != nil {
		return runner.ActionResult{}, fmt.Errorf("core/http-request: %w", err)
	}

	fmt.Fprintf(spec.Stdout, "%s %s -> %s\n", method, url, resp.Status())
	result := runner.ActionResult{
		Outputs: map[string]string{
			"status": fmt.Sprintf("%d", resp.StatusCode()),
			"body":   resp.String(),
		},
	}
	if resp.IsError() {
		result.ExitCode = 1
	}
	return result, nil
}
