// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/loomci/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loomci.hcl")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Workers)
	require.Equal(t, "text", cfg.LogFormat)
	require.Equal(t, ":8477", cfg.Listen)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
workflow_dir = "ci/workflows"
workers      = 8
strict       = true
log_format   = "json"

allow_skipped_needs = true

secrets = {
  API_TOKEN = "from-file"
}
`)

	cfg, err := config.Load(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, "ci/workflows", cfg.WorkflowDir)
	require.Equal(t, 8, cfg.Workers)
	require.True(t, cfg.Strict)
	require.Equal(t, "json", cfg.LogFormat)
	require.True(t, cfg.AllowSkippedNeeds)
	require.Equal(t, map[string]string{"API_TOKEN": "from-file"}, cfg.Secrets)
}

func TestLoad_EnvNamespaceInHCL(t *testing.T) {
	t.Setenv("CI_NOTIFY_URL", "https://hooks.example.com/ci")
	path := writeConfig(t, `notify_url = env.CI_NOTIFY_URL`)

	cfg, err := config.Load(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, "https://hooks.example.com/ci", cfg.NotifyURL)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("LOOMCI_WORKERS", "16")
	t.Setenv("LOOMCI_LISTEN", ":9000")
	path := writeConfig(t, `workers = 2`)

	cfg, err := config.Load(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 16, cfg.Workers)
	require.Equal(t, ":9000", cfg.Listen, "environment must also override defaults")
}

func TestLoad_Validation(t *testing.T) {
	path := writeConfig(t, `log_format = "yaml"`)

	_, err := config.Load(context.Background(), path)
	require.ErrorContains(t, err, "log_format")
}

func TestLoad_MalformedHCL(t *testing.T) {
	path := writeConfig(t, `workers = =`)

	_, err := config.Load(context.Background(), path)
	require.Error(t, err)
}
