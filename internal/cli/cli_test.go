// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package cli_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/loomci/internal/cli"
)

func TestParse_OneShot(t *testing.T) {
	var out bytes.Buffer
	inv, exit, err := cli.Parse(context.Background(), []string{"-event", "release", "-workers", "2", "ci.yml"}, &out)

	require.NoError(t, err)
	require.False(t, exit)
	require.False(t, inv.Serve)
	require.Equal(t, "ci.yml", inv.WorkflowPath)
	require.Equal(t, "release", inv.Event)
	require.Equal(t, 2, inv.Config.Workers)
}

func TestParse_Serve(t *testing.T) {
	var out bytes.Buffer
	inv, exit, err := cli.Parse(context.Background(), []string{"-serve", "-log-format", "json"}, &out)

	require.NoError(t, err)
	require.False(t, exit)
	require.True(t, inv.Serve)
	require.Equal(t, "json", inv.Config.LogFormat)
}

func TestParse_NoArgsPrintsUsage(t *testing.T) {
	var out bytes.Buffer
	inv, exit, err := cli.Parse(context.Background(), nil, &out)

	require.NoError(t, err)
	require.True(t, exit)
	require.Nil(t, inv)
	require.Contains(t, out.String(), "Usage:")
}

func TestParse_InvalidLogFormat(t *testing.T) {
	var out bytes.Buffer
	_, _, err := cli.Parse(context.Background(), []string{"-log-format", "xml", "ci.yml"}, &out)

	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 2, exitErr.Code)
}

func TestParse_UnknownFlag(t *testing.T) {
	var out bytes.Buffer
	_, _, err := cli.Parse(context.Background(), []string{"-frobnicate"}, &out)

	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 2, exitErr.Code)
}
