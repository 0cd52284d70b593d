package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ConfigFlagVariants(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{
		{"-config", "/runs/pilot.hcl"},
		{"-c", "/runs/pilot.hcl"},
		{"/runs/pilot.hcl"},
	} {
		cfg, shouldExit, err := Parse(args, &bytes.Buffer{})
		require.NoError(t, err)
		require.False(t, shouldExit)
		assert.Equal(t, "/runs/pilot.hcl", cfg.ConfigPath)
	}
}

func TestParse_Defaults(t *testing.T) {
	t.Parallel()

	cfg, _, err := Parse([]string{"-c", "run.hcl"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Zero(t, cfg.WorkerCount)
	assert.False(t, cfg.AssembleOnly)
	assert.Empty(t, cfg.SublistPath)
}

func TestParse_AllOptions(t *testing.T) {
	t.Parallel()

	cfg, _, err := Parse([]string{
		"-c", "run.hcl",
		"-sublist", "scans.yml",
		"-log-format", "text",
		"-log-level", "debug",
		"-workers", "6",
		"-assemble-only",
	}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "scans.yml", cfg.SublistPath)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 6, cfg.WorkerCount)
	assert.True(t, cfg.AssembleOnly)
}

func TestParse_NoPathPrintsUsage(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	cfg, shouldExit, err := Parse(nil, out)
	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParse_InvalidValues(t *testing.T) {
	t.Parallel()

	cases := [][]string{
		{"-c", "run.hcl", "-log-format", "xml"},
		{"-c", "run.hcl", "-log-level", "loud"},
		{"-c", "run.hcl", "-workers", "-2"},
	}
	for _, args := range cases {
		_, _, err := Parse(args, &bytes.Buffer{})
		require.Error(t, err, args)

		exitErr, ok := err.(*ExitError)
		require.True(t, ok)
		assert.Equal(t, 2, exitErr.Code)
	}
}

func TestParse_Help(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	_, shouldExit, err := Parse([]string{"-h"}, out)
	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Contains(t, out.String(), "Usage:")
}
