package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testRunFile(t *testing.T, outputDir string) string {
	t.Helper()
	return writeFile(t, t.TempDir(), "run.hcl", `
run {
  run_name            = "pilot"
  site_name           = "site-A"
  output_directory    = "`+outputDir+`"
  anatomical_template = "/templates/mni.nii.gz"
}

scan "sub-1_ses-1_anat-1" {
  subject = "sub-1"
  session = "ses-1"
  scan    = "anat-1"

  request = ["qap_anatomical_spatial", "anat_header_info"]
  resources = {
    anat_scan = "/data/sub-1/anat.nii.gz"
  }
}

scan "sub-1_ses-1_func-1" {
  subject = "sub-1"
  session = "ses-1"
  scan    = "func-1"

  request = ["qap_functional"]
  resources = {
    func_scan = "/data/sub-1/func.nii.gz"
  }
}
`)
}

func TestNewApp_LoadsAndValidates(t *testing.T) {
	t.Parallel()

	appConfig := &AppConfig{
		ConfigPath: testRunFile(t, t.TempDir()),
		LogFormat:  "text",
		LogLevel:   "error",
	}
	a := NewApp(&bytes.Buffer{}, appConfig)

	require.NotNil(t, a.Registry())
	require.Len(t, a.RunFile().Scans, 2)
	assert.Equal(t, "pilot", a.RunFile().Run.RunName)
}

func TestNewApp_PanicsOnBadConfig(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "broken.hcl", `run { run_name = `)
	require.Panics(t, func() {
		NewApp(&bytes.Buffer{}, &AppConfig{ConfigPath: path, LogLevel: "error"})
	})
}

func TestRun_AssembleOnly(t *testing.T) {
	t.Parallel()

	appConfig := &AppConfig{
		ConfigPath:   testRunFile(t, t.TempDir()),
		LogFormat:    "text",
		LogLevel:     "error",
		AssembleOnly: true,
	}
	a := NewApp(&bytes.Buffer{}, appConfig)

	// Assembly touches no input files, so it succeeds even though the raw
	// scans do not exist on disk.
	require.NoError(t, a.Run(context.Background(), appConfig))
}

func TestRun_SublistMerge(t *testing.T) {
	t.Parallel()

	sublist := writeFile(t, t.TempDir(), "scans.yml", `
sub-2:
  ses-1:
    functional_scan:
      func-1: /data/sub-2/func.nii.gz
`)
	appConfig := &AppConfig{
		ConfigPath:   testRunFile(t, t.TempDir()),
		SublistPath:  sublist,
		LogFormat:    "text",
		LogLevel:     "error",
		AssembleOnly: true,
	}
	a := NewApp(&bytes.Buffer{}, appConfig)

	require.Len(t, a.RunFile().Scans, 3)
	require.NoError(t, a.Run(context.Background(), appConfig))
}

func TestRun_NoScans(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "run.hcl", `
run {
  run_name         = "empty"
  output_directory = "/out"
}
`)
	appConfig := &AppConfig{ConfigPath: path, LogLevel: "error"}
	a := NewApp(&bytes.Buffer{}, appConfig)
	require.NoError(t, a.Run(context.Background(), appConfig))
}
