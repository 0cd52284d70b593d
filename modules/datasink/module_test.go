package datasink

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/manwithadodla/quality-assessment-protocol/internal/engine"
)

func TestWriteJSON_MergesObjectInputs(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "site", "sub-1", "qap_functional.json")
	task := &engine.Task{
		ID: "task.datasink.json.qap_functional_json",
		Params: map[string]cty.Value{
			"out_path": cty.StringVal(out),
		},
		Inputs: map[string]cty.Value{
			"spatial": cty.ObjectVal(map[string]cty.Value{
				"snr":     cty.NumberFloatVal(12.5),
				"subject": cty.StringVal("sub-1"),
			}),
			"temporal": cty.ObjectVal(map[string]cty.Value{
				"mean_fd": cty.NumberFloatVal(0.08),
			}),
		},
	}

	m := &Module{}
	outputs, err := m.writeJSON(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, out, outputs["out_json"].AsString())

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, 12.5, doc["snr"])
	assert.Equal(t, 0.08, doc["mean_fd"])
	assert.Equal(t, "sub-1", doc["subject"])
}

func TestWriteJSON_NoInputs(t *testing.T) {
	t.Parallel()

	task := &engine.Task{
		ID:     "task.datasink.json.empty",
		Params: map[string]cty.Value{"out_path": cty.StringVal(filepath.Join(t.TempDir(), "x.json"))},
		Inputs: map[string]cty.Value{},
	}
	m := &Module{}
	_, err := m.writeJSON(context.Background(), task)
	require.Error(t, err)
}

func TestWriteFile_IntoDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "mask.nii.gz")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o600))
	outDir := filepath.Join(dir, "out", "anat_qap_head_mask")

	task := &engine.Task{
		ID:     "task.datasink.write.sink_anat_qap_head_mask",
		Params: map[string]cty.Value{"out_dir": cty.StringVal(outDir)},
		Inputs: map[string]cty.Value{"in_file": cty.StringVal(src)},
	}

	m := &Module{}
	outputs, err := m.writeFile(context.Background(), task)
	require.NoError(t, err)

	dst := filepath.Join(outDir, "mask.nii.gz")
	assert.Equal(t, dst, outputs["out_file"].AsString())
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestWriteFile_ExactPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "mosaic.png")
	require.NoError(t, os.WriteFile(src, []byte("png"), 0o600))
	dst := filepath.Join(dir, "report", "anat_mosaic.png")

	task := &engine.Task{
		ID:     "task.datasink.write.anat_mosaic_out",
		Params: map[string]cty.Value{"out_path": cty.StringVal(dst)},
		Inputs: map[string]cty.Value{"in_file": cty.StringVal(src)},
	}

	m := &Module{}
	outputs, err := m.writeFile(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, dst, outputs["out_file"].AsString())
	assert.FileExists(t, dst)
}

func TestWriteFile_NoDestination(t *testing.T) {
	t.Parallel()

	task := &engine.Task{
		ID:     "task.datasink.write.w",
		Params: map[string]cty.Value{},
		Inputs: map[string]cty.Value{"in_file": cty.StringVal("/tmp/x")},
	}
	m := &Module{}
	_, err := m.writeFile(context.Background(), task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither out_path nor out_dir")
}
