package afni

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/manwithadodla/quality-assessment-protocol/internal/engine"
)

// refit runs 3drefit. The tool edits its input in place, so the input is
// copied into the scratch directory first.
func (m *Module) refit(ctx context.Context, t *engine.Task) (engine.Outputs, error) {
	in, err := t.InputString("in_file")
	if err != nil {
		return nil, err
	}
	dir, err := m.nodeDir(t)
	if err != nil {
		return nil, err
	}

	out := filepath.Join(dir, filepath.Base(in))
	if err := copyFile(in, out); err != nil {
		return nil, fmt.Errorf("%s: %w", t.ID, err)
	}

	args := []string{}
	if v, ok := t.Input("deoblique"); ok && v.True() {
		args = append(args, "-deoblique")
	}
	args = append(args, out)
	if _, err := run(ctx, t, "3drefit", args...); err != nil {
		return nil, err
	}
	return engine.Outputs{"out_file": cty.StringVal(out)}, nil
}

func (m *Module) resample(ctx context.Context, t *engine.Task) (engine.Outputs, error) {
	in, err := t.InputString("in_file")
	if err != nil {
		return nil, err
	}
	orient, err := t.InputString("orientation")
	if err != nil {
		return nil, err
	}
	dir, err := m.nodeDir(t)
	if err != nil {
		return nil, err
	}

	out := filepath.Join(dir, outName(t, "resample"))
	if _, err := run(ctx, t, "3dresample", "-orient", orient, "-prefix", out, "-inset", in); err != nil {
		return nil, err
	}
	return engine.Outputs{"out_file": cty.StringVal(out)}, nil
}

func (m *Module) allineate(ctx context.Context, t *engine.Task) (engine.Outputs, error) {
	in, err := t.InputString("in_file")
	if err != nil {
		return nil, err
	}
	ref, err := t.InputString("reference")
	if err != nil {
		return nil, err
	}
	dir, err := m.nodeDir(t)
	if err != nil {
		return nil, err
	}

	out := filepath.Join(dir, outName(t, "allineate"))
	mat := filepath.Join(dir, "allineate.aff12.1D")
	args := []string{"-base", ref, "-source", in, "-prefix", out, "-1Dmatrix_save", mat}
	if v, ok := t.Input("cost"); ok && v.Type() == cty.String {
		args = append(args, "-cost", v.AsString())
	}
	if v, ok := t.Input("two_pass"); ok && v.True() {
		args = append(args, "-twopass")
	}
	if _, err := run(ctx, t, "3dAllineate", args...); err != nil {
		return nil, err
	}
	return engine.Outputs{
		"out_file":   cty.StringVal(out),
		"out_matrix": cty.StringVal(mat),
	}, nil
}

// clipLevel parses the threshold 3dClipLevel prints to stdout.
func (m *Module) clipLevel(ctx context.Context, t *engine.Task) (engine.Outputs, error) {
	in, err := t.InputString("in_file")
	if err != nil {
		return nil, err
	}
	stdout, err := run(ctx, t, "3dClipLevel", in)
	if err != nil {
		return nil, err
	}
	val, err := strconv.ParseFloat(strings.TrimSpace(stdout), 64)
	if err != nil {
		return nil, fmt.Errorf("%s: unparseable 3dClipLevel output %q", t.ID, strings.TrimSpace(stdout))
	}
	return engine.Outputs{"clip_val": cty.NumberFloatVal(val)}, nil
}

func (m *Module) calc(ctx context.Context, t *engine.Task) (engine.Outputs, error) {
	a, err := t.InputString("in_file_a")
	if err != nil {
		return nil, err
	}
	expr, err := t.InputString("expr")
	if err != nil {
		return nil, err
	}
	dir, err := m.nodeDir(t)
	if err != nil {
		return nil, err
	}

	out := filepath.Join(dir, outName(t, "calc"))
	args := []string{"-a", a}
	if b, err := t.InputString("in_file_b"); err == nil {
		args = append(args, "-b", b)
	}
	args = append(args, "-expr", expr, "-prefix", out)
	if _, err := run(ctx, t, "3dcalc", args...); err != nil {
		return nil, err
	}
	return engine.Outputs{"out_file": cty.StringVal(out)}, nil
}

func (m *Module) maskTool(ctx context.Context, t *engine.Task) (engine.Outputs, error) {
	in, err := t.InputString("in_file")
	if err != nil {
		return nil, err
	}
	dir, err := m.nodeDir(t)
	if err != nil {
		return nil, err
	}

	out := filepath.Join(dir, outName(t, "mask_tool"))
	args := []string{"-input", in, "-prefix", out}
	if v, err := t.InputString("dilate_inputs"); err == nil {
		args = append(args, "-dilate_inputs")
		args = append(args, strings.Fields(v)...)
	}
	if v, ok := t.Input("fill_holes"); ok && v.Type() == cty.Bool && v.True() {
		args = append(args, "-fill_holes")
	}
	if _, err := run(ctx, t, "3dmask_tool", args...); err != nil {
		return nil, err
	}
	return engine.Outputs{"out_file": cty.StringVal(out)}, nil
}

// seg runs 3dSeg; the classified volume lands in the node's scratch
// directory under the prefix it is given.
func (m *Module) seg(ctx context.Context, t *engine.Task) (engine.Outputs, error) {
	in, err := t.InputString("in_file")
	if err != nil {
		return nil, err
	}
	mask, err := t.InputString("mask")
	if err != nil {
		return nil, err
	}
	dir, err := m.nodeDir(t)
	if err != nil {
		return nil, err
	}

	prefix := filepath.Join(dir, "segment")
	if _, err := run(ctx, t, "3dSeg", "-anat", in, "-mask", mask, "-prefix", prefix); err != nil {
		return nil, err
	}
	return engine.Outputs{"out_file": cty.StringVal(filepath.Join(prefix, "Classes.nii.gz"))}, nil
}

func (m *Module) automask(ctx context.Context, t *engine.Task) (engine.Outputs, error) {
	in, err := t.InputString("in_file")
	if err != nil {
		return nil, err
	}
	dir, err := m.nodeDir(t)
	if err != nil {
		return nil, err
	}

	out := filepath.Join(dir, outName(t, "automask"))
	if _, err := run(ctx, t, "3dAutomask", "-prefix", out, in); err != nil {
		return nil, err
	}
	return engine.Outputs{"out_file": cty.StringVal(out)}, nil
}

func (m *Module) volreg(ctx context.Context, t *engine.Task) (engine.Outputs, error) {
	in, err := t.InputString("in_file")
	if err != nil {
		return nil, err
	}
	dir, err := m.nodeDir(t)
	if err != nil {
		return nil, err
	}

	out := filepath.Join(dir, outName(t, "volreg"))
	mat := filepath.Join(dir, "volreg.aff12.1D")
	oned := filepath.Join(dir, "volreg_motion.1D")
	args := []string{}
	if v, err := t.InputString("args"); err == nil {
		args = append(args, strings.Fields(v)...)
	}
	if v, ok := t.Input("zpad"); ok && v.Type() == cty.Number {
		zpad, _ := v.AsBigFloat().Int64()
		args = append(args, "-zpad", strconv.FormatInt(zpad, 10))
	}
	args = append(args, "-prefix", out, "-1Dmatrix_save", mat, "-1Dfile", oned, in)
	if _, err := run(ctx, t, "3dvolreg", args...); err != nil {
		return nil, err
	}
	return engine.Outputs{
		"out_file":    cty.StringVal(out),
		"oned_matrix": cty.StringVal(mat),
		"oned_file":   cty.StringVal(oned),
	}, nil
}

func (m *Module) tstat(ctx context.Context, t *engine.Task) (engine.Outputs, error) {
	in, err := t.InputString("in_file")
	if err != nil {
		return nil, err
	}
	dir, err := m.nodeDir(t)
	if err != nil {
		return nil, err
	}

	out := filepath.Join(dir, outName(t, "tstat"))
	args := []string{}
	if v, err := t.InputString("options"); err == nil {
		args = append(args, strings.Fields(v)...)
	}
	args = append(args, "-prefix", out, in)
	if _, err := run(ctx, t, "3dTstat", args...); err != nil {
		return nil, err
	}
	return engine.Outputs{"out_file": cty.StringVal(out)}, nil
}
