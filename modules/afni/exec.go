package afni

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/manwithadodla/quality-assessment-protocol/internal/ctxlog"
	"github.com/manwithadodla/quality-assessment-protocol/internal/engine"
)

// nodeDir creates and returns the scratch directory for one node.
func (m *Module) nodeDir(t *engine.Task) (string, error) {
	dir := filepath.Join(m.WorkDir, string(t.ID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// outName returns an output filename honoring the node's outputtype param.
func outName(t *engine.Task, base string) string {
	if v, ok := t.Input("outputtype"); ok && v.Type() == cty.String && !v.IsNull() && v.AsString() == "NIFTI_GZ" {
		return base + ".nii.gz"
	}
	return base + ".nii"
}

// run executes one AFNI command, returning its stdout. Stderr is folded into
// the error on failure.
func run(ctx context.Context, t *engine.Task, name string, args ...string) (string, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Running command.", "node", t.ID, "cmd", name, "args", strings.Join(args, " "))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %s failed: %w: %s", t.ID, name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// copyFile duplicates src at dst, for tools that modify their input in place.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
