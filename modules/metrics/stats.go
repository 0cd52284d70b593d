package metrics

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/zclconf/go-cty/cty"

	"github.com/manwithadodla/quality-assessment-protocol/internal/engine"
	"github.com/manwithadodla/quality-assessment-protocol/internal/nifti"
)

// nodeDir creates and returns the scratch directory for one node.
func (m *Module) nodeDir(t *engine.Task) (string, error) {
	dir := filepath.Join(m.WorkDir, string(t.ID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// loadInput loads the NIfTI image bound to the named port.
func loadInput(t *engine.Task, port string) (*nifti.Image, error) {
	path, err := t.InputString(port)
	if err != nil {
		return nil, err
	}
	img, err := nifti.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%s: input %q: %w", t.ID, port, err)
	}
	return img, nil
}

// masked returns the voxels of one volume where the mask is nonzero.
func masked(img *nifti.Image, mask *nifti.Image, vol int) []float64 {
	data := img.Volume(vol)
	mdata := mask.Volume(0)
	out := make([]float64, 0, len(data))
	for i, v := range data {
		if mdata[i] > 0 {
			out = append(out, v)
		}
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// mad returns the median absolute deviation.
func mad(xs []float64) float64 {
	med := median(xs)
	dev := make([]float64, len(xs))
	for i, x := range xs {
		dev[i] = math.Abs(x - med)
	}
	return median(dev)
}

func dropZeros(xs []float64) []float64 {
	out := xs[:0:0]
	for _, x := range xs {
		if x != 0 {
			out = append(out, x)
		}
	}
	return out
}

// qc assembles a node's qc output object: the scan identity parameters the
// node carries, plus the computed metric values.
func qc(t *engine.Task, values map[string]float64) engine.Outputs {
	obj := make(map[string]cty.Value, len(values)+4)
	for _, id := range []string{"site", "subject", "session", "scan"} {
		if v, ok := t.Params[id]; ok {
			obj[id] = v
		}
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := values[k]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		obj[k] = cty.NumberFloatVal(v)
	}
	return engine.Outputs{"qc": cty.ObjectVal(obj)}
}
