package metrics

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/manwithadodla/quality-assessment-protocol/internal/engine"
	"github.com/manwithadodla/quality-assessment-protocol/internal/nifti"
)

// exprString turns a clip level into the thresholding expression the skull
// mask is computed with.
func (m *Module) exprString(ctx context.Context, t *engine.Task) (engine.Outputs, error) {
	v, ok := t.Input("clip_level_value")
	if !ok {
		return nil, fmt.Errorf("%s: required input %q is not bound", t.ID, "clip_level_value")
	}
	clip, _ := v.AsBigFloat().Float64()
	return engine.Outputs{
		"expr_string": cty.StringVal(fmt.Sprintf("a*step(a-%g)", clip)),
	}, nil
}

// sliceMask grows a mask slice by slice through the lower head so that face
// and neck voxels excluded by the dilated skull mask are recovered. The
// affine from the template registration locates the slab to fill.
func (m *Module) sliceMask(ctx context.Context, t *engine.Task) (engine.Outputs, error) {
	img, err := loadInput(t, "in_file")
	if err != nil {
		return nil, err
	}
	xfmPath, err := t.InputString("transform")
	if err != nil {
		return nil, err
	}
	rows, err := read1D(xfmPath)
	if err != nil {
		return nil, fmt.Errorf("%s: transform: %w", t.ID, err)
	}
	if len(rows) == 0 || len(rows[0]) < 12 {
		return nil, fmt.Errorf("%s: transform %s is not a 12-parameter affine", t.ID, xfmPath)
	}

	// The affine's z translation shifts the slab of slices to fill; without
	// it the slab sits at the template's lower-head position.
	zShift := rows[0][11] / math.Max(float64(img.Pixdim[3]), 1e-6)
	zLow := 0
	zHigh := img.Nz / 2
	if s := int(math.Round(zShift)); s > 0 && s < img.Nz/2 {
		zHigh += s
	}

	nonzero := dropZeros(img.Volume(0))
	thresh := mean(nonzero) * 0.3

	mask := &nifti.Image{
		Nx: img.Nx, Ny: img.Ny, Nz: img.Nz, Nt: 1,
		Pixdim: img.Pixdim,
		Data:   make([]float64, img.NumVoxels()),
	}
	for z := zLow; z < zHigh; z++ {
		for y := 0; y < img.Ny; y++ {
			lo, hi := -1, -1
			for x := 0; x < img.Nx; x++ {
				if img.At(x, y, z, 0) > thresh {
					if lo < 0 {
						lo = x
					}
					hi = x
				}
			}
			if lo < 0 {
				continue
			}
			for x := lo; x <= hi; x++ {
				mask.Data[(z*img.Ny+y)*img.Nx+x] = 1
			}
		}
	}

	dir, err := m.nodeDir(t)
	if err != nil {
		return nil, err
	}
	out := filepath.Join(dir, "slice_mask.nii.gz")
	if err := nifti.Save(out, mask); err != nil {
		return nil, fmt.Errorf("%s: %w", t.ID, err)
	}
	return engine.Outputs{"out_file": cty.StringVal(out)}, nil
}

// artifacts estimates the fraction of artifact voxels visible in the
// background (FAV): background voxels brighter than the background noise
// floor plus two standard deviations.
func (m *Module) artifacts(ctx context.Context, t *engine.Task) (engine.Outputs, error) {
	img, err := loadInput(t, "in_file")
	if err != nil {
		return nil, err
	}
	bgMask, err := loadInput(t, "bg_mask")
	if err != nil {
		return nil, err
	}

	bg := masked(img, bgMask, 0)
	if v, ok := t.Input("exclude_zeros"); ok && v.True() {
		bg = dropZeros(bg)
	}
	fav := 0.0
	if len(bg) > 0 {
		thresh := mean(bg) + 2*stddev(bg)
		count := 0
		for _, v := range bg {
			if v > thresh {
				count++
			}
		}
		fav = float64(count) / float64(len(bg))
	}

	dir, err := m.nodeDir(t)
	if err != nil {
		return nil, err
	}
	out := filepath.Join(dir, "fav.txt")
	if err := os.WriteFile(out, []byte(strconv.FormatFloat(fav, 'f', 6, 64)+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("%s: %w", t.ID, err)
	}
	return engine.Outputs{
		"out_file": cty.StringVal(out),
		"fav":      cty.NumberFloatVal(fav),
	}, nil
}

// anatSpatial computes the anatomical spatial quality metrics: SNR, CNR,
// FBER, EFC and the artifact fraction, plus the summary statistics of the
// regions they derive from.
func (m *Module) anatSpatial(ctx context.Context, t *engine.Task) (engine.Outputs, error) {
	anat, err := loadInput(t, "anatomical_reorient")
	if err != nil {
		return nil, err
	}
	headMask, err := loadInput(t, "head_mask")
	if err != nil {
		return nil, err
	}
	gmMask, err := loadInput(t, "gm_mask")
	if err != nil {
		return nil, err
	}
	wmMask, err := loadInput(t, "wm_mask")
	if err != nil {
		return nil, err
	}
	csfMask, err := loadInput(t, "csf_mask")
	if err != nil {
		return nil, err
	}

	favPath, err := t.InputString("fav_artifacts")
	if err != nil {
		return nil, err
	}
	favRaw, err := os.ReadFile(favPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.ID, err)
	}
	fav, err := strconv.ParseFloat(strings.TrimSpace(string(favRaw)), 64)
	if err != nil {
		return nil, fmt.Errorf("%s: unparseable artifact fraction in %s", t.ID, favPath)
	}

	fg, bg := splitByMask(anat, headMask)
	gm := masked(anat, gmMask, 0)
	wm := masked(anat, wmMask, 0)
	csf := masked(anat, csfMask, 0)

	bgStd := stddev(bg)
	values := map[string]float64{
		"snr":      safeDiv(mean(fg), bgStd),
		"cnr":      safeDiv(mean(gm)-mean(wm), bgStd),
		"fber":     safeDiv(meanSq(fg), meanSq(bg)),
		"efc":      efc(fg),
		"qi1":      fav,
		"fg_mean":  mean(fg),
		"fg_std":   stddev(fg),
		"fg_size":  float64(len(fg)),
		"bg_mean":  mean(bg),
		"bg_std":   bgStd,
		"bg_size":  float64(len(bg)),
		"gm_mean":  mean(gm),
		"wm_mean":  mean(wm),
		"csf_mean": mean(csf),
	}
	return qc(t, values), nil
}

// headerInfo reports the image geometry recorded in the NIfTI header.
func (m *Module) headerInfo(ctx context.Context, t *engine.Task) (engine.Outputs, error) {
	img, err := loadInput(t, "in_file")
	if err != nil {
		return nil, err
	}

	obj := map[string]cty.Value{
		"nx":       cty.NumberIntVal(int64(img.Nx)),
		"ny":       cty.NumberIntVal(int64(img.Ny)),
		"nz":       cty.NumberIntVal(int64(img.Nz)),
		"nt":       cty.NumberIntVal(int64(img.Nt)),
		"dx":       cty.NumberFloatVal(float64(img.Pixdim[1])),
		"dy":       cty.NumberFloatVal(float64(img.Pixdim[2])),
		"dz":       cty.NumberFloatVal(float64(img.Pixdim[3])),
		"tr":       cty.NumberFloatVal(float64(img.Pixdim[4])),
		"datatype": cty.NumberIntVal(int64(img.Datatype)),
		"descrip":  cty.StringVal(img.Descrip),
	}
	for _, id := range []string{"site", "subject", "session", "scan"} {
		if v, ok := t.Params[id]; ok {
			obj[id] = v
		}
	}
	return engine.Outputs{"qc": cty.ObjectVal(obj)}, nil
}

// splitByMask partitions one volume into in-mask and out-of-mask voxels.
func splitByMask(img, mask *nifti.Image) (fg, bg []float64) {
	data := img.Volume(0)
	mdata := mask.Volume(0)
	for i, v := range data {
		if mdata[i] > 0 {
			fg = append(fg, v)
		} else {
			bg = append(bg, v)
		}
	}
	return fg, bg
}

func meanSq(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x * x
	}
	return sum / float64(len(xs))
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// efc is the entropy focus criterion: the Shannon entropy of voxel
// intensities normalized by their Euclidean norm, scaled so a maximally
// uniform image scores 1.
func efc(xs []float64) float64 {
	n := float64(len(xs))
	if n == 0 {
		return 0
	}
	norm := math.Sqrt(meanSq(xs) * n)
	if norm == 0 {
		return 0
	}
	const eps = 1e-16
	ent := 0.0
	for _, x := range xs {
		v := math.Abs(x) / norm
		ent += v * math.Log(v+eps)
	}
	ideal := (1 / math.Sqrt(n)) * math.Log(1/math.Sqrt(n)) * n
	return safeDiv(ent, ideal)
}
