package metrics

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/zclconf/go-cty/cty"

	"github.com/manwithadodla/quality-assessment-protocol/internal/engine"
	"github.com/manwithadodla/quality-assessment-protocol/internal/nifti"
)

// framewiseDisplacement produces the per-frame head displacement series.
// A pre-computed relative RMS trace is used verbatim when bound; otherwise
// the series is derived from the volume registration affines following
// Jenkinson's RMS deviation with an 80mm head radius.
func (m *Module) framewiseDisplacement(ctx context.Context, t *engine.Task) (engine.Outputs, error) {
	var series []float64

	if path, err := t.InputString("rel_rms"); err == nil {
		rows, err := read1D(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.ID, err)
		}
		series, err = column(rows, 0)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.ID, err)
		}
	} else {
		path, err := t.InputString("coord_xfm")
		if err != nil {
			return nil, fmt.Errorf("%s: neither rel_rms nor coord_xfm is bound", t.ID)
		}
		rows, err := read1D(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.ID, err)
		}
		series, err = fdJenkinson(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.ID, err)
		}
	}

	dir, err := m.nodeDir(t)
	if err != nil {
		return nil, err
	}
	out := filepath.Join(dir, "fd.1D")
	if err := write1D(out, series); err != nil {
		return nil, fmt.Errorf("%s: %w", t.ID, err)
	}
	return engine.Outputs{"out_file": cty.StringVal(out)}, nil
}

// fdJenkinson converts a series of 12-parameter affines into frame-to-frame
// RMS deviations. The first frame has no predecessor and scores zero.
func fdJenkinson(rows [][]float64) ([]float64, error) {
	const radius = 80.0

	mats := make([][16]float64, len(rows))
	for i, row := range rows {
		if len(row) < 12 {
			return nil, fmt.Errorf("affine row %d has %d parameters, need 12", i, len(row))
		}
		mats[i] = [16]float64{
			row[0], row[1], row[2], row[3],
			row[4], row[5], row[6], row[7],
			row[8], row[9], row[10], row[11],
			0, 0, 0, 1,
		}
	}

	fd := make([]float64, len(mats))
	for i := 1; i < len(mats); i++ {
		inv, err := invert4(mats[i-1])
		if err != nil {
			return nil, fmt.Errorf("affine row %d is singular", i-1)
		}
		d := mul4(mats[i], inv)
		// Deviation from identity.
		for r := 0; r < 4; r++ {
			d[r*4+r] -= 1
		}
		rot, trans := 0.0, 0.0
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				rot += d[r*4+c] * d[r*4+c]
			}
			trans += d[r*4+3] * d[r*4+3]
		}
		fd[i] = math.Sqrt(radius*radius/5*rot + trans)
	}
	return fd, nil
}

func mul4(a, b [16]float64) [16]float64 {
	var out [16]float64
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			sum := 0.0
			for k := 0; k < 4; k++ {
				sum += a[r*4+k] * b[k*4+c]
			}
			out[r*4+c] = sum
		}
	}
	return out
}

// invert4 inverts a 4x4 matrix by Gauss-Jordan elimination with partial
// pivoting.
func invert4(m [16]float64) ([16]float64, error) {
	var aug [4][8]float64
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			aug[r][c] = m[r*4+c]
		}
		aug[r][4+r] = 1
	}
	for col := 0; col < 4; col++ {
		pivot := col
		for r := col + 1; r < 4; r++ {
			if math.Abs(aug[r][col]) > math.Abs(aug[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(aug[pivot][col]) < 1e-12 {
			return [16]float64{}, fmt.Errorf("singular matrix")
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]
		p := aug[col][col]
		for c := 0; c < 8; c++ {
			aug[col][c] /= p
		}
		for r := 0; r < 4; r++ {
			if r == col {
				continue
			}
			f := aug[r][col]
			for c := 0; c < 8; c++ {
				aug[r][c] -= f * aug[col][c]
			}
		}
	}
	var out [16]float64
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[r*4+c] = aug[r][4+c]
		}
	}
	return out, nil
}

// funcSpatial computes the spatial functional metrics on the mean EPI:
// SNR, EFC, FBER and the ghost-to-signal ratio along the configured
// phase-encoding direction.
func (m *Module) funcSpatial(ctx context.Context, t *engine.Task) (engine.Outputs, error) {
	meanFunc, err := loadInput(t, "mean_functional")
	if err != nil {
		return nil, err
	}
	brainMask, err := loadInput(t, "brain_mask")
	if err != nil {
		return nil, err
	}
	invMask, err := loadInput(t, "inverted_brain_mask")
	if err != nil {
		return nil, err
	}
	direction, err := t.InputString("ghost_direction")
	if err != nil {
		return nil, err
	}

	fg := masked(meanFunc, brainMask, 0)
	bg := masked(meanFunc, invMask, 0)

	gsr, err := ghostToSignal(meanFunc, brainMask, direction)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.ID, err)
	}

	values := map[string]float64{
		"snr":                safeDiv(mean(fg), stddev(bg)),
		"efc":                efc(meanFunc.Volume(0)),
		"fber":               safeDiv(meanSq(fg), meanSq(bg)),
		"ghost_" + direction: gsr,
		"fg_mean":            mean(fg),
		"fg_std":             stddev(fg),
		"bg_mean":            mean(bg),
		"bg_std":             stddev(bg),
	}
	return qc(t, values), nil
}

// ghostToSignal estimates the N/2 ghost intensity: the brain mask shifted
// half the field of view along the phase-encoding axis marks where the
// ghost folds in, minus any overlap with the brain itself.
func ghostToSignal(img, mask *nifti.Image, direction string) (float64, error) {
	var dx, dy int
	switch direction {
	case "x":
		dx = img.Nx / 2
	case "y":
		dy = img.Ny / 2
	default:
		return 0, fmt.Errorf("unsupported ghost direction %q", direction)
	}

	var ghost, signal, nonGhostBg []float64
	for z := 0; z < img.Nz; z++ {
		for y := 0; y < img.Ny; y++ {
			for x := 0; x < img.Nx; x++ {
				inBrain := mask.At(x, y, z, 0) > 0
				sx, sy := (x+dx)%img.Nx, (y+dy)%img.Ny
				inGhost := mask.At(sx, sy, z, 0) > 0 && !inBrain
				v := img.At(x, y, z, 0)
				switch {
				case inBrain:
					signal = append(signal, v)
				case inGhost:
					ghost = append(ghost, v)
				default:
					nonGhostBg = append(nonGhostBg, v)
				}
			}
		}
	}
	return safeDiv(mean(ghost)-mean(nonGhostBg), mean(signal)), nil
}

// funcTemporal computes the temporal functional metrics: standardized
// DVARS, per-volume outlier and quality indices, and the frame-wise
// displacement summary.
func (m *Module) funcTemporal(ctx context.Context, t *engine.Task) (engine.Outputs, error) {
	img, err := loadInput(t, "in_file")
	if err != nil {
		return nil, err
	}
	brainMask, err := loadInput(t, "brain_mask")
	if err != nil {
		return nil, err
	}
	fdPath, err := t.InputString("fd_file")
	if err != nil {
		return nil, err
	}
	fdRows, err := read1D(fdPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.ID, err)
	}
	fd, err := column(fdRows, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.ID, err)
	}

	if img.Nt < 2 {
		return nil, fmt.Errorf("%s: input is not a timeseries", t.ID)
	}

	excludeZeros := false
	if v, ok := t.Input("exclude_zeros"); ok && v.True() {
		excludeZeros = true
	}

	// Indices of in-mask voxels, computed once.
	mdata := brainMask.Volume(0)
	var idx []int
	for i, v := range mdata {
		if v <= 0 {
			continue
		}
		if excludeZeros && img.Volume(0)[i] == 0 {
			continue
		}
		idx = append(idx, i)
	}
	if len(idx) == 0 {
		return nil, fmt.Errorf("%s: brain mask is empty", t.ID)
	}

	dvars := dvarsSeries(img, idx)
	outliers := outlierSeries(img, idx)
	quality := qualitySeries(img, idx)

	const fdThresh = 0.2
	numFD := 0
	for _, v := range fd {
		if v > fdThresh {
			numFD++
		}
	}

	values := map[string]float64{
		"dvars_mean":    mean(dvars),
		"dvars_std":     stddev(dvars),
		"outlier_mean":  mean(outliers),
		"quality_mean":  mean(quality),
		"mean_fd":       mean(fd),
		"num_fd":        float64(numFD),
		"perc_fd":       safeDiv(float64(numFD), float64(len(fd))) * 100,
		"num_timepoints": float64(img.Nt),
	}
	return qc(t, values), nil
}

// dvarsSeries is the per-frame RMS of the temporal derivative over the
// masked voxels, normalized by the median in-mask intensity of the first
// frame. The first frame scores zero.
func dvarsSeries(img *nifti.Image, idx []int) []float64 {
	first := make([]float64, len(idx))
	vol0 := img.Volume(0)
	for i, j := range idx {
		first[i] = vol0[j]
	}
	norm := median(first)

	out := make([]float64, img.Nt)
	for frame := 1; frame < img.Nt; frame++ {
		cur, prev := img.Volume(frame), img.Volume(frame-1)
		sum := 0.0
		for _, j := range idx {
			d := cur[j] - prev[j]
			sum += d * d
		}
		out[frame] = safeDiv(math.Sqrt(sum/float64(len(idx))), norm)
	}
	return out
}

// outlierSeries is the per-frame fraction of masked voxels further than
// 3.5 median absolute deviations from the frame median.
func outlierSeries(img *nifti.Image, idx []int) []float64 {
	out := make([]float64, img.Nt)
	vals := make([]float64, len(idx))
	for frame := 0; frame < img.Nt; frame++ {
		vol := img.Volume(frame)
		for i, j := range idx {
			vals[i] = vol[j]
		}
		med, dev := median(vals), mad(vals)
		if dev == 0 {
			continue
		}
		count := 0
		for _, v := range vals {
			if math.Abs(v-med) > 3.5*dev {
				count++
			}
		}
		out[frame] = float64(count) / float64(len(idx))
	}
	return out
}

// qualitySeries scores each frame by its mean absolute deviation from the
// voxel-wise median volume, normalized by that volume's mean.
func qualitySeries(img *nifti.Image, idx []int) []float64 {
	// Voxel-wise median over time.
	medVol := make([]float64, len(idx))
	series := make([]float64, img.Nt)
	for i, j := range idx {
		for frame := 0; frame < img.Nt; frame++ {
			series[frame] = img.Volume(frame)[j]
		}
		medVol[i] = median(series)
	}
	norm := mean(medVol)

	out := make([]float64, img.Nt)
	for frame := 0; frame < img.Nt; frame++ {
		vol := img.Volume(frame)
		sum := 0.0
		for i, j := range idx {
			sum += math.Abs(vol[j] - medVol[i])
		}
		out[frame] = safeDiv(sum/float64(len(idx)), norm)
	}
	return out
}

// temporalStd maps the per-voxel standard deviation over time, zeroed
// outside the brain mask.
func (m *Module) temporalStd(ctx context.Context, t *engine.Task) (engine.Outputs, error) {
	img, err := loadInput(t, "in_file")
	if err != nil {
		return nil, err
	}
	brainMask, err := loadInput(t, "brain_mask")
	if err != nil {
		return nil, err
	}
	if img.Nt < 2 {
		return nil, fmt.Errorf("%s: input is not a timeseries", t.ID)
	}

	n := img.NumVoxels()
	mdata := brainMask.Volume(0)
	out := &nifti.Image{
		Nx: img.Nx, Ny: img.Ny, Nz: img.Nz, Nt: 1,
		Pixdim: img.Pixdim,
		Data:   make([]float64, n),
	}
	series := make([]float64, img.Nt)
	for j := 0; j < n; j++ {
		if mdata[j] <= 0 {
			continue
		}
		for frame := 0; frame < img.Nt; frame++ {
			series[frame] = img.Volume(frame)[j]
		}
		out.Data[j] = stddev(series)
	}

	dir, err := m.nodeDir(t)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "temporal_std.nii.gz")
	if err := nifti.Save(path, out); err != nil {
		return nil, fmt.Errorf("%s: %w", t.ID, err)
	}
	return engine.Outputs{"out_file": cty.StringVal(path)}, nil
}

// sfs computes the signal-fluctuation sensitivity map: the mean signal
// scaled against the voxel's temporal fluctuation relative to the global
// nuisance level estimated from the out-of-brain timecourse.
func (m *Module) sfs(ctx context.Context, t *engine.Task) (engine.Outputs, error) {
	img, err := loadInput(t, "in_file")
	if err != nil {
		return nil, err
	}
	brainMask, err := loadInput(t, "brain_mask")
	if err != nil {
		return nil, err
	}
	meanFunc, err := loadInput(t, "mean_functional")
	if err != nil {
		return nil, err
	}
	stdMap, err := loadInput(t, "temporal_std_map")
	if err != nil {
		return nil, err
	}

	// Per-frame mean of out-of-brain voxels approximates the nuisance
	// signal level.
	mdata := brainMask.Volume(0)
	nuisance := make([]float64, img.Nt)
	for frame := 0; frame < img.Nt; frame++ {
		vol := img.Volume(frame)
		sum, count := 0.0, 0
		for j, mv := range mdata {
			if mv <= 0 {
				sum += vol[j]
				count++
			}
		}
		if count > 0 {
			nuisance[frame] = sum / float64(count)
		}
	}
	nuisanceStd := stddev(nuisance)

	n := img.NumVoxels()
	out := &nifti.Image{
		Nx: img.Nx, Ny: img.Ny, Nz: img.Nz, Nt: 1,
		Pixdim: img.Pixdim,
		Data:   make([]float64, n),
	}
	meanData, stdData := meanFunc.Volume(0), stdMap.Volume(0)
	for j := 0; j < n; j++ {
		if mdata[j] <= 0 || stdData[j] == 0 {
			continue
		}
		out.Data[j] = safeDiv(meanData[j]*nuisanceStd, stdData[j])
	}

	dir, err := m.nodeDir(t)
	if err != nil {
		return nil, err
	}
	sfsPath := filepath.Join(dir, "sfs.nii.gz")
	if err := nifti.Save(sfsPath, out); err != nil {
		return nil, fmt.Errorf("%s: %w", t.ID, err)
	}
	nuisancePath := filepath.Join(dir, "est_nuisance.1D")
	if err := write1D(nuisancePath, nuisance); err != nil {
		return nil, fmt.Errorf("%s: %w", t.ID, err)
	}
	return engine.Outputs{
		"sfs_file":          cty.StringVal(sfsPath),
		"est_nuisance_file": cty.StringVal(nuisancePath),
	}, nil
}
