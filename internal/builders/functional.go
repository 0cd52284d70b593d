package builders

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/manwithadodla/quality-assessment-protocol/internal/resolver"
)

// FunctionalReorient deobliques the raw functional timeseries and resamples
// it into RPI orientation.
func FunctionalReorient(ctx context.Context, r *resolver.Request) error {
	ok, err := r.Require(ctx, FuncScan)
	if err != nil || !ok {
		return err
	}

	refit, err := r.AddNode("afni.refit", "func_deoblique", map[string]cty.Value{
		"deoblique": cty.True,
	})
	if err != nil {
		return err
	}
	if err := r.Bind(FuncScan, refit, "in_file"); err != nil {
		return err
	}

	resample, err := r.AddNode("afni.resample", "func_reorient", map[string]cty.Value{
		"orientation": cty.StringVal("RPI"),
		"outputtype":  cty.StringVal("NIFTI_GZ"),
	})
	if err != nil {
		return err
	}
	if err := r.Graph.Connect(refit, "out_file", resample, "in_file"); err != nil {
		return err
	}

	return r.Publish(FuncReorient, resample, "out_file")
}

// FunctionalMotionCorrect volume-registers the reoriented timeseries to its
// median volume. It produces both the corrected timeseries and the per-volume
// coordinate transformation the displacement metric falls back to.
func FunctionalMotionCorrect(ctx context.Context, r *resolver.Request) error {
	ok, err := r.Require(ctx, FuncReorient)
	if err != nil || !ok {
		return err
	}

	volreg, err := r.AddNode("afni.volreg", "func_motion_correct", map[string]cty.Value{
		"args":       cty.StringVal("-Fourier -twopass"),
		"zpad":       cty.NumberIntVal(4),
		"outputtype": cty.StringVal("NIFTI_GZ"),
	})
	if err != nil {
		return err
	}
	if err := r.Bind(FuncReorient, volreg, "in_file"); err != nil {
		return err
	}

	if err := r.Publish(FuncMotionCorrect, volreg, "out_file"); err != nil {
		return err
	}
	return r.Publish(FuncCoordinateXfm, volreg, "oned_matrix")
}

// FunctionalBrainMask computes the brain mask of the corrected timeseries.
func FunctionalBrainMask(ctx context.Context, r *resolver.Request) error {
	ok, err := r.Require(ctx, FuncMotionCorrect)
	if err != nil || !ok {
		return err
	}

	automask, err := r.AddNode("afni.automask", "func_brain_mask", map[string]cty.Value{
		"outputtype": cty.StringVal("NIFTI_GZ"),
	})
	if err != nil {
		return err
	}
	if err := r.Bind(FuncMotionCorrect, automask, "in_file"); err != nil {
		return err
	}
	return r.Publish(FuncBrainMask, automask, "out_file")
}

// InvertFunctionalBrainMask produces the background mask the ghost-to-signal
// ratio is measured in.
func InvertFunctionalBrainMask(ctx context.Context, r *resolver.Request) error {
	ok, err := r.Require(ctx, FuncBrainMask)
	if err != nil || !ok {
		return err
	}

	invert, err := r.AddNode("afni.calc", "func_inverted_brain_mask", map[string]cty.Value{
		"expr":       cty.StringVal("1-a"),
		"outputtype": cty.StringVal("NIFTI_GZ"),
	})
	if err != nil {
		return err
	}
	if err := r.Bind(FuncBrainMask, invert, "in_file_a"); err != nil {
		return err
	}
	return r.Publish(FuncInvertedBrainMask, invert, "out_file")
}

// MeanFunctional collapses the corrected timeseries into its temporal mean.
func MeanFunctional(ctx context.Context, r *resolver.Request) error {
	ok, err := r.Require(ctx, FuncMotionCorrect)
	if err != nil || !ok {
		return err
	}

	tstat, err := r.AddNode("afni.tstat", "func_mean", map[string]cty.Value{
		"options":    cty.StringVal("-mean"),
		"outputtype": cty.StringVal("NIFTI_GZ"),
	})
	if err != nil {
		return err
	}
	if err := r.Bind(FuncMotionCorrect, tstat, "in_file"); err != nil {
		return err
	}
	return r.Publish(FuncMean, tstat, "out_file")
}

// TemporalStd maps the per-voxel standard deviation of the corrected
// timeseries inside the brain mask.
func TemporalStd(ctx context.Context, r *resolver.Request) error {
	ok, err := r.RequireAll(ctx, FuncMotionCorrect, FuncBrainMask)
	if err != nil || !ok {
		return err
	}

	std, err := r.AddNode("metrics.temporal_std", "func_temporal_std", nil)
	if err != nil {
		return err
	}
	if err := r.Bind(FuncMotionCorrect, std, "in_file"); err != nil {
		return err
	}
	if err := r.Bind(FuncBrainMask, std, "brain_mask"); err != nil {
		return err
	}
	return r.Publish(FuncTemporalStdMap, std, "out_file")
}

// SFSTimeseries estimates the signal-fluctuation sensitivity map and the
// nuisance signal estimate it is derived against.
func SFSTimeseries(ctx context.Context, r *resolver.Request) error {
	ok, err := r.RequireAll(ctx, FuncMotionCorrect, FuncBrainMask, FuncMean, FuncTemporalStdMap)
	if err != nil || !ok {
		return err
	}

	sfs, err := r.AddNode("metrics.sfs", "func_sfs", nil)
	if err != nil {
		return err
	}
	for port, resource := range map[string]string{
		"in_file":          FuncMotionCorrect,
		"brain_mask":       FuncBrainMask,
		"mean_functional":  FuncMean,
		"temporal_std_map": FuncTemporalStdMap,
	} {
		if err := r.Bind(resource, sfs, port); err != nil {
			return err
		}
	}

	if err := r.Publish(FuncSFS, sfs, "sfs_file"); err != nil {
		return err
	}
	return r.Publish(FuncEstNuisance, sfs, "est_nuisance_file")
}

// FunctionalQC computes the spatial and temporal functional metrics and
// writes the merged result to the scan's JSON output. A pre-computed motion
// trace, when present in the pool, is preferred over deriving frame-wise
// displacement from the coordinate transformation.
func FunctionalQC(ctx context.Context, r *resolver.Request) error {
	ok, err := r.RequireAll(ctx,
		FuncMotionCorrect,
		FuncBrainMask,
		FuncInvertedBrainMask,
		FuncMean,
	)
	if err != nil || !ok {
		return err
	}

	// Settle the motion-trace source before any node exists: a stall here
	// must leave the graph untouched.
	fdSource, fdPort := McflirtRelRMS, "rel_rms"
	if !r.Pool.Has(McflirtRelRMS) {
		ok, err := r.Require(ctx, FuncCoordinateXfm)
		if err != nil || !ok {
			return err
		}
		fdSource, fdPort = FuncCoordinateXfm, "coord_xfm"
	}

	fd, err := r.AddNode("metrics.fd", "func_fd", nil)
	if err != nil {
		return err
	}
	if err := r.Bind(fdSource, fd, fdPort); err != nil {
		return err
	}

	spatial, err := r.AddNode("metrics.func_spatial", "qap_functional_spatial", scanIdentity(r))
	if err != nil {
		return err
	}
	if err := r.Graph.SetParam(spatial, "ghost_direction", cty.StringVal(r.Config.GhostDirection)); err != nil {
		return err
	}
	for port, resource := range map[string]string{
		"mean_functional":     FuncMean,
		"brain_mask":          FuncBrainMask,
		"inverted_brain_mask": FuncInvertedBrainMask,
	} {
		if err := r.Bind(resource, spatial, port); err != nil {
			return err
		}
	}

	temporal, err := r.AddNode("metrics.func_temporal", "qap_functional_temporal", scanIdentity(r))
	if err != nil {
		return err
	}
	if err := r.Graph.SetParam(temporal, "exclude_zeros", cty.BoolVal(r.Config.ExcludeZeros)); err != nil {
		return err
	}
	for port, resource := range map[string]string{
		"in_file":    FuncMotionCorrect,
		"brain_mask": FuncBrainMask,
	} {
		if err := r.Bind(resource, temporal, port); err != nil {
			return err
		}
	}
	if err := r.Graph.Connect(fd, "out_file", temporal, "fd_file"); err != nil {
		return err
	}

	outPath := r.Config.OutputPath(QAPFunctional + ".json")
	sink, err := r.AddNode("datasink.json", "qap_functional_json", map[string]cty.Value{
		"out_path": cty.StringVal(outPath),
	})
	if err != nil {
		return err
	}
	if err := r.Graph.Connect(spatial, "qc", sink, "spatial"); err != nil {
		return err
	}
	if err := r.Graph.Connect(temporal, "qc", sink, "temporal"); err != nil {
		return err
	}

	if r.Config.WriteReport {
		if err := mosaic(r, "func_mosaic", FuncMean, ""); err != nil {
			return err
		}
	}

	return r.PublishPath(QAPFunctional, outPath)
}

// FunctionalHeaderInfo extracts header fields from the raw functional scan.
func FunctionalHeaderInfo(ctx context.Context, r *resolver.Request) error {
	ok, err := r.Require(ctx, FuncScan)
	if err != nil || !ok {
		return err
	}

	header, err := r.AddNode("metrics.header_info", "func_header_info", scanIdentity(r))
	if err != nil {
		return err
	}
	if err := r.Bind(FuncScan, header, "in_file"); err != nil {
		return err
	}

	outPath := r.Config.OutputPath(FuncHeaderInfo + ".json")
	if err := writeJSON(r, "func_header_info_json", outPath, header, "qc"); err != nil {
		return err
	}
	return r.PublishPath(FuncHeaderInfo, outPath)
}
