package builders

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/manwithadodla/quality-assessment-protocol/internal/resolver"
)

// AnatomicalReorient deobliques the raw anatomical scan and resamples it
// into RPI orientation. Everything downstream of the raw scan starts here.
func AnatomicalReorient(ctx context.Context, r *resolver.Request) error {
	ok, err := r.Require(ctx, AnatScan)
	if err != nil || !ok {
		return err
	}

	refit, err := r.AddNode("afni.refit", "anat_deoblique", map[string]cty.Value{
		"deoblique": cty.True,
	})
	if err != nil {
		return err
	}
	if err := r.Bind(AnatScan, refit, "in_file"); err != nil {
		return err
	}

	resample, err := r.AddNode("afni.resample", "anat_reorient", map[string]cty.Value{
		"orientation": cty.StringVal("RPI"),
		"outputtype":  cty.StringVal("NIFTI_GZ"),
	})
	if err != nil {
		return err
	}
	if err := r.Graph.Connect(refit, "out_file", resample, "in_file"); err != nil {
		return err
	}

	return r.Publish(AnatReorient, resample, "out_file")
}

// AnatomicalLinearRegistration registers the reoriented anatomical to the
// configured template and produces the affine transform the head mask needs.
func AnatomicalLinearRegistration(ctx context.Context, r *resolver.Request) error {
	if err := r.Config.RequireTemplate(); err != nil {
		return err
	}
	ok, err := r.Require(ctx, AnatReorient)
	if err != nil || !ok {
		return err
	}

	allineate, err := r.AddNode("afni.allineate", "anat_allineate", map[string]cty.Value{
		"reference":  cty.StringVal(r.Config.AnatomicalTemplate),
		"cost":       cty.StringVal("mi"),
		"two_pass":   cty.True,
		"outputtype": cty.StringVal("NIFTI_GZ"),
	})
	if err != nil {
		return err
	}
	if err := r.Bind(AnatReorient, allineate, "in_file"); err != nil {
		return err
	}

	return r.Publish(AnatLinearXfm, allineate, "out_matrix")
}

// QAPHeadMask builds the head mask used by the spatial metrics. The skull
// is thresholded at the image clip level, dilated and eroded to close it,
// then merged with a slice-wise mask grown along the template-aligned lower
// head so that face and neck voxels survive. Three masks come out of it:
// the merged head mask, the whole-head mask and the skull-only remainder.
func QAPHeadMask(ctx context.Context, r *resolver.Request) error {
	ok, err := r.RequireAll(ctx, AnatLinearXfm, AnatReorient)
	if err != nil || !ok {
		return err
	}

	clip, err := r.AddNode("afni.clip_level", "head_mask_clip_level", nil)
	if err != nil {
		return err
	}
	if err := r.Bind(AnatReorient, clip, "in_file"); err != nil {
		return err
	}

	expr, err := r.AddNode("metrics.expr_string", "head_mask_expr", nil)
	if err != nil {
		return err
	}
	if err := r.Graph.Connect(clip, "clip_val", expr, "clip_level_value"); err != nil {
		return err
	}

	skull, err := r.AddNode("afni.calc", "head_mask_skull", map[string]cty.Value{
		"outputtype": cty.StringVal("NIFTI_GZ"),
	})
	if err != nil {
		return err
	}
	if err := r.Bind(AnatReorient, skull, "in_file_a"); err != nil {
		return err
	}
	if err := r.Graph.Connect(expr, "expr_string", skull, "expr"); err != nil {
		return err
	}

	dilate, err := r.AddNode("afni.mask_tool", "head_mask_dilate_erode", map[string]cty.Value{
		"dilate_inputs": cty.StringVal("6 -6"),
		"fill_holes":    cty.True,
		"outputtype":    cty.StringVal("NIFTI_GZ"),
	})
	if err != nil {
		return err
	}
	if err := r.Graph.Connect(skull, "out_file", dilate, "in_file"); err != nil {
		return err
	}

	slice, err := r.AddNode("metrics.slice_mask", "head_mask_slice", map[string]cty.Value{
		"template": cty.StringVal(r.Config.AnatomicalTemplate),
	})
	if err != nil {
		return err
	}
	if err := r.Bind(AnatReorient, slice, "in_file"); err != nil {
		return err
	}
	if err := r.Bind(AnatLinearXfm, slice, "transform"); err != nil {
		return err
	}

	combine, err := r.AddNode("afni.calc", "head_mask_combine", map[string]cty.Value{
		"expr":       cty.StringVal("(a+b)-(a*b)"),
		"outputtype": cty.StringVal("NIFTI_GZ"),
	})
	if err != nil {
		return err
	}
	if err := r.Graph.Connect(dilate, "out_file", combine, "in_file_a"); err != nil {
		return err
	}
	if err := r.Graph.Connect(slice, "out_file", combine, "in_file_b"); err != nil {
		return err
	}

	subtract, err := r.AddNode("afni.calc", "head_mask_subtract", map[string]cty.Value{
		"expr":       cty.StringVal("a-b"),
		"outputtype": cty.StringVal("NIFTI_GZ"),
	})
	if err != nil {
		return err
	}
	if err := r.Graph.Connect(combine, "out_file", subtract, "in_file_a"); err != nil {
		return err
	}
	if err := r.Graph.Connect(slice, "out_file", subtract, "in_file_b"); err != nil {
		return err
	}

	if err := r.Publish(AnatQAPHeadMask, combine, "out_file"); err != nil {
		return err
	}
	if err := r.Publish(AnatWholeHeadMask, combine, "out_file"); err != nil {
		return err
	}
	return r.Publish(AnatSkullOnlyMask, subtract, "out_file")
}

// AFNISegmentation segments the reoriented anatomical into gray matter,
// white matter and CSF probability masks.
func AFNISegmentation(ctx context.Context, r *resolver.Request) error {
	ok, err := r.Require(ctx, AnatReorient)
	if err != nil || !ok {
		return err
	}

	seg, err := r.AddNode("afni.seg", "anat_segment", map[string]cty.Value{
		"mask": cty.StringVal("AUTO"),
	})
	if err != nil {
		return err
	}
	if err := r.Bind(AnatReorient, seg, "in_file"); err != nil {
		return err
	}

	tissues := []struct {
		resource string
		name     string
		expr     string
	}{
		{AnatGMMask, "anat_gm_mask", "equals(a,2)"},
		{AnatWMMask, "anat_wm_mask", "equals(a,3)"},
		{AnatCSFMask, "anat_csf_mask", "equals(a,1)"},
	}
	for _, t := range tissues {
		calc, err := r.AddNode("afni.calc", t.name, map[string]cty.Value{
			"expr":       cty.StringVal(t.expr),
			"outputtype": cty.StringVal("NIFTI_GZ"),
		})
		if err != nil {
			return err
		}
		if err := r.Graph.Connect(seg, "out_file", calc, "in_file_a"); err != nil {
			return err
		}
		if err := r.Publish(t.resource, calc, "out_file"); err != nil {
			return err
		}
	}
	return nil
}

// ArtifactsBackground inverts the head mask into a background mask and
// counts the fraction of artifact voxels visible in it (FAV).
func ArtifactsBackground(ctx context.Context, r *resolver.Request) error {
	ok, err := r.RequireAll(ctx, AnatReorient, AnatQAPHeadMask)
	if err != nil || !ok {
		return err
	}

	invert, err := r.AddNode("afni.calc", "anat_bg_head_mask", map[string]cty.Value{
		"expr":       cty.StringVal("1-a"),
		"outputtype": cty.StringVal("NIFTI_GZ"),
	})
	if err != nil {
		return err
	}
	if err := r.Bind(AnatQAPHeadMask, invert, "in_file_a"); err != nil {
		return err
	}

	fav, err := r.AddNode("metrics.artifacts", "anat_fav_artifacts", map[string]cty.Value{
		"exclude_zeros": cty.BoolVal(r.Config.ExcludeZeros),
	})
	if err != nil {
		return err
	}
	if err := r.Bind(AnatReorient, fav, "in_file"); err != nil {
		return err
	}
	if err := r.Graph.Connect(invert, "out_file", fav, "bg_mask"); err != nil {
		return err
	}

	if err := r.Publish(AnatQAPBgHeadMask, invert, "out_file"); err != nil {
		return err
	}
	return r.Publish(AnatFavArtifactsBackground, fav, "out_file")
}

// AnatomicalSpatial computes the anatomical spatial quality metrics and
// writes them to the scan's JSON output. The JSON location is fixed at
// wiring time, so the resource lands in the pool as a concrete path.
func AnatomicalSpatial(ctx context.Context, r *resolver.Request) error {
	ok, err := r.RequireAll(ctx,
		AnatReorient,
		AnatQAPHeadMask,
		AnatFavArtifactsBackground,
		AnatGMMask,
		AnatWMMask,
		AnatCSFMask,
	)
	if err != nil || !ok {
		return err
	}

	spatial, err := r.AddNode("metrics.anat_spatial", "qap_anatomical_spatial", scanIdentity(r))
	if err != nil {
		return err
	}
	for port, resource := range map[string]string{
		"anatomical_reorient": AnatReorient,
		"head_mask":           AnatQAPHeadMask,
		"fav_artifacts":       AnatFavArtifactsBackground,
		"gm_mask":             AnatGMMask,
		"wm_mask":             AnatWMMask,
		"csf_mask":            AnatCSFMask,
	} {
		if err := r.Bind(resource, spatial, port); err != nil {
			return err
		}
	}

	outPath := r.Config.OutputPath(QAPAnatomicalSpatial + ".json")
	if err := writeJSON(r, "qap_anatomical_spatial_json", outPath, spatial, "qc"); err != nil {
		return err
	}

	if r.Config.WriteReport {
		if err := mosaic(r, "anat_mosaic", AnatReorient, AnatQAPHeadMask); err != nil {
			return err
		}
	}

	return r.PublishPath(QAPAnatomicalSpatial, outPath)
}

// AnatomicalHeaderInfo extracts image header fields from the raw scan and
// writes them next to the metric outputs.
func AnatomicalHeaderInfo(ctx context.Context, r *resolver.Request) error {
	ok, err := r.Require(ctx, AnatScan)
	if err != nil || !ok {
		return err
	}

	header, err := r.AddNode("metrics.header_info", "anat_header_info", scanIdentity(r))
	if err != nil {
		return err
	}
	if err := r.Bind(AnatScan, header, "in_file"); err != nil {
		return err
	}

	outPath := r.Config.OutputPath(AnatHeaderInfo + ".json")
	if err := writeJSON(r, "anat_header_info_json", outPath, header, "qc"); err != nil {
		return err
	}
	return r.PublishPath(AnatHeaderInfo, outPath)
}
