// Package builders contains the workflow builder functions that assemble
// the anatomical and functional quality-assessment graphs.
//
// Each builder produces one or more named resources. When a prerequisite is
// missing from the pool it requires the upstream builder first, recursing
// until everything is either satisfied or stalled on an absent raw input.
// Builders wire their computation units into the graph, binding each input
// either as a data edge (prerequisite still to be computed) or as a static
// parameter (prerequisite supplied concretely), and publish their outputs
// back into the pool as references to their nodes' output ports.
package builders

import (
	"github.com/manwithadodla/quality-assessment-protocol/internal/registry"
)

// Raw input resources. These are seeded by the caller and have no producer;
// requesting anything that needs them while they are absent stalls.
const (
	AnatScan = "anat_scan"
	FuncScan = "func_scan"

	// McflirtRelRMS is an optional pre-computed motion trace; when seeded it
	// takes precedence over the coordinate transformation for FD.
	McflirtRelRMS = "mcflirt_rel_rms"
)

// Anatomical resources.
const (
	AnatReorient  = "anat_reorient"
	AnatLinearXfm = "anat_linear_xfm"

	AnatQAPHeadMask   = "anat_qap_head_mask"
	AnatWholeHeadMask = "anat_whole_head_mask"
	AnatSkullOnlyMask = "anat_skull_only_mask"

	AnatGMMask  = "anat_gm_mask"
	AnatWMMask  = "anat_wm_mask"
	AnatCSFMask = "anat_csf_mask"

	AnatFavArtifactsBackground = "anat_fav_artifacts_background"
	AnatQAPBgHeadMask          = "anat_qap_bg_head_mask"

	QAPAnatomicalSpatial = "qap_anatomical_spatial"
	AnatHeaderInfo       = "anat_header_info"
)

// Functional resources.
const (
	FuncReorient      = "func_reorient"
	FuncMotionCorrect = "func_motion_correct"
	FuncCoordinateXfm = "func_coordinate_transformation"

	FuncBrainMask         = "func_brain_mask"
	FuncInvertedBrainMask = "func_inverted_brain_mask"
	FuncMean              = "func_mean"

	FuncTemporalStdMap = "func_temporal_std_map"
	FuncSFS            = "func_SFS"
	FuncEstNuisance    = "func_estimated_nuisance"

	QAPFunctional  = "qap_functional"
	FuncHeaderInfo = "func_header_info"
)

// QAPMosaic is published only when write_report is enabled.
const QAPMosaic = "qap_mosaic"

// Catalog returns every buildable resource name. Raw inputs and
// report-only extras are deliberately absent: they have no producer.
func Catalog() []string {
	return []string{
		AnatReorient,
		AnatLinearXfm,
		AnatQAPHeadMask,
		AnatWholeHeadMask,
		AnatSkullOnlyMask,
		AnatGMMask,
		AnatWMMask,
		AnatCSFMask,
		AnatFavArtifactsBackground,
		AnatQAPBgHeadMask,
		QAPAnatomicalSpatial,
		AnatHeaderInfo,
		FuncReorient,
		FuncMotionCorrect,
		FuncCoordinateXfm,
		FuncBrainMask,
		FuncInvertedBrainMask,
		FuncMean,
		FuncTemporalStdMap,
		FuncSFS,
		FuncEstNuisance,
		QAPFunctional,
		FuncHeaderInfo,
	}
}

// Register installs every builder into the registry, keyed by the resources
// it produces. The table is fixed after this call.
func Register(r *registry.Registry) {
	r.RegisterProducer(AnatomicalReorient, AnatReorient)
	r.RegisterProducer(AnatomicalLinearRegistration, AnatLinearXfm)
	r.RegisterProducer(QAPHeadMask, AnatQAPHeadMask, AnatWholeHeadMask, AnatSkullOnlyMask)
	r.RegisterProducer(AFNISegmentation, AnatGMMask, AnatWMMask, AnatCSFMask)
	r.RegisterProducer(ArtifactsBackground, AnatFavArtifactsBackground, AnatQAPBgHeadMask)
	r.RegisterProducer(AnatomicalSpatial, QAPAnatomicalSpatial)
	r.RegisterProducer(AnatomicalHeaderInfo, AnatHeaderInfo)

	r.RegisterProducer(FunctionalReorient, FuncReorient)
	r.RegisterProducer(FunctionalMotionCorrect, FuncMotionCorrect, FuncCoordinateXfm)
	r.RegisterProducer(FunctionalBrainMask, FuncBrainMask)
	r.RegisterProducer(InvertFunctionalBrainMask, FuncInvertedBrainMask)
	r.RegisterProducer(MeanFunctional, FuncMean)
	r.RegisterProducer(TemporalStd, FuncTemporalStdMap)
	r.RegisterProducer(SFSTimeseries, FuncSFS, FuncEstNuisance)
	r.RegisterProducer(FunctionalQC, QAPFunctional)
	r.RegisterProducer(FunctionalHeaderInfo, FuncHeaderInfo)
}
