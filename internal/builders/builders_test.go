package builders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manwithadodla/quality-assessment-protocol/internal/config"
	"github.com/manwithadodla/quality-assessment-protocol/internal/engine"
	"github.com/manwithadodla/quality-assessment-protocol/internal/pool"
	"github.com/manwithadodla/quality-assessment-protocol/internal/registry"
	"github.com/manwithadodla/quality-assessment-protocol/internal/resolver"
)

func testResolver(t *testing.T, cfg config.Config) *resolver.Resolver {
	t.Helper()
	if cfg.OutputDirectory == "" {
		cfg.OutputDirectory = t.TempDir()
	}
	if cfg.RunName == "" {
		cfg.RunName = "test_run"
	}
	full, err := config.New(cfg)
	require.NoError(t, err)

	reg := registry.New()
	Register(reg)
	require.NoError(t, reg.Validate(Catalog()))
	return resolver.New(reg, full)
}

func TestCatalogHasNoRawInputs(t *testing.T) {
	t.Parallel()

	for _, name := range Catalog() {
		assert.NotEqual(t, AnatScan, name)
		assert.NotEqual(t, FuncScan, name)
		assert.NotEqual(t, McflirtRelRMS, name)
	}
}

func TestHeadMask_StallsWithoutRawScan(t *testing.T) {
	t.Parallel()

	res := testResolver(t, config.Config{AnatomicalTemplate: "/templates/mni.nii.gz"})
	g := engine.New()
	p := pool.New()

	unresolved, err := res.Resolve(context.Background(), g, p, "_s1", AnatQAPHeadMask)
	require.NoError(t, err)
	assert.Equal(t, []string{AnatQAPHeadMask}, unresolved)
	assert.Equal(t, 0, g.Len())
	assert.Equal(t, 0, p.Len())
}

func TestHeadMask_BuildsFromSeededIntermediates(t *testing.T) {
	t.Parallel()

	res := testResolver(t, config.Config{AnatomicalTemplate: "/templates/mni.nii.gz"})
	g := engine.New()
	p := pool.Seed(map[string]pool.Value{
		AnatReorient:  pool.ConcretePath("/data/anat_reorient.nii.gz"),
		AnatLinearXfm: pool.ConcretePath("/data/anat.aff12.1D"),
	})

	unresolved, err := res.Resolve(context.Background(), g, p, "_s1", AnatQAPHeadMask)
	require.NoError(t, err)
	assert.Empty(t, unresolved)

	// All three masks come out as references into the graph.
	for _, name := range []string{AnatQAPHeadMask, AnatWholeHeadMask, AnatSkullOnlyMask} {
		v, err := p.Get(name)
		require.NoError(t, err)
		_, isRef := v.AsReference()
		assert.True(t, isRef, name)
	}

	// clip level, expr string, skull, dilate, slice mask, combine, subtract.
	assert.Equal(t, 7, g.Len())
	require.NoError(t, g.DetectCycles())

	// Seeded intermediates are bound as static params, not edges.
	clip, ok := g.Node("task.afni.clip_level.head_mask_clip_level_s1")
	require.True(t, ok)
	assert.Equal(t, "/data/anat_reorient.nii.gz", clip.Params["in_file"].AsString())
	assert.Empty(t, g.EdgesInto(clip.ID))
}

func TestAnatomicalSpatial_FullChainFromRawScan(t *testing.T) {
	t.Parallel()

	res := testResolver(t, config.Config{AnatomicalTemplate: "/templates/mni.nii.gz"})
	g := engine.New()
	p := pool.Seed(map[string]pool.Value{
		AnatScan: pool.ConcretePath("/data/anat.nii.gz"),
	})

	unresolved, err := res.Resolve(context.Background(), g, p, "", QAPAnatomicalSpatial)
	require.NoError(t, err)
	assert.Empty(t, unresolved)
	require.NoError(t, g.DetectCycles())

	// The JSON output is a concrete path: it needs no materializing sink.
	v, err := p.Get(QAPAnatomicalSpatial)
	require.NoError(t, err)
	c, isConcrete := v.AsConcrete()
	require.True(t, isConcrete)
	assert.Contains(t, c.AsString(), QAPAnatomicalSpatial+".json")

	// Every intermediate the chain produced is in the pool.
	for _, name := range []string{
		AnatReorient, AnatLinearXfm,
		AnatQAPHeadMask, AnatWholeHeadMask, AnatSkullOnlyMask,
		AnatGMMask, AnatWMMask, AnatCSFMask,
		AnatFavArtifactsBackground, AnatQAPBgHeadMask,
	} {
		assert.True(t, p.Has(name), name)
	}

	// Re-requesting is satisfied from the pool with no new nodes.
	before := g.Len()
	unresolved, err = res.Resolve(context.Background(), g, p, "", QAPAnatomicalSpatial)
	require.NoError(t, err)
	assert.Empty(t, unresolved)
	assert.Equal(t, before, g.Len())
}

func TestAnatomicalSpatial_MissingTemplateIsFatal(t *testing.T) {
	t.Parallel()

	res := testResolver(t, config.Config{})
	g := engine.New()
	p := pool.Seed(map[string]pool.Value{
		AnatScan: pool.ConcretePath("/data/anat.nii.gz"),
	})

	_, err := res.Resolve(context.Background(), g, p, "", QAPAnatomicalSpatial)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anatomical_template")
}

func TestFunctionalQC_FullChainFromRawScan(t *testing.T) {
	t.Parallel()

	res := testResolver(t, config.Config{})
	g := engine.New()
	p := pool.Seed(map[string]pool.Value{
		FuncScan: pool.ConcretePath("/data/func.nii.gz"),
	})

	unresolved, err := res.Resolve(context.Background(), g, p, "", QAPFunctional)
	require.NoError(t, err)
	assert.Empty(t, unresolved)
	require.NoError(t, g.DetectCycles())

	v, err := p.Get(QAPFunctional)
	require.NoError(t, err)
	_, isConcrete := v.AsConcrete()
	assert.True(t, isConcrete)

	// Without a seeded motion trace, displacement comes from the volume
	// registration's coordinate transformation via a data edge.
	fd, ok := g.Node("task.metrics.fd.func_fd")
	require.True(t, ok)
	edges := g.EdgesInto(fd.ID)
	require.Len(t, edges, 1)
	assert.Equal(t, "coord_xfm", edges[0].DstPort)
}

func TestFunctionalQC_PrefersSeededMotionTrace(t *testing.T) {
	t.Parallel()

	res := testResolver(t, config.Config{})
	g := engine.New()
	p := pool.Seed(map[string]pool.Value{
		FuncScan:      pool.ConcretePath("/data/func.nii.gz"),
		McflirtRelRMS: pool.ConcretePath("/data/func_rel.rms"),
	})

	unresolved, err := res.Resolve(context.Background(), g, p, "", QAPFunctional)
	require.NoError(t, err)
	assert.Empty(t, unresolved)

	fd, ok := g.Node("task.metrics.fd.func_fd")
	require.True(t, ok)
	assert.Equal(t, "/data/func_rel.rms", fd.Params["rel_rms"].AsString())
	assert.Empty(t, g.EdgesInto(fd.ID))
}

func TestFunctionalQC_StallLeavesNoDisplacementNode(t *testing.T) {
	t.Parallel()

	res := testResolver(t, config.Config{})
	g := engine.New()
	// A corrected timeseries with no raw scan and no motion trace: the
	// displacement source can never be produced.
	p := pool.Seed(map[string]pool.Value{
		FuncMotionCorrect: pool.ConcretePath("/data/func_mc.nii.gz"),
	})

	unresolved, err := res.Resolve(context.Background(), g, p, "", QAPFunctional)
	require.NoError(t, err)
	assert.Equal(t, []string{QAPFunctional}, unresolved)

	// The stall must not leave a displacement node with nothing bound to
	// it; every node present has to be executable.
	_, ok := g.Node("task.metrics.fd.func_fd")
	assert.False(t, ok)
	for _, id := range g.NodeIDs() {
		node, _ := g.Node(id)
		hasInput := len(node.Params) > 0 || len(g.EdgesInto(id)) > 0
		assert.True(t, hasInput, id)
	}
}

func TestFunctionalQC_SeededSiblingOutputStaysAuthoritative(t *testing.T) {
	t.Parallel()

	res := testResolver(t, config.Config{})
	g := engine.New()
	// The corrected timeseries is supplied up front, but the coordinate
	// transformation still has to come from the registration node.
	p := pool.Seed(map[string]pool.Value{
		FuncScan:          pool.ConcretePath("/data/func.nii.gz"),
		FuncMotionCorrect: pool.ConcretePath("/data/func_mc.nii.gz"),
	})

	unresolved, err := res.Resolve(context.Background(), g, p, "", QAPFunctional)
	require.NoError(t, err)
	assert.Empty(t, unresolved)

	// The seeded binding survives the registration builder's publish.
	v, err := p.Get(FuncMotionCorrect)
	require.NoError(t, err)
	c, ok := v.AsConcrete()
	require.True(t, ok)
	assert.Equal(t, "/data/func_mc.nii.gz", c.AsString())

	xfm, err := p.Get(FuncCoordinateXfm)
	require.NoError(t, err)
	ref, ok := xfm.AsReference()
	require.True(t, ok)
	assert.Equal(t, "task.afni.volreg.func_motion_correct", ref.NodeID)
	assert.Equal(t, "oned_matrix", ref.Port)
}

func TestHeaderInfo_FromRawScansOnly(t *testing.T) {
	t.Parallel()

	res := testResolver(t, config.Config{})
	g := engine.New()
	p := pool.Seed(map[string]pool.Value{
		AnatScan: pool.ConcretePath("/data/anat.nii.gz"),
		FuncScan: pool.ConcretePath("/data/func.nii.gz"),
	})

	unresolved, err := res.Resolve(context.Background(), g, p, "",
		AnatHeaderInfo, FuncHeaderInfo)
	require.NoError(t, err)
	assert.Empty(t, unresolved)

	// Header extraction never triggers the preprocessing chains.
	// Two header nodes plus two JSON writers.
	assert.Equal(t, 4, g.Len())
}

func TestWriteReport_AddsMosaicNodes(t *testing.T) {
	t.Parallel()

	res := testResolver(t, config.Config{
		AnatomicalTemplate: "/templates/mni.nii.gz",
		WriteReport:        true,
	})
	g := engine.New()
	p := pool.Seed(map[string]pool.Value{
		AnatScan: pool.ConcretePath("/data/anat.nii.gz"),
	})

	unresolved, err := res.Resolve(context.Background(), g, p, "", QAPAnatomicalSpatial)
	require.NoError(t, err)
	assert.Empty(t, unresolved)

	_, hasMosaic := g.Node("task.metrics.mosaic.anat_mosaic")
	assert.True(t, hasMosaic)
	_, hasWriter := g.Node("task.datasink.write.anat_mosaic_out")
	assert.True(t, hasWriter)
}
