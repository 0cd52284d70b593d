package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestGraph_AddNode(t *testing.T) {
	t.Parallel()

	g := New()
	id, err := g.AddNode("afni.calc", "mask_skull_s1", map[string]cty.Value{
		"expr": cty.StringVal("a*step(a-100)"),
	})
	require.NoError(t, err)
	assert.Equal(t, NodeID("task.afni.calc.mask_skull_s1"), id)

	n, ok := g.Node(id)
	require.True(t, ok)
	assert.Equal(t, "afni.calc", n.Kind)
	assert.Equal(t, "a*step(a-100)", n.Params["expr"].AsString())
	assert.Equal(t, 1, g.Len())
}

func TestGraph_DuplicateNameRejected(t *testing.T) {
	t.Parallel()

	g := New()
	_, err := g.AddNode("afni.calc", "mask_skull_s1", nil)
	require.NoError(t, err)

	_, err = g.AddNode("afni.refit", "mask_skull_s1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already taken")
}

func TestGraph_Connect(t *testing.T) {
	t.Parallel()

	g := New()
	src, err := g.AddNode("afni.refit", "deoblique", nil)
	require.NoError(t, err)
	dst, err := g.AddNode("afni.resample", "reorient", nil)
	require.NoError(t, err)

	require.NoError(t, g.Connect(src, "out_file", dst, "in_file"))

	edges := g.EdgesInto(dst)
	require.Len(t, edges, 1)
	assert.Equal(t, src, edges[0].Src)
	assert.Equal(t, "out_file", edges[0].SrcPort)
	assert.Equal(t, "in_file", edges[0].DstPort)

	deps, err := g.Dependencies(dst)
	require.NoError(t, err)
	assert.Equal(t, []NodeID{src}, deps)

	dependents, err := g.Dependents(src)
	require.NoError(t, err)
	assert.Equal(t, []NodeID{dst}, dependents)
}

func TestGraph_ConnectRejectsBadEdges(t *testing.T) {
	t.Parallel()

	g := New()
	a, err := g.AddNode("afni.refit", "a", nil)
	require.NoError(t, err)
	b, err := g.AddNode("afni.refit", "b", nil)
	require.NoError(t, err)

	assert.Error(t, g.Connect(a, "out_file", a, "in_file"), "self edge")
	assert.Error(t, g.Connect(a, "", b, "in_file"), "empty source port")
	assert.Error(t, g.Connect(a, "out_file", b, ""), "empty destination port")
	assert.Error(t, g.Connect(a, "out_file", NodeID("task.x.missing"), "in_file"), "missing node")
}

func TestGraph_SetParam(t *testing.T) {
	t.Parallel()

	g := New()
	id, err := g.AddNode("afni.calc", "combine", nil)
	require.NoError(t, err)

	require.NoError(t, g.SetParam(id, "in_file_a", cty.StringVal("/data/mask.nii.gz")))
	n, _ := g.Node(id)
	assert.Equal(t, "/data/mask.nii.gz", n.Params["in_file_a"].AsString())

	assert.Error(t, g.SetParam(NodeID("task.x.missing"), "p", cty.True))
}

func TestGraph_DetectCycles(t *testing.T) {
	t.Parallel()

	g := New()
	a, _ := g.AddNode("k", "a", nil)
	b, _ := g.AddNode("k", "b", nil)
	c, _ := g.AddNode("k", "c", nil)
	require.NoError(t, g.Connect(a, "out", b, "in"))
	require.NoError(t, g.Connect(b, "out", c, "in"))

	require.NoError(t, g.DetectCycles())

	require.NoError(t, g.Connect(c, "out", a, "in"))
	err := g.DetectCycles()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle detected")
}
