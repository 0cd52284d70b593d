package resolver

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manwithadodla/quality-assessment-protocol/internal/config"
	"github.com/manwithadodla/quality-assessment-protocol/internal/engine"
	"github.com/manwithadodla/quality-assessment-protocol/internal/pool"
)

// tableFunc is a minimal Table for tests.
type tableFunc map[string]Builder

func (t tableFunc) BuilderFor(resource string) (Builder, bool) {
	b, ok := t[resource]
	return b, ok
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.New(config.Config{
		OutputDirectory: t.TempDir(),
		RunName:         "test_run",
	})
	require.NoError(t, err)
	return cfg
}

// chainTable wires mid out of raw and out out of mid, the minimal two-level
// producer chain.
func chainTable() tableFunc {
	return tableFunc{
		"mid": func(ctx context.Context, r *Request) error {
			ok, err := r.Require(ctx, "raw")
			if err != nil || !ok {
				return err
			}
			id, err := r.AddNode("kind.mid", "mid", nil)
			if err != nil {
				return err
			}
			if err := r.Bind("raw", id, "in_file"); err != nil {
				return err
			}
			return r.Publish("mid", id, "out_file")
		},
		"out": func(ctx context.Context, r *Request) error {
			ok, err := r.Require(ctx, "mid")
			if err != nil || !ok {
				return err
			}
			id, err := r.AddNode("kind.out", "out", nil)
			if err != nil {
				return err
			}
			if err := r.Bind("mid", id, "in_file"); err != nil {
				return err
			}
			return r.Publish("out", id, "out_file")
		},
	}
}

func TestResolve_ChainFromSeededInput(t *testing.T) {
	t.Parallel()

	res := New(chainTable(), testConfig(t))
	g := engine.New()
	p := pool.Seed(map[string]pool.Value{"raw": pool.ConcretePath("/data/raw.nii.gz")})

	unresolved, err := res.Resolve(context.Background(), g, p, "_s1", "out")
	require.NoError(t, err)
	assert.Empty(t, unresolved)

	// Both intermediate and final products are references into the graph.
	for _, name := range []string{"mid", "out"} {
		v, err := p.Get(name)
		require.NoError(t, err)
		_, isRef := v.AsReference()
		assert.True(t, isRef, name)
	}
	assert.Equal(t, 2, g.Len())

	// The concrete raw input became a static param, not an edge.
	midNode, ok := g.Node(engine.NodeID("task.kind.mid.mid_s1"))
	require.True(t, ok)
	assert.Equal(t, "/data/raw.nii.gz", midNode.Params["in_file"].AsString())

	// The reference became a data edge.
	outEdges := g.EdgesInto(engine.NodeID("task.kind.out.out_s1"))
	require.Len(t, outEdges, 1)
	assert.Equal(t, engine.NodeID("task.kind.mid.mid_s1"), outEdges[0].Src)
}

func TestResolve_StallWithoutRawInput(t *testing.T) {
	t.Parallel()

	res := New(chainTable(), testConfig(t))
	g := engine.New()
	p := pool.New()

	unresolved, err := res.Resolve(context.Background(), g, p, "_s1", "out")
	require.NoError(t, err)
	assert.Equal(t, []string{"out"}, unresolved)

	// A stalled pass leaves no partial state behind.
	assert.Equal(t, 0, g.Len())
	assert.Equal(t, 0, p.Len())
}

func TestResolve_IdempotentRepeatedRequest(t *testing.T) {
	t.Parallel()

	res := New(chainTable(), testConfig(t))
	g := engine.New()
	p := pool.Seed(map[string]pool.Value{"raw": pool.ConcretePath("/data/raw.nii.gz")})

	unresolved, err := res.Resolve(context.Background(), g, p, "_s1", "out", "out", "mid")
	require.NoError(t, err)
	assert.Empty(t, unresolved)

	// Repeated requests are satisfied from the pool without new nodes.
	assert.Equal(t, 2, g.Len())
}

func TestResolve_BuilderErrorIsFatal(t *testing.T) {
	t.Parallel()

	table := tableFunc{
		"out": func(ctx context.Context, r *Request) error {
			return fmt.Errorf("wiring exploded")
		},
	}
	res := New(table, testConfig(t))

	_, err := res.Resolve(context.Background(), engine.New(), pool.New(), "", "out")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wiring exploded")
}

func TestRequire_NoProducerMeansStall(t *testing.T) {
	t.Parallel()

	res := New(tableFunc{}, testConfig(t))
	req := &Request{Graph: engine.New(), Pool: pool.New(), Config: res.cfg, res: res}

	ok, err := req.Require(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRequire_PartialProgressIsNotAStall(t *testing.T) {
	t.Parallel()

	// The builder publishes a side product but not the requested resource:
	// the pool changed, so this is progress, yet the requirement itself is
	// still unmet.
	table := tableFunc{
		"out": func(ctx context.Context, r *Request) error {
			id, err := r.AddNode("kind.side", "side", nil)
			if err != nil {
				return err
			}
			return r.Publish("side_product", id, "out_file")
		},
	}
	res := New(table, testConfig(t))
	req := &Request{Graph: engine.New(), Pool: pool.New(), Config: res.cfg, res: res}

	ok, err := req.Require(context.Background(), "out")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, req.Pool.Has("side_product"))
}

func TestPublish_ExistingBindingWins(t *testing.T) {
	t.Parallel()

	// A multi-output builder publishes everything it produced; a name the
	// caller seeded up front must stay bound to the seeded value.
	res := New(tableFunc{}, testConfig(t))
	req := &Request{
		Graph:  engine.New(),
		Pool:   pool.Seed(map[string]pool.Value{"mid": pool.ConcretePath("/data/mid.nii.gz")}),
		Config: res.cfg,
		res:    res,
	}

	id, err := req.AddNode("kind.mid", "mid", nil)
	require.NoError(t, err)
	require.NoError(t, req.Publish("mid", id, "out_file"))
	require.NoError(t, req.Publish("sibling", id, "side_file"))
	require.NoError(t, req.PublishPath("mid", "/elsewhere/mid.nii.gz"))

	v, err := req.Pool.Get("mid")
	require.NoError(t, err)
	c, ok := v.AsConcrete()
	require.True(t, ok)
	assert.Equal(t, "/data/mid.nii.gz", c.AsString())

	sib, err := req.Pool.Get("sibling")
	require.NoError(t, err)
	ref, ok := sib.AsReference()
	require.True(t, ok)
	assert.Equal(t, "side_file", ref.Port)
}
