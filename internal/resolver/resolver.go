package resolver

import (
	"context"

	"github.com/manwithadodla/quality-assessment-protocol/internal/config"
	"github.com/manwithadodla/quality-assessment-protocol/internal/ctxlog"
	"github.com/manwithadodla/quality-assessment-protocol/internal/engine"
	"github.com/manwithadodla/quality-assessment-protocol/internal/pool"
)

// Builder assembles the computation units that produce one or more named
// resources. It requires its prerequisites through the Request, wires its
// nodes into the graph, and publishes its outputs back into the pool.
//
// A builder must be a no-op when it cannot obtain a prerequisite: it simply
// returns without touching the pool, which is how a stall propagates.
// Errors are reserved for structural problems (bad wiring, collisions).
type Builder func(ctx context.Context, req *Request) error

// Table looks up the builder responsible for producing a resource. It is
// fixed at process start; there is no dynamic producer discovery.
type Table interface {
	BuilderFor(resource string) (Builder, bool)
}

// Resolver owns one assembly pass's dispatch state: the producer table and
// the per-scan configuration shared read-only across all builders.
type Resolver struct {
	table Table
	cfg   *config.Config
}

// New creates a resolver over a fixed producer table.
func New(table Table, cfg *config.Config) *Resolver {
	return &Resolver{table: table, cfg: cfg}
}

// Request is the context a builder operates in: the graph being assembled,
// the pool for this pass, the scan configuration, and the name suffix that
// disambiguates node names across repeated invocations.
type Request struct {
	Graph  *engine.Graph
	Pool   *pool.Pool
	Config *config.Config
	Suffix string

	res *Resolver
}

// Require obtains the named resource, invoking its builder if it is not in
// the pool yet. It returns true when the resource is available afterwards
// and false when the builder stalled (or no producer is registered, which
// simply means the resource can only arrive as a raw input). Errors are
// structural and fatal to the pass.
func (r *Request) Require(ctx context.Context, resource string) (bool, error) {
	if r.Pool.Has(resource) {
		return true, nil
	}

	logger := ctxlog.FromContext(ctx).With("resource", resource)

	b, ok := r.res.table.BuilderFor(resource)
	if !ok {
		logger.Debug("No producer registered, resource must be supplied as a raw input.")
		return false, nil
	}

	before := r.Pool.Snapshot()
	if err := b(ctx, r); err != nil {
		return false, err
	}
	if r.Pool.Snapshot().Equal(before) {
		logger.Debug("Builder made no progress, stalling.")
		return false, nil
	}
	return r.Pool.Has(resource), nil
}

// RequireAll obtains every listed resource in order, stopping at the first
// stall. It returns true only when all are available.
func (r *Request) RequireAll(ctx context.Context, resources ...string) (bool, error) {
	for _, resource := range resources {
		ok, err := r.Require(ctx, resource)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// Resolve runs one top-level assembly pass: it requires each requested
// output against the given graph and pool, and returns the names of the
// outputs that could not be produced. An empty slice means every request
// was satisfied. The pool must not be shared with any other pass.
func (res *Resolver) Resolve(ctx context.Context, g *engine.Graph, p *pool.Pool, suffix string, outputs ...string) ([]string, error) {
	logger := ctxlog.FromContext(ctx).With("suffix", suffix)
	logger.Debug("Starting resolution pass.", "requested", outputs, "seeded", p.Len())

	req := &Request{Graph: g, Pool: p, Config: res.cfg, Suffix: suffix, res: res}

	var unresolved []string
	for _, output := range outputs {
		ok, err := req.Require(ctx, output)
		if err != nil {
			return nil, err
		}
		if !ok {
			logger.Warn("Requested output could not be produced.", "resource", output)
			unresolved = append(unresolved, output)
		}
	}

	logger.Debug("Resolution pass finished.",
		"pool_size", p.Len(), "graph_nodes", g.Len(), "unresolved", len(unresolved))
	return unresolved, nil
}
