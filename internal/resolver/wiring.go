package resolver

import (
	"fmt"

	"github.com/manwithadodla/quality-assessment-protocol/internal/engine"
	"github.com/manwithadodla/quality-assessment-protocol/internal/pool"
	"github.com/zclconf/go-cty/cty"
)

// Bind wires a pool resource onto an input port of a node. A Reference
// becomes a data edge from its (node, port) pair; a Concrete value becomes a
// static parameter on the node. The branch is evaluated independently for
// every input, so one node may mix edge-fed and static inputs freely.
func (r *Request) Bind(resource string, dst engine.NodeID, port string) error {
	v, err := r.Pool.Get(resource)
	if err != nil {
		return err
	}
	switch v.Kind() {
	case pool.KindReference:
		ref, _ := v.AsReference()
		return r.Graph.Connect(engine.NodeID(ref.NodeID), ref.Port, dst, port)
	case pool.KindConcrete:
		c, _ := v.AsConcrete()
		return r.Graph.SetParam(dst, port, c)
	}
	return fmt.Errorf("resource %q has an invalid value variant", resource)
}

// Publish binds a resource name to an output port of a node, making it
// available as a Reference to later builders in the same pass. A name the
// pool already holds stays as it is: a seeded sibling output overrides the
// builder's own, and multi-output builders may publish unconditionally.
func (r *Request) Publish(resource string, src engine.NodeID, port string) error {
	if r.Pool.Has(resource) {
		return nil
	}
	return r.Pool.Set(resource, pool.Reference(string(src), port))
}

// PublishPath binds a resource name to an already-known concrete path, for
// outputs a node writes to a location fixed at wiring time. Like Publish,
// an existing binding wins.
func (r *Request) PublishPath(resource, path string) error {
	if r.Pool.Has(resource) {
		return nil
	}
	return r.Pool.Set(resource, pool.ConcretePath(path))
}

// AddNode adds a computation unit to the graph, appending this pass's name
// suffix so repeated invocations (e.g. several scans assembled into one
// graph) never collide.
func (r *Request) AddNode(kind, name string, params map[string]cty.Value) (engine.NodeID, error) {
	return r.Graph.AddNode(kind, name+r.Suffix, params)
}
