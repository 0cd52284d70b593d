package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/zclconf/go-cty/cty"
)

// NodeID is the unique identifier of a node within one graph, derived from
// the node's kind and name (e.g. "task.afni.calc.qap_headmask_mask_skull_s1").
type NodeID string

// Node is a single computation unit registered with the engine. The assembly
// layers only ever see its identity, parameters and ports; what the node
// actually does is the concern of the Handler registered for its kind.
type Node struct {
	ID   NodeID
	Kind string
	Name string

	// Params are static inputs bound at wiring time, keyed by input port.
	Params map[string]cty.Value
}

// Edge is a directed data dependency from an upstream output port to a
// downstream input port.
type Edge struct {
	Src     NodeID
	SrcPort string
	Dst     NodeID
	DstPort string
}

// Graph is a collection of nodes and the data edges between them. All
// mutating and querying operations are concurrency-safe, although graph
// assembly itself is single-threaded.
type Graph struct {
	mu    sync.RWMutex
	nodes map[NodeID]*Node
	names map[string]NodeID
	edges []Edge

	// deps and dependents index the edge list for the executor.
	deps       map[NodeID]map[NodeID]struct{}
	dependents map[NodeID]map[NodeID]struct{}
}

// New creates an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes:      make(map[NodeID]*Node),
		names:      make(map[string]NodeID),
		deps:       make(map[NodeID]map[NodeID]struct{}),
		dependents: make(map[NodeID]map[NodeID]struct{}),
	}
}

// AddNode registers a new computation unit and returns its id. Node names
// must be unique across the graph; builders disambiguate repeated
// invocations with a caller-supplied suffix, so a duplicate name is a wiring
// bug and fails fast.
func (g *Graph) AddNode(kind, name string, params map[string]cty.Value) (NodeID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.names[name]; ok {
		return "", fmt.Errorf("node name %q already taken by %s", name, existing)
	}

	id := NodeID(fmt.Sprintf("task.%s.%s", kind, name))
	if _, ok := g.nodes[id]; ok {
		return "", fmt.Errorf("node %s already exists", id)
	}

	p := make(map[string]cty.Value, len(params))
	for k, v := range params {
		p[k] = v
	}
	g.nodes[id] = &Node{ID: id, Kind: kind, Name: name, Params: p}
	g.names[name] = id
	g.deps[id] = make(map[NodeID]struct{})
	g.dependents[id] = make(map[NodeID]struct{})
	return id, nil
}

// SetParam binds a static value to an input port of an existing node.
func (g *Graph) SetParam(id NodeID, port string, val cty.Value) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("set param: node not found: %s", id)
	}
	n.Params[port] = val
	return nil
}

// Connect creates a directed data edge from (src, srcPort) to (dst, dstPort).
// An error is returned if either node does not exist or if the edge would be
// a self-reference; a mis-shaped reference is a structural wiring error, not
// something to coerce.
func (g *Graph) Connect(src NodeID, srcPort string, dst NodeID, dstPort string) error {
	if src == dst {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", src, dst)
	}
	if srcPort == "" || dstPort == "" {
		return fmt.Errorf("malformed edge %s -> %s: both ports must be named", src, dst)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[src]; !ok {
		return fmt.Errorf("source node not found: %s", src)
	}
	if _, ok := g.nodes[dst]; !ok {
		return fmt.Errorf("destination node not found: %s", dst)
	}

	g.edges = append(g.edges, Edge{Src: src, SrcPort: srcPort, Dst: dst, DstPort: dstPort})
	g.deps[dst][src] = struct{}{}
	g.dependents[src][dst] = struct{}{}
	return nil
}

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// NodeIDs returns every node id in sorted order.
func (g *Graph) NodeIDs() []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]NodeID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Edges returns a copy of every data edge in the graph.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// EdgesInto returns the data edges terminating at the given node.
func (g *Graph) EdgesInto(id NodeID) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Edge
	for _, e := range g.edges {
		if e.Dst == id {
			out = append(out, e)
		}
	}
	return out
}

// Dependencies returns the ids of the nodes the given node depends on.
func (g *Graph) Dependencies(id NodeID) ([]NodeID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	set, ok := g.deps[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	out := make([]NodeID, 0, len(set))
	for dep := range set {
		out = append(out, dep)
	}
	return out, nil
}

// Dependents returns the ids of the nodes that depend on the given node.
func (g *Graph) Dependents(id NodeID) ([]NodeID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	set, ok := g.dependents[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	out := make([]NodeID, 0, len(set))
	for dep := range set {
		out = append(out, dep)
	}
	return out, nil
}

// DetectCycles checks the graph for cycles. It returns a non-nil error if a
// cycle is found, naming the first node involved.
func (g *Graph) DetectCycles() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	// Classic depth-first search with permanent and temporary marks.
	permanent := make(map[NodeID]bool)
	temporary := make(map[NodeID]bool)

	var visit func(id NodeID) error
	visit = func(id NodeID) error {
		if permanent[id] {
			return nil
		}
		if temporary[id] {
			return fmt.Errorf("cycle detected involving node '%s'", id)
		}
		temporary[id] = true
		for dependent := range g.dependents[id] {
			if err := visit(dependent); err != nil {
				return err
			}
		}
		delete(temporary, id)
		permanent[id] = true
		return nil
	}

	for id := range g.nodes {
		if !permanent[id] {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}
