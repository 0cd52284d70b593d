package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// Outputs maps a node's output port names to the values it produced.
type Outputs map[string]cty.Value

// Task is the fully-resolved unit of work handed to a Handler: the node's
// identity, its static parameters, and the inputs routed in along data edges.
// A port bound by an edge shadows a static parameter of the same name.
type Task struct {
	ID     NodeID
	Kind   string
	Name   string
	Params map[string]cty.Value
	Inputs map[string]cty.Value
}

// Input returns the value bound to the named port, preferring edge-routed
// inputs over static parameters.
func (t *Task) Input(port string) (cty.Value, bool) {
	if v, ok := t.Inputs[port]; ok {
		return v, true
	}
	v, ok := t.Params[port]
	return v, ok
}

// InputString returns the named port value as a Go string, or an error when
// the port is unbound or not a string.
func (t *Task) InputString(port string) (string, error) {
	v, ok := t.Input(port)
	if !ok {
		return "", fmt.Errorf("%s: required input %q is not bound", t.ID, port)
	}
	if v.Type() != cty.String || v.IsNull() {
		return "", fmt.Errorf("%s: input %q is not a string", t.ID, port)
	}
	return v.AsString(), nil
}

// Handler executes one node kind. Handlers are opaque to the engine: they
// receive a resolved Task and return the values for the node's output ports.
type Handler func(ctx context.Context, t *Task) (Outputs, error)

// Module registers one or more kind handlers, mirroring how compiled-in
// modules contribute their handlers at startup.
type Module interface {
	Register(hs *HandlerSet)
}

// HandlerSet maps node kinds to the Go handlers that execute them. The set
// is populated at startup and read-only afterwards.
type HandlerSet struct {
	handlers map[string]Handler
}

// NewHandlerSet creates an empty handler set.
func NewHandlerSet() *HandlerSet {
	return &HandlerSet{handlers: make(map[string]Handler)}
}

// Register binds a handler to a node kind. Registering the same kind twice
// is a programmer error and panics at startup.
func (hs *HandlerSet) Register(kind string, h Handler) {
	if _, ok := hs.handlers[kind]; ok {
		panic(fmt.Sprintf("handler for kind %q registered twice", kind))
	}
	hs.handlers[kind] = h
}

// Lookup returns the handler for a node kind.
func (hs *HandlerSet) Lookup(kind string) (Handler, bool) {
	h, ok := hs.handlers[kind]
	return h, ok
}

// Validate checks that every node kind present in the graph has a registered
// handler. A missing handler is a mismatch between code and assembled graph,
// caught before execution rather than mid-run.
func (hs *HandlerSet) Validate(g *Graph) error {
	missing := make(map[string]struct{})
	for _, id := range g.NodeIDs() {
		n, _ := g.Node(id)
		if _, ok := hs.handlers[n.Kind]; !ok {
			missing[n.Kind] = struct{}{}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	kinds := make([]string, 0, len(missing))
	for k := range missing {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return fmt.Errorf("no handler registered for node kind(s): %s", strings.Join(kinds, ", "))
}
