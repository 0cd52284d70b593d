package pool

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// Kind distinguishes the two variants of a resource value.
type Kind int

const (
	// KindConcrete marks a value that is already available: a file path
	// supplied by the caller or a scalar setting.
	KindConcrete Kind = iota
	// KindReference marks a pointer to an output port of a graph node that
	// has been wired into the execution graph but not yet run.
	KindReference
)

// NodeRef identifies a specific output port of a graph node. The graph owns
// the node; a NodeRef is a non-owning (id, port) pair and nothing more.
type NodeRef struct {
	NodeID string
	Port   string
}

// Value is the tagged union stored under each resource name. Exactly one
// variant is populated; consumers switch on Kind and use the matching
// accessor.
type Value struct {
	kind     Kind
	concrete cty.Value
	ref      NodeRef
}

// Concrete wraps an already-available cty payload.
func Concrete(v cty.Value) Value {
	return Value{kind: KindConcrete, concrete: v}
}

// ConcretePath wraps a filesystem path as a concrete string value.
func ConcretePath(path string) Value {
	return Concrete(cty.StringVal(path))
}

// Reference points at the named output port of a graph node.
func Reference(nodeID, port string) Value {
	return Value{kind: KindReference, ref: NodeRef{NodeID: nodeID, Port: port}}
}

// Kind reports which variant this value holds.
func (v Value) Kind() Kind { return v.kind }

// AsConcrete returns the concrete payload. The second return is false when
// the value is a reference.
func (v Value) AsConcrete() (cty.Value, bool) {
	if v.kind != KindConcrete {
		return cty.NilVal, false
	}
	return v.concrete, true
}

// AsReference returns the (node id, port) pair. The second return is false
// when the value is concrete.
func (v Value) AsReference() (NodeRef, bool) {
	if v.kind != KindReference {
		return NodeRef{}, false
	}
	return v.ref, true
}

// Equal compares two values structurally: same variant, same payload.
// Concrete payloads use cty's RawEquals; references compare by identity.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindConcrete:
		return v.concrete.RawEquals(other.concrete)
	case KindReference:
		return v.ref == other.ref
	}
	return false
}

// String renders the value for logs and error messages.
func (v Value) String() string {
	switch v.kind {
	case KindConcrete:
		if v.concrete.Type() == cty.String && !v.concrete.IsNull() {
			return fmt.Sprintf("concrete(%s)", v.concrete.AsString())
		}
		return fmt.Sprintf("concrete(%s)", v.concrete.GoString())
	case KindReference:
		return fmt.Sprintf("ref(%s:%s)", v.ref.NodeID, v.ref.Port)
	}
	return "invalid"
}
