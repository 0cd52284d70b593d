package pool

import (
	"fmt"
	"sort"
)

// MissingResourceError reports a Get on a resource that was never bound.
// Callers are expected to check Has first; hitting this error is a broken
// caller contract, not a recoverable condition.
type MissingResourceError struct {
	Name string
}

// Error implements the error interface.
func (e *MissingResourceError) Error() string {
	return fmt.Sprintf("resource %q is not in the pool", e.Name)
}

// CollisionError reports a Set that attempted to rebind an existing resource
// key to a structurally different value. Rebinding is only legal when the new
// value equals the old one.
type CollisionError struct {
	Name     string
	Old, New Value
}

// Error implements the error interface.
func (e *CollisionError) Error() string {
	return fmt.Sprintf("resource %q is already bound to %s, refusing rebind to %s",
		e.Name, e.Old, e.New)
}

// Pool is the ordered mapping from resource name to resource value for one
// assembly pass. It grows monotonically: there is no delete operation.
//
// A Pool is not safe for concurrent use; assembly is single-threaded by
// design and each top-level request gets its own instance.
type Pool struct {
	entries map[string]Value
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{entries: make(map[string]Value)}
}

// Seed returns a pool pre-populated with the given raw inputs.
func Seed(seed map[string]Value) *Pool {
	p := New()
	for name, v := range seed {
		p.entries[name] = v
	}
	return p
}

// Has reports whether the named resource is bound.
func (p *Pool) Has(name string) bool {
	_, ok := p.entries[name]
	return ok
}

// Get returns the value bound to name. Absence is a *MissingResourceError.
func (p *Pool) Get(name string) (Value, error) {
	v, ok := p.entries[name]
	if !ok {
		return Value{}, &MissingResourceError{Name: name}
	}
	return v, nil
}

// Set binds name to v. Setting an existing key is a no-op when the new value
// equals the old one and a *CollisionError otherwise: two builders binding
// the same key to materially different values is a bug, not an override.
func (p *Pool) Set(name string, v Value) error {
	if old, ok := p.entries[name]; ok {
		if old.Equal(v) {
			return nil
		}
		return &CollisionError{Name: name, Old: old, New: v}
	}
	p.entries[name] = v
	return nil
}

// Len returns the number of bound resources.
func (p *Pool) Len() int { return len(p.entries) }

// Keys returns all bound resource names in sorted order.
func (p *Pool) Keys() []string {
	keys := make([]string, 0, len(p.entries))
	for name := range p.entries {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot captures the pool's current bindings for a later Equal check.
// The copy is shallow at the Value level, which is all stall detection needs.
type Snapshot map[string]Value

// Snapshot returns a copy of the current bindings.
func (p *Pool) Snapshot() Snapshot {
	s := make(Snapshot, len(p.entries))
	for name, v := range p.entries {
		s[name] = v
	}
	return s
}

// Equal reports whether two snapshots bind the same keys to structurally
// equal values.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for name, v := range s {
		ov, ok := other[name]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}
