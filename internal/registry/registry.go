// Package registry maps resource names to the builders that produce them.
//
// The mapping is populated once at process start — builders are exhaustively
// known in advance, there is no plugin discovery — and validated against the
// resource catalog so that a declared resource without a producer is caught
// at startup instead of surfacing as a mysterious stall at assembly time.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/manwithadodla/quality-assessment-protocol/internal/resolver"
)

// Registry is the static resource-name → builder table. Many builders
// produce more than one resource, so the mapping is many-to-one.
type Registry struct {
	producers map[string]resolver.Builder
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{producers: make(map[string]resolver.Builder)}
}

// RegisterProducer records that builder produces each of the named
// resources. Registering a resource twice is a programmer error and panics
// at startup.
func (r *Registry) RegisterProducer(builder resolver.Builder, resources ...string) {
	for _, resource := range resources {
		if _, ok := r.producers[resource]; ok {
			panic(fmt.Sprintf("resource %q registered with two producers", resource))
		}
		r.producers[resource] = builder
	}
}

// BuilderFor implements resolver.Table.
func (r *Registry) BuilderFor(resource string) (resolver.Builder, bool) {
	b, ok := r.producers[resource]
	return b, ok
}

// Resources returns every registered resource name in sorted order.
func (r *Registry) Resources() []string {
	names := make([]string, 0, len(r.producers))
	for name := range r.producers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the registry for completeness against the catalog of
// buildable resource names: every cataloged resource must have exactly one
// producer. Raw-input resources (supplied by callers, never built) do not
// belong in the catalog.
func (r *Registry) Validate(catalog []string) error {
	var missing []string
	for _, resource := range catalog {
		if _, ok := r.producers[resource]; !ok {
			missing = append(missing, resource)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("registry validation failed, no producer for: %s",
			strings.Join(missing, ", "))
	}
	return nil
}
