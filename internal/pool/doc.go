// Package pool implements the resource pool: the evolving, string-keyed map
// of named artifacts shared across one graph-assembly pass.
//
// A pool entry is either a Concrete value (a file path or scalar supplied up
// front, or produced as a side effect of wiring) or a Reference to a named
// output port of a graph node that has not executed yet. Builders only ever
// add or idempotently rebind entries; nothing is ever removed, which is what
// makes the resolver's "did the pool change" stall check sound.
//
// Snapshot comparison is deliberately shallow: Concrete payloads are compared
// with cty's RawEquals and References by (node id, port) identity. Engine node
// objects are never inspected, so stall detection cannot misfire on values
// that lack meaningful deep equality.
package pool
