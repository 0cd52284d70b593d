/*
Package engine is the execution collaborator consumed by the resolver: a
directed graph of opaque computation units plus a bounded worker pool that
runs them in dependency order.

The engine never interprets what a node does. A node has a kind (dispatched
to a registered Handler at run time), a unique name, static parameters bound
at wiring time, and named output ports. Data dependencies are directed edges
from an upstream (node, output port) to a downstream (node, input port);
when the upstream node completes, the value it produced on that port is
routed into the dependent's task inputs.

Execution is best-effort: a failing node marks only its transitive
dependents as skipped, and every other branch of the graph runs to
completion. Run reports a per-node Result either way.
*/
package engine
