/*
Package resolver drives recursive graph assembly: given a requested resource
name, it dispatches to the registered builder, which may in turn require
further prerequisites before wiring its own nodes and publishing its outputs
back into the pool.

Dispatch always short-circuits on resources already present in the pool, so
builders never run speculatively and re-requesting a resource is free.

A builder that cannot make progress (a required raw input was never
supplied) is a stall, not an error: it returns with the pool unchanged, the
dispatcher detects the unchanged pool, and every ancestor up the chain
observes the same and stalls too. Resolution terminates without raising;
the top-level caller sees which requested outputs never appeared. Anything
else — malformed wiring, a resource collision, a broken Get contract —
surfaces as an error immediately.

Resolution is strictly depth-first and synchronous on one call stack; each
top-level pass owns its pool and config outright.
*/
package resolver
