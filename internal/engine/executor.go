package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/manwithadodla/quality-assessment-protocol/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

// Status is the terminal (or in-flight) execution state of a node.
type Status int32

const (
	// StatusPending indicates the node is waiting for its dependencies.
	StatusPending Status = iota
	// StatusRunning indicates a worker is currently executing the node.
	StatusRunning
	// StatusDone indicates the node completed successfully.
	StatusDone
	// StatusFailed indicates the node's handler returned an error.
	StatusFailed
	// StatusSkipped indicates an upstream dependency failed, so the node
	// never ran.
	StatusSkipped
)

// String renders the status for logs and reports.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	}
	return "unknown"
}

// Result is the per-node outcome of one Run.
type Result struct {
	Status  Status
	Outputs Outputs
	Err     error
}

// RunOptions configures one execution of an assembled graph.
type RunOptions struct {
	// Workers bounds the number of nodes executing concurrently. Values
	// below 1 are treated as 1.
	Workers int
	// Handlers dispatches node kinds to their Go implementations.
	Handlers *HandlerSet
}

// runState holds the mutable bookkeeping for a single Run. Keeping it off
// the Node structs lets the same assembled graph be run more than once.
type runState struct {
	graph    *Graph
	handlers *HandlerSet

	wg sync.WaitGroup

	mu      sync.Mutex
	results map[NodeID]*Result

	depCount map[NodeID]*atomic.Int32
	skipOnce map[NodeID]*sync.Once
}

// Run executes the whole graph on a bounded worker pool and returns the
// per-node results. Nodes with no data dependency between them may run
// concurrently; an edge forces dependency order. A failing node causes only
// its transitive dependents to be skipped. The returned error is the first
// root-cause handler failure, with the full picture available in the result
// map either way.
func (g *Graph) Run(ctx context.Context, opts RunOptions) (map[NodeID]*Result, error) {
	logger := ctxlog.FromContext(ctx)

	if opts.Handlers == nil {
		return nil, fmt.Errorf("run: no handler set provided")
	}
	if err := opts.Handlers.Validate(g); err != nil {
		return nil, err
	}
	if err := g.DetectCycles(); err != nil {
		return nil, fmt.Errorf("refusing to run graph: %w", err)
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	st := &runState{
		graph:    g,
		handlers: opts.Handlers,
		results:  make(map[NodeID]*Result, g.Len()),
		depCount: make(map[NodeID]*atomic.Int32, g.Len()),
		skipOnce: make(map[NodeID]*sync.Once, g.Len()),
	}

	readyChan := make(chan NodeID, g.Len())

	logger.Debug("Initializing executor, finding root nodes.")
	rootCount := 0
	for _, id := range g.NodeIDs() {
		st.results[id] = &Result{Status: StatusPending}
		st.skipOnce[id] = &sync.Once{}
		deps, err := g.Dependencies(id)
		if err != nil {
			return nil, err
		}
		counter := &atomic.Int32{}
		counter.Store(int32(len(deps)))
		st.depCount[id] = counter
		if len(deps) == 0 {
			readyChan <- id
			rootCount++
		}
	}
	logger.Debug("Found all root nodes.", "count", rootCount)

	st.wg.Add(g.Len())

	logger.Debug("Starting worker pool.", "workers", workers)
	for i := 0; i < workers; i++ {
		go st.worker(ctx, readyChan, i)
	}

	st.wg.Wait()
	close(readyChan)
	logger.Debug("All nodes completed.")

	var firstErr error
	for _, id := range g.NodeIDs() {
		res := st.results[id]
		if res.Status == StatusFailed && firstErr == nil {
			firstErr = fmt.Errorf("node %s failed: %w", id, res.Err)
		}
	}
	return st.results, firstErr
}

// worker is the core processing loop for a single concurrent worker.
func (st *runState) worker(ctx context.Context, readyChan chan NodeID, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for id := range readyChan {
		workerLogger := logger.With("workerID", workerID, "nodeID", id)

		if ctx.Err() != nil {
			st.skip(ctx, id, ctx.Err())
			continue
		}

		workerLogger.Debug("Worker picked up node for execution.")
		st.setStatus(id, StatusRunning)

		outputs, err := st.execute(ctx, id)
		if err != nil {
			workerLogger.Error("Node execution failed.", "error", err)
			st.finish(id, StatusFailed, nil, err)
			st.skipDependents(ctx, id)
			st.wg.Done()
			continue
		}

		workerLogger.Debug("Node execution succeeded.")
		st.finish(id, StatusDone, outputs, nil)

		dependents, derr := st.graph.Dependents(id)
		if derr != nil {
			workerLogger.Error("Failed to get dependents for completed node.", "error", derr)
		} else {
			for _, dependent := range dependents {
				if st.depCount[dependent].Add(-1) == 0 {
					workerLogger.Debug("Unlocking dependent node.", "dependentID", dependent)
					readyChan <- dependent
				}
			}
		}
		st.wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// execute resolves a node's inputs from its upstream results and dispatches
// to the kind's handler.
func (st *runState) execute(ctx context.Context, id NodeID) (Outputs, error) {
	n, ok := st.graph.Node(id)
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}

	handler, ok := st.handlers.Lookup(n.Kind)
	if !ok {
		return nil, fmt.Errorf("no handler for kind %q", n.Kind)
	}

	inputs := make(map[string]cty.Value)
	for _, e := range st.graph.EdgesInto(id) {
		st.mu.Lock()
		upstream := st.results[e.Src]
		st.mu.Unlock()
		// Dependencies are Done before this node becomes ready.
		val, ok := upstream.Outputs[e.SrcPort]
		if !ok {
			return nil, fmt.Errorf("upstream %s produced no output on port %q", e.Src, e.SrcPort)
		}
		inputs[e.DstPort] = val
	}

	task := &Task{ID: n.ID, Kind: n.Kind, Name: n.Name, Params: n.Params, Inputs: inputs}
	return handler(ctx, task)
}

// skipDependents recursively marks all downstream nodes as skipped.
func (st *runState) skipDependents(ctx context.Context, id NodeID) {
	dependents, err := st.graph.Dependents(id)
	if err != nil {
		return
	}
	for _, dependent := range dependents {
		st.skip(ctx, dependent, fmt.Errorf("skipped due to upstream failure of '%s'", id))
	}
}

// skip marks a node skipped exactly once and cascades to its dependents.
func (st *runState) skip(ctx context.Context, id NodeID, cause error) {
	st.skipOnce[id].Do(func() {
		ctxlog.FromContext(ctx).Warn("Skipping node.", "nodeID", id, "cause", cause)
		st.finish(id, StatusSkipped, nil, cause)
		st.wg.Done()
		st.skipDependents(ctx, id)
	})
}

func (st *runState) setStatus(id NodeID, status Status) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.results[id].Status = status
}

func (st *runState) finish(id NodeID, status Status, outputs Outputs, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	res := st.results[id]
	res.Status = status
	res.Outputs = outputs
	res.Err = err
}
