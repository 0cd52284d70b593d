// Package sink attaches writer nodes that materialize the derivative files
// an assembly pass produced. After building, every pool entry still held as
// a node reference only exists inside the engine; the sink gives each one a
// destination on disk so nothing built is discarded.
package sink

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/manwithadodla/quality-assessment-protocol/internal/config"
	"github.com/manwithadodla/quality-assessment-protocol/internal/ctxlog"
	"github.com/manwithadodla/quality-assessment-protocol/internal/engine"
	"github.com/manwithadodla/quality-assessment-protocol/internal/pool"
)

// Attach sweeps the pool and wires one writer node per resource still bound
// to a node output. Concrete entries (raw inputs, already-written JSON) are
// skipped. It returns the number of writers attached.
//
// Each writer lands its file under
// <output_directory>/<run_name>/<site>/<subject>/<session>/<resource>/.
func Attach(ctx context.Context, g *engine.Graph, p *pool.Pool, cfg *config.Config, suffix string) (int, error) {
	logger := ctxlog.FromContext(ctx)

	attached := 0
	for _, name := range p.Keys() {
		v, err := p.Get(name)
		if err != nil {
			return attached, err
		}
		ref, ok := v.AsReference()
		if !ok {
			continue
		}

		w, err := g.AddNode("datasink.write", "sink_"+name+suffix, map[string]cty.Value{
			"out_dir": cty.StringVal(cfg.OutputPath(name)),
		})
		if err != nil {
			return attached, fmt.Errorf("attaching sink for %q: %w", name, err)
		}
		if err := g.Connect(engine.NodeID(ref.NodeID), ref.Port, w, "in_file"); err != nil {
			return attached, fmt.Errorf("attaching sink for %q: %w", name, err)
		}
		attached++
	}

	logger.Debug("Attached output sinks.", "count", attached)
	return attached, nil
}
