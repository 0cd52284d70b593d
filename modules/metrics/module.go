// Package metrics implements the quality metric node kinds in Go. Handlers
// read NIfTI inputs directly and emit their results as structured values on
// the node's qc output port, ready for the JSON writer downstream.
package metrics

import (
	"github.com/manwithadodla/quality-assessment-protocol/internal/engine"
)

// Module implements the engine.Module interface for this package.
type Module struct {
	// WorkDir is the scratch root for handlers that write image outputs.
	WorkDir string
}

// Register registers the metric handlers with the engine.
func (m *Module) Register(hs *engine.HandlerSet) {
	hs.Register("metrics.expr_string", m.exprString)
	hs.Register("metrics.slice_mask", m.sliceMask)
	hs.Register("metrics.artifacts", m.artifacts)
	hs.Register("metrics.anat_spatial", m.anatSpatial)
	hs.Register("metrics.header_info", m.headerInfo)
	hs.Register("metrics.fd", m.framewiseDisplacement)
	hs.Register("metrics.func_spatial", m.funcSpatial)
	hs.Register("metrics.func_temporal", m.funcTemporal)
	hs.Register("metrics.temporal_std", m.temporalStd)
	hs.Register("metrics.sfs", m.sfs)
	hs.Register("metrics.mosaic", m.mosaic)
}
