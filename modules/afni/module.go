// Package afni wraps the AFNI command-line tools as engine node kinds. Each
// handler builds the command for its tool, runs it in a per-node scratch
// directory and returns the paths of the files it produced.
package afni

import (
	"github.com/manwithadodla/quality-assessment-protocol/internal/engine"
)

// Module implements the engine.Module interface for this package.
type Module struct {
	// WorkDir is the scratch root; every node gets a subdirectory of it.
	WorkDir string
}

// Register registers the AFNI handlers with the engine.
func (m *Module) Register(hs *engine.HandlerSet) {
	hs.Register("afni.refit", m.refit)
	hs.Register("afni.resample", m.resample)
	hs.Register("afni.allineate", m.allineate)
	hs.Register("afni.clip_level", m.clipLevel)
	hs.Register("afni.calc", m.calc)
	hs.Register("afni.mask_tool", m.maskTool)
	hs.Register("afni.seg", m.seg)
	hs.Register("afni.automask", m.automask)
	hs.Register("afni.volreg", m.volreg)
	hs.Register("afni.tstat", m.tstat)
}
