package app

import (
	"path/filepath"

	"github.com/manwithadodla/quality-assessment-protocol/internal/config"
	"github.com/manwithadodla/quality-assessment-protocol/internal/engine"
	"github.com/manwithadodla/quality-assessment-protocol/modules/afni"
	"github.com/manwithadodla/quality-assessment-protocol/modules/datasink"
	"github.com/manwithadodla/quality-assessment-protocol/modules/metrics"
)

// coreModules is the definitive list of handler modules compiled into the
// binary. Scratch output goes under the run's working directory.
func coreModules(run *config.Config) []engine.Module {
	workDir := filepath.Join(run.OutputDirectory, run.RunName, "_work")
	return []engine.Module{
		&afni.Module{WorkDir: workDir},
		&metrics.Module{WorkDir: workDir},
		&datasink.Module{},
	}
}
