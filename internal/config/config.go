// Package config holds the run configuration shared read-only across all
// builders in a resolution pass, and the HCL loader that produces it.
package config

import (
	"errors"
	"fmt"
)

// Config is the immutable-for-the-pass set of options builders read.
// Optional keys are defaulted once, here, at construction — never inside
// builder bodies.
type Config struct {
	OutputDirectory string
	RunName         string
	SiteName        string

	SubjectID string
	SessionID string
	ScanID    string

	NumProcessors int
	WriteReport   bool
	ExcludeZeros  bool

	// GhostDirection is the phase-encoding direction used by the ghost
	// metric node. Defaults to "y".
	GhostDirection string

	// AnatomicalTemplate is the template image the anatomical scan is
	// registered against. Required only by builders that register.
	AnatomicalTemplate string
}

// New validates a Config and applies defaults for absent optional keys.
func New(cfg Config) (*Config, error) {
	if cfg.OutputDirectory == "" {
		return nil, errors.New("output_directory is a required configuration field")
	}
	if cfg.RunName == "" {
		return nil, errors.New("run_name is a required configuration field")
	}
	if cfg.GhostDirection == "" {
		cfg.GhostDirection = "y"
	}
	if cfg.NumProcessors < 1 {
		cfg.NumProcessors = 1
	}
	return &cfg, nil
}

// ForScan derives the per-scan Config for one resolution pass. The receiver
// is not modified; two passes never share a Config instance.
func (c *Config) ForScan(subjectID, sessionID, scanID string) *Config {
	scanCfg := *c
	scanCfg.SubjectID = subjectID
	scanCfg.SessionID = sessionID
	scanCfg.ScanID = scanID
	return &scanCfg
}

// RequireTemplate fails when a builder that needs the anatomical template is
// invoked without one configured. This mirrors the original's hard check:
// an absent template is a configuration error, not a stall.
func (c *Config) RequireTemplate() error {
	if c.AnatomicalTemplate == "" {
		return fmt.Errorf("anatomical_template must be configured for registration")
	}
	return nil
}
