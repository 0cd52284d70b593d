package config

import (
	"github.com/zclconf/go-cty/cty"
)

// runBlock is the HCL shape of the single `run` block in a run file.
type runBlock struct {
	RunName         string `hcl:"run_name"`
	SiteName        string `hcl:"site_name,optional"`
	OutputDirectory string `hcl:"output_directory"`

	NumProcessors int  `hcl:"num_processors,optional"`
	WriteReport   bool `hcl:"write_report,optional"`
	ExcludeZeros  bool `hcl:"exclude_zeros,optional"`

	GhostDirection     string `hcl:"ghost_direction,optional"`
	AnatomicalTemplate string `hcl:"anatomical_template,optional"`
}

// scanBlock is the HCL shape of a `scan` block: one scan of one session of
// one subject, with the outputs requested for it and the raw resources that
// seed its pool.
type scanBlock struct {
	Label string `hcl:"label,label"`

	Subject string `hcl:"subject"`
	Session string `hcl:"session"`
	Scan    string `hcl:"scan"`

	Requests  []string             `hcl:"request"`
	Resources map[string]cty.Value `hcl:"resources,optional"`
}

// runFileBody is the top-level HCL structure of one run file.
type runFileBody struct {
	Run   *runBlock    `hcl:"run,block"`
	Scans []*scanBlock `hcl:"scan,block"`
}

// Scan is one scan's worth of work: identity, requested outputs, and the
// concrete raw inputs that seed its resource pool.
type Scan struct {
	Label     string
	Subject   string
	Session   string
	Scan      string
	Requests  []string
	Resources map[string]cty.Value
}

// RunFile is the fully-loaded, translated run configuration.
type RunFile struct {
	Run   *Config
	Scans []*Scan
}
