package config

import "path/filepath"

// OutputPath returns the on-disk location for a derivative of the scan this
// configuration describes, rooted at the run's output directory:
//
//	<output_directory>/<run_name>/<site_name>/<subject_id>/<session_id>/<scan_id>/<elem...>
//
// The scan element is omitted on a run-level Config with no ScanID, so two
// scans of the same session never share an output location.
func (c *Config) OutputPath(elem ...string) string {
	parts := []string{
		c.OutputDirectory,
		c.RunName,
		c.SiteName,
		c.SubjectID,
		c.SessionID,
	}
	if c.ScanID != "" {
		parts = append(parts, c.ScanID)
	}
	return filepath.Join(append(parts, elem...)...)
}
