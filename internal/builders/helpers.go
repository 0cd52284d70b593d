package builders

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/manwithadodla/quality-assessment-protocol/internal/engine"
	"github.com/manwithadodla/quality-assessment-protocol/internal/resolver"
)

// scanIdentity returns the identifying parameters every metric node carries
// so its output rows can be traced back to the scan they describe.
func scanIdentity(r *resolver.Request) map[string]cty.Value {
	return map[string]cty.Value{
		"site":    cty.StringVal(r.Config.SiteName),
		"subject": cty.StringVal(r.Config.SubjectID),
		"session": cty.StringVal(r.Config.SessionID),
		"scan":    cty.StringVal(r.Config.ScanID),
	}
}

// writeJSON attaches a JSON writer node fed from a single metric output.
// The destination path is fixed at wiring time.
func writeJSON(r *resolver.Request, name, path string, src engine.NodeID, port string) error {
	sink, err := r.AddNode("datasink.json", name, map[string]cty.Value{
		"out_path": cty.StringVal(path),
	})
	if err != nil {
		return err
	}
	return r.Graph.Connect(src, port, sink, "metrics")
}

// mosaic renders a slice-mosaic image of the underlay resource, optionally
// with a mask overlay, and attaches a writer for it. Only wired when report
// output is enabled.
func mosaic(r *resolver.Request, name, underlay, overlay string) error {
	m, err := r.AddNode("metrics.mosaic", name, scanIdentity(r))
	if err != nil {
		return err
	}
	if err := r.Bind(underlay, m, "underlay"); err != nil {
		return err
	}
	if overlay != "" {
		if err := r.Bind(overlay, m, "overlay"); err != nil {
			return err
		}
	}

	w, err := r.AddNode("datasink.write", name+"_out", map[string]cty.Value{
		"out_path": cty.StringVal(r.Config.OutputPath(QAPMosaic, name+".png")),
	})
	if err != nil {
		return err
	}
	return r.Graph.Connect(m, "out_file", w, "in_file")
}
