// Package datasink implements the output-writing node kinds: the JSON
// writer that merges metric objects into one document, and the file writer
// that lands derivative files under the run's output tree.
package datasink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/manwithadodla/quality-assessment-protocol/internal/ctxlog"
	"github.com/manwithadodla/quality-assessment-protocol/internal/engine"
)

// Module implements the engine.Module interface for this package.
type Module struct{}

// Register registers the datasink handlers with the engine.
func (m *Module) Register(hs *engine.HandlerSet) {
	hs.Register("datasink.json", m.writeJSON)
	hs.Register("datasink.write", m.writeFile)
}

// writeJSON merges every edge-fed input into one JSON document at the
// out_path parameter. Object inputs contribute their attributes directly;
// anything else is keyed by the port it arrived on.
func (m *Module) writeJSON(ctx context.Context, t *engine.Task) (engine.Outputs, error) {
	outPath, err := t.InputString("out_path")
	if err != nil {
		return nil, err
	}

	merged := make(map[string]cty.Value)
	ports := make([]string, 0, len(t.Inputs))
	for port := range t.Inputs {
		ports = append(ports, port)
	}
	sort.Strings(ports)
	for _, port := range ports {
		v := t.Inputs[port]
		if v.Type().IsObjectType() {
			for name, attr := range v.AsValueMap() {
				merged[name] = attr
			}
			continue
		}
		merged[port] = v
	}
	if len(merged) == 0 {
		return nil, fmt.Errorf("%s: no metric inputs to write", t.ID)
	}

	doc := cty.ObjectVal(merged)
	raw, err := ctyjson.Marshal(doc, doc.Type())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.ID, err)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("%s: %w", t.ID, err)
	}
	pretty.WriteByte('\n')

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, fmt.Errorf("%s: %w", t.ID, err)
	}
	if err := os.WriteFile(outPath, pretty.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("%s: %w", t.ID, err)
	}

	ctxlog.FromContext(ctx).Info("Wrote metrics.", "path", outPath, "fields", len(merged))
	return engine.Outputs{"out_json": cty.StringVal(outPath)}, nil
}

// writeFile copies in_file either to the exact out_path, or into out_dir
// keeping its basename.
func (m *Module) writeFile(ctx context.Context, t *engine.Task) (engine.Outputs, error) {
	in, err := t.InputString("in_file")
	if err != nil {
		return nil, err
	}

	var dst string
	if p, err := t.InputString("out_path"); err == nil {
		dst = p
	} else {
		dir, err := t.InputString("out_dir")
		if err != nil {
			return nil, fmt.Errorf("%s: neither out_path nor out_dir is bound", t.ID)
		}
		dst = filepath.Join(dir, filepath.Base(in))
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, fmt.Errorf("%s: %w", t.ID, err)
	}
	if err := copyFile(in, dst); err != nil {
		return nil, fmt.Errorf("%s: %w", t.ID, err)
	}

	ctxlog.FromContext(ctx).Info("Wrote output file.", "path", dst)
	return engine.Outputs{"out_file": cty.StringVal(dst)}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
