package config

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/manwithadodla/quality-assessment-protocol/internal/ctxlog"
)

// Load reads a run file (or every .hcl file under a directory) and
// translates it into the agnostic RunFile model. Exactly one `run` block
// must be present across all loaded files.
func Load(ctx context.Context, path string) (*RunFile, error) {
	logger := ctxlog.FromContext(ctx)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config path %q: %w", path, err)
	}

	paths := []string{path}
	if info.IsDir() {
		paths, err = runFilesUnder(path)
		if err != nil {
			return nil, fmt.Errorf("failed to scan config directory %q: %w", path, err)
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no .hcl run files found under %q", path)
	}
	logger.Debug("Loading run configuration.", "files", len(paths))

	parser := hclparse.NewParser()
	out := &RunFile{}
	var run *runBlock

	for _, p := range paths {
		file, diags := parser.ParseHCLFile(p)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse %q: %w", p, diags)
		}

		var body runFileBody
		if diags := gohcl.DecodeBody(file.Body, nil, &body); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode %q: %w", p, diags)
		}

		if body.Run != nil {
			if run != nil {
				return nil, fmt.Errorf("duplicate run block in %q", p)
			}
			run = body.Run
		}
		for _, s := range body.Scans {
			out.Scans = append(out.Scans, translateScan(s))
		}
	}

	if run == nil {
		return nil, fmt.Errorf("no run block found in %q", path)
	}

	cfg, err := New(Config{
		OutputDirectory:    run.OutputDirectory,
		RunName:            run.RunName,
		SiteName:           run.SiteName,
		NumProcessors:      run.NumProcessors,
		WriteReport:        run.WriteReport,
		ExcludeZeros:       run.ExcludeZeros,
		GhostDirection:     run.GhostDirection,
		AnatomicalTemplate: run.AnatomicalTemplate,
	})
	if err != nil {
		return nil, err
	}
	out.Run = cfg

	logger.Debug("Run configuration loaded.", "run", cfg.RunName, "scans", len(out.Scans))
	return out, nil
}

// runFilesUnder walks a config directory and collects every .hcl run file,
// in walk order. Subdirectories are included so sites may be split into
// their own folders.
func runFilesUnder(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(p) == ".hcl" {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// translateScan converts the HCL-specific scan schema into the agnostic model.
func translateScan(s *scanBlock) *Scan {
	return &Scan{
		Label:     s.Label,
		Subject:   s.Subject,
		Session:   s.Session,
		Scan:      s.Scan,
		Requests:  s.Requests,
		Resources: s.Resources,
	}
}
