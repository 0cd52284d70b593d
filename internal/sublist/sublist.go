// Package sublist loads QAP-style YAML scan lists and turns them into
// per-scan assembly requests.
//
// The expected layout nests subject → session → resource type → scan id →
// filepath:
//
//	sub-1:
//	  ses-1:
//	    anatomical_scan:
//	      anat-1: /data/sub-1/ses-1/anat.nii.gz
//	    functional_scan:
//	      func-1: /data/sub-1/ses-1/func.nii.gz
package sublist

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"

	"github.com/manwithadodla/quality-assessment-protocol/internal/builders"
	"github.com/manwithadodla/quality-assessment-protocol/internal/config"
	"github.com/manwithadodla/quality-assessment-protocol/internal/ctxlog"
)

// resourceTypes maps the sublist's resource-type labels onto the pool
// resource each seeds and the output requested for it by default.
var resourceTypes = map[string]struct {
	resource string
	request  string
}{
	"anatomical_scan": {builders.AnatScan, builders.QAPAnatomicalSpatial},
	"functional_scan": {builders.FuncScan, builders.QAPFunctional},
}

// Load parses a YAML sublist into scan entries, one per (subject, session,
// scan id, resource type) leaf, sorted for deterministic assembly order.
func Load(ctx context.Context, path string) ([]*config.Scan, error) {
	logger := ctxlog.FromContext(ctx)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sublist %q: %w", path, err)
	}

	// subject -> session -> resource type -> scan id -> filepath
	var tree map[string]map[string]map[string]map[string]string
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("failed to parse sublist %q: %w", path, err)
	}

	var scans []*config.Scan
	for subject, sessions := range tree {
		for session, types := range sessions {
			for typeName, files := range types {
				rt, ok := resourceTypes[typeName]
				if !ok {
					return nil, fmt.Errorf(
						"sublist %q: unknown resource type %q under %s/%s",
						path, typeName, subject, session)
				}
				for scanID, filepath := range files {
					scans = append(scans, &config.Scan{
						Label:    fmt.Sprintf("%s_%s_%s", subject, session, scanID),
						Subject:  subject,
						Session:  session,
						Scan:     scanID,
						Requests: []string{rt.request},
						Resources: map[string]cty.Value{
							rt.resource: cty.StringVal(filepath),
						},
					})
				}
			}
		}
	}

	sort.Slice(scans, func(i, j int) bool { return scans[i].Label < scans[j].Label })
	logger.Debug("Sublist loaded.", "path", path, "scans", len(scans))
	return scans, nil
}
