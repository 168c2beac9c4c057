// Package loader reads checkout configuration files. The on-disk format is
// YAML (JSON parses too, being a YAML subset): a top-level `configs`
// sequence of single-key tagged unions naming the configuration kind, whose
// checks carry comparisons keyed the same way.
//
//	configs:
//	  - DeviceConfiguration:
//	      name: imagers
//	      devices: [im1l0, im2l0]
//	      checklist:
//	        - name: not free running
//	          ids: [cam.acquire_mode]
//	          comparisons:
//	            - Equals:
//	                name: acquire mode
//	                value: Free Run
//	                invert: true
//
// Unknown configuration kinds, comparison kinds, reduce methods and
// severity ordinals are all rejected here, at load time, so the engine
// never sees a malformed tree.
package loader

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/controlkit/checkout/pkg/types/check"
)

// Load reads and validates a configuration file.
func Load(path string) (*check.ConfigurationFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration file: %w", err)
	}
	file, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return file, nil
}

// Parse decodes a configuration document.
func Parse(raw []byte) (*check.ConfigurationFile, error) {
	var doc struct {
		Configs []yaml.Node `yaml:"configs"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	file := &check.ConfigurationFile{}
	for i := range doc.Configs {
		cfg, err := parseConfiguration(&doc.Configs[i])
		if err != nil {
			return nil, fmt.Errorf("configs[%d]: %w", i, err)
		}
		file.Configs = append(file.Configs, cfg)
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return file, nil
}

type configDoc struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Tags        []string   `yaml:"tags"`
	Devices     []string   `yaml:"devices"`
	Checklist   []checkDoc `yaml:"checklist"`
}

type checkDoc struct {
	Name        string      `yaml:"name"`
	IDs         []string    `yaml:"ids"`
	Comparisons []yaml.Node `yaml:"comparisons"`
}

// comparisonDoc is the superset of all comparison kinds' fields.
// reduce_period is seconds, as the source data encodes it; severities are
// the 0/1/2 ordinals and default to error when absent.
type comparisonDoc struct {
	Name              string   `yaml:"name"`
	Description       string   `yaml:"description"`
	Invert            bool     `yaml:"invert"`
	ReducePeriod      float64  `yaml:"reduce_period"`
	ReduceMethod      string   `yaml:"reduce_method"`
	SeverityOnFailure *int     `yaml:"severity_on_failure"`
	IfDisconnected    *int     `yaml:"if_disconnected"`
	Value             any      `yaml:"value"`
	String            bool     `yaml:"string"`
	Rtol              *float64 `yaml:"rtol"`
	Atol              *float64 `yaml:"atol"`
	Low               float64  `yaml:"low"`
	High              float64  `yaml:"high"`
	Inclusive         *bool    `yaml:"inclusive"`
}

func parseConfiguration(node *yaml.Node) (check.Configuration, error) {
	kind, body, err := unionKey(node)
	if err != nil {
		return nil, err
	}
	var doc configDoc
	if err := body.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}

	common := check.ConfigCommon{
		Name:        doc.Name,
		Description: doc.Description,
		Tags:        doc.Tags,
	}
	for i := range doc.Checklist {
		chk, err := parseCheck(&doc.Checklist[i])
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", kind, doc.Name, err)
		}
		common.Checklist = append(common.Checklist, chk)
	}

	switch kind {
	case "DeviceConfiguration":
		return &check.DeviceConfiguration{ConfigCommon: common, Devices: doc.Devices}, nil
	case "PVConfiguration":
		if len(doc.Devices) > 0 {
			return nil, fmt.Errorf("PVConfiguration %q must not list devices", doc.Name)
		}
		return &check.PVConfiguration{ConfigCommon: common}, nil
	}
	return nil, fmt.Errorf("unknown configuration kind %q", kind)
}

func parseCheck(doc *checkDoc) (check.Check, error) {
	chk := check.Check{
		Name: doc.Name,
		IDs:  doc.IDs,
	}
	for i := range doc.Comparisons {
		cmp, err := parseComparison(&doc.Comparisons[i])
		if err != nil {
			return check.Check{}, fmt.Errorf("check %q comparisons[%d]: %w", doc.Name, i, err)
		}
		chk.Comparisons = append(chk.Comparisons, cmp)
	}
	return chk, nil
}

func parseComparison(node *yaml.Node) (check.Comparison, error) {
	kind, body, err := unionKey(node)
	if err != nil {
		return nil, err
	}
	var doc comparisonDoc
	if err := body.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	base, err := parseBase(&doc)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", kind, doc.Name, err)
	}

	switch kind {
	case "Equals", "NotEquals":
		eq := check.Equals{
			Base:   base,
			Value:  doc.Value,
			String: doc.String,
			Rtol:   doc.Rtol,
			Atol:   doc.Atol,
		}
		if kind == "NotEquals" {
			return &check.NotEquals{Equals: eq}, nil
		}
		return &eq, nil
	case "Greater", "GreaterOrEqual", "Less", "LessOrEqual":
		threshold, ok := check.Numeric(doc.Value)
		if !ok {
			return nil, fmt.Errorf("%s %q: non-numeric threshold %v", kind, doc.Name, doc.Value)
		}
		switch kind {
		case "Greater":
			return &check.Greater{Base: base, Value: threshold}, nil
		case "GreaterOrEqual":
			return &check.GreaterOrEqual{Base: base, Value: threshold}, nil
		case "Less":
			return &check.Less{Base: base, Value: threshold}, nil
		default:
			return &check.LessOrEqual{Base: base, Value: threshold}, nil
		}
	case "Range":
		if doc.Low > doc.High {
			return nil, fmt.Errorf("Range %q: low %v above high %v", doc.Name, doc.Low, doc.High)
		}
		inclusive := true
		if doc.Inclusive != nil {
			inclusive = *doc.Inclusive
		}
		return &check.Range{Base: base, Low: doc.Low, High: doc.High, Inclusive: inclusive}, nil
	}
	return nil, fmt.Errorf("unknown comparison kind %q", kind)
}

func parseBase(doc *comparisonDoc) (check.Base, error) {
	method, err := check.ParseReduceMethod(doc.ReduceMethod)
	if err != nil {
		return check.Base{}, err
	}
	if doc.ReducePeriod < 0 {
		return check.Base{}, fmt.Errorf("negative reduce_period %v", doc.ReducePeriod)
	}
	base := check.Base{
		Name:              doc.Name,
		Description:       doc.Description,
		Invert:            doc.Invert,
		ReducePeriod:      time.Duration(doc.ReducePeriod * float64(time.Second)),
		ReduceMethod:      method,
		SeverityOnFailure: check.Error,
		IfDisconnected:    check.Error,
	}
	if doc.SeverityOnFailure != nil {
		if base.SeverityOnFailure, err = check.ParseSeverity(*doc.SeverityOnFailure); err != nil {
			return check.Base{}, fmt.Errorf("severity_on_failure: %w", err)
		}
	}
	if doc.IfDisconnected != nil {
		if base.IfDisconnected, err = check.ParseSeverity(*doc.IfDisconnected); err != nil {
			return check.Base{}, fmt.Errorf("if_disconnected: %w", err)
		}
	}
	return base, nil
}

// unionKey unwraps a single-key tagged-union mapping node.
func unionKey(node *yaml.Node) (string, *yaml.Node, error) {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return "", nil, fmt.Errorf("expected a single-key mapping naming the kind")
	}
	return node.Content[0].Value, node.Content[1], nil
}
