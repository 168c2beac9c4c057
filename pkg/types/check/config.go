package check

import (
	"errors"
	"fmt"
)

// Check applies one or more comparisons to one or more identifiers. The
// cross product is always complete: a check with 3 ids and 2 comparisons
// yields 6 independent elementary evaluations.
type Check struct {
	Name        string       `json:"name"`
	IDs         []string     `json:"ids"`
	Comparisons []Comparison `json:"comparisons"`
}

// Validate enforces the structural invariants a check must satisfy before
// evaluation.
func (c *Check) Validate() error {
	if len(c.IDs) == 0 {
		return fmt.Errorf("check %q has no ids", c.Name)
	}
	if len(c.Comparisons) == 0 {
		return fmt.Errorf("check %q has no comparisons", c.Name)
	}
	for _, cmp := range c.Comparisons {
		if cmp == nil {
			return fmt.Errorf("check %q has a nil comparison", c.Name)
		}
	}
	return nil
}

// ConfigCommon holds the fields shared by every configuration kind. Tags
// are free-form classification and play no part in evaluation.
type ConfigCommon struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Checklist   []Check  `json:"checklist"`
}

// Common implements Configuration for every kind embedding ConfigCommon.
func (c *ConfigCommon) Common() *ConfigCommon { return c }

// Configuration is one named group of checks. Two kinds exist: a
// PVConfiguration whose identifiers are fully-qualified channel names, and
// a DeviceConfiguration whose identifiers are attributes interpreted
// relative to each of its devices. The kind decides how a check id expands
// into resolvable identifiers; nothing else about evaluation differs.
type Configuration interface {
	Common() *ConfigCommon
	// Identifiers expands one check id into the identifiers to resolve.
	Identifiers(id string) []string
}

// PVConfiguration checks fully-qualified channel names directly.
type PVConfiguration struct {
	ConfigCommon
}

func (p *PVConfiguration) Identifiers(id string) []string {
	return []string{id}
}

// DeviceConfiguration applies every check to every listed device; a check
// id names a device attribute and resolves as "<device>.<attribute>".
type DeviceConfiguration struct {
	ConfigCommon

	Devices []string `json:"devices"`
}

func (d *DeviceConfiguration) Identifiers(id string) []string {
	ids := make([]string, 0, len(d.Devices))
	for _, dev := range d.Devices {
		ids = append(ids, dev+"."+id)
	}
	return ids
}

// ConfigurationFile is one run's worth of configurations. Configurations
// are evaluated independently; no ordering or shared state exists between
// them.
type ConfigurationFile struct {
	Configs []Configuration `json:"configs"`
}

// Validate checks the whole tree. A configuration with an empty checklist
// is valid (it evaluates to a vacuous Success); a check with no ids or no
// comparisons is not.
func (f *ConfigurationFile) Validate() error {
	for _, cfg := range f.Configs {
		if cfg == nil {
			return errors.New("nil configuration")
		}
		common := cfg.Common()
		if common.Name == "" {
			return errors.New("configuration with no name")
		}
		for i := range common.Checklist {
			if err := common.Checklist[i].Validate(); err != nil {
				return fmt.Errorf("configuration %q: %w", common.Name, err)
			}
		}
		if dev, ok := cfg.(*DeviceConfiguration); ok && len(dev.Devices) == 0 && len(common.Checklist) > 0 {
			return fmt.Errorf("device configuration %q has no devices", common.Name)
		}
	}
	return nil
}
