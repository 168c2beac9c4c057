package check

import "time"

// The report mirrors the configuration tree. Every node carries a Result;
// aggregate nodes carry the maximum severity among their children with ties
// broken by declaration order, and repeat the winning child's reason.
//
// Passed on an aggregate node means the subtree holds no Error or worse; a
// Warning does not fail a checkout, though it is reported. Passed on an
// elementary evaluation is the predicate outcome itself.

// EvaluationResult is the outcome of one (identifier, comparison) pair.
// Cancelled marks a pair that never ran because the run was aborted.
type EvaluationResult struct {
	Identifier string `json:"identifier"`
	Comparison string `json:"comparison"`
	Cancelled  bool   `json:"cancelled,omitempty"`
	Result
}

// CheckReport retains every elementary result, not just the worst; only the
// aggregate severity propagates upward.
type CheckReport struct {
	Name        string `json:"name"`
	Cancelled   bool   `json:"cancelled,omitempty"`
	Result
	Evaluations []EvaluationResult `json:"evaluations"`
}

// ConfigurationReport is the verdict for one configuration. Cancelled marks
// a configuration whose evaluation never completed because the run was
// aborted; its Result is not a verdict.
type ConfigurationReport struct {
	Name      string        `json:"name"`
	Tags      []string      `json:"tags,omitempty"`
	Cancelled bool          `json:"cancelled,omitempty"`
	Result
	Checks    []CheckReport `json:"checks"`
}

// RunReport is the structured output of one engine invocation. A cancelled
// run keeps every completed configuration verdict and flags the rest; it
// never silently drops results.
type RunReport struct {
	ID             string                `json:"id"`
	StartedAt      time.Time             `json:"started_at"`
	FinishedAt     time.Time             `json:"finished_at"`
	Cancelled      bool                  `json:"cancelled,omitempty"`
	Result
	Configurations []ConfigurationReport `json:"configurations"`
}
