package check

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func f64(v float64) *float64 { return &v }

func TestEqualsExact(t *testing.T) {
	eq := &Equals{
		Base:  Base{Name: "exact", SeverityOnFailure: Error},
		Value: 1.0,
	}
	r := eq.Compare(1.0)
	assert.True(t, r.Passed)
	assert.Equal(t, Success, r.Severity)
	assert.Empty(t, r.Reason)

	for _, eps := range []float64{1e-12, -1e-12, 0.1, -100} {
		r := eq.Compare(1.0 + eps)
		assert.False(t, r.Passed, "1.0%+g must not equal 1.0 exactly", eps)
		assert.Equal(t, Error, r.Severity)
		assert.Contains(t, r.Reason, "exact")
	}
}

func TestEqualsToleranceLaw(t *testing.T) {
	cases := []struct {
		rtol, atol *float64
		target     float64
		value      float64
		want       bool
	}{
		{atol: f64(0.5), target: 10, value: 10.4, want: true},
		{atol: f64(0.5), target: 10, value: 10.5, want: true},
		{atol: f64(0.5), target: 10, value: 10.6, want: false},
		{rtol: f64(0.1), target: 10, value: 10.9, want: true},
		{rtol: f64(0.1), target: 10, value: 11.1, want: false},
		{rtol: f64(0.1), atol: f64(1), target: 10, value: 11.9, want: true},
		{rtol: f64(0.1), atol: f64(1), target: 10, value: 12.1, want: false},
		// rtol scales with |target|, including negative targets.
		{rtol: f64(0.1), target: -10, value: -10.9, want: true},
		{rtol: f64(0.1), target: -10, value: -11.1, want: false},
	}
	for _, tc := range cases {
		eq := &Equals{
			Base:  Base{Name: "tol", SeverityOnFailure: Error},
			Value: tc.target,
			Rtol:  tc.rtol,
			Atol:  tc.atol,
		}
		r := eq.Compare(tc.value)
		assert.Equal(t, tc.want, r.Passed, "target=%v value=%v", tc.target, tc.value)
	}
}

func TestEqualsString(t *testing.T) {
	eq := &Equals{
		Base:  Base{Name: "state is out", SeverityOnFailure: Error},
		Value: "OUT",
	}
	assert.True(t, eq.Compare("OUT").Passed)

	r := eq.Compare("IN")
	assert.False(t, r.Passed)
	assert.Equal(t, Error, r.Severity)
	assert.Contains(t, r.Reason, "state is out")
	assert.Contains(t, r.Reason, "IN")
	assert.Contains(t, r.Reason, "OUT")

	// Case-sensitive.
	assert.False(t, eq.Compare("out").Passed)

	// String flag forces textual comparison of numeric values.
	forced := &Equals{
		Base:   Base{Name: "forced", SeverityOnFailure: Error},
		Value:  1,
		String: true,
	}
	assert.True(t, forced.Compare(1).Passed)
	assert.False(t, forced.Compare(1.5).Passed)
}

func TestEqualsBool(t *testing.T) {
	eq := &Equals{
		Base:  Base{Name: "interlock ok", SeverityOnFailure: Error},
		Value: true,
	}
	assert.True(t, eq.Compare(true).Passed)
	assert.False(t, eq.Compare(false).Passed)
	assert.Equal(t, InternalError, eq.Compare("true").Severity)
}

func TestNotEquals(t *testing.T) {
	ne := &NotEquals{Equals{
		Base:  Base{Name: "not free run", SeverityOnFailure: Error},
		Value: "Free Run",
	}}
	assert.True(t, ne.Compare("Fixed Rate").Passed)

	r := ne.Compare("Free Run")
	assert.False(t, r.Passed)
	assert.Contains(t, r.Reason, "Free Run")
}

func TestThresholds(t *testing.T) {
	base := Base{Name: "threshold", SeverityOnFailure: Error}
	cases := []struct {
		cmp   Comparison
		value any
		want  bool
	}{
		{&Greater{Base: base, Value: 1}, 1.5, true},
		{&Greater{Base: base, Value: 1}, 1.0, false},
		{&Greater{Base: base, Value: 1}, 0.0, false},
		{&GreaterOrEqual{Base: base, Value: 1}, 1.0, true},
		{&GreaterOrEqual{Base: base, Value: 1}, 0.99, false},
		{&Less{Base: base, Value: 1e-6}, 1e-7, true},
		{&Less{Base: base, Value: 1e-6}, 1e-6, false},
		{&LessOrEqual{Base: base, Value: 1e-6}, 1e-6, true},
		{&LessOrEqual{Base: base, Value: 1e-6}, 1.5e-6, false},
		{&Range{Base: base, Low: 0, High: 10, Inclusive: true}, 10.0, true},
		{&Range{Base: base, Low: 0, High: 10, Inclusive: true}, 10.1, false},
		{&Range{Base: base, Low: 0, High: 10}, 10.0, false},
		{&Range{Base: base, Low: 0, High: 10}, 9.9, true},
		// Integer samples coerce.
		{&Greater{Base: base, Value: 1}, 2, true},
	}
	for i, tc := range cases {
		r := tc.cmp.Compare(tc.value)
		assert.Equal(t, tc.want, r.Passed, "case %d", i)
	}
}

func TestThresholdNonNumericFaults(t *testing.T) {
	g := &Greater{Base: Base{Name: "rate", SeverityOnFailure: Warning}, Value: 1}
	r := g.Compare("fast")
	assert.False(t, r.Passed)
	// A type mismatch is a broken check, not a failed one; it must never
	// be downgraded to the configured failure severity.
	assert.Equal(t, InternalError, r.Severity)
	assert.Contains(t, r.Reason, "rate")
}

func TestInversionLaw(t *testing.T) {
	builders := []func(invert bool) Comparison{
		func(inv bool) Comparison {
			return &Equals{Base: Base{Name: "eq", Invert: inv, SeverityOnFailure: Error}, Value: 1.0}
		},
		func(inv bool) Comparison {
			return &Equals{Base: Base{Name: "eqs", Invert: inv, SeverityOnFailure: Error}, Value: "OUT"}
		},
		func(inv bool) Comparison {
			return &NotEquals{Equals{Base: Base{Name: "ne", Invert: inv, SeverityOnFailure: Error}, Value: 1.0}}
		},
		func(inv bool) Comparison {
			return &Greater{Base: Base{Name: "gt", Invert: inv, SeverityOnFailure: Error}, Value: 1}
		},
		func(inv bool) Comparison {
			return &LessOrEqual{Base: Base{Name: "le", Invert: inv, SeverityOnFailure: Error}, Value: 1}
		},
		func(inv bool) Comparison {
			return &Range{Base: Base{Name: "rng", Invert: inv, SeverityOnFailure: Error}, Low: 0, High: 2, Inclusive: true}
		},
	}
	values := []any{0.0, 1.0, 2.0, 100.0, "OUT", "IN"}
	for _, build := range builders {
		plain, inverted := build(false), build(true)
		for _, v := range values {
			p, i := plain.Compare(v), inverted.Compare(v)
			if p.Severity == InternalError {
				// Faults are not subject to inversion.
				assert.Equal(t, InternalError, i.Severity)
				continue
			}
			assert.Equal(t, p.Passed, !i.Passed,
				fmt.Sprintf("%s(%v): invert must flip the outcome", plain.Meta().Name, v))
		}
	}
}

func TestIdentifierExpansion(t *testing.T) {
	pv := &PVConfiguration{ConfigCommon: ConfigCommon{Name: "pvs"}}
	assert.Equal(t, []string{"VGC:01:PRESS"}, pv.Identifiers("VGC:01:PRESS"))

	dev := &DeviceConfiguration{
		ConfigCommon: ConfigCommon{Name: "imagers"},
		Devices:      []string{"im1l0", "im2l0"},
	}
	assert.Equal(t, []string{"im1l0.cam.rate", "im2l0.cam.rate"}, dev.Identifiers("cam.rate"))
}

func TestValidate(t *testing.T) {
	ok := &ConfigurationFile{Configs: []Configuration{
		&PVConfiguration{ConfigCommon: ConfigCommon{
			Name: "empty checklist is a vacuous pass, not an error",
		}},
	}}
	assert.NoError(t, ok.Validate())

	noIDs := &ConfigurationFile{Configs: []Configuration{
		&PVConfiguration{ConfigCommon: ConfigCommon{
			Name: "bad",
			Checklist: []Check{{
				Name:        "no ids",
				Comparisons: []Comparison{&Greater{Base: Base{Name: "g"}, Value: 1}},
			}},
		}},
	}}
	assert.Error(t, noIDs.Validate())

	noComparisons := &ConfigurationFile{Configs: []Configuration{
		&PVConfiguration{ConfigCommon: ConfigCommon{
			Name:      "bad",
			Checklist: []Check{{Name: "no comparisons", IDs: []string{"pv"}}},
		}},
	}}
	assert.Error(t, noComparisons.Validate())
}
