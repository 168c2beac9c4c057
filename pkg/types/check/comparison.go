package check

import (
	"fmt"
	"math"
	"time"
)

// Result is the verdict of one evaluation: did it pass, how bad is it if it
// did not, and why. Every leaf of a report carries one; aggregate nodes
// carry the fold of their children.
type Result struct {
	Severity Severity `json:"severity"`
	Passed   bool     `json:"passed"`
	Reason   string   `json:"reason,omitempty"`
}

// Comparison is one judging rule, a pure function of a reduced value.
// Comparisons are immutable once constructed and hold no state between
// evaluations; the same comparison may be applied to many identifiers
// concurrently.
type Comparison interface {
	// Meta exposes the fields shared by every comparison kind.
	Meta() *Base
	// Compare evaluates the reduced value against this comparison.
	Compare(value any) Result
}

// Base holds the fields common to all comparison kinds.
//
// The zero value of SeverityOnFailure and IfDisconnected is Success; the
// loader defaults both to Error, so programmatic construction should set
// them explicitly.
type Base struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Invert flips the outcome after the predicate is evaluated. Used,
	// e.g., to assert a camera is NOT in "Free Run".
	Invert bool `json:"invert,omitempty"`

	// ReducePeriod is the acquisition window; zero means "latest single
	// sample". ReduceMethod folds the window into one scalar.
	ReducePeriod time.Duration `json:"reduce_period,omitempty"`
	ReduceMethod ReduceMethod  `json:"reduce_method,omitempty"`

	// SeverityOnFailure is emitted when the predicate fails;
	// IfDisconnected when the identifier cannot be resolved in time.
	SeverityOnFailure Severity `json:"severity_on_failure"`
	IfDisconnected    Severity `json:"if_disconnected"`
}

// Meta implements Comparison for every kind embedding Base.
func (b *Base) Meta() *Base { return b }

// verdict applies Invert and renders the failure reason. The reason always
// names the comparison, the actual value and the expected predicate so a
// report reader can diagnose without re-running.
func (b *Base) verdict(ok bool, actual any, expect string) Result {
	if b.Invert {
		ok = !ok
		expect = "not (" + expect + ")"
	}
	if ok {
		return Result{Severity: Success, Passed: true}
	}
	return Result{
		Severity: b.SeverityOnFailure,
		Passed:   false,
		Reason:   fmt.Sprintf("%s: value %v did not satisfy %s", b.Name, actual, expect),
	}
}

// fault reports an evaluation that could not be carried out. Faults always
// rank InternalError and are never downgraded to an ordinary failure.
func (b *Base) fault(err error) Result {
	return Result{
		Severity: InternalError,
		Passed:   false,
		Reason:   fmt.Sprintf("%s: %s", b.Name, err),
	}
}

// Equals passes when the value matches Value. If String is set, or Value is
// textual, both sides compare as case-sensitive strings. Otherwise the
// comparison is numeric: exact when both Rtol and Atol are nil, and within
// |actual-target| <= atol + rtol*|target| when either is given (the absent
// one defaults to 0).
type Equals struct {
	Base

	Value  any      `json:"value"`
	String bool     `json:"string,omitempty"`
	Rtol   *float64 `json:"rtol,omitempty"`
	Atol   *float64 `json:"atol,omitempty"`
}

func (e *Equals) Compare(value any) Result {
	ok, err := e.matches(value)
	if err != nil {
		return e.fault(err)
	}
	return e.verdict(ok, value, e.expect())
}

func (e *Equals) matches(value any) (bool, error) {
	if e.textual() {
		return stringify(value) == stringify(e.Value), nil
	}
	if target, isBool := e.Value.(bool); isBool {
		actual, ok := value.(bool)
		if !ok {
			return false, fmt.Errorf("cannot compare %T value %v with boolean %v", value, value, target)
		}
		return actual == target, nil
	}
	target, ok := Numeric(e.Value)
	if !ok {
		return false, fmt.Errorf("non-numeric target value %v (%T)", e.Value, e.Value)
	}
	actual, ok := Numeric(value)
	if !ok {
		return false, fmt.Errorf("cannot compare non-numeric value %v (%T) with %v", value, value, target)
	}
	if e.Rtol == nil && e.Atol == nil {
		return actual == target, nil
	}
	var rtol, atol float64
	if e.Rtol != nil {
		rtol = *e.Rtol
	}
	if e.Atol != nil {
		atol = *e.Atol
	}
	return math.Abs(actual-target) <= atol+rtol*math.Abs(target), nil
}

func (e *Equals) textual() bool {
	if e.String {
		return true
	}
	_, isString := e.Value.(string)
	return isString
}

func (e *Equals) expect() string {
	expect := fmt.Sprintf("== %v", e.Value)
	if e.Rtol != nil || e.Atol != nil {
		var rtol, atol float64
		if e.Rtol != nil {
			rtol = *e.Rtol
		}
		if e.Atol != nil {
			atol = *e.Atol
		}
		expect = fmt.Sprintf("%s (rtol=%v, atol=%v)", expect, rtol, atol)
	}
	return expect
}

// NotEquals negates the Equals predicate, tolerance included. This is
// distinct from Invert, which flips the final outcome; the two compose.
type NotEquals struct {
	Equals
}

func (n *NotEquals) Compare(value any) Result {
	ok, err := n.matches(value)
	if err != nil {
		return n.fault(err)
	}
	return n.verdict(!ok, value, "!"+n.expect())
}

// Greater passes when the value is strictly above Value.
type Greater struct {
	Base

	Value float64 `json:"value"`
}

func (g *Greater) Compare(value any) Result {
	actual, ok := Numeric(value)
	if !ok {
		return g.fault(nonNumeric(value))
	}
	return g.verdict(actual > g.Value, value, fmt.Sprintf("> %v", g.Value))
}

// GreaterOrEqual passes when the value is at or above Value.
type GreaterOrEqual struct {
	Base

	Value float64 `json:"value"`
}

func (g *GreaterOrEqual) Compare(value any) Result {
	actual, ok := Numeric(value)
	if !ok {
		return g.fault(nonNumeric(value))
	}
	return g.verdict(actual >= g.Value, value, fmt.Sprintf(">= %v", g.Value))
}

// Less passes when the value is strictly below Value.
type Less struct {
	Base

	Value float64 `json:"value"`
}

func (l *Less) Compare(value any) Result {
	actual, ok := Numeric(value)
	if !ok {
		return l.fault(nonNumeric(value))
	}
	return l.verdict(actual < l.Value, value, fmt.Sprintf("< %v", l.Value))
}

// LessOrEqual passes when the value is at or below Value.
type LessOrEqual struct {
	Base

	Value float64 `json:"value"`
}

func (l *LessOrEqual) Compare(value any) Result {
	actual, ok := Numeric(value)
	if !ok {
		return l.fault(nonNumeric(value))
	}
	return l.verdict(actual <= l.Value, value, fmt.Sprintf("<= %v", l.Value))
}

// Range passes when the value falls between Low and High, bounds included
// when Inclusive is set.
type Range struct {
	Base

	Low       float64 `json:"low"`
	High      float64 `json:"high"`
	Inclusive bool    `json:"inclusive"`
}

func (r *Range) Compare(value any) Result {
	actual, ok := Numeric(value)
	if !ok {
		return r.fault(nonNumeric(value))
	}
	var in bool
	var expect string
	if r.Inclusive {
		in = actual >= r.Low && actual <= r.High
		expect = fmt.Sprintf("in [%v, %v]", r.Low, r.High)
	} else {
		in = actual > r.Low && actual < r.High
		expect = fmt.Sprintf("in (%v, %v)", r.Low, r.High)
	}
	return r.verdict(in, value, expect)
}

func nonNumeric(value any) error {
	return fmt.Errorf("cannot compare non-numeric value %v (%T) against a threshold", value, value)
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
