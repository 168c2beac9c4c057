// Package reduce folds a time-windowed series of samples into one scalar
// using a named statistic.
package reduce

import (
	"fmt"
	"math"

	"github.com/controlkit/checkout/pkg/types/check"
)

// Error describes a reduction that could not be carried out. The engine
// maps it to an internal-error verdict, never to an ordinary comparison
// failure.
type Error struct {
	Method check.ReduceMethod
	Msg    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("reduce %s: %s", e.Method, e.Msg)
}

// numeric reductions, keyed by method. All are pure.
var folds = map[check.ReduceMethod]func([]float64) float64{
	check.ReduceAverage: mean,
	check.ReduceStd:     std,
	check.ReduceMin: func(xs []float64) float64 {
		m := xs[0]
		for _, x := range xs[1:] {
			m = math.Min(m, x)
		}
		return m
	},
	check.ReduceMax: func(xs []float64) float64 {
		m := xs[0]
		for _, x := range xs[1:] {
			m = math.Max(m, x)
		}
		return m
	},
}

// Reduce folds samples with the given method. The empty method means
// ReduceFirst. ReduceFirst returns the chronologically first sample's value
// untouched, so it is the only method valid for string or boolean
// identifiers; the numeric methods fail on non-numeric samples and on an
// empty series.
func Reduce(samples []check.Sample, method check.ReduceMethod) (any, error) {
	if method == "" {
		method = check.ReduceFirst
	}
	if len(samples) == 0 {
		return nil, &Error{Method: method, Msg: "empty sample series"}
	}
	if method == check.ReduceFirst {
		return samples[0].Value, nil
	}
	fold, ok := folds[method]
	if !ok {
		return nil, &Error{Method: method, Msg: "unknown reduce method"}
	}
	xs := make([]float64, len(samples))
	for i, s := range samples {
		x, ok := check.Numeric(s.Value)
		if !ok {
			return nil, &Error{
				Method: method,
				Msg:    fmt.Sprintf("non-numeric sample %v (%T); use %q for string identifiers", s.Value, s.Value, check.ReduceFirst),
			}
		}
		xs[i] = x
	}
	return fold(xs), nil
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// std is the population standard deviation (divide by n). The stat backs
// "is the value changing" checks, where scale matters more than the exact
// estimator, and a one-sample window reduces to 0 instead of dividing by
// zero.
func std(xs []float64) float64 {
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}
