package reduce

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/controlkit/checkout/pkg/types/check"
)

func series(values ...any) []check.Sample {
	samples := make([]check.Sample, len(values))
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, v := range values {
		samples[i] = check.Sample{TS: ts.Add(time.Duration(i) * time.Second), Value: v}
	}
	return samples
}

func TestReduceNumeric(t *testing.T) {
	cases := []struct {
		method check.ReduceMethod
		values []any
		want   float64
	}{
		{check.ReduceAverage, []any{1.0, 2.0, 3.0}, 2.0},
		{check.ReduceAverage, []any{5.0}, 5.0},
		{check.ReduceMin, []any{3.0, 1.0, 2.0}, 1.0},
		{check.ReduceMax, []any{3.0, 1.0, 2.0}, 3.0},
		// Population standard deviation: mean 2, deviations ±1.
		{check.ReduceStd, []any{1.0, 3.0}, 1.0},
		{check.ReduceStd, []any{2.0, 2.0, 2.0, 2.0, 2.0}, 0.0},
		{check.ReduceStd, []any{4.0}, 0.0},
		// Integer samples coerce.
		{check.ReduceAverage, []any{1, 2, 3}, 2.0},
	}
	for _, tc := range cases {
		got, err := Reduce(series(tc.values...), tc.method)
		require.NoError(t, err, "%s %v", tc.method, tc.values)
		assert.InDelta(t, tc.want, got, 1e-12, "%s %v", tc.method, tc.values)
	}
}

func TestReduceFirst(t *testing.T) {
	got, err := Reduce(series("IN", "OUT"), check.ReduceFirst)
	require.NoError(t, err)
	assert.Equal(t, "IN", got)

	// The empty method is the degenerate single-sample case.
	got, err = Reduce(series(7.5), "")
	require.NoError(t, err)
	assert.Equal(t, 7.5, got)
}

func TestReduceEmptySeries(t *testing.T) {
	for _, method := range []check.ReduceMethod{check.ReduceFirst, check.ReduceAverage, check.ReduceStd} {
		_, err := Reduce(nil, method)
		require.Error(t, err)
		var rerr *Error
		assert.ErrorAs(t, err, &rerr)
	}
}

func TestReduceNonNumeric(t *testing.T) {
	for _, method := range []check.ReduceMethod{check.ReduceAverage, check.ReduceStd, check.ReduceMin, check.ReduceMax} {
		_, err := Reduce(series("IN", "OUT"), method)
		require.Error(t, err, "%s must reject string samples", method)
		var rerr *Error
		assert.ErrorAs(t, err, &rerr)
	}
}

func TestReduceUnknownMethod(t *testing.T) {
	_, err := Reduce(series(1.0), check.ReduceMethod("median"))
	assert.Error(t, err)
}

func TestParseReduceMethod(t *testing.T) {
	m, err := check.ParseReduceMethod("std")
	require.NoError(t, err)
	assert.Equal(t, check.ReduceStd, m)

	m, err = check.ParseReduceMethod("")
	require.NoError(t, err)
	assert.Equal(t, check.ReduceFirst, m)

	_, err = check.ParseReduceMethod("median")
	assert.Error(t, err)
}
