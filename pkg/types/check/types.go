package check

import (
	"fmt"
	"time"
)

// Sample is one timestamped observation of a live value. Values are numeric
// for most identifiers, but enum-like identifiers resolve to strings and
// boolean flags resolve to bools.
type Sample struct {
	TS    time.Time `json:"ts"`
	Value any       `json:"value"`
}

// ReduceMethod names the statistic that folds a windowed sample series into
// one scalar. The set is closed; unknown names are rejected when a
// configuration is loaded, not when it is evaluated.
type ReduceMethod string

const (
	// ReduceFirst takes the chronologically first sample as-is. It is the
	// only method valid for non-numeric identifiers and the implied method
	// when no reduce period is configured.
	ReduceFirst   ReduceMethod = "first"
	ReduceAverage ReduceMethod = "average"
	// ReduceStd is the population standard deviation (divide by n). A
	// single-sample window reduces to 0.
	ReduceStd ReduceMethod = "std"
	ReduceMin ReduceMethod = "min"
	ReduceMax ReduceMethod = "max"
)

// ParseReduceMethod validates a reduce method name from a configuration
// file. The empty string means ReduceFirst.
func ParseReduceMethod(name string) (ReduceMethod, error) {
	switch m := ReduceMethod(name); m {
	case "":
		return ReduceFirst, nil
	case ReduceFirst, ReduceAverage, ReduceStd, ReduceMin, ReduceMax:
		return m, nil
	}
	return "", fmt.Errorf("unknown reduce method %q", name)
}

// Numeric reports v as a float64 when it carries a numeric type. Booleans
// and strings are not numeric.
func Numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}
