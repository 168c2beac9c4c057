package check

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityOrder(t *testing.T) {
	assert.True(t, Success < Warning)
	assert.True(t, Warning < Error)
	assert.True(t, Error < InternalError)
}

func TestSeverityMax(t *testing.T) {
	all := []Severity{Success, Warning, Error, InternalError}
	for _, a := range all {
		// Success is the identity of the fold.
		assert.Equal(t, a, Success.Max(a))
		assert.Equal(t, a, a.Max(Success))
		for _, b := range all {
			assert.Equal(t, a.Max(b), b.Max(a), "max must be commutative")
			for _, c := range all {
				assert.Equal(t, a.Max(b).Max(c), a.Max(b.Max(c)), "max must be associative")
			}
		}
	}
}

func TestParseSeverity(t *testing.T) {
	for ordinal, want := range map[int]Severity{0: Success, 1: Warning, 2: Error, 3: InternalError} {
		got, err := ParseSeverity(ordinal)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseSeverity(4)
	assert.Error(t, err)
	_, err = ParseSeverity(-1)
	assert.Error(t, err)
}

func TestSeverityJSON(t *testing.T) {
	b, err := json.Marshal(Warning)
	require.NoError(t, err)
	assert.Equal(t, `"warning"`, string(b))

	var s Severity
	require.NoError(t, json.Unmarshal([]byte(`"internal_error"`), &s))
	assert.Equal(t, InternalError, s)

	// The source data encodes severities as ordinals.
	require.NoError(t, json.Unmarshal([]byte(`2`), &s))
	assert.Equal(t, Error, s)

	assert.Error(t, json.Unmarshal([]byte(`"fatal"`), &s))
}
