// Package resolver defines how identifiers are turned into live values.
// The engine is transport-agnostic: real channel access lives behind the
// Resolver interface, and this package only carries the contract, an
// in-memory implementation for tests and rehearsals, and a DNS preflight
// for the gateway that a live transport would sit behind.
package resolver

import (
	"context"
	"time"

	"github.com/controlkit/checkout/pkg/types/check"
)

//go:generate mockgen -source=resolver.go -destination=mock_resolver.go -package=resolver

// Result is one resolution outcome. Connected=false means the identifier
// could not be reached within the resolver's budget; that is an expected
// steady-state outcome, not an error.
type Result struct {
	Connected bool
	Samples   []check.Sample
}

// Resolver resolves an identifier to live samples.
//
// A zero window asks for the most recent single sample; a positive window
// asks for every sample observed over that duration starting now.
// Implementations must not block indefinitely: every call has a bounded
// wall-clock budget, and exceeding it reports Connected=false rather than
// an error. The returned error is reserved for faults in the resolver
// itself and surfaces as an internal error in the report.
type Resolver interface {
	Resolve(ctx context.Context, identifier string, window time.Duration) (Result, error)
}

// Static resolves identifiers from an in-memory sample table. Identifiers
// absent from the table resolve as disconnected. Useful in tests and for
// rehearsing a checkout file without a live transport.
type Static struct {
	Samples map[string][]check.Sample
}

func (s *Static) Resolve(ctx context.Context, identifier string, window time.Duration) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	samples := s.Samples[identifier]
	if len(samples) == 0 {
		return Result{Connected: false}, nil
	}
	if window == 0 {
		return Result{Connected: true, Samples: samples[len(samples)-1:]}, nil
	}
	return Result{Connected: true, Samples: samples}, nil
}

// NewStaticValues builds a Static with one sample per identifier, stamped
// now.
func NewStaticValues(values map[string]any) *Static {
	samples := make(map[string][]check.Sample, len(values))
	now := time.Now()
	for id, v := range values {
		samples[id] = []check.Sample{{TS: now, Value: v}}
	}
	return &Static{Samples: samples}
}
