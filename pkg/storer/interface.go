package storer

import (
	"context"
	"time"

	"github.com/controlkit/checkout/pkg/types/check"
)

// Failure is one row of failure history: the most recent non-passing
// verdict for a configuration inside an analysis window.
type Failure struct {
	Configuration string
	Severity      check.Severity
	TS            time.Time
	Reason        string
}

// Storer instances persist run reports.
type Storer interface {
	// SaveRunReport saves one run's report.
	SaveRunReport(ctx context.Context, report check.RunReport) error

	// AsyncQueryRetry runs f asynchronously, retrying per the attempt
	// schedule until it succeeds or the schedule is exhausted.
	AsyncQueryRetry(
		ctx context.Context,
		attemptSchedule []time.Duration,
		f func(ctx context.Context, attempt int) error,
	)

	// AnalyzeLastFailures reports the most recent failing verdict per
	// configuration between start and end. An empty configs slice means
	// all configurations.
	AnalyzeLastFailures(ctx context.Context, start, end time.Time, configs []string, output func(Failure)) error

	// Close triggers any asynchronous saves to immediately make a final
	// attempt, waits briefly for their completion, and releases storage
	// handles.
	Close() error
}
