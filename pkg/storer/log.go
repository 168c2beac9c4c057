package storer

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/controlkit/checkout/pkg/types/check"
)

// LogStorer writes reports to a writer instead of a database.
type LogStorer struct {
	w io.Writer
	commonStorer
}

// NewLogStorer returns a thin storer which writes indented JSON reports to
// the provided writer.
func NewLogStorer(w io.Writer) Storer {
	l := &LogStorer{
		w: w,
	}
	l.commonStorer.init()
	return l
}

// SaveRunReport saves one run's report.
func (l *LogStorer) SaveRunReport(ctx context.Context, report check.RunReport) error {
	j := json.NewEncoder(l.w)
	j.SetIndent("", "  ")
	return j.Encode(report)
}

// AsyncQueryRetry runs f asynchronously with retries on failure.
func (l *LogStorer) AsyncQueryRetry(
	ctx context.Context,
	attemptSchedule []time.Duration,
	f func(ctx context.Context, attempt int) error,
) {
	asyncQueryRetry(ctx, l, attemptSchedule, f)
}

// AnalyzeLastFailures is a no-op: a log storer keeps no history.
func (l *LogStorer) AnalyzeLastFailures(
	ctx context.Context,
	start time.Time,
	end time.Time,
	configs []string,
	output func(Failure),
) error {
	return nil
}

// Close triggers any asynchronous saves to immediately make a final attempt
// and waits briefly for their completion.
func (l *LogStorer) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
	})
	l.wgWait()
	return nil
}
