package storer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/controlkit/checkout/pkg/types/check"
)

var errSaveFailed = errors.New("save failed")

// quickSchedule retries immediately so the tests never sleep.
var quickSchedule = []time.Duration{0, time.Millisecond, time.Millisecond}

func TestAsyncQueryRetryFirstAttempt(t *testing.T) {
	s := NewLogStorer(&bytes.Buffer{})
	var attempts int32
	s.AsyncQueryRetry(context.Background(), quickSchedule, func(ctx context.Context, attempt int) error {
		atomic.AddInt32(&attempts, 1)
		return nil
	})
	require.NoError(t, s.Close())
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestAsyncQueryRetryUntilSuccess(t *testing.T) {
	s := NewLogStorer(&bytes.Buffer{})
	var attempts int32
	var seen []int
	s.AsyncQueryRetry(context.Background(), quickSchedule, func(ctx context.Context, attempt int) error {
		seen = append(seen, attempt)
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errSaveFailed
		}
		return nil
	})
	require.NoError(t, s.Close())
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	assert.Equal(t, []int{1, 2, 3}, seen, "attempt numbers are one-based")
}

func TestAsyncQueryRetryExhaustsSchedule(t *testing.T) {
	s := NewLogStorer(&bytes.Buffer{})
	var attempts int32
	s.AsyncQueryRetry(context.Background(), quickSchedule, func(ctx context.Context, attempt int) error {
		atomic.AddInt32(&attempts, 1)
		return errSaveFailed
	})
	require.NoError(t, s.Close())
	assert.Equal(t, int32(len(quickSchedule)), atomic.LoadInt32(&attempts))
}

func TestAsyncQueryRetryDyingBreath(t *testing.T) {
	s := NewLogStorer(&bytes.Buffer{})
	var attempts int32
	var lastCtxLive atomic.Bool
	// The second delay is far longer than the test; closing the storer must
	// cut it short and grant one final attempt on a fresh context.
	schedule := []time.Duration{0, time.Minute}
	s.AsyncQueryRetry(context.Background(), schedule, func(ctx context.Context, attempt int) error {
		atomic.AddInt32(&attempts, 1)
		lastCtxLive.Store(ctx.Err() == nil)
		return errSaveFailed
	})
	require.NoError(t, s.Close())
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
	assert.True(t, lastCtxLive.Load(), "the dying breath attempt gets a live context")
}

func TestAsyncQueryRetryCancelledContext(t *testing.T) {
	s := NewLogStorer(&bytes.Buffer{})
	ctx, cancel := context.WithCancel(context.Background())
	var attempts int32
	var lastCtxLive atomic.Bool
	s.AsyncQueryRetry(ctx, []time.Duration{0, time.Minute}, func(ctx context.Context, attempt int) error {
		atomic.AddInt32(&attempts, 1)
		lastCtxLive.Store(ctx.Err() == nil)
		if attempt == 1 {
			cancel()
		}
		return errSaveFailed
	})
	require.NoError(t, s.Close())
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
	assert.True(t, lastCtxLive.Load())
	cancel()
}

func TestLogStorerSaveRunReport(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogStorer(&buf)
	report := check.RunReport{
		ID:        "0b8f7a1c-run",
		StartedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Result:    check.Result{Severity: check.Warning, Passed: true, Reason: "rate is low"},
	}
	require.NoError(t, s.SaveRunReport(context.Background(), report))
	require.NoError(t, s.Close())

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "0b8f7a1c-run", decoded["id"])
	assert.Equal(t, "warning", decoded["severity"])
	assert.Equal(t, true, decoded["passed"])
}

func TestNewDispatch(t *testing.T) {
	s, err := New(context.Background(), "", "", false)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.NoError(t, s.Close())

	s, err = New(context.Background(), "stderr", "", false)
	require.NoError(t, err)
	assert.NoError(t, s.Close())

	_, err = New(context.Background(), "postgres://example/db", "", false)
	assert.Error(t, err)
}
