package storer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// dyingBreathExpiration defines a grace period after the ctx has been
	// canceled, when async saves will be attempted before giving up.
	dyingBreathExpiration = 1 * time.Second
)

// SaveBackOffSchedule is the default attempt schedule for asynchronous
// saves.
var SaveBackOffSchedule = []time.Duration{
	0,
	10 * time.Millisecond,
	100 * time.Millisecond,
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	32 * time.Second,
}

// commonStorer provides foundational bits used by all storer
// implementations.
type commonStorer struct {
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (c *commonStorer) init() {
	c.done = make(chan struct{})
}

func (c *commonStorer) wgAdd(i int) {
	c.wg.Add(i)
}

func (c *commonStorer) wgDone() {
	c.wg.Done()
}

func (c *commonStorer) wgWait() {
	c.wg.Wait()
}

func (c *commonStorer) doneChan() <-chan struct{} {
	return c.done
}

type asyncStorer interface {
	wgAdd(int)
	wgDone()
	doneChan() <-chan struct{}
}

// asyncQueryRetry runs f in the background, retrying per attemptSchedule.
// If the ctx is canceled or the storer starts closing before a success, one
// final attempt is made with a fresh short-lived ctx so an in-memory report
// is not lost to an orderly shutdown.
func asyncQueryRetry(
	ctx context.Context,
	s asyncStorer,
	attemptSchedule []time.Duration,
	f func(ctx context.Context, attempt int) error,
) {
	s.wgAdd(1)
	ll := log.Ctx(ctx)
	go func() {
		defer s.wgDone()
		var err error
		for i, delay := range attemptSchedule {
			var dyingBreath bool
			if delay > 0 {
				t := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					dyingBreath = true
				case <-t.C:
				case <-s.doneChan():
					dyingBreath = true
				}
				t.Stop()
			}
			if dyingBreath || ctx.Err() != nil {
				var cancel func()
				ctx, cancel = context.WithTimeout(context.Background(), dyingBreathExpiration)
				defer cancel()
			}
			err = f(ctx, i+1)
			if err == nil {
				return
			}
			if i+1 < len(attemptSchedule) {
				ll.Warn().Err(err).Int("attempt", i+1).Msg("asynchronous save failed; will retry")
			}
			if dyingBreath || ctx.Err() != nil {
				return
			}
		}
		ll.Error().Err(err).Msg("final attempt: asynchronous save failed")
	}()
}
