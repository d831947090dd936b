// Package resource bounds the background work the coordinator spawns.
//
// The controller gates blocking tasks (file I/O, validation, update-log calls)
// behind a weighted semaphore and optionally throttles payload write throughput
// with a token-bucket rate limiter.
package resource

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MaxBackgroundWorkers is the maximum number of concurrent background tasks.
	// If 0, defaults to 1.
	MaxBackgroundWorkers int64

	// IOLimitBytesPerSec is the maximum write throughput for payload capture.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages background task concurrency and IO throughput.
type Controller struct {
	bgSem     *semaphore.Weighted
	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundWorkers <= 0 {
		cfg.MaxBackgroundWorkers = 1
	}

	c := &Controller{
		bgSem: semaphore.NewWeighted(cfg.MaxBackgroundWorkers),
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// Do runs fn on its own goroutine behind the background-worker gate and waits
// for it to finish. A panic inside fn is recovered and returned as an error so
// a failing task cannot take down the caller's loop.
func (c *Controller) Do(ctx context.Context, fn func() error) error {
	if err := c.bgSem.Acquire(ctx, 1); err != nil {
		return err
	}

	done := make(chan error, 1)

	go func() {
		defer c.bgSem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("background task panicked: %v", r)
			}
		}()
		done <- fn()
	}()

	return <-done
}

// WaitIO blocks until n bytes of write budget are available.
// It is a no-op when no IO limit is configured.
func (c *Controller) WaitIO(ctx context.Context, n int) error {
	if c == nil || c.ioLimiter == nil || n <= 0 {
		return nil
	}

	burst := c.ioLimiter.Burst()
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		if err := c.ioLimiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}

	return nil
}
