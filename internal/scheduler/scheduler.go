package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per poll iteration.
type TickFunc func(ctx context.Context) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
	// MaxBackoff caps the delay after consecutive retryable failures. Zero disables backoff.
	MaxBackoff time.Duration
	// Retryable decides which tick errors count toward backoff.
	Retryable func(error) bool
}

// Scheduler drives the poll loop at a fixed cadence until its context is cancelled.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking tick after every sleep until ctx is cancelled.
// Tick errors are logged and never stop the loop.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if err := sleep(ctx, s.opts.StartupDelay); err != nil {
		return err
	}

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := tick(ctx)
		switch {
		case err == nil:
			failures = 0
		case s.opts.Retryable != nil && s.opts.Retryable(err):
			failures++
			s.logger.Error().Err(err).Int("consecutive_failures", failures).Msg("tick failed")
		default:
			failures = 0
			s.logger.Error().Err(err).Msg("tick failed")
		}

		delay := s.Delay(failures)
		if delay > s.opts.Interval {
			s.logger.Warn().Dur("delay", delay).Msg("backing off after repeated failures")
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Delay returns the sleep before the next tick after the given number of consecutive retryable failures.
// The first failure keeps the normal cadence; each further one doubles it up to MaxBackoff.
func (s *Scheduler) Delay(failures int) time.Duration {
	if failures <= 1 || s.opts.MaxBackoff <= s.opts.Interval {
		return s.opts.Interval
	}
	delay := s.opts.Interval
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= s.opts.MaxBackoff {
			return s.opts.MaxBackoff
		}
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
