// Package retry runs an operation with a bounded number of attempts and a
// fixed pause between them.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Config is the per-workflow retry policy.
type Config struct {
	Interval    time.Duration
	MaxAttempts int
}

func (c Config) Validate() error {
	if c.Interval < 0 {
		return fmt.Errorf("retry interval must be >= 0 (got %s)", c.Interval)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be >= 1 (got %d)", c.MaxAttempts)
	}
	return nil
}

// Failure records one failed attempt.
type Failure struct {
	Attempt int
	Err     error
}

// Outcome is either a success carrying Value, or an exhaustion carrying the
// failures that led to it. OK tells them apart.
type Outcome[T any] struct {
	OK       bool
	Value    T
	Attempts int
	Failures []Failure
}

// Err returns nil for a success and an *ExhaustedError otherwise.
func (o Outcome[T]) Err() error {
	if o.OK {
		return nil
	}
	var last error
	if n := len(o.Failures); n > 0 {
		last = o.Failures[n-1].Err
	}
	return &ExhaustedError{Attempts: o.Attempts, Last: last}
}

// ExhaustedError reports that every attempt failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("retries exhausted after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type options struct {
	sleep  SleepFunc
	logger *slog.Logger
	name   string
}

type Option func(*options)

func WithSleep(fn SleepFunc) Option { return func(o *options) { o.sleep = fn } }

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithName labels log lines, e.g. "prelogin".
func WithName(name string) Option { return func(o *options) { o.name = name } }

// Do invokes op until it succeeds or cfg.MaxAttempts attempts have been made.
// It never returns op's error directly; inspect the Outcome.
func Do[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error), opts ...Option) Outcome[T] {
	o := options{
		sleep:  sleepCtx,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, fn := range opts {
		fn(&o)
	}
	max := cfg.MaxAttempts
	if max < 1 {
		max = 1
	}
	log := o.logger
	if o.name != "" {
		log = log.With("workflow", o.name)
	}

	var out Outcome[T]
	for attempt := 1; ; attempt++ {
		out.Attempts = attempt
		v, err := op(ctx)
		if err == nil {
			out.OK = true
			out.Value = v
			return out
		}
		out.Failures = append(out.Failures, Failure{Attempt: attempt, Err: err})
		log.Error("attempt failed", "attempt", attempt, "max", max, "err", err)

		if attempt >= max {
			log.Error("max retries reached", "attempt", attempt, "max", max)
			return out
		}
		log.Info("will retry", "in", cfg.Interval, "attempt", attempt, "max", max)
		if serr := o.sleep(ctx, cfg.Interval); serr != nil {
			last := &out.Failures[len(out.Failures)-1]
			last.Err = errors.Join(last.Err, serr)
			log.Warn("retry abandoned", "attempt", attempt, "err", serr)
			return out
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsExhausted reports whether err came from an exhausted Outcome.
func IsExhausted(err error) bool {
	var e *ExhaustedError
	return errors.As(err, &e)
}
