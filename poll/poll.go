// Package poll implements the bounded register polling used while waiting
// for the engine: exponential backoff between reads and an absolute
// deadline.
package poll

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
)

// ErrTimeout is returned when the condition is not met before the deadline.
var ErrTimeout = errors.New("poll: deadline exceeded")

var errPending = errors.New("poll: condition not met")

// Config bounds a polling loop.
type Config struct {
	// Timeout is the absolute deadline measured from the first read.
	Timeout time.Duration

	// MinDelay is the first wait between two reads. Each further wait
	// doubles up to MaxDelay.
	MinDelay time.Duration
	MaxDelay time.Duration
}

// DefaultConfig matches the idle-check timing of the engine.
func DefaultConfig() Config {
	return Config{
		Timeout:  3 * time.Second,
		MinDelay: 10 * time.Microsecond,
		MaxDelay: 200 * time.Microsecond,
	}
}

func (c Config) backOff(ctx context.Context) backoff.BackOff {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.MinDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         c.MaxDelay,
		MaxElapsedTime:      timeout,
		Clock:               backoff.SystemClock,
	}

	return backoff.WithContext(b, ctx)
}

// Until calls check until it reports done, returns an error, or the deadline
// passes. The first call happens immediately. An error from check stops
// polling and is returned as is.
func Until(ctx context.Context, c Config, check func() (bool, error)) error {
	op := func() error {
		done, err := check()
		if err != nil {
			return backoff.Permanent(err)
		}

		if !done {
			return errPending
		}

		return nil
	}

	err := backoff.Retry(op, c.backOff(ctx))
	if errors.Is(err, errPending) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		return ErrTimeout
	}

	return err
}
