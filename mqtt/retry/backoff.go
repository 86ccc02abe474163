// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/internal/log"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/internal/wallclock"
)

// Backoff retries a task with delays doubling from Initial up to Max.
type Backoff struct {
	// Initial is the first delay. Defaults to 125ms.
	Initial time.Duration

	// Max caps the delay. Defaults to 30s.
	Max time.Duration

	// Attempts limits the number of attempts; zero is unlimited.
	Attempts uint64

	// Timeout bounds the whole operation; zero is unbounded.
	Timeout time.Duration

	// Jitter spreads each delay by up to this fraction either way, e.g. 0.05
	// for ±5%. Zero disables it.
	Jitter float64

	Logger *slog.Logger
}

const (
	defaultInitial = time.Second / 8
	defaultMax     = 30 * time.Second
)

// Start attempts the task until it succeeds, returns a non-retryable error,
// runs out of attempts or ctx ends.
func (b *Backoff) Start(ctx context.Context, name string, task Task) error {
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}
	l := logger{log.Wrap(b.Logger), name}

	for attempt := uint64(1); ; attempt++ {
		retryable, err := task(ctx)
		if err == nil {
			l.succeeded(ctx, attempt)
			return nil
		}

		giveUp := &Error{Task: name, Attempts: attempt, wrapped: err}
		switch {
		case ctx.Err() != nil:
			giveUp.wrapped = ctx.Err()
			l.gaveUp(ctx, giveUp)
			return giveUp
		case !retryable, attempt == b.Attempts:
			l.gaveUp(ctx, giveUp)
			return giveUp
		}

		delay := b.Delay(attempt)
		l.failed(ctx, attempt, delay, err)

		select {
		case <-wallclock.Instance.After(delay):
		case <-ctx.Done():
			giveUp.wrapped = ctx.Err()
			l.gaveUp(ctx, giveUp)
			return giveUp
		}
	}
}

// Delay returns the wait after the given failed attempt, counting from 1.
func (b *Backoff) Delay(attempt uint64) time.Duration {
	initial, maxDelay := b.Initial, b.Max
	if initial <= 0 {
		initial = defaultInitial
	}
	if maxDelay <= 0 {
		maxDelay = defaultMax
	}

	delay := initial
	for i := uint64(1); i < attempt && delay < maxDelay; i++ {
		delay *= 2
	}
	delay = min(delay, maxDelay)

	if b.Jitter > 0 {
		// #nosec G404
		spread := (rand.Float64()*2 - 1) * b.Jitter
		delay += time.Duration(float64(delay) * spread)
	}
	return delay
}
