// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/internal/log"
)

type logger struct {
	log.Logger
	task string
}

func (l *logger) failed(
	ctx context.Context,
	attempt uint64,
	delay time.Duration,
	err error,
) {
	l.Warn(ctx, "attempt failed",
		slog.String("task", l.task),
		slog.Uint64("attempt", attempt),
		slog.Duration("retry_in", delay),
		slog.String("error", err.Error()),
	)
}

func (l *logger) succeeded(ctx context.Context, attempt uint64) {
	if attempt > 1 {
		l.Info(ctx, "succeeded after retry",
			slog.String("task", l.task),
			slog.Uint64("attempt", attempt),
		)
	}
}

func (l *logger) gaveUp(ctx context.Context, err *Error) {
	l.Warn(ctx, "giving up",
		slog.String("task", l.task),
		slog.Uint64("attempts", err.Attempts),
		slog.String("error", err.wrapped.Error()),
	)
}
