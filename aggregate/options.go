// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package aggregate

import (
	"log/slog"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/internal/options"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/internal/wallclock"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/metrics"
)

type (
	// Option represents a single option for the buffer.
	Option interface{ buffer(*Options) }

	// Options are the resolved buffer options.
	Options struct {
		// LastValueFields always flush their latest value, even when numeric.
		LastValueFields []string

		Metrics *metrics.Metrics
		Clock   wallclock.WallClock
		Logger  *slog.Logger
	}

	// WithLastValueFields sets the fields that are never averaged.
	WithLastValueFields []string

	withMetrics struct{ *metrics.Metrics }
	withClock   struct{ wallclock.WallClock }
	withLogger  struct{ *slog.Logger }
)

func (o WithLastValueFields) buffer(opt *Options) {
	opt.LastValueFields = o
}

// WithMetrics records ingest and flush metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return withMetrics{m}
}

func (o withMetrics) buffer(opt *Options) {
	opt.Metrics = o.Metrics
}

// WithClock overrides the clock driving the flush ticker.
func WithClock(c wallclock.WallClock) Option {
	return withClock{c}
}

func (o withClock) buffer(opt *Options) {
	opt.Clock = o.WallClock
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(l *slog.Logger) Option {
	return withLogger{l}
}

func (o withLogger) buffer(opt *Options) {
	opt.Logger = o.Logger
}

// Apply resolves the provided list of options.
func (o *Options) Apply(opts []Option, rest ...Option) {
	for opt := range options.Apply[Option](opts, rest...) {
		opt.buffer(o)
	}
}

func (o *Options) buffer(opt *Options) {
	if o != nil {
		*opt = *o
	}
}
