// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package ingest

import (
	"log/slog"
	"time"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/internal/options"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/internal/wallclock"
)

type (
	// Option represents a single option for the adapter.
	Option interface{ adapter(*Options) }

	// Options are the resolved adapter options.
	Options struct {
		// Whitelist, when not empty, admits only devices whose sanitized id
		// or model matches one of its glob patterns.
		Whitelist []string

		// Blacklist drops devices whose sanitized id or model matches one of
		// its glob patterns. It is ignored when a whitelist is set.
		Blacklist []string

		// SkipKeys are event keys never turned into readings.
		SkipKeys []string

		// Location is applied to event timestamps without a zone.
		Location *time.Location

		Clock  wallclock.WallClock
		Logger *slog.Logger
	}

	// WithWhitelist sets the device whitelist.
	WithWhitelist []string

	// WithBlacklist sets the device blacklist.
	WithBlacklist []string

	// WithSkipKeys replaces the default skipped event keys.
	WithSkipKeys []string

	withLocation struct{ *time.Location }
	withClock    struct{ wallclock.WallClock }
	withLogger   struct{ *slog.Logger }
)

// DefaultSkipKeys are event keys that describe the event rather than the
// device's measurements.
var DefaultSkipKeys = []string{"time", "protocol", "model", "id", "mic", "mod"}

func (o WithWhitelist) adapter(opt *Options) {
	opt.Whitelist = o
}

func (o WithBlacklist) adapter(opt *Options) {
	opt.Blacklist = o
}

func (o WithSkipKeys) adapter(opt *Options) {
	opt.SkipKeys = o
}

// WithLocation sets the zone of event timestamps that carry none.
func WithLocation(loc *time.Location) Option {
	return withLocation{loc}
}

func (o withLocation) adapter(opt *Options) {
	opt.Location = o.Location
}

// WithClock overrides the clock used for events without a timestamp.
func WithClock(c wallclock.WallClock) Option {
	return withClock{c}
}

func (o withClock) adapter(opt *Options) {
	opt.Clock = o.WallClock
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(l *slog.Logger) Option {
	return withLogger{l}
}

func (o withLogger) adapter(opt *Options) {
	opt.Logger = o.Logger
}

// Apply resolves the provided list of options.
func (o *Options) Apply(opts []Option, rest ...Option) {
	for opt := range options.Apply[Option](opts, rest...) {
		opt.adapter(o)
	}
}

func (o *Options) adapter(opt *Options) {
	if o != nil {
		*opt = *o
	}
}
