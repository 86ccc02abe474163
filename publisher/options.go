// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package publisher

import (
	"log/slog"
	"time"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/fieldmeta"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/internal/options"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/internal/wallclock"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/metrics"
)

type (
	// Option represents a single option for the publisher.
	Option interface{ publisher(*Options) }

	// Options are the resolved publisher options.
	Options struct {
		// Namespace is the second level of state topics,
		// home/<namespace>/<entity>/<field>.
		Namespace string

		// DiscoveryRoot is the Home Assistant discovery prefix.
		DiscoveryRoot string

		// IDSuffix is appended to unique ids and the availability topic so
		// several bridges can share a broker.
		IDSuffix string

		// ExpireAfter is announced as the entities' expire_after. Zero never
		// expires, except for battery alarms which always expire after a day
		// or more.
		ExpireAfter time.Duration

		// BatteryClearAfter is how long a battery must report OK continuously
		// before a low alarm clears.
		BatteryClearAfter time.Duration

		// MainSensors are announced without the diagnostic entity category.
		MainSensors []string

		Table   *fieldmeta.Table
		Metrics *metrics.Metrics
		Clock   wallclock.WallClock
		Logger  *slog.Logger
	}

	// WithNamespace sets the state topic namespace.
	WithNamespace string

	// WithDiscoveryRoot sets the discovery topic prefix.
	WithDiscoveryRoot string

	// WithIDSuffix sets the unique id suffix.
	WithIDSuffix string

	// WithExpireAfter sets the announced expire_after.
	WithExpireAfter time.Duration

	// WithBatteryClearAfter sets the battery alarm clear window.
	WithBatteryClearAfter time.Duration

	// WithMainSensors sets the fields announced as primary entities.
	WithMainSensors []string

	withTable   struct{ *fieldmeta.Table }
	withMetrics struct{ *metrics.Metrics }
	withClock   struct{ wallclock.WallClock }
	withLogger  struct{ *slog.Logger }
)

const (
	DefaultNamespace         = "rtl_devices"
	DefaultDiscoveryRoot     = "homeassistant"
	DefaultBatteryClearAfter = 5 * time.Minute
)

func (o WithNamespace) publisher(opt *Options) {
	opt.Namespace = string(o)
}

func (o WithDiscoveryRoot) publisher(opt *Options) {
	opt.DiscoveryRoot = string(o)
}

func (o WithIDSuffix) publisher(opt *Options) {
	opt.IDSuffix = string(o)
}

func (o WithExpireAfter) publisher(opt *Options) {
	opt.ExpireAfter = time.Duration(o)
}

func (o WithBatteryClearAfter) publisher(opt *Options) {
	opt.BatteryClearAfter = time.Duration(o)
}

func (o WithMainSensors) publisher(opt *Options) {
	opt.MainSensors = o
}

// WithTable sets the field metadata table.
func WithTable(t *fieldmeta.Table) Option {
	return withTable{t}
}

func (o withTable) publisher(opt *Options) {
	opt.Table = o.Table
}

// WithMetrics records publish metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return withMetrics{m}
}

func (o withMetrics) publisher(opt *Options) {
	opt.Metrics = o.Metrics
}

// WithClock overrides the clock used by the battery latch.
func WithClock(c wallclock.WallClock) Option {
	return withClock{c}
}

func (o withClock) publisher(opt *Options) {
	opt.Clock = o.WallClock
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(l *slog.Logger) Option {
	return withLogger{l}
}

func (o withLogger) publisher(opt *Options) {
	opt.Logger = o.Logger
}

// Apply resolves the provided list of options.
func (o *Options) Apply(opts []Option, rest ...Option) {
	for opt := range options.Apply[Option](opts, rest...) {
		opt.publisher(o)
	}
}

func (o *Options) publisher(opt *Options) {
	if o != nil {
		*opt = *o
	}
}
