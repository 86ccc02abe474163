// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package aggregate smooths bursts of readings into one value per entity field
// and interval.
package aggregate

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/internal/log"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/internal/wallclock"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/metrics"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/telemetry"
)

type (
	// Sink receives collapsed readings. Every reading a buffer forwards is
	// forced, i.e. published even if unchanged.
	Sink interface {
		Publish(ctx context.Context, r telemetry.Reading, forced bool) error
	}

	// Buffer collects readings per (entity, field) and forwards one value per
	// key every interval. Numeric series are averaged; anything else keeps
	// its latest value.
	Buffer struct {
		sink      Sink
		interval  time.Duration
		lastValue map[string]struct{}
		metrics   *metrics.Metrics
		clock     wallclock.WallClock
		log       log.Logger

		mu      sync.Mutex
		buckets map[key]*bucket
		order   []*bucket
	}

	key struct{ entity, field string }

	// Pending values of one key, with the metadata of its first reading.
	bucket struct {
		first  telemetry.Reading
		values []any
		latest time.Time
	}
)

// New creates a buffer forwarding to sink. An interval of zero disables
// aggregation; every reading is then forwarded as soon as it is ingested.
func New(sink Sink, interval time.Duration, opts ...Option) *Buffer {
	var opt Options
	opt.Apply(opts)

	b := &Buffer{
		sink:      sink,
		interval:  max(interval, 0),
		lastValue: make(map[string]struct{}, len(opt.LastValueFields)),
		metrics:   opt.Metrics,
		clock:     opt.Clock,
		log:       log.Wrap(opt.Logger),
		buckets:   make(map[key]*bucket),
	}
	for _, f := range opt.LastValueFields {
		b.lastValue[f] = struct{}{}
	}
	if b.clock == nil {
		b.clock = wallclock.Instance
	}
	return b
}

// Interval returns the flush interval; zero when aggregation is disabled.
func (b *Buffer) Interval() time.Duration {
	return b.interval
}

// Ingest adds a reading to its bucket. Readings without a value are dropped.
// When aggregation is disabled the reading is forwarded synchronously and the
// sink's error returned.
func (b *Buffer) Ingest(ctx context.Context, r telemetry.Reading) error {
	if r.Value == nil {
		return nil
	}
	b.metrics.RecordIngested()

	if b.interval == 0 {
		return b.sink.Publish(ctx, r, true)
	}

	if r.Timestamp.IsZero() {
		r.Timestamp = b.clock.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	k := key{r.EntityID, r.Field}
	bk, ok := b.buckets[k]
	if !ok {
		bk = &bucket{first: r}
		b.buckets[k] = bk
		b.order = append(b.order, bk)
	}
	bk.values = append(bk.values, r.Value)
	bk.latest = r.Timestamp
	return nil
}

// Run flushes the buffer every interval until ctx is done. It returns at once
// when aggregation is disabled. Pending readings are not flushed on exit.
func (b *Buffer) Run(ctx context.Context) error {
	if b.interval == 0 {
		return nil
	}

	b.log.Info(ctx, "aggregating readings",
		slog.Duration("interval", b.interval),
	)

	ticker := b.clock.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			b.Flush(ctx)
		}
	}
}

// Flush forwards one collapsed value per pending key, in the order the keys
// were first seen, and returns the number forwarded successfully. Sink errors
// are logged and do not stop the flush.
func (b *Buffer) Flush(ctx context.Context) int {
	b.mu.Lock()
	batch := b.order
	if len(batch) == 0 {
		b.mu.Unlock()
		return 0
	}
	b.buckets = make(map[key]*bucket)
	b.order = nil
	b.mu.Unlock()

	start := b.clock.Now()
	sent := 0
	for _, bk := range batch {
		r := bk.first
		r.Value = b.collapse(r.Field, bk.values)
		r.Timestamp = bk.latest

		if err := b.sink.Publish(ctx, r, true); err != nil {
			b.log.Err(ctx, err, r.Attrs()...)
			continue
		}
		sent++
	}

	elapsed := b.clock.Now().Sub(start)
	b.metrics.RecordFlush(sent, elapsed)
	b.log.Debug(ctx, "flushed readings",
		slog.Int("keys", len(batch)),
		slog.Int("sent", sent),
		slog.Duration("elapsed", elapsed),
	)
	return sent
}

func (b *Buffer) collapse(field string, values []any) any {
	latest := values[len(values)-1]
	if _, ok := b.lastValue[field]; ok {
		return latest
	}
	if mean, ok := Mean(values); ok {
		return mean
	}
	return latest
}

// Mean returns the arithmetic mean of values rounded to 2 decimal places, as an
// int64 when whole and a float64 otherwise. It fails if any value is not
// numeric (booleans included) or the mean is not finite.
func Mean(values []any) (any, bool) {
	if len(values) == 0 {
		return nil, false
	}

	var sum float64
	for _, v := range values {
		f, ok := telemetry.Numeric(v)
		if !ok {
			return nil, false
		}
		sum += f
	}

	mean := telemetry.Round(sum/float64(len(values)), 2)
	if math.IsNaN(mean) || math.IsInf(mean, 0) {
		return nil, false
	}
	return telemetry.Compact(mean), true
}
