// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package publisher decides what each reading turns into on the bus: Home
// Assistant discovery announcements, latched battery alarms, unit corrections
// once a meter's commodity is known, and deduplicated state updates.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/fieldmeta"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/internal/container"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/internal/log"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/internal/wallclock"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/metrics"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/mqtt"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/telemetry"
)

type (
	// Bus is the subset of the MQTT session client used by the publisher.
	Bus interface {
		Publish(
			ctx context.Context,
			topic string,
			payload []byte,
			opts ...mqtt.PublishOption,
		) error
	}

	// Publisher turns readings into MQTT publishes. Its state lives only in
	// memory; construct one per bus connection lifetime of the process.
	Publisher struct {
		bus         Bus
		opts        Options
		table       *fieldmeta.Table
		mainSensors map[string]struct{}
		metrics     *metrics.Metrics
		clock       wallclock.WallClock
		log         log.Logger

		devices *container.Set[string]

		// Guards all decision state. Bus I/O happens outside the lock.
		mu       sync.Mutex
		entries  map[string]*entry
		entities map[string]*entity

		// Held per entity from planning until its publishes are sent, so the
		// bus sees an entity's values in the order they were cached.
		sending map[string]*sync.Mutex
	}

	// Per unique id publish state.
	entry struct {
		uid         string
		entity      string
		field       string
		model       string
		displayName string

		announced bool
		meta      fieldmeta.Meta
		migrated  bool

		// Last value as received, before conversion or latching.
		raw any

		last    string
		hasLast bool
	}

	// Per physical device state.
	entity struct {
		commodity  telemetry.Commodity
		generation uint64
		battery    *batteryLatch

		// Announced utility fields, in announcement order.
		utilities []*entry
	}

	// A publish decided under the lock. rollback runs under the lock if the
	// publish, or one before it, fails.
	message struct {
		kind     string
		topic    string
		payload  []byte
		rollback func()
	}
)

const (
	kindState     = metrics.KindState
	kindDiscovery = metrics.KindDiscovery
	kindMigration = metrics.KindMigration
)

// New creates a publisher on the given bus.
func New(bus Bus, opts ...Option) *Publisher {
	p := &Publisher{
		bus:      bus,
		devices:  container.NewSet[string](),
		entries:  make(map[string]*entry),
		entities: make(map[string]*entity),
		sending:  make(map[string]*sync.Mutex),
	}
	p.opts.Apply(opts)

	if p.opts.Namespace == "" {
		p.opts.Namespace = DefaultNamespace
	}
	if p.opts.DiscoveryRoot == "" {
		p.opts.DiscoveryRoot = DefaultDiscoveryRoot
	}
	if p.opts.BatteryClearAfter == 0 {
		p.opts.BatteryClearAfter = DefaultBatteryClearAfter
	}

	p.table = p.opts.Table
	if p.table == nil {
		p.table = fieldmeta.NewTable()
	}
	p.clock = p.opts.Clock
	if p.clock == nil {
		p.clock = wallclock.Instance
	}
	p.metrics = p.opts.Metrics
	p.log = log.Wrap(p.opts.Logger)

	p.mainSensors = make(map[string]struct{}, len(p.opts.MainSensors))
	for _, f := range p.opts.MainSensors {
		p.mainSensors[f] = struct{}{}
	}

	return p
}

// TrackedDevices returns the number of distinct devices seen so far.
func (p *Publisher) TrackedDevices() int {
	return p.devices.Size()
}

// Commodity returns the commodity inferred for an entity and how many times it
// has changed.
func (p *Publisher) Commodity(entityID string) (telemetry.Commodity, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if es, ok := p.entities[telemetry.Sanitize(entityID)]; ok {
		return es.commodity, es.generation
	}
	return telemetry.CommodityUnknown, 0
}

// Publish publishes one reading. Unchanged values are skipped unless forced.
// Readings without a value are ignored. Bus errors are returned and leave the
// failed steps to be attempted again by the next reading.
func (p *Publisher) Publish(
	ctx context.Context,
	r telemetry.Reading,
	forced bool,
) error {
	if r.Value == nil {
		return nil
	}

	if p.devices.Add(r.DisplayName) {
		p.metrics.SetTrackedDevices(p.devices.Size())
	}

	lock := p.sendLock(telemetry.Sanitize(r.EntityID))
	lock.Lock()
	defer lock.Unlock()

	return p.send(ctx, p.plan(ctx, r, forced))
}

func (p *Publisher) sendLock(id string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, ok := p.sending[id]
	if !ok {
		lock = &sync.Mutex{}
		p.sending[id] = lock
	}
	return lock
}

// Decides the publishes for a reading and updates the state as if they all
// succeed.
func (p *Publisher) plan(
	ctx context.Context,
	r telemetry.Reading,
	forced bool,
) []*message {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := telemetry.Sanitize(r.EntityID)
	es := p.entity(id)
	e := p.entry(id, r)
	e.raw = r.Value

	meta := p.table.Resolve(r.Field, r.Model, es.commodity)

	var value any = meta.Convert(r.Value)
	if meta.Category == fieldmeta.BatteryAlarm {
		if es.battery == nil {
			es.battery = &batteryLatch{}
		}
		if state, ok := es.battery.update(
			r.Value,
			p.clock.Now(),
			p.opts.BatteryClearAfter,
		); ok {
			value = state
		}
	}

	var msgs []*message

	if !e.announced {
		e.announced, e.meta = true, meta
		msgs = append(msgs, p.discovery(e, meta))
		if meta.Category == fieldmeta.Utility && !es.hasUtility(e) {
			es.utilities = append(es.utilities, e)
		}
		p.log.Info(ctx, "announcing entity",
			slog.String("unique_id", e.uid),
			slog.String("unit", meta.Unit),
			slog.String("device_class", meta.DeviceClass),
		)
	}

	if meta.Category == fieldmeta.BatteryAlarm && !e.migrated {
		e.migrated = true
		msgs = append(msgs, p.migration(e))
	}

	if msg := p.state(ctx, e, value, forced); msg != nil {
		msgs = append(msgs, msg)
	} else {
		p.metrics.RecordSuppressed()
	}

	if meta.Category == fieldmeta.CommodityHint {
		msgs = append(msgs, p.hint(ctx, id, es, r)...)
	}

	return msgs
}

// Returns the state publish for a value, or nil if it is unchanged and not
// forced.
func (p *Publisher) state(
	ctx context.Context,
	e *entry,
	value any,
	forced bool,
) *message {
	wire := telemetry.Format(value)
	if !forced && e.hasLast && e.last == wire {
		return nil
	}

	changed := !e.hasLast || e.last != wire
	e.last, e.hasLast = wire, true

	if changed {
		p.log.Debug(ctx, "state changed",
			slog.String("device", e.displayName),
			slog.String("field", e.field),
			slog.String("value", wire),
		)
	}

	return &message{
		kind:     kindState,
		topic:    p.stateTopic(e.entity, e.field),
		payload:  []byte(wire),
		rollback: func() { e.hasLast = false },
	}
}

// Executes the publishes in order. On the first failure the remaining state
// changes are rolled back and the error returned.
func (p *Publisher) send(ctx context.Context, msgs []*message) error {
	for i, msg := range msgs {
		err := p.bus.Publish(ctx, msg.topic, msg.payload,
			mqtt.WithQoS(1),
			mqtt.WithRetain(true),
		)
		p.metrics.RecordPublish(msg.kind, err)
		if err != nil {
			p.mu.Lock()
			for _, m := range msgs[i:] {
				m.rollback()
			}
			p.mu.Unlock()
			return fmt.Errorf("%s publish to %s failed: %w",
				msg.kind, msg.topic, err)
		}
	}
	return nil
}

func (p *Publisher) entity(id string) *entity {
	es, ok := p.entities[id]
	if !ok {
		es = &entity{}
		p.entities[id] = es
	}
	return es
}

func (p *Publisher) entry(id string, r telemetry.Reading) *entry {
	uid := id + "_" + r.Field + p.opts.IDSuffix
	e, ok := p.entries[uid]
	if !ok {
		e = &entry{uid: uid, entity: id, field: r.Field}
		p.entries[uid] = e
	}
	e.model, e.displayName = r.Model, r.DisplayName
	return e
}

func (es *entity) hasUtility(e *entry) bool {
	for _, u := range es.utilities {
		if u == e {
			return true
		}
	}
	return false
}
