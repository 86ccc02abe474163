// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package ingest turns rtl_433 JSON events into readings.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/derive"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/internal/iso"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/internal/log"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/internal/wallclock"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/mqtt"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/telemetry"
)

type (
	// Sink accepts readings, e.g. an aggregation buffer.
	Sink interface {
		Ingest(ctx context.Context, r telemetry.Reading) error
	}

	// Subscriber is the subset of the MQTT session client used to receive
	// events.
	Subscriber interface {
		Subscribe(
			ctx context.Context,
			filter string,
			handler mqtt.MessageHandler,
			opts ...mqtt.SubscribeOption,
		) error
	}

	// Adapter converts decoded rtl_433 events into readings for a sink.
	Adapter struct {
		sink      Sink
		whitelist []string
		blacklist []string
		skip      map[string]struct{}
		loc       *time.Location
		clock     wallclock.WallClock
		log       log.Logger
	}

	// DecodeError is returned for event payloads that are not JSON objects.
	DecodeError struct {
		Topic   string
		wrapped error
	}
)

// DefaultTopicFilter matches the events topics of rtl_433's MQTT output.
const DefaultTopicFilter = "rtl_433/+/events"

const defaultModel = "Generic"

func (e *DecodeError) Error() string {
	return "invalid event on " + e.Topic + ": " + e.wrapped.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.wrapped
}

// Attrs returns additional error attributes for slog.
func (e *DecodeError) Attrs() []slog.Attr {
	return []slog.Attr{slog.String("topic", e.Topic)}
}

// New creates an adapter feeding sink.
func New(sink Sink, opts ...Option) *Adapter {
	var opt Options
	opt.Apply(opts)

	skipKeys := opt.SkipKeys
	if skipKeys == nil {
		skipKeys = DefaultSkipKeys
	}

	a := &Adapter{
		sink:      sink,
		whitelist: opt.Whitelist,
		blacklist: opt.Blacklist,
		skip:      make(map[string]struct{}, len(skipKeys)),
		loc:       opt.Location,
		clock:     opt.Clock,
		log:       log.Wrap(opt.Logger),
	}
	for _, k := range skipKeys {
		a.skip[k] = struct{}{}
	}
	if a.loc == nil {
		a.loc = time.Local
	}
	if a.clock == nil {
		a.clock = wallclock.Instance
	}
	return a
}

// Subscribe routes events received on filter to the adapter.
func (a *Adapter) Subscribe(
	ctx context.Context,
	sub Subscriber,
	filter string,
) error {
	if filter == "" {
		filter = DefaultTopicFilter
	}
	return sub.Subscribe(ctx, filter, a.HandleMessage, mqtt.WithQoS(1))
}

// HandleMessage decodes one event message and ingests its readings. Errors are
// logged.
func (a *Adapter) HandleMessage(ctx context.Context, msg *mqtt.Message) {
	event, err := Decode(msg.Payload)
	if err != nil {
		a.log.Err(ctx, &DecodeError{Topic: msg.Topic, wrapped: err})
		return
	}
	if err := a.HandleEvent(ctx, event); err != nil {
		a.log.Err(ctx, err, slog.String("topic", msg.Topic))
	}
}

// HandleEvent ingests the readings of one decoded event.
func (a *Adapter) HandleEvent(ctx context.Context, event map[string]any) error {
	var errs []error
	for _, r := range a.Readings(event) {
		if err := a.sink.Ingest(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Decode parses an event payload, keeping integers as int64 and other numbers
// as float64.
func Decode(payload []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var event map[string]any
	if err := dec.Decode(&event); err != nil {
		return nil, err
	}
	if event == nil {
		return nil, errors.New("event is not an object")
	}
	return normalize(event).(map[string]any), nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	default:
		return v
	}
}

// Readings converts an event into readings. Events of filtered devices yield
// none. The event is not modified.
func (a *Adapter) Readings(event map[string]any) []telemetry.Reading {
	model, _ := event["model"].(string)
	if model == "" {
		model = defaultModel
	}

	id := telemetry.Sanitize(deviceID(event))
	if !a.Allowed(id, model) {
		return nil
	}

	base := telemetry.Reading{
		EntityID:    id,
		DisplayName: fmt.Sprintf("%s (%s)", model, id),
		Model:       model,
		Timestamp:   a.timestamp(event),
	}
	add := func(out []telemetry.Reading, field string, value any) []telemetry.Reading {
		if value == nil {
			return out
		}
		r := base
		r.Field, r.Value = field, value
		return append(out, r)
	}

	data := make(map[string]any, len(event))
	for k, v := range event {
		data[k] = v
	}

	var out []telemetry.Reading

	// Utility meters report totals under a generic key.
	if strings.Contains(model, "Neptune-R900") {
		if c, ok := telemetry.Numeric(data["consumption"]); ok {
			out = add(out, "meter_reading", c/10)
			delete(data, "consumption")
		}
	}
	if strings.Contains(model, "SCM") || strings.Contains(model, "ERT") {
		if c, ok := data["consumption"]; ok && c != nil {
			out = add(out, "Consumption", c)
			delete(data, "consumption")
		}
	}

	if tempC, ok := celsius(data); ok {
		if dp, ok := derive.DewPointOf(tempC, data["humidity"]); ok {
			out = add(out, "dew_point", dp)
		}
	}

	flat := make(map[string]any)
	flatten(flat, "", data)

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, key := range keys {
		if _, ok := a.skip[key]; ok {
			continue
		}
		value := flat[key]
		switch key {
		case "temperature_C", "temp_C":
			if c, ok := telemetry.Numeric(value); ok {
				out = add(out, "temperature", telemetry.Round(c*1.8+32, 1))
				continue
			}
		case "temperature_F", "temp_F", "temperature":
			if _, ok := telemetry.Numeric(value); ok {
				out = add(out, "temperature", value)
				continue
			}
		}
		out = add(out, key, value)
	}
	return out
}

// Allowed reports whether a device passes the whitelist or blacklist.
func (a *Adapter) Allowed(id, model string) bool {
	if len(a.whitelist) > 0 {
		return matchAny(a.whitelist, id, model)
	}
	return !matchAny(a.blacklist, id, model)
}

func matchAny(patterns []string, id, model string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, id); ok {
			return true
		}
		if ok, _ := path.Match(p, model); ok {
			return true
		}
	}
	return false
}

// The device id is the "id" field, else the "channel" field. Zero values count
// as missing.
func deviceID(event map[string]any) string {
	for _, key := range []string{"id", "channel"} {
		switch v := event[key].(type) {
		case nil:
		case string:
			if v != "" {
				return v
			}
		case int64:
			if v != 0 {
				return strconv.FormatInt(v, 10)
			}
		case float64:
			if v != 0 {
				return strconv.FormatFloat(v, 'f', -1, 64)
			}
		default:
			return fmt.Sprint(v)
		}
	}
	return "unknown"
}

// Returns the event temperature in °C. A bare "temperature" is taken to be in
// °C already.
func celsius(data map[string]any) (float64, bool) {
	for _, key := range []string{"temperature_C", "temp_C"} {
		if c, ok := telemetry.Numeric(data[key]); ok {
			return c, true
		}
	}
	if f, ok := telemetry.Numeric(data["temperature_F"]); ok {
		return (f - 32) * 5 / 9, true
	}
	return telemetry.Numeric(data["temperature"])
}

func (a *Adapter) timestamp(event map[string]any) time.Time {
	if s, ok := event["time"].(string); ok {
		if t, err := iso.ParseTime(s, a.loc); err == nil {
			return t
		}
	}
	return a.clock.Now()
}

// Flattens nested objects and arrays into keys joined with underscores.
func flatten(out map[string]any, prefix string, v any) {
	join := func(k string) string {
		if prefix == "" {
			return k
		}
		return prefix + "_" + k
	}

	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			flatten(out, join(k), e)
		}
	case []any:
		for i, e := range t {
			flatten(out, join(strconv.Itoa(i)), e)
		}
	default:
		if prefix != "" {
			out[prefix] = v
		}
	}
}
