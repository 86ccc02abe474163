// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/fieldmeta"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/internal/wallclock"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/metrics"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/mqtt"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic   string
	payload string
	opts    mqtt.PublishOptions
}

// Records publishes; topics listed in fail return an error instead.
type fakeBus struct {
	mu   sync.Mutex
	msgs []published
	fail map[string]error
}

func (b *fakeBus) Publish(
	_ context.Context,
	topic string,
	payload []byte,
	opts ...mqtt.PublishOption,
) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.fail[topic]; err != nil {
		return err
	}

	var opt mqtt.PublishOptions
	opt.Apply(opts)
	b.msgs = append(b.msgs, published{topic, string(payload), opt})
	return nil
}

func (b *fakeBus) on(topic string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []string
	for _, m := range b.msgs {
		if m.topic == topic {
			out = append(out, m.payload)
		}
	}
	return out
}

func (b *fakeBus) discovery(t *testing.T, topic string) map[string]any {
	t.Helper()
	payloads := b.on(topic)
	require.NotEmpty(t, payloads, "no discovery on %s", topic)

	var cfg map[string]any
	require.NoError(t, json.Unmarshal([]byte(payloads[len(payloads)-1]), &cfg))
	return cfg
}

func (b *fakeBus) failOn(topic string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail == nil {
		b.fail = make(map[string]error)
	}
	b.fail[topic] = err
}

func (b *fakeBus) heal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = nil
}

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func meterReading(field string, value any) telemetry.Reading {
	return telemetry.Reading{
		EntityID:    "DE:AD:BE:EF",
		Field:       field,
		Value:       value,
		DisplayName: "ERT-SCM (deadbeef)",
		Model:       "ERT-SCM",
	}
}

func TestPublishAnnouncesOnceAndPublishesState(t *testing.T) {
	ctx := context.Background()
	bus := &fakeBus{}
	p := New(bus, WithIDSuffix("_T"), WithExpireAfter(time.Minute))

	r := telemetry.Reading{
		EntityID:    "aa:bb",
		Field:       "temperature",
		Value:       71.3,
		DisplayName: "Acurite-5n1 (aabb)",
		Model:       "Acurite-5n1",
	}
	require.NoError(t, p.Publish(ctx, r, true))
	require.NoError(t, p.Publish(ctx, r, true))

	cfgTopic := "homeassistant/sensor/aabb_temperature_T/config"
	require.Len(t, bus.on(cfgTopic), 1)
	require.Equal(t, []string{"71.3", "71.3"}, bus.on("home/rtl_devices/aabb/temperature"))

	cfg := bus.discovery(t, cfgTopic)
	require.Equal(t, "Temperature", cfg["name"])
	require.Equal(t, "home/rtl_devices/aabb/temperature", cfg["state_topic"])
	require.Equal(t, "aabb_temperature_T", cfg["unique_id"])
	require.Equal(t, "°F", cfg["unit_of_measurement"])
	require.Equal(t, "temperature", cfg["device_class"])
	require.Equal(t, "measurement", cfg["state_class"])
	require.Equal(t, "diagnostic", cfg["entity_category"])
	require.Equal(t, 60.0, cfg["expire_after"])
	require.Equal(t, "home/status/rtl_bridge_T/availability", cfg["availability_topic"])
	require.Equal(t, map[string]any{
		"identifiers":  []any{"rtl433_Acurite-5n1_aabb"},
		"manufacturer": "rtl_433",
		"model":        "Acurite-5n1",
		"name":         "Acurite-5n1 (aabb)",
	}, cfg["device"])

	for _, m := range bus.msgs {
		require.Equal(t, mqtt.PublishOptions{QoS: 1, Retain: true}, m.opts)
	}
}

func TestPublishDefaultMetadata(t *testing.T) {
	ctx := context.Background()
	bus := &fakeBus{}
	p := New(bus, WithMainSensors{"wind_dir_deg_raw"})

	require.NoError(t, p.Publish(ctx, telemetry.Reading{
		EntityID: "7",
		Field:    "wind_dir_deg_raw",
		Value:    int64(270),
		Model:    "Generic",
	}, false))

	cfg := bus.discovery(t, "homeassistant/sensor/7_wind_dir_deg_raw/config")
	require.Equal(t, "Wind Dir Deg Raw", cfg["name"])
	require.Equal(t, fieldmeta.DefaultIcon, cfg["icon"])
	require.NotContains(t, cfg, "unit_of_measurement")
	require.NotContains(t, cfg, "device_class")
	require.NotContains(t, cfg, "state_class")
	require.NotContains(t, cfg, "entity_category")
	require.Equal(t, 0.0, cfg["expire_after"])
	require.Equal(t, "Generic (7)", cfg["device"].(map[string]any)["name"])
}

func TestPublishSanitizesEntity(t *testing.T) {
	ctx := context.Background()
	bus := &fakeBus{}
	p := New(bus, WithNamespace("radio"), WithDiscoveryRoot("ha"))

	require.NoError(t, p.Publish(ctx, telemetry.Reading{
		EntityID: "--", Field: "rssi", Value: -12.5,
	}, false))

	require.Equal(t, []string{"-12.5"}, bus.on("home/radio/unknown/rssi"))
	require.Len(t, bus.on("ha/sensor/unknown_rssi/config"), 1)
}

func TestDedup(t *testing.T) {
	ctx := context.Background()
	bus := &fakeBus{}
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	p := New(bus, WithMetrics(m))

	r := telemetry.Reading{EntityID: "1", Field: "humidity", Value: int64(40)}
	require.NoError(t, p.Publish(ctx, r, false))
	require.NoError(t, p.Publish(ctx, r, false))
	require.Equal(t, []string{"40"}, bus.on("home/rtl_devices/1/humidity"))
	require.Equal(t, 1.0, testutil.ToFloat64(m.PublishesSuppressed))

	require.NoError(t, p.Publish(ctx, r, true))
	require.Equal(t, []string{"40", "40"}, bus.on("home/rtl_devices/1/humidity"))

	r.Value = int64(41)
	require.NoError(t, p.Publish(ctx, r, false))
	require.Equal(t, []string{"40", "40", "41"}, bus.on("home/rtl_devices/1/humidity"))

	require.Equal(t, 1.0, testutil.ToFloat64(m.Publishes.WithLabelValues(metrics.KindDiscovery)))
	require.Equal(t, 3.0, testutil.ToFloat64(m.Publishes.WithLabelValues(metrics.KindState)))
}

func TestNilValueIgnored(t *testing.T) {
	bus := &fakeBus{}
	p := New(bus)
	require.NoError(t, p.Publish(context.Background(), telemetry.Reading{
		EntityID: "1", Field: "humidity", DisplayName: "Dev",
	}, true))
	require.Empty(t, bus.msgs)
	require.Equal(t, 0, p.TrackedDevices())
}

func TestTrackedDevices(t *testing.T) {
	ctx := context.Background()
	p := New(&fakeBus{})
	for _, name := range []string{"A (1)", "B (2)", "A (1)"} {
		require.NoError(t, p.Publish(ctx, telemetry.Reading{
			EntityID: name, Field: "rssi", Value: 1.5, DisplayName: name,
		}, false))
	}
	require.Equal(t, 2, p.TrackedDevices())
}

func TestBatteryLatch(t *testing.T) {
	ctx := context.Background()
	bus := &fakeBus{}
	clock := wallclock.NewManual(start)
	p := New(bus,
		WithIDSuffix("_T"),
		WithExpireAfter(time.Minute),
		WithBatteryClearAfter(10*time.Second),
		WithMainSensors{"battery_ok"},
		WithClock(clock),
	)

	battery := func(v any) {
		require.NoError(t, p.Publish(ctx, telemetry.Reading{
			EntityID:    "aa:bb",
			Field:       "battery_ok",
			Value:       v,
			DisplayName: "Dev",
			Model:       "Acurite-Tower",
		}, true))
	}
	stateTopic := "home/rtl_devices/aabb/battery_ok"

	battery(int64(0))
	clock.Advance(time.Second)
	battery(int64(1))
	clock.Advance(time.Second)
	battery(int64(1))
	require.Equal(t, []string{"ON", "ON", "ON"}, bus.on(stateTopic))

	// The clear window runs from the first OK after the alarm.
	clock.Advance(10 * time.Second)
	battery(int64(1))
	require.Equal(t, []string{"ON", "ON", "ON", "OFF"}, bus.on(stateTopic))

	battery(true)
	require.Equal(t, "OFF", bus.on(stateTopic)[4])

	cfg := bus.discovery(t, "homeassistant/binary_sensor/aabb_battery_ok_T/config")
	require.Equal(t, "battery", cfg["device_class"])
	require.Equal(t, "ON", cfg["payload_on"])
	require.Equal(t, "OFF", cfg["payload_off"])
	require.Equal(t, 86400.0, cfg["expire_after"])
	require.NotContains(t, cfg, "entity_category")
	require.Len(t, bus.on("homeassistant/binary_sensor/aabb_battery_ok_T/config"), 1)

	// The legacy sensor announcement is retracted exactly once.
	require.Equal(t, []string{""}, bus.on("homeassistant/sensor/aabb_battery_ok_T/config"))
}

func TestBatteryLatchLowResetsWindow(t *testing.T) {
	ctx := context.Background()
	bus := &fakeBus{}
	clock := wallclock.NewManual(start)
	p := New(bus, WithBatteryClearAfter(10*time.Second), WithClock(clock))

	battery := func(v any) {
		require.NoError(t, p.Publish(ctx, telemetry.Reading{
			EntityID: "5", Field: "battery_ok", Value: v,
		}, true))
	}

	battery(false)
	battery(true)
	clock.Advance(8 * time.Second)
	battery(false)
	clock.Advance(8 * time.Second)
	battery(true)
	clock.Advance(8 * time.Second)
	battery(true)
	clock.Advance(8 * time.Second)
	battery(true)

	require.Equal(t,
		[]string{"ON", "ON", "ON", "ON", "ON", "OFF"},
		bus.on("home/rtl_devices/5/battery_ok"),
	)
}

func TestBatteryLatchBypassesNonNumeric(t *testing.T) {
	ctx := context.Background()
	bus := &fakeBus{}
	p := New(bus)

	require.NoError(t, p.Publish(ctx, telemetry.Reading{
		EntityID: "5", Field: "battery_ok", Value: "unknown",
	}, true))
	require.Equal(t, []string{"unknown"}, bus.on("home/rtl_devices/5/battery_ok"))
}

func TestBatteryAlarmExpiryKeepsLongerTTL(t *testing.T) {
	ctx := context.Background()
	bus := &fakeBus{}
	p := New(bus, WithExpireAfter(48*time.Hour))

	require.NoError(t, p.Publish(ctx, telemetry.Reading{
		EntityID: "5", Field: "battery_ok", Value: int64(1),
	}, true))
	cfg := bus.discovery(t, "homeassistant/binary_sensor/5_battery_ok/config")
	require.Equal(t, 172800.0, cfg["expire_after"])
}

func TestCommodityCCFRepublish(t *testing.T) {
	ctx := context.Background()
	bus := &fakeBus{}
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	p := New(bus,
		WithTable(fieldmeta.NewTable(fieldmeta.WithGasUnit(fieldmeta.GasCCF))),
		WithMetrics(m),
	)

	cfgTopic := "homeassistant/sensor/deadbeef_Consumption/config"
	stateTopic := "home/rtl_devices/deadbeef/Consumption"

	require.NoError(t, p.Publish(ctx, meterReading("Consumption", int64(217504)), true))
	require.Equal(t, []string{"217504"}, bus.on(stateTopic))
	require.Equal(t, "ft³", bus.discovery(t, cfgTopic)["unit_of_measurement"])

	require.NoError(t, p.Publish(ctx, meterReading("ert_type", int64(12)), true))
	require.Equal(t, []string{"217504", "2175.04"}, bus.on(stateTopic))
	require.Len(t, bus.on(cfgTopic), 2)

	cfg := bus.discovery(t, cfgTopic)
	require.Equal(t, "CCF", cfg["unit_of_measurement"])
	require.Equal(t, "gas", cfg["device_class"])
	require.Equal(t, "total_increasing", cfg["state_class"])

	commodity, generation := p.Commodity("DE:AD:BE:EF")
	require.Equal(t, telemetry.CommodityGas, commodity)
	require.Equal(t, uint64(1), generation)
	require.Equal(t, 1.0, testutil.ToFloat64(m.CommodityChanges.WithLabelValues("gas")))

	// Repeating the hint changes nothing.
	require.NoError(t, p.Publish(ctx, meterReading("ert_type", int64(12)), true))
	require.Len(t, bus.on(cfgTopic), 2)

	// New readings are converted as they arrive.
	require.NoError(t, p.Publish(ctx, meterReading("Consumption", int64(217600)), true))
	require.Equal(t, "2176", bus.on(stateTopic)[2])
}

func TestCommodityElectricRefresh(t *testing.T) {
	ctx := context.Background()
	bus := &fakeBus{}
	p := New(bus, WithIDSuffix("_T"))

	cfgTopic := "homeassistant/sensor/deadbeef_consumption_data_T/config"
	stateTopic := "home/rtl_devices/deadbeef/consumption_data"

	require.NoError(t, p.Publish(ctx, meterReading("consumption_data", int64(217504)), true))
	require.Equal(t, "gas", bus.discovery(t, cfgTopic)["device_class"])

	require.NoError(t, p.Publish(ctx, meterReading("ert_type", int64(4)), true))
	cfg := bus.discovery(t, cfgTopic)
	require.Equal(t, "energy", cfg["device_class"])
	require.Equal(t, "kWh", cfg["unit_of_measurement"])
	require.Equal(t, []string{"217504", "217504"}, bus.on(stateTopic))

	// The hint itself is published like any other field.
	require.Equal(t, []string{"4"}, bus.on("home/rtl_devices/deadbeef/ert_type"))
}

func TestCommodityWithoutUnitChangeDoesNotReannounce(t *testing.T) {
	ctx := context.Background()
	bus := &fakeBus{}
	p := New(bus)

	cfgTopic := "homeassistant/sensor/deadbeef_Consumption/config"
	require.NoError(t, p.Publish(ctx, meterReading("Consumption", int64(12345)), true))
	require.NoError(t, p.Publish(ctx, meterReading("MeterType", "Gas"), true))

	require.Len(t, bus.on(cfgTopic), 1)
	require.Equal(t, "ft³", bus.discovery(t, cfgTopic)["unit_of_measurement"])
	require.Equal(t, []string{"12345"}, bus.on("home/rtl_devices/deadbeef/Consumption"))
}

func TestCommodityUnknownHintDoesNotDowngrade(t *testing.T) {
	ctx := context.Background()
	p := New(&fakeBus{})

	require.NoError(t, p.Publish(ctx, meterReading("ert_type", int64(7)), true))
	require.NoError(t, p.Publish(ctx, meterReading("ert_type", int64(99)), true))
	require.NoError(t, p.Publish(ctx, meterReading("type", "thermostat"), true))

	commodity, generation := p.Commodity("DE:AD:BE:EF")
	require.Equal(t, telemetry.CommodityElectric, commodity)
	require.Equal(t, uint64(1), generation)
}

func TestCommodityLastHintWins(t *testing.T) {
	ctx := context.Background()
	bus := &fakeBus{}
	p := New(bus)

	require.NoError(t, p.Publish(ctx, meterReading("Consumption", int64(100)), true))
	require.NoError(t, p.Publish(ctx, meterReading("ert_type", int64(4)), true))
	require.NoError(t, p.Publish(ctx, meterReading("type", "water"), true))

	commodity, generation := p.Commodity("DE:AD:BE:EF")
	require.Equal(t, telemetry.CommodityWater, commodity)
	require.Equal(t, uint64(2), generation)

	cfg := bus.discovery(t, "homeassistant/sensor/deadbeef_Consumption/config")
	require.Equal(t, "water", cfg["device_class"])
}

func TestModelUnitSurvivesCommodity(t *testing.T) {
	ctx := context.Background()
	bus := &fakeBus{}
	p := New(bus)

	r := telemetry.Reading{
		EntityID: "1122", Field: "meter_reading", Value: 1234.5,
		Model: "Neptune-R900",
	}
	require.NoError(t, p.Publish(ctx, r, true))
	require.Equal(t, "gal",
		bus.discovery(t, "homeassistant/sensor/1122_meter_reading/config")["unit_of_measurement"])
}

func TestDiscoveryFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	bus := &fakeBus{}
	p := New(bus)

	cfgTopic := "homeassistant/sensor/1_humidity/config"
	stateTopic := "home/rtl_devices/1/humidity"
	bus.failOn(cfgTopic, errors.New("not connected"))

	r := telemetry.Reading{EntityID: "1", Field: "humidity", Value: int64(40)}
	err := p.Publish(ctx, r, false)
	require.ErrorContains(t, err, "not connected")
	require.Empty(t, bus.on(stateTopic))

	bus.heal()
	require.NoError(t, p.Publish(ctx, r, false))
	require.Len(t, bus.on(cfgTopic), 1)
	require.Equal(t, []string{"40"}, bus.on(stateTopic))
}

func TestStateFailureDropsCache(t *testing.T) {
	ctx := context.Background()
	bus := &fakeBus{}
	p := New(bus)

	stateTopic := "home/rtl_devices/1/humidity"
	r := telemetry.Reading{EntityID: "1", Field: "humidity", Value: int64(40)}
	require.NoError(t, p.Publish(ctx, r, false))

	r.Value = int64(41)
	bus.failOn(stateTopic, errors.New("not connected"))
	require.Error(t, p.Publish(ctx, r, false))

	// Unforced, yet published: the failed value was never cached.
	bus.heal()
	require.NoError(t, p.Publish(ctx, r, false))
	require.Equal(t, []string{"40", "41"}, bus.on(stateTopic))
}

func TestConcurrentPublish(t *testing.T) {
	ctx := context.Background()
	bus := &fakeBus{}
	p := New(bus)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				_ = p.Publish(ctx, telemetry.Reading{
					EntityID: "1",
					Field:    "power_W",
					Value:    int64(i*100 + j),
				}, false)
			}
		}()
	}
	wg.Wait()

	require.Len(t, bus.on("homeassistant/sensor/1_power_W/config"), 1)
	require.Len(t, bus.on("home/rtl_devices/1/power_W"), 400)
}

// Blocks the first publish of a given payload until released.
type gatedBus struct {
	fakeBus
	payload string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *gatedBus) Publish(
	ctx context.Context,
	topic string,
	payload []byte,
	opts ...mqtt.PublishOption,
) error {
	if string(payload) == b.payload {
		b.once.Do(func() {
			close(b.entered)
			<-b.release
		})
	}
	return b.fakeBus.Publish(ctx, topic, payload, opts...)
}

func TestConcurrentPublishKeepsBusAndCacheInOrder(t *testing.T) {
	ctx := context.Background()
	bus := &gatedBus{
		payload: "1",
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	p := New(bus)

	reading := func(v int64) telemetry.Reading {
		return telemetry.Reading{EntityID: "1", Field: "power_W", Value: v}
	}
	const stateTopic = "home/rtl_devices/1/power_W"

	first := make(chan error, 1)
	go func() { first <- p.Publish(ctx, reading(1), false) }()
	<-bus.entered

	second := make(chan error, 1)
	go func() { second <- p.Publish(ctx, reading(2), false) }()

	// The newer value must wait for the older one to reach the bus.
	require.Never(t, func() bool {
		return len(bus.on(stateTopic)) > 0 || len(second) > 0
	}, 50*time.Millisecond, 5*time.Millisecond)

	close(bus.release)
	require.NoError(t, <-first)
	require.NoError(t, <-second)
	require.Equal(t, []string{"1", "2"}, bus.on(stateTopic))

	// The cache agrees with the retained value, so a repeat is suppressed.
	require.NoError(t, p.Publish(ctx, reading(2), false))
	require.Equal(t, []string{"1", "2"}, bus.on(stateTopic))
}
