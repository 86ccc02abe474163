// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/config"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/mqtt"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/publisher"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const (
	brokerPort  uint16 = 1237
	eventsTopic        = "rtl_433/rtl1/events"
	timeout            = 10 * time.Second
	tick               = 50 * time.Millisecond
)

// Keeps the latest payload seen on each topic.
type recorder struct {
	mu     sync.Mutex
	latest map[string]string
}

func (r *recorder) handle(_ context.Context, msg *mqtt.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest[msg.Topic] = string(msg.Payload)
}

func (r *recorder) get(topic string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest[topic]
}

func startBroker(t *testing.T) {
	server := mochi.New(nil)
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{
		ID:      "tcp",
		Address: fmt.Sprintf("localhost:%d", brokerPort),
	})))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { _ = server.Close() })
}

func startObserver(t *testing.T) (*mqtt.SessionClient, *recorder) {
	client, err := mqtt.NewSessionClientFromSettings(&mqtt.ConnectionSettings{
		Hostname: "localhost",
		Port:     brokerPort,
		ClientID: "observer",
	})
	require.NoError(t, err)

	connected := make(chan struct{}, 8)
	client.RegisterConnectEventHandler(
		func(context.Context, *mqtt.ConnectEvent) { connected <- struct{}{} },
	)
	require.NoError(t, client.Start())
	t.Cleanup(func() { _ = client.Stop() })

	rec := &recorder{latest: make(map[string]string)}
	for _, filter := range []string{"home/#", "homeassistant/#"} {
		require.NoError(t, client.Subscribe(
			context.Background(),
			filter,
			rec.handle,
			mqtt.WithQoS(1),
		))
	}

	select {
	case <-connected:
	case <-time.After(timeout):
		require.FailNow(t, "observer did not connect")
	}
	return client, rec
}

func TestBridgeEndToEnd(t *testing.T) {
	startBroker(t)
	observer, rec := startObserver(t)

	cfg := config.Default()
	cfg.MQTT = mqtt.ConnectionSettings{
		Hostname: "localhost",
		Port:     brokerPort,
		ClientID: "rtlbridge",
	}
	cfg.Aggregation.Interval = 0
	require.NoError(t, cfg.Validate())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b, err := newBridge(cfg, logger, prometheus.NewRegistry())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- b.run(ctx) }()

	availability := publisher.AvailabilityTopic("")
	require.Eventually(t, func() bool {
		return rec.get(availability) == publisher.PayloadOnline
	}, timeout, tick)
	require.Equal(t, 1.0, testutil.ToFloat64(b.metrics.MQTTConnected))

	// The subscription may trail the first connection; resend until the
	// reading comes through.
	event := []byte(`{"time":"2024-05-01 12:00:00","model":"Acurite-Tower",` +
		`"id":1234,"temperature_C":20.0,"humidity":50,"mic":"CHECKSUM"}`)
	require.Eventually(t, func() bool {
		_ = observer.Publish(ctx, eventsTopic, event, mqtt.WithQoS(1))
		return rec.get("home/rtl_devices/1234/humidity") == "50"
	}, timeout, 200*time.Millisecond)

	require.Eventually(t, func() bool {
		return rec.get("home/rtl_devices/1234/temperature") == "68" &&
			rec.get("home/rtl_devices/1234/dew_point") != ""
	}, timeout, tick)
	require.Empty(t, rec.get("home/rtl_devices/1234/mic"))

	require.Contains(t,
		rec.get("homeassistant/sensor/1234_temperature/config"),
		`"unit_of_measurement":"°F"`,
	)
	require.Contains(t,
		rec.get("homeassistant/sensor/1234_humidity/config"),
		`"state_topic":"home/rtl_devices/1234/humidity"`,
	)
	require.Equal(t, 1, b.publisher.TrackedDevices())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(timeout):
		require.FailNow(t, "bridge did not stop")
	}

	require.Eventually(t, func() bool {
		return rec.get(availability) == publisher.PayloadOffline
	}, timeout, tick)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("RTL_BRIDGE_NAMESPACE", "radio")
	t.Setenv("RTL_BRIDGE_MQTT_HOSTNAME", "broker.local")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	require.Equal(t, "radio", cfg.Bridge.Namespace)
	require.Equal(t, "broker.local", cfg.MQTT.Hostname)

	t.Setenv("RTL_BRIDGE_LOG_LEVEL", "loud")
	_, err = loadConfig("")
	require.Error(t, err)
}

func TestNewBridgeRejectsBadSettings(t *testing.T) {
	cfg := config.Default()
	cfg.MQTT.Password = "secret"
	cfg.MQTT.PasswordFile = "/run/secrets/mqtt"

	_, err := newBridge(
		cfg,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		prometheus.NewRegistry(),
	)
	require.Error(t, err)
}
