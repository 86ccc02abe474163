// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/aggregate"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/config"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/ingest"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/metrics"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/mqtt"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/publisher"
	"github.com/prometheus/client_golang/prometheus"
)

// Wires the session client, adapter, aggregation buffer and publisher.
type bridge struct {
	cfg          *config.Config
	log          *slog.Logger
	availability string

	client    *mqtt.SessionClient
	metrics   *metrics.Metrics
	server    *metrics.Server
	buffer    *aggregate.Buffer
	publisher *publisher.Publisher
	adapter   *ingest.Adapter
}

const shutdownTimeout = 5 * time.Second

func newBridge(
	cfg *config.Config,
	logger *slog.Logger,
	reg *prometheus.Registry,
) (*bridge, error) {
	m, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	availability := publisher.AvailabilityTopic(cfg.Bridge.IDSuffix)
	client, err := mqtt.NewSessionClientFromSettings(
		&cfg.MQTT,
		&mqtt.WillMessage{
			Topic:   availability,
			Payload: []byte(publisher.PayloadOffline),
			Retain:  true,
			QoS:     1,
		},
		mqtt.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT client: %w", err)
	}

	pub := publisher.New(
		client,
		publisher.WithNamespace(cfg.Bridge.Namespace),
		publisher.WithDiscoveryRoot(cfg.Bridge.DiscoveryRoot),
		publisher.WithIDSuffix(cfg.Bridge.IDSuffix),
		publisher.WithExpireAfter(cfg.Bridge.ExpireAfter),
		publisher.WithBatteryClearAfter(cfg.Bridge.BatteryClearAfter),
		publisher.WithMainSensors(cfg.Bridge.MainSensors),
		publisher.WithTable(cfg.Table()),
		publisher.WithMetrics(m),
		publisher.WithLogger(logger),
	)

	buf := aggregate.New(
		pub,
		time.Duration(cfg.Aggregation.Interval),
		aggregate.WithLastValueFields(cfg.Aggregation.LastValueFields),
		aggregate.WithMetrics(m),
		aggregate.WithLogger(logger),
	)

	adapter := ingest.New(
		buf,
		ingest.WithWhitelist(cfg.Devices.Whitelist),
		ingest.WithBlacklist(cfg.Devices.Blacklist),
		ingest.WithSkipKeys(cfg.Devices.SkipKeys),
		ingest.WithLocation(loc),
		ingest.WithLogger(logger),
	)

	b := &bridge{
		cfg:          cfg,
		log:          logger,
		availability: availability,
		client:       client,
		metrics:      m,
		buffer:       buf,
		publisher:    pub,
		adapter:      adapter,
	}
	if cfg.Metrics.Addr != "" {
		b.server = metrics.NewServer(
			cfg.Metrics.Addr,
			cfg.Metrics.Path,
			reg,
			logger,
		)
	}
	return b, nil
}

// Runs until ctx is done or the session client fails fatally. Pending readings
// are flushed and the bridge marked offline before disconnecting.
func (b *bridge) run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	b.client.RegisterConnectEventHandler(
		func(ctx context.Context, _ *mqtt.ConnectEvent) {
			b.metrics.RecordMQTTStatus(true)
			b.setAvailability(ctx, publisher.PayloadOnline)
		},
	)
	b.client.RegisterDisconnectEventHandler(
		func(context.Context, *mqtt.DisconnectEvent) {
			b.metrics.RecordMQTTStatus(false)
		},
	)
	b.client.RegisterFatalErrorHandler(func(err error) {
		cancel(err)
	})

	if b.server != nil {
		if err := b.server.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		b.log.Info("serving metrics", slog.String("addr", b.server.Addr()))
		defer func() {
			ctx, cancel := context.WithTimeout(
				context.Background(),
				shutdownTimeout,
			)
			defer cancel()
			if err := b.server.Stop(ctx); err != nil {
				b.log.Warn("metrics server shutdown", slog.Any("error", err))
			}
		}()
	}

	if err := b.client.Start(); err != nil {
		return fmt.Errorf("failed to start MQTT client: %w", err)
	}
	if err := b.adapter.Subscribe(
		ctx,
		b.client,
		b.cfg.Bridge.EventsTopic,
	); err != nil {
		_ = b.client.Stop()
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}
	b.log.Info("bridge started",
		slog.String("events_topic", b.cfg.Bridge.EventsTopic),
		slog.Duration("aggregation_interval", b.buffer.Interval()),
	)

	flushed := make(chan error, 1)
	go func() { flushed <- b.buffer.Run(ctx) }()

	<-ctx.Done()
	<-flushed

	shutdown, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()

	b.buffer.Flush(shutdown)
	b.setAvailability(shutdown, publisher.PayloadOffline)
	if err := b.client.Stop(); err != nil {
		b.log.Warn("MQTT client shutdown", slog.Any("error", err))
	}

	if err := context.Cause(ctx); !errors.Is(err, context.Canceled) {
		return err
	}
	b.log.Info("bridge stopped")
	return nil
}

func (b *bridge) setAvailability(ctx context.Context, payload string) {
	err := b.client.Publish(
		ctx,
		b.availability,
		[]byte(payload),
		mqtt.WithQoS(1),
		mqtt.WithRetain(true),
	)
	if err != nil {
		b.log.Warn("failed to publish availability",
			slog.String("payload", payload),
			slog.Any("error", err),
		)
	}
}
