// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Command rtlbridge republishes rtl_433 events as Home Assistant MQTT
// entities.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/config"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	path := flag.String(
		"config",
		os.Getenv(config.EnvPrefix+"CONFIG"),
		"path to a YAML or TOML configuration file",
	)
	flag.Parse()

	cfg, err := loadConfig(*path)
	if err != nil {
		slog.New(tint.NewHandler(os.Stderr, nil)).Error(
			"invalid configuration",
			slog.Any("error", err),
		)
		os.Exit(2)
	}

	level, _ := cfg.LogLevel()
	log := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		NoColor:    cfg.Log.NoColor,
		TimeFormat: time.DateTime,
	}))

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	b, err := newBridge(cfg, log, reg)
	if err != nil {
		log.Error("failed to initialize bridge", slog.Any("error", err))
		os.Exit(1)
	}
	if err := b.run(ctx); err != nil {
		log.Error("bridge failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Environ()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
