// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package metrics exposes the bridge's Prometheus metrics. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rtlbridge"

// Publish kinds used as the "kind" label.
const (
	KindState     = "state"
	KindDiscovery = "discovery"
	KindMigration = "migration"
)

// Metrics contains all bridge metrics.
type Metrics struct {
	ReadingsIngested    prometheus.Counter
	ReadingsFlushed     prometheus.Counter
	FlushDuration       prometheus.Histogram
	Publishes           *prometheus.CounterVec
	PublishErrors       *prometheus.CounterVec
	PublishesSuppressed prometheus.Counter
	TrackedDevices      prometheus.Gauge
	CommodityChanges    *prometheus.CounterVec
	MQTTConnected       prometheus.Gauge
}

// New creates the bridge metrics and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ReadingsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_ingested_total",
			Help:      "Total number of readings accepted by the aggregation buffer",
		}),

		ReadingsFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_flushed_total",
			Help:      "Total number of aggregated readings forwarded downstream",
		}),

		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Duration of non-empty aggregation flushes in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		Publishes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publishes_total",
				Help:      "Total number of successful MQTT publishes",
			},
			[]string{"kind"},
		),

		PublishErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publish_errors_total",
				Help:      "Total number of failed MQTT publishes",
			},
			[]string{"kind"},
		),

		PublishesSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_suppressed_total",
			Help:      "Total number of state publishes skipped as unchanged",
		}),

		TrackedDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_devices",
			Help:      "Number of distinct devices seen since startup",
		}),

		CommodityChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commodity_changes_total",
				Help:      "Total number of inferred meter commodity changes",
			},
			[]string{"commodity"},
		),

		MQTTConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mqtt_connected",
			Help:      "MQTT connection status (0=disconnected, 1=connected)",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.ReadingsIngested,
		m.ReadingsFlushed,
		m.FlushDuration,
		m.Publishes,
		m.PublishErrors,
		m.PublishesSuppressed,
		m.TrackedDevices,
		m.CommodityChanges,
		m.MQTTConnected,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordIngested increments the ingested reading counter.
func (m *Metrics) RecordIngested() {
	if m == nil {
		return
	}
	m.ReadingsIngested.Inc()
}

// RecordFlush records a non-empty flush of n readings.
func (m *Metrics) RecordFlush(n int, d time.Duration) {
	if m == nil {
		return
	}
	m.ReadingsFlushed.Add(float64(n))
	m.FlushDuration.Observe(d.Seconds())
}

// RecordPublish records the outcome of a publish of the given kind.
func (m *Metrics) RecordPublish(kind string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.PublishErrors.WithLabelValues(kind).Inc()
		return
	}
	m.Publishes.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordSuppressed() {
	if m == nil {
		return
	}
	m.PublishesSuppressed.Inc()
}

func (m *Metrics) SetTrackedDevices(n int) {
	if m == nil {
		return
	}
	m.TrackedDevices.Set(float64(n))
}

// RecordCommodityChange counts an entity switching to commodity.
func (m *Metrics) RecordCommodityChange(commodity string) {
	if m == nil {
		return
	}
	m.CommodityChanges.WithLabelValues(commodity).Inc()
}

// RecordMQTTStatus updates the MQTT connection status.
func (m *Metrics) RecordMQTTStatus(connected bool) {
	if m == nil {
		return
	}
	value := 0.0
	if connected {
		value = 1.0
	}
	m.MQTTConnected.Set(value)
}
