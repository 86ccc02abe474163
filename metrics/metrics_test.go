// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RecordIngested()
	m.RecordIngested()
	m.RecordFlush(3, 5*time.Millisecond)
	m.RecordPublish(KindState, nil)
	m.RecordPublish(KindDiscovery, nil)
	m.RecordPublish(KindState, errors.New("not connected"))
	m.RecordSuppressed()
	m.SetTrackedDevices(4)
	m.RecordCommodityChange("gas")
	m.RecordMQTTStatus(true)

	require.Equal(t, 2.0, testutil.ToFloat64(m.ReadingsIngested))
	require.Equal(t, 3.0, testutil.ToFloat64(m.ReadingsFlushed))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Publishes.WithLabelValues(KindState)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Publishes.WithLabelValues(KindDiscovery)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.PublishErrors.WithLabelValues(KindState)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.PublishesSuppressed))
	require.Equal(t, 4.0, testutil.ToFloat64(m.TrackedDevices))
	require.Equal(t, 1.0, testutil.ToFloat64(m.CommodityChanges.WithLabelValues("gas")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.MQTTConnected))
	require.Equal(t, 1, testutil.CollectAndCount(m.FlushDuration))

	m.RecordMQTTStatus(false)
	require.Equal(t, 0.0, testutil.ToFloat64(m.MQTTConnected))
}

func TestDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	require.Error(t, err)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordIngested()
		m.RecordFlush(1, time.Second)
		m.RecordPublish(KindState, nil)
		m.RecordSuppressed()
		m.SetTrackedDevices(1)
		m.RecordCommodityChange("water")
		m.RecordMQTTStatus(true)
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)
	m.RecordIngested()

	srv := httptest.NewServer(NewServer("", "", reg, nil).Handler())
	t.Cleanup(srv.Close)

	res, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, res.Body.Close())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(body), "rtlbridge_readings_ingested_total 1")

	res, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, err = io.ReadAll(res.Body)
	require.NoError(t, res.Body.Close())
	require.NoError(t, err)
	require.Equal(t, "OK", string(body))

	res, err = http.Post(srv.URL+"/health", "text/plain", strings.NewReader(""))
	require.NoError(t, err)
	require.NoError(t, res.Body.Close())
	require.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
}

func TestServerStartStop(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := NewServer("127.0.0.1:0", "/metrics", reg, nil)
	require.NoError(t, srv.Start())
	require.ErrorIs(t, srv.Start(), ErrServerRunning)

	res, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	require.NoError(t, res.Body.Close())
	require.Equal(t, http.StatusOK, res.StatusCode)

	require.NoError(t, srv.Stop(context.Background()))
	require.NoError(t, srv.Stop(context.Background()))
}
