// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package test

import (
	"context"
	"testing"
	"time"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/mqtt"
	"github.com/stretchr/testify/require"
)

const (
	clientID       string = "acurite5n1"
	topicName      string = "rtl_433/rtl1/events"
	topicFilter    string = "rtl_433/+/events"
	publishMessage string = `{"model":"Acurite-5n1","id":1234}`
	timeout               = 10 * time.Second
)

type ChannelCallback[T any] chan T

func (cc ChannelCallback[T]) Func(_ context.Context, v T) {
	cc <- v
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		require.FailNow(t, "timed out waiting for callback")
		var zero T
		return zero
	}
}

func startClient(
	t *testing.T,
	client *mqtt.SessionClient,
) ChannelCallback[*mqtt.ConnectEvent] {
	t.Helper()
	connected := make(ChannelCallback[*mqtt.ConnectEvent], 8)
	client.RegisterConnectEventHandler(connected.Func)
	require.NoError(t, client.Start())
	t.Cleanup(func() { _ = client.Stop() })
	receive(t, connected)
	return connected
}
