// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package derive

import (
	"testing"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/telemetry"
	"github.com/stretchr/testify/require"
)

func TestDewPoint(t *testing.T) {
	// 20°C at 50% RH has a dew point of about 9.3°C.
	dp, ok := DewPoint(20, 50)
	require.True(t, ok)
	require.InDelta(t, 48.7, dp, 0.05)

	dp, ok = DewPoint(25, 100)
	require.True(t, ok)
	require.InDelta(t, 77.0, dp, 0.05)
}

func TestDewPointNoResult(t *testing.T) {
	_, ok := DewPoint(20, 0)
	require.False(t, ok)

	_, ok = DewPoint(20, -5)
	require.False(t, ok)

	_, ok = DewPointOf(nil, 50)
	require.False(t, ok)

	_, ok = DewPointOf(20.0, "wet")
	require.False(t, ok)

	dp, ok := DewPointOf(int64(20), 50.0)
	require.True(t, ok)
	require.InDelta(t, 48.7, dp, 0.05)
}

func TestCommodityFromERTType(t *testing.T) {
	c, ok := CommodityFromERTType(int64(4))
	require.True(t, ok)
	require.Equal(t, telemetry.CommodityElectric, c)

	c, ok = CommodityFromERTType(12.0)
	require.True(t, ok)
	require.Equal(t, telemetry.CommodityGas, c)

	c, ok = CommodityFromERTType("11")
	require.True(t, ok)
	require.Equal(t, telemetry.CommodityWater, c)

	c, ok = CommodityFromERTType(99)
	require.True(t, ok)
	require.Equal(t, telemetry.CommodityUnknown, c)

	_, ok = CommodityFromERTType(nil)
	require.False(t, ok)

	_, ok = CommodityFromERTType("not-a-number")
	require.False(t, ok)

	_, ok = CommodityFromERTType(4.5)
	require.False(t, ok)
}

func TestCommodityFromStrings(t *testing.T) {
	_, ok := CommodityFromMeterType(123)
	require.False(t, ok)

	for input, want := range map[string]telemetry.Commodity{
		"Gas":      telemetry.CommodityGas,
		"WATER":    telemetry.CommodityWater,
		"electric": telemetry.CommodityElectric,
		"Energy":   telemetry.CommodityElectric,
		"steam":    telemetry.CommodityUnknown,
	} {
		c, ok := CommodityFromTypeField(input)
		require.True(t, ok, input)
		require.Equal(t, want, c, input)
	}
}

func TestInferCommodityLastHintWins(t *testing.T) {
	c, ok := InferCommodity(4, "Gas", nil)
	require.True(t, ok)
	require.Equal(t, telemetry.CommodityGas, c)

	c, ok = InferCommodity(4, nil, "water")
	require.True(t, ok)
	require.Equal(t, telemetry.CommodityWater, c)

	// Unknown hints never override a known one.
	c, ok = InferCommodity(4, "mystery", nil)
	require.True(t, ok)
	require.Equal(t, telemetry.CommodityElectric, c)

	c, ok = InferCommodity(nil, "mystery", nil)
	require.True(t, ok)
	require.Equal(t, telemetry.CommodityUnknown, c)

	_, ok = InferCommodity(nil, 7, nil)
	require.False(t, ok)
}

func TestCommodityFromHint(t *testing.T) {
	c, ok := CommodityFromHint("MeterType", "Gas")
	require.True(t, ok)
	require.Equal(t, telemetry.CommodityGas, c)

	_, ok = CommodityFromHint("temperature", 20)
	require.False(t, ok)
}
