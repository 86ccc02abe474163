// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package derive computes values that are not reported directly by decoders.
package derive

import (
	"math"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/telemetry"
)

// Magnus coefficients over water, valid from -45°C to 60°C.
const (
	magnusB = 17.62
	magnusC = 243.12
)

// DewPoint returns the dew point in °F, rounded to one decimal, for a
// temperature in °C and a relative humidity in percent. It reports false when
// the humidity is not positive or the result is not finite.
func DewPoint(tempC, humidity float64) (float64, bool) {
	if humidity <= 0 || math.IsNaN(tempC) || math.IsNaN(humidity) {
		return 0, false
	}

	gamma := magnusB*tempC/(magnusC+tempC) + math.Log(humidity/100)
	denom := magnusB - gamma
	if math.Abs(denom) < 1e-9 {
		return 0, false
	}

	dpC := magnusC * gamma / denom
	dpF := dpC*9/5 + 32
	if math.IsNaN(dpF) || math.IsInf(dpF, 0) {
		return 0, false
	}
	return telemetry.Round(dpF, 1), true
}

// DewPointOf is DewPoint for loosely typed inputs; missing or non-numeric
// inputs produce no result.
func DewPointOf(tempC, humidity any) (float64, bool) {
	t, ok := telemetry.Numeric(tempC)
	if !ok {
		return 0, false
	}
	h, ok := telemetry.Numeric(humidity)
	if !ok {
		return 0, false
	}
	return DewPoint(t, h)
}
