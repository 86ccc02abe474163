// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package derive

import (
	"math"
	"strings"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/telemetry"
)

// ERT endpoint type codes as transmitted by Itron SCM/SCM+ meters.
var ertTypes = map[int]telemetry.Commodity{
	4:  telemetry.CommodityElectric,
	5:  telemetry.CommodityElectric,
	7:  telemetry.CommodityElectric,
	8:  telemetry.CommodityElectric,
	0:  telemetry.CommodityGas,
	1:  telemetry.CommodityGas,
	2:  telemetry.CommodityGas,
	9:  telemetry.CommodityGas,
	12: telemetry.CommodityGas,
	3:  telemetry.CommodityWater,
	11: telemetry.CommodityWater,
	13: telemetry.CommodityWater,
}

// CommodityFromERTType maps an ERT type code to a commodity. Integral codes
// outside the known sets map to unknown; anything that is not an integer
// (including nil) yields no opinion.
func CommodityFromERTType(v any) (telemetry.Commodity, bool) {
	f, ok := telemetry.Parse(v)
	if !ok || f != math.Trunc(f) {
		return telemetry.CommodityUnknown, false
	}
	if _, isBool := v.(bool); isBool {
		return telemetry.CommodityUnknown, false
	}
	return ertTypes[int(f)], true
}

// CommodityFromMeterType maps a meter type string (e.g. "Gas") to a
// commodity, case-insensitively. Non-string values yield no opinion.
func CommodityFromMeterType(v any) (telemetry.Commodity, bool) {
	s, ok := v.(string)
	if !ok {
		return telemetry.CommodityUnknown, false
	}
	return commodityFromString(s), true
}

// CommodityFromTypeField maps the generic "type" field of a meter event to a
// commodity. Non-string values yield no opinion.
func CommodityFromTypeField(v any) (telemetry.Commodity, bool) {
	s, ok := v.(string)
	if !ok {
		return telemetry.CommodityUnknown, false
	}
	return commodityFromString(s), true
}

func commodityFromString(s string) telemetry.Commodity {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.Contains(s, "gas"):
		return telemetry.CommodityGas
	case strings.Contains(s, "water"):
		return telemetry.CommodityWater
	case strings.Contains(s, "electric"),
		strings.Contains(s, "energy"),
		strings.Contains(s, "power"):
		return telemetry.CommodityElectric
	default:
		return telemetry.CommodityUnknown
	}
}

// InferCommodity combines the three hints. The last well-formed, known hint
// wins in the order ERT type, meter type, type field; unknown or absent hints
// never override an earlier one.
func InferCommodity(ertType, meterType, typeField any) (telemetry.Commodity, bool) {
	result, found := telemetry.CommodityUnknown, false
	for _, hint := range []struct {
		fn func(any) (telemetry.Commodity, bool)
		v  any
	}{
		{CommodityFromERTType, ertType},
		{CommodityFromMeterType, meterType},
		{CommodityFromTypeField, typeField},
	} {
		c, ok := hint.fn(hint.v)
		if !ok {
			continue
		}
		if c != telemetry.CommodityUnknown || !found {
			result, found = c, true
		}
	}
	return result, found
}

// CommodityFromHint maps a single hint field to a commodity.
func CommodityFromHint(field string, v any) (telemetry.Commodity, bool) {
	switch field {
	case "ert_type":
		return CommodityFromERTType(v)
	case "MeterType", "meter_type":
		return CommodityFromMeterType(v)
	case "type":
		return CommodityFromTypeField(v)
	default:
		return telemetry.CommodityUnknown, false
	}
}
