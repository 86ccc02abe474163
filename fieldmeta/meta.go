// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package fieldmeta maps decoder field names to the unit, device class, icon
// and friendly name announced to Home Assistant.
package fieldmeta

import (
	"strings"
	"unicode"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/telemetry"
)

// Category tags fields that need special handling when published.
type Category byte

const (
	// Generic fields are published as plain sensors.
	Generic Category = iota

	// Utility fields are meter totals whose unit depends on the commodity the
	// meter measures.
	Utility

	// BatteryAlarm fields are boolean battery health flags, published as a
	// latched binary sensor.
	BatteryAlarm

	// CommodityHint fields carry metadata used to infer what a meter
	// measures.
	CommodityHint
)

// Meta is the announcement metadata for a field.
type Meta struct {
	Unit        string
	DeviceClass string
	Icon        string
	Name        string
	Category    Category

	// Divisor scales numeric values before publishing. Zero means no scaling.
	Divisor float64
}

// DefaultIcon is used for fields missing from the table.
const DefaultIcon = "mdi:eye"

// Default returns the metadata used for a field missing from the table.
func Default(field string) Meta {
	return Meta{Icon: DefaultIcon, Name: FriendlyName(field)}
}

// FriendlyName derives a display name from a field name, e.g.
// "wind_dir_deg" becomes "Wind Dir Deg".
func FriendlyName(field string) string {
	words := strings.Fields(strings.ReplaceAll(field, "_", " "))
	for i, w := range words {
		rs := []rune(strings.ToLower(w))
		rs[0] = unicode.ToUpper(rs[0])
		words[i] = string(rs)
	}
	return strings.Join(words, " ")
}

// Convert applies the divisor to numeric values, leaving everything else
// unchanged.
func (m Meta) Convert(v any) any {
	if m.Divisor == 0 {
		return v
	}
	f, ok := telemetry.Numeric(v)
	if !ok {
		return v
	}
	return telemetry.Compact(f / m.Divisor)
}

// StateClass returns the Home Assistant state class implied by the device
// class, or "" when none applies.
func (m Meta) StateClass() string {
	switch m.DeviceClass {
	case "gas", "energy", "water", "monetary":
		return "total_increasing"
	case "temperature", "humidity", "pressure", "illuminance", "voltage",
		"current", "power", "wind_speed", "carbon_dioxide", "pm25", "pm10",
		"signal_strength", "precipitation_intensity":
		return "measurement"
	default:
		return ""
	}
}
