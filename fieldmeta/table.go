// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package fieldmeta

var builtin = map[string]Meta{
	// Climate
	"temperature":     {Unit: "°F", DeviceClass: "temperature", Icon: "mdi:thermometer", Name: "Temperature"},
	"dew_point":       {Unit: "°F", DeviceClass: "temperature", Icon: "mdi:water-thermometer", Name: "Dew Point"},
	"humidity":        {Unit: "%", DeviceClass: "humidity", Icon: "mdi:water-percent", Name: "Humidity"},
	"humidity_1":      {Unit: "%", DeviceClass: "humidity", Icon: "mdi:water-percent", Name: "Humidity 1"},
	"humidity_2":      {Unit: "%", DeviceClass: "humidity", Icon: "mdi:water-percent", Name: "Humidity 2"},
	"temperature_1_C": {Unit: "°C", DeviceClass: "temperature", Icon: "mdi:thermometer", Name: "Temperature 1 (C)"},
	"temperature_2_C": {Unit: "°C", DeviceClass: "temperature", Icon: "mdi:thermometer", Name: "Temperature 2 (C)"},
	"temperature_3_C": {Unit: "°C", DeviceClass: "temperature", Icon: "mdi:thermometer", Name: "Temperature 3 (C)"},
	"temperature_4_C": {Unit: "°C", DeviceClass: "temperature", Icon: "mdi:thermometer", Name: "Temperature 4 (C)"},
	"temperature_1_F": {Unit: "°F", DeviceClass: "temperature", Icon: "mdi:thermometer", Name: "Temperature 1"},
	"temperature_2_F": {Unit: "°F", DeviceClass: "temperature", Icon: "mdi:thermometer", Name: "Temperature 2"},
	"setpoint_C":      {Unit: "°C", DeviceClass: "temperature", Icon: "mdi:thermostat", Name: "Setpoint (C)"},
	"setpoint_F":      {Unit: "°F", DeviceClass: "temperature", Icon: "mdi:thermostat", Name: "Setpoint"},

	// Battery
	"battery_ok":  {DeviceClass: "battery", Icon: "mdi:battery-alert", Name: "Battery Low", Category: BatteryAlarm},
	"battery_pct": {Unit: "%", DeviceClass: "battery", Icon: "mdi:battery", Name: "Battery"},
	"battery_V":   {Unit: "V", DeviceClass: "voltage", Icon: "mdi:battery", Name: "Battery Voltage"},
	"battery_mV":  {Unit: "mV", DeviceClass: "voltage", Icon: "mdi:battery", Name: "Battery Voltage"},
	"battery_low": {Icon: "mdi:battery-alert", Name: "Battery Low (Raw)"},
	"battery_raw": {Unit: "cnt", Icon: "mdi:battery", Name: "Battery Raw"},

	// Pressure
	"pressure_hPa": {Unit: "hPa", DeviceClass: "pressure", Icon: "mdi:gauge", Name: "Pressure"},
	"pressure_kPa": {Unit: "kPa", DeviceClass: "pressure", Icon: "mdi:gauge", Name: "Pressure"},
	"pressure_psi": {Unit: "psi", DeviceClass: "pressure", Icon: "mdi:gauge", Name: "Pressure"},

	// Wind and rain
	"wind_avg_m_s":  {Unit: "m/s", DeviceClass: "wind_speed", Icon: "mdi:weather-windy", Name: "Wind Speed"},
	"wind_avg_km_h": {Unit: "km/h", DeviceClass: "wind_speed", Icon: "mdi:weather-windy", Name: "Wind Speed"},
	"wind_avg_mi_h": {Unit: "mph", DeviceClass: "wind_speed", Icon: "mdi:weather-windy", Name: "Wind Speed"},
	"wind_max_m_s":  {Unit: "m/s", DeviceClass: "wind_speed", Icon: "mdi:weather-windy-variant", Name: "Wind Gust"},
	"wind_max_km_h": {Unit: "km/h", DeviceClass: "wind_speed", Icon: "mdi:weather-windy-variant", Name: "Wind Gust"},
	"wind_max_mi_h": {Unit: "mph", DeviceClass: "wind_speed", Icon: "mdi:weather-windy-variant", Name: "Wind Gust"},
	"wind_dir_deg":  {Unit: "°", Icon: "mdi:compass", Name: "Wind Direction"},
	"rain_mm":       {Unit: "mm", DeviceClass: "precipitation", Icon: "mdi:weather-rainy", Name: "Rain Total"},
	"rain_in":       {Unit: "in", DeviceClass: "precipitation", Icon: "mdi:weather-rainy", Name: "Rain Total"},
	"rain_rate_mm_h": {
		Unit: "mm/h", DeviceClass: "precipitation_intensity", Icon: "mdi:weather-pouring", Name: "Rain Rate",
	},

	// Light and UV
	"light_lux": {Unit: "lx", DeviceClass: "illuminance", Icon: "mdi:brightness-5", Name: "Light Level"},
	"uv":        {Unit: "UV Index", Icon: "mdi:sunglasses", Name: "UV Index"},
	"uvi":       {Unit: "UV Index", Icon: "mdi:sunglasses", Name: "UV Index"},

	// Air quality
	"co2_ppm":                {Unit: "ppm", DeviceClass: "carbon_dioxide", Icon: "mdi:molecule-co2", Name: "CO₂ Level"},
	"pm2_5_ug_m3":            {Unit: "µg/m³", DeviceClass: "pm25", Icon: "mdi:blur", Name: "PM2.5"},
	"pm10_ug_m3":             {Unit: "µg/m³", DeviceClass: "pm10", Icon: "mdi:blur", Name: "PM10"},
	"pm10_0_ug_m3":           {Unit: "µg/m³", DeviceClass: "pm10", Icon: "mdi:blur", Name: "PM10"},
	"estimated_pm10_0_ug_m3": {Unit: "µg/m³", DeviceClass: "pm10", Icon: "mdi:blur", Name: "PM10 (Estimated)"},
	"pm1_ug_m3":              {Unit: "µg/m³", Icon: "mdi:blur", Name: "PM1.0"},
	"pm4_ug_m3":              {Unit: "µg/m³", Icon: "mdi:blur", Name: "PM4.0"},

	// Power and energy
	"power_W":    {Unit: "W", DeviceClass: "power", Icon: "mdi:flash", Name: "Power"},
	"power0_W":   {Unit: "W", DeviceClass: "power", Icon: "mdi:flash", Name: "Power 0"},
	"power1_W":   {Unit: "W", DeviceClass: "power", Icon: "mdi:flash", Name: "Power 1"},
	"power2_W":   {Unit: "W", DeviceClass: "power", Icon: "mdi:flash", Name: "Power 2"},
	"power3_W":   {Unit: "W", DeviceClass: "power", Icon: "mdi:flash", Name: "Power 3"},
	"energy_kWh": {Unit: "kWh", DeviceClass: "energy", Icon: "mdi:counter", Name: "Energy"},
	"total_kWh":  {Unit: "kWh", DeviceClass: "energy", Icon: "mdi:counter", Name: "Energy Total"},
	"voltage_V":  {Unit: "V", DeviceClass: "voltage", Icon: "mdi:sine-wave", Name: "Voltage"},
	"current_A":  {Unit: "A", DeviceClass: "current", Icon: "mdi:current-ac", Name: "Current"},

	// Signal quality
	"rssi":  {Unit: "dB", DeviceClass: "signal_strength", Icon: "mdi:signal", Name: "Signal Strength"},
	"snr":   {Unit: "dB", DeviceClass: "signal_strength", Icon: "mdi:signal-distance-variant", Name: "Signal to Noise"},
	"noise": {Unit: "dB", DeviceClass: "signal_strength", Icon: "mdi:waveform", Name: "Noise Floor"},
	"freq":  {Unit: "MHz", DeviceClass: "frequency", Icon: "mdi:sine-wave", Name: "Frequency"},

	// Utility meters
	"Consumption":      {Unit: "ft³", DeviceClass: "gas", Icon: "mdi:fire", Name: "Consumption", Category: Utility},
	"consumption_data": {Unit: "ft³", DeviceClass: "gas", Icon: "mdi:fire", Name: "Consumption", Category: Utility},
	"consumption":      {Unit: "ft³", DeviceClass: "gas", Icon: "mdi:fire", Name: "Consumption", Category: Utility},
	"meter_reading":    {Unit: "ft³", DeviceClass: "water", Icon: "mdi:water", Name: "Meter Reading", Category: Utility},
	"ert_type":         {Icon: "mdi:barcode", Name: "ERT Type", Category: CommodityHint},
	"MeterType":        {Icon: "mdi:gauge", Name: "Meter Type", Category: CommodityHint},
	"meter_type":       {Icon: "mdi:gauge", Name: "Meter Type", Category: CommodityHint},
	"type":             {Icon: "mdi:tag", Name: "Type", Category: CommodityHint},
}

func init() {
	// Decoders emit both spellings of the signal quality fields.
	builtin["rssi_dB"] = builtin["rssi"]
	builtin["snr_dB"] = builtin["snr"]
	builtin["noise_dB"] = builtin["noise"]
}

// Model specific entries take precedence over the generic table.
var builtinModels = map[string]map[string]Meta{
	"Neptune-R900": {
		"meter_reading": {Unit: "gal", DeviceClass: "water", Icon: "mdi:water", Name: "Meter Reading", Category: Utility},
	},
}
