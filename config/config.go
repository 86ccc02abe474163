// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package config loads the bridge configuration from a YAML or TOML file and
// the environment.
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/fieldmeta"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/ingest"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/internal/iso"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/mqtt"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/publisher"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type (
	// Config is the complete bridge configuration.
	Config struct {
		MQTT        mqtt.ConnectionSettings  `yaml:"mqtt"        toml:"mqtt"`
		Bridge      Bridge                   `yaml:"bridge"      toml:"bridge"`
		Aggregation Aggregation              `yaml:"aggregation" toml:"aggregation"`
		Devices     Devices                  `yaml:"devices"     toml:"devices"`
		Fields      map[string]FieldOverride `yaml:"fields"      toml:"fields"`
		Metrics     Metrics                  `yaml:"metrics"     toml:"metrics"`
		Log         Log                      `yaml:"log"         toml:"log"`
	}

	// Bridge configures topics and announcements.
	Bridge struct {
		Namespace         string       `yaml:"namespace"           toml:"namespace"`
		DiscoveryRoot     string       `yaml:"discovery_root"      toml:"discovery_root"`
		IDSuffix          string       `yaml:"id_suffix"           toml:"id_suffix"`
		EventsTopic       string       `yaml:"events_topic"        toml:"events_topic"`
		ExpireAfter       iso.Duration `yaml:"expire_after"        toml:"expire_after"`
		BatteryClearAfter iso.Duration `yaml:"battery_clear_after" toml:"battery_clear_after"`
		MainSensors       []string     `yaml:"main_sensors"        toml:"main_sensors"`
		GasUnit           string       `yaml:"gas_unit"            toml:"gas_unit"`
		Timezone          string       `yaml:"timezone"            toml:"timezone"`
	}

	// Aggregation configures the aggregation buffer.
	Aggregation struct {
		Interval        iso.Duration `yaml:"interval"          toml:"interval"`
		LastValueFields []string     `yaml:"last_value_fields" toml:"last_value_fields"`
	}

	// Devices configures which devices and event keys are bridged.
	Devices struct {
		Whitelist []string `yaml:"whitelist" toml:"whitelist"`
		Blacklist []string `yaml:"blacklist" toml:"blacklist"`
		SkipKeys  []string `yaml:"skip_keys" toml:"skip_keys"`
	}

	// FieldOverride replaces the announcement metadata of a field.
	FieldOverride struct {
		Unit        string  `yaml:"unit"         toml:"unit"`
		DeviceClass string  `yaml:"device_class" toml:"device_class"`
		Icon        string  `yaml:"icon"         toml:"icon"`
		Name        string  `yaml:"name"         toml:"name"`
		Divisor     float64 `yaml:"divisor"      toml:"divisor"`
	}

	// Metrics configures the Prometheus endpoint. An empty address disables
	// it.
	Metrics struct {
		Addr string `yaml:"addr" toml:"addr"`
		Path string `yaml:"path" toml:"path"`
	}

	// Log configures console logging.
	Log struct {
		Level   string `yaml:"level"    toml:"level"`
		NoColor bool   `yaml:"no_color" toml:"no_color"`
	}
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "RTL_BRIDGE_"

	// MQTTEnvPrefix prefixes MQTT connection overrides.
	MQTTEnvPrefix = EnvPrefix + "MQTT_"

	// ConnectionStringEnv holds an MQTT connection string replacing the
	// configured connection settings.
	ConnectionStringEnv = EnvPrefix + "CONNECTION_STRING"

	DefaultAggregationInterval = 30 * time.Second
)

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		MQTT: mqtt.ConnectionSettings{
			Hostname:  "localhost",
			KeepAlive: iso.Duration(60 * time.Second),
		},
		Bridge: Bridge{
			Namespace:         publisher.DefaultNamespace,
			DiscoveryRoot:     publisher.DefaultDiscoveryRoot,
			EventsTopic:       ingest.DefaultTopicFilter,
			BatteryClearAfter: iso.Duration(publisher.DefaultBatteryClearAfter),
			GasUnit:           string(fieldmeta.GasCubicFeet),
		},
		Aggregation: Aggregation{
			Interval:        iso.Duration(DefaultAggregationInterval),
			LastValueFields: []string{"battery_ok"},
		},
		Devices: Devices{
			SkipKeys: append([]string(nil), ingest.DefaultSkipKeys...),
		},
		Metrics: Metrics{
			Path: "/metrics",
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads the configuration file at name on top of the defaults. The format
// is chosen by extension. An empty name returns the defaults.
func Load(name string) (*Config, error) {
	cfg := Default()
	if name == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, &Error{
				Property: "file",
				Value:    name,
				Message:  "cannot decode YAML",
				wrapped:  err,
			}
		}
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, &Error{
				Property: "file",
				Value:    name,
				Message:  "cannot decode TOML",
				wrapped:  err,
			}
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, &Error{
				Property: undecoded[0].String(),
				Value:    name,
				Message:  "unknown key",
			}
		}
	default:
		return nil, &Error{
			Property: "file",
			Value:    name,
			Message:  "unsupported extension " + ext,
		}
	}
	return cfg, nil
}

// ApplyEnv overrides the configuration from environment entries ("KEY=value")
// prefixed with RTL_BRIDGE_. Lists are comma separated.
func (c *Config) ApplyEnv(environ []string) error {
	env := make(map[string]string)
	for _, e := range environ {
		k, v, ok := strings.Cut(e, "=")
		if ok && strings.HasPrefix(k, EnvPrefix) {
			env[strings.TrimPrefix(k, EnvPrefix)] = strings.TrimSpace(v)
		}
	}

	if connStr, ok := env["CONNECTION_STRING"]; ok {
		cs, err := mqtt.ParseConnectionString(connStr)
		if err != nil {
			return &Error{
				Property: "connection string",
				Value:    connStr,
				Message:  "cannot parse",
				wrapped:  err,
			}
		}
		c.MQTT = *cs
	}
	if err := c.MQTT.ApplyEnv(environ, MQTTEnvPrefix); err != nil {
		return err
	}

	for key, field := range map[string]*string{
		"NAMESPACE":      &c.Bridge.Namespace,
		"DISCOVERY_ROOT": &c.Bridge.DiscoveryRoot,
		"ID_SUFFIX":      &c.Bridge.IDSuffix,
		"EVENTS_TOPIC":   &c.Bridge.EventsTopic,
		"GAS_UNIT":       &c.Bridge.GasUnit,
		"TIMEZONE":       &c.Bridge.Timezone,
		"METRICS_ADDR":   &c.Metrics.Addr,
		"METRICS_PATH":   &c.Metrics.Path,
		"LOG_LEVEL":      &c.Log.Level,
	} {
		if v, ok := env[key]; ok {
			*field = v
		}
	}

	for key, field := range map[string]*[]string{
		"MAIN_SENSORS":      &c.Bridge.MainSensors,
		"LAST_VALUE_FIELDS": &c.Aggregation.LastValueFields,
		"WHITELIST":         &c.Devices.Whitelist,
		"BLACKLIST":         &c.Devices.Blacklist,
		"SKIP_KEYS":         &c.Devices.SkipKeys,
	} {
		if v, ok := env[key]; ok {
			*field = splitList(v)
		}
	}

	for key, field := range map[string]*iso.Duration{
		"AGGREGATION_INTERVAL": &c.Aggregation.Interval,
		"EXPIRE_AFTER":         &c.Bridge.ExpireAfter,
		"BATTERY_CLEAR_AFTER":  &c.Bridge.BatteryClearAfter,
	} {
		if v, ok := env[key]; ok {
			if err := field.UnmarshalText([]byte(v)); err != nil {
				return &Error{
					Property: EnvPrefix + key,
					Value:    v,
					Message:  "invalid duration",
					wrapped:  err,
				}
			}
		}
	}

	if v, ok := env["LOG_NO_COLOR"]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &Error{
				Property: EnvPrefix + "LOG_NO_COLOR",
				Value:    v,
				Message:  "invalid boolean",
				wrapped:  err,
			}
		}
		c.Log.NoColor = b
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate checks the configuration for values the bridge cannot run with.
func (c *Config) Validate() error {
	for name, d := range map[string]iso.Duration{
		"aggregation.interval":       c.Aggregation.Interval,
		"bridge.expire_after":        c.Bridge.ExpireAfter,
		"bridge.battery_clear_after": c.Bridge.BatteryClearAfter,
	} {
		if d < 0 {
			return &Error{
				Property: name,
				Value:    time.Duration(d),
				Message:  "must not be negative",
			}
		}
	}

	if !mqtt.IsValidTopicFilter(c.Bridge.EventsTopic) {
		return &Error{
			Property: "bridge.events_topic",
			Value:    c.Bridge.EventsTopic,
			Message:  "not a valid topic filter",
		}
	}
	for name, v := range map[string]string{
		"bridge.namespace":      c.Bridge.Namespace,
		"bridge.discovery_root": c.Bridge.DiscoveryRoot,
	} {
		if v == "" || strings.ContainsAny(v, "+#") {
			return &Error{
				Property: name,
				Value:    v,
				Message:  "must be a non-empty topic without wildcards",
			}
		}
	}

	switch fieldmeta.GasUnit(strings.ToLower(c.Bridge.GasUnit)) {
	case fieldmeta.GasCubicFeet, fieldmeta.GasCCF:
	default:
		return &Error{
			Property: "bridge.gas_unit",
			Value:    c.Bridge.GasUnit,
			Message:  "must be ft3 or ccf",
		}
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	for name, patterns := range map[string][]string{
		"devices.whitelist": c.Devices.Whitelist,
		"devices.blacklist": c.Devices.Blacklist,
	} {
		for _, p := range patterns {
			if _, err := path.Match(p, ""); err != nil {
				return &Error{
					Property: name,
					Value:    p,
					Message:  "malformed pattern",
					wrapped:  err,
				}
			}
		}
	}

	for field, o := range c.Fields {
		if o.Divisor < 0 {
			return &Error{
				Property: "fields." + field + ".divisor",
				Value:    o.Divisor,
				Message:  "must not be negative",
			}
		}
	}

	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, &Error{
			Property: "log.level",
			Value:    c.Log.Level,
			Message:  "unknown level",
			wrapped:  err,
		}
	}
	return level, nil
}

// Location returns the zone applied to event timestamps without one.
func (c *Config) Location() (*time.Location, error) {
	if c.Bridge.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Bridge.Timezone)
	if err != nil {
		return nil, &Error{
			Property: "bridge.timezone",
			Value:    c.Bridge.Timezone,
			Message:  "unknown zone",
			wrapped:  err,
		}
	}
	return loc, nil
}

// Overrides returns the field overrides as table metadata.
func (c *Config) Overrides() fieldmeta.WithOverrides {
	if len(c.Fields) == 0 {
		return nil
	}
	out := make(fieldmeta.WithOverrides, len(c.Fields))
	for field, o := range c.Fields {
		out[field] = fieldmeta.Meta{
			Unit:        o.Unit,
			DeviceClass: o.DeviceClass,
			Icon:        o.Icon,
			Name:        o.Name,
			Divisor:     o.Divisor,
		}
	}
	return out
}

// Table builds the field metadata table described by the configuration.
func (c *Config) Table() *fieldmeta.Table {
	return fieldmeta.NewTable(
		fieldmeta.WithGasUnit(strings.ToLower(c.Bridge.GasUnit)),
		c.Overrides(),
	)
}
