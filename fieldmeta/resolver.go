// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package fieldmeta

import (
	"maps"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/telemetry"
)

type (
	// GasUnit selects how gas meter totals are reported.
	GasUnit string

	// Table resolves field metadata, including user overrides and the
	// commodity-aware handling of utility meter fields.
	Table struct {
		fields  map[string]Meta
		models  map[string]map[string]Meta
		gasUnit GasUnit
	}

	// Option represents a single table option.
	Option interface{ table(*Table) }

	// WithGasUnit selects cubic feet or CCF for gas meter totals.
	WithGasUnit GasUnit

	// WithOverrides replaces or adds table entries for specific fields.
	WithOverrides map[string]Meta
)

const (
	GasCubicFeet GasUnit = "ft3"
	GasCCF       GasUnit = "ccf"
)

// NewTable creates a table seeded with the builtin field metadata.
func NewTable(opts ...Option) *Table {
	t := &Table{
		fields:  maps.Clone(builtin),
		models:  make(map[string]map[string]Meta, len(builtinModels)),
		gasUnit: GasCubicFeet,
	}
	for model, fields := range builtinModels {
		t.models[model] = maps.Clone(fields)
	}
	for _, o := range opts {
		if o != nil {
			o.table(t)
		}
	}
	return t
}

func (o WithGasUnit) table(t *Table) {
	if GasUnit(o) == GasCCF {
		t.gasUnit = GasCCF
	} else {
		t.gasUnit = GasCubicFeet
	}
}

func (o WithOverrides) table(t *Table) {
	for field, meta := range o {
		// Overrides may not know about categories; keep the builtin tag.
		if meta.Category == Generic {
			meta.Category = t.fields[field].Category
		}
		if meta.Name == "" {
			meta.Name = FriendlyName(field)
		}
		t.fields[field] = meta
	}
}

// Lookup returns the static metadata for a field, preferring a model-specific
// entry, then the field table, then the default.
func (t *Table) Lookup(field, model string) Meta {
	if fields, ok := t.models[model]; ok {
		if meta, ok := fields[field]; ok {
			return meta
		}
	}
	if meta, ok := t.fields[field]; ok {
		return meta
	}
	return Default(field)
}

// Resolve returns the metadata for a field given the commodity inferred for
// its device. Utility fields take the commodity's unit and device class; a
// model-specific unit still wins so meters with native units keep them.
func (t *Table) Resolve(
	field string,
	model string,
	commodity telemetry.Commodity,
) Meta {
	meta := t.Lookup(field, model)
	if meta.Category != Utility {
		return meta
	}

	_, modelSpecific := t.models[model][field]

	switch commodity {
	case telemetry.CommodityGas:
		meta.DeviceClass, meta.Icon = "gas", "mdi:fire"
		if !modelSpecific {
			meta.Unit = "ft³"
			if t.gasUnit == GasCCF {
				meta.Unit, meta.Divisor = "CCF", 100
			}
		}
	case telemetry.CommodityElectric:
		meta.DeviceClass, meta.Icon = "energy", "mdi:flash"
		if !modelSpecific {
			meta.Unit = "kWh"
		}
	case telemetry.CommodityWater:
		meta.DeviceClass, meta.Icon = "water", "mdi:water"
		if !modelSpecific {
			meta.Unit = "ft³"
		}
	}
	return meta
}
