// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

// Commodity is what a utility meter measures.
type Commodity string

const (
	CommodityUnknown  Commodity = ""
	CommodityGas      Commodity = "gas"
	CommodityWater    Commodity = "water"
	CommodityElectric Commodity = "electric"
)

// String returns the commodity name, with "unknown" for the zero value.
func (c Commodity) String() string {
	if c == CommodityUnknown {
		return "unknown"
	}
	return string(c)
}
