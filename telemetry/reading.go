// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package telemetry holds the reading type shared by the aggregation and
// publishing stages, along with helpers for the loosely typed values decoded
// from radio events.
package telemetry

import (
	"log/slog"
	"strings"
	"time"
)

// Reading is a single observation of one field of one physical device.
type Reading struct {
	// EntityID identifies the physical device as reported by the decoder
	// (device id, channel or MAC). It is sanitized before use in topics.
	EntityID string

	// Field is the measurement name, e.g. "temperature" or "battery_ok".
	Field string

	// Value is one of int64, float64, string or bool. Nil values are never
	// aggregated or published.
	Value any

	// DisplayName is the human-facing device name.
	DisplayName string

	// Model is the decoder's model string.
	Model string

	// Timestamp is when the reading was observed.
	Timestamp time.Time
}

// Attrs returns the reading as structured log attributes.
func (r *Reading) Attrs() []slog.Attr {
	return []slog.Attr{
		slog.String("entity_id", r.EntityID),
		slog.String("field", r.Field),
		slog.Any("value", r.Value),
		slog.String("model", r.Model),
	}
}

// Sanitize reduces an entity identifier to lowercase alphanumerics, the form
// used inside topics and unique ids. An identifier with no usable characters
// becomes "unknown".
func Sanitize(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
