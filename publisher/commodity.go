// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package publisher

import (
	"context"
	"log/slog"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/derive"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/telemetry"
)

// Applies a commodity hint reading to its entity. When the commodity changes,
// every announced utility field whose metadata changes with it is announced
// again and its last value republished under the new metadata.
//
// The most recent known hint wins, even when it contradicts an earlier one from
// a different hint field.
func (p *Publisher) hint(
	ctx context.Context,
	id string,
	es *entity,
	r telemetry.Reading,
) []*message {
	c, ok := derive.CommodityFromHint(r.Field, r.Value)
	if !ok || c == telemetry.CommodityUnknown || c == es.commodity {
		return nil
	}

	p.log.Info(ctx, "commodity inferred",
		slog.String("entity", id),
		slog.String("from", es.commodity.String()),
		slog.String("to", c.String()),
		slog.String("hint", r.Field),
	)
	es.commodity = c
	es.generation++
	p.metrics.RecordCommodityChange(c.String())

	var msgs []*message
	for _, e := range es.utilities {
		meta := p.table.Resolve(e.field, e.model, c)
		if e.announced && sameAnnouncement(e.meta, meta) {
			continue
		}

		e.announced, e.meta = true, meta
		msgs = append(msgs, p.discovery(e, meta))
		if e.raw != nil {
			msgs = append(msgs, p.state(ctx, e, meta.Convert(e.raw), true))
		}
	}
	return msgs
}
