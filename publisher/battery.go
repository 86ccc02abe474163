// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package publisher

import (
	"time"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/telemetry"
)

// Binary sensor payloads; ON means the battery is low.
const (
	payloadOn  = "ON"
	payloadOff = "OFF"
)

// batteryLatch holds a low battery alarm until the battery has reported OK
// continuously for the clear window.
type batteryLatch struct {
	low      bool
	lastOKAt time.Time
}

// update feeds one raw battery_ok reading (0 is low) into the latch and returns
// the payload to publish. Values that are not numeric bypass the latch.
func (l *batteryLatch) update(
	raw any,
	now time.Time,
	clearAfter time.Duration,
) (string, bool) {
	f, ok := telemetry.Parse(raw)
	if !ok {
		return "", false
	}

	if f == 0 {
		l.low = true
		l.lastOKAt = time.Time{}
		return payloadOn, true
	}

	switch {
	case !l.low:
		return payloadOff, true
	case l.lastOKAt.IsZero():
		l.lastOKAt = now
		return payloadOn, true
	case now.Sub(l.lastOKAt) >= clearAfter:
		l.low = false
		l.lastOKAt = time.Time{}
		return payloadOff, true
	default:
		return payloadOn, true
	}
}
