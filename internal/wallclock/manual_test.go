// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package wallclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManualClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewManual(start)

	require.Equal(t, start, clock.Now())

	clock.Advance(11 * time.Second)
	require.Equal(t, start.Add(11*time.Second), clock.Now())

	clock.Set(start)
	require.Equal(t, start, clock.Now())
}

func TestManualClockTimersUseRealTime(t *testing.T) {
	clock := NewManual(time.Time{})

	select {
	case <-clock.After(time.Millisecond):
	case <-time.After(time.Second):
		require.Fail(t, "timer did not fire")
	}
}
