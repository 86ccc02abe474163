// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package wallclock

import (
	"sync"
	"time"
)

// Manual is a WallClock whose apparent time only moves when Advance or Set is
// called. Timers and tickers still run on real time; only Now is controlled.
type Manual struct {
	wallClock

	mu  sync.Mutex
	now time.Time
}

// NewManual creates a manual clock starting at the given instant.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current apparent time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves apparent time forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set moves apparent time to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}
