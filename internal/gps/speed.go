package gps

import (
	"sync"
	"time"

	"github.com/relabs-tech/activity_classifier/internal/timeutil"
)

// SpeedHint keeps the most recent valid ground speed. It satisfies
// classifier.SpeedProvider.
type SpeedHint struct {
	maxAge time.Duration
	clock  timeutil.Clock

	mu  sync.Mutex
	mps float64
	at  time.Time
	set bool
}

// NewSpeedHint returns a hint whose value goes stale after maxAge.
func NewSpeedHint(maxAge time.Duration, clock timeutil.Clock) *SpeedHint {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SpeedHint{maxAge: maxAge, clock: clock}
}

// Update records fix if the receiver marked it valid.
func (h *SpeedHint) Update(fix Fix) {
	if !fix.Valid() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mps = fix.SpeedMPS()
	h.at = h.clock.Now()
	h.set = true
}

// Speed returns the last speed in m/s, or false when none is fresh.
func (h *SpeedHint) Speed() (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.set || h.clock.Since(h.at) > h.maxAge {
		return 0, false
	}
	return h.mps, true
}
