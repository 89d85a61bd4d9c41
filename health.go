package annostore

import (
	"sync/atomic"
	"time"
)

// healthTracker is an advisory latch for index mirror availability.
//
// A failed mirror call marks the mirror down; while down, the search
// router skips it entirely. After the cooldown the router is allowed
// one bounded-time probe to decide whether to trust it again. The
// state is advisory and may flap; writes consult only the mode switch,
// never this latch.
type healthTracker struct {
	cooldown time.Duration
	// downSince is the unix-nano timestamp of the most recent observed
	// failure, 0 when healthy. Every failure restarts the cooldown.
	downSince atomic.Int64
}

func newHealthTracker(cooldown time.Duration) *healthTracker {
	return &healthTracker{cooldown: cooldown}
}

func (h *healthTracker) markDown(now time.Time) {
	h.downSince.Store(now.UnixNano())
}

func (h *healthTracker) markUp() {
	h.downSince.Store(0)
}

func (h *healthTracker) healthy() bool {
	return h.downSince.Load() == 0
}

// shouldProbe reports whether the cooldown has elapsed since the latch
// opened.
func (h *healthTracker) shouldProbe(now time.Time) bool {
	down := h.downSince.Load()
	if down == 0 {
		return false
	}
	return now.Sub(time.Unix(0, down)) >= h.cooldown
}
