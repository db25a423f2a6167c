// Package track implements the rolling-window momentum signals: sportsbook
// probability velocity per event, order-book pressure per ticker, and the
// composite momentum score that gates trade signals.
package track

import (
	"math"
	"sync"
	"time"
)

// sample is one observation in a bounded FIFO window.
type sample struct {
	at    time.Time
	value float64
}

// VelocityTracker scores the rate of change of sportsbook implied
// probability per event. A repeated identical probability is almost always a
// stale upstream cache, so it records a zero score and is excluded from the
// derivative.
type VelocityTracker struct {
	mu      sync.Mutex
	window  int
	scale   float64 // probability-per-second → score conversion
	samples map[string][]sample
}

// NewVelocityTracker creates a tracker keeping up to window samples per
// event. scale converts the probability derivative (per second) into the
// 0–100 score range.
func NewVelocityTracker(window int, scale float64) *VelocityTracker {
	if window < 2 {
		window = 2
	}
	return &VelocityTracker{
		window:  window,
		scale:   scale,
		samples: make(map[string][]sample),
	}
}

// Observe records an implied-probability sample (0–1) for an event and
// returns the current velocity score in [0, 100].
func (v *VelocityTracker) Observe(eventID string, at time.Time, p float64) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	window := v.samples[eventID]
	if n := len(window); n > 0 && window[n-1].value == p {
		// Unchanged value: upstream cache, no information.
		return 0
	}

	window = append(window, sample{at: at, value: p})
	if len(window) > v.window {
		window = window[len(window)-v.window:]
	}
	v.samples[eventID] = window

	return scoreDerivative(window, v.scale)
}

// Drop forgets an event's window (game finished or unmatched).
func (v *VelocityTracker) Drop(eventID string) {
	v.mu.Lock()
	delete(v.samples, eventID)
	v.mu.Unlock()
}

// scoreDerivative computes Δvalue/Δt over the oldest→newest pair of the
// window and maps it through scale, clamped to [0, 100]. Falling values
// score zero: momentum only ever confirms a buy.
func scoreDerivative(window []sample, scale float64) int {
	if len(window) < 2 {
		return 0
	}
	oldest, newest := window[0], window[len(window)-1]
	dt := newest.at.Sub(oldest.at).Seconds()
	if dt <= 0 {
		return 0
	}
	rate := (newest.value - oldest.value) / dt
	return clampScore(rate * scale)
}

func clampScore(s float64) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return int(math.Round(s))
}
