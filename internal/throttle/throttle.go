// Package throttle holds the single time-based firing rule shared by progress
// speaking, poll pacing and dedup expiry.
package throttle

import "time"

// Fire reports whether an event last seen at last may fire again at now given
// interval, and returns the event time to record. A zero last always fires.
// When the event does not fire, last is returned unchanged.
func Fire(last, now time.Time, interval time.Duration) (bool, time.Time) {
	if last.IsZero() || interval <= 0 {
		return true, now
	}
	if now.Sub(last) >= interval {
		return true, now
	}
	return false, last
}

// Expired reports whether something created at createdAt has outlived window.
// It is Fire without bookkeeping.
func Expired(createdAt, now time.Time, window time.Duration) bool {
	if createdAt.IsZero() {
		return true
	}
	fire, _ := Fire(createdAt, now, window)
	return fire
}

// Seconds converts a caller-supplied seconds knob to a duration, clamping
// negatives to zero.
func Seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
