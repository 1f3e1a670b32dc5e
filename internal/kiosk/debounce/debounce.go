// Package debounce filters noisy distance-sensor readings into clean
// object-present triggers.
//
// A trigger fires only when a run of consecutive samples sits inside the
// valid distance band and the debounce window since the previous trigger
// has elapsed. Any out-of-band sample resets the run completely: a
// transient reflection or vibration earns no partial credit.
package debounce

import "time"

// DistanceSample is one timestamped distance reading from the sensor.
type DistanceSample struct {
	CM float64
	At time.Time
}

// Debouncer turns a polled stream of distance samples into discrete
// detection triggers. It holds no classification or network concerns.
//
// Not safe for concurrent use; the detector loop is the only caller.
type Debouncer struct {
	minCM       float64
	maxCM       float64
	required    int
	window      time.Duration
	consecutive int
	lastTrigger time.Time
}

// New creates a debouncer.
//
// Parameters:
//   - minCM, maxCM: the valid distance band; readings below minCM are
//     treated as sensor noise, readings above maxCM as "no object"
//   - required: consecutive in-band samples needed before a trigger
//   - window: minimum time between two triggers
func New(minCM, maxCM float64, required int, window time.Duration) *Debouncer {
	if required < 1 {
		required = 1
	}
	return &Debouncer{
		minCM:    minCM,
		maxCM:    maxCM,
		required: required,
		window:   window,
	}
}

// Observe feeds one sample in and reports whether an object-present
// trigger fires on this sample. After a trigger the run counter resets,
// so a continuously present object yields at most one trigger per
// debounce window.
func (d *Debouncer) Observe(s DistanceSample) bool {
	if s.CM < d.minCM || s.CM > d.maxCM {
		d.consecutive = 0
		return false
	}

	d.consecutive++
	if d.consecutive < d.required {
		return false
	}

	if !d.lastTrigger.IsZero() && s.At.Sub(d.lastTrigger) < d.window {
		// Still inside the debounce window; keep the counter saturated
		// so the trigger fires as soon as the window opens.
		d.consecutive = d.required
		return false
	}

	d.lastTrigger = s.At
	d.consecutive = 0
	return true
}

// Reset clears the run counter without touching the debounce window.
// Called when the detector loop resumes after a classification cycle.
func (d *Debouncer) Reset() {
	d.consecutive = 0
}
