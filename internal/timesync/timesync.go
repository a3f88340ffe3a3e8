// Package timesync reconstructs a monotonic, drift-corrected source
// timestamp from an 8-bit sequence counter and a noisy arrival time, using
// Olson passive synchronization. It is a from-scratch state machine; the
// "state struct plus an Update method" shape (here without a mutex) is grounded on
// fusion/ekf.go's ExtendedKalmanFilter, the closest analogue in this
// codebase's reference corpus to a per-channel running estimator.
package timesync

import "math"

// dsResetThreshold is the modular sequence gap beyond which the offset
// estimator is considered stale and reset rather than nudged.
const dsResetThreshold = 16

// realtimeDivergence bounds how far the reconstructed timestamp may drift
// from the raw arrival time before the offset is snapped back.
const realtimeDivergence = 0.005

// rgainFloor is the minimum step size for the rate-tracking gain.
const rgainFloor = 0.01

// Timestamper holds the per-channel running state for one sensor stream.
type Timestamper struct {
	initialized bool

	seq    uint8
	last   float64
	ts     float64
	offset float64

	rmed   float64
	rgain  float64
	rerr   float64
	lprate float64
}

// New creates a Timestamper seeded with a channel's nominal rate, used only
// to give the rate tracker a sane starting point before the first sample.
func New(nominalRate float64) *Timestamper {
	seed := nominalRate
	if seed <= 0 {
		seed = 1
	}
	return &Timestamper{
		offset: math.Inf(-1),
		rmed:   seed,
		rgain:  1.0,
		lprate: seed,
	}
}

// Reset clears the offset estimator, forcing the next Update to resynchronize
// as if this were the channel's first sample's time base. Used by
// set_sensor_rate when a channel's nominal rate changes.
func (t *Timestamper) Reset() {
	t.offset = math.Inf(-1)
}

// Update folds in one arrival with sequence s, raw arrival time a (seconds,
// already epoch-reduced by the caller), and nominal rate r (Hz; 0 disables
// rate-based advancement). It returns the reconstructed source timestamp and
// the smoothed measured rate.
func (t *Timestamper) Update(s uint8, a float64, r float64) (ts float64, rate float64) {
	if !t.initialized {
		t.initialized = true
		t.seq = s
		t.last = a
		t.ts = a
		t.offset = 0
		if r > 0.1 {
			t.rmed = r
			t.lprate = r
		}
		return a, t.lprate
	}

	df := 1 / (a - t.last)
	if df > t.rmed {
		t.rerr = (3*t.rerr + 1) / 4
	} else {
		t.rerr = (3*t.rerr - 1) / 4
	}
	if math.Abs(t.rerr) > 0.75 {
		t.rgain *= 2
	} else {
		t.rgain /= 2
	}
	if t.rgain < rgainFloor {
		t.rgain = rgainFloor
	}
	if df > t.rmed {
		t.rmed += t.rgain
	} else {
		t.rmed -= t.rgain
	}
	t.lprate += 0.1 * (t.rmed - t.lprate)

	ds := s - t.seq // modular u8 subtraction
	if ds > dsResetThreshold {
		t.offset = math.Inf(-1)
	} else if r > 0.1 {
		t.offset -= 0.001 * float64(ds) / r
	} else {
		t.offset = 0
	}

	t.last = a
	t.seq = s
	if r > 0.1 {
		t.ts += float64(ds) / r
	} else {
		t.ts = a
	}

	if t.ts-a > t.offset {
		t.offset = t.ts - a
	}

	if a-(t.ts-t.offset) > realtimeDivergence {
		t.offset = t.ts - a
	} else {
		a = t.ts - t.offset
	}

	return a, t.lprate
}

// Rate reports the most recently smoothed measured rate without consuming a
// sample (used by the rate watchdog).
func (t *Timestamper) Rate() float64 { return t.lprate }

// Decay ages the measured rate toward 0 when a channel has gone quiet for
// more than 10x its nominal period.
func (t *Timestamper) Decay(quietFor, nominalPeriod float64) {
	if nominalPeriod <= 0 {
		return
	}
	if quietFor > 10*nominalPeriod {
		t.lprate = 0
	}
}

// Seconds splits a reconstructed source timestamp (seconds, epoch-reduced)
// into the public {sec, nsec} form after reintroducing epoch, guaranteeing
// 0 <= nsec < 1e9.
func Seconds(ts float64, epoch int64) (sec int64, nsec int64) {
	whole := math.Floor(ts)
	frac := ts - whole
	sec = epoch + int64(whole)
	nsec = int64(math.Round(frac * 1e9))
	if nsec >= 1_000_000_000 {
		sec++
		nsec -= 1_000_000_000
	}
	if nsec < 0 {
		sec--
		nsec += 1_000_000_000
	}
	return sec, nsec
}
