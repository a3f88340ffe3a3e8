// Package filter implements per-axis calibration (3x3 scale + bias) followed
// by a first-order IIR low-pass. The matrix plumbing is grounded on
// fusion/ekf.go's use of gonum.org/v1/gonum/mat for its state vector and
// covariance; here the same library backs a much smaller 3x3 scale
// multiply instead of a Kalman gain.
package filter

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Calibration holds one axis group's (gyro, accel, or mag) scale matrix,
// bias vector, and noise stddev.
type Calibration struct {
	Scale  [3][3]float64
	Bias   [3]float64
	Stddev [3]float64
}

// Apply runs the calibration step: bias is added before the scale multiply,
// an order that's easy to get backwards.
func (c Calibration) Apply(raw [3]float64) [3]float64 {
	v := mat.NewVecDense(3, []float64{
		raw[0] + c.Bias[0],
		raw[1] + c.Bias[1],
		raw[2] + c.Bias[2],
	})
	scale := mat.NewDense(3, 3, []float64{
		c.Scale[0][0], c.Scale[0][1], c.Scale[0][2],
		c.Scale[1][0], c.Scale[1][1], c.Scale[1][2],
		c.Scale[2][0], c.Scale[2][1], c.Scale[2][2],
	})

	var in mat.VecDense
	in.MulVec(scale, v)
	return [3]float64{in.AtVec(0), in.AtVec(1), in.AtVec(2)}
}

// CovarianceDiagonal returns the diagonal-only covariance (stddev squared,
// cross-terms zero) published alongside a calibrated sample.
func (c Calibration) CovarianceDiagonal() [3]float64 {
	return [3]float64{c.Stddev[0] * c.Stddev[0], c.Stddev[1] * c.Stddev[1], c.Stddev[2] * c.Stddev[2]}
}

// IdentityCalibration returns a no-op calibration: identity scale, zero bias.
func IdentityCalibration() Calibration {
	return Calibration{Scale: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
}

// AlphaOf derives the IIR coefficient from a user-facing cutoff fc and
// sample rate r. fc<=0 disables filtering (alpha=1, passthrough).
func AlphaOf(fc, r float64) float64 {
	if fc <= 0 || r <= 0 {
		return 1
	}
	wc := 2 * math.Pi / r
	return wc * fc / (wc*fc + 1)
}

// FcOf inverts AlphaOf: recovers the cutoff frequency implied by a
// coefficient and rate. alpha>=1 maps back to fc=0.
func FcOf(alpha, r float64) float64 {
	if alpha >= 1 || r <= 0 {
		return 0
	}
	return (r / (2 * math.Pi)) * alpha / (1 - alpha)
}

// Axis is the running first-order IIR state for one 3-vector channel
// (gyro, accel, or mag).
type Axis struct {
	Alpha float64
	out   [3]float64
	in    [3]float64
	valid bool
}

// NewAxis creates filter state with the given initial coefficient.
func NewAxis(alpha float64) *Axis {
	return &Axis{Alpha: alpha}
}

// Step applies calibration then the IIR update, returning the filtered
// output. Alpha=1 degenerates to passthrough (out==in every step).
func (f *Axis) Step(raw [3]float64, cal Calibration) [3]float64 {
	in := cal.Apply(raw)
	f.in = in
	if !f.valid {
		f.out = in
		f.valid = true
		return f.out
	}
	for i := 0; i < 3; i++ {
		f.out[i] += f.Alpha * (in[i] - f.out[i])
	}
	return f.out
}

// LastInput returns the calibrated-but-unfiltered value from the most
// recent Step call, used by the logger to print both raw and filtered
// columns.
func (f *Axis) LastInput() [3]float64 { return f.in }

// Reset clears the filter's validity, so the next Step starts fresh.
// Re-deriving alpha after a sensor-rate change does not call it.
func (f *Axis) Reset() {
	f.valid = false
}
