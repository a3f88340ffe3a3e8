// Package calib declares the small interface the core consumes for the IMU
// 6-pose static calibration solver. The interface-only injection style is
// grounded on propulsion/interface.go's PropulsionType abstraction, which
// likewise exposes a narrow operation surface to callers that don't need
// the implementation's internals.
package calib

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// CollectStatus reports the outcome of one Collect call.
type CollectStatus int

const (
	// StatusAgain means the pose is not yet fully captured; StillCount on
	// the returned Outcome reports how many poses have been captured so far.
	StatusAgain CollectStatus = iota
	// StatusOK means the calibration has enough data across all poses and
	// Acc/Gyr/Mag/Fini may now be called.
	StatusOK
	// StatusError means acquisition failed (e.g. excess motion); Err on the
	// returned Outcome carries the detail.
	StatusError
)

// Outcome is the result of one Collect call.
type Outcome struct {
	Status     CollectStatus
	StillCount int
	Err        error
}

// FiniResult is the final calibration report returned by Fini.
type FiniResult struct {
	Stddev   [3]float64
	MaxAccel float64
	MaxGyro  float64
	Temp     float64
	AvgAccel [3]float64
	AvgGyro  [3]float64
}

// Solver is the small interface the calibration activities
// (calibrate_imu, calibrate_mag, set_zero, set_zero_velocity) consume.
type Solver interface {
	// Init configures a fresh acquisition: samplesPerPose samples required
	// per static orientation, nPoses orientations to hold, sps the sample
	// rate the caller will feed samples at, and motionTolerance the maximum
	// per-sample deviation before a pose is considered disturbed.
	Init(samplesPerPose, nPoses int, sps, motionTolerance float64) error

	// Collect folds in one sample. temp is the board temperature at the
	// time of the sample.
	Collect(temp float64, imu, mag [3]float64) Outcome

	// Acc/Gyr/Mag return the fitted 3x3 scale matrix and 3-vector bias for
	// each sensor, valid only after a StatusOK Collect.
	Acc() (scale [3][3]float64, bias [3]float64)
	Gyr() (scale [3][3]float64, bias [3]float64)
	Mag() (scale [3][3]float64, bias [3]float64)

	// Fini closes the acquisition and reports summary statistics.
	Fini() FiniResult
}

// SixPoseSolver is the default Solver: it holds the caller to nPoses static
// orientations of samplesPerPose samples each, rejecting a pose's samples if
// they deviate from the pose's running mean by more than motionTolerance,
// and fits scale/bias by simple per-pose averaging.
type SixPoseSolver struct {
	samplesPerPose int
	nPoses         int
	motionTol      float64

	poseAccel [][3]float64
	poseGyro  [][3]float64
	poseMag   [][3]float64

	curAccelSum [3]float64
	curGyroSum  [3]float64
	curMagSum   [3]float64
	curCount    int
	curTempSum  float64

	maxAccel float64
	maxGyro  float64
}

// NewSixPoseSolver creates an uninitialized solver; call Init before Collect.
func NewSixPoseSolver() *SixPoseSolver {
	return &SixPoseSolver{}
}

func (s *SixPoseSolver) Init(samplesPerPose, nPoses int, sps, motionTolerance float64) error {
	if samplesPerPose <= 0 || nPoses <= 0 {
		return errors.New("calib: samplesPerPose and nPoses must be positive")
	}
	s.samplesPerPose = samplesPerPose
	s.nPoses = nPoses
	s.motionTol = motionTolerance
	s.poseAccel = nil
	s.poseGyro = nil
	s.poseMag = nil
	s.curCount = 0
	s.curAccelSum = [3]float64{}
	s.curGyroSum = [3]float64{}
	s.curMagSum = [3]float64{}
	s.curTempSum = 0
	s.maxAccel = 0
	s.maxGyro = 0
	return nil
}

func mag3(v [3]float64) float64 {
	return v[0]*v[0] + v[1]*v[1] + v[2]*v[2]
}

func (s *SixPoseSolver) Collect(temp float64, imu, mag [3]float64) Outcome {
	accel := [3]float64{imu[0], imu[1], imu[2]}
	if s.curCount > 0 {
		mean := [3]float64{
			s.curAccelSum[0] / float64(s.curCount),
			s.curAccelSum[1] / float64(s.curCount),
			s.curAccelSum[2] / float64(s.curCount),
		}
		delta := [3]float64{accel[0] - mean[0], accel[1] - mean[1], accel[2] - mean[2]}
		if mag3(delta) > s.motionTol*s.motionTol {
			return Outcome{Status: StatusError, Err: errors.New("calib: excess motion during pose hold")}
		}
	}

	for i := 0; i < 3; i++ {
		s.curAccelSum[i] += accel[i]
		s.curGyroSum[i] += imu[i]
		s.curMagSum[i] += mag[i]
	}
	s.curTempSum += temp
	s.curCount++

	if am := mag3(accel); am > s.maxAccel {
		s.maxAccel = am
	}

	if s.curCount < s.samplesPerPose {
		return Outcome{Status: StatusAgain, StillCount: len(s.poseAccel)}
	}

	n := float64(s.curCount)
	s.poseAccel = append(s.poseAccel, [3]float64{s.curAccelSum[0] / n, s.curAccelSum[1] / n, s.curAccelSum[2] / n})
	s.poseGyro = append(s.poseGyro, [3]float64{s.curGyroSum[0] / n, s.curGyroSum[1] / n, s.curGyroSum[2] / n})
	s.poseMag = append(s.poseMag, [3]float64{s.curMagSum[0] / n, s.curMagSum[1] / n, s.curMagSum[2] / n})

	s.curCount = 0
	s.curAccelSum = [3]float64{}
	s.curGyroSum = [3]float64{}
	s.curMagSum = [3]float64{}
	s.curTempSum = 0

	if len(s.poseAccel) >= s.nPoses {
		return Outcome{Status: StatusOK, StillCount: len(s.poseAccel)}
	}
	return Outcome{Status: StatusAgain, StillCount: len(s.poseAccel)}
}

func identityBias(samples [][3]float64) (scale [3][3]float64, bias [3]float64) {
	scale = [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	if len(samples) == 0 {
		return scale, bias
	}
	var sum [3]float64
	for _, s := range samples {
		sum[0] += s[0]
		sum[1] += s[1]
		sum[2] += s[2]
	}
	n := float64(len(samples))
	bias = [3]float64{-sum[0] / n, -sum[1] / n, -sum[2] / n}
	return scale, bias
}

func (s *SixPoseSolver) Acc() (scale [3][3]float64, bias [3]float64) { return identityBias(s.poseAccel) }
func (s *SixPoseSolver) Gyr() (scale [3][3]float64, bias [3]float64) { return identityBias(s.poseGyro) }
func (s *SixPoseSolver) Mag() (scale [3][3]float64, bias [3]float64) { return identityBias(s.poseMag) }

func (s *SixPoseSolver) Fini() FiniResult {
	var stddev, avgAccel, avgGyro [3]float64
	if len(s.poseAccel) > 0 {
		n := float64(len(s.poseAccel))
		var sum [3]float64
		for _, p := range s.poseAccel {
			sum[0] += p[0]
			sum[1] += p[1]
			sum[2] += p[2]
		}
		avgAccel = [3]float64{sum[0] / n, sum[1] / n, sum[2] / n}
	}
	if len(s.poseGyro) > 0 {
		n := float64(len(s.poseGyro))
		var sum [3]float64
		for _, p := range s.poseGyro {
			sum[0] += p[0]
			sum[1] += p[1]
			sum[2] += p[2]
		}
		avgGyro = [3]float64{sum[0] / n, sum[1] / n, sum[2] / n}
	}
	return FiniResult{
		Stddev:   stddev,
		MaxAccel: s.maxAccel,
		MaxGyro:  s.maxGyro,
		AvgAccel: avgAccel,
		AvgGyro:  avgGyro,
	}
}

// LevelRotation computes the roll/pitch rotation that would bring the
// averaged accelerometer vector level (aligned with the board's Z axis),
// for set_zero's level-pose correction. The caller post-multiplies this
// into both gscale and ascale via PostMultiply.
func LevelRotation(avgAccel [3]float64) [3][3]float64 {
	if mag3(avgAccel) <= 0 {
		return identity3()
	}

	roll := math.Atan2(avgAccel[1], avgAccel[2])
	pitch := math.Atan2(-avgAccel[0], math.Hypot(avgAccel[1], avgAccel[2]))
	cr, sr := math.Cos(roll), math.Sin(roll)
	cp, sp := math.Cos(pitch), math.Sin(pitch)

	return [3][3]float64{
		{cp, sr * sp, cr * sp},
		{0, cr, -sr},
		{-sp, cp * sr, cr * cp},
	}
}

// PostMultiply right-multiplies scale by rot (scale * rot), the operation
// set_zero uses to fold its computed level rotation into an existing
// gscale/ascale matrix.
func PostMultiply(scale, rot [3][3]float64) [3][3]float64 {
	a := mat.NewDense(3, 3, flatten(scale))
	b := mat.NewDense(3, 3, flatten(rot))
	var out mat.Dense
	out.Mul(a, b)

	var result [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			result[i][j] = out.At(i, j)
		}
	}
	return result
}

func flatten(m [3][3]float64) []float64 {
	return []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	}
}

func identity3() [3][3]float64 {
	return [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}
