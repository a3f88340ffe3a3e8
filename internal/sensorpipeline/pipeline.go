// Package sensorpipeline dispatches decoded frames into IMU/Mag/Motor/
// Battery state, driving the Timestamper and Filter components on every
// frame. It owns the per-channel timing and filter state for the process
// lifetime, the same way fusion/ekf.go owns its Kalman state across Update
// calls.
package sensorpipeline

import (
	"math"

	"github.com/rotorbridge/rotorbridge/internal/codec"
	"github.com/rotorbridge/rotorbridge/internal/connection"
	"github.com/rotorbridge/rotorbridge/internal/filter"
	"github.com/rotorbridge/rotorbridge/internal/rotor"
	"github.com/rotorbridge/rotorbridge/internal/timesync"
)

// codecParserOf wraps a decoded payload for field-by-field reads, already
// positioned past the one-byte tag.
func codecParserOf(payload []byte) *codec.Parser {
	return codec.NewParser(payload).Skip()
}

// IMURecord is the published accelerometer+gyro+temperature sample.
type IMURecord struct {
	Sec, Nsec int64
	Present   bool
	Accel     [3]float64
	AccelRaw  [3]float64 // calibrated, pre-filter
	AccelCov  [3]float64
	Gyro      [3]float64
	GyroRaw   [3]float64
	GyroCov   [3]float64
	HasTemp   bool
	Temp      float64
}

// MagRecord is the published magnetometer sample.
type MagRecord struct {
	Sec, Nsec int64
	Present   bool
	Mag       [3]float64
	MagRaw    [3]float64
	Cov       [3]float64
}

// Pipeline holds all per-channel timing and filter state plus the most
// recently published records.
type Pipeline struct {
	Epoch int64

	imuTS     *timesync.Timestamper
	magTS     *timesync.Timestamper
	motorTS   [rotor.MaxRotors]*timesync.Timestamper
	batteryTS *timesync.Timestamper

	imuSeq, magSeq, batSeq       uint8
	imuHasSeq, magHasSeq, batHasSeq bool
	motorSeq    [rotor.MaxRotors]uint8
	motorHasSeq [rotor.MaxRotors]bool

	GyroFilter  *filter.Axis
	AccelFilter *filter.Axis
	MagFilter   *filter.Axis

	GyroCal  filter.Calibration
	AccelCal filter.Calibration
	MagCal   filter.Calibration

	GyroFC, AccelFC, MagFC float64

	ImuRate, MagRate, MotorRate, BatteryRate float64

	IMUOut IMURecord
	MagOut MagRecord

	Rotors  *rotor.Set
	Battery *rotor.Battery
}

// New creates a Pipeline with passthrough filters and identity calibration,
// ready to have SetSensorRate and set_imu_calibration applied.
func New(epoch int64, rotors *rotor.Set, battery *rotor.Battery) *Pipeline {
	p := &Pipeline{
		Epoch:       epoch,
		imuTS:       timesync.New(0),
		magTS:       timesync.New(0),
		batteryTS:   timesync.New(0),
		GyroFilter:  filter.NewAxis(1),
		AccelFilter: filter.NewAxis(1),
		MagFilter:   filter.NewAxis(1),
		GyroCal:     filter.IdentityCalibration(),
		AccelCal:    filter.IdentityCalibration(),
		MagCal:      filter.IdentityCalibration(),
		Rotors:      rotors,
		Battery:     battery,
	}
	for i := range p.motorTS {
		p.motorTS[i] = timesync.New(0)
	}
	return p
}

// ResetTiming forces every channel's offset estimator to resynchronize, used
// by set_sensor_rate whenever the nominal rate changes.
func (p *Pipeline) ResetTiming() {
	p.imuTS.Reset()
	p.magTS.Reset()
	p.batteryTS.Reset()
	for _, ts := range p.motorTS {
		ts.Reset()
	}
}

// RefreshFilterAlpha re-derives each axis group's alpha from its preserved
// fc and the (possibly just-changed) nominal rate.
func (p *Pipeline) RefreshFilterAlpha() {
	p.GyroFilter.Alpha = filter.AlphaOf(p.GyroFC, p.ImuRate)
	p.AccelFilter.Alpha = filter.AlphaOf(p.AccelFC, p.ImuRate)
	p.MagFilter.Alpha = filter.AlphaOf(p.MagFC, p.MagRate)
}

// IMUMeasuredRate returns the most recently smoothed measured IMU rate.
func (p *Pipeline) IMUMeasuredRate() float64 { return p.imuTS.Rate() }

// MagMeasuredRate returns the most recently smoothed measured mag rate.
func (p *Pipeline) MagMeasuredRate() float64 { return p.magTS.Rate() }

// MotorMeasuredRate returns the measured rate for rotor id (1-based).
func (p *Pipeline) MotorMeasuredRate(id int) float64 {
	idx := id - 1
	if idx < 0 || idx >= len(p.motorTS) {
		return 0
	}
	return p.motorTS[idx].Rate()
}

// Handle dispatches one decoded frame. arrival is the local receive time in
// the same epoch-reduced domain as Pipeline.Epoch.
func (p *Pipeline) Handle(f connection.Frame, arrival float64) {
	if len(f.Payload) == 0 {
		return
	}
	switch f.Payload[0] {
	case 'I':
		p.handleIMU(f, arrival)
	case 'C':
		p.handleMag(f, arrival)
	case 'M':
		p.handleMotor(f, arrival)
	case 'B':
		p.handleBattery(f, arrival)
	case 'T':
		p.handleClkrate(f)
	}
}

func resSeconds(ts float64, epoch int64) (int64, int64) {
	return timesync.Seconds(ts, epoch)
}

func (p *Pipeline) handleIMU(f connection.Frame, arrival float64) {
	payload := f.Payload
	if len(payload) != 14 && len(payload) != 16 {
		return
	}
	parser := codecParserOf(payload)
	seq := parser.U8()
	if p.imuHasSeq && seq == p.imuSeq {
		return
	}
	p.imuHasSeq = true
	p.imuSeq = seq

	ax, ay, az := parser.I16(), parser.I16(), parser.I16()
	gx, gy, gz := parser.I16(), parser.I16(), parser.I16()

	res := f.Link.Device
	accelRaw := [3]float64{float64(ax) * res.AccelRes, float64(ay) * res.AccelRes, float64(az) * res.AccelRes}
	gyroRaw := [3]float64{float64(gx) * res.GyroRes, float64(gy) * res.GyroRes, float64(gz) * res.GyroRes}

	p.IMUOut.Accel = p.AccelFilter.Step(accelRaw, p.AccelCal)
	p.IMUOut.AccelRaw = p.AccelFilter.LastInput()
	p.IMUOut.AccelCov = p.AccelCal.CovarianceDiagonal()
	p.IMUOut.Gyro = p.GyroFilter.Step(gyroRaw, p.GyroCal)
	p.IMUOut.GyroRaw = p.GyroFilter.LastInput()
	p.IMUOut.GyroCov = p.GyroCal.CovarianceDiagonal()

	ts, _ := p.imuTS.Update(seq, arrival, p.ImuRate)
	p.IMUOut.Sec, p.IMUOut.Nsec = resSeconds(ts, p.Epoch)
	p.IMUOut.Present = true

	if len(payload) == 16 && res.HasTemp {
		raw := parser.I16()
		p.IMUOut.Temp = float64(raw)*res.TempRes + res.TempOff
		p.IMUOut.HasTemp = true
	}
}

func (p *Pipeline) handleMag(f connection.Frame, arrival float64) {
	payload := f.Payload
	if len(payload) != 8 {
		return
	}
	parser := codecParserOf(payload)
	seq := parser.U8()
	if p.magHasSeq && seq == p.magSeq {
		return
	}
	p.magHasSeq = true
	p.magSeq = seq

	mx, my, mz := parser.I16(), parser.I16(), parser.I16()
	res := f.Link.Device

	// Hardware quirk preserved bit-for-bit: mbias is added to the raw
	// sample here, AND passed again as the filter's calibration bias, so
	// it is applied twice. Deliberate, not a bug fix candidate.
	raw := [3]float64{
		float64(mx)*res.MagRes + p.MagCal.Bias[0],
		float64(my)*res.MagRes + p.MagCal.Bias[1],
		float64(mz)*res.MagRes + p.MagCal.Bias[2],
	}

	p.MagOut.Mag = p.MagFilter.Step(raw, p.MagCal)
	p.MagOut.MagRaw = p.MagFilter.LastInput()
	p.MagOut.Cov = p.MagCal.CovarianceDiagonal()

	ts, _ := p.magTS.Update(seq, arrival, p.MagRate)
	p.MagOut.Sec, p.MagOut.Nsec = resSeconds(ts, p.Epoch)
	p.MagOut.Present = true
}

func (p *Pipeline) handleMotor(f connection.Frame, arrival float64) {
	payload := f.Payload
	if len(payload) != 9 {
		return
	}
	parser := codecParserOf(payload)
	seq := parser.U8()
	state := parser.U8()
	vel := parser.I16()
	throttle := parser.I16()
	cons := parser.U16()

	localID := int(state & 0x0F)
	globalID := f.Link.MinID - 1 + localID
	if globalID < f.Link.MinID || globalID > f.Link.MaxID {
		return
	}
	idx := globalID - 1
	if idx < 0 || idx >= rotor.MaxRotors {
		return
	}

	if p.motorHasSeq[idx] && seq == p.motorSeq[idx] {
		return
	}
	p.motorHasSeq[idx] = true
	p.motorSeq[idx] = seq

	r := p.Rotors.At(globalID)
	if r == nil {
		return
	}
	if r.Autoconf && r.Disabled {
		r.Disabled = false
	}

	r.Emerg = state&0x80 != 0
	r.Spinning = state&0x20 != 0
	r.Starting = state&0x10 != 0

	if r.Spinning && vel != 0 {
		r.Velocity = 1e6 / 2 / float64(vel)
	} else {
		r.Velocity = 0
	}
	r.Throttle = float64(throttle) * 100 / 1023
	r.Consumption = float64(cons) / 1000

	ts, _ := p.motorTS[idx].Update(seq, arrival, p.MotorRate)
	r.TS, _ = resSecondsFloat(ts, p.Epoch)
}

func resSecondsFloat(ts float64, epoch int64) (float64, int64) {
	sec, nsec := resSeconds(ts, epoch)
	return float64(sec) + float64(nsec)/1e9, nsec
}

func (p *Pipeline) handleBattery(f connection.Frame, arrival float64) {
	payload := f.Payload
	if len(payload) != 4 {
		return
	}
	parser := codecParserOf(payload)
	seq := parser.U8()
	if p.batHasSeq && seq == p.batSeq {
		return
	}
	p.batHasSeq = true
	p.batSeq = seq

	level := parser.U16()
	p.Battery.Level = float64(level) / 1000

	ts, _ := p.batteryTS.Update(seq, arrival, p.BatteryRate)
	sec, nsec := resSeconds(ts, p.Epoch)
	p.Battery.TS = float64(sec) + float64(nsec)/1e9

	p.Rotors.DistributeEnergyLevel(p.Battery.EnergyLevel())
}

func (p *Pipeline) handleClkrate(f connection.Frame) {
	payload := f.Payload
	if len(payload) != 3 {
		return
	}
	parser := codecParserOf(payload)
	id := parser.U8()
	clk := parser.U8()
	if r := p.Rotors.At(int(id)); r != nil {
		r.ClkRate = clk
	}
}

// NoData republishes every channel with NaN telemetry and _present=false,
// called after a 500ms poll timeout with no bytes on any link.
func (p *Pipeline) NoData() {
	p.IMUOut.Present = false
	p.IMUOut.Accel = [3]float64{math.NaN(), math.NaN(), math.NaN()}
	p.IMUOut.Gyro = [3]float64{math.NaN(), math.NaN(), math.NaN()}

	p.MagOut.Present = false
	p.MagOut.Mag = [3]float64{math.NaN(), math.NaN(), math.NaN()}

	for i := range p.Rotors {
		p.Rotors[i].NaN()
	}
	p.Battery.Level = math.NaN()
}
