// Package control implements the rotor lifecycle and command-dispatch
// operations: sensor-rate configuration, battery limits, motor enable/
// disable, PID tuning, and velocity/throttle commands. Each
// operation returns one of internal/rotorerr's structured kinds instead of
// a bare error string, the pattern failsafe/emergency.go uses for its own
// typed EmergencyType/HealthStatus returns.
package control

import (
	"math"
	"time"

	"github.com/rotorbridge/rotorbridge/internal/connection"
	"github.com/rotorbridge/rotorbridge/internal/devicetable"
	"github.com/rotorbridge/rotorbridge/internal/filter"
	"github.com/rotorbridge/rotorbridge/internal/rotor"
	"github.com/rotorbridge/rotorbridge/internal/rotorerr"
	"github.com/rotorbridge/rotorbridge/internal/sensorpipeline"
)

// stallPeriod is the |ω| threshold (1e6/65535) below which ω is treated as
// stalled and the sentinel period is sent.
const stallPeriod = 1e6 / 65535

// Plane is the control plane: it owns no state of its own beyond what it's
// given, operating directly on the shared Connection, rotor.Set, and
// sensorpipeline.Pipeline the Supervisor constructs once at startup.
type Plane struct {
	Conn     *connection.Connection
	Rotors   *rotor.Set
	Pipeline *sensorpipeline.Pipeline
}

// New creates a Plane bound to the shared runtime state.
func New(conn *connection.Connection, rotors *rotor.Set, pipeline *sensorpipeline.Pipeline) *Plane {
	return &Plane{Conn: conn, Rotors: rotors, Pipeline: pipeline}
}

func period(rateHz float64) uint32 {
	if rateHz <= 0 {
		return 0
	}
	return uint32(1e6 / rateHz)
}

// SetSensorRate reconfigures the four channel rates, re-derives filter alpha
// while preserving each axis group's fc, and resets per-channel offset
// estimators to force resynchronization.
func (p *Plane) SetSensorRate(imu, mag, motor, battery float64) error {
	for name, rate := range map[string]float64{"imu": imu, "mag": mag, "motor": motor, "battery": battery} {
		if rate < 0 || rate > 2000 {
			return &rotorerr.RangeError{Field: name, Value: rate, Min: 0, Max: 2000}
		}
	}

	if err := p.Conn.SendCapability("imu", codecBuilderU32('i', period(imu))); err != nil {
		return err
	}
	if err := p.Conn.SendCapability("mag", codecBuilderU32('c', period(mag))); err != nil {
		return err
	}
	if err := p.Conn.SendCapability("motor", codecBuilderU32('m', period(motor))); err != nil {
		return err
	}
	if err := p.Conn.Broadcast(codecBuilderU32('b', period(battery))); err != nil {
		return err
	}

	p.Pipeline.ImuRate = imu
	p.Pipeline.MagRate = mag
	p.Pipeline.MotorRate = motor
	p.Pipeline.BatteryRate = battery
	p.Pipeline.RefreshFilterAlpha()
	p.Pipeline.ResetTiming()
	return nil
}

// SetBatteryLimits updates the battery min/max thresholds used to derive
// rotor energy_level readings.
func (p *Plane) SetBatteryLimits(min, max float64) error {
	if !(min >= 0 && min < max-0.01) {
		return &rotorerr.RangeError{Field: "battery_limits", Value: min, Min: 0, Max: max}
	}
	p.Pipeline.Battery.Min = min
	p.Pipeline.Battery.Max = max
	return nil
}

// DisableMotor stops commanding a rotor and clears its telemetry.
func (p *Plane) DisableMotor(id int) error {
	r := p.Rotors.At(id)
	if r == nil {
		return &rotorerr.RangeError{Field: "motor_id", Value: float64(id), Min: 1, Max: rotor.MaxRotors}
	}
	r.Disabled = true
	r.Emerg = false
	r.Spinning = false
	r.Starting = false
	r.NaN()
	return p.Conn.SendToRotor(id, codecBuilderStopOne(uint8(id)))
}

// EnableMotor re-arms a disabled rotor, restarting it immediately if any
// sibling rotor is already spinning.
func (p *Plane) EnableMotor(id int) error {
	r := p.Rotors.At(id)
	if r == nil {
		return &rotorerr.RangeError{Field: "motor_id", Value: float64(id), Min: 1, Max: rotor.MaxRotors}
	}
	r.Disabled = false
	r.Emerg = false
	r.Spinning = false
	r.Starting = false

	if p.Rotors.AnyEnabledSpinning() {
		return p.Conn.SendToRotor(id, codecBuilderStart(uint8(id)))
	}
	return nil
}

// SetPID forwards gain tuning to the owning Link, rejecting devices that
// don't support it (currently only TEENSY).
func (p *Plane) SetPID(id int, kp, ki, kd, f float64) error {
	r := p.Rotors.At(id)
	if r == nil {
		return &rotorerr.RangeError{Field: "motor_id", Value: float64(id), Min: 1, Max: rotor.MaxRotors}
	}
	supported := false
	for _, l := range p.Conn.MotorLinks() {
		if l.Owns(id) && l.Device.Kind == devicetable.TEENSY {
			supported = true
		}
	}
	if !supported {
		return &rotorerr.BadDeviceError{Message: "set_pid unsupported on this device"}
	}
	payload := codecBuilderPID(uint8(id), kp, ki, kd, f)
	return p.Conn.SendToRotor(id, payload)
}

func gainToU16(g float64) uint16 {
	return uint16(g * 10000)
}

// SetVelocity converts per-motor angular rates into half-period commands and
// dispatches each Link its owned slice.
func (p *Plane) SetVelocity(desired []float64) error {
	desired = trimTrailingNaN(desired)
	for i := range p.Rotors {
		r := &p.Rotors[i]
		if r.Emerg && !r.Disabled {
			return &rotorerr.RotorFailureError{ID: i + 1}
		}
	}

	periods := make([]int16, len(desired))
	for i, w := range desired {
		id := i + 1
		r := p.Rotors.At(id)
		if r != nil && r.Disabled {
			periods[i] = 0
			continue
		}
		periods[i] = velocityToHalfPeriod(w)
	}
	return p.dispatchPerLink(periods, 'w')
}

func velocityToHalfPeriod(w float64) int16 {
	if math.IsNaN(w) {
		return 0
	}
	if math.Abs(w) < stallPeriod {
		return int16(math.Copysign(32767, w))
	}
	return int16(1e6 / 2 / w)
}

// SetThrottle linearly maps [-100,100] to [-1023,1023] and dispatches per
// Link the same way SetVelocity does.
func (p *Plane) SetThrottle(desired []float64) error {
	desired = trimTrailingNaN(desired)
	values := make([]int16, len(desired))
	for i, t := range desired {
		id := i + 1
		r := p.Rotors.At(id)
		if r != nil && r.Disabled {
			values[i] = 0
			continue
		}
		values[i] = throttleToUnit(t)
	}
	return p.dispatchPerLink(values, 'q')
}

func throttleToUnit(t float64) int16 {
	if math.IsNaN(t) {
		return 0
	}
	return int16(t * 1023 / 100)
}

func trimTrailingNaN(v []float64) []float64 {
	end := len(v)
	for end > 0 && math.IsNaN(v[end-1]) {
		end--
	}
	return v[:end]
}

func (p *Plane) dispatchPerLink(values []int16, tag byte) error {
	now := float64(time.Now().UnixNano()) / 1e9
	for _, l := range p.Conn.MotorLinks() {
		lo := l.MinID - 1
		hi := l.MaxID
		if hi > len(values) {
			hi = len(values)
		}
		if lo >= hi {
			continue
		}
		slice := values[lo:hi]
		if err := l.Write(codecBuilderArray(tag, slice)); err != nil {
			return err
		}
		for i, v := range slice {
			if r := p.Rotors.At(lo + i + 1); r != nil {
				r.WD = v
				r.LastCommandTS = now
			}
		}
	}
	return nil
}

// Stop broadcasts the emergency-stop tag and reports whether any non-
// disabled rotor is still observed spinning. Used as a fire-and-forget
// abort by the servo loop's watchdog trips.
func (p *Plane) Stop() (done bool, err error) {
	if err := p.Conn.Broadcast(codecBuilderStop()); err != nil {
		return false, err
	}
	return !p.Rotors.AnyEnabledSpinning(), nil
}

// stopWatchdog bounds how stale a rotor's motor telemetry may be before
// StopTick stops waiting on it.
const stopWatchdog = 500 * time.Millisecond

// StopTick drives the stop activity: it broadcasts the emergency-stop tag
// every call and reports done once no non-disabled rotor is both spinning
// and reporting telemetry newer than the 500ms watchdog. now is the caller's
// current time in the same epoch-reduced domain as Rotor.TS.
func (p *Plane) StopTick(now float64) (done bool, err error) {
	if err := p.Conn.Broadcast(codecBuilderStop()); err != nil {
		return false, err
	}
	return !p.Rotors.AnyEnabledSpinningFresh(now, stopWatchdog.Seconds()), nil
}
