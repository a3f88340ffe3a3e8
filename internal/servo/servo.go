// Package servo implements the periodic control loop: input and rate
// watchdogs, per-rotor failure detection, scale ramp, and command dispatch.
// The ticker-driven per-cycle state machine is grounded on
// failsafe/emergency.go's Monitor(ctx) loop, generalized from aircraft
// emergency procedures to rotor watchdog rules.
package servo

import (
	"github.com/rotorbridge/rotorbridge/internal/control"
	"github.com/rotorbridge/rotorbridge/internal/rotor"
	"github.com/rotorbridge/rotorbridge/internal/rotorerr"
	"github.com/rotorbridge/rotorbridge/internal/sensorpipeline"
)

// Mode selects which ControlPlane dispatch a Command uses.
type Mode int

const (
	ModeVelocity Mode = iota
	ModeThrottle
)

// Command is the latest commanded rotor-control record plus its arrival age.
type Command struct {
	Mode     Mode
	Values   []float64
	AgeMs    float64 // time since this command last changed, in milliseconds
}

// Config holds the servo loop's tunables.
type Config struct {
	ControlPeriodMs float64
	RampSeconds     float64
	TimeoutSeconds  float64
}

// DefaultConfig returns the stock defaults (ramp=3s, timeout=30s, control
// period 1ms).
func DefaultConfig() Config {
	return Config{ControlPeriodMs: 1, RampSeconds: 3, TimeoutSeconds: 30}
}

// Loop is the per-cycle servo state machine.
type Loop struct {
	cfg     Config
	plane   *control.Plane
	rotors  *rotor.Set
	pipeline *sensorpipeline.Pipeline

	scale float64
}

// New creates a servo Loop bound to the shared control plane, starting with
// scale=0.
func New(cfg Config, plane *control.Plane, rotors *rotor.Set, pipeline *sensorpipeline.Pipeline) *Loop {
	return &Loop{cfg: cfg, plane: plane, rotors: rotors, pipeline: pipeline}
}

// Scale reports the current ramp scale, in [0, 1].
func (l *Loop) Scale() float64 { return l.scale }

func (l *Loop) decay() {
	l.scale -= 2 * l.cfg.ControlPeriodMs / (1000 * l.cfg.RampSeconds)
}

// Tick runs one servo cycle. cmd is the latest command input; nominal holds
// the three channel's configured sensor rates (0 disables that channel's
// watchdog).
func (l *Loop) Tick(cmd Command, nominalIMU, nominalMag, nominalMotor float64) error {
	if cmd.AgeMs > 500 {
		l.decay()
		if l.scale < 0 {
			l.plane.Stop()
			return &rotorerr.InputError{Detail: "no valid command within watchdog"}
		}
	}

	if rateErr := l.checkRateWatchdog(nominalIMU, nominalMag, nominalMotor); rateErr != "" {
		l.decay()
		if l.scale < 0 {
			l.plane.Stop()
			return &rotorerr.RateError{Channel: rateErr}
		}
	}

	for i := range l.rotors {
		r := &l.rotors[i]
		if r.Disabled {
			continue
		}
		if r.Emerg {
			l.plane.Stop()
			return &rotorerr.RotorFailureError{ID: i + 1}
		}
		if !r.Starting && !r.Spinning {
			l.plane.Stop()
			return &rotorerr.RotorStoppedError{ID: i + 1}
		}
	}

	values := make([]float64, len(cmd.Values))
	copy(values, cmd.Values)
	if l.scale < 1 {
		for i := range values {
			values[i] *= l.scale
		}
		if l.rotors.AllEnabledSpinning() {
			l.scale += l.cfg.ControlPeriodMs / (1000 * l.cfg.RampSeconds)
			// Absorb the rounding left by summing the step, so scale reaches
			// exactly 1 after ceil(ramp*1000/period) ticks.
			if l.scale > 1-1e-9 {
				l.scale = 1
			}
		}
	}

	switch cmd.Mode {
	case ModeThrottle:
		return l.plane.SetThrottle(values)
	default:
		return l.plane.SetVelocity(values)
	}
}

func (l *Loop) checkRateWatchdog(nominalIMU, nominalMag, nominalMotor float64) string {
	if nominalIMU >= 0.1 && l.pipeline.IMUMeasuredRate() < 0.8*nominalIMU {
		return "imu"
	}
	if nominalMag >= 0.1 && l.pipeline.MagMeasuredRate() < 0.8*nominalMag {
		return "mag"
	}
	if nominalMotor >= 0.1 {
		for i := range l.rotors {
			if l.rotors[i].Disabled {
				continue
			}
			if l.pipeline.MotorMeasuredRate(i+1) < 0.8*nominalMotor {
				return "motor"
			}
		}
	}
	return ""
}
