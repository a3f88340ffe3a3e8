// Package startup implements the rotor startup sequencer: it starts every
// enabled rotor, waits for all of them to report spinning with sensor rates
// up to speed, and resends the start command periodically while waiting.
// Its tick-based state machine is grounded on the same
// failsafe/emergency.go Procedure/ProcedureStep shape that grounds the servo
// loop, here specialized to a single linear startup sequence instead of a
// branching emergency procedure tree.
package startup

import (
	"github.com/rotorbridge/rotorbridge/internal/codec"
	"github.com/rotorbridge/rotorbridge/internal/connection"
	"github.com/rotorbridge/rotorbridge/internal/rotor"
	"github.com/rotorbridge/rotorbridge/internal/rotorerr"
	"github.com/rotorbridge/rotorbridge/internal/sensorpipeline"
)

// resendInterval is the tick count between resent start commands to rotors
// still not reporting "starting".
const resendInterval = 100

// Status reports the sequencer's progress each tick.
type Status int

const (
	StatusPause Status = iota
	StatusDone
)

// Sequencer drives the startup activity.
type Sequencer struct {
	conn     *connection.Connection
	rotors   *rotor.Set
	pipeline *sensorpipeline.Pipeline

	timeoutTicks int
	tick         int
	seenStarting [rotor.MaxRotors]bool

	nominalIMU, nominalMag, nominalMotor float64
}

// New creates a Sequencer. timeoutSeconds and controlPeriodMs derive the
// tick budget (servo.timeout*1000/CONTROL_PERIOD_MS).
func New(conn *connection.Connection, rotors *rotor.Set, pipeline *sensorpipeline.Pipeline, timeoutSeconds, controlPeriodMs float64, nominalIMU, nominalMag, nominalMotor float64) (*Sequencer, error) {
	for i := range rotors {
		if !rotors[i].Disabled && rotors[i].Spinning {
			return nil, &rotorerr.StartedError{ID: i + 1}
		}
	}
	s := &Sequencer{
		conn:         conn,
		rotors:       rotors,
		pipeline:     pipeline,
		timeoutTicks: int(timeoutSeconds * 1000 / controlPeriodMs),
		nominalIMU:   nominalIMU,
		nominalMag:   nominalMag,
		nominalMotor: nominalMotor,
	}
	for i := range rotors {
		if rotors[i].Disabled {
			continue
		}
		if err := conn.SendToRotor(i+1, startFrame(uint8(i+1))); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func startFrame(id uint8) []byte {
	return codec.NewBuilder('g').U8(id).Bytes()
}

// Tick advances the sequencer by one CONTROL_PERIOD_MS period.
func (s *Sequencer) Tick() (Status, error) {
	s.timeoutTicks--
	s.tick++

	for i := range s.rotors {
		r := &s.rotors[i]
		if r.Disabled {
			if r.Starting || r.Spinning {
				return StatusPause, &rotorerr.RotorNotDisabledError{ID: i + 1}
			}
			continue
		}
		if r.Emerg {
			return StatusPause, &rotorerr.RotorFailureError{ID: i + 1}
		}
		if r.Starting {
			s.seenStarting[i] = true
		} else if s.seenStarting[i] && !r.Spinning {
			return StatusPause, &rotorerr.RotorStoppedError{ID: i + 1}
		}
	}

	if s.tick%resendInterval == 0 {
		for i := range s.rotors {
			r := &s.rotors[i]
			if r.Disabled || r.Starting {
				continue
			}
			if err := s.conn.SendToRotor(i+1, startFrame(uint8(i+1))); err != nil {
				return StatusPause, err
			}
		}
	}

	if s.rotors.AllEnabledSpinning() {
		if s.ratesUpToSpeed() {
			return StatusDone, nil
		}
		return StatusPause, nil
	}

	if s.timeoutTicks <= 0 {
		s.conn.Broadcast(codec.NewBuilder('x').Bytes())
		return StatusPause, &rotorerr.SysError{Context: "startup", Err: errTimeout{}}
	}
	return StatusPause, nil
}

func (s *Sequencer) ratesUpToSpeed() bool {
	if s.nominalIMU >= 0.1 && s.pipeline.IMUMeasuredRate() < 0.8*s.nominalIMU {
		return false
	}
	if s.nominalMag >= 0.1 && s.pipeline.MagMeasuredRate() < 0.8*s.nominalMag {
		return false
	}
	return true
}

type errTimeout struct{}

func (errTimeout) Error() string { return "startup timed out waiting for all rotors" }
