package startup

import (
	"testing"

	"github.com/rotorbridge/rotorbridge/internal/connection"
	"github.com/rotorbridge/rotorbridge/internal/rotor"
	"github.com/rotorbridge/rotorbridge/internal/sensorpipeline"
)

func TestSequencerCompletesWhenAllSpinningAndRatesUp(t *testing.T) {
	var rotors rotor.Set
	battery := rotor.NewBattery()
	pipeline := sensorpipeline.New(0, &rotors, &battery)
	conn := connection.New(nil)

	seq, err := New(conn, &rotors, pipeline, 30, 1, 0, 0, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := range rotors {
		rotors[i].Spinning = true
	}
	status, err := seq.Tick()
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if status != StatusDone {
		t.Fatalf("expected StatusDone once all rotors spinning and no nominal rates to wait on, got %v", status)
	}
}

func TestSequencerRejectsAlreadySpinningRotor(t *testing.T) {
	var rotors rotor.Set
	rotors[0].Spinning = true
	battery := rotor.NewBattery()
	pipeline := sensorpipeline.New(0, &rotors, &battery)
	conn := connection.New(nil)

	if _, err := New(conn, &rotors, pipeline, 30, 1, 0, 0, 0); err == nil {
		t.Fatalf("expected error when a rotor is already spinning at startup")
	}
}
