package servo

import (
	"math"
	"testing"

	"github.com/rotorbridge/rotorbridge/internal/connection"
	"github.com/rotorbridge/rotorbridge/internal/control"
	"github.com/rotorbridge/rotorbridge/internal/rotor"
	"github.com/rotorbridge/rotorbridge/internal/sensorpipeline"
)

func TestRampReachesOneInExpectedTicks(t *testing.T) {
	cfg := Config{ControlPeriodMs: 1, RampSeconds: 0.01, TimeoutSeconds: 30}
	var rotors rotor.Set
	for i := range rotors {
		rotors[i].Spinning = true
		rotors[i].Starting = true
	}
	battery := rotor.NewBattery()
	pipeline := sensorpipeline.New(0, &rotors, &battery)
	conn := connection.New(nil)
	plane := control.New(conn, &rotors, pipeline)
	loop := New(cfg, plane, &rotors, pipeline)

	wantTicks := int(math.Ceil(cfg.RampSeconds * 1000 / cfg.ControlPeriodMs))
	cmd := Command{Mode: ModeVelocity, Values: make([]float64, 8), AgeMs: 0}

	for i := 0; i < wantTicks; i++ {
		loop.Tick(cmd, 0, 0, 0)
	}
	if loop.Scale() < 1 {
		t.Fatalf("expected scale=1 after %d ticks, got %v", wantTicks, loop.Scale())
	}
}

func TestInputWatchdogStopsOnStaleCommand(t *testing.T) {
	cfg := DefaultConfig()
	var rotors rotor.Set
	battery := rotor.NewBattery()
	pipeline := sensorpipeline.New(0, &rotors, &battery)
	conn := connection.New(nil)
	plane := control.New(conn, &rotors, pipeline)
	loop := New(cfg, plane, &rotors, pipeline)
	loop.scale = 0.0001

	cmd := Command{Mode: ModeVelocity, Values: make([]float64, 8), AgeMs: 600}
	err := loop.Tick(cmd, 0, 0, 0)
	if err == nil {
		t.Fatalf("expected input watchdog error")
	}
}
