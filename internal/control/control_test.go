package control

import (
	"math"
	"testing"

	"github.com/rotorbridge/rotorbridge/internal/connection"
	"github.com/rotorbridge/rotorbridge/internal/rotor"
	"github.com/rotorbridge/rotorbridge/internal/sensorpipeline"
)

func TestVelocityEncodeNormal(t *testing.T) {
	got := velocityToHalfPeriod(100)
	if got != 5000 {
		t.Fatalf("100 rad/s: got %d, want 5000", got)
	}
}

func TestVelocityEncodeStallSentinel(t *testing.T) {
	if got := velocityToHalfPeriod(0.001); got != 32767 {
		t.Fatalf("stall positive: got %d, want 32767", got)
	}
	if got := velocityToHalfPeriod(-0.001); got != -32767 {
		t.Fatalf("stall negative: got %d, want -32767", got)
	}
}

func TestThrottleEncode(t *testing.T) {
	if got := throttleToUnit(100); got != 1023 {
		t.Fatalf("+100: got %d, want 1023", got)
	}
	if got := throttleToUnit(-100); got != -1023 {
		t.Fatalf("-100: got %d, want -1023", got)
	}
	if got := throttleToUnit(math.NaN()); got != 0 {
		t.Fatalf("NaN: got %d, want 0", got)
	}
}

func TestStopTickDoneWhenNoFreshSpinningRotor(t *testing.T) {
	var rotors rotor.Set
	battery := rotor.NewBattery()
	pipeline := sensorpipeline.New(0, &rotors, &battery)
	conn := connection.New(nil)
	p := New(conn, &rotors, pipeline)

	rotors[0].Spinning = true
	rotors[0].TS = 10

	done, err := p.StopTick(10.6)
	if err != nil {
		t.Fatalf("StopTick: %v", err)
	}
	if !done {
		t.Fatalf("expected done once the only spinning rotor's telemetry is stale")
	}
}

func TestStopTickPausesWhileRotorStillFreshAndSpinning(t *testing.T) {
	var rotors rotor.Set
	battery := rotor.NewBattery()
	pipeline := sensorpipeline.New(0, &rotors, &battery)
	conn := connection.New(nil)
	p := New(conn, &rotors, pipeline)

	rotors[0].Spinning = true
	rotors[0].TS = 10

	done, err := p.StopTick(10.1)
	if err != nil {
		t.Fatalf("StopTick: %v", err)
	}
	if done {
		t.Fatalf("expected not done while a rotor is still fresh and spinning")
	}
}

func TestTrimTrailingNaN(t *testing.T) {
	in := []float64{1, 2, math.NaN(), math.NaN()}
	out := trimTrailingNaN(in)
	if len(out) != 2 {
		t.Fatalf("expected trailing NaNs trimmed, got len %d", len(out))
	}
}
