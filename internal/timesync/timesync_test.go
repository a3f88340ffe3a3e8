package timesync

import (
	"math"
	"testing"
)

func TestMonotonicUnderSteadyRate(t *testing.T) {
	ts := New(1000)
	prev := math.Inf(-1)
	a := 0.0
	for i := 0; i < 18; i++ {
		out, _ := ts.Update(uint8(i), a, 1000)
		if out < prev {
			t.Fatalf("tick %d: ts went backward: %v < %v", i, out, prev)
		}
		prev = out
		a += 0.001
	}
}

func TestResetOnLargeSequenceGap(t *testing.T) {
	ts := New(1000)
	a := 0.0
	for i := 0; i < 18; i++ {
		ts.Update(uint8(i), a, 1000)
		a += 0.001
	}
	before := ts.ts

	// Drop 20 frames: resume at seq 38 (ds = 38-17 = 21 > 16).
	a += 0.020
	out, _ := ts.Update(38, a, 1000)
	if out < before-1 {
		t.Fatalf("timestamp should jump forward, not drop far below prior ts: got %v, had %v", out, before)
	}
}

func TestLowRateChannelUsesArrivalTime(t *testing.T) {
	ts := New(0)
	out, _ := ts.Update(0, 12.5, 0)
	if out != 12.5 {
		t.Fatalf("first sample should equal arrival time: got %v", out)
	}
	out2, _ := ts.Update(1, 13.5, 0)
	if out2 != 13.5 {
		t.Fatalf("zero-rate channel should track raw arrival time: got %v", out2)
	}
}
