package filter

import "testing"

func TestAlphaFcRoundTrip(t *testing.T) {
	const r = 1000.0
	for _, fc := range []float64{0.1, 1, 5, 20, 100} {
		alpha := AlphaOf(fc, r)
		got := FcOf(alpha, r)
		if diff := got - fc; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("fc=%v: round trip got %v", fc, got)
		}
	}
	if AlphaOf(0, r) != 1 {
		t.Errorf("AlphaOf(0, r) should be 1 (passthrough)")
	}
	if FcOf(1, r) != 0 {
		t.Errorf("FcOf(1, r) should be 0")
	}
}

func TestPassthroughWhenAlphaIsOne(t *testing.T) {
	cal := IdentityCalibration()
	axis := NewAxis(1)
	samples := [][3]float64{{1, 2, 3}, {4, -5, 6}, {0, 0, 0}, {-1, -1, -1}}
	for _, s := range samples {
		want := cal.Apply(s)
		got := axis.Step(s, cal)
		if got != want {
			t.Fatalf("alpha=1 should passthrough calibration output: got %v want %v", got, want)
		}
	}
}

func TestBiasAppliedBeforeScale(t *testing.T) {
	cal := Calibration{
		Scale: [3][3]float64{{2, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		Bias:  [3]float64{1, 0, 0},
	}
	got := cal.Apply([3]float64{1, 0, 0})
	// (1+1)*2 = 4, not 1*2+1 = 3.
	if got[0] != 4 {
		t.Fatalf("expected bias applied before scale: got %v", got[0])
	}
}

func TestStepConvergesTowardInput(t *testing.T) {
	cal := IdentityCalibration()
	axis := NewAxis(0.5)
	var out [3]float64
	for i := 0; i < 50; i++ {
		out = axis.Step([3]float64{10, 10, 10}, cal)
	}
	if out[0] < 9.9 {
		t.Fatalf("filter should converge close to steady input: got %v", out[0])
	}
}
