package calib

import (
	"math"
	"testing"
)

func TestCollectReportsAgainUntilAllPosesCaptured(t *testing.T) {
	s := NewSixPoseSolver()
	if err := s.Init(3, 2, 100, 10); err != nil {
		t.Fatalf("Init: %v", err)
	}

	sample := [3]float64{0, 0, 1}
	var last Outcome
	for i := 0; i < 6; i++ {
		last = s.Collect(25, sample, [3]float64{1, 0, 0})
		if last.Status == StatusError {
			t.Fatalf("unexpected error at sample %d", i)
		}
	}
	if last.Status != StatusOK {
		t.Fatalf("expected StatusOK after 2 full poses, got %v", last.Status)
	}
	if last.StillCount != 2 {
		t.Fatalf("expected StillCount=2, got %d", last.StillCount)
	}
}

func TestCollectRejectsExcessMotion(t *testing.T) {
	s := NewSixPoseSolver()
	s.Init(5, 1, 100, 0.01)

	s.Collect(25, [3]float64{0, 0, 1}, [3]float64{0, 0, 0})
	out := s.Collect(25, [3]float64{0, 0, 100}, [3]float64{0, 0, 0})
	if out.Status != StatusError {
		t.Fatalf("expected excess-motion error, got %v", out.Status)
	}
}

func TestAccBiasIsNegativeAverage(t *testing.T) {
	s := NewSixPoseSolver()
	s.Init(2, 1, 100, 1000)
	s.Collect(25, [3]float64{1, 2, 3}, [3]float64{0, 0, 0})
	s.Collect(25, [3]float64{1, 2, 3}, [3]float64{0, 0, 0})

	_, bias := s.Acc()
	want := [3]float64{-1, -2, -3}
	if bias != want {
		t.Fatalf("bias = %v, want %v", bias, want)
	}
}

func TestLevelRotationIsIdentityWhenAlreadyLevel(t *testing.T) {
	rot := LevelRotation([3]float64{0, 0, 1})
	want := identity3()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(rot[i][j]-want[i][j]) > 1e-9 {
				t.Fatalf("rot = %v, want identity %v", rot, want)
			}
		}
	}
}

func TestLevelRotationZeroVectorIsIdentity(t *testing.T) {
	rot := LevelRotation([3]float64{0, 0, 0})
	if rot != identity3() {
		t.Fatalf("expected identity for zero-magnitude average, got %v", rot)
	}
}

func TestPostMultiplyByIdentityIsNoOp(t *testing.T) {
	scale := [3][3]float64{{2, 0, 0}, {0, 3, 0}, {0, 0, 4}}
	got := PostMultiply(scale, identity3())
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(got[i][j]-scale[i][j]) > 1e-9 {
				t.Fatalf("PostMultiply by identity changed scale: got %v, want %v", got, scale)
			}
		}
	}
}
