package connection

import (
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/rotorbridge/rotorbridge/internal/link"
)

func testLink(imu, mag, motor bool, minID, maxID int) *link.Link {
	l := &link.Link{}
	l.IMU, l.Mag, l.Motor = imu, mag, motor
	l.MinID, l.MaxID = minID, maxID
	return l
}

func TestAddRejectsSecondIMULink(t *testing.T) {
	c := New(logrus.NewEntry(logrus.New()))
	if err := c.Add(testLink(true, false, false, 0, 0)); err != nil {
		t.Fatalf("first imu Link: %v", err)
	}
	if err := c.Add(testLink(true, false, false, 0, 0)); err == nil {
		t.Fatalf("expected second imu Link to be rejected")
	}
	if len(c.Links()) != 1 {
		t.Fatalf("expected rejected Add to leave the Connection unchanged, got %d links", len(c.Links()))
	}
}

func TestAddRejectsOverlappingMotorRanges(t *testing.T) {
	c := New(logrus.NewEntry(logrus.New()))
	if err := c.Add(testLink(false, false, true, 1, 4)); err != nil {
		t.Fatalf("first motor Link: %v", err)
	}
	if err := c.Add(testLink(false, false, true, 4, 6)); err == nil {
		t.Fatalf("expected overlapping motor range [4,6] vs [1,4] to be rejected")
	}
	if err := c.Add(testLink(false, false, true, 5, 8)); err != nil {
		t.Fatalf("expected disjoint range [5,8] to be accepted: %v", err)
	}
	if len(c.Links()) != 2 {
		t.Fatalf("expected 2 accepted links, got %d", len(c.Links()))
	}
}

func TestSendCapabilityOnlyReachesCapableLinks(t *testing.T) {
	c := New(logrus.NewEntry(logrus.New()))
	imuLink := testLink(true, false, false, 0, 0)
	motorLink := testLink(false, false, true, 1, 4)
	if err := c.Add(imuLink); err != nil {
		t.Fatalf("add imu: %v", err)
	}
	if err := c.Add(motorLink); err != nil {
		t.Fatalf("add motor: %v", err)
	}

	// Links have no real serial.Port, so SendCapability with no matching
	// Links must not attempt a write; "battery" has no capability flag so
	// it always reaches zero Links via this helper's gating.
	if err := c.SendCapability("battery-unused", []byte{0}); err != nil {
		t.Fatalf("expected no-op for unrecognized capability, got %v", err)
	}
}

func TestSendToRotorFailsWithNoOwningLink(t *testing.T) {
	c := New(logrus.NewEntry(logrus.New()))
	if err := c.Add(testLink(false, false, true, 1, 4)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.SendToRotor(7, []byte{0}); err == nil {
		t.Fatalf("expected error for a rotor id no Link owns")
	}
}

func TestMotorLinksFiltersByCapability(t *testing.T) {
	c := New(logrus.NewEntry(logrus.New()))
	c.Add(testLink(true, false, false, 0, 0))
	c.Add(testLink(false, false, true, 1, 4))

	motor := c.MotorLinks()
	if len(motor) != 1 {
		t.Fatalf("expected exactly one motor-capable Link, got %d", len(motor))
	}
}

func TestRemoveDropsOnlyTheGivenLink(t *testing.T) {
	c := New(logrus.NewEntry(logrus.New()))
	a := testLink(true, false, false, 0, 0)
	b := testLink(false, false, true, 1, 4)
	c.Add(a)
	c.Add(b)

	c.Remove(a)
	if len(c.Links()) != 1 || c.Links()[0] != b {
		t.Fatalf("expected only b to remain after removing a")
	}
}
