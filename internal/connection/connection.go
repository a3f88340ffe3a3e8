// Package connection models the growable set of serial Links that together
// form one vehicle. It enforces capability-disjointness invariants and
// exposes the comm task's poll/recv/broadcast surface.
package connection

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rotorbridge/rotorbridge/internal/link"
	"github.com/rotorbridge/rotorbridge/internal/rotorerr"
)

// Frame is one decoded payload paired with the Link it arrived on, so
// SensorPipeline can resolve motor-id ranges without looking the Link back
// up by identity.
type Frame struct {
	Link    *link.Link
	Payload []byte
}

// Connection is the live set of open Links.
type Connection struct {
	links []*link.Link
	log   *logrus.Entry
}

// New creates an empty Connection.
func New(log *logrus.Entry) *Connection {
	return &Connection{log: log}
}

// Links returns the current link set. Callers must not retain the slice
// across an Add/Remove.
func (c *Connection) Links() []*link.Link {
	return c.links
}

// Add appends l to the Connection after validating the invariants against
// the prospective full set: at most one enabled Link per {imu, mag}
// capability, and pairwise-disjoint motor-id ranges. This takes the
// grow-first-then-validate-then-commit path: the candidate slice is built
// and checked before c.links is ever mutated, so a rejected Add leaves the
// Connection exactly as it was.
func (c *Connection) Add(l *link.Link) error {
	candidate := make([]*link.Link, len(c.links), len(c.links)+1)
	copy(candidate, c.links)
	candidate = append(candidate, l)

	if err := validate(candidate); err != nil {
		return err
	}
	c.links = candidate
	if c.log != nil {
		c.log.WithField("path", l.Path()).Info("link added to connection")
	}
	return nil
}

func validate(links []*link.Link) error {
	sawIMU, sawMag := false, false
	for i, a := range links {
		if a.IMU {
			if sawIMU {
				return &rotorerr.BadDeviceError{Message: "more than one Link enabled for imu capability"}
			}
			sawIMU = true
		}
		if a.Mag {
			if sawMag {
				return &rotorerr.BadDeviceError{Message: "more than one Link enabled for mag capability"}
			}
			sawMag = true
		}
		if !a.Motor {
			continue
		}
		for j := i + 1; j < len(links); j++ {
			b := links[j]
			if !b.Motor {
				continue
			}
			if a.MinID <= b.MaxID && b.MinID <= a.MaxID {
				return &rotorerr.BadDeviceError{Message: "overlapping motor-id ranges across Links"}
			}
		}
	}
	return nil
}

// Remove drops l from the Connection without closing it; the caller closes
// l if it is no longer needed.
func (c *Connection) Remove(l *link.Link) {
	out := c.links[:0]
	for _, existing := range c.links {
		if existing == l {
			continue
		}
		out = append(out, existing)
	}
	c.links = out
}

// Close closes every Link and empties the Connection.
func (c *Connection) Close() {
	for _, l := range c.links {
		l.Close()
	}
	c.links = nil
}

// Poll waits up to budget for data on any Link and returns every frame that
// arrived, in per-Link FIFO order (no ordering guarantee across Links), or
// noData=true if nothing arrived within the budget.
func (c *Connection) Poll(budget time.Duration) (frames []Frame, noData bool, err error) {
	if len(c.links) == 0 {
		time.Sleep(budget)
		return nil, true, nil
	}

	per := budget / time.Duration(len(c.links))
	if per <= 0 {
		per = time.Millisecond
	}

	for _, l := range c.links {
		l.SetReadTimeout(per)
		payloads, rerr := l.ReadAvailable()
		if rerr != nil {
			return frames, false, rerr
		}
		for _, p := range payloads {
			frames = append(frames, Frame{Link: l, Payload: p})
		}
	}
	return frames, len(frames) == 0, nil
}

// Broadcast writes payload to every Link.
func (c *Connection) Broadcast(payload []byte) error {
	for _, l := range c.links {
		if err := l.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// SendCapability writes payload to every Link carrying the named capability
// ("imu", "mag", or "motor"). Battery rate configuration has no dedicated
// capability flag, so it is broadcast to every Link (a Link that ignores an
// unknown tag simply drops it, mirroring the board's own "lengths other
// than those listed are logged and dropped" rule).
func (c *Connection) SendCapability(capability string, payload []byte) error {
	for _, l := range c.links {
		var has bool
		switch capability {
		case "imu":
			has = l.IMU
		case "mag":
			has = l.Mag
		case "motor":
			has = l.Motor
		}
		if !has {
			continue
		}
		if err := l.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// SendToRotor writes payload only to the Link whose motor-id range owns
// rotorID.
func (c *Connection) SendToRotor(rotorID int, payload []byte) error {
	for _, l := range c.links {
		if l.Owns(rotorID) {
			return l.Write(payload)
		}
	}
	return &rotorerr.BadDeviceError{Message: "no Link owns rotor id"}
}

// MotorLinks returns every Link with motor capability, in Connection order.
func (c *Connection) MotorLinks() []*link.Link {
	var out []*link.Link
	for _, l := range c.links {
		if l.Motor {
			out = append(out, l)
		}
	}
	return out
}
