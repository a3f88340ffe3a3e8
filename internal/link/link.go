// Package link owns one open serial connection to one flight-board device:
// its file descriptor, negotiated identity, capability flags, and receive
// framing state. The serial-open idiom (go.bug.st/serial Mode{BaudRate,
// DataBits, Parity, StopBits} + SetReadTimeout) is grounded on
// actuators/mavlink_protocol.go's OpenSerialPort/ReadMessage pair; the
// handshake retry-with-deadline loop is this package's own.
package link

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/rotorbridge/rotorbridge/internal/codec"
	"github.com/rotorbridge/rotorbridge/internal/devicetable"
	"github.com/rotorbridge/rotorbridge/internal/rotorerr"
)

// MaxRotors bounds the global motor-id space shared across all Links.
const MaxRotors = 8

const handshakeAttempts = 3
const handshakeDeadline = 500 * time.Millisecond

// Link is one open serial connection plus its negotiated identity and
// capability surface.
type Link struct {
	port serial.Port
	path string

	// devIno identifies the OS device/inode backing path, so the same
	// physical device cannot be opened twice under two different names.
	devIno string

	Device devicetable.Spec
	Rev    float64

	IMU   bool
	Mag   bool
	Motor bool

	MinID int
	MaxID int

	reader *codec.Reader

	log *logrus.Entry
}

// Open configures the TTY 8N1 at baud, flushes stale input, and runs the
// identify handshake. MinID/MaxID must be assigned by the caller
// (the Supervisor) once capability is known; Open itself only negotiates device
// identity.
func Open(path string, baud int, log *logrus.Entry) (*Link, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, &rotorerr.SysError{Context: fmt.Sprintf("open %s", path), Err: err}
	}
	if err := port.SetReadTimeout(handshakeDeadline); err != nil {
		port.Close()
		return nil, &rotorerr.SysError{Context: "set read timeout", Err: err}
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, &rotorerr.SysError{Context: "flush input", Err: err}
	}

	devIno, err := deviceIdentity(path)
	if err != nil {
		port.Close()
		return nil, &rotorerr.SysError{Context: "stat " + path, Err: err}
	}

	l := &Link{
		port:   port,
		path:   path,
		devIno: devIno,
		reader: codec.NewReader(),
		log:    log,
	}

	if err := l.handshake(); err != nil {
		port.Close()
		return nil, err
	}
	return l, nil
}

func deviceIdentity(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d:%v", path, fi.Size(), fi.ModTime().UnixNano()), nil
}

// DevIno reports the OS device/inode identity string used to detect the
// same physical device opened twice.
func (l *Link) DevIno() string { return l.devIno }

// Path returns the human-facing device path.
func (l *Link) Path() string { return l.path }

func (l *Link) handshake() error {
	identify := codec.Frame(codec.NewBuilder('?').Bytes())

	var identity string
	for attempt := 0; attempt < handshakeAttempts; attempt++ {
		if _, err := l.port.Write(identify); err != nil {
			return &rotorerr.SysError{Context: "write identify", Err: err}
		}

		buf := make([]byte, 64)
		deadline := time.Now().Add(handshakeDeadline)
		for time.Now().Before(deadline) {
			n, err := l.port.Read(buf)
			if err != nil {
				return &rotorerr.SysError{Context: "read identify reply", Err: err}
			}
			for _, frame := range l.reader.PushBytes(buf[:n]) {
				if len(frame) > 0 && frame[0] == '?' {
					identity = string(codec.NewParser(frame).Skip().Rest())
				}
			}
			if identity != "" {
				break
			}
		}
		if identity != "" {
			break
		}
	}

	if identity == "" {
		return &rotorerr.BadDeviceError{Message: fmt.Sprintf("no identify reply from %s after %d attempts", l.path, handshakeAttempts)}
	}

	spec, rev, ok := devicetable.Identify(identity)
	if !ok {
		return &rotorerr.BadDeviceError{Message: fmt.Sprintf("unrecognized device identity %q", identity)}
	}
	if rev < spec.MinRev {
		return &rotorerr.BadDeviceError{Message: fmt.Sprintf("%s firmware %.1f older than minimum %s", spec.Kind, rev, spec.MinRevString())}
	}

	l.Device = spec
	l.Rev = rev
	if l.log != nil {
		l.log.WithFields(logrus.Fields{"path": l.path, "device": spec.Kind.String(), "rev": rev}).Info("link handshake complete")
	}
	return nil
}

// Write sends a framed message on this Link.
func (l *Link) Write(payload []byte) error {
	_, err := l.port.Write(codec.Frame(payload))
	if err != nil {
		return &rotorerr.SysError{Context: "write " + l.path, Err: err}
	}
	return nil
}

// ReadAvailable does a single non-blocking-ish read bounded by the port's
// configured read timeout, feeding bytes into the framing state machine and
// returning every complete frame found.
func (l *Link) ReadAvailable() ([][]byte, error) {
	buf := make([]byte, 256)
	n, err := l.port.Read(buf)
	if err != nil {
		return nil, &rotorerr.SysError{Context: "read " + l.path, Err: err}
	}
	if n == 0 {
		return nil, nil
	}
	return l.reader.PushBytes(buf[:n]), nil
}

// SetReadTimeout adjusts the blocking-read deadline (used by Connection.Poll
// to implement the 500 ms comm poll budget).
func (l *Link) SetReadTimeout(d time.Duration) error {
	return l.port.SetReadTimeout(d)
}

// Close releases the serial file descriptor. Safe to call more than once.
func (l *Link) Close() error {
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	return err
}

// Owns reports whether the global rotor id falls within this Link's
// contiguous motor-id range.
func (l *Link) Owns(rotorID int) bool {
	return l.Motor && rotorID >= l.MinID && rotorID <= l.MaxID
}
