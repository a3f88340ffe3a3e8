package link

import (
	"io"
	"testing"
	"time"

	"go.bug.st/serial"

	"github.com/rotorbridge/rotorbridge/internal/codec"
	"github.com/rotorbridge/rotorbridge/internal/devicetable"
)

// fakePort is a minimal serial.Port double: Write records frames, Read
// drains a canned response queue.
type fakePort struct {
	written [][]byte
	toRead  [][]byte
	closed  bool
}

func (f *fakePort) Write(p []byte) (int, error) {
	cp := append([]byte(nil), p...)
	f.written = append(f.written, cp)
	return len(p), nil
}

func (f *fakePort) Read(p []byte) (int, error) {
	if len(f.toRead) == 0 {
		return 0, io.EOF
	}
	next := f.toRead[0]
	f.toRead = f.toRead[1:]
	n := copy(p, next)
	return n, nil
}

func (f *fakePort) Close() error                               { f.closed = true; return nil }
func (f *fakePort) SetMode(mode *serial.Mode) error             { return nil }
func (f *fakePort) Drain() error                                { return nil }
func (f *fakePort) ResetInputBuffer() error                     { return nil }
func (f *fakePort) ResetOutputBuffer() error                    { return nil }
func (f *fakePort) SetDTR(dtr bool) error                       { return nil }
func (f *fakePort) SetRTS(rts bool) error                       { return nil }
func (f *fakePort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	return &serial.ModemStatusBits{}, nil
}
func (f *fakePort) SetReadTimeout(t time.Duration) error { return nil }

func testLink() (*Link, *fakePort) {
	fp := &fakePort{}
	l := &Link{
		port:   fp,
		path:   "/dev/fake0",
		reader: codec.NewReader(),
	}
	spec, _ := devicetable.Lookup(devicetable.CHIMERA)
	l.Device = spec
	l.MinID, l.MaxID = 1, 4
	l.Motor = true
	return l, fp
}

func TestWriteFramesThePayload(t *testing.T) {
	l, fp := testLink()
	if err := l.Write([]byte{'x'}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(fp.written) != 1 {
		t.Fatalf("expected one write, got %d", len(fp.written))
	}
	got := fp.written[0]
	if got[0] != 0x1A || got[len(got)-1] != 0x0D {
		t.Fatalf("expected framed payload with start/end bytes, got % x", got)
	}
}

func TestReadAvailableDecodesFrames(t *testing.T) {
	l, fp := testLink()
	framed := codec.Frame(codec.NewBuilder('I').U8(1).Bytes())
	fp.toRead = [][]byte{framed}

	frames, err := l.ReadAvailable()
	if err != nil {
		t.Fatalf("ReadAvailable: %v", err)
	}
	if len(frames) != 1 || frames[0][0] != 'I' {
		t.Fatalf("expected one decoded 'I' frame, got %v", frames)
	}
}

func TestOwnsChecksMotorCapabilityAndRange(t *testing.T) {
	l, _ := testLink()
	if !l.Owns(2) {
		t.Fatalf("expected rotor 2 to be owned (range 1-4, motor capable)")
	}
	if l.Owns(5) {
		t.Fatalf("expected rotor 5 to be out of range")
	}

	l.Motor = false
	if l.Owns(2) {
		t.Fatalf("expected Owns to be false once Motor capability is cleared")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	l, fp := testLink()
	if err := l.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if !fp.closed {
		t.Fatalf("expected underlying port closed")
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
}
