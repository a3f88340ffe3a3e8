// Package logwriter implements the decimated, single-outstanding-write log
// record writer. The non-blocking-send-with-drop idiom (select on an
// unbuffered channel with a default branch that increments a missed counter)
// is grounded on livefeed/streamer.go's BroadcastTelemetry, which uses the
// same shape to avoid blocking a hot path on a slow consumer.
package logwriter

import (
	"bufio"
	"os"
	"sync/atomic"

	"github.com/rotorbridge/rotorbridge/internal/rotor"
)

// Record is one fully-formed log line's worth of data, gathered once per
// main-task tick.
type Record struct {
	Sec, Nsec               int64
	RateIMU, RateMag, RateMotor float64
	BatteryLevel             float64
	BatteryPresent           bool
	Temp                     float64
	HasTemp                  bool
	Gyro, GyroRaw            [3]float64
	Accel, AccelRaw          [3]float64
	Mag, MagRaw              [3]float64
	IMUPresent, MagPresent   bool
	Rotors                   rotor.Set
	Changed                  bool // not read by FormatLine
}

// Writer accepts prepared records and writes them out, decimated and with a
// single outstanding write in flight.
type Writer struct {
	ch     chan string
	done   chan struct{}
	f      *os.File
	w      *bufio.Writer
	missed int64

	path       string
	decimation int
	tick       int
}

// New opens path for writing and starts the background write-back
// goroutine. decimation must be >= 1; a record is only formatted and queued
// every decimation-th call to Write.
func New(path string, decimation int) (*Writer, error) {
	if decimation < 1 {
		decimation = 1
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := &Writer{
		ch:         make(chan string),
		done:       make(chan struct{}),
		f:          f,
		w:          bufio.NewWriter(f),
		path:       path,
		decimation: decimation,
	}
	go w.run()
	return w, nil
}

func (w *Writer) run() {
	for {
		select {
		case line, ok := <-w.ch:
			if !ok {
				w.w.Flush()
				return
			}
			w.w.WriteString(line)
			w.w.WriteByte('\n')
			w.w.Flush()
		case <-w.done:
			w.w.Flush()
			return
		}
	}
}

// Write decimates and queues one record. If the prior write is still in
// flight, the record is dropped and Missed is incremented — this is the
// policy that must survive any rewrite: head-of-line blocking on a 1ms tick
// is worse than an occasionally-skipped log line.
func (w *Writer) Write(r Record) {
	w.tick++
	if w.tick%w.decimation != 0 {
		return
	}
	line := FormatLine(r)
	select {
	case w.ch <- line:
	default:
		atomic.AddInt64(&w.missed, 1)
	}
}

// Missed reports how many records have been dropped due to a write still in
// flight.
func (w *Writer) Missed() int64 {
	return atomic.LoadInt64(&w.missed)
}

// Path returns the log file path this Writer was opened with.
func (w *Writer) Path() string { return w.path }

// Decimation returns the configured decimation factor.
func (w *Writer) Decimation() int { return w.decimation }

// WriteHeader synchronously writes the '#'-prefixed header lines before any
// decimated record is queued, used once right after New to record
// calibration, filter cutoffs, rates, and wall-clock start.
func (w *Writer) WriteHeader(lines []string) error {
	if _, err := w.w.WriteString(Header(lines)); err != nil {
		return err
	}
	return w.w.Flush()
}

// Close stops the write-back goroutine and closes the file.
func (w *Writer) Close() error {
	close(w.done)
	return w.f.Close()
}

// Header returns the '#'-prefixed header lines this writer's log file
// starts with (calibration, filter cutoffs, rates, wall-clock start).
func Header(lines []string) string {
	out := ""
	for _, l := range lines {
		out += "# " + l + "\n"
	}
	return out
}
