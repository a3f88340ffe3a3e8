// Package supervisor owns the two cooperating periodic tasks (comm, main)
// and the one-shot activities (connect, pconnect, disconnect, calibrate_imu,
// calibrate_mag, set_zero, set_zero_velocity, get_sensor_average, start,
// servo, stop, log) that drive them. Its goroutine-per-task-against-one-
// context lifecycle is grounded on cmd/valkyrie/main.go's
// Initialize/Start/Shutdown shape: a sync.WaitGroup of goroutines, each
// selecting on a shared context done channel.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rotorbridge/rotorbridge/internal/calib"
	"github.com/rotorbridge/rotorbridge/internal/config"
	"github.com/rotorbridge/rotorbridge/internal/connection"
	"github.com/rotorbridge/rotorbridge/internal/control"
	"github.com/rotorbridge/rotorbridge/internal/filter"
	"github.com/rotorbridge/rotorbridge/internal/link"
	"github.com/rotorbridge/rotorbridge/internal/logwriter"
	"github.com/rotorbridge/rotorbridge/internal/rotor"
	"github.com/rotorbridge/rotorbridge/internal/rotorerr"
	"github.com/rotorbridge/rotorbridge/internal/sensorpipeline"
	"github.com/rotorbridge/rotorbridge/internal/servo"
	"github.com/rotorbridge/rotorbridge/internal/startup"
)

const commPollBudget = 500 * time.Millisecond

// calibKind distinguishes which calibration activity is feeding the active
// Solver, since Fini's results are applied to different Pipeline fields.
type calibKind int

const (
	calibIMU calibKind = iota
	calibMag
)

type calibrationState struct {
	kind    calibKind
	solver  calib.Solver
	logPath string
}

// avgKind distinguishes the three activities that share the accumulate-
// over-a-duration shape: set_zero, set_zero_velocity, and
// get_sensor_average.
type avgKind int

const (
	avgSetZero avgKind = iota
	avgSetZeroVelocity
	avgGetSensorAverage
)

type avgState struct {
	kind      avgKind
	remaining float64

	gyroSum, accelSum, magSum [3]float64
	gyroN, accelN, magN       int

	lastIMUSec, lastIMUNsec int64
	lastMagSec, lastMagNsec int64
}

// SensorAverage is get_sensor_average's result: the mean gyro/accel/mag
// reading over the requested duration, with per-channel presence flags for
// channels that never reported a sample.
type SensorAverage struct {
	Gyro, Accel, Mag          [3]float64
	GyroOK, AccelOK, MagOK bool
}

// LogStatus is log_info's result.
type LogStatus struct {
	Active     bool
	Path       string
	Decimation int
	Missed     int64
}

// Supervisor owns every cross-component field for the process lifetime:
// Connection, rotor/battery records, SensorPipeline, and the logger.
type Supervisor struct {
	cfg config.Config
	log *logrus.Entry

	conn      *connection.Connection
	rotors    rotor.Set
	battery   rotor.Battery
	pipeline  *sensorpipeline.Pipeline
	plane     *control.Plane
	servoLoop *servo.Loop

	logger *logwriter.Writer

	calib *calibrationState
	avg   *avgState
	lastAverage SensorAverage

	cmdMu      sync.Mutex
	cmdInput   servo.Command
	cmdArrival time.Time

	wg sync.WaitGroup
}

// New builds a Supervisor from configuration but opens no Links yet; call
// Connect to bring the vehicle up.
func New(cfg config.Config, log *logrus.Entry) *Supervisor {
	s := &Supervisor{cfg: cfg, log: log}
	s.conn = connection.New(log)
	s.pipeline = sensorpipeline.New(0, &s.rotors, &s.battery)
	s.battery = rotor.NewBattery()
	if cfg.BatteryLimits.Min != 0 || cfg.BatteryLimits.Max != 0 {
		s.battery.Min = cfg.BatteryLimits.Min
		s.battery.Max = cfg.BatteryLimits.Max
	}
	s.pipeline.ImuRate = cfg.SensorRates.IMU
	s.pipeline.MagRate = cfg.SensorRates.Mag
	s.pipeline.MotorRate = cfg.SensorRates.Motor
	s.pipeline.BatteryRate = cfg.SensorRates.Battery

	s.plane = control.New(s.conn, &s.rotors, s.pipeline)
	s.servoLoop = servo.New(servo.Config{
		ControlPeriodMs: cfg.ControlPeriodMs,
		RampSeconds:     cfg.RampSeconds,
		TimeoutSeconds:  cfg.ServoTimeoutSec,
	}, s.plane, &s.rotors, s.pipeline)
	return s
}

// Connect opens every configured Link and adds it to the Connection,
// rejecting on the first handshake or invariant failure.
func (s *Supervisor) Connect() error {
	for _, lc := range s.cfg.Links {
		l, err := link.Open(lc.Path, lc.Baud, s.log)
		if err != nil {
			return err
		}
		l.IMU, l.Mag, l.Motor = lc.IMU, lc.Mag, lc.Motor
		l.MinID, l.MaxID = lc.MinID, lc.MaxID
		if err := s.conn.Add(l); err != nil {
			l.Close()
			return err
		}
	}
	return s.plane.SetSensorRate(
		s.cfg.SensorRates.IMU, s.cfg.SensorRates.Mag,
		s.cfg.SensorRates.Motor, s.cfg.SensorRates.Battery,
	)
}

// Pconnect implements the pconnect activity: it opens one additional Link
// into an already-running Connection. Any existing Link pointing at the
// same device inode is removed and closed first. For a motor-capable Link
// the new range runs from offset+1 to MaxRotors, except that an existing
// motor Link starting below offset+1 and reaching into it is shrunk to end
// at offset, with the new range ending at that Link's former end, and an
// existing motor Link starting at or after offset+1 makes the new range end
// just before it, mirroring the board firmware's own channel takeover rule. The ranges are
// settled before Connection.Add, so Add's grow-then-validate pass
// (internal/connection.Add) sees a non-overlapping candidate set. The
// removals and range shrinks are not undone if the range check or Add then
// fails.
func (s *Supervisor) Pconnect(path string, baud int, imu, mag, motor bool, offset int) error {
	l, err := link.Open(path, baud, s.log)
	if err != nil {
		return err
	}
	l.IMU, l.Mag, l.Motor = imu, mag, motor

	for _, existing := range s.conn.Links() {
		if existing.DevIno() == l.DevIno() {
			s.conn.Remove(existing)
			existing.Close()
		}
	}

	if motor {
		minID := offset + 1
		maxID := rotor.MaxRotors
		for _, existing := range s.conn.Links() {
			if !existing.Motor || existing.MaxID < minID {
				continue
			}
			if existing.MinID >= minID {
				if existing.MinID <= maxID {
					maxID = existing.MinID - 1
				}
				continue
			}
			maxID = existing.MaxID
			existing.MaxID = minID - 1
		}
		if maxID < minID || minID < 1 || maxID > rotor.MaxRotors {
			l.Close()
			return &rotorerr.BadDeviceError{Message: fmt.Sprintf("pconnect: invalid motor range %d-%d", minID, maxID)}
		}
		l.MinID, l.MaxID = minID, maxID
	}

	if err := s.conn.Add(l); err != nil {
		l.Close()
		return err
	}
	return s.plane.SetSensorRate(
		s.cfg.SensorRates.IMU, s.cfg.SensorRates.Mag,
		s.cfg.SensorRates.Motor, s.cfg.SensorRates.Battery,
	)
}

// Disconnect closes every Link and empties the Connection.
func (s *Supervisor) Disconnect() {
	s.conn.Close()
}

// StartRotors runs the startup sequencer to completion (or first error),
// ticking it in lock-step at the configured control period.
func (s *Supervisor) StartRotors(ctx context.Context) error {
	seq, err := startup.New(s.conn, &s.rotors, s.pipeline,
		s.cfg.ServoTimeoutSec, s.cfg.ControlPeriodMs,
		s.cfg.SensorRates.IMU, s.cfg.SensorRates.Mag, s.cfg.SensorRates.Motor)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(time.Duration(s.cfg.ControlPeriodMs * float64(time.Millisecond)))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			status, err := seq.Tick()
			if err != nil {
				return err
			}
			if status == startup.StatusDone {
				return nil
			}
		}
	}
}

// StopRotors runs the stop activity to completion: it broadcasts the
// emergency-stop tag every control period until no non-disabled rotor is
// still reporting fresh spinning telemetry (StopTick's 500ms watchdog
// ignores anything stale), then returns.
func (s *Supervisor) StopRotors(ctx context.Context) error {
	period := time.Duration(s.cfg.ControlPeriodMs * float64(time.Millisecond))
	if period <= 0 {
		period = time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := float64(time.Now().UnixNano()) / 1e9
			done, err := s.plane.StopTick(now)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}

// SetCommand publishes the latest servo command input; the main task reads
// it on its own cadence, so this never blocks.
func (s *Supervisor) SetCommand(cmd servo.Command) {
	s.cmdMu.Lock()
	s.cmdInput = cmd
	s.cmdArrival = time.Now()
	s.cmdMu.Unlock()
}

func (s *Supervisor) commandSnapshot() servo.Command {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	cmd := s.cmdInput
	cmd.AgeMs = float64(time.Since(s.cmdArrival).Milliseconds())
	return cmd
}

// StartLog begins writing decimated log lines to path, opening with the
// '#'-prefixed header rc_log_header describes: calibration, filter
// cutoffs, sensor rates, and wall-clock start.
func (s *Supervisor) StartLog(path string, decimation int) error {
	w, err := logwriter.New(path, decimation)
	if err != nil {
		return err
	}
	if err := w.WriteHeader(s.logHeaderLines()); err != nil {
		w.Close()
		return err
	}
	s.logger = w
	return nil
}

func (s *Supervisor) logHeaderLines() []string {
	gfc, afc, mfc := s.GetIMUFilter()
	gcal, acal, mcal := s.pipeline.GyroCal, s.pipeline.AccelCal, s.pipeline.MagCal
	return []string{
		fmt.Sprintf("logged on %s", time.Now().Format(time.RFC1123)),
		fmt.Sprintf("gyro calibration: scale=%v bias=%v", gcal.Scale, gcal.Bias),
		fmt.Sprintf("accel calibration: scale=%v bias=%v", acal.Scale, acal.Bias),
		fmt.Sprintf("mag calibration: scale=%v bias=%v", mcal.Scale, mcal.Bias),
		fmt.Sprintf("filter cutoffs: gyro=%.3f accel=%.3f mag=%.3f", gfc, afc, mfc),
		fmt.Sprintf("sensor rates: imu=%.1f mag=%.1f motor=%.1f battery=%.1f",
			s.cfg.SensorRates.IMU, s.cfg.SensorRates.Mag, s.cfg.SensorRates.Motor, s.cfg.SensorRates.Battery),
	}
}

// StopLog stops and closes the log writer, if one is running.
func (s *Supervisor) StopLog() error {
	if s.logger == nil {
		return nil
	}
	err := s.logger.Close()
	s.logger = nil
	return err
}

// LogInfo implements the log_info function: whether logging is active, its
// path and decimation factor, and how many records have been dropped.
func (s *Supervisor) LogInfo() LogStatus {
	if s.logger == nil {
		return LogStatus{}
	}
	return LogStatus{
		Active:     true,
		Path:       s.logger.Path(),
		Decimation: s.logger.Decimation(),
		Missed:     s.logger.Missed(),
	}
}

// StartCalibrateIMU begins the calibrate_imu activity: hold nPoses static
// orientations for tstillSeconds each, logging the outcome (success or
// failure) to logPath if non-empty. Feed it with CalibrateTick once per
// control-period tick until CalibrationActive reports false.
func (s *Supervisor) StartCalibrateIMU(tstillSeconds float64, nPoses int, logPath string) error {
	sps := 1000 / s.cfg.ControlPeriodMs
	solver := calib.NewSixPoseSolver()
	if err := solver.Init(int(tstillSeconds*sps), nPoses, sps, s.cfg.MotionTolerance); err != nil {
		return err
	}
	s.calib = &calibrationState{kind: calibIMU, solver: solver, logPath: logPath}
	s.log.Info("calibration started")
	return nil
}

// StartCalibrateMag begins the calibrate_mag activity. It always holds two
// poses, independent of calibrate_imu's caller-supplied nPoses.
func (s *Supervisor) StartCalibrateMag(tstillSeconds float64, logPath string) error {
	sps := 1000 / s.cfg.ControlPeriodMs
	solver := calib.NewSixPoseSolver()
	if err := solver.Init(int(tstillSeconds*sps), 2, sps, s.cfg.MotionTolerance); err != nil {
		return err
	}
	s.calib = &calibrationState{kind: calibMag, solver: solver, logPath: logPath}
	s.log.Info("calibration started")
	return nil
}

// CalibrationActive reports whether calibrate_imu or calibrate_mag is
// currently collecting samples.
func (s *Supervisor) CalibrationActive() bool { return s.calib != nil }

// CalibrateTick feeds the latest IMU/Mag sample into the active solver.
// Called once per control-period tick while CalibrationActive; a no-op
// otherwise. Returns the error the activity terminated with, if any.
func (s *Supervisor) CalibrateTick() error {
	c := s.calib
	if c == nil {
		return nil
	}
	imu := s.pipeline.IMUOut
	mag := s.pipeline.MagOut
	if !imu.Present {
		return nil
	}

	outcome := c.solver.Collect(imu.Temp, imu.AccelRaw, mag.MagRaw)
	switch outcome.Status {
	case calib.StatusAgain:
		return nil
	case calib.StatusError:
		s.log.WithError(outcome.Err).Warn("calibration aborted")
		s.finishCalibration(false)
		return outcome.Err
	default:
		s.log.WithField("poses", outcome.StillCount).Info("calibration acquired all poses")
		s.finishCalibration(true)
		return nil
	}
}

func (s *Supervisor) finishCalibration(ok bool) {
	c := s.calib
	s.calib = nil
	if c == nil {
		return
	}

	fini := c.solver.Fini()
	if ok {
		switch c.kind {
		case calibIMU:
			ascale, abias := c.solver.Acc()
			gscale, gbias := c.solver.Gyr()
			s.pipeline.AccelCal = filter.Calibration{Scale: ascale, Bias: abias, Stddev: fini.Stddev}
			s.pipeline.GyroCal = filter.Calibration{Scale: gscale, Bias: gbias, Stddev: fini.Stddev}
			if s.cfg.SensorRates.Mag > 0 {
				mscale, mbias := c.solver.Mag()
				s.pipeline.MagCal = filter.Calibration{Scale: mscale, Bias: mbias}
			}
			s.log.WithFields(logrus.Fields{
				"max_accel": fini.MaxAccel, "max_gyro": fini.MaxGyro,
			}).Info("imu calibration complete")
		case calibMag:
			mscale, mbias := c.solver.Mag()
			s.pipeline.MagCal = filter.Calibration{Scale: mscale, Bias: mbias, Stddev: fini.Stddev}
			s.log.Info("magnetometer calibration complete")
		}
	}

	if c.logPath != "" {
		if err := s.writeCalibrationLog(c.logPath); err != nil {
			s.log.WithError(err).Warn("failed to write calibration log")
		}
	}
}

// writeCalibrationLog appends the same header lines StartLog writes, used by
// calibrate_imu/calibrate_mag to log their outcome on both success and
// failure, matching rc_log_header's dual call sites in the original codels.
func (s *Supervisor) writeCalibrationLog(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(logwriter.Header(s.logHeaderLines()))
	return err
}

// SetIMUCalibration implements the set_imu_calibration function: it
// installs a previously computed calibration directly, without running the
// calibrate_imu/calibrate_mag acquisition activities.
func (s *Supervisor) SetIMUCalibration(gyroScale, accelScale, magScale [3][3]float64, gyroBias, accelBias, magBias [3]float64) {
	s.pipeline.GyroCal = filter.Calibration{Scale: gyroScale, Bias: gyroBias}
	s.pipeline.AccelCal = filter.Calibration{Scale: accelScale, Bias: accelBias}
	s.pipeline.MagCal = filter.Calibration{Scale: magScale, Bias: magBias}
}

// StartSetZero begins the set_zero activity: it holds still for the
// configured average duration, zeroes the gyro bias from the averaged
// angular rate (as set_zero_velocity does), and additionally levels
// gscale/ascale from the averaged accelerometer vector.
func (s *Supervisor) StartSetZero() error {
	s.avg = &avgState{kind: avgSetZero, remaining: s.cfg.AverageDurationSec}
	return nil
}

// StartSetZeroVelocity begins the set_zero_velocity activity: it holds
// still and zeroes only the gyro bias.
func (s *Supervisor) StartSetZeroVelocity() error {
	s.avg = &avgState{kind: avgSetZeroVelocity, remaining: s.cfg.AverageDurationSec}
	return nil
}

// StartGetSensorAverage begins the get_sensor_average activity, averaging
// gyro/accel/mag over durationSeconds without touching calibration state.
func (s *Supervisor) StartGetSensorAverage(durationSeconds float64) error {
	s.avg = &avgState{kind: avgGetSensorAverage, remaining: durationSeconds}
	return nil
}

// AverageActive reports whether set_zero, set_zero_velocity, or
// get_sensor_average is currently accumulating samples.
func (s *Supervisor) AverageActive() bool { return s.avg != nil }

// AverageTick folds in one control-period tick's worth of samples. Called
// once per tick while AverageActive; a no-op otherwise.
func (s *Supervisor) AverageTick() error {
	a := s.avg
	if a == nil {
		return nil
	}

	imu := s.pipeline.IMUOut
	if imu.Present && (imu.Sec != a.lastIMUSec || imu.Nsec != a.lastIMUNsec) {
		for i := 0; i < 3; i++ {
			a.gyroSum[i] += imu.Gyro[i]
			a.accelSum[i] += imu.Accel[i]
		}
		a.gyroN++
		a.accelN++
		a.lastIMUSec, a.lastIMUNsec = imu.Sec, imu.Nsec
	}

	mag := s.pipeline.MagOut
	if mag.Present && (mag.Sec != a.lastMagSec || mag.Nsec != a.lastMagNsec) {
		for i := 0; i < 3; i++ {
			a.magSum[i] += mag.Mag[i]
		}
		a.magN++
		a.lastMagSec, a.lastMagNsec = mag.Sec, mag.Nsec
	}

	a.remaining -= s.cfg.ControlPeriodMs / 1000
	if a.remaining > 0 {
		return nil
	}
	return s.finishAverage()
}

func (s *Supervisor) finishAverage() error {
	a := s.avg
	s.avg = nil
	if a == nil {
		return nil
	}
	if a.gyroN == 0 && a.accelN == 0 && a.magN == 0 {
		return &rotorerr.SysError{Context: "sensor averaging", Err: errors.New("no samples collected")}
	}

	avgGyro := meanOf(a.gyroSum, a.gyroN)
	avgAccel := meanOf(a.accelSum, a.accelN)
	avgMag := meanOf(a.magSum, a.magN)

	switch a.kind {
	case avgSetZero:
		s.applyGyroBias(avgGyro)
		s.applyLevelRotation(avgAccel)
	case avgSetZeroVelocity:
		s.applyGyroBias(avgGyro)
	case avgGetSensorAverage:
		s.lastAverage = SensorAverage{
			Gyro: avgGyro, Accel: avgAccel, Mag: avgMag,
			GyroOK: a.gyroN > 0, AccelOK: a.accelN > 0, MagOK: a.magN > 0,
		}
	}
	return nil
}

func meanOf(sum [3]float64, n int) [3]float64 {
	if n == 0 {
		return [3]float64{math.NaN(), math.NaN(), math.NaN()}
	}
	return [3]float64{sum[0] / float64(n), sum[1] / float64(n), sum[2] / float64(n)}
}

// applyGyroBias negates the averaged angular rate into the gyro bias, the
// operation set_zero and set_zero_velocity share.
func (s *Supervisor) applyGyroBias(avgGyro [3]float64) {
	if math.IsNaN(avgGyro[0]) {
		return
	}
	s.pipeline.GyroCal.Bias = [3]float64{-avgGyro[0], -avgGyro[1], -avgGyro[2]}
}

// applyLevelRotation folds set_zero's computed level rotation into both
// gscale and ascale.
func (s *Supervisor) applyLevelRotation(avgAccel [3]float64) {
	if math.IsNaN(avgAccel[0]) {
		return
	}
	rot := calib.LevelRotation(avgAccel)
	s.pipeline.GyroCal.Scale = calib.PostMultiply(s.pipeline.GyroCal.Scale, rot)
	s.pipeline.AccelCal.Scale = calib.PostMultiply(s.pipeline.AccelCal.Scale, rot)
}

// GetSensorAverageResult returns the most recently completed
// get_sensor_average activity's result.
func (s *Supervisor) GetSensorAverageResult() SensorAverage { return s.lastAverage }

// Run starts the comm and main cooperative tasks and blocks until ctx is
// cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	s.wg.Add(2)
	go s.commTask(ctx)
	go s.mainTask(ctx)
	s.wg.Wait()
}

func (s *Supervisor) commTask(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frames, noData, err := s.conn.Poll(commPollBudget)
		if err != nil {
			s.log.WithError(err).Warn("comm poll failed")
			continue
		}
		now := float64(time.Now().UnixNano()) / 1e9
		if noData {
			s.pipeline.NoData()
			if resendErr := s.plane.SetSensorRate(
				s.cfg.SensorRates.IMU, s.cfg.SensorRates.Mag,
				s.cfg.SensorRates.Motor, s.cfg.SensorRates.Battery,
			); resendErr != nil {
				s.log.WithError(resendErr).Warn("resend sensor rate after no-data failed, disconnecting")
				s.Disconnect()
				return
			}
			continue
		}
		for _, f := range frames {
			s.pipeline.Handle(f, now)
		}
	}
}

func (s *Supervisor) mainTask(ctx context.Context) {
	defer s.wg.Done()
	period := time.Duration(s.cfg.ControlPeriodMs * float64(time.Millisecond))
	if period <= 0 {
		period = time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++

			// calibrate_imu/calibrate_mag and set_zero/set_zero_velocity/
			// get_sensor_average hold the vehicle still, so they preempt
			// the servo loop for as long as they're active rather than
			// fighting it for the command output.
			switch {
			case s.CalibrationActive():
				if err := s.CalibrateTick(); err != nil {
					s.log.WithError(err).Debug("calibration tick reported an error")
				}
			case s.AverageActive():
				if err := s.AverageTick(); err != nil {
					s.log.WithError(err).Debug("sensor averaging tick reported an error")
				}
			default:
				cmd := s.commandSnapshot()
				if err := s.servoLoop.Tick(cmd, s.cfg.SensorRates.IMU, s.cfg.SensorRates.Mag, s.cfg.SensorRates.Motor); err != nil {
					s.log.WithError(err).Debug("servo tick reported an error")
				}
			}

			// Battery alarm: on every 500th tick, beep if below min.
			if tick%500 == 0 && s.battery.Level < s.battery.Min {
				s.conn.Broadcast(beepPayload(440))
			}

			if s.logger != nil {
				s.logger.Write(s.logRecord())
			}
		}
	}
}

func beepPayload(hz uint16) []byte {
	return []byte{'~', byte(hz >> 8), byte(hz)}
}

func (s *Supervisor) logRecord() logwriter.Record {
	imu := s.pipeline.IMUOut
	mag := s.pipeline.MagOut
	return logwriter.Record{
		Sec: imu.Sec, Nsec: imu.Nsec,
		RateIMU: s.pipeline.IMUMeasuredRate(), RateMag: s.pipeline.MagMeasuredRate(),
		BatteryLevel: s.battery.Level, BatteryPresent: !isNaN(s.battery.Level),
		Temp: imu.Temp, HasTemp: imu.HasTemp,
		Gyro: imu.Gyro, GyroRaw: imu.GyroRaw,
		Accel: imu.Accel, AccelRaw: imu.AccelRaw,
		Mag: mag.Mag, MagRaw: mag.MagRaw,
		IMUPresent: imu.Present, MagPresent: mag.Present,
		Rotors: s.rotors,
	}
}

func isNaN(v float64) bool { return v != v }

// RefreshFilterFromCutoffs applies configured low-pass cutoffs, preserving
// them across subsequent sensor-rate changes.
func (s *Supervisor) RefreshFilterFromCutoffs() {
	s.pipeline.GyroFC = s.cfg.FilterCutoffs.Gyro
	s.pipeline.AccelFC = s.cfg.FilterCutoffs.Accel
	s.pipeline.MagFC = s.cfg.FilterCutoffs.Mag
	s.pipeline.RefreshFilterAlpha()
}

// SetIMUFilter sets all three axis-group cutoffs directly (the
// set_imu_filter activity).
func (s *Supervisor) SetIMUFilter(gfc, afc, mfc float64) {
	s.pipeline.GyroFC = gfc
	s.pipeline.AccelFC = afc
	s.pipeline.MagFC = mfc
	s.pipeline.RefreshFilterAlpha()
}

// GetIMUFilter reports the current per-axis fc values derived from alpha.
func (s *Supervisor) GetIMUFilter() (gfc, afc, mfc float64) {
	return filter.FcOf(s.pipeline.GyroFilter.Alpha, s.cfg.SensorRates.IMU),
		filter.FcOf(s.pipeline.AccelFilter.Alpha, s.cfg.SensorRates.IMU),
		filter.FcOf(s.pipeline.MagFilter.Alpha, s.cfg.SensorRates.Mag)
}

// Plane exposes the control plane for callers that need direct access
// (enable/disable motor, set_pid, etc).
func (s *Supervisor) Plane() *control.Plane { return s.plane }

// Rotors exposes the rotor record set.
func (s *Supervisor) Rotors() *rotor.Set { return &s.rotors }

// Battery exposes the battery record.
func (s *Supervisor) Battery() *rotor.Battery { return &s.battery }
