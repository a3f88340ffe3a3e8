package supervisor

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rotorbridge/rotorbridge/internal/config"
	"github.com/rotorbridge/rotorbridge/internal/servo"
)

func testSupervisor() *Supervisor {
	log := logrus.NewEntry(logrus.New())
	cfg := config.Default()
	cfg.SensorRates.IMU = 1000
	cfg.SensorRates.Mag = 100
	return New(cfg, log)
}

func TestBeepPayloadEncodesFrequencyBigEndian(t *testing.T) {
	got := beepPayload(440)
	want := []byte{'~', 0x01, 0xB8}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Fatalf("beepPayload(440) = %v, want %v", got, want)
	}
}

func TestCommandSnapshotReportsAge(t *testing.T) {
	s := testSupervisor()
	s.SetCommand(servo.Command{Mode: servo.ModeVelocity, Values: []float64{1, 2, 3}})
	time.Sleep(5 * time.Millisecond)

	snap := s.commandSnapshot()
	if snap.AgeMs < 1 {
		t.Fatalf("expected non-trivial age after sleep, got %v ms", snap.AgeMs)
	}
	if len(snap.Values) != 3 || snap.Values[1] != 2 {
		t.Fatalf("expected command values preserved, got %v", snap.Values)
	}
}

func TestSetIMUFilterRoundTripsThroughGetIMUFilter(t *testing.T) {
	s := testSupervisor()
	s.SetIMUFilter(30, 40, 10)

	gfc, afc, mfc := s.GetIMUFilter()
	if diff := gfc - 30; diff > 0.01 || diff < -0.01 {
		t.Fatalf("gyro fc round trip: got %v, want ~30", gfc)
	}
	if diff := afc - 40; diff > 0.01 || diff < -0.01 {
		t.Fatalf("accel fc round trip: got %v, want ~40", afc)
	}
	if diff := mfc - 10; diff > 0.01 || diff < -0.01 {
		t.Fatalf("mag fc round trip: got %v, want ~10", mfc)
	}
}

func TestLogRecordReflectsPipelineAndBatteryState(t *testing.T) {
	s := testSupervisor()
	s.battery.Level = 15.2

	rec := s.logRecord()
	if rec.BatteryLevel != 15.2 {
		t.Fatalf("expected battery level carried into record, got %v", rec.BatteryLevel)
	}
	if !rec.BatteryPresent {
		t.Fatalf("expected battery present for a non-NaN level")
	}
}

func TestRotorsAndBatteryAccessorsExposeSharedState(t *testing.T) {
	s := testSupervisor()
	s.Rotors().At(1).WD = 123
	if s.Rotors().At(1).WD != 123 {
		t.Fatalf("expected Rotors() to expose the same backing array")
	}

	s.Battery().Level = 15.0
	if s.logRecord().BatteryLevel != 15.0 {
		t.Fatalf("expected Battery() to expose the same backing record")
	}
}

func TestCalibrateIMUCollectsAndAppliesResults(t *testing.T) {
	s := testSupervisor()
	if err := s.StartCalibrateIMU(0.002, 1, ""); err != nil {
		t.Fatalf("StartCalibrateIMU: %v", err)
	}
	if !s.CalibrationActive() {
		t.Fatalf("expected calibration to be active after start")
	}

	s.pipeline.IMUOut.Present = true
	s.pipeline.IMUOut.AccelRaw = [3]float64{1, 2, 3}
	for i := 0; i < 2; i++ {
		if err := s.CalibrateTick(); err != nil {
			t.Fatalf("CalibrateTick: %v", err)
		}
	}

	if s.CalibrationActive() {
		t.Fatalf("expected calibration to finish after samplesPerPose*nPoses ticks")
	}
	want := [3]float64{-1, -2, -3}
	if s.pipeline.AccelCal.Bias != want {
		t.Fatalf("accel bias = %v, want %v", s.pipeline.AccelCal.Bias, want)
	}
	if s.pipeline.GyroCal.Bias != want {
		t.Fatalf("gyro bias = %v, want %v", s.pipeline.GyroCal.Bias, want)
	}
}

func TestCalibrateMagAlwaysHoldsTwoPoses(t *testing.T) {
	s := testSupervisor()
	if err := s.StartCalibrateMag(0.002, ""); err != nil {
		t.Fatalf("StartCalibrateMag: %v", err)
	}

	s.pipeline.IMUOut.Present = true
	for i := 0; i < 2; i++ {
		if err := s.CalibrateTick(); err != nil {
			t.Fatalf("CalibrateTick pose 1 sample %d: %v", i, err)
		}
	}
	if !s.CalibrationActive() {
		t.Fatalf("expected a second pose still pending for calibrate_mag")
	}
	for i := 0; i < 2; i++ {
		if err := s.CalibrateTick(); err != nil {
			t.Fatalf("CalibrateTick pose 2 sample %d: %v", i, err)
		}
	}
	if s.CalibrationActive() {
		t.Fatalf("expected calibrate_mag to finish after its fixed two poses")
	}
}

func TestSetZeroVelocityAppliesNegativeGyroBias(t *testing.T) {
	s := testSupervisor()
	if err := s.StartSetZeroVelocity(); err != nil {
		t.Fatalf("StartSetZeroVelocity: %v", err)
	}
	s.avg.remaining = s.cfg.ControlPeriodMs / 1000

	s.pipeline.IMUOut.Present = true
	s.pipeline.IMUOut.Gyro = [3]float64{1, 2, 3}
	s.pipeline.IMUOut.Sec = 1
	s.pipeline.IMUOut.Nsec = 100

	if err := s.AverageTick(); err != nil {
		t.Fatalf("AverageTick: %v", err)
	}
	if s.AverageActive() {
		t.Fatalf("expected averaging to finish after remaining duration elapses")
	}
	want := [3]float64{-1, -2, -3}
	if s.pipeline.GyroCal.Bias != want {
		t.Fatalf("gyro bias = %v, want %v", s.pipeline.GyroCal.Bias, want)
	}
}

func TestGetSensorAverageReportsMeanWithoutTouchingCalibration(t *testing.T) {
	s := testSupervisor()
	if err := s.StartGetSensorAverage(s.cfg.ControlPeriodMs / 1000); err != nil {
		t.Fatalf("StartGetSensorAverage: %v", err)
	}

	s.pipeline.IMUOut.Present = true
	s.pipeline.IMUOut.Gyro = [3]float64{4, 5, 6}
	s.pipeline.IMUOut.Accel = [3]float64{0, 0, 1}
	s.pipeline.IMUOut.Sec = 1

	if err := s.AverageTick(); err != nil {
		t.Fatalf("AverageTick: %v", err)
	}
	if s.AverageActive() {
		t.Fatalf("expected get_sensor_average to finish")
	}

	result := s.GetSensorAverageResult()
	if !result.GyroOK || result.Gyro != [3]float64{4, 5, 6} {
		t.Fatalf("unexpected gyro average: %+v", result)
	}
	if s.pipeline.GyroCal.Bias != ([3]float64{}) {
		t.Fatalf("get_sensor_average must not modify calibration state, got bias %v", s.pipeline.GyroCal.Bias)
	}
}

func TestSetIMUCalibrationInstallsDirectly(t *testing.T) {
	s := testSupervisor()
	identity := [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	bias := [3]float64{0.1, 0.2, 0.3}

	s.SetIMUCalibration(identity, identity, identity, bias, bias, bias)

	if s.pipeline.GyroCal.Bias != bias || s.pipeline.AccelCal.Bias != bias || s.pipeline.MagCal.Bias != bias {
		t.Fatalf("expected calibration installed directly on all three channels")
	}
}

func TestLogInfoReportsActiveStateAndPath(t *testing.T) {
	s := testSupervisor()
	if s.LogInfo().Active {
		t.Fatalf("expected LogInfo inactive before StartLog")
	}

	dir := t.TempDir()
	path := dir + "/telemetry.log"
	if err := s.StartLog(path, 4); err != nil {
		t.Fatalf("StartLog: %v", err)
	}
	defer s.StopLog()

	info := s.LogInfo()
	if !info.Active || info.Path != path || info.Decimation != 4 {
		t.Fatalf("unexpected LogInfo: %+v", info)
	}
}
