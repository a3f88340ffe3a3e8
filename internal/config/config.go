// Package config loads the bridge's startup configuration (serial links,
// sensor rates, battery limits, filter cutoffs, ramp/timeout tunables) from
// YAML, the way pkg/utils/logger.go's sibling config consumers across this
// codebase expect: gopkg.in/yaml.v3 struct tags on a plain data struct, no
// bespoke parser.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LinkConfig describes one serial device to open at startup.
type LinkConfig struct {
	Path  string `yaml:"path"`
	Baud  int    `yaml:"baud"`
	IMU   bool   `yaml:"imu"`
	Mag   bool   `yaml:"mag"`
	Motor bool   `yaml:"motor"`
	MinID int    `yaml:"min_id"`
	MaxID int    `yaml:"max_id"`
}

// SensorRates holds the per-channel configured rates in Hz.
type SensorRates struct {
	IMU     float64 `yaml:"imu"`
	Mag     float64 `yaml:"mag"`
	Motor   float64 `yaml:"motor"`
	Battery float64 `yaml:"battery"`
}

// BatteryLimits holds the configured battery voltage thresholds.
type BatteryLimits struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// FilterCutoffs holds the user-facing low-pass cutoff frequencies, in Hz,
// per axis group.
type FilterCutoffs struct {
	Gyro  float64 `yaml:"gyro_fc"`
	Accel float64 `yaml:"accel_fc"`
	Mag   float64 `yaml:"mag_fc"`
}

// Config is the full startup configuration.
type Config struct {
	Links []LinkConfig `yaml:"links"`

	SensorRates   SensorRates   `yaml:"sensor_rates"`
	BatteryLimits BatteryLimits `yaml:"battery_limits"`
	FilterCutoffs FilterCutoffs `yaml:"filter_cutoffs"`

	RampSeconds     float64 `yaml:"ramp_seconds"`
	ServoTimeoutSec float64 `yaml:"servo_timeout_seconds"`
	ControlPeriodMs float64 `yaml:"control_period_ms"`

	// MotionTolerance bounds how far a sample may drift from its pose's
	// running mean before calibrate_imu/calibrate_mag consider the pose
	// disturbed and abort.
	MotionTolerance float64 `yaml:"motion_tolerance"`

	// AverageDurationSec is how long set_zero and set_zero_velocity hold
	// still accumulating samples; get_sensor_average takes its own duration
	// argument instead.
	AverageDurationSec float64 `yaml:"average_duration_seconds"`

	LogPath       string `yaml:"log_path"`
	LogDecimation int    `yaml:"log_decimation"`
	LogLevel      string `yaml:"log_level"`
}

// Default returns a Config with spec-stated defaults applied: battery
// 14.0/16.8, ramp 3s, servo timeout 30s, control period 1ms, decimation 1.
func Default() Config {
	return Config{
		BatteryLimits:      BatteryLimits{Min: 14.0, Max: 16.8},
		RampSeconds:        3,
		ServoTimeoutSec:    30,
		ControlPeriodMs:    1,
		MotionTolerance:    0.5,
		AverageDurationSec: 1,
		LogDecimation:      1,
		LogLevel:           "info",
	}
}

// Load reads and parses a YAML configuration file, starting from Default()
// so unset fields keep their sane defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.LogDecimation < 1 {
		cfg.LogDecimation = 1
	}
	return cfg, nil
}
