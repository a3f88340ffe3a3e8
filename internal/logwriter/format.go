package logwriter

import (
	"fmt"
	"strconv"
	"strings"
)

func f64(present bool, v float64) string {
	if !present {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// FormatLine renders one Record per the fixed column schema:
//
//	ts.sec.nsec  rate.imu rate.mag rate.motor  battery  temp
//	gx gy gz gx_f gy_f gz_f  ax ay az ax_f ay_f az_f
//	mx my mz mx_f my_f mz_f  wd[0..7]  vel[0..7]  clkrate[0..7]
//
// Battery, temperature, IMU and magnetometer columns write "-" when the
// Record marks that channel as not present. An unchanged timestamp since the
// prior line is not detected: a present channel repeats its last values.
func FormatLine(r Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%d.%09d", r.Sec, r.Nsec)
	fmt.Fprintf(&b, " %s %s %s", f64(true, r.RateIMU), f64(true, r.RateMag), f64(true, r.RateMotor))
	fmt.Fprintf(&b, " %s", f64(r.BatteryPresent, r.BatteryLevel))
	fmt.Fprintf(&b, " %s", f64(r.HasTemp, r.Temp))

	for i := 0; i < 3; i++ {
		fmt.Fprintf(&b, " %s", f64(r.IMUPresent, r.GyroRaw[i]))
	}
	for i := 0; i < 3; i++ {
		fmt.Fprintf(&b, " %s", f64(r.IMUPresent, r.Gyro[i]))
	}
	for i := 0; i < 3; i++ {
		fmt.Fprintf(&b, " %s", f64(r.IMUPresent, r.AccelRaw[i]))
	}
	for i := 0; i < 3; i++ {
		fmt.Fprintf(&b, " %s", f64(r.IMUPresent, r.Accel[i]))
	}
	for i := 0; i < 3; i++ {
		fmt.Fprintf(&b, " %s", f64(r.MagPresent, r.MagRaw[i]))
	}
	for i := 0; i < 3; i++ {
		fmt.Fprintf(&b, " %s", f64(r.MagPresent, r.Mag[i]))
	}

	for i := range r.Rotors {
		fmt.Fprintf(&b, " %d", r.Rotors[i].WD)
	}
	for i := range r.Rotors {
		fmt.Fprintf(&b, " %s", f64(true, r.Rotors[i].Velocity))
	}
	for i := range r.Rotors {
		fmt.Fprintf(&b, " %d", r.Rotors[i].ClkRate)
	}

	return b.String()
}
