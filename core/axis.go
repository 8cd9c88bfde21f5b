package core

import "math"

// AxisConfig holds the per-axis kinematic limits. Velocity, accel and
// jerk are stored in the scaled units the host configures them in; the
// accessors below return canonical mm/min units.
type AxisConfig struct {
	VelocityMax float64 `json:"velocity_max"` // x1000 mm/min or deg/min
	AccelMax    float64 `json:"accel_max"`    // x1e6 mm/min^2
	JerkMax     float64 `json:"jerk_max"`     // km/min^3
	Radius      float64 `json:"radius"`       // mm, rotary radius mode if non-zero
	FeedrateMax float64 `json:"feedrate_max"` // mm/min, limits arc feed
}

var axisNames = [NumAxes]byte{'X', 'Y', 'Z', 'A', 'B', 'C'}

// AxisID maps an axis letter to its index, or -1.
func AxisID(c byte) int {
	if 'a' <= c && c <= 'z' {
		c -= 'a' - 'A'
	}
	for i, n := range axisNames {
		if n == c {
			return i
		}
	}
	return -1
}

// AxisName returns the letter for an axis index.
func AxisName(axis int) byte { return axisNames[axis] }

// Axes resolves logical axes onto physical motors and exposes the
// per-axis limits. Multiple motors may be slaved to one axis; the map
// points at the first.
type Axes struct {
	cfg      [NumAxes]AxisConfig
	motors   *Motors
	motorMap [NumAxes]int
}

func NewAxes(cfg *[NumAxes]AxisConfig, motors *Motors) *Axes {
	ax := &Axes{cfg: *cfg, motors: motors}
	motors.axes = ax
	ax.MapMotors()
	return ax
}

// MapMotors recomputes the axis to motor map. Called at init and after
// a motor is reassigned.
func (ax *Axes) MapMotors() {
	for axis := 0; axis < NumAxes; axis++ {
		ax.motorMap[axis] = -1
		for motor := 0; motor < NumMotors; motor++ {
			if ax.motors.motor[motor].cfg.Axis == axis {
				ax.motorMap[axis] = motor
				break
			}
		}
	}
}

// Motor returns the first motor mapped to axis, or -1.
func (ax *Axes) Motor(axis int) int { return ax.motorMap[axis] }

// Enabled reports whether the axis has a powered motor and a non-zero
// velocity limit.
func (ax *Axes) Enabled(axis int) bool {
	motor := ax.Motor(axis)
	return motor != -1 && ax.motors.motor[motor].Enabled() &&
		!fpZero(ax.VelocityMax(axis))
}

// Homed reports whether the axis has been homed.
func (ax *Axes) Homed(axis int) bool {
	if !ax.Enabled(axis) {
		return false
	}
	return ax.motors.motor[ax.Motor(axis)].homed
}

// SetHomed marks every motor slaved to the axis.
func (ax *Axes) SetHomed(axis int, homed bool) {
	for motor := 0; motor < NumMotors; motor++ {
		if ax.motors.motor[motor].cfg.Axis == axis {
			ax.motors.motor[motor].homed = homed
		}
	}
}

// SoftLimit returns the axis travel limit. Disabled axes are unbounded.
func (ax *Axes) SoftLimit(axis int, min bool) float64 {
	if !ax.Enabled(axis) {
		if min {
			return math.Inf(-1)
		}
		return math.Inf(1)
	}
	m := ax.motors.motor[ax.Motor(axis)]
	if min {
		return m.cfg.MinSoftLimit
	}
	return m.cfg.MaxSoftLimit
}

// VelocityMax returns the axis velocity limit in mm/min.
func (ax *Axes) VelocityMax(axis int) float64 {
	if ax.Motor(axis) == -1 {
		return 0
	}
	return ax.cfg[axis].VelocityMax * VelocityMultiplier
}

// AccelMax returns the axis acceleration limit in mm/min^2.
func (ax *Axes) AccelMax(axis int) float64 {
	if ax.Motor(axis) == -1 {
		return 0
	}
	return ax.cfg[axis].AccelMax * AccelMultiplier
}

// JerkMax returns the axis jerk limit in mm/min^3.
func (ax *Axes) JerkMax(axis int) float64 {
	if ax.Motor(axis) == -1 {
		return 0
	}
	return ax.cfg[axis].JerkMax * JerkMultiplier
}

// Radius returns the rotary radius, or zero when radius mode is off.
func (ax *Axes) Radius(axis int) float64 { return ax.cfg[axis].Radius }

// FeedrateMax returns the max feed rate used for arc time limiting.
func (ax *Axes) FeedrateMax(axis int) float64 { return ax.cfg[axis].FeedrateMax }

// SetVelocityMax updates the scaled velocity limit.
func (ax *Axes) SetVelocityMax(axis int, v float64) { ax.cfg[axis].VelocityMax = v }

// SetAccelMax updates the scaled acceleration limit.
func (ax *Axes) SetAccelMax(axis int, v float64) { ax.cfg[axis].AccelMax = v }

// SetJerkMax updates the jerk limit in km/min^3.
func (ax *Axes) SetJerkMax(axis int, v float64) { ax.cfg[axis].JerkMax = v }

// SetRadius sets the rotary radius for linear-input rotary axes.
func (ax *Axes) SetRadius(axis int, r float64) { ax.cfg[axis].Radius = r }

// VectorLength returns the Euclidean length between two positions over
// enabled axes.
func (ax *Axes) VectorLength(a, b Vector) float64 {
	var sum float64
	for i := 0; i < NumAxes; i++ {
		if ax.Enabled(i) {
			d := b[i] - a[i]
			sum += d * d
		}
	}
	return math.Sqrt(sum)
}
