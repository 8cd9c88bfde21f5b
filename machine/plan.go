package machine

import (
	"math"

	"gomill/core"
)

// maxMovePush is the worst-case number of queue entries one planned
// move emits. The producer gates on this much room.
const maxMovePush = core.QueueReserve

// scurveTimes computes the seven phase times, in minutes, of a
// rest-to-rest jerk-limited profile covering length at peak velocity v
// under the projected acceleration and jerk limits. Short moves reduce
// the peak velocity so the ramps exactly meet.
func scurveTimes(length, v, amax, jmax float64) [7]float64 {
	var t [7]float64

	ramp := func(v float64) (t0, t1 float64) {
		if peak := math.Sqrt(v * jmax); peak <= amax {
			return math.Sqrt(v / jmax), 0
		}
		return amax / jmax, v/amax - amax/jmax
	}

	t[0], t[1] = ramp(v)

	// Both ramps average half the peak velocity
	rampDist := v * (2*t[0] + t[1])

	if rampDist <= length {
		t[3] = (length - rampDist) / v
		if t[3] < 0 {
			t[3] = 0
		}
	} else {
		// Can't reach the commanded velocity; find the peak the
		// length allows.
		v = math.Cbrt(length * length * jmax / 4)
		if amax < math.Sqrt(v*jmax) {
			// Acceleration limited: solve v^2/a + v*a/j = length
			aj := amax / jmax
			v = (-amax*aj + math.Sqrt(amax*amax*aj*aj+4*amax*length)) / 2
		}
		t[0], t[1] = ramp(v)
		t[3] = 0
	}

	// The deceleration ramp mirrors the acceleration ramp
	t[2] = t[0]
	t[4] = t[0]
	t[5] = t[1]
	t[6] = t[0]

	return t
}

func scurveTotalTime(t [7]float64) float64 {
	var sum float64
	for _, ti := range t {
		sum += ti
	}
	return sum
}

// seekFlags maps the modal motion mode onto the queued seek flags.
func seekFlags(mode MotionMode) int8 {
	switch mode {
	case MotionProbeCloseErr, MotionSeekCloseErr:
		return core.SeekError
	case MotionProbeOpenErr, MotionSeekOpenErr:
		return core.SeekOpen | core.SeekError
	case MotionProbeOpen, MotionSeekOpen:
		return core.SeekOpen
	}
	return 0
}

// planLine plans one straight move to a machine-coordinate target and
// queues it: line number, optional seek, per-axis targets, entry
// velocity and the S-curve phases.
func (m *Machine) planLine(target core.Vector, sw core.SwitchID) error {
	axes := m.ctl.Axes

	// Direction unit vector over enabled axes
	var unit core.Vector
	var length float64
	for axis := 0; axis < core.NumAxes; axis++ {
		if axes.Enabled(axis) {
			unit[axis] = target[axis] - m.position[axis]
			length += unit[axis] * unit[axis]
		}
	}
	length = math.Sqrt(length)
	if core.FpZero(length) {
		return core.StatMinimumLengthMove
	}
	for axis := 0; axis < core.NumAxes; axis++ {
		unit[axis] /= length
	}

	// Project the axis limits onto the move direction
	vMax := math.MaxFloat64
	aMax := math.MaxFloat64
	jMax := math.MaxFloat64
	for axis := 0; axis < core.NumAxes; axis++ {
		if unit[axis] == 0 {
			continue
		}
		u := math.Abs(unit[axis])
		if v := axes.VelocityMax(axis) / u; v < vMax {
			vMax = v
		}
		if a := axes.AccelMax(axis) / u; a < aMax {
			aMax = a
		}
		if j := axes.JerkMax(axis) / u; j < jMax {
			jMax = j
		}
	}

	// Commanded velocity
	var v float64
	switch {
	case m.isRapid():
		v = vMax

	case m.isInverseTime():
		moveTime := m.gm.FeedRate // minutes
		m.gm.FeedRate = 0         // next block must set F again
		if moveTime <= 0 {
			return core.StatFeedRateNotSpecified
		}
		v = m.inverseTimeVelocity(length, moveTime, aMax, jMax)

	default:
		v = m.gm.FeedRate * m.FeedOverride()
		if core.FpZero(v) {
			return core.StatFeedRateNotSpecified
		}
	}

	if vMax < v {
		v = vMax
	}
	if v < core.MinVelocity {
		v = core.MinVelocity
	}

	times := scurveTimes(length, v, aMax, jMax)

	// Queue the move
	m.push(core.Entry{Action: core.ActionLineNum, Int: m.gm.Line})

	if 0 < sw {
		m.push(core.Entry{Action: core.ActionSeek,
			Left: int8(sw), Right: seekFlags(m.gm.MotionMode)})
	}

	for axis := 0; axis < core.NumAxes; axis++ {
		if unit[axis] == 0 {
			continue
		}
		m.push(core.Entry{
			Action: core.Action(int(core.ActionTargetX) + axis),
			Float:  target[axis],
		})
	}

	m.push(core.Entry{Action: core.ActionVelocity, Float: 0})

	for phase, t := range times {
		if t <= 0 {
			continue
		}
		m.push(core.Entry{Action: core.ActionScurve, Int: int32(phase)})
		m.push(core.Entry{Action: core.ActionData, Float: t})
	}

	return nil
}

// inverseTimeVelocity picks the peak velocity whose profile completes
// in the requested time when reachable. Two fixed-point iterations get
// close enough; the axis limits still cap the result.
func (m *Machine) inverseTimeVelocity(length, moveTime, aMax, jMax float64) float64 {
	v := length / moveTime
	for i := 0; i < 2; i++ {
		total := scurveTotalTime(scurveTimes(length, v, aMax, jMax))
		if total <= moveTime {
			break
		}
		v *= total / moveTime
	}
	return v
}
