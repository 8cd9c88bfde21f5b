package machine

import (
	"math"

	"gomill/core"
)

// Arc is the singleton arc state: at most one arc generates segments at
// a time. While active, the foreground callback approximates the
// circular or helical path with short chords queued as cruise segments.
type Arc struct {
	m      *Machine
	active bool

	position core.Vector // accumulating runtime position
	target   core.Vector // saved endpoint
	offset   [3]float64  // IJK offsets, indexed by plane axis

	length        float64 // length of the helix in mm
	theta         float64 // angular starting point
	thetaEnd      float64
	radius        float64
	angularTravel float64 // signed travel along the arc
	linearTravel  float64
	planarTravel  float64
	fullCircle    bool
	rotations     float64 // P parameter

	planeAxis0 int // e.g. X for G17
	planeAxis1 int // e.g. Y for G17
	linearAxis int // normal to the plane

	arcTime       float64 // total running time, minutes
	segments      float64
	segmentCount  int32
	segmentIndex  int32
	segmentTheta  float64
	segmentLinear float64
	chordLength   float64
	cruiseVel     float64 // mm/min along the path
	accelLimit    float64 // mm/min^2, for chord velocity shaping
	center0       float64
	center1       float64
}

// Active reports whether arc segments remain to be queued.
func (a *Arc) Active() bool { return a.active }

// Abort stops arc generation without touching queued segments.
func (a *Arc) Abort() { a.active = false }

// ArcFeed is the machine entry point for G2/G3. Offsets are raw I,J,K
// words; a non-zero radius with radiusSet selects radius format.
func (m *Machine) ArcFeed(values core.Vector, flags core.AxisFlags,
	offsets [3]float64, offsetSet [3]bool, radius float64, radiusSet bool,
	rotations float64, mode MotionMode) error {

	a := &m.arc

	// Trap missing feed rate
	if m.gm.FeedMode != InverseTime && core.FpZero(m.gm.FeedRate) {
		return core.StatFeedRateNotSpecified
	}

	// Radius must be positive and above the minimum
	if radiusSet && radius < core.MinArcRadius {
		return core.StatArcRadiusOutOfTolerance
	}

	// Set the arc plane and test the arc specification
	a.planeAxis0, a.planeAxis1, a.linearAxis = planeAxes(m.gm.Plane)

	targetPlane0 := flags[a.planeAxis0]
	targetPlane1 := flags[a.planeAxis1]

	if radiusSet {
		// Radius format requires at least one in-plane endpoint
		if !targetPlane0 && !targetPlane1 {
			return core.StatArcAxisMissing
		}
	} else if offsetSet[a.linearAxis] {
		// Center format may omit either in-plane offset but the
		// offset normal to the plane is an error
		return core.StatArcSpecificationError
	}

	m.SetMotionMode(mode)
	target := m.CalcTarget(values, flags, m.gm.DistanceMode == AbsoluteMode)

	// In radius format it's an error for start == end
	if radiusSet &&
		core.FpEqual(m.position[core.AxisX], target[core.AxisX]) &&
		core.FpEqual(m.position[core.AxisY], target[core.AxisY]) &&
		core.FpEqual(m.position[core.AxisZ], target[core.AxisZ]) {
		return core.StatArcEndpointIsStart
	}

	if err := m.TestSoftLimits(target); err != nil {
		m.ctl.Estop.Trigger(core.StatusOf(err))
		return err
	}
	m.UpdateWorkOffsets()

	a.m = m
	a.target = target
	a.position = m.position

	a.radius = m.toMM(radius)
	if !radiusSet {
		a.radius = 0
	}
	a.offset = [3]float64{}
	for i := 0; i < 3; i++ {
		if offsetSet[i] {
			a.offset[i] = m.toMM(offsets[i])
		}
	}

	a.rotations = math.Floor(math.Abs(rotations))

	// A full circle has no in-plane endpoint words
	a.fullCircle = !targetPlane0 && !targetPlane1

	if err := a.compute(mode); err != nil {
		return err
	}

	// Trap zero length arcs
	if core.FpZero(a.length) {
		return core.StatMinimumLengthMove
	}

	a.active = true
	a.Callback() // Queue initial arc segments
	m.position = target

	return nil
}

// computeOffsetsFromRadius derives the arc center from the radius: the
// center lies on the perpendicular bisector of the travel chord, at the
// distance that makes both radii equal. The sign of h selects the minor
// arc; CCW motion and a negative R each flip it.
func (a *Arc) computeOffsetsFromRadius(mode MotionMode) {
	x := a.target[a.planeAxis0] - a.position[a.planeAxis0]
	y := a.target[a.planeAxis1] - a.position[a.planeAxis1]

	// If the endpoints are further apart than the diameter, disc goes
	// negative. Numerical error can flip its sign near 180 degrees, so
	// clamp to the closest real solution rather than failing.
	disc := 4*a.radius*a.radius - (x*x + y*y)

	var hOverD float64
	if 0 < disc {
		hOverD = -math.Sqrt(disc) / math.Hypot(x, y)
	}

	if mode == MotionCCWArc {
		hOverD = -hOverD
	}
	// Negative R selects the arc with more than 180 degrees of travel
	if a.radius < 0 {
		hOverD = -hOverD
	}

	a.offset[a.planeAxis0] = (x - y*hOverD) / 2
	a.offset[a.planeAxis1] = (y + x*hOverD) / 2
	a.offset[a.linearAxis] = 0
}

// compute derives the arc geometry, checks the radius consistency and
// splits the arc into chords.
func (a *Arc) compute(mode MotionMode) error {
	m := a.m

	if !core.FpZero(a.radius) {
		a.computeOffsetsFromRadius(mode)
	} else {
		// Center format: the start radius comes from the offsets
		a.radius = math.Hypot(-a.offset[a.planeAxis0], -a.offset[a.planeAxis1])
	}

	// End radius from the center to the target endpoint
	end0 := a.target[a.planeAxis0] - a.position[a.planeAxis0] -
		a.offset[a.planeAxis0]
	end1 := a.target[a.planeAxis1] - a.position[a.planeAxis1] -
		a.offset[a.planeAxis1]
	err := math.Abs(math.Hypot(end0, end1) - a.radius)

	// The radii must agree within the larger of the absolute floor and
	// the relative tolerance, capped at the absolute maximum.
	tolerance := math.Max(core.ArcRadiusErrorMin,
		math.Min(core.ArcRadiusErrorMax, a.radius*core.ArcRadiusTolerance))
	if tolerance < err {
		return core.StatArcRadiusOutOfTolerance
	}

	a.theta = math.Atan2(-a.offset[a.planeAxis0], -a.offset[a.planeAxis1])

	// G18 XZ plane arcs invert for proper CW orientation
	g18 := 1.0
	if m.gm.Plane == PlaneXZ {
		g18 = -1
	}

	if a.fullCircle {
		a.angularTravel = 0
		// A full circle with P0 means one rotation
		if core.FpZero(a.rotations) {
			a.rotations = 1
		}

	} else {
		a.thetaEnd = math.Atan2(end0, end1)

		if core.FpEqual(a.thetaEnd, a.theta) {
			// Very large radius arcs can have zero angular travel
			a.angularTravel = 0

		} else {
			// Make the difference positive for clockwise travel
			if a.thetaEnd < a.theta {
				a.thetaEnd += 2 * math.Pi * g18
			}
			a.angularTravel = a.thetaEnd - a.theta
			if mode == MotionCCWArc {
				a.angularTravel -= 2 * math.Pi * g18
			}
		}
	}

	// Add the travel for full rotations
	if mode == MotionCWArc {
		a.angularTravel += 2 * math.Pi * a.rotations * g18
	} else {
		a.angularTravel -= 2 * math.Pi * a.rotations * g18
	}

	a.linearTravel = a.target[a.linearAxis] - a.position[a.linearAxis]
	a.planarTravel = a.angularTravel * a.radius
	a.length = math.Hypot(a.planarTravel, a.linearTravel)

	a.estimateTime()

	// Find the chord count meeting the chordal accuracy, the minimum
	// chord length and the minimum segment time.
	forChordalAccuracy := a.length /
		math.Sqrt(4*core.ChordalTolerance*(2*a.radius-core.ChordalTolerance))
	forMinDistance := a.length / core.ArcSegmentLength
	forMinTime := a.arcTime * core.MicrosecondsPerMinute /
		core.MinArcSegmentUsec

	a.segments = math.Floor(math.Min(forChordalAccuracy,
		math.Min(forMinDistance, forMinTime)))
	if a.segments < 1 {
		a.segments = 1
	}

	a.segmentCount = int32(a.segments)
	a.segmentIndex = 0
	a.segmentTheta = a.angularTravel / a.segments
	a.segmentLinear = a.linearTravel / a.segments
	a.chordLength = a.length / a.segments
	a.cruiseVel = a.length / a.arcTime
	a.center0 = a.position[a.planeAxis0] - math.Sin(a.theta)*a.radius
	a.center1 = a.position[a.planeAxis1] - math.Cos(a.theta)*a.radius

	// Conservative acceleration bound for chord velocity shaping
	a.accelLimit = math.Min(m.ctl.Axes.AccelMax(a.planeAxis0),
		m.ctl.Axes.AccelMax(a.planeAxis1))

	// The linear target accumulates from the start position
	a.target[a.linearAxis] = a.position[a.linearAxis]

	return nil
}

// estimateTime computes a naive arc execution time: the requested feed,
// degraded by any rate-limiting axis in the plane or in linear travel.
func (a *Arc) estimateTime() {
	m := a.m

	if m.gm.FeedMode == InverseTime {
		a.arcTime = m.gm.FeedRate
		// Reset so the next block requires an explicit feed rate
		m.gm.FeedRate = 0
		m.gm.FeedMode = UnitsPerMinute
	} else {
		a.arcTime = a.length / (m.gm.FeedRate * m.FeedOverride())
	}

	axes := m.ctl.Axes
	if rate := axes.FeedrateMax(a.planeAxis0); 0 < rate {
		a.arcTime = math.Max(a.arcTime, a.planarTravel/rate)
	}
	if rate := axes.FeedrateMax(a.planeAxis1); 0 < rate {
		a.arcTime = math.Max(a.arcTime, a.planarTravel/rate)
	}
	if rate := axes.FeedrateMax(a.linearAxis); 0 < rate &&
		0 < math.Abs(a.linearTravel) {
		a.arcTime = math.Max(a.arcTime,
			math.Abs(a.linearTravel/rate))
	}
}

// chordVelocity shapes the chord velocity trapezoidally: limited by the
// distance accelerated over from the arc start and the distance left to
// decelerate in, never below the minimum velocity.
func (a *Arc) chordVelocity() float64 {
	travelled := (float64(a.segmentIndex) + 0.5) * a.chordLength
	remaining := a.length - travelled

	v := a.cruiseVel
	if accel := 2 * a.accelLimit; 0 < accel {
		v = math.Min(v, math.Sqrt(accel*travelled))
		v = math.Min(v, math.Sqrt(accel*remaining))
	}
	return math.Max(v, core.MinVelocity)
}

// Callback queues as many chords as planner room allows, then returns.
// Called from the foreground loop while the arc is active.
func (a *Arc) Callback() {
	if !a.active {
		return
	}
	m := a.m
	queue := m.ctl.Queue

	for a.active && maxMovePush <= queue.Room() {
		a.theta += a.segmentTheta
		a.target[a.planeAxis0] = a.center0 + math.Sin(a.theta)*a.radius
		a.target[a.planeAxis1] = a.center1 + math.Cos(a.theta)*a.radius
		a.target[a.linearAxis] += a.segmentLinear

		v := a.chordVelocity()

		// The executor travels the straight chord, so time it by the
		// chord's own length rather than the arc length it spans
		d0 := a.target[a.planeAxis0] - a.position[a.planeAxis0]
		d1 := a.target[a.planeAxis1] - a.position[a.planeAxis1]
		dl := a.target[a.linearAxis] - a.position[a.linearAxis]
		chord := math.Sqrt(d0*d0 + d1*d1 + dl*dl)

		m.push(core.Entry{Action: core.ActionLineNum, Int: m.gm.Line})
		m.push(core.Entry{
			Action: core.Action(int(core.ActionTargetX) + a.planeAxis0),
			Float:  a.target[a.planeAxis0],
		})
		m.push(core.Entry{
			Action: core.Action(int(core.ActionTargetX) + a.planeAxis1),
			Float:  a.target[a.planeAxis1],
		})
		if a.segmentLinear != 0 {
			m.push(core.Entry{
				Action: core.Action(int(core.ActionTargetX) + a.linearAxis),
				Float:  a.target[a.linearAxis],
			})
		}
		m.push(core.Entry{Action: core.ActionVelocity, Float: v})
		m.push(core.Entry{Action: core.ActionScurve, Int: 3})
		m.push(core.Entry{Action: core.ActionData, Float: chord / v})

		a.position[a.planeAxis0] = a.target[a.planeAxis0]
		a.position[a.planeAxis1] = a.target[a.planeAxis1]
		a.position[a.linearAxis] = a.target[a.linearAxis]

		a.segmentIndex++
		if a.segmentCount--; a.segmentCount == 0 {
			// Snap the executor to rest at the arc end
			m.push(core.Entry{Action: core.ActionVelocity, Float: 0})
			a.active = false
		}
	}
}
