package machine

import (
	"math"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/go-cmp/cmp"

	"gomill/core"
)

// floatNear compares floats within an absolute tolerance.
func floatNear(tol float64) cmp.Option {
	return cmp.Comparer(func(a, b float64) bool {
		return math.Abs(a-b) <= tol
	})
}

// collectChords drains the planner queue while pumping the arc
// callback, returning every chord endpoint in queue order.
func collectChords(m *Machine, ctl *core.Controller) [][2]float64 {
	var chords [][2]float64
	x := m.arc.position[core.AxisX]
	y := m.arc.position[core.AxisY]

	for m.ArcActive() || !ctl.Queue.Empty() {
		for !ctl.Queue.Empty() {
			e := ctl.Queue.Head()
			switch e.Action {
			case core.ActionTargetX:
				x = e.Float
			case core.ActionTargetY:
				y = e.Float
			case core.ActionData:
				chords = append(chords, [2]float64{x, y})
			}
			ctl.Queue.Pop()
		}
		m.ArcCallback()
	}
	return chords
}

// Every chord endpoint of a full circle lies on the circle, and the
// last chord closes it.
func TestArcFullCircleChords(t *testing.T) {
	c := qt.New(t)
	m, ctl := newTestMachine(t)

	m.SetAxisPosition(core.AxisX, 10)
	m.SetFeedRate(1000)

	err := m.ArcFeed(core.Vector{}, core.AxisFlags{},
		[3]float64{-10, 0, 0}, [3]bool{true, true, false},
		0, false, 1, MotionCWArc)
	c.Assert(err, qt.IsNil)

	c.Assert(m.arc.fullCircle, qt.IsTrue)
	c.Assert(m.arc.rotations, qt.Equals, 1.0)
	// One rotation clockwise
	c.Assert(m.arc.angularTravel, qt.CmpEquals(floatNear(1e-9)), 2*math.Pi)

	chords := collectChords(m, ctl)
	c.Assert(1 < len(chords), qt.IsTrue)

	tolerance := math.Max(core.ChordalTolerance, 1e-4*10)
	for _, p := range chords {
		r := math.Hypot(p[0], p[1])
		if math.Abs(r-10) > tolerance {
			t.Fatalf("chord endpoint (%v, %v) off circle: r = %v", p[0], p[1], r)
		}
	}

	last := chords[len(chords)-1]
	c.Assert(last[0], qt.CmpEquals(floatNear(1e-6)), 10.0)
	c.Assert(last[1], qt.CmpEquals(floatNear(1e-6)), 0.0)

	// The model position landed back at the start
	c.Assert(m.Position()[core.AxisX], qt.CmpEquals(floatNear(1e-6)), 10.0)
}

// Angular travel signs: CW in (0, 2pi], CCW in [-2pi, 0); P adds full
// rotations.
func TestArcAngularTravel(t *testing.T) {
	c := qt.New(t)

	quarter := func(mode MotionMode, rotations float64) float64 {
		m, _ := newTestMachine(t)
		m.SetAxisPosition(core.AxisX, 10)
		m.SetFeedRate(1000)

		// Endpoint (0, 10) about center (0, 0)
		err := m.ArcFeed(core.Vector{0, 10}, core.AxisFlags{true, true},
			[3]float64{-10, 0, 0}, [3]bool{true, true, false},
			0, false, rotations, mode)
		c.Assert(err, qt.IsNil)
		m.AbortArc()
		return m.arc.angularTravel
	}

	cw := quarter(MotionCWArc, 0)
	c.Assert(cw, qt.CmpEquals(floatNear(1e-9)), 3*math.Pi/2)
	c.Assert(0 < cw && cw <= 2*math.Pi, qt.IsTrue)

	ccw := quarter(MotionCCWArc, 0)
	c.Assert(ccw, qt.CmpEquals(floatNear(1e-9)), -math.Pi/2)
	c.Assert(-2*math.Pi <= ccw && ccw < 0, qt.IsTrue)

	// P full rotations add exactly 2pi each, in the travel direction
	c.Assert(quarter(MotionCWArc, 2)-cw, qt.CmpEquals(floatNear(1e-9)),
		4*math.Pi)
	c.Assert(quarter(MotionCCWArc, 2)-ccw, qt.CmpEquals(floatNear(1e-9)),
		-4*math.Pi)
}

// Radius format: a half circle derives its center on the chord.
func TestArcRadiusFormat(t *testing.T) {
	c := qt.New(t)
	m, _ := newTestMachine(t)
	m.SetFeedRate(1000)

	err := m.ArcFeed(core.Vector{10, 0}, core.AxisFlags{true},
		[3]float64{}, [3]bool{}, 5, true, 0, MotionCWArc)
	c.Assert(err, qt.IsNil)
	m.AbortArc()

	c.Assert(m.arc.radius, qt.CmpEquals(floatNear(1e-9)), 5.0)
	c.Assert(m.arc.center0, qt.CmpEquals(floatNear(1e-6)), 5.0)
	c.Assert(m.arc.center1, qt.CmpEquals(floatNear(1e-6)), 0.0)
	c.Assert(m.arc.angularTravel, qt.CmpEquals(floatNear(1e-6)), math.Pi)
}

func TestArcErrors(t *testing.T) {
	c := qt.New(t)

	// Missing feed rate
	m, _ := newTestMachine(t)
	err := m.ArcFeed(core.Vector{10}, core.AxisFlags{true},
		[3]float64{5, 0, 0}, [3]bool{true, false, false},
		0, false, 0, MotionCWArc)
	c.Assert(err, qt.Equals, core.StatFeedRateNotSpecified)

	// Radius below minimum
	m, _ = newTestMachine(t)
	m.SetFeedRate(1000)
	err = m.ArcFeed(core.Vector{1}, core.AxisFlags{true},
		[3]float64{}, [3]bool{}, 0.01, true, 0, MotionCWArc)
	c.Assert(err, qt.Equals, core.StatArcRadiusOutOfTolerance)

	// Radius format with no in-plane endpoint
	m, _ = newTestMachine(t)
	m.SetFeedRate(1000)
	err = m.ArcFeed(core.Vector{}, core.AxisFlags{},
		[3]float64{}, [3]bool{}, 5, true, 0, MotionCWArc)
	c.Assert(err, qt.Equals, core.StatArcAxisMissing)

	// Radius format where start equals end
	m, _ = newTestMachine(t)
	m.SetFeedRate(1000)
	err = m.ArcFeed(core.Vector{0}, core.AxisFlags{true},
		[3]float64{}, [3]bool{}, 5, true, 0, MotionCWArc)
	c.Assert(err, qt.Equals, core.StatArcEndpointIsStart)

	// Offset normal to the plane
	m, _ = newTestMachine(t)
	m.SetFeedRate(1000)
	err = m.ArcFeed(core.Vector{10}, core.AxisFlags{true},
		[3]float64{5, 0, 1}, [3]bool{true, false, true},
		0, false, 0, MotionCWArc)
	c.Assert(err, qt.Equals, core.StatArcSpecificationError)

	// End radius inconsistent with start radius
	m, _ = newTestMachine(t)
	m.SetFeedRate(1000)
	err = m.ArcFeed(core.Vector{20}, core.AxisFlags{true},
		[3]float64{5, 0, 0}, [3]bool{true, false, false},
		0, false, 0, MotionCWArc)
	c.Assert(err, qt.Equals, core.StatArcRadiusOutOfTolerance)
}

// A helical arc advances the linear axis by equal increments.
func TestArcHelical(t *testing.T) {
	c := qt.New(t)
	m, ctl := newTestMachine(t)

	m.SetAxisPosition(core.AxisX, 10)
	m.SetFeedRate(1000)

	err := m.ArcFeed(core.Vector{0, 0, 6}, core.AxisFlags{2: true},
		[3]float64{-10, 0, 0}, [3]bool{true, true, false},
		0, false, 0, MotionCWArc)
	c.Assert(err, qt.IsNil)

	var zTargets []float64
	for m.ArcActive() || !ctl.Queue.Empty() {
		for !ctl.Queue.Empty() {
			if e := ctl.Queue.Head(); e.Action == core.ActionTargetZ {
				zTargets = append(zTargets, e.Float)
			}
			ctl.Queue.Pop()
		}
		m.ArcCallback()
	}

	c.Assert(0 < len(zTargets), qt.IsTrue)
	c.Assert(zTargets[len(zTargets)-1], qt.CmpEquals(floatNear(1e-6)), 6.0)

	// Equal increments
	step := zTargets[0]
	for i := 1; i < len(zTargets); i++ {
		inc := zTargets[i] - zTargets[i-1]
		if math.Abs(inc-step) > 1e-9 {
			t.Fatalf("uneven linear increment %v vs %v", inc, step)
		}
	}
}

// Abort discards remaining segments without touching queued ones.
func TestArcAbort(t *testing.T) {
	c := qt.New(t)
	m, ctl := newTestMachine(t)

	m.SetAxisPosition(core.AxisX, 10)
	m.SetFeedRate(1000)

	err := m.ArcFeed(core.Vector{}, core.AxisFlags{},
		[3]float64{-10, 0, 0}, [3]bool{true, true, false},
		0, false, 3, MotionCWArc)
	c.Assert(err, qt.IsNil)
	c.Assert(m.ArcActive(), qt.IsTrue)

	queued := ctl.Queue.Fill()
	m.AbortArc()
	c.Assert(m.ArcActive(), qt.IsFalse)
	c.Assert(ctl.Queue.Fill(), qt.Equals, queued)

	m.ArcCallback() // no-op once aborted
	c.Assert(ctl.Queue.Fill(), qt.Equals, queued)
}
