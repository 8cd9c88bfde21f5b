package gomill

import (
	"math"
	"testing"

	"gomill/core"
	"gomill/machine"
)

const testConfigJSON = `{
  "axes": [
    {"velocity_max": 3, "accel_max": 0.1, "jerk_max": 10000, "feedrate_max": 3000},
    {"velocity_max": 3, "accel_max": 0.1, "jerk_max": 10000, "feedrate_max": 3000},
    {"velocity_max": 3, "accel_max": 0.1, "jerk_max": 10000, "feedrate_max": 3000},
    {"velocity_max": 3, "accel_max": 0.1, "jerk_max": 10000, "feedrate_max": 3000},
    {"velocity_max": 3, "accel_max": 0.1, "jerk_max": 10000, "feedrate_max": 3000},
    {"velocity_max": 3, "accel_max": 0.1, "jerk_max": 10000, "feedrate_max": 3000}
  ],
  "motors": [
    {"axis": 0, "microsteps": 16, "step_angle": 1.8, "travel_rev": 5, "power_mode": 1},
    {"axis": 1, "microsteps": 16, "step_angle": 1.8, "travel_rev": 5, "power_mode": 1},
    {"axis": 2, "microsteps": 16, "step_angle": 1.8, "travel_rev": 5, "power_mode": 1},
    {"axis": 3, "microsteps": 16, "step_angle": 1.8, "travel_rev": 5, "power_mode": 1}
  ],
  "switches": [1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0]
}`

// fakeGPIO lets tests drive switch inputs. Unset pins read high, like
// pulled-up inputs.
type fakeGPIO struct {
	pins map[core.GPIOPin]bool
}

func newFakeGPIO() *fakeGPIO { return &fakeGPIO{pins: map[core.GPIOPin]bool{}} }

func (g *fakeGPIO) ConfigureOutput(core.GPIOPin) error      { return nil }
func (g *fakeGPIO) ConfigureInputPullUp(core.GPIOPin) error { return nil }

func (g *fakeGPIO) SetPin(pin core.GPIOPin, value bool) error {
	g.pins[pin] = value
	return nil
}

func (g *fakeGPIO) ReadPin(pin core.GPIOPin) bool {
	v, ok := g.pins[pin]
	if !ok {
		return true
	}
	return v
}

type fixture struct {
	mgr    *Manager
	gpio   *fakeGPIO
	resets int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{gpio: newFakeGPIO()}

	var switchPins [core.NumSwitches]core.GPIOPin
	for i := range switchPins {
		switchPins[i] = core.GPIOPin(i)
	}

	mgr, err := NewManager([]byte(testConfigJSON), core.Hardware{
		GPIO:       f.gpio,
		NVRAM:      &core.MemNVRAM{},
		SwitchPins: &switchPins,
		HardReset:  func() { f.resets++ },
	})
	if err != nil {
		t.Fatal(err)
	}
	f.mgr = mgr

	if mgr.Ctl.State.Get() != core.StateReady {
		t.Fatalf("boot state = %v", mgr.Ctl.State.Get())
	}
	return f
}

// advanceUntil advances up to max milliseconds until cond holds and
// returns the elapsed time.
func (f *fixture) advanceUntil(max int, cond func() bool) int {
	for i := 0; i < max; i++ {
		if cond() {
			return i
		}
		f.mgr.Advance(1)
	}
	return max
}

// Linear feed on one axis: total duration matches the S-curve profile,
// the final position is exact, and velocity and acceleration stay
// within the configured limits.
func TestLinearFeedProfile(t *testing.T) {
	f := newFixture(t)
	ctl := f.mgr.Ctl
	mach := f.mgr.Mach

	mach.SetFeedRate(3000)
	if err := mach.Feed(core.Vector{100}, core.AxisFlags{true}); err != nil {
		t.Fatal(err)
	}

	var peakV, peakA float64
	started := false
	elapsed := 0
	for ; elapsed < 10000; elapsed++ {
		f.mgr.Advance(1)
		if v := ctl.Exec.Velocity(); peakV < v {
			peakV = v
		}
		if a := math.Abs(ctl.Exec.Acceleration()); peakA < a {
			peakA = a
		}
		if ctl.State.Get() == core.StateRunning {
			started = true
		}
		if started && ctl.State.Get() == core.StateReady {
			break
		}
	}

	if !started {
		t.Fatal("move never started")
	}

	pos := ctl.Exec.Position()
	if math.Abs(pos[core.AxisX]-100) > 1e-5 {
		t.Errorf("final position = %v", pos[core.AxisX])
	}
	if mach.Position()[core.AxisX] != 100 {
		t.Errorf("model position = %v", mach.Position()[core.AxisX])
	}

	if 3000*1.001 < peakV {
		t.Errorf("peak velocity %v exceeds feed", peakV)
	}
	if 1e5*1.001 < peakA {
		t.Errorf("peak accel %v exceeds limit", peakA)
	}

	// 100mm at 3000 mm/min with 1e5 mm/min^2 accel: about 3.80s
	const wantMS = 3801
	if elapsed < wantMS-100 || wantMS+150 < elapsed {
		t.Errorf("duration %d ms, want about %d", elapsed, wantMS)
	}
}

// Position sums: a sequence of moves ends exactly where commanded.
func TestMoveSequencePosition(t *testing.T) {
	f := newFixture(t)
	mach := f.mgr.Mach

	mach.SetFeedRate(3000)
	targets := []core.Vector{
		{10, 5}, {20, -3}, {0, 0},
	}
	for _, target := range targets {
		err := mach.Feed(target, core.AxisFlags{true, true})
		if err != nil {
			t.Fatal(err)
		}
	}

	f.advanceUntil(20000, func() bool {
		return f.mgr.Ctl.Queue.Empty() && !f.mgr.Ctl.Exec.Busy() &&
			f.mgr.Ctl.State.Get() == core.StateReady
	})

	pos := f.mgr.Ctl.Exec.Position()
	if math.Abs(pos[0]) > 1e-5 || math.Abs(pos[1]) > 1e-5 {
		t.Errorf("final position = %v, %v", pos[0], pos[1])
	}
}

// Dwell ordering: move, a 500 ms timer-visible dwell, move.
func TestDwellOrdering(t *testing.T) {
	f := newFixture(t)
	ctl := f.mgr.Ctl
	mach := f.mgr.Mach

	mach.SetFeedRate(1000)
	if err := mach.Feed(core.Vector{10}, core.AxisFlags{true}); err != nil {
		t.Fatal(err)
	}
	if err := mach.Dwell(0.5); err != nil {
		t.Fatal(err)
	}
	if err := mach.Feed(core.Vector{20}, core.AxisFlags{true}); err != nil {
		t.Fatal(err)
	}

	dwellMS := 0
	sawDwellAt := -1.0
	for i := 0; i < 20000; i++ {
		f.mgr.Advance(1)
		if 0 < ctl.Stepper.DwellTime() {
			dwellMS++
			if sawDwellAt < 0 {
				sawDwellAt = ctl.Exec.Position()[core.AxisX]
			}
		}
		if ctl.Queue.Empty() && !ctl.Exec.Busy() && 0 == ctl.Stepper.DwellTime() &&
			ctl.State.Get() == core.StateReady && 0 < dwellMS {
			break
		}
	}

	if dwellMS < 498 || 502 < dwellMS {
		t.Errorf("dwell lasted %d ms, want 500", dwellMS)
	}
	// The dwell happened at X=10, between the moves
	if math.Abs(sawDwellAt-10) > 1e-5 {
		t.Errorf("dwell at X=%v, want 10", sawDwellAt)
	}
	if pos := ctl.Exec.Position()[core.AxisX]; math.Abs(pos-20) > 1e-5 {
		t.Errorf("final position = %v", pos)
	}
}

// Full-circle arc: G2 I-10 P1 from (10,0) ends where it started.
func TestFullCircleArc(t *testing.T) {
	f := newFixture(t)
	mach := f.mgr.Mach

	mach.SetAxisPosition(core.AxisX, 10)
	mach.SetFeedRate(1000)

	err := mach.ArcFeed(core.Vector{}, core.AxisFlags{},
		[3]float64{-10, 0, 0}, [3]bool{true, true, false},
		0, false, 1, machine.MotionCWArc)
	if err != nil {
		t.Fatal(err)
	}

	f.advanceUntil(30000, func() bool {
		return !mach.ArcActive() && f.mgr.Ctl.Queue.Empty() &&
			!f.mgr.Ctl.Exec.Busy() &&
			f.mgr.Ctl.State.Get() == core.StateReady
	})

	pos := f.mgr.Ctl.Exec.Position()
	if math.Abs(pos[core.AxisX]-10) > 1e-3 || math.Abs(pos[core.AxisY]) > 1e-3 {
		t.Errorf("arc end = (%v, %v), want (10, 0)", pos[0], pos[1])
	}
}

// Hold during a program decelerates to HOLDING between moves; start
// resumes.
func TestHoldAndResume(t *testing.T) {
	f := newFixture(t)
	ctl := f.mgr.Ctl
	mach := f.mgr.Mach

	mach.SetFeedRate(3000)
	mach.Feed(core.Vector{50}, core.AxisFlags{true})
	mach.Feed(core.Vector{100}, core.AxisFlags{true})

	// Wait for motion to start, then request a hold
	f.advanceUntil(2000, func() bool {
		return ctl.State.Get() == core.StateRunning
	})
	if err := f.mgr.Command("$pause"); err != nil {
		t.Fatal(err)
	}

	f.advanceUntil(10000, func() bool {
		return ctl.State.Get() == core.StateHolding
	})
	if ctl.State.Get() != core.StateHolding {
		t.Fatalf("state = %v", ctl.State.Get())
	}
	if v := ctl.Exec.Velocity(); v != 0 {
		t.Errorf("holding with velocity %v", v)
	}
	// The first move finished; the second is still queued
	if pos := ctl.Exec.Position()[core.AxisX]; math.Abs(pos-50) > 1e-5 {
		t.Errorf("hold position = %v, want 50", pos)
	}

	if err := f.mgr.Command("$run"); err != nil {
		t.Fatal(err)
	}
	f.advanceUntil(10000, func() bool {
		return ctl.State.Get() == core.StateReady && ctl.Queue.Empty()
	})
	if pos := ctl.Exec.Position()[core.AxisX]; math.Abs(pos-100) > 1e-5 {
		t.Errorf("final position = %v", pos)
	}
}

// Probe toward a tripping switch: motion stops at the trip point and
// the machine stays usable.
func TestProbeFound(t *testing.T) {
	f := newFixture(t)
	ctl := f.mgr.Ctl
	mach := f.mgr.Mach

	mach.SetAxisPosition(core.AxisZ, 50)
	mach.SetFeedRate(1000)

	err := mach.Probe(core.Vector{}, core.AxisFlags{core.AxisZ: true},
		machine.MotionProbeCloseErr)
	if err != nil {
		t.Fatal(err)
	}

	tripped := false
	for i := 0; i < 20000; i++ {
		f.mgr.Advance(1)
		if !tripped && ctl.Exec.Position()[core.AxisZ] <= 10 {
			f.gpio.SetPin(core.GPIOPin(core.SwProbe), false) // active low
			tripped = true
		}
		if tripped && ctl.Queue.Empty() && !ctl.Exec.Busy() &&
			ctl.State.Get() == core.StateReady {
			break
		}
	}

	if !tripped {
		t.Fatal("probe never reached the trip point")
	}
	if ctl.Estop.Triggered() {
		t.Fatal("probe success raised e-stop")
	}

	pos := mach.Position()[core.AxisZ]
	if math.Abs(pos-10) > 0.5 {
		t.Errorf("probe stop position = %v, want about 10", pos)
	}
	if pos <= 0 {
		t.Error("probe ran to the endpoint")
	}
}

// Probe that never trips (error variant): the move completes, then the
// machine latches ESTOPPED with reason SEEK_NOT_FOUND.
func TestProbeNotFound(t *testing.T) {
	f := newFixture(t)
	ctl := f.mgr.Ctl
	mach := f.mgr.Mach

	mach.SetAxisPosition(core.AxisZ, 50)
	mach.SetFeedRate(1000)

	err := mach.Probe(core.Vector{0, 0, 45}, core.AxisFlags{core.AxisZ: true},
		machine.MotionProbeCloseErr)
	if err != nil {
		t.Fatal(err)
	}

	f.advanceUntil(20000, func() bool { return ctl.Estop.Triggered() })

	if !ctl.Estop.Triggered() {
		t.Fatal("seek-not-found did not e-stop")
	}
	if ctl.Estop.Reason() != core.StatSeekNotFound {
		t.Errorf("reason = %v", ctl.Estop.Reason())
	}
	if ctl.State.Get() != core.StateEstopped {
		t.Errorf("state = %v", ctl.State.Get())
	}
}

// Tool change holds with reason TOOL and records the tool.
func TestToolChangeHold(t *testing.T) {
	f := newFixture(t)
	ctl := f.mgr.Ctl

	f.mgr.Mach.SelectTool(3)
	f.mgr.Mach.ChangeTool()

	f.advanceUntil(2000, func() bool {
		return ctl.State.Get() == core.StateHolding
	})

	if ctl.State.Get() != core.StateHolding {
		t.Fatalf("state = %v", ctl.State.Get())
	}
	if ctl.State.GetHoldReason() != core.HoldReasonToolChange {
		t.Errorf("hold reason = %v", ctl.State.GetHoldReason())
	}
	if ctl.Exec.Tool() != 3 {
		t.Errorf("tool = %d", ctl.Exec.Tool())
	}

	f.mgr.Command("$run")
	f.advanceUntil(2000, func() bool {
		return ctl.State.Get() == core.StateReady
	})
	if ctl.State.Get() != core.StateReady {
		t.Fatalf("state after run = %v", ctl.State.Get())
	}
}

// Console e-stop and clear; clear issues a hard reset.
func TestConsoleEstop(t *testing.T) {
	f := newFixture(t)

	if err := f.mgr.Command("$estop"); err != nil {
		t.Fatal(err)
	}
	if f.mgr.Ctl.State.Get() != core.StateEstopped {
		t.Fatal("not estopped")
	}
	if f.mgr.Ctl.Estop.Reason() != core.StatEstopUser {
		t.Errorf("reason = %v", f.mgr.Ctl.Estop.Reason())
	}

	if err := f.mgr.Command("$clear"); err != nil {
		t.Fatal(err)
	}
	if f.resets != 1 {
		t.Errorf("hard resets = %d", f.resets)
	}
}

func TestConsoleUnknownCommand(t *testing.T) {
	f := newFixture(t)
	if err := f.mgr.Command("$bogus"); err != core.StatUnrecognizedName {
		t.Fatalf("err = %v", err)
	}
}

// Jog ramp: input 0 to 1 reaches the axis velocity limit within the
// acceleration bound, and releasing returns to rest and READY.
func TestJogRampAndRelease(t *testing.T) {
	f := newFixture(t)
	ctl := f.mgr.Ctl

	if err := f.mgr.Command("$jog x1"); err != nil {
		t.Fatal(err)
	}

	var lastV, peakV, peakStep float64
	for i := 0; i < 4000; i++ {
		f.mgr.Advance(1)
		v := ctl.Jog.AxisVelocity(core.AxisX)
		if peakV < v {
			peakV = v
		}
		if d := math.Abs(v - lastV); peakStep < d {
			peakStep = d
		}
		lastV = v
	}

	if ctl.State.Get() != core.StateJogging {
		t.Fatalf("state = %v", ctl.State.Get())
	}
	if peakV < 2900 || 3001 < peakV {
		t.Errorf("peak jog velocity = %v, want about 3000", peakV)
	}
	// Per-segment velocity change bounded by accel_max * SEGMENT_TIME
	if maxStep := 1e5 * core.SegmentTime * 1.1; maxStep < peakStep {
		t.Errorf("velocity step %v exceeds accel bound %v", peakStep, maxStep)
	}

	if err := f.mgr.Command("$jog x0"); err != nil {
		t.Fatal(err)
	}
	f.advanceUntil(4000, func() bool {
		return ctl.State.Get() == core.StateReady
	})
	if ctl.State.Get() != core.StateReady {
		t.Fatalf("state after release = %v", ctl.State.Get())
	}
	if v := ctl.Exec.Velocity(); v != 0 {
		t.Errorf("velocity after release = %v", v)
	}
}

// Soft-limit stop during jog: the axis stops at or before the limit and
// accepts motion away from it.
func TestJogSoftLimit(t *testing.T) {
	f := newFixture(t)
	ctl := f.mgr.Ctl
	mach := f.mgr.Mach

	ctl.Motors.SetSoftLimits(core.AxisX, 0, 50)
	ctl.Axes.SetHomed(core.AxisX, true)
	mach.SetAxisPosition(core.AxisX, 48)

	if err := f.mgr.Command("$jog x1"); err != nil {
		t.Fatal(err)
	}

	f.mgr.Advance(20000)

	pos := ctl.Exec.Position()[core.AxisX]
	if 50.001 < pos {
		t.Fatalf("jog overran soft limit: %v", pos)
	}
	if pos < 48 {
		t.Fatalf("jog did not move toward limit: %v", pos)
	}

	// Motion away from the limit is accepted
	if err := f.mgr.Command("$jog x-1"); err != nil {
		t.Fatal(err)
	}
	f.mgr.Advance(2000)
	if away := ctl.Exec.Position()[core.AxisX]; pos <= away {
		t.Fatalf("jog away not honored: %v -> %v", pos, away)
	}
}

// Feed override scales the commanded velocity at queue time.
func TestFeedOverride(t *testing.T) {
	f := newFixture(t)
	ctl := f.mgr.Ctl
	mach := f.mgr.Mach

	mach.SetFeedRate(3000)
	mach.SetFeedOverride(0.5)
	if err := mach.Feed(core.Vector{40}, core.AxisFlags{true}); err != nil {
		t.Fatal(err)
	}

	var peakV float64
	f.advanceUntil(20000, func() bool {
		if v := ctl.Exec.Velocity(); peakV < v {
			peakV = v
		}
		return ctl.Queue.Empty() && !ctl.Exec.Busy() &&
			ctl.State.Get() == core.StateReady && 0 < peakV
	})

	if peakV < 1400 || 1501 < peakV {
		t.Errorf("peak velocity = %v, want about 1500", peakV)
	}
}

// Soft-limit violation on a fed move rejects the move and alarms.
func TestFeedSoftLimitAlarm(t *testing.T) {
	f := newFixture(t)
	ctl := f.mgr.Ctl
	mach := f.mgr.Mach

	ctl.Motors.SetSoftLimits(core.AxisX, 0, 50)
	ctl.Axes.SetHomed(core.AxisX, true)

	mach.SetFeedRate(1000)
	err := mach.Feed(core.Vector{60}, core.AxisFlags{true})
	if err != core.StatSoftLimitExceeded {
		t.Fatalf("err = %v", err)
	}
	if !ctl.Estop.Triggered() {
		t.Fatal("soft limit violation did not alarm")
	}
	if ctl.Queue.Fill() != 0 {
		t.Fatal("rejected move entered the queue")
	}
}
