package machine

import (
	"math"

	"gomill/core"
)

// Machine keeps the modal G-code state, the coordinate system and
// origin offsets, and the model position, and dispatches canonical
// operations into the planner queue.
//
// All positional information is kept in absolute machine coordinates
// and canonical units (mm); offsets only translate in and out of
// canonical form at the command boundary.
type Machine struct {
	ctl *core.Controller

	offset       [Coords + 1][core.NumAxes]float64 // G54-G59 (+1 scratch)
	originOffset core.Vector                       // G92 offsets
	originEnable bool

	position core.Vector // model position, machine coords, mm
	g28      core.Vector // stored machine position for G28
	g30      core.Vector // stored machine position for G30

	workOffset core.Vector // last queued resolved offsets

	gm GCodeState

	arc Arc
}

// New builds the machining layer over a runtime controller and installs
// the runtime-to-model sync hooks.
func New(ctl *core.Controller) *Machine {
	m := &Machine{ctl: ctl}
	m.gm.MotionMode = MotionCancel
	m.gm.FeedOverride = 1
	m.gm.SpindleOverride = 1

	m.SetUnits(DefaultUnits)
	m.SetCoordSystem(DefaultCoordSystem)
	m.SetPlane(DefaultPlane)
	m.SetPathMode(DefaultPathMode)
	m.SetDistanceMode(DefaultDistanceMode)
	m.SetArcDistanceMode(DefaultArcDistanceMode)
	m.SetFeedMode(UnitsPerMinute) // always the default

	ctl.Exec.OnSync(m.SetPositionFromRuntime)
	ctl.Jog.OnDone(m.SetPositionFromRuntime)

	m.arc.m = m
	return m
}

// State returns a copy of the modal G-code state.
func (m *Machine) State() GCodeState { return m.gm }

// Position returns the model position in machine coordinates.
func (m *Machine) Position() core.Vector { return m.position }

// Line returns the current G-code line number.
func (m *Machine) Line() int32 { return m.gm.Line }

// SetLine records the G-code line number for subsequent commands.
func (m *Machine) SetLine(line int32) { m.gm.Line = line }

// FeedOverride returns the effective feed override factor.
func (m *Machine) FeedOverride() float64 {
	if m.gm.FeedOverrideEnable {
		return m.gm.FeedOverride
	}
	return 1
}

// SpindleOverride returns the effective spindle override factor.
func (m *Machine) SpindleOverride() float64 {
	if m.gm.SpindleOverrideEnable {
		return m.gm.SpindleOverride
	}
	return 1
}

func (m *Machine) isRapid() bool       { return m.gm.MotionMode == MotionRapid }
func (m *Machine) isInverseTime() bool { return m.gm.FeedMode == InverseTime }

// toMM converts a linear input value to canonical millimeters.
func (m *Machine) toMM(v float64) float64 {
	if m.gm.Units == Inches {
		return v * core.MMPerInch
	}
	return v
}

// Modal setters. These affect the G-code model only.

// SetPlane selects the arc plane (G17, G18, G19).
func (m *Machine) SetPlane(p Plane) { m.gm.Plane = p }

// SetUnits selects input units (G20, G21).
func (m *Machine) SetUnits(u Units) { m.gm.Units = u }

// SetDistanceMode selects absolute or incremental targets (G90, G91).
func (m *Machine) SetDistanceMode(d DistanceMode) { m.gm.DistanceMode = d }

// SetArcDistanceMode selects arc offset interpretation (G90.1, G91.1).
func (m *Machine) SetArcDistanceMode(d DistanceMode) { m.gm.ArcDistanceMode = d }

// SetPathMode selects path control (G61, G61.1, G64).
func (m *Machine) SetPathMode(p PathMode) { m.gm.PathMode = p }

// SetAbsoluteMode sets the G53 absolute override for the next move.
func (m *Machine) SetAbsoluteMode(abs bool) { m.gm.AbsoluteMode = abs }

// SetMotionMode records the active motion mode.
func (m *Machine) SetMotionMode(mode MotionMode) { m.gm.MotionMode = mode }

// SetCoordSystem selects the work coordinate system (G54-G59).
func (m *Machine) SetCoordSystem(cs CoordSystem) {
	if cs < Coords {
		m.gm.CoordSystem = cs
	}
}

// SetFeedMode selects units-per-minute or inverse-time feed (G94, G93).
// Changing modes forces the next block to set a fresh feed rate.
func (m *Machine) SetFeedMode(mode FeedMode) {
	if m.gm.FeedMode == mode {
		return
	}
	m.gm.FeedRate = 0
	m.gm.FeedMode = mode
}

// SetFeedRate normalizes the F word: to mm/min, or to minutes in
// inverse time mode.
func (m *Machine) SetFeedRate(feedRate float64) {
	if m.gm.FeedMode == InverseTime {
		if feedRate != 0 {
			m.gm.FeedRate = 1 / feedRate
		} else {
			m.gm.FeedRate = 0
		}
	} else {
		m.gm.FeedRate = m.toMM(feedRate)
	}
}

// SetFeedOverride sets and enables the feed override factor; zero
// disables it.
func (m *Machine) SetFeedOverride(value float64) {
	m.gm.FeedOverride = value
	m.gm.FeedOverrideEnable = !core.FpZero(value)
}

// SetSpindleOverride sets and enables the spindle override factor.
func (m *Machine) SetSpindleOverride(value float64) {
	m.gm.SpindleOverride = value
	m.gm.SpindleOverrideEnable = !core.FpZero(value)
}

// OverrideEnables enables or disables both overrides (M48, M49).
func (m *Machine) OverrideEnables(flag bool) {
	m.gm.FeedOverrideEnable = flag
	m.gm.SpindleOverrideEnable = flag
}

// Coordinate systems and offsets

// ActiveCoordOffset returns the currently active coordinate offset for
// an axis, taking G5x, G92 and the absolute override into account.
func (m *Machine) ActiveCoordOffset(axis int) float64 {
	if m.gm.AbsoluteMode {
		return 0 // no offset in absolute override mode
	}
	offset := m.offset[m.gm.CoordSystem][axis]
	if m.originEnable {
		offset += m.originOffset[axis]
	}
	return offset
}

// UpdateWorkOffsets captures the resolved offsets and, when they
// changed, queues them so the executor switches offsets at the exact
// program position of the change.
func (m *Machine) UpdateWorkOffsets() {
	var work core.Vector
	same := true

	for axis := 0; axis < core.NumAxes; axis++ {
		work[axis] = m.ActiveCoordOffset(axis)
		if work[axis] != m.workOffset[axis] {
			same = false
		}
	}

	if !same {
		m.workOffset = work
		m.push(core.Entry{Action: core.ActionOffsets, Vec: work})
	}
}

// SetCoordOffsets updates a work coordinate system (G10 L2).
func (m *Machine) SetCoordOffsets(cs CoordSystem, offset core.Vector,
	flags core.AxisFlags) {

	if Coords <= cs {
		return
	}
	for axis := 0; axis < core.NumAxes; axis++ {
		if flags[axis] {
			m.offset[cs][axis] = m.toMM(offset[axis])
		}
	}
}

// SetOriginOffsets applies G92: the current position becomes the given
// value in the active coordinate system.
func (m *Machine) SetOriginOffsets(offset core.Vector, flags core.AxisFlags) {
	m.originEnable = true
	for axis := 0; axis < core.NumAxes; axis++ {
		if flags[axis] {
			m.originOffset[axis] = m.position[axis] -
				m.offset[m.gm.CoordSystem][axis] - m.toMM(offset[axis])
		}
	}
	m.UpdateWorkOffsets()
}

// ResetOriginOffsets cancels and zeroes G92 offsets (G92.1).
func (m *Machine) ResetOriginOffsets() {
	m.originEnable = false
	m.originOffset = core.Vector{}
	m.UpdateWorkOffsets()
}

// SuspendOriginOffsets disables G92 offsets (G92.2).
func (m *Machine) SuspendOriginOffsets() {
	m.originEnable = false
	m.UpdateWorkOffsets()
}

// ResumeOriginOffsets re-enables G92 offsets (G92.3).
func (m *Machine) ResumeOriginOffsets() {
	m.originEnable = true
	m.UpdateWorkOffsets()
}

// CalcTarget resolves a user target into machine coordinates: units
// conversion, incremental to absolute, work offsets, and axis radius
// mode.
func (m *Machine) CalcTarget(values core.Vector, flags core.AxisFlags,
	absolute bool) core.Vector {

	target := m.position
	for axis := 0; axis < core.NumAxes; axis++ {
		if !flags[axis] || !m.ctl.Axes.Enabled(axis) {
			continue
		}

		if absolute {
			target[axis] = m.ActiveCoordOffset(axis)
		} else {
			target[axis] = m.position[axis]
		}

		if radius := m.ctl.Axes.Radius(axis); radius != 0 {
			// Radius mode converts linear input to degrees
			target[axis] += m.toMM(values[axis]) * 360 / (2 * math.Pi * radius)
		} else if core.AxisZ < axis {
			// Rotary axis input is already degrees
			target[axis] += values[axis]
		} else {
			target[axis] += m.toMM(values[axis])
		}
	}
	return target
}

// TestSoftLimits returns an error when the target violates the soft
// limits of an enabled, homed axis.
func (m *Machine) TestSoftLimits(target core.Vector) error {
	for axis := 0; axis < core.NumAxes; axis++ {
		if !m.ctl.Axes.Enabled(axis) || !m.ctl.Axes.Homed(axis) {
			continue
		}

		min := m.ctl.Axes.SoftLimit(axis, true)
		max := m.ctl.Axes.SoftLimit(axis, false)
		if core.FpEqual(min, max) {
			continue // min == max means no soft limits
		}

		if target[axis] < min || max < target[axis] {
			return core.StatSoftLimitExceeded
		}
	}
	return nil
}

func (m *Machine) push(e core.Entry) {
	e.Line = m.gm.Line
	if !m.ctl.Queue.Push(e) {
		m.ctl.Estop.Trigger(core.StatInternalError)
	}
}

// feed validates, resolves and queues one straight move.
func (m *Machine) feed(values core.Vector, flags core.AxisFlags,
	sw core.SwitchID) error {

	// Trap inverse time mode without a fresh feed rate
	if !m.isRapid() && m.gm.FeedMode == InverseTime &&
		core.FpZero(m.gm.FeedRate) {
		return core.StatFeedRateNotSpecified
	}

	target := m.CalcTarget(values, flags, m.gm.DistanceMode == AbsoluteMode)
	return m.feedResolved(target, sw)
}

// feedResolved queues a move to a target already in machine coords.
func (m *Machine) feedResolved(target core.Vector, sw core.SwitchID) error {
	if err := m.TestSoftLimits(target); err != nil {
		// Kinematic violations alarm
		m.ctl.Estop.Trigger(core.StatusOf(err))
		return err
	}

	m.UpdateWorkOffsets()
	if err := m.planLine(target, sw); err != nil {
		return err
	}
	m.position = target

	return nil
}

// Rapid queues a linear rapid (G0).
func (m *Machine) Rapid(values core.Vector, flags core.AxisFlags) error {
	m.SetMotionMode(MotionRapid)
	return m.feed(values, flags, 0)
}

// Feed queues a linear feed move (G1).
func (m *Machine) Feed(values core.Vector, flags core.AxisFlags) error {
	m.SetMotionMode(MotionFeed)
	return m.feed(values, flags, 0)
}

// Dwell queues a timed pause in seconds (G4).
func (m *Machine) Dwell(seconds float64) error {
	if seconds < 0 {
		return core.StatInvalidArguments
	}
	m.push(core.Entry{Action: core.ActionLineNum, Int: m.gm.Line})
	m.push(core.Entry{Action: core.ActionDwell, Float: seconds})
	return nil
}

// SetG28Position stores the current position for G28 (G28.1).
func (m *Machine) SetG28Position() { m.g28 = m.position }

// GotoG28Position rapids through the optional intermediate point, then
// to the stored G28 position.
func (m *Machine) GotoG28Position(values core.Vector, flags core.AxisFlags) error {
	m.SetAbsoluteMode(true)
	defer m.SetAbsoluteMode(false)

	// Move through intermediate point, or skip
	if flags.Any() {
		if err := m.Rapid(values, flags); err != nil {
			return err
		}
	}

	// Execute the actual stored move
	all := core.AxisFlags{true, true, true, true, true, true}
	return m.Rapid(m.g28, all)
}

// SetG30Position stores the current position for G30 (G30.1).
func (m *Machine) SetG30Position() { m.g30 = m.position }

// GotoG30Position rapids through the optional intermediate point, then
// to the stored G30 position.
func (m *Machine) GotoG30Position(values core.Vector, flags core.AxisFlags) error {
	m.SetAbsoluteMode(true)
	defer m.SetAbsoluteMode(false)

	if flags.Any() {
		if err := m.Rapid(values, flags); err != nil {
			return err
		}
	}

	all := core.AxisFlags{true, true, true, true, true, true}
	return m.Rapid(m.g30, all)
}

// SetHome commits axis origins (G28.3): the model and planner update
// immediately, the runtime commit is queued so it lands in program
// order.
func (m *Machine) SetHome(origin core.Vector, flags core.AxisFlags) {
	target := m.CalcTarget(origin, flags, true)

	e := core.Entry{Action: core.ActionSetHome}
	for axis := 0; axis < core.NumAxes; axis++ {
		if flags[axis] && !math.IsNaN(origin[axis]) &&
			!math.IsInf(origin[axis], 0) {

			target[axis] -= m.ActiveCoordOffset(axis)
			m.position[axis] = target[axis]
			e.Vec[axis] = target[axis]
			e.Flags[axis] = true
		}
	}

	m.push(e)
}

// ClearHome clears the homed flag of the flagged axes.
func (m *Machine) ClearHome(flags core.AxisFlags) {
	for axis := 0; axis < core.NumAxes; axis++ {
		if flags[axis] {
			m.ctl.Axes.SetHomed(axis, false)
		}
	}
}

// Probe queues a probing move (G38.x). The queue pauses until the
// runtime position commits so the trip point reports exactly.
func (m *Machine) Probe(values core.Vector, flags core.AxisFlags,
	mode MotionMode) error {

	m.SetMotionMode(mode)

	if !m.ctl.Switches.IsEnabled(core.SwProbe) {
		return core.StatSeekSwitchDisabled
	}
	if !flags.Any() {
		return core.StatSeekMissingAxis
	}

	if err := m.feed(values, flags, core.SwProbe); err != nil {
		return err
	}

	m.ctl.State.PauseQueue(true)
	m.push(core.Entry{Action: core.ActionSync})

	return nil
}

// Seek queues a move that stops on a switch edge. Exactly one axis
// must move; the travel direction selects the limit switch to watch.
// After the move the queue pauses until the runtime position commits.
func (m *Machine) Seek(values core.Vector, flags core.AxisFlags,
	mode MotionMode) error {

	m.SetMotionMode(mode)

	if m.gm.FeedMode == InverseTime && core.FpZero(m.gm.FeedRate) {
		return core.StatFeedRateNotSpecified
	}

	target := m.CalcTarget(values, flags, m.gm.DistanceMode == AbsoluteMode)

	sw := core.SwProbe
	for axis := 0; axis < core.NumAxes; axis++ {
		if !flags[axis] || math.IsNaN(values[axis]) ||
			math.IsInf(values[axis], 0) {
			continue
		}

		if !m.ctl.Axes.Enabled(axis) {
			return core.StatSeekAxisDisabled
		}
		if sw != core.SwProbe {
			return core.StatSeekMultipleAxes
		}
		if core.FpEqual(target[axis], m.position[axis]) {
			return core.StatSeekZeroMove
		}
		if core.AxisA < axis {
			return core.StatSeekAxisDisabled // no limit switches past A
		}

		min := target[axis] < m.position[axis]
		if mode == MotionSeekOpenErr || mode == MotionSeekOpen {
			min = !min
		}

		if min {
			sw = core.MinSwitch(axis)
		} else {
			sw = core.MaxSwitch(axis)
		}

		if !m.ctl.Switches.IsEnabled(sw) {
			return core.StatSeekSwitchDisabled
		}
	}

	if sw == core.SwProbe {
		return core.StatSeekMissingAxis
	}

	if err := m.feedResolved(target, sw); err != nil {
		return err
	}

	m.ctl.State.PauseQueue(true)
	m.push(core.Entry{Action: core.ActionSync})

	return nil
}

// SetPositionFromRuntime resyncs the model position from the runtime
// after a seek or jog. Only valid while no moves are queued.
func (m *Machine) SetPositionFromRuntime() {
	pos := m.ctl.Exec.RuntimePosition()
	for axis := 0; axis < core.NumAxes; axis++ {
		m.position[axis] = pos[axis]
		m.ctl.Exec.SetAxisPosition(axis, pos[axis])
	}
	m.ctl.Exec.SyncEncoders()
}

// SetAxisPosition overrides one axis in the model, planner and runtime.
// Do not call while in a machining cycle.
func (m *Machine) SetAxisPosition(axis int, position float64) {
	if core.NumAxes <= axis {
		return
	}
	m.position[axis] = position
	m.ctl.Exec.SetAxisPosition(axis, position)
	m.ctl.Exec.SyncEncoders()
}

// Tool and spindle

// SelectTool records the T word.
func (m *Machine) SelectTool(tool int) { m.gm.Tool = tool }

// ChangeTool queues the tool change; execution holds with reason TOOL.
func (m *Machine) ChangeTool() {
	m.push(core.Entry{Action: core.ActionTool, Int: int32(m.gm.Tool)})
}

// SetSpindleSpeed queues the S word scaled by the spindle override.
func (m *Machine) SetSpindleSpeed(speed float64) {
	m.push(core.Entry{
		Action: core.ActionSpeed,
		Float:  speed * m.SpindleOverride(),
	})
}

// SetSpindleMode applies the spindle mode immediately through the seam.
// The change is not queued: it takes effect ahead of any motion still in
// the planner queue, and ProgramEnd's M5 is applied the same way.
func (m *Machine) SetSpindleMode(mode core.SpindleMode) {
	m.ctl.Spindle.SetMode(mode)
}

// Coolant

// MistCoolant queues M7.
func (m *Machine) MistCoolant(enable bool) {
	m.push(core.Entry{Action: core.ActionOutput,
		Left: core.OutMist, Bool: enable})
}

// FloodCoolant queues M8/M9. M9 also clears mist.
func (m *Machine) FloodCoolant(enable bool) {
	m.push(core.Entry{Action: core.ActionOutput,
		Left: core.OutFlood, Bool: enable})
	if !enable {
		m.push(core.Entry{Action: core.ActionOutput,
			Left: core.OutMist, Bool: false})
	}
}

// SetOutput queues a general purpose output change.
func (m *Machine) SetOutput(index int, enable bool) {
	m.push(core.Entry{Action: core.ActionOutput,
		Left: int8(index), Bool: enable})
}

// Program control

// ProgramStop queues M0: all motion stops at this queue position and a
// start is needed to continue.
func (m *Machine) ProgramStop() {
	m.push(core.Entry{Action: core.ActionPause,
		Int: int32(core.HoldReasonProgramPause)})
}

// OptionalProgramStop queues M1.
func (m *Machine) OptionalProgramStop() {
	m.push(core.Entry{Action: core.ActionPause, Bool: true})
}

// PalletChangeStop queues M60.
func (m *Machine) PalletChangeStop() {
	m.push(core.Entry{Action: core.ActionPause,
		Int: int32(core.HoldReasonPalletChange)})
}

// ProgramEnd implements M2 and M30: origin offsets reset, defaults
// restored, spindle and coolant off, motion mode canceled.
func (m *Machine) ProgramEnd() {
	m.ResetOriginOffsets()
	m.SetCoordSystem(DefaultCoordSystem)
	m.SetPlane(DefaultPlane)
	m.SetDistanceMode(DefaultDistanceMode)
	m.SetArcDistanceMode(DefaultArcDistanceMode)
	m.SetSpindleMode(core.SpindleOff) // M5
	m.FloodCoolant(false)             // M9
	m.SetFeedMode(UnitsPerMinute)     // G94
	m.SetMotionMode(MotionCancel)
}

// ArcActive reports whether arc segment generation is in progress.
func (m *Machine) ArcActive() bool { return m.arc.Active() }

// ArcCallback queues pending arc segments while planner room exists.
// Called from the foreground loop.
func (m *Machine) ArcCallback() { m.arc.Callback() }

// AbortArc discards remaining arc segments without touching queued
// ones. OK to call when no arc is running.
func (m *Machine) AbortArc() { m.arc.Abort() }
