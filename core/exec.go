package core

import "math"

// ExecResult is what one executor iteration produced.
type ExecResult uint8

const (
	ExecNoop  ExecResult = iota // nothing to do
	ExecAgain                   // command consumed, no move; re-enter
	ExecOK                      // a segment was handed to the stepper
	ExecPause                   // motion decelerated into a hold
	ExecErr                     // internal inconsistency
)

// segment is the executor's current line state: the move target, its
// unit vector, and the integration state of the active S-curve phase.
type segment struct {
	dirty    bool // a new target was queued; init before next phase
	phaseNew bool // phase parameters need computing

	position Vector // line start position
	target   Vector
	unit     Vector

	steps int // sub-segments in this phase
	step  int // completed sub-segments
	delta float64

	dist float64 // distance along unit since line start
	vel  float64 // velocity entering the active phase
	jerk float64 // axis-limited jerk magnitude for this line
	t0   float64 // phase 0 time, sets cruise acceleration
	t4   float64 // phase 4 time, sets decel acceleration
}

// Exec drains the planner queue. Line moves advance through the
// seven-phase jerk-limited profile, emitting one fixed-duration
// movement per segment time; side-effect commands execute at the exact
// queue position they were pushed.
type Exec struct {
	queue   *Queue
	axes    *Axes
	motors  *Motors
	stepper *Stepper
	state   *StateMachine
	jog     *Jog
	seek    *Seek
	spindle *Spindle
	outputs *Outputs
	rtc     *RTC

	busy bool

	position Vector
	velocity float64
	accel    float64
	jerk     float64

	tool int
	line int32

	scurve    int
	time      float64 // active phase duration
	leftover  float64 // sub-SEGMENT_TIME residuals folded forward
	seekAbort bool

	workOffset Vector

	lastEmpty uint32

	seg segment

	// onSync commits runtime position back into the machining model.
	onSync func()
}

func NewExec(queue *Queue, axes *Axes, motors *Motors, stepper *Stepper,
	state *StateMachine, seek *Seek, spindle *Spindle, outputs *Outputs,
	rtc *RTC) *Exec {

	ex := &Exec{
		queue:   queue,
		axes:    axes,
		motors:  motors,
		stepper: stepper,
		state:   state,
		seek:    seek,
		spindle: spindle,
		outputs: outputs,
		rtc:     rtc,
	}
	ex.seg.phaseNew = true
	return ex
}

func (ex *Exec) bindJog(jog *Jog) { ex.jog = jog }
func (ex *Exec) OnSync(cb func()) { ex.onSync = cb }

// Busy reports whether the executor is mid-program.
func (ex *Exec) Busy() bool { return ex.busy }

// Velocity returns the current path velocity in mm/min.
func (ex *Exec) Velocity() float64 { return ex.velocity }

// Acceleration returns the current path acceleration in mm/min^2.
func (ex *Exec) Acceleration() float64 { return ex.accel }

// Jerk returns the current path jerk in mm/min^3.
func (ex *Exec) Jerk() float64 { return ex.jerk }

// Tool returns the active tool number.
func (ex *Exec) Tool() int { return ex.tool }

// Line returns the executing G-code line number.
func (ex *Exec) Line() int32 { return ex.line }

// SetLine resets the reported line number.
func (ex *Exec) SetLine(line int32) { ex.line = line }

// AxisPosition returns the executor position of one axis in machine
// coordinates.
func (ex *Exec) AxisPosition(axis int) float64 { return ex.position[axis] }

// Position returns the executor position vector.
func (ex *Exec) Position() Vector { return ex.position }

// SetAxisPosition overrides one axis position. Only valid while the
// machine is quiescent.
func (ex *Exec) SetAxisPosition(axis int, p float64) { ex.position[axis] = p }

// SetVelocity overrides the path velocity; used by the jog engine.
func (ex *Exec) SetVelocity(v float64) { ex.velocity = v }

// WorkOffset returns the resolved work offsets the executor is using.
func (ex *Exec) WorkOffset() Vector { return ex.workOffset }

// RuntimePosition returns the actual position computed from the motor
// encoder counts, falling back to the commanded position for axes
// without a motor.
func (ex *Exec) RuntimePosition() Vector {
	v := ex.position
	for axis := 0; axis < NumAxes; axis++ {
		motor := ex.axes.Motor(axis)
		if motor == -1 {
			continue
		}
		m := ex.motors.Motor(motor)
		if m.stepsPerUnit != 0 {
			v[axis] = float64(m.encoder) / m.stepsPerUnit
		}
	}
	return v
}

// SyncEncoders resets the motor step counters to the executor position.
func (ex *Exec) SyncEncoders() { ex.motors.SetPosition(&ex.position) }

// MoveToTarget emits one movement of the given duration (minutes) to
// the stepper back-end. Durations under half a segment time accumulate
// into the leftover and merge with the next movement. Returns true if
// a move was handed to the stepper.
func (ex *Exec) MoveToTarget(time float64, target *Vector) bool {
	for i := 0; i < NumAxes; i++ {
		if math.IsNaN(target[i]) || math.IsInf(target[i], 0) {
			ex.stepper.alarm(StatInternalError)
			return false
		}
	}

	// Update position
	ex.position = *target

	// No move if time is too short
	if time < 0.5*SegmentTime {
		ex.leftover += time
		return false
	}

	time += ex.leftover
	ex.leftover = 0

	ex.stepper.PrepLine(time, target)
	return true
}

// Next executes one command from the planner queue. The head entry is
// not popped while its handler still has work to do; a phase's Data
// entry stays at the head until its last sub-segment is emitted.
func (ex *Exec) Next() ExecResult {
	switch ex.state.Get() {
	case StateJogging:
		return ex.jog.Exec()
	case StateHolding, StateEstopped:
		// The queue is frozen; commands resume on start
		ex.busy = false
		return ExecNoop
	}

	if ex.queue.Empty() {
		if ex.busy {
			ex.busy = false
			ex.state.Idle()
		}
		ex.lastEmpty = ex.rtc.Time()
		if ex.state.Get() == StateStopping && !ex.stepper.Busy() {
			ex.state.Holding()
			return ExecPause
		}
		return ExecNoop
	}

	e := ex.queue.Head()

	// Honor a pending hold at move boundaries only, so motion always
	// decelerates through the planned S-curve.
	if ex.state.Get() == StateStopping && e.Action == ActionLineNum {
		ex.state.Holding()
		return ExecPause
	}

	// On restart wait a bit to give the queue a chance to fill
	if !ex.busy && ex.queue.Fill() < ExecFillTarget &&
		!ex.rtc.Expired(ex.lastEmpty+ExecDelay) {
		return ExecNoop
	}
	ex.busy = true
	ex.state.Running()

	switch e.Action {
	case ActionScurve:
		ex.scurve = int(e.Int)
		ex.seg.phaseNew = true

	case ActionData:
		return ex.dataAction(e)

	case ActionVelocity:
		ex.seg.vel = e.Float
		// Zero entry velocity at a move boundary is a commanded stop;
		// snap the runtime to rest.
		if e.Float == 0 {
			ex.velocity = 0
			ex.accel = 0
			ex.jerk = 0
		}

	case ActionTargetX, ActionTargetY, ActionTargetZ,
		ActionTargetA, ActionTargetB, ActionTargetC:
		ex.seg.target[int(e.Action-ActionTargetX)] = e.Float
		ex.seg.dirty = true

	case ActionSeek:
		ex.seek.Set(SwitchID(e.Left), e.Right&SeekOpen != 0,
			e.Right&SeekError != 0)

	case ActionOutput:
		ex.outputs.Set(int(e.Left), e.Bool)

	case ActionDwell:
		ex.stepper.PrepDwell(e.Float)
		ex.queue.Pop()
		return ExecOK

	case ActionPause:
		return ex.pauseAction(e)

	case ActionTool:
		ex.tool = int(e.Int)
		ex.state.SetHoldReason(HoldReasonToolChange)
		ex.state.Holding()
		ex.queue.Pop()
		return ExecPause

	case ActionSpeed:
		ex.spindle.SetSpeed(e.Float)

	case ActionSync:
		ex.syncAction()

	case ActionLineNum:
		ex.line = e.Int

	case ActionSetHome:
		ex.setHomeAction(e)

	case ActionOffsets:
		ex.workOffset = e.Vec

	default:
		ex.queue.Pop()
		return ExecErr
	}

	ex.queue.Pop()
	return ExecAgain
}

func (ex *Exec) pauseAction(e *Entry) ExecResult {
	ex.queue.Pop()
	if e.Bool {
		ex.state.OptionalPause()
	} else {
		ex.state.SetHoldReason(HoldReason(e.Int))
		ex.state.Holding()
	}
	if ex.state.Get() == StateHolding {
		return ExecPause
	}
	return ExecAgain
}

func (ex *Exec) syncAction() {
	ex.seek.End()
	ex.velocity = 0
	ex.accel = 0
	ex.jerk = 0
	ex.seekAbort = false
	if ex.onSync != nil {
		ex.onSync()
	}
	ex.state.PauseQueue(false)
}

func (ex *Exec) setHomeAction(e *Entry) {
	for axis := 0; axis < NumAxes; axis++ {
		if !e.Flags[axis] {
			continue
		}
		ex.position[axis] = e.Vec[axis]
		ex.seg.target[axis] = e.Vec[axis]
		ex.axes.SetHomed(axis, true)
		ex.motors.SetAxisPosition(axis, e.Vec[axis])
	}
}

// dataAction runs one sub-segment of the active S-curve phase. The
// entry pops only when the phase's time is exhausted.
func (ex *Exec) dataAction(e *Entry) ExecResult {
	// A triggered seek ends the move early: drop the remaining motion
	// entries; the queued sync commits the runtime position.
	if ex.seekAbort {
		ex.queue.Pop()
		return ExecAgain
	}
	if ex.seek.Active() && ex.seek.Found() {
		ex.seekAbort = true
		ex.seg.dirty = true
		ex.seg.phaseNew = true
		ex.queue.Pop()
		return ExecAgain
	}

	t := e.Float
	if t <= 0 {
		ex.queue.Pop()
		return ExecAgain // Skip empty phases
	}

	if ex.seg.phaseNew {
		ex.phaseInit(t)
	}

	ex.seg.step++
	if ex.seg.step < ex.seg.steps {
		return ex.segmentBody()
	}

	result := ex.segmentEnd()
	ex.queue.Pop()
	return result
}

// lineInit starts a new move: records the start position, computes the
// unit vector over enabled axes and the axis-limited jerk.
func (ex *Exec) lineInit() {
	ex.seg.position = ex.position
	ex.seg.dist = 0
	ex.seg.t0 = 0
	ex.seg.t4 = 0

	var length float64
	for i := 0; i < NumAxes; i++ {
		if ex.axes.Enabled(i) {
			ex.seg.unit[i] = ex.seg.target[i] - ex.position[i]
			length += ex.seg.unit[i] * ex.seg.unit[i]
		} else {
			ex.seg.unit[i] = 0
		}
	}
	length = math.Sqrt(length)
	if length != 0 {
		for i := 0; i < NumAxes; i++ {
			ex.seg.unit[i] /= length
		}
	}

	// Axis-limited jerk
	ex.seg.jerk = math.MaxFloat64
	for i := 0; i < NumAxes; i++ {
		if ex.seg.unit[i] != 0 {
			j := math.Abs(ex.axes.JerkMax(i) / ex.seg.unit[i])
			if j < ex.seg.jerk {
				ex.seg.jerk = j
			}
		}
	}

	ex.seg.dirty = false
}

// phaseInit computes the jerk and acceleration for the active phase
// and splits its time into equal sub-segments near SEGMENT_TIME.
func (ex *Exec) phaseInit(t float64) {
	if ex.seg.dirty {
		ex.lineInit()
	}

	ex.time = t
	ex.seg.step = 0
	// Epsilon keeps float residue in an exact multiple of SegmentTime
	// from adding a sub-segment
	ex.seg.steps = int(math.Ceil(t/SegmentTime - Epsilon))
	if ex.seg.steps < 1 {
		ex.seg.steps = 1
	}
	ex.seg.delta = t / float64(ex.seg.steps)

	switch ex.scurve {
	case 0:
		ex.seg.t0 = t
	case 4:
		ex.seg.t4 = t
	}

	// Jerk
	switch ex.scurve {
	case 0, 6:
		ex.jerk = ex.seg.jerk
	case 2, 4:
		ex.jerk = -ex.seg.jerk
	default:
		ex.jerk = 0
	}

	// Acceleration
	switch ex.scurve {
	case 1, 2:
		ex.accel = ex.seg.jerk * ex.seg.t0
	case 5, 6:
		ex.accel = -ex.seg.jerk * ex.seg.t4
	default:
		ex.accel = 0
	}

	ex.seg.phaseNew = false
}

// moveDistance projects the distance along the unit vector into an
// axis target and emits the movement. At a phase end the projected
// target snaps to the exact queued endpoint when within tolerance,
// correcting accumulated floating-point error.
func (ex *Exec) moveDistance(dist float64, end bool) bool {
	var target Vector
	for i := 0; i < NumAxes; i++ {
		target[i] = ex.seg.position[i] + ex.seg.unit[i]*dist
	}

	for i := 0; end && i < NumAxes; i++ {
		if 0.000001 < math.Abs(ex.seg.target[i]-target[i]) {
			end = false
		}
	}
	if end {
		target = ex.seg.target
	}

	return ex.MoveToTarget(ex.seg.delta, &target)
}

func (ex *Exec) segmentBody() ExecResult {
	t := ex.seg.delta * float64(ex.seg.step)
	d := ScurveDistance(t, ex.seg.vel, ex.accel, ex.jerk)
	v := ScurveVelocity(t, ex.accel, ex.jerk)

	ex.velocity = ex.seg.vel + v

	if ex.moveDistance(ex.seg.dist+d, false) {
		return ExecOK
	}
	return ExecAgain
}

// segmentEnd snaps distance and velocity to the closed-form phase
// integrals and advances the S-curve phase.
func (ex *Exec) segmentEnd() ExecResult {
	ex.seg.dist += ScurveDistance(ex.time, ex.seg.vel, ex.accel, ex.jerk)
	ex.seg.vel += ScurveVelocity(ex.time, ex.accel, ex.jerk)
	ex.velocity = ex.seg.vel

	// Automatically advance the S-curve phase
	ex.scurve = (ex.scurve + 1) % 7
	ex.seg.phaseNew = true

	// A completed stop profile ends at rest; snap away float residue
	if ex.scurve == 0 && math.Abs(ex.seg.vel) < Epsilon {
		ex.seg.vel = 0
		ex.velocity = 0
		ex.accel = 0
		ex.jerk = 0
	}

	if ex.moveDistance(ex.seg.dist, true) {
		return ExecOK
	}
	return ExecAgain
}
