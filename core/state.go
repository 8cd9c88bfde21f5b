package core

// State is the top-level machine state.
type State uint8

const (
	StateReady State = iota
	StateEstopped
	StateRunning
	StateJogging
	StateStopping
	StateHolding
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateEstopped:
		return "ESTOPPED"
	case StateRunning:
		return "RUNNING"
	case StateJogging:
		return "JOGGING"
	case StateStopping:
		return "STOPPING"
	case StateHolding:
		return "HOLDING"
	}
	return "INVALID"
}

// Cycle qualifies what kind of motion the machine is executing.
type Cycle uint8

const (
	CycleMachining Cycle = iota
	CycleHoming
	CycleProbing
	CycleJogging
)

func (c Cycle) String() string {
	switch c {
	case CycleMachining:
		return "MACHINING"
	case CycleHoming:
		return "HOMING"
	case CycleProbing:
		return "PROBING"
	case CycleJogging:
		return "JOGGING"
	}
	return "INVALID"
}

// HoldReason records why the machine is holding, independent of state,
// so the host can distinguish a user pause from a tool change.
type HoldReason uint8

const (
	HoldReasonUserPause HoldReason = iota
	HoldReasonProgramPause
	HoldReasonProgramEnd
	HoldReasonPalletChange
	HoldReasonToolChange
	HoldReasonStepping
	HoldReasonSeek
)

func (r HoldReason) String() string {
	switch r {
	case HoldReasonUserPause:
		return "USER"
	case HoldReasonProgramPause:
		return "PROGRAM"
	case HoldReasonProgramEnd:
		return "END"
	case HoldReasonPalletChange:
		return "PALLET"
	case HoldReasonToolChange:
		return "TOOL"
	case HoldReasonStepping:
		return "STEPPING"
	case HoldReasonSeek:
		return "SEEK"
	}
	return "INVALID"
}

// StateMachine coordinates hold, start, flush, resume and optional-pause
// requests against the motion pipeline. Request functions only set
// flags; Callback interprets them once per foreground iteration.
type StateMachine struct {
	state      State
	cycle      Cycle
	holdReason HoldReason
	pause      bool // producer queue gate (seek in flight)

	holdRequested          bool
	flushRequested         bool
	startRequested         bool
	resumeRequested        bool
	optionalPauseRequested bool

	queue   *Queue
	stepper *Stepper
	exec    *Exec
	spindle *Spindle

	onChange func()
}

// NewStateMachine starts out flushing, matching a clean boot.
func NewStateMachine(queue *Queue) *StateMachine {
	return &StateMachine{queue: queue, flushRequested: true}
}

func (s *StateMachine) bind(stepper *Stepper, exec *Exec, spindle *Spindle) {
	s.stepper = stepper
	s.exec = exec
	s.spindle = spindle
}

// OnChange registers a hook invoked after any externally visible state
// change, typically to request a status report.
func (s *StateMachine) OnChange(cb func()) { s.onChange = cb }

func (s *StateMachine) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// Get returns the current state.
func (s *StateMachine) Get() State { return s.state }

// GetCycle returns the current cycle.
func (s *StateMachine) GetCycle() Cycle { return s.cycle }

// GetHoldReason returns the recorded hold reason.
func (s *StateMachine) GetHoldReason() HoldReason { return s.holdReason }

func (s *StateMachine) set(state State) {
	if s.state == state {
		return // No change
	}
	if s.state == StateEstopped {
		return // Can't leave EStop state
	}
	if state == StateReady && s.exec != nil {
		s.exec.SetLine(0)
	}
	s.state = state
	s.changed()
}

// SetCycle transitions the cycle. Non-machining cycles may only be
// entered from READY.
func (s *StateMachine) SetCycle(cycle Cycle) error {
	if s.cycle == cycle {
		return nil
	}
	if s.state != StateReady && cycle != CycleMachining {
		return StatInternalError
	}
	if s.cycle != CycleMachining && cycle != CycleMachining {
		return StatInternalError
	}
	s.cycle = cycle
	s.changed()
	return nil
}

// SetHoldReason records why the next hold happens.
func (s *StateMachine) SetHoldReason(reason HoldReason) {
	if s.holdReason == reason {
		return
	}
	s.holdReason = reason
	s.changed()
}

// IsFlushing reports whether queued commands should be discarded.
func (s *StateMachine) IsFlushing() bool {
	return s.flushRequested && !s.resumeRequested
}

// IsResuming reports whether a resume is pending.
func (s *StateMachine) IsResuming() bool { return s.resumeRequested }

// IsQuiescent is true when no motion is pending or executing.
func (s *StateMachine) IsQuiescent() bool {
	if s.state != StateReady && s.state != StateHolding {
		return false
	}
	if s.stepper != nil && s.stepper.Busy() {
		return false
	}
	if s.exec != nil && s.exec.Busy() {
		return false
	}
	return true
}

// IsReady reports whether the machining layer may emit more work.
func (s *StateMachine) IsReady() bool {
	return QueueReserve <= s.queue.Room() && !s.IsResuming() && !s.pause
}

// PauseQueue gates the producer; used while a seek move is in flight
// so position commits stay ordered.
func (s *StateMachine) PauseQueue(x bool) { s.pause = x }

// OptionalPause holds only if the user requested an optional pause.
func (s *StateMachine) OptionalPause() {
	if s.optionalPauseRequested {
		s.SetHoldReason(HoldReasonUserPause)
		s.Holding()
	}
}

// Holding enters the HOLDING state.
func (s *StateMachine) Holding() { s.set(StateHolding) }

// Running enters RUNNING when execution picks up the first queued move.
func (s *StateMachine) Running() {
	if s.state == StateReady {
		s.set(StateRunning)
	}
}

// Jogging enters the JOGGING state.
func (s *StateMachine) Jogging() {
	if s.state == StateReady {
		s.cycle = CycleJogging
		s.set(StateJogging)
	}
}

// Idle returns to READY when motion drains.
func (s *StateMachine) Idle() {
	if s.state == StateRunning || s.state == StateJogging {
		s.cycle = CycleMachining
		s.set(StateReady)
	}
}

// Estop latches the ESTOPPED state.
func (s *StateMachine) Estop() {
	s.set(StateEstopped)
	s.PauseQueue(false)
}

// RequestHold asks for a decelerated stop at the next opportunity.
func (s *StateMachine) RequestHold() { s.holdRequested = true }

// RequestStart asks to run anything in the queue.
func (s *StateMachine) RequestStart() { s.startRequested = true }

// RequestFlush asks to drop queued commands once quiescent.
func (s *StateMachine) RequestFlush() { s.flushRequested = true }

// RequestResume completes a flush and returns to READY.
func (s *StateMachine) RequestResume() {
	if s.flushRequested {
		s.resumeRequested = true
	}
}

// RequestOptionalPause arms the next optional pause point.
func (s *StateMachine) RequestOptionalPause() { s.optionalPauseRequested = true }

// RequestStep asks for single-stepped execution.
func (s *StateMachine) RequestStep() {
	s.SetHoldReason(HoldReasonStepping)
	s.startRequested = true
}

// Callback interprets the request flags:
//
//   - A hold request during motion is honored; during a feedhold or at
//     rest it is ignored and reset.
//   - A flush request during motion is deferred until deceleration
//     completes; when quiescent it empties the queue and stops the
//     spindle.
//   - A start request during motion is ignored and reset; during a
//     feedhold it is deferred until HOLDING; at rest it runs anything
//     queued. A pending flush runs first.
func (s *StateMachine) Callback() {
	if s.holdRequested || s.flushRequested {
		s.holdRequested = false
		s.SetHoldReason(HoldReasonUserPause)

		if s.state == StateRunning {
			s.set(StateStopping)
		}
	}

	// Only flush the queue when idle or holding
	if s.flushRequested && s.IsQuiescent() {
		if !s.queue.Empty() {
			s.queue.Flush()
		}

		if s.spindle != nil {
			s.spindle.Stop()
		}

		if s.resumeRequested {
			s.flushRequested = false
			s.resumeRequested = false
			s.set(StateReady)
		}
	}

	// Don't start while flushing or stopping
	if s.startRequested && !s.flushRequested && s.state != StateStopping {
		s.startRequested = false
		s.optionalPauseRequested = false

		if s.state == StateHolding {
			if !s.queue.Empty() {
				s.set(StateRunning)
			} else {
				s.set(StateReady)
			}
		}
	}
}
