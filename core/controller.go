package core

// Hardware bundles the platform seams. Zero value is a fully simulated
// machine: null GPIO, in-memory NVRAM, open-loop step generation.
type Hardware struct {
	GPIO       GPIODriver
	NVRAM      NVRAM
	SwitchPins *[NumSwitches]GPIOPin
	OutputPins *[NumOutputs]GPIOPin
	HardReset  HardResetFunc
}

// Controller owns the runtime core: every subsystem bundled into one
// context with the cross-references installed once at init.
type Controller struct {
	RTC      *RTC
	Queue    *Queue
	Motors   *Motors
	Axes     *Axes
	Switches *Switches
	Spindle  *Spindle
	Outputs  *Outputs
	Stepper  *Stepper
	Seek     *Seek
	Exec     *Exec
	Jog      *Jog
	State    *StateMachine
	Estop    *Estop

	stepTicks  uint32
	stepPeriod uint32
}

// NewController builds and wires the runtime core from a machine
// configuration.
func NewController(cfg *Config, hw Hardware) *Controller {
	rtc := &RTC{}
	motors := NewMotors(&cfg.Motors, rtc)
	axes := NewAxes(&cfg.Axes, motors)
	queue := NewQueue()
	state := NewStateMachine(queue)

	switches := NewSwitches(hw.GPIO, hw.SwitchPins)
	switches.Configure(&cfg.Switches)

	spindle := NewSpindle()
	outputs := NewOutputs(hw.GPIO, hw.OutputPins)
	stepper := NewStepper(motors, rtc)
	seek := NewSeek(switches)
	exec := NewExec(queue, axes, motors, stepper, state, seek, spindle,
		outputs, rtc)
	jog := NewJog(axes, exec, state)

	exec.bindJog(jog)
	state.bind(stepper, exec, spindle)

	estop := NewEstop(hw.NVRAM, switches, stepper, spindle, state)
	estop.SetHardReset(hw.HardReset)
	seek.bind(estop)
	stepper.bind(exec, estop.Triggered, func(s Status) { estop.Trigger(s) })

	switches.SetCallback(SwMotorFault, func(id SwitchID, active bool) {
		if active {
			estop.Trigger(StatMotorFault)
		}
	})

	return &Controller{
		RTC:      rtc,
		Queue:    queue,
		Motors:   motors,
		Axes:     axes,
		Switches: switches,
		Spindle:  spindle,
		Outputs:  outputs,
		Stepper:  stepper,
		Seek:     seek,
		Exec:     exec,
		Jog:      jog,
		State:    state,
		Estop:    estop,

		stepPeriod: StepTimerPoll,
	}
}

// RTCTick runs the 1 ms housekeeping: switch debouncing and motor power
// sequencing. The platform calls it from its RTC interrupt.
func (c *Controller) RTCTick() {
	c.RTC.Tick()
	c.Switches.RTCCallback()
	c.Motors.RTCCallback()
}

// StepTick runs the step timer interrupt once and returns the step
// timer period until the next tick.
func (c *Controller) StepTick() uint16 { return c.Stepper.PollTick() }

// Advance simulates ms milliseconds of interrupt activity: RTC ticks
// interleaved with segment-boundary step timer ticks. Hosts and tests
// use it in place of hardware timers.
func (c *Controller) Advance(ms int) {
	for i := 0; i < ms; i++ {
		c.RTCTick()

		c.stepTicks += StepTimerPoll
		for c.stepPeriod <= c.stepTicks {
			c.stepTicks -= c.stepPeriod
			p := uint32(c.Stepper.PollTick())
			if p == 0 {
				p = StepTimerPoll
			}
			c.stepPeriod = p
		}
	}
}

// Report is the runtime introspection snapshot exposed to the host.
type Report struct {
	State      State
	Cycle      Cycle
	HoldReason HoldReason

	Position Vector
	Velocity float64
	Accel    float64
	Jerk     float64

	Line int32
	Tool int

	PlannerFill int

	MotorError   [NumMotors]int32
	MotorEncoder [NumMotors]int32
	Underflow    uint32

	Homed        [NumAxes]bool
	SwitchActive [NumSwitches]bool

	Estopped    bool
	EstopReason Status
}

// Snapshot assembles the current runtime report.
func (c *Controller) Snapshot() Report {
	r := Report{
		State:       c.State.Get(),
		Cycle:       c.State.GetCycle(),
		HoldReason:  c.State.GetHoldReason(),
		Position:    c.Exec.Position(),
		Velocity:    c.Exec.Velocity(),
		Accel:       c.Exec.Acceleration(),
		Jerk:        c.Exec.Jerk(),
		Line:        c.Exec.Line(),
		Tool:        c.Exec.Tool(),
		PlannerFill: c.Queue.Fill(),
		Estopped:    c.Estop.Triggered(),
		EstopReason: c.Estop.Reason(),
	}
	r.Underflow = c.Stepper.Underflow()
	for i := 0; i < NumMotors; i++ {
		r.MotorError[i] = c.Motors.Motor(i).ErrorSteps()
		r.MotorEncoder[i] = c.Motors.Motor(i).Encoder()
	}
	for i := 0; i < NumAxes; i++ {
		r.Homed[i] = c.Axes.Homed(i)
	}
	for i := SwitchID(0); i < NumSwitches; i++ {
		r.SwitchActive[i] = c.Switches.IsActive(i)
	}
	return r
}
