package core

// Estop owns the emergency stop latch. The latch reason is persisted to
// non-volatile memory so an e-stopped machine reboots into ESTOPPED.
// Clearing is only possible while no e-stop switch is active and issues
// a hard reset to restore a clean starting state.
type Estop struct {
	triggered bool

	nvram     NVRAM
	switches  *Switches
	stepper   *Stepper
	spindle   *Spindle
	state     *StateMachine
	hardReset HardResetFunc

	onChange func()
}

func NewEstop(nvram NVRAM, switches *Switches, stepper *Stepper,
	spindle *Spindle, state *StateMachine) *Estop {

	if nvram == nil {
		nvram = &MemNVRAM{}
	}

	e := &Estop{
		nvram:    nvram,
		switches: switches,
		stepper:  stepper,
		spindle:  spindle,
		state:    state,
	}

	if switches.IsActive(SwEstop) {
		nvram.StoreReason(StatEstopSwitch)
	}
	if statMax <= e.nvram.LoadReason() {
		nvram.StoreReason(StatOK)
	}
	e.triggered = e.nvram.LoadReason() != StatOK

	switches.SetCallback(SwEstop, e.switchCallback)

	if e.triggered {
		state.Estop()
	}

	return e
}

// SetHardReset installs the platform reboot hook.
func (e *Estop) SetHardReset(f HardResetFunc) { e.hardReset = f }

// OnChange registers a hook fired after trigger or clear.
func (e *Estop) OnChange(cb func()) { e.onChange = cb }

func (e *Estop) switchCallback(id SwitchID, active bool) {
	if active {
		e.Trigger(StatEstopSwitch)
	} else {
		e.Clear()
	}
}

// Triggered reports the e-stop latch, including a still-active switch.
func (e *Estop) Triggered() bool {
	return e.triggered || e.switches.IsActive(SwEstop)
}

// Reason returns the persisted e-stop reason.
func (e *Estop) Reason() Status { return e.nvram.LoadReason() }

// Trigger latches the e-stop: hard-stops the motors and the spindle,
// freezes the queue and persists the reason. Idempotent.
func (e *Estop) Trigger(reason Status) {
	if e.triggered {
		return
	}
	e.triggered = true

	// Hard stop the motors and the spindle
	e.stepper.Shutdown()
	e.spindle.Stop()

	e.state.Estop()

	e.nvram.StoreReason(reason)
	RecordTiming(EvtEstop, 0, 0, uint32(reason))

	if e.onChange != nil {
		e.onChange()
	}
}

// Clear releases the latch. Fails silently while the e-stop switch is
// still active. On success the reason is cleared and the platform hard
// reset hook runs.
func (e *Estop) Clear() {
	if e.switches.IsActive(SwEstop) {
		if e.nvram.LoadReason() != StatEstopSwitch {
			e.nvram.StoreReason(StatEstopSwitch)
		}
		return // Can't clear while the switch is active
	}

	e.triggered = false
	e.nvram.StoreReason(StatOK)

	if e.onChange != nil {
		e.onChange()
	}

	if e.hardReset != nil {
		e.hardReset()
	}
}
