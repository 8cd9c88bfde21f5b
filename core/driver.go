package core

import "tinygo.org/x/drivers/tmc2209"

// DriverState is the coil power state of one motor driver chip.
type DriverState uint8

const (
	DriverDisabled DriverState = iota
	DriverIdle
	DriverActive
)

// Driver programs one TMC2209 motor driver over its register interface.
// The motor layer transitions the driver between DISABLED, IDLE and
// ACTIVE as the power mode and idle timeout dictate; transitions map to
// IHOLD_IRUN current writes so idle motors drop to holding current.
type Driver struct {
	comm  tmc2209.RegisterComm
	index uint8
	state DriverState

	// Current settings, 0..31 register scale.
	runCurrent  uint32
	holdCurrent uint32
}

func NewDriver(comm tmc2209.RegisterComm, index uint8) *Driver {
	return &Driver{
		comm:        comm,
		index:       index,
		state:       DriverDisabled,
		runCurrent:  16,
		holdCurrent: 4,
	}
}

// SetCurrents sets the run and hold current as percent of maximum.
func (d *Driver) SetCurrents(runPct, holdPct uint8) {
	d.runCurrent = uint32(tmc2209.PercentToCurrentSetting(runPct)) >> 3
	d.holdCurrent = uint32(tmc2209.PercentToCurrentSetting(holdPct)) >> 3
	d.writeCurrents()
}

// SetState transitions the driver power state. Idempotent.
func (d *Driver) SetState(state DriverState) {
	if d.comm == nil || d.state == state {
		return
	}
	d.state = state
	d.writeCurrents()
}

func (d *Driver) writeCurrents() {
	if d.comm == nil {
		return
	}

	reg := tmc2209.NewIholdIrun()
	switch d.state {
	case DriverActive:
		reg.Ihold = d.holdCurrent
		reg.Irun = d.runCurrent
	case DriverIdle:
		reg.Ihold = d.holdCurrent
		reg.Irun = d.holdCurrent
	default: // Disabled: coils never energized
		reg.Ihold = 0
		reg.Irun = 0
	}
	reg.Iholddelay = 4
	reg.Write(d.comm, d.index, reg.Pack())
}

// SetMicrosteps programs the microstep resolution. The MRES field is
// the inverse power of two: 0 is 256 microsteps, 8 is full step.
func (d *Driver) SetMicrosteps(microsteps uint16) {
	if d.comm == nil {
		return
	}

	exp := uint32(0)
	for v := microsteps; 1 < v; v >>= 1 {
		exp++
	}

	reg := tmc2209.NewChopconf()
	reg.Toff = 3
	reg.Hstrt = 4
	reg.Hend = 1
	reg.Tbl = 2
	reg.Mres = 8 - (exp & 0x0f)
	reg.Intpol = 1
	reg.Write(d.comm, d.index, reg.Pack())
}

// State returns the current driver power state.
func (d *Driver) State() DriverState { return d.state }
