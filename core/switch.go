package core

// SwitchID indexes the fixed switch table.
type SwitchID int8

const (
	SwEstop SwitchID = iota
	SwProbe
	SwMinX
	SwMaxX
	SwMinY
	SwMaxY
	SwMinZ
	SwMaxZ
	SwMinA
	SwMaxA
	SwStallX
	SwStallY
	SwStallZ
	SwStallA
	SwMotorFault
	NumSwitches
)

// MinSwitch returns the minimum limit switch for an axis (X..A).
func MinSwitch(axis int) SwitchID { return SwMinX + SwitchID(axis*2) }

// MaxSwitch returns the maximum limit switch for an axis (X..A).
func MaxSwitch(axis int) SwitchID { return SwMaxX + SwitchID(axis*2) }

// SwitchType selects the electrical interpretation of an input.
type SwitchType uint8

const (
	SwitchDisabled SwitchType = iota
	SwitchNormallyOpen
	SwitchNormallyClosed
)

// SwitchCallback is invoked on a debounced edge with the switch ID and
// its active state.
type SwitchCallback func(id SwitchID, active bool)

type swInput struct {
	pin      GPIOPin
	typ      SwitchType
	cb       SwitchCallback
	state    bool
	debounce int8
}

// Switches samples and debounces the digital inputs. It is driven from
// the RTC tick; a level must be stable for SwitchDebounce samples
// before the new state is adopted and the edge callback fires.
type Switches struct {
	inputs [NumSwitches]swInput
	gpio   GPIODriver
}

// NewSwitches builds the switch table over the GPIO driver. Pin
// assignments come from the platform; pass nil gpio on hosts.
func NewSwitches(gpio GPIODriver, pins *[NumSwitches]GPIOPin) *Switches {
	if gpio == nil {
		gpio = nullGPIO{}
	}
	sw := &Switches{gpio: gpio}
	for i := range sw.inputs {
		if pins != nil {
			sw.inputs[i].pin = pins[i]
		}
		gpio.ConfigureInputPullUp(sw.inputs[i].pin)
		// Unconnected pulled-up inputs read high
		sw.inputs[i].state = true
	}
	return sw
}

// Configure applies switch types from the machine configuration.
func (sw *Switches) Configure(types *[NumSwitches]SwitchType) {
	for i := range types {
		sw.SetType(SwitchID(i), types[i])
	}
}

// RTCCallback samples every enabled switch once. Called each RTC tick.
func (sw *Switches) RTCCallback() {
	for i := range sw.inputs {
		s := &sw.inputs[i]
		if s.typ == SwitchDisabled {
			continue
		}

		state := sw.gpio.ReadPin(s.pin)
		if state == s.state {
			s.debounce = 0
		} else if s.debounce++; s.debounce == SwitchDebounce {
			s.state = state
			s.debounce = 0
			if s.cb != nil {
				s.cb(SwitchID(i), sw.IsActive(SwitchID(i)))
			}
		}
	}
}

// IsActive returns the logical state of a switch. Inputs are active
// low electrically; the switch type selects the interpretation.
func (sw *Switches) IsActive(id SwitchID) bool {
	if id < 0 || NumSwitches <= id {
		return false
	}
	switch sw.inputs[id].typ {
	case SwitchNormallyOpen:
		return !sw.inputs[id].state
	case SwitchNormallyClosed:
		return sw.inputs[id].state
	}
	return false // A disabled switch cannot be active
}

// IsEnabled returns true unless the switch is disabled.
func (sw *Switches) IsEnabled(id SwitchID) bool {
	return sw.Type(id) != SwitchDisabled
}

// Type returns the configured switch type.
func (sw *Switches) Type(id SwitchID) SwitchType {
	if id < 0 || NumSwitches <= id {
		return SwitchDisabled
	}
	return sw.inputs[id].typ
}

// SetType reconfigures a switch. If the logical state changes as a
// result, the edge callback fires.
func (sw *Switches) SetType(id SwitchID, typ SwitchType) {
	if id < 0 || NumSwitches <= id {
		return
	}
	s := &sw.inputs[id]
	if s.typ == typ {
		return
	}

	wasActive := sw.IsActive(id)
	s.typ = typ
	isActive := sw.IsActive(id)
	if wasActive != isActive && s.cb != nil {
		s.cb(id, isActive)
	}
}

// SetCallback registers the debounced edge callback for a switch.
func (sw *Switches) SetCallback(id SwitchID, cb SwitchCallback) {
	sw.inputs[id].cb = cb
}

// SetRawState forces the sampled level of a switch input. Used by
// simulations and tests in place of a GPIO edge.
func (sw *Switches) SetRawState(id SwitchID, state bool) {
	sw.inputs[id].state = state
	sw.inputs[id].debounce = 0
}
