// Package gomill wires the motion core and the machining layer into a
// running controller.
package gomill

import (
	"errors"
	"strconv"
	"strings"

	"gomill/core"
	"gomill/machine"
)

// Manager coordinates the runtime controller, the machining layer and
// the host console.
type Manager struct {
	Ctl  *core.Controller
	Mach *machine.Machine
}

// NewManager builds a controller from configuration data and wires the
// machining layer on top. Empty configData uses the default machine.
func NewManager(configData []byte, hw core.Hardware) (*Manager, error) {
	var cfg *core.Config
	if len(configData) == 0 {
		cfg = core.DefaultConfig()
	} else {
		var err error
		cfg, err = core.LoadConfig(configData)
		if err != nil {
			return nil, err
		}
	}

	ctl := core.NewController(cfg, hw)
	mach := machine.New(ctl)

	// The state machine boots flushing; complete the initial resume so
	// a clean boot lands in READY.
	ctl.State.RequestResume()
	if !ctl.Estop.Triggered() {
		ctl.State.Callback()
	}

	return &Manager{Ctl: ctl, Mach: mach}, nil
}

// Tick runs one foreground loop iteration: state evaluation and arc
// generation. Interrupt-level work (RTC, step timer) is driven by the
// platform or by Advance.
func (m *Manager) Tick() {
	if !m.Ctl.Estop.Triggered() {
		m.Ctl.State.Callback()
		m.Mach.ArcCallback()
	}
}

// Advance simulates ms milliseconds of machine time, interleaving the
// foreground loop with the interrupt work.
func (m *Manager) Advance(ms int) {
	for i := 0; i < ms; i++ {
		m.Tick()
		m.Ctl.Advance(1)
	}
}

// Command executes one host console line. The console carries control
// commands only; motion arrives through the machining layer API.
func (m *Manager) Command(line string) error {
	args := strings.Fields(strings.TrimSpace(line))
	if len(args) == 0 {
		return nil
	}

	name := strings.TrimPrefix(args[0], "$")
	switch name {
	case "estop":
		m.Ctl.Estop.Trigger(core.StatEstopUser)
	case "clear":
		m.Ctl.Estop.Clear()
	case "pause":
		m.Ctl.State.RequestHold()
	case "optpause":
		m.Ctl.State.RequestOptionalPause()
	case "run", "start":
		m.Ctl.State.RequestStart()
	case "step":
		m.Ctl.State.RequestStep()
	case "flush":
		m.Ctl.State.RequestFlush()
	case "resume":
		m.Ctl.State.RequestResume()
	case "jog":
		return m.jogCommand(args[1:])
	default:
		return core.StatUnrecognizedName
	}
	return nil
}

// jogCommand parses per-axis normalized velocities, e.g. "x0.5 y-1".
func (m *Manager) jogCommand(args []string) error {
	var velocity core.Vector
	for _, arg := range args {
		if len(arg) < 2 {
			return core.StatInvalidArguments
		}
		axis := core.AxisID(arg[0])
		if axis < 0 {
			return core.StatInvalidArguments
		}
		v, err := strconv.ParseFloat(arg[1:], 64)
		if err != nil {
			return errors.Join(core.StatBadFloat, err)
		}
		if v < -1 || 1 < v {
			return core.StatInvalidArguments
		}
		velocity[axis] = v
	}
	return m.Ctl.Jog.SetVelocity(velocity)
}
