package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// GPIODriver is the abstract GPIO interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output
	ConfigureOutput(pin GPIOPin) error

	// ConfigureInputPullUp configures a pin as a digital input with
	// pull-up resistor. Switch inputs are active-low electrically.
	ConfigureInputPullUp(pin GPIOPin) error

	// SetPin sets the pin to high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error

	// ReadPin reads the current pin state
	ReadPin(pin GPIOPin) bool
}

// nullGPIO satisfies GPIODriver with no hardware attached. Inputs read
// high, matching pulled-up unconnected switch inputs.
type nullGPIO struct{}

func (nullGPIO) ConfigureOutput(GPIOPin) error      { return nil }
func (nullGPIO) ConfigureInputPullUp(GPIOPin) error { return nil }
func (nullGPIO) SetPin(GPIOPin, bool) error         { return nil }
func (nullGPIO) ReadPin(GPIOPin) bool               { return true }

// NVRAM persists small values across reboots. The e-stop reason lives
// here so an e-stopped machine boots back into ESTOPPED.
type NVRAM interface {
	LoadReason() Status
	StoreReason(Status)
}

// MemNVRAM is an in-memory NVRAM for hosts and tests.
type MemNVRAM struct {
	Reason Status
}

func (m *MemNVRAM) LoadReason() Status   { return m.Reason }
func (m *MemNVRAM) StoreReason(s Status) { m.Reason = s }

// StepGenerator produces the step pulse train for one motor. The motor
// layer arms it once per segment; the implementation free-runs at the
// programmed period until stopped at the next segment boundary.
type StepGenerator interface {
	// SetDirection latches the direction output. Implementations must
	// guarantee at least 200 ns of direction-to-step setup time.
	SetDirection(negative bool)

	// Start arms the pulse train: one step every period ticks of the
	// motor timer clock, for an expected steps count. Hardware may
	// free-run past or short of the count; the value returned by Stop
	// is authoritative.
	Start(period uint16, steps uint32)

	// Stop halts the pulse train and returns the number of steps
	// actually emitted since Start.
	Stop() uint32

	// Running reports whether a pulse train is armed.
	Running() bool
}

// OpenLoopGenerator is a StepGenerator with no hardware: it assumes the
// full programmed pulse count was emitted. Default backend for hosts
// and tests.
type OpenLoopGenerator struct {
	Negative bool
	Period   uint16
	Steps    uint32
	running  bool

	// Emitted overrides the reported count when non-negative, letting
	// tests inject step loss.
	Emitted int64
}

func NewOpenLoopGenerator() *OpenLoopGenerator {
	return &OpenLoopGenerator{Emitted: -1}
}

func (g *OpenLoopGenerator) SetDirection(negative bool) { g.Negative = negative }

func (g *OpenLoopGenerator) Start(period uint16, steps uint32) {
	g.Period = period
	g.Steps = steps
	g.running = true
}

func (g *OpenLoopGenerator) Stop() uint32 {
	if !g.running {
		return 0
	}
	g.running = false
	if g.Emitted >= 0 {
		n := uint32(g.Emitted)
		g.Emitted = -1
		return n
	}
	return g.Steps
}

func (g *OpenLoopGenerator) Running() bool { return g.running }

// HardResetFunc is installed by the platform; clearing e-stop calls it
// to reboot into a clean state.
type HardResetFunc func()
