package core

import "math"

// PowerMode controls when a motor's coils are energized.
type PowerMode uint8

const (
	MotorDisabled PowerMode = iota
	MotorAlwaysPowered
	MotorPoweredInCycle
	MotorPoweredWhenMoving
)

// MotorConfig is the static configuration of one motor channel.
type MotorConfig struct {
	Axis       int       `json:"axis"`
	Microsteps uint16    `json:"microsteps"` // 1..256, power of two
	StepAngle  float64   `json:"step_angle"` // degrees per whole step
	TravelRev  float64   `json:"travel_rev"` // mm or deg per revolution
	Reverse    bool      `json:"reverse"`
	Power      PowerMode `json:"power_mode"`

	MinSoftLimit float64 `json:"min_soft_limit"`
	MaxSoftLimit float64 `json:"max_soft_limit"`
}

// Motor holds the runtime state of one motor channel: the commanded and
// encoder step counts, the prepped move, and the power timeout.
type Motor struct {
	cfg   MotorConfig
	slave bool

	stepsPerUnit float64
	homed        bool

	// Runtime
	powerTimeout uint32
	commanded    int32
	encoder      int32
	errorSteps   int32
	lastNegative bool

	// Move prep; written only while prepped is false, consumed by the
	// segment loader which clears prepped.
	prepped     bool
	timerPeriod uint16
	pulseSteps  uint32
	negative    bool
	position    int32

	pulse  StepGenerator
	driver *Driver
	rtc    *RTC
}

// Motors owns the four motor channels.
type Motors struct {
	motor [NumMotors]*Motor
	rtc   *RTC
	axes  *Axes // set by NewAxes
}

func NewMotors(cfg *[NumMotors]MotorConfig, rtc *RTC) *Motors {
	ms := &Motors{rtc: rtc}
	for i := 0; i < NumMotors; i++ {
		m := &Motor{cfg: cfg[i], pulse: NewOpenLoopGenerator(), rtc: rtc}
		m.updateConfig()
		ms.motor[i] = m
	}
	ms.markSlaves()
	return ms
}

func (m *Motor) updateConfig() {
	m.stepsPerUnit = 360.0 * float64(m.cfg.Microsteps) /
		m.cfg.TravelRev / m.cfg.StepAngle
}

// Enabled reports whether the motor participates in motion.
func (m *Motor) Enabled() bool { return m.cfg.Power != MotorDisabled }

// Axis returns the axis this motor drives.
func (m *Motor) Axis() int { return m.cfg.Axis }

// Encoder returns the actual steps executed since start.
func (m *Motor) Encoder() int32 { return m.encoder }

// ErrorSteps returns commanded minus encoder steps.
func (m *Motor) ErrorSteps() int32 { return m.errorSteps }

// StepsPerUnit returns the derived steps per mm or degree.
func (m *Motor) StepsPerUnit() float64 { return m.stepsPerUnit }

// SetPulseGenerator installs the hardware step pulse backend.
func (m *Motor) SetPulseGenerator(g StepGenerator) { m.pulse = g }

// SetDriver installs the current-control driver chip glue.
func (m *Motor) SetDriver(d *Driver) { m.driver = d }

func (m *Motor) positionToSteps(position float64) int32 {
	return int32(math.Round(position * m.stepsPerUnit))
}

// SetPosition resets the commanded, encoder and prep step counts to a
// known position. Only valid while the machine is quiescent.
func (m *Motor) SetPosition(position float64) {
	steps := m.positionToSteps(position)
	m.commanded = steps
	m.encoder = steps
	m.position = steps
	m.errorSteps = 0
}

// PrepMove computes the step clock for one segment: time minutes to
// reach target (axis units). Runs in the exec context; the loader picks
// the result up at the next segment boundary.
func (m *Motor) PrepMove(time float64, target float64) {
	steps := m.positionToSteps(target) - m.position
	m.position += steps

	// Damped error correction: apply half the error to avoid
	// oscillating around the commanded position.
	if correction := abs32(m.errorSteps); correction >= MinStepCorrection {
		correction >>= 1
		if m.errorSteps < 0 {
			steps -= correction
		} else {
			steps += correction
		}
	}

	m.negative = steps < 0
	if m.negative {
		steps = -steps
	}

	segClocks := time * (MotorTimerFreq * 60)
	ticksPerStep := math.Round(segClocks / float64(steps))

	// Limit the clock if the step rate is too fast, disable it if too
	// slow for the 16-bit period register.
	if ticksPerStep < StepPulseWidth*2 {
		ticksPerStep = StepPulseWidth * 2
	}
	if 0xffff <= ticksPerStep || steps == 0 {
		m.timerPeriod = 0
	} else {
		m.timerPeriod = uint16(ticksPerStep)
	}
	m.pulseSteps = uint32(steps)

	// Power the motor
	switch m.cfg.Power {
	case MotorPoweredWhenMoving:
		if m.timerPeriod == 0 {
			break // Not moving
		}
		fallthrough

	case MotorAlwaysPowered, MotorPoweredInCycle:
		m.powerTimeout = m.rtcTime() + uint32(MotorIdleTimeout*1000)

	default: // Disabled
		m.timerPeriod = 0
		m.commanded = m.position
		m.encoder = m.position
		m.errorSteps = 0
	}
	m.updatePower()

	m.prepped = true
}

func (m *Motor) rtcTime() uint32 {
	if m.rtc == nil {
		return 0
	}
	return m.rtc.Time()
}

// EndMove stops the step clock and folds the emitted pulse count into
// the encoder and error counters.
func (m *Motor) EndMove() {
	if !m.pulse.Running() {
		return
	}
	steps := int32(m.pulse.Stop())
	if m.lastNegative {
		steps = -steps
	}
	m.encoder += steps
	m.errorSteps = m.commanded - m.encoder
}

// LoadMove starts the prepped segment. Runs at the segment boundary.
func (m *Motor) LoadMove() {
	m.prepped = false
	m.EndMove()

	if m.timerPeriod == 0 {
		return // Leave clock stopped
	}

	// Direction compensated for polarity, latched before the clock
	// starts so the generator can honor setup time.
	m.pulse.SetDirection(m.negative != m.cfg.Reverse)
	m.pulse.Start(m.timerPeriod, m.pulseSteps)

	m.lastNegative = m.negative
	m.commanded = m.position
}

func (m *Motor) updatePower() {
	if m.driver == nil {
		return
	}

	switch m.cfg.Power {
	case MotorPoweredWhenMoving, MotorPoweredInCycle:
		if m.rtc != nil && m.rtc.Expired(m.powerTimeout) {
			m.driver.SetState(DriverIdle)
			break
		}
		fallthrough

	case MotorAlwaysPowered:
		m.driver.SetState(DriverActive)

	default: // Disabled
		m.driver.SetState(DriverDisabled)
	}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// Motor returns motor i.
func (ms *Motors) Motor(i int) *Motor { return ms.motor[i] }

// SetPosition resets every motor from an axis position vector.
func (ms *Motors) SetPosition(position *Vector) {
	for i := 0; i < NumMotors; i++ {
		m := ms.motor[i]
		m.SetPosition(position[m.cfg.Axis])
	}
}

// SetAxisPosition resets the motors slaved to one axis.
func (ms *Motors) SetAxisPosition(axis int, position float64) {
	for i := 0; i < NumMotors; i++ {
		if ms.motor[i].cfg.Axis == axis {
			ms.motor[i].SetPosition(position)
		}
	}
}

// PrepMoves preps all motors for a segment ending at target.
func (ms *Motors) PrepMoves(time float64, target *Vector) {
	for i := 0; i < NumMotors; i++ {
		m := ms.motor[i]
		m.PrepMove(time, target[m.cfg.Axis])
	}
}

// LoadMoves loads all prepped motor segments at a boundary.
func (ms *Motors) LoadMoves() {
	for i := 0; i < NumMotors; i++ {
		ms.motor[i].LoadMove()
	}
}

// EndMoves stops all motor clocks and accumulates encoders.
func (ms *Motors) EndMoves() {
	for i := 0; i < NumMotors; i++ {
		ms.motor[i].EndMove()
	}
}

// RTCCallback manages power sequencing and power-down timing.
func (ms *Motors) RTCCallback() {
	for i := 0; i < NumMotors; i++ {
		ms.motor[i].updatePower()
	}
}

// markSlaves flags motors that share an axis with an earlier motor and
// syncs their mechanical settings with the master.
func (ms *Motors) markSlaves() {
	for i := 0; i < NumMotors; i++ {
		ms.motor[i].slave = false
		for j := 0; j < i; j++ {
			if ms.motor[j].cfg.Axis == ms.motor[i].cfg.Axis {
				ms.motor[i].cfg.StepAngle = ms.motor[j].cfg.StepAngle
				ms.motor[i].cfg.TravelRev = ms.motor[j].cfg.TravelRev
				ms.motor[i].cfg.Microsteps = ms.motor[j].cfg.Microsteps
				ms.motor[i].cfg.Power = ms.motor[j].cfg.Power
				ms.motor[i].updateConfig()
				ms.motor[i].slave = true
				break
			}
		}
	}
}

// SetMicrosteps updates the microstep setting on a motor and its
// slaves. Invalid values are ignored.
func (ms *Motors) SetMicrosteps(motor int, value uint16) {
	switch value {
	case 1, 2, 4, 8, 16, 32, 64, 128, 256:
	default:
		return
	}
	if ms.motor[motor].slave {
		return
	}

	for i := motor; i < NumMotors; i++ {
		m := ms.motor[i]
		if m.cfg.Axis == ms.motor[motor].cfg.Axis {
			m.cfg.Microsteps = value
			m.updateConfig()
			if m.driver != nil {
				m.driver.SetMicrosteps(value)
			}
		}
	}
}

// SetPowerMode updates the power mode on a motor and its slaves.
func (ms *Motors) SetPowerMode(motor int, mode PowerMode) {
	if ms.motor[motor].slave {
		return
	}
	if mode > MotorPoweredWhenMoving {
		mode = MotorDisabled
	}
	for i := motor; i < NumMotors; i++ {
		if ms.motor[i].cfg.Axis == ms.motor[motor].cfg.Axis {
			ms.motor[i].cfg.Power = mode
		}
	}
}

// SetAxis reassigns a motor to a different axis, resetting its step
// counts from the current runtime position of that axis.
func (ms *Motors) SetAxis(motor, axis int, axisPosition float64) {
	if motor >= NumMotors || axis >= NumAxes ||
		ms.motor[motor].cfg.Axis == axis {
		return
	}
	ms.motor[motor].cfg.Axis = axis
	if ms.axes != nil {
		ms.axes.MapMotors()
	}
	ms.motor[motor].SetPosition(axisPosition)
	ms.markSlaves()
}

// SetSoftLimits updates the travel limits of every motor on an axis.
func (ms *Motors) SetSoftLimits(axis int, min, max float64) {
	for i := 0; i < NumMotors; i++ {
		if ms.motor[i].cfg.Axis == axis {
			ms.motor[i].cfg.MinSoftLimit = min
			ms.motor[i].cfg.MaxSoftLimit = max
		}
	}
}
