package core

// SpindleMode is the commanded spindle rotation mode.
type SpindleMode uint8

const (
	SpindleOff SpindleMode = iota
	SpindleCW
	SpindleCCW
)

// SpindleDriver is the seam to the actual spindle hardware (VFD, PWM,
// relay). Speed arrives as a queued side effect so it executes at the
// exact program position it was emitted; mode changes are applied
// directly when the machining layer commands them, not through the queue.
type SpindleDriver interface {
	SetSpeed(rpm float64)
	SetMode(mode SpindleMode)
}

// Spindle tracks the commanded spindle state and forwards it to the
// installed driver.
type Spindle struct {
	driver SpindleDriver
	mode   SpindleMode
	speed  float64
}

func NewSpindle() *Spindle { return &Spindle{} }

// SetDriver installs the hardware seam. Nil is allowed.
func (s *Spindle) SetDriver(d SpindleDriver) { s.driver = d }

// SetSpeed commands a spindle speed in RPM.
func (s *Spindle) SetSpeed(rpm float64) {
	s.speed = rpm
	if s.driver != nil {
		s.driver.SetSpeed(rpm)
	}
}

// SetMode commands the rotation mode.
func (s *Spindle) SetMode(mode SpindleMode) {
	s.mode = mode
	if s.driver != nil {
		s.driver.SetMode(mode)
	}
}

// Stop turns the spindle off immediately.
func (s *Spindle) Stop() { s.SetMode(SpindleOff) }

// Speed returns the commanded speed.
func (s *Spindle) Speed() float64 { return s.speed }

// Mode returns the commanded mode.
func (s *Spindle) Mode() SpindleMode { return s.mode }
