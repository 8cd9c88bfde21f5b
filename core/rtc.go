package core

// RTC is the millisecond tick source. The platform advances it from its
// real-time clock interrupt; tests advance it directly.
type RTC struct {
	ticks uint32
}

// Time returns the current time in milliseconds since boot.
func (r *RTC) Time() uint32 { return r.ticks }

// Expired returns true if time t has passed. Uses signed comparison so
// the 32-bit counter may wrap.
func (r *RTC) Expired(t uint32) bool { return int32(r.ticks-t) >= 0 }

// Tick advances the clock by one millisecond.
func (r *RTC) Tick() { r.ticks++ }

// Advance moves the clock forward by ms milliseconds.
func (r *RTC) Advance(ms uint32) { r.ticks += ms }
