//go:build rp2040

package main

// PIO step pulse generation.
// Hardware-timed pulses, one state machine per motor. The PIO runs at
// pioClockHz and each pulse takes at least 11 PIO cycles.

import (
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"gomill/core"
)

// pioClockHz is the PIO core clock after the configured divider.
const (
	pioClockDiv = 1000
	pioClockHz  = 125000000 / pioClockDiv
)

// buildStepperProgram assembles the pulse train program.
//
// Command word format:
//
//	Bits 0-15:  pulse count minus one
//	Bits 16-23: delay cycles between pulses
//	Bit 24:     direction
func buildStepperProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),          // pull block
		asm.Out(rp2pio.OutDestX, 16).Encode(),   // out x, 16 (pulse count)
		asm.Out(rp2pio.OutDestY, 8).Encode(),    // out y, 8 (delay cycles)
		asm.Out(rp2pio.OutDestPins, 1).Encode(), // out pins, 1 (direction)
		// step_loop:
		asm.Set(rp2pio.SetDestPins, 1).Delay(7).Encode(), // set pins, 1 [7]
		asm.Set(rp2pio.SetDestPins, 0).Encode(),          // set pins, 0
		// delay_loop:
		asm.Jmp(6, rp2pio.JmpYNZeroDec).Encode(), // jmp y--, delay_loop
		asm.Jmp(4, rp2pio.JmpXNZeroDec).Encode(), // jmp x--, step_loop
		// .wrap
	}
}

const stepperPIOOrigin = 0 // load at 0 so jump addresses line up

// PIOStepGenerator implements core.StepGenerator on one PIO state
// machine. The motor layer arms one pulse train per segment; the state
// machine drains the programmed count well before the next boundary, so
// Stop reports the armed count.
type PIOStepGenerator struct {
	pio       *rp2pio.PIO
	sm        rp2pio.StateMachine
	stepPin   machine.Pin
	dirPin    machine.Pin
	direction bool
	offset    uint8

	armed   uint32
	running bool
}

func NewPIOStepGenerator(pioNum, smNum uint8, stepPin, dirPin machine.Pin) (*PIOStepGenerator, error) {
	pioHW := rp2pio.PIO0
	if pioNum != 0 {
		pioHW = rp2pio.PIO1
	}

	g := &PIOStepGenerator{
		pio:     pioHW,
		sm:      pioHW.StateMachine(smNum),
		stepPin: stepPin,
		dirPin:  dirPin,
	}

	g.sm.TryClaim()

	program := buildStepperProgram()
	offset, err := g.pio.AddProgram(program, stepperPIOOrigin)
	if err != nil {
		return nil, err
	}
	g.offset = offset

	g.stepPin.Configure(machine.PinConfig{Mode: g.pio.PinMode()})
	g.dirPin.Configure(machine.PinConfig{Mode: g.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(g.stepPin, 1)
	cfg.SetOutPins(g.dirPin, 1)
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)
	cfg.SetClkDivIntFrac(pioClockDiv, 0)

	g.sm.Init(offset, cfg)

	// Pin directions must be set after Init
	g.sm.SetPindirsConsecutive(g.stepPin, 1, true)
	g.sm.SetPindirsConsecutive(g.dirPin, 1, true)
	g.sm.SetPinsConsecutive(g.stepPin, 1, false)
	g.sm.SetPinsConsecutive(g.dirPin, 1, false)

	g.sm.SetEnabled(true)

	return g, nil
}

// SetDirection latches the direction for the next pulse train. The
// direction bit rides in the command word, so the PIO program writes it
// before the first pulse with the program's own setup delay.
func (g *PIOStepGenerator) SetDirection(negative bool) { g.direction = negative }

// Start arms one pulse train: period is in motor timer ticks, converted
// to PIO delay cycles.
func (g *PIOStepGenerator) Start(period uint16, steps uint32) {
	if steps == 0 {
		return
	}

	delay := uint32(period) / (core.MotorTimerFreq / pioClockHz)
	// The delay field is 8 bits; slower trains clamp and rely on the
	// encoder feedback to absorb the difference
	if 0xff < delay {
		delay = 0xff
	}

	// The x-- loop emits one pulse more than the count it is loaded with
	cmd := ((steps - 1) & 0xffff) | (delay << 16)
	if g.direction {
		cmd |= 1 << 24
	}

	for g.sm.IsTxFIFOFull() {
		// Busy wait, brief
	}
	g.sm.TxPut(cmd)

	g.armed = steps
	g.running = true
}

// Stop halts the pulse train and reports the emitted count.
func (g *PIOStepGenerator) Stop() uint32 {
	if !g.running {
		return 0
	}
	g.sm.SetEnabled(false)
	g.sm.ClearFIFOs()
	g.sm.Restart()
	g.sm.SetEnabled(true)

	g.running = false
	steps := g.armed
	g.armed = 0
	return steps
}

// Running reports whether a pulse train is armed.
func (g *PIOStepGenerator) Running() bool { return g.running }
