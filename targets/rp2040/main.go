//go:build rp2040

package main

import (
	"device/rp"
	"machine"
	"time"

	"tinygo.org/x/drivers/tmc2209"

	"gomill"
	"gomill/core"
)

// rpGPIO adapts the machine package to the core GPIO HAL.
type rpGPIO struct{}

func (rpGPIO) ConfigureOutput(pin core.GPIOPin) error {
	machine.Pin(pin).Configure(machine.PinConfig{Mode: machine.PinOutput})
	return nil
}

func (rpGPIO) ConfigureInputPullUp(pin core.GPIOPin) error {
	machine.Pin(pin).Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	return nil
}

func (rpGPIO) SetPin(pin core.GPIOPin, value bool) error {
	machine.Pin(pin).Set(value)
	return nil
}

func (rpGPIO) ReadPin(pin core.GPIOPin) bool {
	return machine.Pin(pin).Get()
}

// scratchNVRAM keeps the e-stop reason in a watchdog scratch register,
// which survives soft resets.
type scratchNVRAM struct{}

func (scratchNVRAM) LoadReason() core.Status {
	return core.Status(rp.WATCHDOG.SCRATCH0.Get())
}

func (scratchNVRAM) StoreReason(s core.Status) {
	rp.WATCHDOG.SCRATCH0.Set(uint32(s))
}

// hardReset reboots through the watchdog.
func hardReset() {
	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1})
	machine.Watchdog.Start()
	for {
	}
}

func main() {
	// Clear any watchdog state left over from the previous boot
	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})

	hw := core.Hardware{
		GPIO:       rpGPIO{},
		NVRAM:      scratchNVRAM{},
		SwitchPins: &switchPins,
		OutputPins: &outputPins,
		HardReset:  hardReset,
	}

	mgr, err := gomill.NewManager(nil, hw)
	if err != nil {
		panic(err)
	}

	// TMC2209 drivers share one UART bus, addressed 0..3
	machine.UART0.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       driverUARTTX,
		RX:       driverUARTRX,
	})

	for i := 0; i < core.NumMotors; i++ {
		gen, err := NewPIOStepGenerator(uint8(i/2), uint8(i%2), stepPins[i], dirPins[i])
		if err == nil {
			mgr.Ctl.Motors.Motor(i).SetPulseGenerator(gen)
		}

		comm := tmc2209.NewUARTComm(*machine.UART0, uint8(i))
		mgr.Ctl.Motors.Motor(i).SetDriver(core.NewDriver(comm, uint8(i)))
		mgr.Ctl.Motors.SetMicrosteps(i, 16)
	}

	console := machine.Serial
	line := make([]byte, 0, 128)

	for {
		mgr.Advance(1)

		for {
			b, err := console.ReadByte()
			if err != nil {
				break
			}
			if b == '\n' || b == '\r' {
				if 0 < len(line) {
					if err := mgr.Command(string(line)); err != nil {
						println("error:", err.Error())
					} else {
						println("ok")
					}
					line = line[:0]
				}
				continue
			}
			if len(line) < cap(line) {
				line = append(line, b)
			}
		}

		time.Sleep(time.Millisecond)
	}
}
