//go:build rp2040

package main

import (
	"machine"

	"gomill/core"
)

// Pin map for the reference RP2040 controller board.

var stepPins = [core.NumMotors]machine.Pin{
	machine.GPIO0, machine.GPIO2, machine.GPIO4, machine.GPIO6,
}

var dirPins = [core.NumMotors]machine.Pin{
	machine.GPIO1, machine.GPIO3, machine.GPIO5, machine.GPIO7,
}

// driverUARTTX/RX talk to the TMC2209 single-wire UART bus.
const (
	driverUARTTX = machine.GPIO8
	driverUARTRX = machine.GPIO9
)

var switchPins = [core.NumSwitches]core.GPIOPin{
	core.SwEstop:      10,
	core.SwProbe:      11,
	core.SwMinX:       12,
	core.SwMaxX:       13,
	core.SwMinY:       14,
	core.SwMaxY:       15,
	core.SwMinZ:       16,
	core.SwMaxZ:       17,
	core.SwMinA:       18,
	core.SwMaxA:       19,
	core.SwStallX:     20,
	core.SwStallY:     21,
	core.SwStallZ:     22,
	core.SwStallA:     23,
	core.SwMotorFault: 24,
}

var outputPins = [core.NumOutputs]core.GPIOPin{
	core.OutMist:  25,
	core.OutFlood: 26,
	core.OutTool:  27,
	core.OutAux1:  28,
	core.OutAux2:  29,
}
