//go:build rp2040

package main

import (
	"machine"

	"mopo/core"
)

// rpGPIODriver implements core.GPIODriver on top of the machine
// package. Pin numbers map directly to GP0..GP29.
type rpGPIODriver struct {
	configured map[core.GPIOPin]machine.Pin
}

func newRPGPIODriver() *rpGPIODriver {
	return &rpGPIODriver{
		configured: make(map[core.GPIOPin]machine.Pin),
	}
}

// ConfigureOutput always reconfigures the pin, even if it was already
// tracked. The limiter hands its pin back and forth between PWM and
// plain output, so a stale peripheral function must be overridden here.
func (d *rpGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	p := machine.Pin(pin)
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	d.configured[pin] = p
	return nil
}

func (d *rpGPIODriver) ConfigureInputPullUp(pin core.GPIOPin) error {
	p := machine.Pin(pin)
	p.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	d.configured[pin] = p
	return nil
}

func (d *rpGPIODriver) ConfigureInputPullDown(pin core.GPIOPin) error {
	p := machine.Pin(pin)
	p.Configure(machine.PinConfig{Mode: machine.PinInputPulldown})
	d.configured[pin] = p
	return nil
}

func (d *rpGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	p, ok := d.configured[pin]
	if !ok {
		if err := d.ConfigureOutput(pin); err != nil {
			return err
		}
		p = d.configured[pin]
	}
	p.Set(value)
	return nil
}

func (d *rpGPIODriver) GetPin(pin core.GPIOPin) (bool, error) {
	p, ok := d.configured[pin]
	if !ok {
		if err := d.ConfigureInputPullUp(pin); err != nil {
			return false, err
		}
		p = d.configured[pin]
	}
	return p.Get(), nil
}

func (d *rpGPIODriver) ReadPin(pin core.GPIOPin) bool {
	return machine.Pin(pin).Get()
}

// SetPinInterrupt routes a hardware edge to the handler. The machine
// callback fires in interrupt context, which matches the contract the
// meters and the button rely on.
func (d *rpGPIODriver) SetPinInterrupt(pin core.GPIOPin, edge core.Edge, handler func()) error {
	change := machine.PinRising
	if edge == core.EdgeFalling {
		change = machine.PinFalling
	}
	return machine.Pin(pin).SetInterrupt(change, func(machine.Pin) {
		handler()
	})
}
