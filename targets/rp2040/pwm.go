//go:build rp2040

package main

import (
	"errors"
	"machine"

	"mopo/core"
)

// pwmPeripheral is the slice of machine PWM functionality the driver
// needs. Each RP2040 PWM slice exposes this interface.
type pwmPeripheral interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

var errPWMNotConfigured = errors.New("pwm pin not configured")

// rpPWMDriver implements core.PWMDriver over the RP2040 PWM slices.
// The chip has 8 slices of 2 channels each; a pin's slice is fixed by
// its number.
type rpPWMDriver struct {
	channels map[core.PWMPin]uint8
	slices   map[core.PWMPin]pwmPeripheral
}

func newRPPWMDriver() *rpPWMDriver {
	return &rpPWMDriver{
		channels: make(map[core.PWMPin]uint8),
		slices:   make(map[core.PWMPin]pwmPeripheral),
	}
}

func (d *rpPWMDriver) ConfigurePWM(pin core.PWMPin, freqHz uint32) error {
	if freqHz == 0 {
		return errors.New("pwm frequency must be nonzero")
	}
	slice, err := pwmSliceForPin(machine.Pin(pin))
	if err != nil {
		return err
	}
	// Period is in nanoseconds.
	if err := slice.Configure(machine.PWMConfig{Period: 1e9 / uint64(freqHz)}); err != nil {
		return err
	}
	channel, err := slice.Channel(machine.Pin(pin))
	if err != nil {
		return err
	}
	slice.Set(channel, 0)
	d.channels[pin] = channel
	d.slices[pin] = slice
	return nil
}

func (d *rpPWMDriver) SetDuty(pin core.PWMPin, value core.PWMValue) error {
	slice, ok := d.slices[pin]
	if !ok {
		return errPWMNotConfigured
	}
	if value > core.PWMMax {
		value = core.PWMMax
	}
	channel := d.channels[pin]
	slice.Set(channel, uint32(value)*slice.Top()/uint32(core.PWMMax))
	return nil
}

// DisablePWM drops the duty to zero and forgets the channel. The
// caller reclaims the pin as a plain output through the GPIO driver,
// which overrides the pin's peripheral function.
func (d *rpPWMDriver) DisablePWM(pin core.PWMPin) error {
	slice, ok := d.slices[pin]
	if !ok {
		return nil
	}
	slice.Set(d.channels[pin], 0)
	delete(d.slices, pin)
	delete(d.channels, pin)
	return nil
}

// pwmSliceForPin maps a GPIO number to its fixed PWM slice. Even and
// odd pins in a pair share a slice as channels A and B.
func pwmSliceForPin(pin machine.Pin) (pwmPeripheral, error) {
	switch (pin >> 1) & 0x7 {
	case 0:
		return machine.PWM0, nil
	case 1:
		return machine.PWM1, nil
	case 2:
		return machine.PWM2, nil
	case 3:
		return machine.PWM3, nil
	case 4:
		return machine.PWM4, nil
	case 5:
		return machine.PWM5, nil
	case 6:
		return machine.PWM6, nil
	case 7:
		return machine.PWM7, nil
	}
	return nil, errors.New("no pwm slice for pin")
}
