package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// Edge selects which signal transition fires a pin interrupt
type Edge uint8

const (
	EdgeRising Edge = iota + 1
	EdgeFalling
)

// GPIODriver is the abstract GPIO interface that core code uses.
// Platform-specific implementations handle actual hardware control.
// Handlers registered through SetPinInterrupt run in interrupt context:
// they must not allocate or block.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output. It must
	// also reclaim a pin previously handed to another peripheral
	// function (PWM).
	ConfigureOutput(pin GPIOPin) error

	// ConfigureInputPullUp configures a pin as a digital input with pull-up resistor
	ConfigureInputPullUp(pin GPIOPin) error

	// ConfigureInputPullDown configures a pin as a digital input with pull-down resistor
	ConfigureInputPullDown(pin GPIOPin) error

	// SetPin sets the pin to high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error

	// GetPin reads the current pin state
	GetPin(pin GPIOPin) (bool, error)

	// ReadPin reads the current pin state without the error path, for
	// polling loops and timer handlers
	ReadPin(pin GPIOPin) bool

	// SetPinInterrupt attaches an edge handler to an input pin
	SetPinInterrupt(pin GPIOPin, edge Edge, handler func()) error
}

// Global singleton used by core code.
var gpioDriver GPIODriver

// SetGPIODriver is called by target-specific code to register its driver.
func SetGPIODriver(d GPIODriver) {
	gpioDriver = d
}

// MustGPIO returns the configured driver or panics if missing.
func MustGPIO() GPIODriver {
	if gpioDriver == nil {
		panic("GPIO driver not configured")
	}
	return gpioDriver
}
