package core

// PWMPin identifies a hardware pin capable of PWM output
type PWMPin uint32

// PWMValue is the duty cycle value (0 to PWMMax)
type PWMValue uint32

// PWMMax is full-scale duty
const PWMMax PWMValue = 255

// PWMDriver is the abstract PWM interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type PWMDriver interface {
	// ConfigurePWM configures a pin for hardware PWM output at the
	// given carrier frequency
	ConfigurePWM(pin PWMPin, freqHz uint32) error

	// SetDuty sets the PWM duty cycle for a pin
	// value: 0 (fully off) to PWMMax (fully on)
	SetDuty(pin PWMPin, value PWMValue) error

	// DisablePWM stops PWM on a pin. The pin must be reclaimable as a
	// plain GPIO output afterwards.
	DisablePWM(pin PWMPin) error
}

// Global singleton used by core code.
var pwmDriver PWMDriver

// SetPWMDriver is called by target-specific code to register its driver.
func SetPWMDriver(d PWMDriver) {
	pwmDriver = d
}

// MustPWM returns the configured driver or panics if missing.
func MustPWM() PWMDriver {
	if pwmDriver == nil {
		panic("PWM driver not configured")
	}
	return pwmDriver
}
