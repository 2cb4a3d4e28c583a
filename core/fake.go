package core

import "strconv"

// Scripted driver doubles. They live outside the test files so host
// tools can run the full pipeline against them exactly as the tests do.

// ManualClock is a hand-advanced ClockDriver.
type ManualClock struct {
	now Ticks
}

func (c *ManualClock) Millis() Ticks { return c.now }

// Set jumps the clock to an absolute timestamp.
func (c *ManualClock) Set(t Ticks) { c.now = t }

// Advance moves the clock forward and returns the new timestamp.
func (c *ManualClock) Advance(ms uint32) Ticks {
	c.now += Ticks(ms)
	return c.now
}

// FakeGPIO is a scripted GPIODriver. Levels holds the input readings,
// Calls the recorded operations in order, Errs an optional error per
// operation name.
type FakeGPIO struct {
	Levels map[GPIOPin]bool
	Calls  []string
	Errs   map[string]error

	handlers map[GPIOPin]func()
	edges    map[GPIOPin]Edge
}

func NewFakeGPIO() *FakeGPIO {
	return &FakeGPIO{
		Levels:   make(map[GPIOPin]bool),
		Errs:     make(map[string]error),
		handlers: make(map[GPIOPin]func()),
		edges:    make(map[GPIOPin]Edge),
	}
}

func (g *FakeGPIO) record(op string, pin GPIOPin) error {
	g.Calls = append(g.Calls, op+":"+strconv.FormatUint(uint64(pin), 10))
	return g.Errs[op]
}

func (g *FakeGPIO) ConfigureOutput(pin GPIOPin) error {
	return g.record("configure_output", pin)
}

func (g *FakeGPIO) ConfigureInputPullUp(pin GPIOPin) error {
	return g.record("configure_input_pullup", pin)
}

func (g *FakeGPIO) ConfigureInputPullDown(pin GPIOPin) error {
	return g.record("configure_input_pulldown", pin)
}

func (g *FakeGPIO) SetPin(pin GPIOPin, value bool) error {
	if value {
		return g.record("set_pin_high", pin)
	}
	return g.record("set_pin_low", pin)
}

func (g *FakeGPIO) GetPin(pin GPIOPin) (bool, error) {
	return g.Levels[pin], g.Errs["get_pin"]
}

func (g *FakeGPIO) ReadPin(pin GPIOPin) bool {
	return g.Levels[pin]
}

func (g *FakeGPIO) SetPinInterrupt(pin GPIOPin, edge Edge, handler func()) error {
	if err := g.record("set_pin_interrupt", pin); err != nil {
		return err
	}
	g.handlers[pin] = handler
	g.edges[pin] = edge
	return nil
}

// SetLevel scripts an input reading without firing the edge handler.
func (g *FakeGPIO) SetLevel(pin GPIOPin, level bool) {
	g.Levels[pin] = level
}

// Trigger fires the registered edge handler for a pin, as the hardware
// would on a matching transition.
func (g *FakeGPIO) Trigger(pin GPIOPin) {
	if h := g.handlers[pin]; h != nil {
		h()
	}
}

// FakePWM is a scripted PWMDriver recording configuration and duty.
type FakePWM struct {
	Calls []string
	Errs  map[string]error

	Freq       map[PWMPin]uint32
	Duty       map[PWMPin]PWMValue
	Configured map[PWMPin]bool
}

func NewFakePWM() *FakePWM {
	return &FakePWM{
		Errs:       make(map[string]error),
		Freq:       make(map[PWMPin]uint32),
		Duty:       make(map[PWMPin]PWMValue),
		Configured: make(map[PWMPin]bool),
	}
}

func (p *FakePWM) record(op string, pin PWMPin) error {
	p.Calls = append(p.Calls, op+":"+strconv.FormatUint(uint64(pin), 10))
	return p.Errs[op]
}

func (p *FakePWM) ConfigurePWM(pin PWMPin, freqHz uint32) error {
	if err := p.record("configure_pwm", pin); err != nil {
		return err
	}
	p.Freq[pin] = freqHz
	p.Configured[pin] = true
	return nil
}

func (p *FakePWM) SetDuty(pin PWMPin, value PWMValue) error {
	if err := p.record("set_duty", pin); err != nil {
		return err
	}
	p.Duty[pin] = value
	return nil
}

func (p *FakePWM) DisablePWM(pin PWMPin) error {
	if err := p.record("disable_pwm", pin); err != nil {
		return err
	}
	p.Configured[pin] = false
	return nil
}
