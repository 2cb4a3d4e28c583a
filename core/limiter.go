package core

import "errors"

// LimiterMode is the actuator state of the speed limiter.
type LimiterMode uint8

const (
	// Unlimited holds the ignition line low as a plain digital output.
	Unlimited LimiterMode = iota
	// Limited chops the ignition with a light PWM duty.
	Limited
	// Limp chops hard; the escalation when Limited was not enough.
	Limp
)

func (m LimiterMode) String() string {
	switch m {
	case Unlimited:
		return "unlimited"
	case Limited:
		return "limited"
	case Limp:
		return "limp"
	}
	return "unknown"
}

// Band is a hysteresis threshold pair. A signal must climb above High to
// engage the stricter mode and fall below Low before the mode relaxes,
// so noise around one boundary cannot toggle the actuator.
type Band struct {
	Low  int32
	High int32
}

func (b Band) valid() bool { return b.Low < b.High }

// LimiterConfig carries the actuator pin and the four hysteresis bands.
type LimiterConfig struct {
	Pin    GPIOPin
	FreqHz uint32

	LimitDuty PWMValue
	LimpDuty  PWMValue

	RPMLimit   Band
	RPMLimp    Band
	SpeedLimit Band
	SpeedLimp  Band
}

// Limiter drives the ignition-cut line from engine rate and road speed.
// The output pin lives in one of two representations, plain digital or
// PWM, and every switch tears the old one down before setting up the
// new. A driver failure latches the limiter: the pin state is unknown at
// that point, so evaluation stops for good and the caller must treat
// limiting as lost.
type Limiter struct {
	cfg  LimiterConfig
	gpio GPIODriver
	pwm  PWMDriver

	mode   LimiterMode
	pwmOut bool // current pin representation
	err    error
}

// NewLimiter validates the band pairs and drives the actuator to its
// unlimited state.
func NewLimiter(cfg LimiterConfig, gpio GPIODriver, pwm PWMDriver) (*Limiter, error) {
	if gpio == nil || pwm == nil {
		return nil, errors.New("limiter drivers missing")
	}
	if !cfg.RPMLimit.valid() || !cfg.RPMLimp.valid() || !cfg.SpeedLimit.valid() || !cfg.SpeedLimp.valid() {
		return nil, errors.New("limiter bands must have low < high")
	}
	if cfg.FreqHz == 0 {
		return nil, errors.New("limiter pwm frequency required")
	}
	l := &Limiter{cfg: cfg, gpio: gpio, pwm: pwm}
	if err := gpio.ConfigureOutput(cfg.Pin); err != nil {
		return nil, err
	}
	if err := gpio.SetPin(cfg.Pin, false); err != nil {
		return nil, err
	}
	return l, nil
}

// Mode returns the current limiter mode.
func (l *Limiter) Mode() LimiterMode { return l.mode }

// Err returns the latched driver error, if any.
func (l *Limiter) Err() error { return l.err }

// Evaluate applies at most one mode transition for the given engine rate
// and road speed. The rules run in strict priority against the live
// mode, so a single call can never chain two transitions.
func (l *Limiter) Evaluate(rpm, kmh int32) error {
	if l.err != nil {
		return l.err
	}
	switch {
	case l.mode != Unlimited && rpm < l.cfg.RPMLimit.Low && kmh < l.cfg.SpeedLimit.Low:
		// Both signals fully recovered, even out of limp.
		return l.apply(Unlimited)
	case l.mode != Limp && (rpm > l.cfg.RPMLimp.High || kmh > l.cfg.SpeedLimp.High):
		return l.apply(Limp)
	case l.mode == Unlimited && (rpm > l.cfg.RPMLimit.High || kmh > l.cfg.SpeedLimit.High):
		return l.apply(Limited)
	case l.mode == Limp && rpm < l.cfg.RPMLimp.Low && kmh < l.cfg.SpeedLimp.Low:
		// Limp relaxes one step; never straight back to Unlimited.
		return l.apply(Limited)
	}
	return nil
}

func (l *Limiter) apply(target LimiterMode) error {
	if target == l.mode {
		return nil
	}
	var err error
	if target == Unlimited {
		err = l.digitalLow()
	} else {
		duty := l.cfg.LimitDuty
		if target == Limp {
			duty = l.cfg.LimpDuty
		}
		err = l.pwmDuty(duty)
	}
	if err != nil {
		l.err = err
		return err
	}
	l.mode = target
	return nil
}

// digitalLow returns the pin to a plain output held low, tearing down
// the PWM slice first when one is active.
func (l *Limiter) digitalLow() error {
	if l.pwmOut {
		if err := l.pwm.DisablePWM(PWMPin(l.cfg.Pin)); err != nil {
			return err
		}
		if err := l.gpio.ConfigureOutput(l.cfg.Pin); err != nil {
			return err
		}
		l.pwmOut = false
	}
	return l.gpio.SetPin(l.cfg.Pin, false)
}

// pwmDuty hands the pin to the PWM peripheral when it is not there
// already and sets the requested duty. Limited and Limp share the
// representation, so that switch is a duty change only.
func (l *Limiter) pwmDuty(duty PWMValue) error {
	if !l.pwmOut {
		if err := l.gpio.SetPin(l.cfg.Pin, false); err != nil {
			return err
		}
		if err := l.pwm.ConfigurePWM(PWMPin(l.cfg.Pin), l.cfg.FreqHz); err != nil {
			return err
		}
		l.pwmOut = true
	}
	return l.pwm.SetDuty(PWMPin(l.cfg.Pin), duty)
}
