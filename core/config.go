package core

import "errors"

// Config is the static construction-time tuning for one vehicle. There
// is no runtime configuration surface on the bike; the target bakes
// these in and the host can only read them back through the identity
// dictionary.
type Config struct {
	SparkPin GPIOPin
	HallPin  GPIOPin

	Engine          MeterConfig
	Wheel           MeterConfig
	WheelDistanceMM int32

	Button  ButtonConfig
	Limiter LimiterConfig
}

// DefaultConfig is the tuning for the stock build: spark pickup on 12,
// wheel hall sensor on 13 with a 298 mm magnet pitch, button on 2,
// ignition cut on 15.
func DefaultConfig() Config {
	return Config{
		SparkPin:        12,
		HallPin:         13,
		Engine:          MeterConfig{Capacity: 20, BounceMS: 4},
		Wheel:           MeterConfig{Capacity: 10, BounceMS: 36, TrackTotal: true},
		WheelDistanceMM: 298,
		Button: ButtonConfig{
			Pin:        2,
			DebounceMS: 50,
			BurstMS:    200,
			FastMS:     50,
			NormalMS:   300,
		},
		Limiter: LimiterConfig{
			Pin:        15,
			FreqHz:     250,
			LimitDuty:  32,
			LimpDuty:   192,
			RPMLimit:   Band{Low: 5800, High: 6000},
			RPMLimp:    Band{Low: 6800, High: 7000},
			SpeedLimit: Band{Low: 40, High: 42},
			SpeedLimp:  Band{Low: 48, High: 50},
		},
	}
}

// Validate checks the whole configuration before any hardware is
// touched, so a bad build fails at boot with one diagnostic instead of
// halfway through bring-up.
func (c Config) Validate() error {
	if c.Engine.Capacity < 1 || c.Wheel.Capacity < 1 {
		return errors.New("config: meter capacities must be at least 1")
	}
	if c.Engine.BounceMS < 0 || c.Wheel.BounceMS < 0 {
		return errors.New("config: bounce thresholds must not be negative")
	}
	if c.WheelDistanceMM <= 0 {
		return errors.New("config: wheel distance per event required")
	}
	if c.Button.DebounceMS == 0 || c.Button.BurstMS == 0 {
		return errors.New("config: button debounce and burst periods required")
	}
	if c.Button.FastMS == 0 || c.Button.NormalMS < c.Button.FastMS || c.Button.NormalMS%c.Button.FastMS != 0 {
		return errors.New("config: button normal interval must be a multiple of the fast interval")
	}
	if !c.Limiter.RPMLimit.valid() || !c.Limiter.RPMLimp.valid() ||
		!c.Limiter.SpeedLimit.valid() || !c.Limiter.SpeedLimp.valid() {
		return errors.New("config: limiter bands must have low < high")
	}
	if c.Limiter.FreqHz == 0 {
		return errors.New("config: limiter pwm frequency required")
	}
	if c.Limiter.LimitDuty > PWMMax || c.Limiter.LimpDuty > PWMMax {
		return errors.New("config: limiter duty exceeds full scale")
	}
	pins := []GPIOPin{c.SparkPin, c.HallPin, c.Button.Pin, c.Limiter.Pin}
	for i := 0; i < len(pins); i++ {
		for j := i + 1; j < len(pins); j++ {
			if pins[i] == pins[j] {
				return errors.New("config: pin assigned twice")
			}
		}
	}
	return nil
}
