//go:build rp2040

// Firmware entry point for the RP2040 build. Wires the hardware
// drivers into the core pipeline and runs the telemetry link over the
// USB CDC console.
package main

import (
	"machine"
	"time"

	"mopo/core"
	"mopo/display"
	"mopo/telemetry"
)

// serialInputSize holds a few frames of host traffic between reader
// passes. Frames max out at 64 bytes.
const serialInputSize = 256

var (
	serialInput  *telemetry.FifoBuffer
	serialOutput *telemetry.ScratchOutput
	link         *telemetry.Link
)

func main() {
	// A reset request leaves the watchdog armed with a 1 ms timeout.
	// Disarm it first thing so bring-up cannot trip it.
	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})

	// machine.Serial is the USB CDC console on this chip.
	machine.Serial.Configure(machine.UARTConfig{})

	core.SetClockDriver(hardwareClock{})
	gpio := newRPGPIODriver()
	core.SetGPIODriver(gpio)
	pwm := newRPPWMDriver()
	core.SetPWMDriver(pwm)

	cfg := core.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		haltBoot(core.FaultConfig, 1)
	}

	engine, err := core.NewRotationalMeter(cfg.Engine)
	if err != nil {
		haltBoot(core.FaultConfig, 2)
	}
	wheel, err := core.NewDistanceMeter(cfg.Wheel, cfg.WheelDistanceMM)
	if err != nil {
		haltBoot(core.FaultConfig, 3)
	}
	button, err := core.NewButton(cfg.Button, gpio)
	if err != nil {
		haltBoot(core.FaultConfig, 4)
	}
	limiter, err := core.NewLimiter(cfg.Limiter, gpio, pwm)
	if err != nil {
		haltBoot(core.FaultConfig, 5)
	}

	// The display shares the bus with nothing else. I2C0 comes up on
	// its default pins, SDA=GP4 and SCL=GP5. Render failures are
	// counted by the loop, never fatal.
	if err := machine.I2C0.Configure(machine.I2CConfig{
		Frequency: 400000,
	}); err != nil {
		core.RecordFault(core.FaultDisplay, 1, core.Now())
	}
	screen := display.NewScreen(display.NewSSD1306(machine.I2C0))

	loop, err := core.NewControlLoop(button, engine, wheel, limiter, screen, nil, func(ms uint32) {
		time.Sleep(time.Duration(ms) * time.Millisecond)
	})
	if err != nil {
		haltBoot(core.FaultConfig, 6)
	}

	serialInput = telemetry.NewFifoBuffer(serialInputSize)
	serialOutput = telemetry.NewScratchOutput()
	reg := telemetry.NewRegistry()
	link = telemetry.NewLink(serialOutput, reg.Dispatch)
	dict := telemetry.NewDictionary(reg)
	msgs := telemetry.NewMessages(link, reg, dict, telemetry.Sources{
		Engine: engine,
		Wheel:  wheel,
		Loop:   loop,
	})
	loop.SetReporter(msgs)

	// Target-specific commands follow the shared vocabulary so the
	// shared IDs stay stable across builds.
	reg.Register("reset", "", handleReset)

	dict.AddConstant("MCU", "rp2040")
	dict.AddConstant("CLOCK_FREQ", 1000)
	dict.AddConstant("SPARK_PIN", uint32(cfg.SparkPin))
	dict.AddConstant("HALL_PIN", uint32(cfg.HallPin))
	dict.AddConstant("BUTTON_PIN", uint32(cfg.Button.Pin))
	dict.AddConstant("LIMITER_PIN", uint32(cfg.Limiter.Pin))
	dict.AddConstant("WHEEL_MM", cfg.WheelDistanceMM)
	dict.AddEnumeration("mode", []string{"unlimited", "limited", "limp"})
	dict.AddEnumeration("fault", []string{"none", "actuator", "config", "display", "link"})
	if err := dict.BuildDictionary(); err != nil {
		// Raw JSON got cached instead; the host parser copes.
		core.RecordFault(core.FaultLink, 2, core.Now())
	}

	link.SetFlushCallback(flushSerial)
	link.SetDesyncCallback(func() {
		core.RecordFault(core.FaultLink, 0, core.Now())
	})
	link.SetResetCallback(func() {
		core.ResetFaults()
	})

	// Sensor edges. The spark pickup idles low and pulses high; the
	// hall sensor and the button are open collectors pulling low.
	if err := gpio.ConfigureInputPullDown(cfg.SparkPin); err != nil {
		haltBoot(core.FaultConfig, 7)
	}
	if err := gpio.SetPinInterrupt(cfg.SparkPin, core.EdgeRising, func() {
		engine.OnEdge(core.Now())
	}); err != nil {
		haltBoot(core.FaultConfig, 8)
	}
	if err := gpio.ConfigureInputPullUp(cfg.HallPin); err != nil {
		haltBoot(core.FaultConfig, 9)
	}
	if err := gpio.SetPinInterrupt(cfg.HallPin, core.EdgeFalling, func() {
		wheel.OnEdge(core.Now())
	}); err != nil {
		haltBoot(core.FaultConfig, 10)
	}
	if err := gpio.ConfigureInputPullUp(cfg.Button.Pin); err != nil {
		haltBoot(core.FaultConfig, 11)
	}
	if err := gpio.SetPinInterrupt(cfg.Button.Pin, core.EdgeFalling, func() {
		button.OnEdge(core.Now())
	}); err != nil {
		haltBoot(core.FaultConfig, 12)
	}

	go timerPump()
	go serialReader()

	loop.Run()
}

// timerPump drives the soft timers the button sampler runs on.
func timerPump() {
	for {
		core.ProcessTimers(core.Now())
		time.Sleep(time.Millisecond)
	}
}

// serialReader shuttles host bytes from the USB console into the link.
// A panic in a message handler is caught inside Receive; this recover
// only guards the transport itself.
func serialReader() {
	defer func() {
		if r := recover(); r != nil {
			core.RecordFault(core.FaultLink, 1, core.Now())
			go serialReader()
		}
	}()

	var buf [1]byte
	for {
		n := machine.Serial.Buffered()
		if n == 0 {
			time.Sleep(200 * time.Microsecond)
			continue
		}
		for ; n > 0; n-- {
			b, err := machine.Serial.ReadByte()
			if err != nil {
				break
			}
			buf[0] = b
			serialInput.Write(buf[:])
		}
		link.Receive(serialInput)
	}
}

// flushSerial pushes the framed output to the host. The link holds its
// send lock around this, so writes never interleave. Short writes
// happen when the host stalls; a write error means the port is gone
// and the frame is dropped.
func flushSerial() {
	data := serialOutput.Result()
	for len(data) > 0 {
		n, err := machine.Serial.Write(data)
		if err != nil {
			break
		}
		data = data[n:]
	}
	serialOutput.Reset()
}

// handleReset reboots the chip on host request. The acknowledgement
// for this command still has to make it out, so the watchdog is armed
// from a goroutine after a short drain delay.
func handleReset(data *[]byte) error {
	go func() {
		time.Sleep(50 * time.Millisecond)
		machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1})
		machine.Watchdog.Start()
		for {
			time.Sleep(time.Millisecond)
		}
	}()
	return nil
}

// haltBoot parks the firmware on a fault found before the pipeline is
// up. With no validated config there is nothing safe to run, and no
// link yet to report over.
func haltBoot(code uint8, detail uint32) {
	core.TryShutdown(code, detail, core.Now())
	for {
		time.Sleep(time.Second)
	}
}
