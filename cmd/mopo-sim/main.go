// Command mopo-sim runs the whole control pipeline against scripted
// drivers: ignition pulses sweep through the cut bands, the wheel
// overspeeds downhill and the rider clicks out a gesture. Every edge
// is placed on a hand-advanced clock, so a run is fully deterministic
// and needs no hardware.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"mopo/core"
)

// beat is one polling cycle of the script: how much simulated time
// passes and which edges land inside it. Edges are spread evenly
// across the gap, so the drained interval sum equals the gap and the
// measured rate is n*n*scale/gap, exactly as on the bench.
type beat struct {
	note string
	gap  uint32 // simulated ms before the poll

	engineN      int // ignition pulses in the gap
	wheelN       int // wheel magnet passes in the gap
	engineBounce bool
	wheelBounce  bool

	clicks int // scripted button presses in the gap
}

// The ride. Engine rates: n pulses over gap ms measure n*n*60000/gap.
// Wheel rates with a 1790 mm tick: n*n*17900/(gap*3.6).
var script = []beat{
	{note: "power on", gap: 300},
	{note: "kick start", gap: 300, engineN: 3},
	{note: "idling", gap: 300, engineN: 3},
	{note: "pulling away", gap: 300, engineN: 4, wheelN: 1},
	{note: "rolling", gap: 300, engineN: 4, wheelN: 1},
	{note: "open throttle", gap: 300, engineN: 5, wheelN: 1},
	{note: "surging past the cut", gap: 230, engineN: 5, wheelN: 1},
	{note: "held at the cut", gap: 230, engineN: 5, wheelN: 1},
	{note: "through the cut", gap: 300, engineN: 6, wheelN: 1, engineBounce: true},
	{note: "rolling off", gap: 300, engineN: 3, wheelN: 1},
	{note: "settling", gap: 300, engineN: 3, wheelN: 1},
	{note: "stopped, checking the trip", gap: 1500, clicks: 3},
	{note: "lights change", gap: 300},
	{note: "spooling up", gap: 300, engineN: 6, wheelN: 1},
	{note: "flat out", gap: 300, engineN: 6, wheelN: 1},
	{note: "clutch in, coasting fast", gap: 260, wheelN: 5},
	{note: "steeper downhill", gap: 280, wheelN: 6, wheelBounce: true},
	{note: "braking hard", gap: 300, wheelN: 4},
	{note: "walking pace", gap: 300, wheelN: 2},
	{note: "rolling to a stop", gap: 300, wheelN: 1},
	{note: "parked", gap: 300},
}

type scheduledEdge struct {
	at    core.Ticks
	meter *core.RateMeter
}

type levelChange struct {
	at      core.Ticks
	pressed bool
}

// world owns the scripted hardware: a manual clock, fake pins and the
// pending edges of the current beat. Its advance doubles as the loop's
// sleep function, so gesture pauses move the same clock.
type world struct {
	clock  *core.ManualClock
	gpio   *core.FakeGPIO
	engine *core.RateMeter
	wheel  *core.RateMeter
	button *core.Button
	btnPin core.GPIOPin

	edges  []scheduledEdge
	levels []levelChange
}

// stage lays out one beat's edges and clicks from the current instant.
func (w *world) stage(b beat) {
	start := w.clock.Millis()
	w.edges = w.edges[:0]
	w.levels = w.levels[:0]

	if b.engineN > 0 {
		gap := core.Ticks(b.gap / uint32(b.engineN))
		for i := 1; i <= b.engineN; i++ {
			w.edges = append(w.edges, scheduledEdge{start + core.Ticks(i)*gap, w.engine})
		}
		if b.engineBounce {
			// Contact noise right behind a real pulse.
			w.edges = append(w.edges, scheduledEdge{start + gap + 2, w.engine})
		}
	}
	if b.wheelN > 0 {
		gap := core.Ticks(b.gap / uint32(b.wheelN))
		for i := 1; i <= b.wheelN; i++ {
			w.edges = append(w.edges, scheduledEdge{start + core.Ticks(i)*gap, w.wheel})
		}
		if b.wheelBounce {
			w.edges = append(w.edges, scheduledEdge{start + gap + 10, w.wheel})
		}
	}
	sort.Slice(w.edges, func(i, j int) bool { return w.edges[i].at < w.edges[j].at })

	// Clicks land on alternate burst samples: pressed at one sample,
	// released at the next, so every click counts.
	for k := 0; k < b.clicks; k++ {
		press := start + core.Ticks(100+400*k)
		w.levels = append(w.levels,
			levelChange{press, true},
			levelChange{press + 120, false})
	}
}

// advance moves simulated time one millisecond at a time, firing due
// edges, applying the click script and pumping the soft timers.
func (w *world) advance(ms uint32) {
	for i := uint32(0); i < ms; i++ {
		now := w.clock.Advance(1)
		for len(w.edges) > 0 && w.edges[0].at <= now {
			w.edges[0].meter.OnEdge(w.edges[0].at)
			w.edges = w.edges[1:]
		}
		for len(w.levels) > 0 && w.levels[0].at <= now {
			lc := w.levels[0]
			w.levels = w.levels[1:]
			// Pull-up wiring: pressed pulls the line low.
			w.gpio.SetLevel(w.btnPin, !lc.pressed)
			if lc.pressed {
				w.button.OnEdge(now)
			}
		}
		core.ProcessTimers(now)
	}
}

// slogReporter narrates the events the firmware would put on the wire.
type slogReporter struct {
	log *slog.Logger
}

func (r slogReporter) Status(rpm, kmh int32, mode core.LimiterMode) {
	r.log.Debug("status", "rpm", rpm, "kmh", kmh, "mode", mode.String())
}

func (r slogReporter) Gesture(count int32) {
	r.log.Info("gesture", "count", count)
}

func (r slogReporter) ModeChange(from, to core.LimiterMode, rpm, kmh int32) {
	r.log.Info("mode change", "from", from.String(), "to", to.String(), "rpm", rpm, "kmh", kmh)
}

func (r slogReporter) Fault(code uint8, detail uint32) {
	r.log.Error("fault", "code", code, "detail", detail)
}

// textScreen stands in for the OLED.
type textScreen struct {
	log *slog.Logger
}

func (s textScreen) ShowRateSpeed(rpm, kmh int32) error {
	s.log.Debug("screen", "rpm", rpm, "kmh", kmh)
	return nil
}

func (s textScreen) ShowGesture(count int32) error {
	s.log.Info("screen gesture", "count", count)
	return nil
}

func (s textScreen) ShowFault(code uint8) error {
	s.log.Error("screen fault", "code", code)
	return nil
}

func main() {
	logLevel := flag.String("log-level", "info", "Log level: error, warn, info, debug")
	flag.Parse()

	level, err := parseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	clock := &core.ManualClock{}
	core.SetClockDriver(clock)
	gpio := core.NewFakeGPIO()
	pwm := core.NewFakePWM()

	cfg := core.DefaultConfig()
	// Bench wheel with a single magnet: one tick per full 1790 mm turn.
	cfg.WheelDistanceMM = 1790
	if err := cfg.Validate(); err != nil {
		logger.Error("config invalid", "error", err)
		os.Exit(1)
	}

	engine, err := core.NewRotationalMeter(cfg.Engine)
	if err != nil {
		logger.Error("engine meter", "error", err)
		os.Exit(1)
	}
	wheel, err := core.NewDistanceMeter(cfg.Wheel, cfg.WheelDistanceMM)
	if err != nil {
		logger.Error("wheel meter", "error", err)
		os.Exit(1)
	}
	gpio.SetLevel(cfg.Button.Pin, true)
	button, err := core.NewButton(cfg.Button, gpio)
	if err != nil {
		logger.Error("button", "error", err)
		os.Exit(1)
	}
	limiter, err := core.NewLimiter(cfg.Limiter, gpio, pwm)
	if err != nil {
		logger.Error("limiter", "error", err)
		os.Exit(1)
	}

	w := &world{
		clock:  clock,
		gpio:   gpio,
		engine: engine,
		wheel:  wheel,
		button: button,
		btnPin: cfg.Button.Pin,
	}

	loop, err := core.NewControlLoop(button, engine, wheel, limiter,
		textScreen{logger}, slogReporter{logger}, w.advance)
	if err != nil {
		logger.Error("control loop", "error", err)
		os.Exit(1)
	}

	for _, b := range script {
		logger.Info("scene", "note", b.note, "at_ms", uint32(clock.Millis()))
		w.stage(b)
		w.advance(b.gap)
		loop.Step()
	}

	es, ws, ls := engine.Stats(), wheel.Stats(), loop.Stats()
	logger.Info("engine counters",
		"accepted", es.Accepted, "bounced", es.Bounced,
		"overflows", es.Overflows, "empty_polls", es.EmptyPolls)
	logger.Info("wheel counters",
		"accepted", ws.Accepted, "bounced", ws.Bounced,
		"overflows", ws.Overflows, "empty_polls", ws.EmptyPolls,
		"odometer", ws.Total)
	logger.Info("loop counters",
		"cycles", ls.Cycles, "renders", ls.Renders,
		"render_errors", ls.RenderErrs, "gestures", ls.Gestures)
	logger.Info("final mode", "mode", limiter.Mode().String(),
		"pwm_active", pwm.Configured[core.PWMPin(cfg.Limiter.Pin)])
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "error":
		return slog.LevelError, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	}
	return 0, fmt.Errorf("invalid log level %q (must be error, warn, info, or debug)", level)
}
