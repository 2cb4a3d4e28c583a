package core

import "errors"

// GesturePauseMS is how long a completed click count stays on screen
// before the loop resumes.
const GesturePauseMS = 500

// Display renders the operator-facing screens. Implementations may be
// slow I2C devices; render failures are counted, never fatal.
type Display interface {
	ShowRateSpeed(rpm, kmh int32) error
	ShowGesture(count int32) error
	ShowFault(code uint8) error
}

// Reporter receives telemetry events from the control loop.
type Reporter interface {
	Status(rpm, kmh int32, mode LimiterMode)
	Gesture(count int32)
	ModeChange(from, to LimiterMode, rpm, kmh int32)
	Fault(code uint8, detail uint32)
}

// NopReporter discards every event.
type NopReporter struct{}

func (NopReporter) Status(rpm, kmh int32, mode LimiterMode)         {}
func (NopReporter) Gesture(count int32)                             {}
func (NopReporter) ModeChange(from, to LimiterMode, rpm, kmh int32) {}
func (NopReporter) Fault(code uint8, detail uint32)                 {}

// LoopStats counts loop activity for the counters report.
type LoopStats struct {
	Cycles     uint32
	Renders    uint32
	RenderErrs uint32
	Gestures   uint32
}

// ControlLoop owns the polling cadence: collect completed gestures,
// drain the meters, evaluate the limiter, keep the display fresh.
type ControlLoop struct {
	button  *Button
	engine  *RateMeter
	wheel   *RateMeter
	limiter *Limiter
	display Display
	report  Reporter
	sleep   func(ms uint32)

	fastPerNormal uint32

	halted bool
	stats  LoopStats
}

// NewControlLoop wires the loop. A nil reporter falls back to
// NopReporter; everything else is required.
func NewControlLoop(button *Button, engine, wheel *RateMeter, limiter *Limiter, display Display, report Reporter, sleep func(ms uint32)) (*ControlLoop, error) {
	if button == nil || engine == nil || wheel == nil || limiter == nil || display == nil || sleep == nil {
		return nil, errors.New("control loop collaborator missing")
	}
	if report == nil {
		report = NopReporter{}
	}
	return &ControlLoop{
		button:        button,
		engine:        engine,
		wheel:         wheel,
		limiter:       limiter,
		display:       display,
		report:        report,
		sleep:         sleep,
		fastPerNormal: button.NormalInterval() / button.FastInterval(),
	}, nil
}

// SetReporter swaps the telemetry sink. The default is NopReporter;
// targets call this once the link is up, before Run.
func (l *ControlLoop) SetReporter(r Reporter) {
	if r == nil {
		r = NopReporter{}
	}
	l.report = r
}

// Step runs one polling cycle. The caller sleeps LoopInterval between
// cycles; Run does exactly that.
func (l *ControlLoop) Step() {
	l.stats.Cycles++

	// A completed gesture preempts the whole cycle: show the count,
	// hold it readable, pick up rates next time around. The pending
	// sentinel and zero both fall through.
	if n := l.button.Pressed(); n > 0 {
		l.stats.Gestures++
		if err := l.display.ShowGesture(n); err != nil {
			l.stats.RenderErrs++
		}
		l.report.Gesture(n)
		l.sleep(GesturePauseMS)
		return
	}

	rpm := l.engine.Average()
	kmh := l.wheel.Average()

	if !l.halted {
		before := l.limiter.Mode()
		if err := l.limiter.Evaluate(rpm, kmh); err != nil {
			// The actuator state is unknown. Stop evaluating for
			// good; display and telemetry keep running.
			l.halted = true
			TryShutdown(FaultActuator, uint32(before), Now())
			l.report.Fault(FaultActuator, uint32(before))
			if derr := l.display.ShowFault(FaultActuator); derr != nil {
				l.stats.RenderErrs++
			}
			return
		}
		if after := l.limiter.Mode(); after != before {
			l.report.ModeChange(before, after, rpm, kmh)
		}
	}

	// Render every cycle at the normal interval; while fast-polling for
	// a gesture, render only every fastPerNormal-th cycle so the screen
	// cadence stays the same.
	if l.button.LoopInterval() == l.button.NormalInterval() || l.stats.Cycles%l.fastPerNormal == 0 {
		l.stats.Renders++
		if err := l.display.ShowRateSpeed(rpm, kmh); err != nil {
			l.stats.RenderErrs++
		}
		l.report.Status(rpm, kmh, l.limiter.Mode())
	}
}

// Run polls forever at the recommended cadence. No terminal state.
func (l *ControlLoop) Run() {
	for {
		l.Step()
		l.sleep(l.button.LoopInterval())
	}
}

// Halted reports whether limiting has been stopped by a latched fault.
func (l *ControlLoop) Halted() bool { return l.halted }

// Stats snapshots the loop counters.
func (l *ControlLoop) Stats() LoopStats { return l.stats }
