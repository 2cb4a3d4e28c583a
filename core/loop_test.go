package core

import (
	"errors"
	"sync/atomic"
	"testing"
)

type fakeDisplay struct {
	rateCalls    int
	gestureCalls int
	faultCalls   int
	lastRPM      int32
	lastKMH      int32
	lastCount    int32
	err          error
}

func (d *fakeDisplay) ShowRateSpeed(rpm, kmh int32) error {
	d.rateCalls++
	d.lastRPM, d.lastKMH = rpm, kmh
	return d.err
}

func (d *fakeDisplay) ShowGesture(count int32) error {
	d.gestureCalls++
	d.lastCount = count
	return d.err
}

func (d *fakeDisplay) ShowFault(code uint8) error {
	d.faultCalls++
	return d.err
}

type modeChange struct {
	from, to LimiterMode
	rpm, kmh int32
}

type recordReporter struct {
	statuses int
	gestures []int32
	changes  []modeChange
	faults   []uint8
}

func (r *recordReporter) Status(rpm, kmh int32, mode LimiterMode) { r.statuses++ }
func (r *recordReporter) Gesture(count int32)                     { r.gestures = append(r.gestures, count) }
func (r *recordReporter) ModeChange(from, to LimiterMode, rpm, kmh int32) {
	r.changes = append(r.changes, modeChange{from, to, rpm, kmh})
}
func (r *recordReporter) Fault(code uint8, detail uint32) { r.faults = append(r.faults, code) }

type loopRig struct {
	loop    *ControlLoop
	button  *Button
	engine  *RateMeter
	wheel   *RateMeter
	limiter *Limiter
	display *fakeDisplay
	report  *recordReporter
	gpio    *FakeGPIO
	pwm     *FakePWM
	sleeps  []uint32
}

func newLoopRig(t *testing.T) *loopRig {
	t.Helper()
	resetScheduler(t)
	ResetFaults()
	SetClockDriver(&ManualClock{})

	cfg := DefaultConfig()
	rig := &loopRig{
		display: &fakeDisplay{},
		report:  &recordReporter{},
		gpio:    NewFakeGPIO(),
		pwm:     NewFakePWM(),
	}
	rig.gpio.SetLevel(cfg.Button.Pin, true)

	var err error
	if rig.engine, err = NewRotationalMeter(cfg.Engine); err != nil {
		t.Fatalf("engine meter: %v", err)
	}
	if rig.wheel, err = NewDistanceMeter(cfg.Wheel, cfg.WheelDistanceMM); err != nil {
		t.Fatalf("wheel meter: %v", err)
	}
	if rig.button, err = NewButton(cfg.Button, rig.gpio); err != nil {
		t.Fatalf("button: %v", err)
	}
	if rig.limiter, err = NewLimiter(cfg.Limiter, rig.gpio, rig.pwm); err != nil {
		t.Fatalf("limiter: %v", err)
	}
	rig.loop, err = NewControlLoop(rig.button, rig.engine, rig.wheel, rig.limiter,
		rig.display, rig.report, func(ms uint32) { rig.sleeps = append(rig.sleeps, ms) })
	if err != nil {
		t.Fatalf("loop: %v", err)
	}
	t.Cleanup(ResetFaults)
	return rig
}

// spinEngine feeds one priming edge plus rounds accepted edges spaced
// intervalMS apart, so the next Average sees exactly rounds intervals.
func (r *loopRig) spinEngine(start Ticks, intervalMS uint32, rounds int) Ticks {
	ts := start
	r.engine.OnEdge(ts)
	for i := 0; i < rounds; i++ {
		ts += Ticks(intervalMS)
		r.engine.OnEdge(ts)
	}
	return ts
}

func TestStepRendersAtNormalCadence(t *testing.T) {
	rig := newLoopRig(t)

	for i := 0; i < 3; i++ {
		rig.loop.Step()
	}

	if rig.display.rateCalls != 3 {
		t.Errorf("Renders = %d, want 3 (every normal cycle)", rig.display.rateCalls)
	}
	if rig.report.statuses != 3 {
		t.Errorf("Status reports = %d, want 3", rig.report.statuses)
	}
}

func TestStepRendersEveryKthFastCycle(t *testing.T) {
	rig := newLoopRig(t)

	// Pin the detector mid-burst so the loop runs at the fast interval.
	rig.button.counting = true
	atomic.StoreUint32(&rig.button.intervalMS, rig.button.FastInterval())

	for i := 0; i < 12; i++ {
		rig.loop.Step()
	}

	// normal/fast = 6: cycles 6 and 12 render.
	if rig.display.rateCalls != 2 {
		t.Errorf("Renders = %d, want 2 of 12 fast cycles", rig.display.rateCalls)
	}
}

func TestGesturePreemptsCycle(t *testing.T) {
	rig := newLoopRig(t)

	// A collected two-click gesture is waiting.
	rig.button.count = 2

	rig.spinEngine(0, 20, 1) // one 20 ms interval: rate 3000
	rig.loop.Step()

	if rig.display.gestureCalls != 1 || rig.display.lastCount != 2 {
		t.Errorf("Gesture render = %d/count %d, want 1/2", rig.display.gestureCalls, rig.display.lastCount)
	}
	if rig.display.rateCalls != 0 {
		t.Error("Gesture cycle must not render rates")
	}
	if len(rig.sleeps) != 1 || rig.sleeps[0] != GesturePauseMS {
		t.Errorf("Sleeps = %v, want one gesture pause of %d", rig.sleeps, GesturePauseMS)
	}
	if got := rig.report.gestures; len(got) != 1 || got[0] != 2 {
		t.Errorf("Reported gestures = %v, want [2]", got)
	}

	// The meters were not drained during the gesture cycle; the next
	// cycle picks the batch up.
	rig.loop.Step()
	if rig.display.lastRPM != 3000 {
		t.Errorf("Next render rpm = %d, want 3000", rig.display.lastRPM)
	}
}

func TestModeChangeReported(t *testing.T) {
	rig := newLoopRig(t)

	rig.spinEngine(0, 20, 3) // three 20 ms intervals: rate 9000
	rig.loop.Step()

	if len(rig.report.changes) != 1 {
		t.Fatalf("Mode changes = %v, want exactly one", rig.report.changes)
	}
	ch := rig.report.changes[0]
	if ch.from != Unlimited || ch.to != Limp {
		t.Errorf("Change = %v->%v, want unlimited->limp", ch.from, ch.to)
	}
	if ch.rpm < 7000 {
		t.Errorf("Change rpm = %d, want the triggering value above 7000", ch.rpm)
	}
}

func TestActuatorFaultHaltsLimiting(t *testing.T) {
	rig := newLoopRig(t)
	rig.pwm.Errs["configure_pwm"] = errors.New("slice refused")

	rig.spinEngine(0, 20, 3)
	rig.loop.Step()

	if !rig.loop.Halted() {
		t.Fatal("Expected the loop to halt limiting after an actuator fault")
	}
	if len(rig.report.faults) != 1 || rig.report.faults[0] != FaultActuator {
		t.Errorf("Reported faults = %v, want [actuator]", rig.report.faults)
	}
	if rig.display.faultCalls != 1 {
		t.Errorf("Fault renders = %d, want 1", rig.display.faultCalls)
	}
	if !IsShutdown() {
		t.Error("Expected the shutdown latch set")
	}

	// Later cycles keep rendering but never evaluate again.
	pwmCalls := len(rig.pwm.Calls)
	rig.spinEngine(10000, 20, 3)
	rig.loop.Step()

	if len(rig.pwm.Calls) != pwmCalls {
		t.Error("Halted loop touched the actuator")
	}
	if rig.display.rateCalls != 1 {
		t.Errorf("Renders after halt = %d, want 1", rig.display.rateCalls)
	}
	if len(rig.report.faults) != 1 {
		t.Errorf("Fault reported again: %v", rig.report.faults)
	}
}

func TestRenderErrorsCounted(t *testing.T) {
	rig := newLoopRig(t)
	rig.display.err = errors.New("i2c hiccup")

	rig.loop.Step()

	if got := rig.loop.Stats().RenderErrs; got != 1 {
		t.Errorf("RenderErrs = %d, want 1", got)
	}
}

func TestRunSleepsRecommendedInterval(t *testing.T) {
	rig := newLoopRig(t)

	// Run is an endless loop; drive its body the way Run does.
	rig.loop.Step()
	rig.sleeps = append(rig.sleeps, rig.button.LoopInterval())

	if len(rig.sleeps) != 1 || rig.sleeps[0] != 300 {
		t.Errorf("Sleeps = %v, want the normal interval", rig.sleeps)
	}
}
