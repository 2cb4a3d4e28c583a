package core

import (
	"errors"
	"sync/atomic"
)

// GesturePending is returned by Pressed while a click burst is still
// being counted.
const GesturePending int32 = -1

// ButtonConfig carries the gesture timing parameters in milliseconds.
type ButtonConfig struct {
	Pin GPIOPin

	// DebounceMS is the one-shot settle delay after the first edge.
	DebounceMS uint32
	// BurstMS is the periodic sampling interval while counting clicks.
	BurstMS uint32
	// FastMS is the loop interval recommended while a gesture is live.
	FastMS uint32
	// NormalMS is the loop interval recommended otherwise. Must be a
	// multiple of FastMS so the render cadence divides evenly.
	NormalMS uint32
}

// Button turns presses of an active-low push button into click counts.
// The pin ISR feeds OnEdge; debounce confirmation and burst sampling
// share one software timer whose handler swaps itself over; the polling
// loop collects completed counts with Pressed.
type Button struct {
	gpio GPIODriver
	cfg  ButtonConfig

	timer Timer

	// Gesture state. Written in interrupt or timer context, read by the
	// loop only under the interrupt mask.
	debouncing  bool
	counting    bool
	prevPressed bool
	count       int32
	pressedAt   Ticks

	intervalMS uint32 // atomic
}

// NewButton wires the detector to its input pin. The target configures
// the pin as a pull-up input and routes its falling edge to OnEdge.
func NewButton(cfg ButtonConfig, gpio GPIODriver) (*Button, error) {
	if gpio == nil {
		return nil, errors.New("button gpio driver missing")
	}
	if cfg.DebounceMS == 0 || cfg.BurstMS == 0 {
		return nil, errors.New("button debounce and burst periods required")
	}
	if cfg.FastMS == 0 || cfg.NormalMS < cfg.FastMS || cfg.NormalMS%cfg.FastMS != 0 {
		return nil, errors.New("button normal interval must be a multiple of the fast interval")
	}
	b := &Button{gpio: gpio, cfg: cfg}
	atomic.StoreUint32(&b.intervalMS, cfg.NormalMS)
	return b, nil
}

// readPressed samples the line. Pull-up wiring: pressed pulls it low.
func (b *Button) readPressed() bool {
	return !b.gpio.ReadPin(b.cfg.Pin)
}

// OnEdge starts gesture tracking on a falling edge. Interrupt context.
// Edges during an active debounce or burst are ignored; the burst
// sampler watches the level directly.
func (b *Button) OnEdge(now Ticks) {
	if b.debouncing || b.counting {
		return
	}
	b.debouncing = true
	b.pressedAt = now
	atomic.StoreUint32(&b.intervalMS, b.cfg.FastMS)

	b.timer.WakeTime = now + Ticks(b.cfg.DebounceMS)
	b.timer.Handler = b.debounceExpired
	ScheduleTimer(&b.timer)
}

// debounceExpired fires once per press attempt. A line that no longer
// reads pressed was contact noise; a real press opens the click burst
// and turns this timer into the periodic sampler.
func (b *Button) debounceExpired(t *Timer) uint8 {
	if b.readPressed() {
		b.count = 1
		b.counting = true
		b.prevPressed = true
		b.debouncing = false
		t.WakeTime += Ticks(b.cfg.BurstMS)
		t.Handler = b.burstSample
		return SF_RESCHEDULE
	}
	b.debouncing = false
	atomic.StoreUint32(&b.intervalMS, b.cfg.NormalMS)
	return SF_DONE
}

// burstSample fires every BurstMS while a gesture is live. It counts
// released-to-pressed transitions between consecutive samples, so a held
// button counts once. Two released samples in a row end the gesture and
// the timer cancels itself.
func (b *Button) burstSample(t *Timer) uint8 {
	if b.readPressed() {
		if !b.prevPressed {
			b.count++
		}
		b.prevPressed = true
	} else {
		if !b.prevPressed {
			b.counting = false
			atomic.StoreUint32(&b.intervalMS, b.cfg.NormalMS)
			return SF_DONE
		}
		b.prevPressed = false
	}
	t.WakeTime += Ticks(b.cfg.BurstMS)
	return SF_RESCHEDULE
}

// Pressed returns the completed click count and resets it, or
// GesturePending while a burst is still being counted. Polling context.
func (b *Button) Pressed() int32 {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if b.counting {
		return GesturePending
	}
	n := b.count
	b.count = 0
	return n
}

// LoopInterval returns the currently recommended polling interval in ms.
func (b *Button) LoopInterval() uint32 {
	return atomic.LoadUint32(&b.intervalMS)
}

// NormalInterval returns the relaxed polling interval.
func (b *Button) NormalInterval() uint32 { return b.cfg.NormalMS }

// FastInterval returns the polling interval used while a gesture is live.
func (b *Button) FastInterval() uint32 { return b.cfg.FastMS }
