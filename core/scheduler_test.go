package core

import "testing"

// resetScheduler clears the pending timer list between tests.
func resetScheduler(t *testing.T) {
	t.Helper()
	timerList = nil
}

func TestProcessTimersOrder(t *testing.T) {
	resetScheduler(t)

	var fired []int
	mk := func(n int, wake Ticks) *Timer {
		return &Timer{
			WakeTime: wake,
			Handler: func(*Timer) uint8 {
				fired = append(fired, n)
				return SF_DONE
			},
		}
	}

	ScheduleTimer(mk(2, 200))
	ScheduleTimer(mk(1, 100))
	ScheduleTimer(mk(3, 300))

	ProcessTimers(150)
	if len(fired) != 1 || fired[0] != 1 {
		t.Fatalf("Expected only timer 1 at t=150, got %v", fired)
	}

	ProcessTimers(300)
	if len(fired) != 3 || fired[1] != 2 || fired[2] != 3 {
		t.Errorf("Expected wake order 1,2,3, got %v", fired)
	}
}

func TestProcessTimersWrapSafe(t *testing.T) {
	resetScheduler(t)

	var fired []string
	before := &Timer{WakeTime: 0xFFFFFFF8, Handler: func(*Timer) uint8 {
		fired = append(fired, "before")
		return SF_DONE
	}}
	after := &Timer{WakeTime: 0x10, Handler: func(*Timer) uint8 {
		fired = append(fired, "after")
		return SF_DONE
	}}

	// Insertion order must not matter near the wrap
	ScheduleTimer(after)
	ScheduleTimer(before)

	ProcessTimers(0xFFFFFFF8)
	if len(fired) != 1 || fired[0] != "before" {
		t.Fatalf("Expected only pre-wrap timer, got %v", fired)
	}

	ProcessTimers(0x10)
	if len(fired) != 2 || fired[1] != "after" {
		t.Errorf("Expected post-wrap timer after the wrap, got %v", fired)
	}
}

func TestTimerReschedule(t *testing.T) {
	resetScheduler(t)

	var count int
	tm := &Timer{WakeTime: 10}
	tm.Handler = func(t *Timer) uint8 {
		count++
		if count == 3 {
			return SF_DONE
		}
		t.WakeTime += 10
		return SF_RESCHEDULE
	}
	ScheduleTimer(tm)

	ProcessTimers(10)
	if count != 1 {
		t.Fatalf("Expected 1 fire at t=10, got %d", count)
	}
	ProcessTimers(100)
	if count != 3 {
		t.Errorf("Expected 3 fires total, got %d", count)
	}
	if timerList != nil {
		t.Error("Expected empty timer list after SF_DONE")
	}
}

func TestTimerHandlerSwap(t *testing.T) {
	resetScheduler(t)

	var phases []string
	second := func(t *Timer) uint8 {
		phases = append(phases, "second")
		return SF_DONE
	}
	tm := &Timer{WakeTime: 50}
	tm.Handler = func(t *Timer) uint8 {
		phases = append(phases, "first")
		t.WakeTime += 50
		t.Handler = second
		return SF_RESCHEDULE
	}
	ScheduleTimer(tm)

	ProcessTimers(200)
	if len(phases) != 2 || phases[0] != "first" || phases[1] != "second" {
		t.Errorf("Expected handler swap first,second, got %v", phases)
	}
}

func TestCancelTimer(t *testing.T) {
	resetScheduler(t)

	mk := func(wake Ticks) *Timer {
		return &Timer{WakeTime: wake, Handler: func(*Timer) uint8 {
			t.Error("Cancelled timer fired")
			return SF_DONE
		}}
	}
	a := mk(100)
	b := mk(200)
	c := mk(300)
	ScheduleTimer(a)
	ScheduleTimer(b)
	ScheduleTimer(c)

	if !CancelTimer(b) {
		t.Error("Expected middle cancel to report queued")
	}
	if !CancelTimer(a) {
		t.Error("Expected head cancel to report queued")
	}
	if !CancelTimer(c) {
		t.Error("Expected tail cancel to report queued")
	}
	if CancelTimer(a) {
		t.Error("Expected repeat cancel to report not queued")
	}

	ProcessTimers(1000)
}
