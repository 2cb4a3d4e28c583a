package core

// Timer is a software timer slot. Handlers run with interrupts masked and
// must stay short. A handler re-arms its own timer by advancing WakeTime
// (and optionally swapping Handler) and returning SF_RESCHEDULE; it must
// not call ScheduleTimer, the dispatch already holds the list.
type Timer struct {
	WakeTime Ticks
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

var timerList *Timer

// ScheduleTimer adds a timer to the schedule. Safe from interrupt
// handlers. The timer must not already be queued.
func ScheduleTimer(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	insertTimer(t)
}

// CancelTimer unlinks a queued timer and reports whether it was queued.
// Covers both one-shot and periodic timers; a timer whose handler is
// mid-flight has already been unlinked and is not cancellable here.
func CancelTimer(t *Timer) bool {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if timerList == t {
		timerList = t.Next
		t.Next = nil
		return true
	}
	for current := timerList; current != nil; current = current.Next {
		if current.Next == t {
			current.Next = t.Next
			t.Next = nil
			return true
		}
	}
	return false
}

// insertTimer inserts a timer in sorted wake order. Comparisons go
// through TicksDiff so ordering survives counter wrap. Equal wake times
// keep insertion order.
func insertTimer(t *Timer) {
	if timerList == nil || TicksDiff(t.WakeTime, timerList.WakeTime) < 0 {
		t.Next = timerList
		timerList = t
		return
	}

	current := timerList
	for current.Next != nil && TicksDiff(current.Next.WakeTime, t.WakeTime) <= 0 {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// ProcessTimers runs every timer due at now, in wake order. The target
// pumps this from a millisecond ticker; tests call it directly with a
// manual clock.
func ProcessTimers(now Ticks) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for timerList != nil && TicksDiff(timerList.WakeTime, now) <= 0 {
		timer := timerList
		timerList = timer.Next
		timer.Next = nil // Clear Next pointer to avoid circular references

		result := timer.Handler(timer)

		if result == SF_RESCHEDULE {
			insertTimer(timer)
		}
	}
}
