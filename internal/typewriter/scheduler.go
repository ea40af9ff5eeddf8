package typewriter

import "time"

// Timer is a pending tick that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. Production code uses time.AfterFunc; tests
// substitute a scheduler they advance by hand.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ClockScheduler schedules on wall-clock timers.
var ClockScheduler Scheduler = clockScheduler{}
