package pipeline

import "github.com/jonboulle/clockwork"

// clock is a package-level time source so tests can freeze time via SetClock.
// Only run summaries are stamped from it; table contents never depend on the
// wall clock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source for run summaries. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}
