package domain

import "github.com/jonboulle/clockwork"

// clock stamps reports with their generation time. Tests freeze it via SetClock
// so report fixtures stay byte-stable.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used for report stamping. Pass nil to reset
// to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}
