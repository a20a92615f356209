package helpers

import (
	"time"

	"github.com/temoto/alive/v2"
)

// SleepAlive returns false if a was stopped before d elapsed.
func SleepAlive(a *alive.Alive, d time.Duration) bool {
	if d <= 0 {
		return a.IsRunning()
	}
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-a.StopChan():
		return false
	case <-tmr.C:
		return true
	}
}
