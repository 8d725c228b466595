package poller

import "time"

// Forever is a timeout that never elapses.
const Forever time.Duration = -1

// blockUntil returns as soon as ready reports true, or once timeout has
// elapsed. It returns the final value of ready.
//
// If wake is nil, ready is re-evaluated every quantum (busy-poll with a
// sleep). Otherwise it is re-evaluated each time wake fires. A zero timeout
// evaluates ready exactly once; a negative timeout never expires.
func blockUntil(wake <-chan struct{}, quantum, timeout time.Duration, ready func() bool) bool {
	if ready() {
		return true
	}
	if timeout == 0 {
		return false
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	var tick <-chan time.Time
	if wake == nil {
		ticker := time.NewTicker(quantum)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-deadline:
			return ready()
		case <-tick:
		case <-wake:
		}
		if ready() {
			return true
		}
	}
}
