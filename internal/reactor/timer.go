package reactor

import (
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	timerPending int32 = iota
	timerStopped
	timerFired
)

type loopTimer struct {
	state atomic.Int32
	t     *clock.Timer
}

// AfterFunc arms fn to run on the loop after d. A timer stopped after its
// clock fired but before the loop ran it still never runs fn.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	lt := &loopTimer{}
	lt.t = l.clock.AfterFunc(d, func() {
		l.Post(func() {
			if lt.state.CompareAndSwap(timerPending, timerFired) {
				fn()
			}
		})
	})
	return lt
}

func (lt *loopTimer) Stop() bool {
	if !lt.state.CompareAndSwap(timerPending, timerStopped) {
		return false
	}
	lt.t.Stop()
	return true
}
