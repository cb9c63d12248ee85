// Package sched provides a manual scheduler for driving timer-based state
// machines step by step in tests.
package sched

import (
	"time"

	"github.com/danmuck/punchctl/internal/reactor"
)

// Scheduler implements reactor.Scheduler on a virtual clock. Callbacks only
// run inside Advance, on the caller's goroutine, in deadline order.
type Scheduler struct {
	now    time.Duration
	seq    int
	timers []*timer
}

type timer struct {
	at      time.Duration
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

var _ reactor.Scheduler = (*Scheduler)(nil)

func New() *Scheduler {
	return &Scheduler{}
}

func (s *Scheduler) AfterFunc(d time.Duration, fn func()) reactor.Timer {
	if d < 0 {
		d = 0
	}
	s.seq++
	t := &timer{at: s.now + d, seq: s.seq, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves the virtual clock forward by d and runs every timer due by
// then, including timers armed by callbacks along the way. It returns the
// number of callbacks run.
func (s *Scheduler) Advance(d time.Duration) int {
	target := s.now + d
	fired := 0
	for {
		next := s.nextDue(target)
		if next == nil {
			break
		}
		s.now = next.at
		next.fired = true
		s.compact()
		next.fn()
		fired++
	}
	s.now = target
	return fired
}

// Elapsed reports virtual time since New.
func (s *Scheduler) Elapsed() time.Duration {
	return s.now
}

// Pending reports how many timers are armed and not yet fired or stopped.
func (s *Scheduler) Pending() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// NextIn reports the delay until the earliest pending timer.
func (s *Scheduler) NextIn() (time.Duration, bool) {
	var best *timer
	for _, t := range s.timers {
		if t.stopped || t.fired {
			continue
		}
		if best == nil || t.at < best.at || (t.at == best.at && t.seq < best.seq) {
			best = t
		}
	}
	if best == nil {
		return 0, false
	}
	return best.at - s.now, true
}

func (s *Scheduler) nextDue(target time.Duration) *timer {
	var best *timer
	for _, t := range s.timers {
		if t.stopped || t.fired || t.at > target {
			continue
		}
		if best == nil || t.at < best.at || (t.at == best.at && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

func (s *Scheduler) compact() {
	live := s.timers[:0]
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	for i := len(live); i < len(s.timers); i++ {
		s.timers[i] = nil
	}
	s.timers = live
}

func (t *timer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
