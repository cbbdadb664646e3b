package queue

import "time"

// stoppedTimer wraps a time.Timer so the run loop can Reset it with a
// plain nanosecond count without repeating the drain-before-reset
// dance at every call site.
type stoppedTimer struct {
	t *time.Timer
}

func newStoppedTimer() *stoppedTimer {
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		<-t.C
	}
	return &stoppedTimer{t: t}
}

func (s *stoppedTimer) Reset(ns int64) {
	s.Stop()
	s.t.Reset(time.Duration(ns))
}

func (s *stoppedTimer) Stop() {
	if !s.t.Stop() {
		select {
		case <-s.t.C:
		default:
		}
	}
}

func (s *stoppedTimer) C() <-chan time.Time {
	return s.t.C
}
