// Package reliability implements the per-(writer,reader) reliable
// delivery state machine of spec section 4.5: Heartbeat/AckNack/Gap/
// NackFrag scheduling and reaction, the retransmit queue, and the
// writer/reader proxy bookkeeping that drives them. The writer-side
// retransmit scheduling generalizes this codebase's ARQ
// (resend-on-timeout against a timer queue), and the reader-side
// ack-driven retransmit request generalizes the reliable stream
// reader's gap handling, into the full HB/AckNack/Gap/NackFrag protocol.
package reliability

import (
	"time"

	channels "gopkg.in/eapache/channels.v1"

	"github.com/meridian-dds/meridian/core/clock"
	"github.com/meridian-dds/meridian/core/queue"
	"github.com/meridian-dds/meridian/core/worker"
)

// Message is a non-timed item the scheduler's FIFO carries: an incoming
// protocol submessage or a user write notification, as opposed to a
// timer-driven event (heartbeat tick, retransmit deadline).
type Message struct {
	Kind    MessageKind
	Payload interface{}
}

// MessageKind distinguishes the FIFO message types.
type MessageKind uint8

const (
	MsgUserWrite MessageKind = iota
	MsgHeartbeat
	MsgAckNack
	MsgGap
	MsgNackFrag
)

// TimerEvent is the value carried by the timer heap side of the
// scheduler: a deadline-triggered callback identified by a kind so the
// dispatcher can route it (heartbeat tick, preemptive AckNack tick,
// retransmit deadline).
type TimerEvent struct {
	Kind    TimerKind
	Payload interface{}
}

// TimerKind distinguishes scheduled timer events.
type TimerKind uint8

const (
	TimerHeartbeat TimerKind = iota
	TimerPreemptiveAckNack
	TimerAckNackDelay
	TimerRetransmit
	TimerLeaseExpiry
)

// Scheduler is the event queue of spec section 4.5: a timer heap keyed
// by monotonic deadline plus a FIFO of non-timed messages, both served
// by one dispatch goroutine. Cancel deletes a scheduled entry without
// firing it, the DELETE contract.
type Scheduler struct {
	worker.Worker

	clk     clock.Clock
	timers  *queue.TimerQueue
	fifo    *channels.InfiniteChannel
	onTimer func(TimerEvent)
	onMsg   func(Message)
}

// NewScheduler creates a Scheduler. onTimer is invoked (from the
// dispatch goroutine) for every fired timer event; onMsg for every FIFO
// message. clk lets tests drive the timer heap deterministically.
func NewScheduler(clk clock.Clock, onTimer func(TimerEvent), onMsg func(Message)) *Scheduler {
	s := &Scheduler{
		clk:     clk,
		fifo:    channels.NewInfiniteChannel(),
		onTimer: onTimer,
		onMsg:   onMsg,
	}
	s.timers = queue.NewTimerQueue(func(v interface{}) {
		s.onTimer(v.(TimerEvent))
	}).WithClock(clk)
	return s
}

// Start launches the timer executor and the FIFO dispatch goroutine.
func (s *Scheduler) Start() {
	s.timers.Start()
	s.Go(s.drainFIFO)
}

// Stop halts both goroutines and waits for them to exit.
func (s *Scheduler) Stop() {
	s.timers.Stop()
	s.fifo.Close()
	s.Halt()
	s.Wait()
}

// ScheduleAt schedules a timer event at an absolute deadline (ns).
func (s *Scheduler) ScheduleAt(deadlineNanos int64, ev TimerEvent) *queue.Handle {
	return s.timers.Push(uint64(deadlineNanos), ev)
}

// ScheduleAfter schedules a timer event relative to the scheduler's
// clock.
func (s *Scheduler) ScheduleAfter(d time.Duration, ev TimerEvent) *queue.Handle {
	return s.ScheduleAt(s.clk.Now()+int64(d), ev)
}

// Now returns the scheduler's current clock reading, for deadline math
// done by callers (writer/reader proxies) outside the Scheduler itself.
func (s *Scheduler) Now() int64 {
	return s.clk.Now()
}

// Cancel deletes a previously scheduled timer entry without firing it.
func (s *Scheduler) Cancel(h *queue.Handle) {
	s.timers.Cancel(h)
}

// Post enqueues a non-timed message for dispatch.
func (s *Scheduler) Post(m Message) {
	s.fifo.In() <- m
}

func (s *Scheduler) drainFIFO() {
	out := s.fifo.Out()
	for {
		select {
		case <-s.HaltCh():
			return
		case v, ok := <-out:
			if !ok {
				return
			}
			s.onMsg(v.(Message))
		}
	}
}
