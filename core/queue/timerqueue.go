// Package queue implements the timer heap of spec section 4.5/5: a
// single monotonic-clock priority queue of scheduled events, keyed by
// absolute deadline, served by one worker goroutine. The shape mirrors
// the client.TimerQueue/client.Item pair used by the ARQ and reliable
// stream implementations this module generalizes: Push schedules an
// opaque value at a priority (an absolute deadline in nanoseconds), and
// the queue invokes a callback once the deadline elapses.
package queue

import (
	"container/heap"
	"math"
	"sync"

	"github.com/meridian-dds/meridian/core/clock"
	"github.com/meridian-dds/meridian/core/worker"
)

// MinPriority is the earliest possible deadline: an entry pushed at it
// sorts first and fires on the executor's next pass. Deleting an entry
// without firing it is Cancel's job, not a priority value.
const MinPriority = uint64(0)

// entry is one scheduled item. Cancellation is tracked by the removed
// flag rather than by overloading priority, so MinPriority stays usable
// by callers that want an entry at the front.
type entry struct {
	priority uint64
	value    interface{}
	index    int
	removed  bool
}

type minHeap []*entry

func (h minHeap) Len() int { return len(h) }
func (h minHeap) Less(i, j int) bool {
	return h[i].priority < h[j].priority
}
func (h minHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *minHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Handle identifies a previously scheduled entry so it can be
// cancelled before it fires.
type Handle struct {
	e *entry
}

// TimerQueue is a binary min-heap of deadline-ordered entries served by
// a single background goroutine, which invokes the configured callback
// for each entry whose deadline has elapsed.
type TimerQueue struct {
	worker.Worker

	mu    sync.Mutex
	h     minHeap
	clk   clock.Clock
	wake  chan struct{}
	onFire func(interface{})
}

// NewTimerQueue creates a TimerQueue that invokes onFire for each entry
// once its deadline elapses. Callers must call Start before Push has any
// effect on delivery (Push still succeeds; nothing fires until the
// executor goroutine is running).
func NewTimerQueue(onFire func(interface{})) *TimerQueue {
	return &TimerQueue{
		h:      make(minHeap, 0),
		clk:    clock.System{},
		wake:   make(chan struct{}, 1),
		onFire: onFire,
	}
}

// WithClock overrides the clock, for deterministic tests.
func (q *TimerQueue) WithClock(c clock.Clock) *TimerQueue {
	q.clk = c
	return q
}

// Len returns the number of entries still pending.
func (q *TimerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}

// Push schedules value to fire at the given absolute priority
// (nanosecond deadline). Rescheduling to an earlier time always wakes
// the executor, per spec section 4.5.
func (q *TimerQueue) Push(priority uint64, value interface{}) *Handle {
	q.mu.Lock()
	e := &entry{priority: priority, value: value}
	heap.Push(&q.h, e)
	q.mu.Unlock()
	q.pokeWake()
	return &Handle{e: e}
}

// Peek returns the value of the earliest-deadline entry without
// removing it, or nil if the queue is empty.
func (q *TimerQueue) Peek() interface{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.h.Len() > 0 && q.h[0].removed {
		heap.Pop(&q.h)
	}
	if q.h.Len() == 0 {
		return nil
	}
	return q.h[0].value
}

// Pop removes and returns the earliest-deadline entry's value, or nil
// if the queue is empty. Used when a caller (e.g. an AckNack handler)
// learns independently that the scheduled retransmit is no longer
// necessary and wants to reclaim it synchronously.
func (q *TimerQueue) Pop() interface{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.h.Len() > 0 {
		e := heap.Pop(&q.h).(*entry)
		if e.removed {
			continue
		}
		return e.value
	}
	return nil
}

// Cancel removes a previously scheduled entry without invoking the
// fire callback, implementing the MIN_I64/DELETE reschedule of spec
// section 4.5. Safe to call even if the entry already fired.
func (q *TimerQueue) Cancel(h *Handle) {
	if h == nil || h.e == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if h.e.index < 0 || h.e.index >= len(q.h) || q.h[h.e.index] != h.e {
		return
	}
	h.e.removed = true
	heap.Remove(&q.h, h.e.index)
}

func (q *TimerQueue) pokeWake() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Start launches the executor goroutine. Must be called once.
func (q *TimerQueue) Start() {
	q.Go(q.run)
}

// Stop halts the executor and waits for it to exit.
func (q *TimerQueue) Stop() {
	q.Halt()
	q.Wait()
}

func (q *TimerQueue) run() {
	timer := newStoppedTimer()
	defer timer.Stop()

	for {
		q.mu.Lock()
		for q.h.Len() > 0 && q.h[0].removed {
			heap.Pop(&q.h)
		}
		var wait int64 = math.MaxInt64
		if q.h.Len() > 0 {
			wait = int64(q.h[0].priority)
		}
		now := q.clk.Now()
		q.mu.Unlock()

		if wait == math.MaxInt64 {
			timer.Stop()
			select {
			case <-q.HaltCh():
				return
			case <-q.wake:
				continue
			}
		}

		d := wait - now
		if d <= 0 {
			q.fireDue()
			continue
		}
		timer.Reset(d)
		select {
		case <-q.HaltCh():
			return
		case <-q.wake:
			continue
		case <-timer.C():
			q.fireDue()
		}
	}
}

func (q *TimerQueue) fireDue() {
	now := q.clk.Now()
	for {
		q.mu.Lock()
		for q.h.Len() > 0 && q.h[0].removed {
			heap.Pop(&q.h)
		}
		if q.h.Len() == 0 || int64(q.h[0].priority) > now {
			q.mu.Unlock()
			return
		}
		e := heap.Pop(&q.h).(*entry)
		q.mu.Unlock()
		if !e.removed {
			q.onFire(e.value)
		}
	}
}
