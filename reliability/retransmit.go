package reliability

import (
	"container/list"

	"github.com/meridian-dds/meridian/core/guid"
)

// RetransmitKey identifies one retransmission unit: a whole sample (Frag
// == 0) or a single fragment of one (Frag >= 1).
type RetransmitKey struct {
	Seq  guid.SequenceNumber
	Frag guid.FragmentNumber
}

// retransmitEntry is a queued retransmission, fanning out to every
// reader that has requested it since it was queued.
type retransmitEntry struct {
	key          RetransmitKey
	destinations map[guid.GUID]bool
	bytes        int64
	elem         *list.Element
}

// RetransmitQueue is the writer-side FIFO of spec section 4.5: bounded
// by bytes and message count, merging destinations for a key that is
// already queued rather than duplicating the entry. Grounded on this
// codebase's ARQ resend path, generalized from one peer's pending-resend
// map to a multi-destination merge.
type RetransmitQueue struct {
	maxBytes int64
	maxMsgs  int

	order       *list.List // FIFO order, front = next to send
	byKey       map[RetransmitKey]*retransmitEntry
	totalBytes  int64
	droppedHard int
}

// NewRetransmitQueue creates an empty queue bounded by maxBytes/maxMsgs
// (0 = unbounded).
func NewRetransmitQueue(maxBytes int64, maxMsgs int) *RetransmitQueue {
	return &RetransmitQueue{
		maxBytes: maxBytes,
		maxMsgs:  maxMsgs,
		order:    list.New(),
		byKey:    make(map[RetransmitKey]*retransmitEntry),
	}
}

// full reports whether the hard cap is reached.
func (q *RetransmitQueue) full() bool {
	if q.maxMsgs > 0 && q.order.Len() >= q.maxMsgs {
		return true
	}
	if q.maxBytes > 0 && q.totalBytes >= q.maxBytes {
		return true
	}
	return false
}

// Enqueue requests retransmission of key to dest, approximately
// sizeBytes in size. If key is already queued, dest is merged into its
// destination set at no additional cost. force bypasses the caps (a
// heartbeat-solicited resend the writer must not silently drop);
// without force, a submission arriving once either cap has been reached
// is dropped and counted rather than queued (the byte cap is checked
// against the bytes already queued, not including sizeBytes).
func (q *RetransmitQueue) Enqueue(key RetransmitKey, dest guid.GUID, sizeBytes int64, force bool) bool {
	if e, ok := q.byKey[key]; ok {
		e.destinations[dest] = true
		return true
	}
	if !force && q.full() {
		q.droppedHard++
		return false
	}
	e := &retransmitEntry{
		key:          key,
		destinations: map[guid.GUID]bool{dest: true},
		bytes:        sizeBytes,
	}
	e.elem = q.order.PushBack(e)
	q.byKey[key] = e
	q.totalBytes += sizeBytes
	return true
}

// Dequeue pops the oldest queued retransmission and its accumulated
// destination set, or ok == false if the queue is empty.
func (q *RetransmitQueue) Dequeue() (key RetransmitKey, destinations []guid.GUID, ok bool) {
	front := q.order.Front()
	if front == nil {
		return RetransmitKey{}, nil, false
	}
	e := front.Value.(*retransmitEntry)
	q.order.Remove(front)
	delete(q.byKey, e.key)
	q.totalBytes -= e.bytes
	for d := range e.destinations {
		destinations = append(destinations, d)
	}
	return e.key, destinations, true
}

// Cancel removes a queued retransmission without sending it, used when
// a Gap makes it moot (the sequence has been trimmed from the WHC).
func (q *RetransmitQueue) Cancel(key RetransmitKey) {
	e, ok := q.byKey[key]
	if !ok {
		return
	}
	q.order.Remove(e.elem)
	delete(q.byKey, key)
	q.totalBytes -= e.bytes
}

// Len returns the number of distinct queued retransmission units.
func (q *RetransmitQueue) Len() int {
	return q.order.Len()
}

// DroppedHard returns the count of submissions dropped by the hard cap.
func (q *RetransmitQueue) DroppedHard() int {
	return q.droppedHard
}
