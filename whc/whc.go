// Package whc implements the Writer History Cache of spec section 4.2:
// an indexed, ordered store of published samples with reliability,
// durability and resource-limit semantics. Sequence ordering is kept in
// two structures: a map from sequence number to entry (the source of
// truth for borrow/return) and an AVL-ordered index (see index.go) used
// for fast ordered range scans during trimming, the same
// role an ordered index plays in this codebase's decoy-traffic scheduler.
package whc

import (
	"errors"
	"sync"
	"time"

	"github.com/meridian-dds/meridian/core/guid"
	"github.com/meridian-dds/meridian/sdata"
)

// ErrTimeout is returned by Insert when resource limits blocked the
// call beyond its configured max_blocking_time, per spec section 4.2.
var ErrTimeout = errors.New("whc: insert timed out waiting for resources")

// ErrNotFound is returned by Borrow when the requested sequence number
// was never written or has already been trimmed; the delivery engine
// reacts to this by emitting a Gap.
var ErrNotFound = errors.New("whc: sample not found")

// HistoryKind selects the writer-side HISTORY QoS behavior.
type HistoryKind uint8

const (
	// KeepLast retains at most Depth samples per instance (key).
	KeepLast HistoryKind = iota
	// KeepAll retains every sample until acknowledged and resource
	// limits are satisfied.
	KeepAll
)

// Policy bundles the QoS knobs the WHC enforces.
type Policy struct {
	History         HistoryKind
	Depth           int   // used when History == KeepLast
	MaxSamples      int   // 0 = unlimited
	MaxUnackedBytes int64 // 0 = unlimited, only enforced under KeepAll
}

// Entry is one WHC record, spec section 3's "WHC entry".
type Entry struct {
	Seq            guid.SequenceNumber
	Handle         *sdata.Handle
	KeyHash        sdata.KeyHash
	LifespanExpiry time.Time // zero means "never expires"
	insertedAt     time.Time
}

// State is the non-blocking snapshot get_state() returns for heartbeat
// policy decisions.
type State struct {
	MaxSeq       guid.SequenceNumber
	MinSeq       guid.SequenceNumber
	UnackedBytes int64
	NextSeq      guid.SequenceNumber
}

// WHC is the Writer History Cache.
type WHC struct {
	mu     sync.Mutex
	cond   *sync.Cond
	policy Policy

	entries      map[guid.SequenceNumber]*Entry
	byKey        map[sdata.KeyHash][]guid.SequenceNumber // insertion order, oldest first
	index        *seqIndex
	nextSeq      guid.SequenceNumber
	lowWater     guid.SequenceNumber // lowest sequence still required by any matched reliable reader
	unackedBytes int64
}

// New creates an empty WHC governed by policy.
func New(policy Policy) *WHC {
	w := &WHC{
		policy:  policy,
		entries: make(map[guid.SequenceNumber]*Entry),
		byKey:   make(map[sdata.KeyHash][]guid.SequenceNumber),
		index:   newSeqIndex(),
		nextSeq: 1,
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// full reports whether the cache is at capacity under the current
// policy. Caller holds w.mu.
func (w *WHC) full() bool {
	if w.policy.MaxSamples > 0 && len(w.entries) >= w.policy.MaxSamples {
		return true
	}
	if w.policy.History == KeepAll && w.policy.MaxUnackedBytes > 0 && w.unackedBytes >= w.policy.MaxUnackedBytes {
		return true
	}
	return false
}

// Insert appends a new entry, assigning it the next sequence number.
// It blocks up to maxBlockingTime if the cache is at capacity, waking
// whenever RemoveAckedMessages frees room, and returns ErrTimeout if
// that budget is exhausted first.
func (w *WHC) Insert(data *sdata.Handle, keyHash sdata.KeyHash, lifespan, maxBlockingTime time.Duration) (guid.SequenceNumber, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.full() {
		if maxBlockingTime <= 0 {
			return 0, ErrTimeout
		}
		timer := time.AfterFunc(maxBlockingTime, func() {
			w.mu.Lock()
			w.cond.Broadcast()
			w.mu.Unlock()
		})
		defer timer.Stop()

		deadline := time.Now().Add(maxBlockingTime)
		for w.full() {
			if !time.Now().Before(deadline) {
				return 0, ErrTimeout
			}
			w.cond.Wait()
		}
	}

	seq := w.nextSeq
	w.nextSeq++

	var expiry time.Time
	if lifespan > 0 {
		expiry = time.Now().Add(lifespan)
	}

	e := &Entry{
		Seq:            seq,
		Handle:         data.Ref(),
		KeyHash:        keyHash,
		LifespanExpiry: expiry,
		insertedAt:     time.Now(),
	}
	w.entries[seq] = e
	w.index.insert(int64(seq), e)
	w.byKey[keyHash] = append(w.byKey[keyHash], seq)
	w.unackedBytes += int64(data.PayloadLen())

	if w.policy.History == KeepLast && w.policy.Depth > 0 {
		lst := w.byKey[keyHash]
		for len(lst) > w.policy.Depth {
			old := lst[0]
			lst = lst[1:]
			w.evictLocked(old)
		}
		w.byKey[keyHash] = lst
	}

	return seq, nil
}

// evictLocked removes a sequence from all indexes and wakes any
// blocked Insert call. Caller holds w.mu.
func (w *WHC) evictLocked(seq guid.SequenceNumber) {
	e, ok := w.entries[seq]
	if !ok {
		return
	}
	delete(w.entries, seq)
	w.index.remove(int64(seq))
	w.unackedBytes -= int64(e.Handle.PayloadLen())
	if w.unackedBytes < 0 {
		w.unackedBytes = 0
	}
	e.Handle.Unref()
	w.cond.Broadcast()
}

// BorrowSample lends an entry for retransmission. The entry remains
// valid until ReturnSample is called.
func (w *WHC) BorrowSample(seq guid.SequenceNumber) (*Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entries[seq]
	if !ok {
		return nil, ErrNotFound
	}
	e.Handle.Ref()
	return e, nil
}

// BorrowSampleKey lends the most recently written entry for a key,
// used to resend built-in / transient-local samples by key rather than
// sequence number.
func (w *WHC) BorrowSampleKey(kh sdata.KeyHash) (*Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	lst := w.byKey[kh]
	if len(lst) == 0 {
		return nil, ErrNotFound
	}
	seq := lst[len(lst)-1]
	e, ok := w.entries[seq]
	if !ok {
		return nil, ErrNotFound
	}
	e.Handle.Ref()
	return e, nil
}

// ReturnSample releases a reference acquired via BorrowSample(Key).
func (w *WHC) ReturnSample(e *Entry) {
	e.Handle.Unref()
}

// SetLowWatermark records the lowest sequence number still required by
// any matched reliable reader, as learned from AckNack processing, but
// does not itself trim entries; call RemoveAckedMessages to do that.
func (w *WHC) SetLowWatermark(seq guid.SequenceNumber) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if seq > w.lowWater {
		w.lowWater = seq
	}
}

// RemoveAckedMessages trims entries below loWatermark and returns the
// earliest lifespan expiry still outstanding among surviving entries
// (the zero Time if none), for the caller to schedule the next trim.
func (w *WHC) RemoveAckedMessages(loWatermark guid.SequenceNumber) time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	if loWatermark > w.lowWater {
		w.lowWater = loWatermark
	}

	var toRemove []guid.SequenceNumber
	w.index.ascendRange(0, int64(w.lowWater)-1, func(seq int64, _ *Entry) bool {
		toRemove = append(toRemove, guid.SequenceNumber(seq))
		return true
	})
	for _, seq := range toRemove {
		e := w.entries[seq]
		if e == nil {
			continue
		}
		w.removeFromKeyIndexLocked(e)
		w.evictLocked(seq)
	}

	var earliest time.Time
	for _, e := range w.entries {
		if e.LifespanExpiry.IsZero() {
			continue
		}
		if earliest.IsZero() || e.LifespanExpiry.Before(earliest) {
			earliest = e.LifespanExpiry
		}
	}
	return earliest
}

func (w *WHC) removeFromKeyIndexLocked(e *Entry) {
	lst := w.byKey[e.KeyHash]
	for i, s := range lst {
		if s == e.Seq {
			w.byKey[e.KeyHash] = append(lst[:i], lst[i+1:]...)
			break
		}
	}
}

// GetState returns a non-blocking snapshot for heartbeat scheduling.
func (w *WHC) GetState() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	var minSeq guid.SequenceNumber
	first := true
	for seq := range w.entries {
		if first || seq < minSeq {
			minSeq = seq
			first = false
		}
	}
	return State{
		MaxSeq:       w.nextSeq - 1,
		MinSeq:       minSeq,
		UnackedBytes: w.unackedBytes,
		NextSeq:      w.nextSeq,
	}
}

// Len returns the number of live entries, for tests/diagnostics.
func (w *WHC) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}
