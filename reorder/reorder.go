// Package reorder implements the per-proxy-writer Reorder buffer of
// spec section 4.3: it tracks the lowest unseen sequence number,
// buffers samples that arrive out of order, and bounds the buffer with
// a KEEP_LAST sliding window. The next_seq/buffered-window shape is
// grounded on this codebase's reliable stream reader(), which tracks a
// read cursor and an ack cursor over a bounded window of frames;
// Reorder generalizes that single ack cursor into full gap-aware
// reassembly plus a NACK bitmap producer for AckNack.
package reorder

import (
	"github.com/yawning/bloom"

	"github.com/meridian-dds/meridian/core/guid"
	"github.com/meridian-dds/meridian/sdata"
)

// Decision is the outcome of Insert.
type Decision uint8

const (
	// Accept means the sample was taken: either delivered now (with any
	// now-contiguous buffered samples) or buffered until the gap before
	// it closes.
	Accept Decision = iota
	// Reject means the sample is a duplicate or falls below next_seq
	// and must be dropped.
	Reject
	// Replace means the sample displaced an older buffered sample
	// under the sliding window (KEEP_LAST), which the caller should
	// drop.
	Replace
)

// Reorder buffers out-of-order samples for one proxy writer (or one
// (proxy-writer, reader) pair catching up on transient-local data).
type Reorder struct {
	nextSeq    guid.SequenceNumber
	maxSamples int
	buffered   map[guid.SequenceNumber]*sdata.Handle
	seen       *bloom.BloomFilter // recently-delivered dedup filter
}

// New creates a Reorder buffer starting at sequence 1, bounded to
// maxSamples buffered out-of-order entries.
func New(maxSamples int) *Reorder {
	return &Reorder{
		nextSeq:    1,
		maxSamples: maxSamples,
		buffered:   make(map[guid.SequenceNumber]*sdata.Handle),
		seen:       bloom.New(4096, 4),
	}
}

func dedupKey(seq guid.SequenceNumber) []byte {
	var b [8]byte
	v := uint64(seq)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v)
		v >>= 8
	}
	return b[:]
}

// Insert offers a received sample at seq. It returns the decision plus
// the in-order run of handles (possibly including seq itself) that can
// now be delivered, in ascending sequence order.
func (r *Reorder) Insert(seq guid.SequenceNumber, h *sdata.Handle) (Decision, []*sdata.Handle) {
	if seq < r.nextSeq {
		return Reject, nil
	}
	if r.seen.Test(dedupKey(seq)) {
		return Reject, nil
	}
	if _, dup := r.buffered[seq]; dup {
		return Reject, nil
	}

	decision := Accept
	if r.maxSamples > 0 && len(r.buffered) >= r.maxSamples && seq != r.nextSeq {
		// Window full: evict the highest buffered sequence to make room,
		// a KEEP_LAST sliding window over the out-of-order backlog.
		var maxSeq guid.SequenceNumber
		first := true
		for s := range r.buffered {
			if first || s > maxSeq {
				maxSeq = s
				first = false
			}
		}
		if maxSeq > seq {
			// The new sample is older than the highest buffered one; drop
			// it instead of evicting.
			return Reject, nil
		}
		delete(r.buffered, maxSeq)
		decision = Replace
	}

	if seq == r.nextSeq {
		r.seen.Add(dedupKey(seq))
		r.nextSeq++
		out := []*sdata.Handle{h}
		for {
			next, ok := r.buffered[r.nextSeq]
			if !ok {
				break
			}
			delete(r.buffered, r.nextSeq)
			r.seen.Add(dedupKey(r.nextSeq))
			out = append(out, next)
			r.nextSeq++
		}
		return decision, out
	}

	r.buffered[seq] = h
	return decision, nil
}

// Gap advances next_seq past a writer-declared gap covering
// [lo, hi), releasing in-order delivery of any buffered samples that
// become contiguous as a result.
func (r *Reorder) Gap(lo, hi guid.SequenceNumber) []*sdata.Handle {
	if hi > r.nextSeq && lo <= r.nextSeq {
		r.nextSeq = hi
	}
	var out []*sdata.Handle
	for {
		next, ok := r.buffered[r.nextSeq]
		if !ok {
			break
		}
		delete(r.buffered, r.nextSeq)
		r.seen.Add(dedupKey(r.nextSeq))
		out = append(out, next)
		r.nextSeq++
	}
	return out
}

// NackMap reports the sequences in [r.nextSeq, endSeq] still missing,
// up to maxBits entries. If notail is set (the delivery queue is under
// pressure) the bitmap is truncated at the first missing sample so the
// reader does not request data it cannot yet ingest.
func (r *Reorder) NackMap(endSeq guid.SequenceNumber, maxBits int, notail bool) []guid.SequenceNumber {
	var missing []guid.SequenceNumber
	for seq := r.nextSeq; seq <= endSeq && len(missing) < maxBits; seq++ {
		if _, ok := r.buffered[seq]; ok {
			continue
		}
		missing = append(missing, seq)
		if notail {
			break
		}
	}
	return missing
}

// NextSeq returns the lowest sequence number not yet delivered.
func (r *Reorder) NextSeq() guid.SequenceNumber {
	return r.nextSeq
}

// Buffered returns the number of out-of-order samples currently held.
func (r *Reorder) Buffered() int {
	return len(r.buffered)
}
