// Package sdata implements the serialized-data handle of spec section
// 4.1: a reference-counted, opaque representation of one sample as it
// moves from the publish path through the WHC, the wire, the
// defragmenter/reorder stage and into the RHC. Handles are immutable
// after construction; only the reference count is mutable, guarded by
// atomics so borrow/return can happen from the receive thread and a
// retransmit thread concurrently (spec section 5).
package sdata

import (
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"
)

// Kind distinguishes a data sample, a key-only (dispose/unregister)
// sample, and an empty placeholder that carries no payload.
type Kind uint8

const (
	KindData Kind = iota
	KindKey
	KindEmpty
)

// StatusInfo carries the dispose/unregister bits of spec section 4.1,
// derived from a writer's dispose_with_timestamp / unregister_instance
// calls. Only DISPOSED and UNREGISTERED are defined; there is no
// separate auto-dispose bit.
type StatusInfo uint32

const (
	StatusDisposed    StatusInfo = 1 << 0
	StatusUnregistered StatusInfo = 1 << 1
)

// Disposed reports whether the DISPOSED bit is set.
func (s StatusInfo) Disposed() bool { return s&StatusDisposed != 0 }

// Unregistered reports whether the UNREGISTERED bit is set.
func (s StatusInfo) Unregistered() bool { return s&StatusUnregistered != 0 }

// KeyHash is the stable 128-bit digest of a sample's key fields.
type KeyHash [16]byte

// Handle is the reference-counted sample representation shared by the
// WHC, the reorder buffer and the RHC.
type Handle struct {
	kind      Kind
	payload   []byte // CDR/logical payload; empty for KindKey and KindEmpty
	keyHash   KeyHash
	timestamp time.Time
	status    StatusInfo
	refcount  int32
}

// FromSample builds a data-bearing handle from a user sample, encoding
// it with CBOR (the logical, non-wire representation; spec section 6's
// bit-exact RTPS CDR framing is handled separately by the wire
// package). The caller supplies the key hash since deriving it requires
// type-specific knowledge of which fields are key fields.
func FromSample(sample interface{}, keyHash KeyHash, ts time.Time) (*Handle, error) {
	payload, err := cbor.Marshal(sample)
	if err != nil {
		return nil, err
	}
	return &Handle{
		kind:      KindData,
		payload:   payload,
		keyHash:   keyHash,
		timestamp: ts,
		refcount:  1,
	}, nil
}

// FromRawPayload builds a data-bearing handle directly from bytes
// already in their wire-serialized form, bypassing CBOR encoding. This
// is the constructor the Defragmenter/Reorder receive path uses: the
// bytes it assembles are the writer's original CDR payload, which must
// reach the RHC unmodified rather than being re-wrapped.
func FromRawPayload(payload []byte, keyHash KeyHash, ts time.Time) *Handle {
	return &Handle{
		kind:      KindData,
		payload:   payload,
		keyHash:   keyHash,
		timestamp: ts,
		refcount:  1,
	}
}

// FromKey builds a key-only ("invalid sample") handle carrying just
// enough to identify the instance, used to surface dispose/unregister
// events a reader would otherwise never observe.
func FromKey(keyHash KeyHash, status StatusInfo, ts time.Time) *Handle {
	return &Handle{
		kind:      KindKey,
		keyHash:   keyHash,
		timestamp: ts,
		status:    status,
		refcount:  1,
	}
}

// Empty returns a KindEmpty placeholder handle carrying no payload,
// key hash or status bits.
func Empty() *Handle {
	return &Handle{kind: KindEmpty, refcount: 1}
}

// Kind returns the handle's kind.
func (h *Handle) Kind() Kind { return h.kind }

// HasData reports whether this handle carries a (possibly
// zero-length) data payload, distinct from KindKey/KindEmpty. This
// resolves the zero-length-blob open question of spec section 9: a
// zero-length DATA payload still reports HasData() == true.
func (h *Handle) HasData() bool { return h.kind == KindData }

// KeyHash returns the handle's 128-bit key digest.
func (h *Handle) KeyHash() KeyHash { return h.keyHash }

// Timestamp returns the handle's source timestamp.
func (h *Handle) Timestamp() time.Time { return h.timestamp }

// StatusInfo returns the dispose/unregister bits.
func (h *Handle) StatusInfo() StatusInfo { return h.status }

// PayloadLen returns the number of payload bytes (0 for KindKey and
// KindEmpty), used by the WHC to track unacked byte totals.
func (h *Handle) PayloadLen() int { return len(h.payload) }

// ToIOVec returns a borrowed (not copied) slice of the payload
// [off:off+length), for zero-copy transmit. The returned slice is only
// valid while the handle is referenced.
func (h *Handle) ToIOVec(off, length int) []byte {
	if off < 0 || length < 0 || off+length > len(h.payload) {
		return nil
	}
	return h.payload[off : off+length]
}

// ToSample deserializes the handle's payload into buf, returning false
// if the handle carries no data (KindKey/KindEmpty) or decoding fails.
func (h *Handle) ToSample(buf interface{}) bool {
	if h.kind != KindData {
		return false
	}
	return cbor.Unmarshal(h.payload, buf) == nil
}

// Ref increments the reference count and returns the same handle, for
// fluent borrow call sites.
func (h *Handle) Ref() *Handle {
	atomic.AddInt32(&h.refcount, 1)
	return h
}

// Unref decrements the reference count, returning true if this was the
// final reference.
func (h *Handle) Unref() bool {
	return atomic.AddInt32(&h.refcount, -1) == 0
}

// RefCount returns the current reference count, for tests/diagnostics.
func (h *Handle) RefCount() int32 {
	return atomic.LoadInt32(&h.refcount)
}

// ComputeKeyHash derives the 128-bit stable digest of a key's
// canonical byte encoding, per spec section 3 ("an opaque byte string
// with an associated stable 128-bit hash").
func ComputeKeyHash(keyBytes []byte) KeyHash {
	sum := blake2b.Sum256(keyBytes)
	var kh KeyHash
	copy(kh[:], sum[:16])
	return kh
}
