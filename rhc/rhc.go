// Package rhc implements the Reader History Cache of spec section 4.4:
// per-instance storage of samples received from matched writers, with
// sample/view/instance state tracking, resource-limit enforcement and
// the read/take/peek family of operations. It generalizes the
// instance-keyed frame map this codebase's peer-stream reader uses for
// one connection into the full per-reader instance/sample/view state
// table the spec requires.
package rhc

import (
	"sync"
	"time"

	"github.com/meridian-dds/meridian/core/guid"
	"github.com/meridian-dds/meridian/sdata"
)

// SampleState is whether a sample has been read.
type SampleState uint8

const (
	Read SampleState = iota
	NotRead
)

// ViewState is whether an instance is newly observed since its last
// alive -> not-alive -> alive cycle (or ever, for a brand new
// instance).
type ViewState uint8

const (
	New ViewState = iota
	NotNew
)

// InstanceState is a bitset: Disposed and NoWriters are derived from
// dispose/unregister/lost-writer events; Alive otherwise.
type InstanceState uint8

const (
	Alive InstanceState = 1 << iota
	Disposed
	NoWriters
)

// InstanceHandle is a process-local, reader-stable opaque instance id.
type InstanceHandle uint64

// Mask selects which samples read/take/peek operate over. Zero value
// for each field means ANY.
type Mask struct {
	SampleState   SampleStateMask
	ViewState     ViewStateMask
	InstanceState InstanceState // bitset; 0 means ANY
}

type SampleStateMask uint8

const (
	SampleStateAny SampleStateMask = iota
	SampleStateRead
	SampleStateNotRead
)

type ViewStateMask uint8

const (
	ViewStateAny ViewStateMask = iota
	ViewStateNew
	ViewStateNotNew
)

func (m Mask) matchesSample(s *Sample, inst InstanceState) bool {
	switch m.SampleState {
	case SampleStateRead:
		if s.SampleState != Read {
			return false
		}
	case SampleStateNotRead:
		if s.SampleState != NotRead {
			return false
		}
	}
	switch m.ViewState {
	case ViewStateNew:
		if s.ViewState != New {
			return false
		}
	case ViewStateNotNew:
		if s.ViewState != NotNew {
			return false
		}
	}
	if m.InstanceState != 0 && m.InstanceState&inst == 0 {
		return false
	}
	return true
}

// Sample is one RHC-side record, spec section 3's "Sample (RHC side)".
type Sample struct {
	Handle          *sdata.Handle
	Seq             guid.SequenceNumber
	SourceTimestamp time.Time
	WriterGUID      guid.GUID
	SampleState     SampleState
	ViewState       ViewState
	ValidData       bool
	Instance        InstanceHandle
}

// RejectReason is the precise reason an incoming sample was rejected,
// per spec section 4.4's resource-limit contract.
type RejectReason uint8

const (
	NotRejected RejectReason = iota
	RejectedBySamplesLimit
	RejectedByInstancesLimit
	RejectedBySamplesPerInstanceLimit
	// RejectedByReorder covers a sample the reorder buffer dropped
	// (stale or duplicate, below next_seq) before it ever reached the
	// RHC. Folded into the same sample_rejected counter per the open
	// question in spec section 9.
	RejectedByReorder
)

// NoteReorderDrop records a reorder-stage drop against the same
// rejected-sample counters Insert's resource-limit path uses, so
// sample_rejected reflects drops the RHC itself never saw.
func (r *RHC) NoteReorderDrop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejectedTotal++
	r.lastReject = RejectedByReorder
}

// ResourceLimits mirrors the RHC's RESOURCE_LIMITS QoS; 0 means
// unlimited for each field.
type ResourceLimits struct {
	MaxSamples           int
	MaxInstances         int
	MaxSamplesPerInstance int
}

type instance struct {
	handle  InstanceHandle
	key     sdata.KeyHash
	state   InstanceState
	view    ViewState
	samples []*Sample // reception order
}

// RHC is the Reader History Cache.
type RHC struct {
	mu             sync.Mutex
	limits         ResourceLimits
	byKey          map[sdata.KeyHash]*instance
	byHandle       map[InstanceHandle]*instance
	order          []InstanceHandle // insertion order of instances
	nextHandle     InstanceHandle
	totalSamples   int
	rejectedTotal  int
	lastReject     RejectReason
}

// New creates an empty RHC governed by limits.
func New(limits ResourceLimits) *RHC {
	return &RHC{
		limits:   limits,
		byKey:    make(map[sdata.KeyHash]*instance),
		byHandle: make(map[InstanceHandle]*instance),
	}
}

// RegisterInstance pre-allocates (or returns the existing) instance
// handle for a key, without inserting any sample.
func (r *RHC) RegisterInstance(key sdata.KeyHash) InstanceHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateInstanceLocked(key).handle
}

// LookupInstance returns the instance handle for key if one has been
// observed, which stays stable until the instance is destroyed.
func (r *RHC) LookupInstance(key sdata.KeyHash) (InstanceHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.byKey[key]
	if !ok {
		return 0, false
	}
	return inst.handle, true
}

func (r *RHC) getOrCreateInstanceLocked(key sdata.KeyHash) *instance {
	if inst, ok := r.byKey[key]; ok {
		return inst
	}
	r.nextHandle++
	inst := &instance{handle: r.nextHandle, key: key, state: Alive, view: New}
	r.byKey[key] = inst
	r.byHandle[inst.handle] = inst
	r.order = append(r.order, inst.handle)
	return inst
}

// Insert stores a received sample (or, if validData is false, a
// key-only dispose/unregister arrival) for the instance identified by
// key. The instance's state transitions according to h's StatusInfo:
// UNREGISTERED moves it to NO_WRITERS, DISPOSED (without UNREGISTERED)
// to DISPOSED, otherwise it is (or returns to) ALIVE. Insert returns
// the resulting instance handle, or a non-zero RejectReason if a
// resource limit rejected the sample.
func (r *RHC) Insert(key sdata.KeyHash, h *sdata.Handle, seq guid.SequenceNumber, writer guid.GUID, ts time.Time, validData bool) (InstanceHandle, RejectReason) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, existed := r.byKey[key]
	if !existed {
		if r.limits.MaxInstances > 0 && len(r.byHandle) >= r.limits.MaxInstances {
			r.rejectedTotal++
			r.lastReject = RejectedByInstancesLimit
			return 0, RejectedByInstancesLimit
		}
	}
	inst := r.getOrCreateInstanceLocked(key)

	if r.limits.MaxSamples > 0 && r.totalSamples >= r.limits.MaxSamples {
		r.rejectedTotal++
		r.lastReject = RejectedBySamplesLimit
		return inst.handle, RejectedBySamplesLimit
	}
	if r.limits.MaxSamplesPerInstance > 0 && len(inst.samples) >= r.limits.MaxSamplesPerInstance {
		r.rejectedTotal++
		r.lastReject = RejectedBySamplesPerInstanceLimit
		return inst.handle, RejectedBySamplesPerInstanceLimit
	}

	var derivedState InstanceState
	switch {
	case h.StatusInfo().Unregistered():
		derivedState = NoWriters
	case h.StatusInfo().Disposed():
		derivedState = Disposed
	default:
		derivedState = Alive
	}

	wasNotAlive := inst.state&Alive == 0
	inst.state = derivedState
	if wasNotAlive && inst.state&Alive != 0 {
		inst.view = New
	}

	s := &Sample{
		Handle:          h,
		Seq:             seq,
		SourceTimestamp: ts,
		WriterGUID:      writer,
		SampleState:     NotRead,
		ViewState:       inst.view,
		ValidData:       validData,
		Instance:        inst.handle,
	}
	inst.samples = append(inst.samples, s)
	r.totalSamples++
	return inst.handle, NotRejected
}

// collect walks instances in insertion order, each instance's samples
// in reception order, calling visit for every match. visit returns
// false to stop early.
func (r *RHC) collect(mask Mask, maxN int, visit func(inst *instance, idx int, s *Sample) bool) {
	count := 0
	for _, handle := range r.order {
		inst := r.byHandle[handle]
		for idx := 0; idx < len(inst.samples); idx++ {
			if maxN > 0 && count >= maxN {
				return
			}
			s := inst.samples[idx]
			if !mask.matchesSample(s, inst.state) {
				continue
			}
			if !visit(inst, idx, s) {
				return
			}
			count++
		}
	}
}

// Read returns up to maxN matching samples (0 = unlimited),
// transitioning each to READ and its instance's view state to NOT_NEW.
func (r *RHC) Read(mask Mask, maxN int) []*Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Sample
	r.collect(mask, maxN, func(inst *instance, idx int, s *Sample) bool {
		s.SampleState = Read
		inst.view = NotNew
		out = append(out, s)
		return true
	})
	return out
}

// Peek is like Read but never mutates sample or view state.
func (r *RHC) Peek(mask Mask, maxN int) []*Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Sample
	r.collect(mask, maxN, func(inst *instance, idx int, s *Sample) bool {
		out = append(out, s)
		return true
	})
	return out
}

// sampleHit pairs a matched sample's position with its owning
// instance, for batched removal after a Take scan completes.
type sampleHit struct {
	inst *instance
	idx  int
}

// Take is Read's destructive counterpart: matched samples are removed
// from the RHC after being returned.
func (r *RHC) Take(mask Mask, maxN int) []*Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	var hits []sampleHit
	var out []*Sample
	r.collect(mask, maxN, func(inst *instance, idx int, s *Sample) bool {
		inst.view = NotNew
		out = append(out, s)
		hits = append(hits, sampleHit{inst, idx})
		return true
	})
	r.removeHitsLocked(hits)
	return out
}

func (r *RHC) removeHitsLocked(hits []sampleHit) {
	byInst := make(map[*instance][]int)
	for _, h := range hits {
		byInst[h.inst] = append(byInst[h.inst], h.idx)
	}
	for inst, idxs := range byInst {
		remove := make(map[int]bool, len(idxs))
		for _, i := range idxs {
			remove[i] = true
		}
		kept := inst.samples[:0]
		for i, s := range inst.samples {
			if !remove[i] {
				kept = append(kept, s)
			}
		}
		r.totalSamples -= len(inst.samples) - len(kept)
		inst.samples = kept
	}
}

// ReadInstance/TakeInstance restrict Read/Take to one instance.
func (r *RHC) ReadInstance(handle InstanceHandle, mask Mask, maxN int) []*Sample {
	return r.instanceOp(handle, mask, maxN, false)
}

func (r *RHC) TakeInstance(handle InstanceHandle, mask Mask, maxN int) []*Sample {
	return r.instanceOp(handle, mask, maxN, true)
}

func (r *RHC) instanceOp(handle InstanceHandle, mask Mask, maxN int, destructive bool) []*Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.byHandle[handle]
	if !ok {
		return nil
	}
	var out []*Sample
	var idxs []int
	count := 0
	for idx, s := range inst.samples {
		if maxN > 0 && count >= maxN {
			break
		}
		if !mask.matchesSample(s, inst.state) {
			continue
		}
		if !destructive {
			s.SampleState = Read
		}
		inst.view = NotNew
		out = append(out, s)
		idxs = append(idxs, idx)
		count++
	}
	if destructive && len(idxs) > 0 {
		remove := make(map[int]bool, len(idxs))
		for _, i := range idxs {
			remove[i] = true
		}
		kept := inst.samples[:0]
		for i, s := range inst.samples {
			if !remove[i] {
				kept = append(kept, s)
			}
		}
		r.totalSamples -= len(inst.samples) - len(kept)
		inst.samples = kept
	}
	return out
}

// Collector receives each matching sample along with its sample_rank:
// the count of additional matching samples of the same instance
// remaining after it. A negative return value aborts the scan with
// that code, unless at least one sample was already collected, in
// which case ReadWithCollector returns the partial count instead.
type Collector func(s *Sample, sampleRank int) int

// ReadWithCollector streams up to maxN matching samples to fn in
// delivery order.
func (r *RHC) ReadWithCollector(mask Mask, maxN int, fn Collector) (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	collected := 0
	for _, handle := range r.order {
		inst := r.byHandle[handle]
		matches := make([]int, 0, len(inst.samples))
		for idx, s := range inst.samples {
			if mask.matchesSample(s, inst.state) {
				matches = append(matches, idx)
			}
		}
		for rank, idx := range matches {
			if maxN > 0 && collected >= maxN {
				return collected, 0
			}
			s := inst.samples[idx]
			sampleRank := len(matches) - rank - 1
			code := fn(s, sampleRank)
			if code < 0 {
				if collected > 0 {
					return collected, 0
				}
				return collected, code
			}
			s.SampleState = Read
			inst.view = NotNew
			collected++
		}
	}
	return collected, 0
}

// RejectedTotal and LastRejectReason report the status counters spec
// section 4.4 ties to sample_rejected.
func (r *RHC) RejectedTotal() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rejectedTotal
}

func (r *RHC) LastRejectReason() RejectReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastReject
}

// Len returns the total number of live samples across all instances.
func (r *RHC) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalSamples
}

// InstanceCount returns the number of known instances.
func (r *RHC) InstanceCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byHandle)
}
