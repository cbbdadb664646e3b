// Package status implements the per-entity status taxonomy of spec
// section 4.6: the fixed set of counters every writer/reader/topic
// exposes, the get/take-status read semantics that clear change fields
// and active-status bits, and the waitset fan-out the public API polls
// or blocks on. Grounded on client/cborplugin's Event fan-out struct
// (one struct holding every event kind as an optional field) adapted
// from a single connection's event stream into a per-entity counter
// bundle with explicit read-and-clear semantics.
package status

import "github.com/meridian-dds/meridian/match"

// Kind is a bitmask identifying one status taxonomy entry, spec section
// 4.6: "PUBLICATION_MATCHED, SUBSCRIPTION_MATCHED, LIVELINESS_LOST,
// LIVELINESS_CHANGED, OFFERED/REQUESTED_DEADLINE_MISSED,
// OFFERED/REQUESTED_INCOMPATIBLE_QOS, SAMPLE_LOST, SAMPLE_REJECTED,
// INCONSISTENT_TOPIC, DATA_AVAILABLE, DATA_ON_READERS".
type Kind uint32

const (
	PublicationMatched Kind = 1 << iota
	SubscriptionMatched
	LivelinessLost
	LivelinessChanged
	OfferedDeadlineMissed
	RequestedDeadlineMissed
	OfferedIncompatibleQoS
	RequestedIncompatibleQoS
	SampleLost
	SampleRejected
	InconsistentTopic
	DataAvailable
	DataOnReaders
)

// AllKinds is every status bit, used as the default enabled mask for a
// newly created entity.
const AllKinds = PublicationMatched | SubscriptionMatched | LivelinessLost |
	LivelinessChanged | OfferedDeadlineMissed | RequestedDeadlineMissed |
	OfferedIncompatibleQoS | RequestedIncompatibleQoS | SampleLost |
	SampleRejected | InconsistentTopic | DataAvailable | DataOnReaders

// RejectReason mirrors rhc.RejectReason for the SAMPLE_REJECTED status's
// last-reason field, so that status does not import rhc.
type RejectReason uint8

const (
	NotRejected RejectReason = iota
	RejectedBySamplesLimit
	RejectedByInstancesLimit
	RejectedBySamplesPerInstanceLimit
	RejectedByReorder
)

// MatchedStatus is PUBLICATION_MATCHED / SUBSCRIPTION_MATCHED: spec
// section 4.6's total and current counts with their since-last-read
// deltas, plus the GUID of the most recently (un)matched counterpart.
type MatchedStatus struct {
	TotalCount        int32
	TotalCountChange  int32
	CurrentCount      int32
	CurrentCountChange int32
	LastCounterpart    [16]byte
}

// LivelinessChangedStatus is LIVELINESS_CHANGED: alive/not-alive counts
// per spec section 4.6's "expiry transitions alive->not-alive and
// emits liveliness_changed with alive_count_change = -1".
type LivelinessChangedStatus struct {
	AliveCount         int32
	NotAliveCount      int32
	AliveCountChange   int32
	NotAliveCountChange int32
	LastPublicationHandle [16]byte
}

// LivelinessLostStatus is LIVELINESS_LOST, raised at a writer whose own
// lease expired before it renewed.
type LivelinessLostStatus struct {
	TotalCount       int32
	TotalCountChange int32
}

// IncompatibleQoSStatus is OFFERED/REQUESTED_INCOMPATIBLE_QOS: spec
// section 4.6's "the first [offending policy] encountered wins".
type IncompatibleQoSStatus struct {
	TotalCount       int32
	TotalCountChange int32
	LastPolicyID     match.PolicyID
}

// SampleRejectedStatus is SAMPLE_REJECTED, folding reorder-stage drops
// into the same counter per the open question resolved in
// SPEC_FULL.md's Open Questions section.
type SampleRejectedStatus struct {
	TotalCount       int32
	TotalCountChange int32
	LastReason       RejectReason
	LastInstanceHandle [16]byte
}

// SampleLostStatus is SAMPLE_LOST: samples known to have existed (by
// sequence number gap) but never delivered to any reader of an
// instance, distinct from SAMPLE_REJECTED's RHC/reorder-local drops.
type SampleLostStatus struct {
	TotalCount       int32
	TotalCountChange int32
}

// DeadlineMissedStatus is OFFERED/REQUESTED_DEADLINE_MISSED.
type DeadlineMissedStatus struct {
	TotalCount         int32
	TotalCountChange   int32
	LastInstanceHandle [16]byte
}

// InconsistentTopicStatus counts topic redefinitions with a mismatched
// type or key structure.
type InconsistentTopicStatus struct {
	TotalCount       int32
	TotalCountChange int32
}
