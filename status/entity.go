package status

import (
	"sync"

	"github.com/meridian-dds/meridian/core/guid"
	"github.com/meridian-dds/meridian/match"
)

// EntityStatus aggregates every status-taxonomy counter for one writer,
// reader or topic entity, implementing spec section 4.6's read
// semantics: "get_*_status resets *_change fields and clears the bit
// from the entity's active-status mask; take_status additionally
// clears listener-dispatched bits. Status mask enablement gates
// whether the bit wakes a waitset."
type EntityStatus struct {
	mu sync.Mutex

	enabledMask Kind
	active      Kind
	dispatched  Kind
	onActive    func(Kind)

	matched               MatchedStatus
	livelinessChanged     LivelinessChangedStatus
	livelinessLost        LivelinessLostStatus
	offeredIncompatible   IncompatibleQoSStatus
	requestedIncompatible IncompatibleQoSStatus
	sampleRejected        SampleRejectedStatus
	sampleLost            SampleLostStatus
	offeredDeadlineMissed DeadlineMissedStatus
	reqDeadlineMissed     DeadlineMissedStatus
	inconsistentTopic     InconsistentTopicStatus
}

// NewEntityStatus creates an EntityStatus with every bit enabled.
// onActive, if non-nil, is invoked (outside the lock) whenever a newly
// enabled bit transitions from inactive to active, typically to wake a
// waitset's StatusCondition.
func NewEntityStatus(onActive func(Kind)) *EntityStatus {
	return &EntityStatus{enabledMask: AllKinds, onActive: onActive}
}

// SetEnabledStatuses restricts which bits this entity tracks; disabled
// bits never become active and never wake a waitset.
func (e *EntityStatus) SetEnabledStatuses(mask Kind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabledMask = mask
}

// ActiveStatuses returns the currently active (unread) status bits.
func (e *EntityStatus) ActiveStatuses() Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// raise marks k active if enabled, firing onActive on the inactive ->
// active edge. Must be called without e.mu held.
func (e *EntityStatus) raise(k Kind) {
	e.mu.Lock()
	if e.enabledMask&k == 0 {
		e.mu.Unlock()
		return
	}
	wasActive := e.active&k != 0
	e.active |= k
	e.mu.Unlock()
	if !wasActive && e.onActive != nil {
		e.onActive(k)
	}
}

func guidHandle(g guid.GUID) [16]byte {
	var h [16]byte
	copy(h[:12], g.Prefix[:])
	copy(h[12:], g.Entity[:])
	return h
}

// NotifyMatched records a publication/subscription match transition;
// delta is +1 on match, -1 on unmatch.
func (e *EntityStatus) NotifyMatched(counterpart guid.GUID, delta int32, publication bool) {
	e.mu.Lock()
	if delta > 0 {
		e.matched.TotalCount++
		e.matched.TotalCountChange++
	}
	e.matched.CurrentCount += delta
	e.matched.CurrentCountChange += delta
	e.matched.LastCounterpart = guidHandle(counterpart)
	e.mu.Unlock()
	if publication {
		e.raise(PublicationMatched)
	} else {
		e.raise(SubscriptionMatched)
	}
}

// NotifyLivelinessChanged records a reader-side writer alive/not-alive
// transition.
func (e *EntityStatus) NotifyLivelinessChanged(aliveDelta, notAliveDelta int32, writer guid.GUID) {
	e.mu.Lock()
	if aliveDelta > 0 {
		e.livelinessChanged.AliveCount++
	} else if aliveDelta < 0 {
		e.livelinessChanged.AliveCount--
	}
	if notAliveDelta > 0 {
		e.livelinessChanged.NotAliveCount++
	} else if notAliveDelta < 0 {
		e.livelinessChanged.NotAliveCount--
	}
	e.livelinessChanged.AliveCountChange += aliveDelta
	e.livelinessChanged.NotAliveCountChange += notAliveDelta
	e.livelinessChanged.LastPublicationHandle = guidHandle(writer)
	e.mu.Unlock()
	e.raise(LivelinessChanged)
}

// NotifyLivelinessLost records a writer's own lease lapsing before
// renewal.
func (e *EntityStatus) NotifyLivelinessLost() {
	e.mu.Lock()
	e.livelinessLost.TotalCount++
	e.livelinessLost.TotalCountChange++
	e.mu.Unlock()
	e.raise(LivelinessLost)
}

// NotifyIncompatibleQoS records an offered (writer-side) or requested
// (reader-side) QoS incompatibility.
func (e *EntityStatus) NotifyIncompatibleQoS(offered bool, policy match.PolicyID) {
	e.mu.Lock()
	if offered {
		e.offeredIncompatible.TotalCount++
		e.offeredIncompatible.TotalCountChange++
		e.offeredIncompatible.LastPolicyID = policy
	} else {
		e.requestedIncompatible.TotalCount++
		e.requestedIncompatible.TotalCountChange++
		e.requestedIncompatible.LastPolicyID = policy
	}
	e.mu.Unlock()
	if offered {
		e.raise(OfferedIncompatibleQoS)
	} else {
		e.raise(RequestedIncompatibleQoS)
	}
}

// NotifySampleRejected records an RHC resource-limit rejection or a
// reorder-stage drop folded into the same counter.
func (e *EntityStatus) NotifySampleRejected(reason RejectReason, instance guid.GUID) {
	e.mu.Lock()
	e.sampleRejected.TotalCount++
	e.sampleRejected.TotalCountChange++
	e.sampleRejected.LastReason = reason
	e.sampleRejected.LastInstanceHandle = guidHandle(instance)
	e.mu.Unlock()
	e.raise(SampleRejected)
}

// NotifySampleLost records a sample known (by sequence gap) to have
// existed but never delivered.
func (e *EntityStatus) NotifySampleLost() {
	e.mu.Lock()
	e.sampleLost.TotalCount++
	e.sampleLost.TotalCountChange++
	e.mu.Unlock()
	e.raise(SampleLost)
}

// NotifyDeadlineMissed records an offered (writer-side) or requested
// (reader-side) deadline miss.
func (e *EntityStatus) NotifyDeadlineMissed(offered bool, instance guid.GUID) {
	e.mu.Lock()
	if offered {
		e.offeredDeadlineMissed.TotalCount++
		e.offeredDeadlineMissed.TotalCountChange++
		e.offeredDeadlineMissed.LastInstanceHandle = guidHandle(instance)
	} else {
		e.reqDeadlineMissed.TotalCount++
		e.reqDeadlineMissed.TotalCountChange++
		e.reqDeadlineMissed.LastInstanceHandle = guidHandle(instance)
	}
	e.mu.Unlock()
	if offered {
		e.raise(OfferedDeadlineMissed)
	} else {
		e.raise(RequestedDeadlineMissed)
	}
}

// NotifyInconsistentTopic records a topic redefinition mismatch.
func (e *EntityStatus) NotifyInconsistentTopic() {
	e.mu.Lock()
	e.inconsistentTopic.TotalCount++
	e.inconsistentTopic.TotalCountChange++
	e.mu.Unlock()
	e.raise(InconsistentTopic)
}

// NotifyDataAvailable marks DATA_AVAILABLE active, e.g. on RHC insert.
func (e *EntityStatus) NotifyDataAvailable() { e.raise(DataAvailable) }

// NotifyDataOnReaders marks DATA_ON_READERS active on the owning
// subscriber.
func (e *EntityStatus) NotifyDataOnReaders() { e.raise(DataOnReaders) }

// clearActive clears k's active bit. get_*_status semantics;
// does not touch the dispatched mask.
func (e *EntityStatus) clearActive(k Kind) {
	e.active &^= k
}

// GetMatchedStatus returns the current PUBLICATION_MATCHED /
// SUBSCRIPTION_MATCHED status, resetting its change fields and active
// bit.
func (e *EntityStatus) GetMatchedStatus(publication bool) MatchedStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.matched
	e.matched.TotalCountChange = 0
	e.matched.CurrentCountChange = 0
	if publication {
		e.clearActive(PublicationMatched)
	} else {
		e.clearActive(SubscriptionMatched)
	}
	return out
}

// GetLivelinessChangedStatus returns and resets LIVELINESS_CHANGED.
func (e *EntityStatus) GetLivelinessChangedStatus() LivelinessChangedStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.livelinessChanged
	e.livelinessChanged.AliveCountChange = 0
	e.livelinessChanged.NotAliveCountChange = 0
	e.clearActive(LivelinessChanged)
	return out
}

// GetLivelinessLostStatus returns and resets LIVELINESS_LOST.
func (e *EntityStatus) GetLivelinessLostStatus() LivelinessLostStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.livelinessLost
	e.livelinessLost.TotalCountChange = 0
	e.clearActive(LivelinessLost)
	return out
}

// GetIncompatibleQoSStatus returns and resets the offered or requested
// incompatible-QoS status.
func (e *EntityStatus) GetIncompatibleQoSStatus(offered bool) IncompatibleQoSStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	if offered {
		out := e.offeredIncompatible
		e.offeredIncompatible.TotalCountChange = 0
		e.clearActive(OfferedIncompatibleQoS)
		return out
	}
	out := e.requestedIncompatible
	e.requestedIncompatible.TotalCountChange = 0
	e.clearActive(RequestedIncompatibleQoS)
	return out
}

// GetSampleRejectedStatus returns and resets SAMPLE_REJECTED.
func (e *EntityStatus) GetSampleRejectedStatus() SampleRejectedStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.sampleRejected
	e.sampleRejected.TotalCountChange = 0
	e.clearActive(SampleRejected)
	return out
}

// GetSampleLostStatus returns and resets SAMPLE_LOST.
func (e *EntityStatus) GetSampleLostStatus() SampleLostStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.sampleLost
	e.sampleLost.TotalCountChange = 0
	e.clearActive(SampleLost)
	return out
}

// GetDeadlineMissedStatus returns and resets the offered or requested
// deadline-missed status.
func (e *EntityStatus) GetDeadlineMissedStatus(offered bool) DeadlineMissedStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	if offered {
		out := e.offeredDeadlineMissed
		e.offeredDeadlineMissed.TotalCountChange = 0
		e.clearActive(OfferedDeadlineMissed)
		return out
	}
	out := e.reqDeadlineMissed
	e.reqDeadlineMissed.TotalCountChange = 0
	e.clearActive(RequestedDeadlineMissed)
	return out
}

// GetInconsistentTopicStatus returns and resets INCONSISTENT_TOPIC.
func (e *EntityStatus) GetInconsistentTopicStatus() InconsistentTopicStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.inconsistentTopic
	e.inconsistentTopic.TotalCountChange = 0
	e.clearActive(InconsistentTopic)
	return out
}

// TakeStatuses clears the dispatched mask for k in addition to whatever
// a concurrent get_* call clears, per take_status's stronger semantics
// (spec section 4.6). Call after dispatching k to a listener.
func (e *EntityStatus) TakeStatuses(k Kind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dispatched &^= k
	e.active &^= k
}

// DispatchedStatuses returns the bits still pending listener dispatch.
func (e *EntityStatus) DispatchedStatuses() Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dispatched
}

// MarkDispatched records that a listener callback has fired for k,
// without clearing active (a get_* call still reports the latest
// value until explicitly read).
func (e *EntityStatus) MarkDispatched(k Kind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dispatched |= k
}
