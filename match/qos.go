// Package match implements the QoS-compatibility matching and
// liveliness engine of spec section 4.6: writer/reader compatibility
// testing, and the three liveliness kinds with lease tracking; the
// match/liveliness counters themselves live in the status package,
// updated by listeners of this package's events. Discovery itself
// (SPDP/SEDP) is out of scope per spec section 1 and modeled as an
// external MatchSource feeding candidate pairs into the Matcher.
package match

import "time"

// ReliabilityKind is the RELIABILITY QoS; BestEffort is compatible with
// itself and with a reliable writer, Reliable requires a reliable
// writer.
type ReliabilityKind uint8

const (
	BestEffort ReliabilityKind = iota
	Reliable
)

// DurabilityKind is the DURABILITY QoS, ordered weakest to strongest;
// a reader's durability must be <= its matched writer's.
type DurabilityKind uint8

const (
	Volatile DurabilityKind = iota
	TransientLocal
	Transient
	Persistent
)

// LivelinessKind is the LIVELINESS QoS of spec section 4.6.
type LivelinessKind uint8

const (
	Automatic LivelinessKind = iota
	ManualByParticipant
	ManualByTopic
)

// PolicyID identifies which QoS policy caused an incompatibility, spec
// section 4.6's "offending-policy-id"; OFFERED/REQUESTED_INCOMPATIBLE_QOS
// reports the first one encountered.
type PolicyID uint8

const (
	PolicyNone PolicyID = iota
	PolicyTopic
	PolicyType
	PolicyPartition
	PolicyReliability
	PolicyDurability
	PolicyDeadline
	PolicyLiveliness
)

// QoS bundles the policies the Matcher compares between a writer and a
// reader on the same topic.
type QoS struct {
	Reliability   ReliabilityKind
	Durability    DurabilityKind
	Deadline      time.Duration // 0 means no deadline requested/offered
	Liveliness    LivelinessKind
	LeaseDuration time.Duration
	Partitions    []string
}

// partitionsOverlap reports whether a and b share at least one
// partition name, or both are the default (empty) partition.
func partitionsOverlap(a, b []string) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	set := make(map[string]bool, len(a))
	for _, p := range a {
		set[p] = true
	}
	for _, p := range b {
		if set[p] {
			return true
		}
	}
	return false
}

// Compatible implements spec section 4.6's compatibility test: same
// topic/type is checked by the caller (Matcher only sees same-topic
// candidates); here we check partition overlap, reliability, durability,
// deadline and liveliness ordering. It returns the first incompatible
// policy encountered, PolicyNone if every policy is compatible.
func Compatible(writer, reader QoS) (ok bool, offending PolicyID) {
	if !partitionsOverlap(writer.Partitions, reader.Partitions) {
		return false, PolicyPartition
	}
	// reliability(reader) <= reliability(writer): BEST_EFFORT <= RELIABLE.
	if reader.Reliability == Reliable && writer.Reliability != Reliable {
		return false, PolicyReliability
	}
	// durability(reader) <= durability(writer).
	if reader.Durability > writer.Durability {
		return false, PolicyDurability
	}
	// deadline(reader) >= deadline(writer): the reader must tolerate at
	// least as loose a deadline as the writer offers; 0 means "none
	// requested/offered" and is always satisfied. Note this treats an
	// infinite (0) writer deadline as compatible with any finite reader
	// deadline rather than the reverse.
	if reader.Deadline > 0 && writer.Deadline > 0 && reader.Deadline < writer.Deadline {
		return false, PolicyDeadline
	}
	// liveliness(reader) <= liveliness(writer), kind ordered by strictness
	// (Automatic weakest, ManualByTopic strongest) and lease(reader) >=
	// lease(writer) (a reader asking for a tighter lease than offered is
	// incompatible).
	if reader.Liveliness > writer.Liveliness {
		return false, PolicyLiveliness
	}
	if reader.LeaseDuration > 0 && writer.LeaseDuration > 0 && reader.LeaseDuration < writer.LeaseDuration {
		return false, PolicyLiveliness
	}
	return true, PolicyNone
}
