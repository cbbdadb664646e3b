// Package guid implements the entity identifiers of spec section 3:
// a 16-byte GUID split into a 12-byte participant prefix and a 4-byte
// entity id, plus the sequence and fragment number types that key the
// writer history cache and the defragmenter.
package guid

import (
	"encoding/binary"
	"fmt"

	"github.com/gofrs/uuid"
)

const (
	// PrefixLength is the size in bytes of the participant prefix.
	PrefixLength = 12
	// EntityIDLength is the size in bytes of the entity id.
	EntityIDLength = 4
	// Length is the total size of a GUID.
	Length = PrefixLength + EntityIDLength
)

// EntityKind enumerates the reserved low bits of an EntityID, mirroring
// the built-in entity id conventions of spec section 6.
type EntityKind byte

const (
	KindUnknown EntityKind = iota
	KindParticipant
	KindWriterWithKey
	KindWriterNoKey
	KindReaderWithKey
	KindReaderNoKey
	KindPublisher
	KindSubscriber
	// Built-in (discovery/liveliness) endpoints.
	KindBuiltinParticipant
	KindBuiltinPublicationWriter
	KindBuiltinPublicationReader
	KindBuiltinSubscriptionWriter
	KindBuiltinSubscriptionReader
	KindBuiltinTopicWriter
	KindBuiltinTopicReader
	KindBuiltinParticipantMessageWriter
	KindBuiltinParticipantMessageReader
)

// Prefix is the 12-byte participant prefix shared by every entity owned
// by one participant.
type Prefix [PrefixLength]byte

// NewPrefix derives a participant prefix from the first 12 bytes of a
// random (version 4) UUID; the UUID's version and variant bits, which
// sit in bytes 6 and 8, are kept as they are.
func NewPrefix() (Prefix, error) {
	var p Prefix
	id, err := uuid.NewV4()
	if err != nil {
		return p, err
	}
	copy(p[:], id.Bytes())
	return p, nil
}

// EntityID is the 4-byte suffix identifying one entity within a
// participant.
type EntityID [EntityIDLength]byte

// Kind returns the reserved kind tag carried in the low byte, the
// convention used by every built-in entity id in spec section 6.
func (e EntityID) Kind() EntityKind {
	return EntityKind(e[3])
}

// NewEntityID packs a counter and a kind tag into an entity id.
func NewEntityID(counter uint32, kind EntityKind) EntityID {
	var e EntityID
	binary.BigEndian.PutUint32(e[:], counter<<8)
	e[3] = byte(kind)
	return e
}

// GUID is the 16-byte globally unique identifier of spec section 3.
type GUID struct {
	Prefix Prefix
	Entity EntityID
}

// String renders a GUID as a hex string for logging.
func (g GUID) String() string {
	return fmt.Sprintf("%x:%x", g.Prefix[:], g.Entity[:])
}

// Bytes returns the wire-order 16 byte representation.
func (g GUID) Bytes() [Length]byte {
	var b [Length]byte
	copy(b[:PrefixLength], g.Prefix[:])
	copy(b[PrefixLength:], g.Entity[:])
	return b
}

// FromBytes parses a 16 byte slice into a GUID.
func FromBytes(b []byte) (GUID, error) {
	var g GUID
	if len(b) != Length {
		return g, fmt.Errorf("guid: expected %d bytes, got %d", Length, len(b))
	}
	copy(g.Prefix[:], b[:PrefixLength])
	copy(g.Entity[:], b[PrefixLength:])
	return g, nil
}

// Unknown is the GUID_UNKNOWN sentinel used when no writer/reader
// applies.
var Unknown GUID

// SequenceNumber is the signed 64-bit, per-writer monotonically
// increasing sequence number of spec section 3. Numbering starts at 1;
// 0 is reserved as "no sequence number yet".
type SequenceNumber int64

// SequenceNumberUnknown is the sentinel for "not yet assigned".
const SequenceNumberUnknown SequenceNumber = 0

// FragmentNumber is the 1-based 32-bit index of a fragment within a
// fragmented sample.
type FragmentNumber uint32

// FirstFragment is the first valid fragment number.
const FirstFragment FragmentNumber = 1
