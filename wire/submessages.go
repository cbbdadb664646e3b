package wire

import "encoding/binary"

// EntityIDBytes is the 4-byte wire form of a reader/writer entity id
// within a submessage body (not the full GUID — the prefix is implicit
// from INFO_SRC/the message header).
type EntityIDBytes [4]byte

// HeartbeatFlagFinal and HeartbeatFlagLiveliness are the HEARTBEAT
// submessage flags of spec section 4.5: FINAL suppresses the solicited
// AckNack, LIVELINESS marks the heartbeat as a liveliness assertion
// rather than a data availability one.
const (
	HeartbeatFlagFinal      uint8 = 1 << 1
	HeartbeatFlagLiveliness uint8 = 1 << 2
)

// Heartbeat is the HEARTBEAT submessage body: the writer's advertised
// [firstSeq, lastSeq] range plus a count used to detect duplicates.
type Heartbeat struct {
	ReaderID  EntityIDBytes
	WriterID  EntityIDBytes
	FirstSeq  int64
	LastSeq   int64
	Count     int32
	Final     bool
	Liveliness bool
}

// Marshal encodes the Heartbeat body (big-endian).
func (h Heartbeat) Marshal() []byte {
	b := make([]byte, 4+4+8+8+4)
	copy(b[0:4], h.ReaderID[:])
	copy(b[4:8], h.WriterID[:])
	binary.BigEndian.PutUint64(b[8:16], uint64(h.FirstSeq))
	binary.BigEndian.PutUint64(b[16:24], uint64(h.LastSeq))
	binary.BigEndian.PutUint32(b[24:28], uint32(h.Count))
	return b
}

// UnmarshalHeartbeat decodes a Heartbeat body. flags carries the
// submessage header's flag byte so Final/Liveliness can be derived.
func UnmarshalHeartbeat(b []byte, flags uint8) (Heartbeat, error) {
	var h Heartbeat
	if len(b) < 28 {
		return h, ErrShortBuffer
	}
	copy(h.ReaderID[:], b[0:4])
	copy(h.WriterID[:], b[4:8])
	h.FirstSeq = int64(binary.BigEndian.Uint64(b[8:16]))
	h.LastSeq = int64(binary.BigEndian.Uint64(b[16:24]))
	h.Count = int32(binary.BigEndian.Uint32(b[24:28]))
	h.Final = flags&HeartbeatFlagFinal != 0
	h.Liveliness = flags&HeartbeatFlagLiveliness != 0
	return h, nil
}

// AckNackFlagFinal marks an AckNack as not requiring a reply Heartbeat.
const AckNackFlagFinal uint8 = 1 << 1

// AckNack is the ACKNACK submessage body: the reader's acknowledged
// base sequence plus a bitmap of additionally-missing sequences.
type AckNack struct {
	ReaderID EntityIDBytes
	WriterID EntityIDBytes
	ReaderSNState *SequenceNumberSet
	Count    int32
	Final    bool
}

// Marshal encodes the AckNack body.
func (a AckNack) Marshal() []byte {
	body := a.ReaderSNState.Marshal()
	b := make([]byte, 4+4+len(body)+4)
	copy(b[0:4], a.ReaderID[:])
	copy(b[4:8], a.WriterID[:])
	copy(b[8:8+len(body)], body)
	binary.BigEndian.PutUint32(b[8+len(body):12+len(body)], uint32(a.Count))
	return b
}

// UnmarshalAckNack decodes an AckNack body.
func UnmarshalAckNack(b []byte, flags uint8) (AckNack, error) {
	var a AckNack
	if len(b) < 8 {
		return a, ErrShortBuffer
	}
	copy(a.ReaderID[:], b[0:4])
	copy(a.WriterID[:], b[4:8])
	set, n, err := UnmarshalSequenceNumberSet(b[8:])
	if err != nil {
		return a, err
	}
	off := 8 + n
	if len(b) < off+4 {
		return a, ErrShortBuffer
	}
	a.ReaderSNState = set
	a.Count = int32(binary.BigEndian.Uint32(b[off : off+4]))
	a.Final = flags&AckNackFlagFinal != 0
	return a, nil
}

// Gap is the GAP submessage body: a writer's declaration that it will
// never send the sequences in [GapStart, GapList.Base) union the bits
// set in GapList.
type Gap struct {
	ReaderID EntityIDBytes
	WriterID EntityIDBytes
	GapStart int64
	GapList  *SequenceNumberSet
}

// Marshal encodes the Gap body.
func (g Gap) Marshal() []byte {
	list := g.GapList.Marshal()
	b := make([]byte, 4+4+8+len(list))
	copy(b[0:4], g.ReaderID[:])
	copy(b[4:8], g.WriterID[:])
	binary.BigEndian.PutUint64(b[8:16], uint64(g.GapStart))
	copy(b[16:], list)
	return b
}

// UnmarshalGap decodes a Gap body.
func UnmarshalGap(b []byte) (Gap, error) {
	var g Gap
	if len(b) < 16 {
		return g, ErrShortBuffer
	}
	copy(g.ReaderID[:], b[0:4])
	copy(g.WriterID[:], b[4:8])
	g.GapStart = int64(binary.BigEndian.Uint64(b[8:16]))
	set, _, err := UnmarshalSequenceNumberSet(b[16:])
	if err != nil {
		return g, err
	}
	g.GapList = set
	return g, nil
}

// NackFrag is the NACK_FRAG submessage body: the fragments of one
// sample the reader is still missing.
type NackFrag struct {
	ReaderID   EntityIDBytes
	WriterID   EntityIDBytes
	WriterSN   int64
	FragmentNumberState *FragmentNumberSet
	Count      int32
}

// Marshal encodes the NackFrag body.
func (n NackFrag) Marshal() []byte {
	set := n.FragmentNumberState.Marshal()
	b := make([]byte, 4+4+8+len(set)+4)
	copy(b[0:4], n.ReaderID[:])
	copy(b[4:8], n.WriterID[:])
	binary.BigEndian.PutUint64(b[8:16], uint64(n.WriterSN))
	copy(b[16:16+len(set)], set)
	binary.BigEndian.PutUint32(b[16+len(set):20+len(set)], uint32(n.Count))
	return b
}

// UnmarshalNackFrag decodes a NackFrag body.
func UnmarshalNackFrag(b []byte) (NackFrag, error) {
	var n NackFrag
	if len(b) < 16 {
		return n, ErrShortBuffer
	}
	copy(n.ReaderID[:], b[0:4])
	copy(n.WriterID[:], b[4:8])
	n.WriterSN = int64(binary.BigEndian.Uint64(b[8:16]))
	set, off, err := UnmarshalFragmentNumberSet(b[16:])
	if err != nil {
		return n, err
	}
	off += 16
	if len(b) < off+4 {
		return n, ErrShortBuffer
	}
	n.FragmentNumberState = set
	n.Count = int32(binary.BigEndian.Uint32(b[off : off+4]))
	return n, nil
}

// ParticipantMessageKind distinguishes the two PMD liveliness kinds of
// spec section 6.
type ParticipantMessageKind uint32

const (
	PMDAutomaticLivelinessUpdate ParticipantMessageKind = 1
	PMDManualLivelinessUpdate    ParticipantMessageKind = 2
)

// ParticipantMessageData is the PMD payload: a 16-byte participant
// prefix, a 4-byte big-endian kind, and a length-prefixed value.
type ParticipantMessageData struct {
	ParticipantPrefix [12]byte
	Kind              ParticipantMessageKind
	Value             []byte
}

// Marshal encodes the PMD payload.
func (p ParticipantMessageData) Marshal() []byte {
	b := make([]byte, 12+4+4+len(p.Value))
	copy(b[0:12], p.ParticipantPrefix[:])
	binary.BigEndian.PutUint32(b[12:16], uint32(p.Kind))
	binary.BigEndian.PutUint32(b[16:20], uint32(len(p.Value)))
	copy(b[20:], p.Value)
	return b
}

// UnmarshalParticipantMessageData decodes a PMD payload.
func UnmarshalParticipantMessageData(b []byte) (ParticipantMessageData, error) {
	var p ParticipantMessageData
	if len(b) < 20 {
		return p, ErrShortBuffer
	}
	copy(p.ParticipantPrefix[:], b[0:12])
	p.Kind = ParticipantMessageKind(binary.BigEndian.Uint32(b[12:16]))
	n := binary.BigEndian.Uint32(b[16:20])
	if uint32(len(b)-20) < n {
		return p, ErrShortBuffer
	}
	p.Value = append([]byte(nil), b[20:20+n]...)
	return p, nil
}
