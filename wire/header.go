// Package wire implements the RTPS 2.x message and submessage framing
// of spec section 6: a 20-byte message header, a stream of submessages
// each with a 1-byte kind, 1-byte flags and 2-byte octets-to-next-header,
// and the sequence-number-set / fragment-number-set bitmap encodings
// used by Heartbeat, AckNack, Gap and NackFrag.
//
// Bit-exact compatibility with OMG RTPS 2.x is a hard requirement (spec
// section 6); this package therefore hand-rolls binary encoding with
// encoding/binary rather than reusing the CBOR codec used elsewhere in
// this module for logical (non-wire) structures.
package wire

import (
	"encoding/binary"
	"errors"
)

// ProtocolMagic is the fixed 4-byte "RTPS" magic at the start of every
// message.
var ProtocolMagic = [4]byte{'R', 'T', 'P', 'S'}

// HeaderLength is the fixed size of the RTPS message header.
const HeaderLength = 20

// ErrShortBuffer is returned when a buffer is too small to decode.
var ErrShortBuffer = errors.New("wire: buffer too short")

// ErrBadMagic is returned when the protocol magic does not match.
var ErrBadMagic = errors.New("wire: bad protocol magic")

// ProtocolVersion is the {major, minor} RTPS protocol version.
type ProtocolVersion struct {
	Major, Minor uint8
}

// VendorID identifies the implementation that produced a message.
type VendorID [2]byte

// MessageHeader is the fixed 20-byte prefix of every RTPS message:
// magic, version, vendor id, and the source participant's GUID prefix.
type MessageHeader struct {
	Version      ProtocolVersion
	Vendor       VendorID
	GUIDPrefix   [12]byte
}

// Marshal encodes the header into its 20-byte wire form.
func (h MessageHeader) Marshal() []byte {
	b := make([]byte, HeaderLength)
	copy(b[0:4], ProtocolMagic[:])
	b[4] = h.Version.Major
	b[5] = h.Version.Minor
	b[6] = h.Vendor[0]
	b[7] = h.Vendor[1]
	copy(b[8:20], h.GUIDPrefix[:])
	return b
}

// UnmarshalMessageHeader decodes the fixed 20-byte header prefix.
func UnmarshalMessageHeader(b []byte) (MessageHeader, error) {
	var h MessageHeader
	if len(b) < HeaderLength {
		return h, ErrShortBuffer
	}
	if b[0] != ProtocolMagic[0] || b[1] != ProtocolMagic[1] || b[2] != ProtocolMagic[2] || b[3] != ProtocolMagic[3] {
		return h, ErrBadMagic
	}
	h.Version = ProtocolVersion{Major: b[4], Minor: b[5]}
	h.Vendor = VendorID{b[6], b[7]}
	copy(h.GUIDPrefix[:], b[8:20])
	return h, nil
}

// SubmessageKind identifies the kind of a submessage, spec section 6.
type SubmessageKind uint8

const (
	KindPad               SubmessageKind = 0x01
	KindAckNack           SubmessageKind = 0x06
	KindHeartbeat         SubmessageKind = 0x07
	KindGap               SubmessageKind = 0x08
	KindInfoTS            SubmessageKind = 0x09
	KindInfoSrc           SubmessageKind = 0x0c
	KindInfoDst           SubmessageKind = 0x0e
	KindData              SubmessageKind = 0x15
	KindDataFrag          SubmessageKind = 0x16
	KindNackFrag          SubmessageKind = 0x12
	KindHeartbeatFrag     SubmessageKind = 0x13
	// Vendor-specific submessage kinds, reserved range per spec section 6.
	KindPTMsgLen          SubmessageKind = 0x80
	KindPTInfoContainer   SubmessageKind = 0x81
	KindPTEntityID        SubmessageKind = 0x82
)

// Submessage flag bits common to every kind.
const (
	FlagEndianness uint8 = 1 << 0
)

// SubmessageHeader is the 4-byte header preceding every submessage
// body: kind, flags (bit 0 = little-endian), and the length of the
// body in octets (0 means "extends to the end of the message").
type SubmessageHeader struct {
	Kind                 SubmessageKind
	Flags                uint8
	OctetsToNextHeader   uint16
}

func (h SubmessageHeader) order() binary.ByteOrder {
	if h.Flags&FlagEndianness != 0 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// LittleEndian reports whether the submessage body is little-endian.
func (h SubmessageHeader) LittleEndian() bool {
	return h.Flags&FlagEndianness != 0
}

// Marshal encodes the 4-byte submessage header using its own
// endianness flag for the length field, as RTPS requires.
func (h SubmessageHeader) Marshal() []byte {
	b := make([]byte, 4)
	b[0] = byte(h.Kind)
	b[1] = h.Flags
	h.order().PutUint16(b[2:4], h.OctetsToNextHeader)
	return b
}

// UnmarshalSubmessageHeader decodes a 4-byte submessage header.
func UnmarshalSubmessageHeader(b []byte) (SubmessageHeader, error) {
	var h SubmessageHeader
	if len(b) < 4 {
		return h, ErrShortBuffer
	}
	h.Kind = SubmessageKind(b[0])
	h.Flags = b[1]
	h.OctetsToNextHeader = h.order().Uint16(b[2:4])
	return h, nil
}

// SplitSubmessages walks a message body and returns the raw bytes
// (header+payload) of each submessage it contains. A final submessage
// with OctetsToNextHeader == 0 extends to the end of the buffer.
func SplitSubmessages(body []byte) ([][]byte, error) {
	var out [][]byte
	for len(body) > 0 {
		hdr, err := UnmarshalSubmessageHeader(body)
		if err != nil {
			return nil, err
		}
		total := 4 + int(hdr.OctetsToNextHeader)
		if hdr.OctetsToNextHeader == 0 {
			total = len(body)
		}
		if total > len(body) {
			return nil, ErrShortBuffer
		}
		out = append(out, body[:total])
		body = body[total:]
	}
	return out, nil
}
