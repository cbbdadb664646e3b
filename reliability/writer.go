package reliability

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/meridian-dds/meridian/core/guid"
	"github.com/meridian-dds/meridian/sdata"
	"github.com/meridian-dds/meridian/whc"
	"github.com/meridian-dds/meridian/wire"
)

// Sender is the external collaborator a Writer/Reader uses to actually
// put submessages on the wire; spec section 1 places socket I/O out of
// scope, so this is the seam a transport implementation plugs into.
type Sender interface {
	SendHeartbeat(reader guid.GUID, hb wire.Heartbeat) error
	SendGap(reader guid.GUID, gap wire.Gap) error
	SendAckNack(writer guid.GUID, ack wire.AckNack) error
	SendNackFrag(writer guid.GUID, nack wire.NackFrag) error
	SendRetransmit(reader guid.GUID, seq guid.SequenceNumber, frag guid.FragmentNumber, h *sdata.Handle) error
}

func entityBytes(e guid.EntityID) wire.EntityIDBytes {
	return wire.EntityIDBytes(e)
}

// WriterProxy is the writer's per-matched-reliable-reader bookkeeping of
// spec section 4.5.
type WriterProxy struct {
	ReaderGUID         guid.GUID
	Reliable           bool
	MinSeqAcked        guid.SequenceNumber
	RepliedToCurrentHB bool
	NackFragCount      int32
	NextHBDeadline     int64
	Congested          bool
	TLastNack          int64
	SeqLastNack        guid.SequenceNumber
}

// Writer is the reliable writer-side state machine: one per local
// RTPS writer, tracking every matched reader's proxy, driving
// heartbeat scheduling and reacting to AckNack/NackFrag.
type Writer struct {
	mu sync.Mutex

	guid   guid.GUID
	whc    *whc.WHC
	sender Sender
	log    *log.Logger

	minHeartbeatInterval time.Duration
	proxies              map[guid.GUID]*WriterProxy
	rexmit               *RetransmitQueue
	hbCount              int32
}

// NewWriter creates a Writer fronting whc for local identity g, sending
// via sender, with the given retransmit caps and minimum heartbeat
// interval floor. mylog is derived with a "_WRITER_" prefix, following
// this codebase's logger-per-subsystem convention.
func NewWriter(g guid.GUID, w *whc.WHC, sender Sender, mylog *log.Logger, minHeartbeatInterval time.Duration, maxRexmitBytes int64, maxRexmitMsgs int) *Writer {
	return &Writer{
		guid:                 g,
		whc:                  w,
		sender:               sender,
		log:                  mylog.WithPrefix("_WRITER_"),
		minHeartbeatInterval: minHeartbeatInterval,
		proxies:              make(map[guid.GUID]*WriterProxy),
		rexmit:               NewRetransmitQueue(maxRexmitBytes, maxRexmitMsgs),
	}
}

// AddMatchedReader registers a newly matched reader's proxy.
func (w *Writer) AddMatchedReader(reader guid.GUID, reliable bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.proxies[reader] = &WriterProxy{ReaderGUID: reader, Reliable: reliable}
}

// RemoveMatchedReader drops a reader's proxy, cancelling its pending
// retransmit state; spec section 5's cancellation-on-deletion contract.
func (w *Writer) RemoveMatchedReader(reader guid.GUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.proxies, reader)
	for key, e := range w.rexmit.byKey {
		delete(e.destinations, reader)
		if len(e.destinations) == 0 {
			w.rexmit.Cancel(key)
		}
	}
}

// ShouldSuppressHeartbeat reports whether the writer has nothing to
// send and no unacknowledged data outstanding, in which case a
// heartbeat tick produces no message at all.
func (w *Writer) ShouldSuppressHeartbeat() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	state := w.whc.GetState()
	if state.NextSeq <= 1 {
		return true
	}
	for _, p := range w.proxies {
		if p.Reliable && p.MinSeqAcked < state.MaxSeq {
			return false
		}
	}
	return true
}

// allRepliedLocked reports whether every matched reliable reader has
// replied to the current heartbeat generation.
func (w *Writer) allRepliedLocked() bool {
	for _, p := range w.proxies {
		if p.Reliable && !p.RepliedToCurrentHB {
			return false
		}
	}
	return true
}

// NextHeartbeatInterval computes the next heartbeat tick interval: it
// shrinks as the matched-reader count grows, and backs off once every
// reader has replied, but never below the configured floor. The volume
// of unacknowledged data does not affect the interval.
func (w *Writer) NextHeartbeatInterval() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.allRepliedLocked() {
		return 8 * w.minHeartbeatInterval
	}
	n := len(w.proxies)
	if n == 0 {
		n = 1
	}
	interval := w.minHeartbeatInterval * time.Duration(4/n+1)
	if interval < w.minHeartbeatInterval {
		interval = w.minHeartbeatInterval
	}
	return interval
}

// BuildHeartbeat constructs the HB submessage body for reader, marking
// FINAL when no reply is being solicited (every reader already replied
// to the in-flight generation).
func (w *Writer) BuildHeartbeat(reader guid.GUID) wire.Heartbeat {
	w.mu.Lock()
	defer w.mu.Unlock()
	state := w.whc.GetState()
	w.hbCount++
	final := w.allRepliedLocked()
	for _, p := range w.proxies {
		p.RepliedToCurrentHB = false
	}
	return wire.Heartbeat{
		ReaderID: entityBytes(reader.Entity),
		WriterID: entityBytes(w.guid.Entity),
		FirstSeq: int64(state.MinSeq),
		LastSeq:  int64(state.MaxSeq),
		Count:    w.hbCount,
		Final:    final,
	}
}

// SendHeartbeat ticks the heartbeat schedule for every matched reliable
// reader, skipping the send entirely when ShouldSuppressHeartbeat holds.
func (w *Writer) SendHeartbeat() {
	if w.ShouldSuppressHeartbeat() {
		return
	}
	w.mu.Lock()
	readers := make([]guid.GUID, 0, len(w.proxies))
	for r, p := range w.proxies {
		if p.Reliable {
			readers = append(readers, r)
		}
	}
	w.mu.Unlock()
	for _, r := range readers {
		hb := w.BuildHeartbeat(r)
		if err := w.sender.SendHeartbeat(r, hb); err != nil {
			w.log.Error("send heartbeat", "reader", r, "err", err)
		}
	}
}

// HandleAckNack reacts to an AckNack from reader: advances
// min_seq_acked, schedules retransmission of every NACKed sequence
// (borrowing from the WHC), emits a Gap for sequences already trimmed,
// and marks the reader as having replied to the current heartbeat.
func (w *Writer) HandleAckNack(reader guid.GUID, ack wire.AckNack) {
	w.mu.Lock()
	p, ok := w.proxies[reader]
	if !ok {
		w.mu.Unlock()
		return
	}
	base := guid.SequenceNumber(ack.ReaderSNState.Base)
	if base > p.MinSeqAcked {
		p.MinSeqAcked = base
	}
	p.RepliedToCurrentHB = true
	bits := ack.ReaderSNState.Bits()
	w.mu.Unlock()

	var gapBits []uint32
	for _, i := range bits {
		seq := base + guid.SequenceNumber(i)
		e, err := w.whc.BorrowSample(seq)
		if err != nil {
			gapBits = append(gapBits, i)
			continue
		}
		size := int64(e.Handle.PayloadLen())
		w.rexmit.Enqueue(RetransmitKey{Seq: seq}, reader, size, false)
		w.whc.ReturnSample(e)
	}
	if len(gapBits) > 0 {
		w.emitGap(reader, base, gapBits)
	}
}

// HandleNackFrag reacts to a NackFrag: schedules retransmission of the
// referenced fragments of one sample and bumps the proxy's nackfrag
// counter.
func (w *Writer) HandleNackFrag(reader guid.GUID, nack wire.NackFrag) {
	w.mu.Lock()
	p, ok := w.proxies[reader]
	if ok {
		p.NackFragCount++
	}
	w.mu.Unlock()
	if !ok {
		return
	}
	seq := guid.SequenceNumber(nack.WriterSN)
	e, err := w.whc.BorrowSample(seq)
	if err != nil {
		return
	}
	defer w.whc.ReturnSample(e)
	for _, bit := range nack.FragmentNumberState.Bits() {
		frag := guid.FragmentNumber(nack.FragmentNumberState.Base + bit)
		w.rexmit.Enqueue(RetransmitKey{Seq: seq, Frag: frag}, reader, 0, false)
	}
}

func (w *Writer) emitGap(reader guid.GUID, base guid.SequenceNumber, bits []uint32) {
	var numBits uint32
	for _, b := range bits {
		if b+1 > numBits {
			numBits = b + 1
		}
	}
	set, err := wire.NewSequenceNumberSet(int64(base), numBits)
	if err != nil {
		return
	}
	for _, b := range bits {
		set.Set(b)
	}
	gap := wire.Gap{
		ReaderID: entityBytes(reader.Entity),
		WriterID: entityBytes(w.guid.Entity),
		GapStart: int64(base),
		GapList:  set,
	}
	if err := w.sender.SendGap(reader, gap); err != nil {
		w.log.Error("send gap", "reader", reader, "err", err)
	}
}

// FlushRetransmits drains the retransmit queue, sending each queued
// unit to every accumulated destination.
func (w *Writer) FlushRetransmits() {
	for {
		key, destinations, ok := w.rexmit.Dequeue()
		if !ok {
			return
		}
		e, err := w.whc.BorrowSample(key.Seq)
		if err != nil {
			continue
		}
		for _, dest := range destinations {
			if err := w.sender.SendRetransmit(dest, key.Seq, key.Frag, e.Handle); err != nil {
				w.log.Error("send retransmit", "dest", dest, "err", err)
			}
		}
		w.whc.ReturnSample(e)
	}
}

// LowWatermark returns the lowest min_seq_acked across matched reliable
// readers, the value the writer feeds to whc.SetLowWatermark.
func (w *Writer) LowWatermark() guid.SequenceNumber {
	w.mu.Lock()
	defer w.mu.Unlock()
	var lo guid.SequenceNumber
	first := true
	for _, p := range w.proxies {
		if !p.Reliable {
			continue
		}
		if first || p.MinSeqAcked < lo {
			lo = p.MinSeqAcked
			first = false
		}
	}
	return lo
}
