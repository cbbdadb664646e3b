package reliability

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/meridian-dds/meridian/core/guid"
	"github.com/meridian-dds/meridian/wire"
)

// NackMapSource is the subset of reorder.Reorder a ReaderProxy consults
// to build an AckNack: the lowest unseen sequence and the missing-range
// bitmap. Kept as an interface (rather than importing *reorder.Reorder
// directly into ReaderProxy's field) so tests can supply a fake.
type NackMapSource interface {
	NextSeq() guid.SequenceNumber
	NackMap(endSeq guid.SequenceNumber, maxBits int, notail bool) []guid.SequenceNumber
}

// preemptiveWindow is the ~5 minute span (spec section 4.5) after which
// a reader stops soliciting initial state from a silent writer.
const preemptiveWindow = 5 * time.Minute

// PreemptiveInterval returns the decaying pre-emptive AckNack interval
// for a proxy writer that has not yet sent any Heartbeat: 1s until the
// 10s mark, 2s until 60s, 5s until 120s, 10s thereafter, until elapsed
// exceeds preemptiveWindow at which point ok is false and the reader
// stops soliciting.
func PreemptiveInterval(elapsed time.Duration) (interval time.Duration, ok bool) {
	switch {
	case elapsed >= preemptiveWindow:
		return 0, false
	case elapsed < 10*time.Second:
		return time.Second, true
	case elapsed < 60*time.Second:
		return 2 * time.Second, true
	case elapsed < 120*time.Second:
		return 5 * time.Second, true
	default:
		return 10 * time.Second, true
	}
}

// ReaderProxy is the reader's per-matched-proxy-writer bookkeeping of
// spec section 4.5.
type ReaderProxy struct {
	WriterGUID            guid.GUID
	Reliable              bool
	LastSeqSeen           guid.SequenceNumber
	HaveSeenHeartbeat     bool
	AckNackCount          int32
	HBTimestampForLatency time.Time
	TLastNackSend         int64
	SeqLastNackSend       guid.SequenceNumber

	Reorder NackMapSource
}

// Reader is the reliable reader-side state machine: one per local RTPS
// reader, tracking every matched proxy writer and reacting to received
// Heartbeats by scheduling AckNacks.
type Reader struct {
	mu sync.Mutex

	guid   guid.GUID
	sender Sender
	log    *log.Logger

	minAckNackInterval time.Duration
	queueFull          func() bool // reports delivery-queue pressure, drives the notail flag
	proxies            map[guid.GUID]*ReaderProxy
}

// NewReader creates a Reader for local identity g. queueFull, if
// non-nil, is consulted to decide the notail flag on AckNack emission.
func NewReader(g guid.GUID, sender Sender, mylog *log.Logger, minAckNackInterval time.Duration, queueFull func() bool) *Reader {
	if queueFull == nil {
		queueFull = func() bool { return false }
	}
	return &Reader{
		guid:               g,
		sender:             sender,
		log:                mylog.WithPrefix("_READER_"),
		minAckNackInterval: minAckNackInterval,
		queueFull:          queueFull,
		proxies:            make(map[guid.GUID]*ReaderProxy),
	}
}

// AddMatchedWriter registers a newly matched proxy writer, backed by
// src for computing NACK bitmaps.
func (r *Reader) AddMatchedWriter(writer guid.GUID, reliable bool, src NackMapSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proxies[writer] = &ReaderProxy{WriterGUID: writer, Reliable: reliable, Reorder: src}
}

// RemoveMatchedWriter drops a proxy writer's bookkeeping.
func (r *Reader) RemoveMatchedWriter(writer guid.GUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.proxies, writer)
}

// Proxy returns the bookkeeping for writer, if matched.
func (r *Reader) Proxy(writer guid.GUID) (*ReaderProxy, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proxies[writer]
	return p, ok
}

// HandleHeartbeat processes a received Heartbeat at time now (ns). It
// marks the proxy as having seen a heartbeat (cancelling the
// pre-emptive schedule the caller is responsible for stopping) and
// reports whether an AckNack should be sent now: an AckNack is due when
// last_seq advanced past what was previously seen or the Heartbeat is
// not FINAL (a reply is solicited), throttled to at most one per
// minAckNackInterval.
func (r *Reader) HandleHeartbeat(writer guid.GUID, hb wire.Heartbeat, now int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proxies[writer]
	if !ok {
		return false
	}
	p.HaveSeenHeartbeat = true
	p.HBTimestampForLatency = time.Unix(0, now)

	advanced := hb.LastSeq > int64(p.LastSeqSeen)
	if advanced {
		p.LastSeqSeen = guid.SequenceNumber(hb.LastSeq)
	}
	if hb.Final && !advanced {
		return false
	}
	if now-p.TLastNackSend < int64(r.minAckNackInterval) {
		return false
	}
	return true
}

// BuildAckNack constructs the AckNack body for writer, reflecting the
// current reorder state. ok is false if writer is unmatched.
func (r *Reader) BuildAckNack(writer guid.GUID, now int64) (ack wire.AckNack, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, exists := r.proxies[writer]
	if !exists {
		return ack, false
	}

	next := p.Reorder.NextSeq()
	notail := r.queueFull()
	missing := p.Reorder.NackMap(p.LastSeqSeen, wire.MaxBitmapBits, notail)

	set, err := wire.NewSequenceNumberSet(int64(next), wire.MaxBitmapBits)
	if err != nil {
		return ack, false
	}
	for _, seq := range missing {
		i := uint32(seq - next)
		if i < wire.MaxBitmapBits {
			set.Set(i)
		}
	}

	p.AckNackCount++
	p.TLastNackSend = now
	p.SeqLastNackSend = next

	ack = wire.AckNack{
		ReaderID:      entityBytes(r.guid.Entity),
		WriterID:      entityBytes(writer.Entity),
		ReaderSNState: set,
		Count:         p.AckNackCount,
		Final:         len(missing) == 0,
	}
	return ack, true
}

// SendAckNack builds and sends an AckNack to writer.
func (r *Reader) SendAckNack(writer guid.GUID, now int64) {
	ack, ok := r.BuildAckNack(writer, now)
	if !ok {
		return
	}
	if err := r.sender.SendAckNack(writer, ack); err != nil {
		r.log.Error("send acknack", "writer", writer, "err", err)
	}
}
