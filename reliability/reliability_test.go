package reliability

import (
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/meridian-dds/meridian/core/guid"
	"github.com/meridian-dds/meridian/sdata"
	"github.com/meridian-dds/meridian/whc"
	"github.com/meridian-dds/meridian/wire"
)

type fakeSender struct {
	heartbeats  []wire.Heartbeat
	gaps        []wire.Gap
	acknacks    []wire.AckNack
	nackfrags   []wire.NackFrag
	retransmits []guid.SequenceNumber
}

func (f *fakeSender) SendHeartbeat(reader guid.GUID, hb wire.Heartbeat) error {
	f.heartbeats = append(f.heartbeats, hb)
	return nil
}
func (f *fakeSender) SendGap(reader guid.GUID, gap wire.Gap) error {
	f.gaps = append(f.gaps, gap)
	return nil
}
func (f *fakeSender) SendAckNack(writer guid.GUID, ack wire.AckNack) error {
	f.acknacks = append(f.acknacks, ack)
	return nil
}
func (f *fakeSender) SendNackFrag(writer guid.GUID, nack wire.NackFrag) error {
	f.nackfrags = append(f.nackfrags, nack)
	return nil
}
func (f *fakeSender) SendRetransmit(reader guid.GUID, seq guid.SequenceNumber, frag guid.FragmentNumber, h *sdata.Handle) error {
	f.retransmits = append(f.retransmits, seq)
	return nil
}

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func makeGUID(b byte) guid.GUID {
	var g guid.GUID
	g.Prefix[0] = b
	return g
}

func TestWriterHeartbeatSuppressedWhenNothingOutstanding(t *testing.T) {
	w := whc.New(whc.Policy{History: whc.KeepAll})
	sender := &fakeSender{}
	writer := NewWriter(makeGUID(1), w, sender, testLogger(), time.Millisecond, 0, 0)
	require.True(t, writer.ShouldSuppressHeartbeat())

	h, err := sdata.FromSample("x", sdata.ComputeKeyHash([]byte("k")), time.Now())
	require.NoError(t, err)
	_, err = w.Insert(h, sdata.ComputeKeyHash([]byte("k")), 0, 0)
	require.NoError(t, err)

	reader := makeGUID(2)
	writer.AddMatchedReader(reader, true)
	require.False(t, writer.ShouldSuppressHeartbeat())
}

func TestWriterHandleAckNackSchedulesRetransmit(t *testing.T) {
	w := whc.New(whc.Policy{History: whc.KeepAll})
	sender := &fakeSender{}
	writer := NewWriter(makeGUID(1), w, sender, testLogger(), time.Millisecond, 0, 0)
	reader := makeGUID(2)
	writer.AddMatchedReader(reader, true)

	kh := sdata.ComputeKeyHash([]byte("k"))
	h, err := sdata.FromSample("x", kh, time.Now())
	require.NoError(t, err)
	seq, err := w.Insert(h, kh, 0, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, seq)

	set, err := wire.NewSequenceNumberSet(1, 1)
	require.NoError(t, err)
	set.Set(0)
	writer.HandleAckNack(reader, wire.AckNack{ReaderSNState: set, Count: 1})

	writer.FlushRetransmits()
	require.Len(t, sender.retransmits, 1)
	require.EqualValues(t, 1, sender.retransmits[0])
}

func TestWriterHandleAckNackGapsTrimmedSequences(t *testing.T) {
	w := whc.New(whc.Policy{History: whc.KeepAll})
	sender := &fakeSender{}
	writer := NewWriter(makeGUID(1), w, sender, testLogger(), time.Millisecond, 0, 0)
	reader := makeGUID(2)
	writer.AddMatchedReader(reader, true)

	set, err := wire.NewSequenceNumberSet(5, 1)
	require.NoError(t, err)
	set.Set(0)
	writer.HandleAckNack(reader, wire.AckNack{ReaderSNState: set, Count: 1})
	require.Len(t, sender.gaps, 1)
	require.EqualValues(t, 5, sender.gaps[0].GapStart)
}

type fakeNackMapSource struct {
	next    guid.SequenceNumber
	missing []guid.SequenceNumber
}

func (f *fakeNackMapSource) NextSeq() guid.SequenceNumber { return f.next }
func (f *fakeNackMapSource) NackMap(endSeq guid.SequenceNumber, maxBits int, notail bool) []guid.SequenceNumber {
	return f.missing
}

func TestReaderHandleHeartbeatSchedulesAckNack(t *testing.T) {
	sender := &fakeSender{}
	reader := NewReader(makeGUID(1), sender, testLogger(), time.Millisecond, nil)
	writer := makeGUID(2)
	src := &fakeNackMapSource{next: 3}
	reader.AddMatchedWriter(writer, true, src)

	due := reader.HandleHeartbeat(writer, wire.Heartbeat{LastSeq: 5, FirstSeq: 1}, 1_000_000)
	require.True(t, due)

	reader.SendAckNack(writer, 2_000_000)
	require.Len(t, sender.acknacks, 1)
	require.True(t, sender.acknacks[0].Final)
}

func TestReaderHandleHeartbeatNoAdvanceFinalSuppressesAckNack(t *testing.T) {
	sender := &fakeSender{}
	reader := NewReader(makeGUID(1), sender, testLogger(), time.Millisecond, nil)
	writer := makeGUID(2)
	src := &fakeNackMapSource{next: 3}
	reader.AddMatchedWriter(writer, true, src)

	reader.HandleHeartbeat(writer, wire.Heartbeat{LastSeq: 5}, 1_000_000)
	due := reader.HandleHeartbeat(writer, wire.Heartbeat{LastSeq: 5, Final: true}, 2_000_000)
	require.False(t, due)
}

func TestPreemptiveIntervalDecays(t *testing.T) {
	iv, ok := PreemptiveInterval(0)
	require.True(t, ok)
	require.Equal(t, time.Second, iv)

	iv, ok = PreemptiveInterval(30 * time.Second)
	require.True(t, ok)
	require.Equal(t, 2*time.Second, iv)

	iv, ok = PreemptiveInterval(90 * time.Second)
	require.True(t, ok)
	require.Equal(t, 5*time.Second, iv)

	iv, ok = PreemptiveInterval(200 * time.Second)
	require.True(t, ok)
	require.Equal(t, 10*time.Second, iv)

	_, ok = PreemptiveInterval(6 * time.Minute)
	require.False(t, ok)
}

func TestRetransmitQueueMergesDestinations(t *testing.T) {
	q := NewRetransmitQueue(0, 0)
	key := RetransmitKey{Seq: 7}
	require.True(t, q.Enqueue(key, makeGUID(1), 10, false))
	require.True(t, q.Enqueue(key, makeGUID(2), 10, false))
	require.Equal(t, 1, q.Len())

	gotKey, dests, ok := q.Dequeue()
	require.True(t, ok)
	require.Equal(t, key, gotKey)
	require.Len(t, dests, 2)
}

func TestRetransmitQueueHardCapDrops(t *testing.T) {
	q := NewRetransmitQueue(0, 1)
	require.True(t, q.Enqueue(RetransmitKey{Seq: 1}, makeGUID(1), 10, false))
	require.False(t, q.Enqueue(RetransmitKey{Seq: 2}, makeGUID(1), 10, false))
	require.Equal(t, 1, q.DroppedHard())

	require.True(t, q.Enqueue(RetransmitKey{Seq: 3}, makeGUID(1), 10, true))
}
