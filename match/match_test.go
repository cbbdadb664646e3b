package match

import (
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/meridian-dds/meridian/core/clock"
	"github.com/meridian-dds/meridian/core/guid"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func makeGUID(b byte) guid.GUID {
	var g guid.GUID
	g.Prefix[0] = b
	return g
}

func TestCompatibleReliability(t *testing.T) {
	ok, policy := Compatible(QoS{Reliability: BestEffort}, QoS{Reliability: Reliable})
	require.False(t, ok)
	require.Equal(t, PolicyReliability, policy)

	ok, _ = Compatible(QoS{Reliability: Reliable}, QoS{Reliability: Reliable})
	require.True(t, ok)

	ok, _ = Compatible(QoS{Reliability: Reliable}, QoS{Reliability: BestEffort})
	require.True(t, ok)
}

func TestCompatibleDurability(t *testing.T) {
	ok, policy := Compatible(QoS{Durability: Volatile}, QoS{Durability: TransientLocal})
	require.False(t, ok)
	require.Equal(t, PolicyDurability, policy)

	ok, _ = Compatible(QoS{Durability: Persistent}, QoS{Durability: TransientLocal})
	require.True(t, ok)
}

func TestCompatiblePartitions(t *testing.T) {
	ok, policy := Compatible(QoS{Partitions: []string{"a"}}, QoS{Partitions: []string{"b"}})
	require.False(t, ok)
	require.Equal(t, PolicyPartition, policy)

	ok, _ = Compatible(QoS{Partitions: []string{"a", "b"}}, QoS{Partitions: []string{"b"}})
	require.True(t, ok)
}

type recordingListener struct {
	matched      []pairKey
	unmatched    []pairKey
	incompatible []pairKey
}

func (l *recordingListener) OnMatched(w, r guid.GUID) {
	l.matched = append(l.matched, pairKey{w, r})
}
func (l *recordingListener) OnUnmatched(w, r guid.GUID) {
	l.unmatched = append(l.unmatched, pairKey{w, r})
}
func (l *recordingListener) OnIncompatible(w, r guid.GUID, policy PolicyID) {
	l.incompatible = append(l.incompatible, pairKey{w, r})
}

func TestMatcherMatchesOnCompatibleQoS(t *testing.T) {
	m := NewMatcher(testLogger())
	rec := &recordingListener{}
	m.AddListener(rec)

	writerGUID := makeGUID(1)
	readerGUID := makeGUID(2)
	m.RegisterWriter(Candidate{GUID: writerGUID, Topic: "t", TypeName: "T", QoS: QoS{Reliability: Reliable}})
	m.RegisterReader(Candidate{GUID: readerGUID, Topic: "t", TypeName: "T", QoS: QoS{Reliability: Reliable}})

	require.Equal(t, Matched, m.StateOf(writerGUID, readerGUID))
	require.Len(t, rec.matched, 1)

	m.UnregisterReader(readerGUID)
	require.Len(t, rec.unmatched, 1)
	require.Equal(t, Unmatched, m.StateOf(writerGUID, readerGUID))
}

func TestMatcherIncompatibleOnQoSMismatch(t *testing.T) {
	m := NewMatcher(testLogger())
	rec := &recordingListener{}
	m.AddListener(rec)

	writerGUID := makeGUID(1)
	readerGUID := makeGUID(2)
	m.RegisterWriter(Candidate{GUID: writerGUID, Topic: "t", TypeName: "T", QoS: QoS{Reliability: BestEffort}})
	m.RegisterReader(Candidate{GUID: readerGUID, Topic: "t", TypeName: "T", QoS: QoS{Reliability: Reliable}})

	require.Equal(t, Incompatible, m.StateOf(writerGUID, readerGUID))
	require.Len(t, rec.incompatible, 1)
}

func TestMatcherIgnoresDifferentTopics(t *testing.T) {
	m := NewMatcher(testLogger())
	rec := &recordingListener{}
	m.AddListener(rec)

	m.RegisterWriter(Candidate{GUID: makeGUID(1), Topic: "t1", TypeName: "T"})
	m.RegisterReader(Candidate{GUID: makeGUID(2), Topic: "t2", TypeName: "T"})
	require.Empty(t, rec.matched)
	require.Empty(t, rec.incompatible)
}

func TestPMDIntervalUsesShortestAutomaticLease(t *testing.T) {
	leases := []WriterLease{
		{Kind: Automatic, LeaseDuration: 10 * time.Second},
		{Kind: Automatic, LeaseDuration: 2 * time.Second},
		{Kind: ManualByTopic, LeaseDuration: time.Millisecond},
	}
	iv := PMDInterval(leases)
	require.Equal(t, time.Duration(float64(2*time.Second)*pmdAlpha), iv)
}

func TestPMDIntervalFloorsWhenNoAutomaticWriters(t *testing.T) {
	iv := PMDInterval(nil)
	require.Equal(t, leaseFloor, iv)
}

type livelinessRecorder struct {
	alive    []guid.GUID
	notAlive []guid.GUID
}

func (r *livelinessRecorder) OnAlive(w guid.GUID)    { r.alive = append(r.alive, w) }
func (r *livelinessRecorder) OnNotAlive(w guid.GUID) { r.notAlive = append(r.notAlive, w) }

func TestExpiryTrackerTransitionsOnLeaseElapse(t *testing.T) {
	clk := clock.NewFake(0)
	rec := &livelinessRecorder{}
	tracker := NewExpiryTracker(clk, rec)
	writerGUID := makeGUID(1)
	tracker.Track(WriterLease{WriterGUID: writerGUID, LeaseDuration: 10 * time.Millisecond})

	tracker.CheckExpiries(clk.Now())
	require.Empty(t, rec.notAlive)

	clk.Advance(20 * time.Millisecond)
	tracker.CheckExpiries(clk.Now())
	require.Len(t, rec.notAlive, 1)

	tracker.Renew(writerGUID, clk.Now())
	require.Len(t, rec.alive, 1)
}

func TestWriteTriggeredBatcherCoalescesBurst(t *testing.T) {
	clk := clock.NewFake(0)
	rec := &livelinessRecorder{}
	writerGUID := makeGUID(1)
	b := NewWriteTriggeredBatcher(clk, 10*time.Millisecond, writerGUID, rec)

	for i := 0; i < 5; i++ {
		b.Write(clk.Now())
		clk.Advance(time.Millisecond)
		b.Tick(clk.Now())
	}
	require.Len(t, rec.alive, 1, "a burst of writes within the window should toggle alive once")
	require.Empty(t, rec.notAlive)

	clk.Advance(20 * time.Millisecond)
	b.Tick(clk.Now())
	require.Len(t, rec.notAlive, 1)
}

func TestDescriptorSignAndVerify(t *testing.T) {
	scheme := DefaultSignatureScheme
	require.NotNil(t, scheme)
	pk, sk, err := scheme.GenerateKey()
	require.NoError(t, err)

	pkBytes, err := pk.MarshalBinary()
	require.NoError(t, err)

	d := NewEndpointDescriptor(makeGUID(1), "t", "T", QoS{}, []string{"127.0.0.1:7400"}, pkBytes)
	raw, err := Sign(scheme, sk, d)
	require.NoError(t, err)

	verified, err := Verify(scheme, pk, raw)
	require.NoError(t, err)
	require.Equal(t, d.Topic, verified.Topic)
}

func TestValidateLocators(t *testing.T) {
	require.NoError(t, ValidateLocators([]string{"127.0.0.1:7400", "example.com:7400"}))
	require.Error(t, ValidateLocators(nil))
}
