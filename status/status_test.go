package status

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/meridian-dds/meridian/core/guid"
	"github.com/meridian-dds/meridian/match"
)

func TestEntityStatusMatchedCounters(t *testing.T) {
	var woke []Kind
	e := NewEntityStatus(func(k Kind) { woke = append(woke, k) })

	var g guid.GUID
	g.Prefix[0] = 7
	e.NotifyMatched(g, 1, true)

	require.Equal(t, []Kind{PublicationMatched}, woke)
	require.NotZero(t, e.ActiveStatuses()&PublicationMatched)

	st := e.GetMatchedStatus(true)
	require.EqualValues(t, 1, st.TotalCount)
	require.EqualValues(t, 1, st.TotalCountChange)
	require.EqualValues(t, 1, st.CurrentCount)

	require.Zero(t, e.ActiveStatuses()&PublicationMatched)

	st2 := e.GetMatchedStatus(true)
	require.EqualValues(t, 1, st2.TotalCount)
	require.EqualValues(t, 0, st2.TotalCountChange, "change resets after a get")
}

func TestEntityStatusDisabledMaskNeverActivates(t *testing.T) {
	var woke []Kind
	e := NewEntityStatus(func(k Kind) { woke = append(woke, k) })
	e.SetEnabledStatuses(AllKinds &^ SampleRejected)

	e.NotifySampleRejected(RejectedBySamplesLimit, guid.GUID{})
	require.Empty(t, woke)
	require.Zero(t, e.ActiveStatuses()&SampleRejected)
	require.EqualValues(t, 1, e.GetSampleRejectedStatus().TotalCount, "counter still accrues even when the bit is disabled")
}

func TestEntityStatusIncompatibleQoSTracksOfferedAndRequested(t *testing.T) {
	e := NewEntityStatus(nil)
	e.NotifyIncompatibleQoS(true, match.PolicyReliability)
	e.NotifyIncompatibleQoS(false, match.PolicyDurability)

	offered := e.GetIncompatibleQoSStatus(true)
	require.EqualValues(t, 1, offered.TotalCount)
	require.Equal(t, match.PolicyReliability, offered.LastPolicyID)

	requested := e.GetIncompatibleQoSStatus(false)
	require.EqualValues(t, 1, requested.TotalCount)
	require.Equal(t, match.PolicyDurability, requested.LastPolicyID)
}

func TestTakeStatusesClearsDispatched(t *testing.T) {
	e := NewEntityStatus(nil)
	e.NotifySampleLost()
	e.MarkDispatched(SampleLost)
	require.NotZero(t, e.DispatchedStatuses()&SampleLost)

	e.TakeStatuses(SampleLost)
	require.Zero(t, e.DispatchedStatuses()&SampleLost)
	require.Zero(t, e.ActiveStatuses()&SampleLost)
}

func TestStatusConditionTriggersOnMaskedBitOnly(t *testing.T) {
	e := NewEntityStatus(nil)
	cond := NewStatusCondition(e, SampleRejected)
	require.False(t, cond.TriggerValue())

	e.NotifySampleLost()
	require.False(t, cond.TriggerValue(), "unrelated bit must not trigger a narrowly masked condition")

	e.NotifySampleRejected(RejectedByReorder, guid.GUID{})
	require.True(t, cond.TriggerValue())
}

func TestWaitSetWakesOnNotify(t *testing.T) {
	ws := NewWaitSet()
	guard := &GuardCondition{}
	ws.Attach(guard)

	done := make(chan []Condition, 1)
	go func() {
		done <- ws.Wait(time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	guard.SetTriggerValue(true)
	ws.Notify()

	select {
	case triggered := <-done:
		require.Len(t, triggered, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after Notify")
	}
}

func TestWaitSetTimesOutWithoutTrigger(t *testing.T) {
	ws := NewWaitSet()
	ws.Attach(&GuardCondition{})
	triggered := ws.Wait(20 * time.Millisecond)
	require.Empty(t, triggered)
}

func TestExporterObserveDoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := NewEntityStatus(nil)
	e.NotifyMatched(guid.GUID{}, 1, true)
	exp := NewExporter(reg, "test-entity")
	exp.Observe(e)
}
