package whc_test

import (
	"testing"
	"time"

	"github.com/meridian-dds/meridian/sdata"
	"github.com/meridian-dds/meridian/whc"
	"github.com/stretchr/testify/require"
)

func sample(t *testing.T, key string, v int) (*sdata.Handle, sdata.KeyHash) {
	t.Helper()
	kh := sdata.ComputeKeyHash([]byte(key))
	h, err := sdata.FromSample(v, kh, time.Now())
	require.NoError(t, err)
	return h, kh
}

func TestInsertAssignsMonotonicSequence(t *testing.T) {
	w := whc.New(whc.Policy{History: whc.KeepAll})
	h1, kh := sample(t, "a", 1)
	h2, _ := sample(t, "a", 2)

	s1, err := w.Insert(h1, kh, 0, time.Second)
	require.NoError(t, err)
	s2, err := w.Insert(h2, kh, 0, time.Second)
	require.NoError(t, err)
	require.Equal(t, s1+1, s2)
}

func TestBorrowSampleRoundTrip(t *testing.T) {
	w := whc.New(whc.Policy{History: whc.KeepAll})
	h, kh := sample(t, "a", 1)
	seq, err := w.Insert(h, kh, 0, time.Second)
	require.NoError(t, err)

	e, err := w.BorrowSample(seq)
	require.NoError(t, err)
	require.Equal(t, seq, e.Seq)
	var got int
	require.True(t, e.Handle.ToSample(&got))
	require.Equal(t, 1, got)
	w.ReturnSample(e)
}

func TestBorrowSampleNotFound(t *testing.T) {
	w := whc.New(whc.Policy{History: whc.KeepAll})
	_, err := w.BorrowSample(42)
	require.ErrorIs(t, err, whc.ErrNotFound)
}

func TestKeepLastEvictsBeyondDepth(t *testing.T) {
	w := whc.New(whc.Policy{History: whc.KeepLast, Depth: 2})
	kh := sdata.ComputeKeyHash([]byte("instance-x"))

	var lastSeq int64
	for i := 0; i < 5; i++ {
		h, err := sdata.FromSample(i, kh, time.Now())
		require.NoError(t, err)
		seq, err := w.Insert(h, kh, 0, time.Second)
		require.NoError(t, err)
		lastSeq = int64(seq)
	}
	require.Equal(t, 2, w.Len())

	// The three oldest are gone; the newest two survive.
	_, err := w.BorrowSample(1)
	require.ErrorIs(t, err, whc.ErrNotFound)
	e, err := w.BorrowSampleKey(kh)
	require.NoError(t, err)
	require.EqualValues(t, lastSeq, e.Seq)
}

func TestRemoveAckedMessagesTrimsBelowWatermark(t *testing.T) {
	w := whc.New(whc.Policy{History: whc.KeepAll})
	kh := sdata.ComputeKeyHash([]byte("k"))
	for i := 0; i < 3; i++ {
		h, err := sdata.FromSample(i, kh, time.Now())
		require.NoError(t, err)
		_, err = w.Insert(h, kh, 0, time.Second)
		require.NoError(t, err)
	}
	require.Equal(t, 3, w.Len())

	w.RemoveAckedMessages(2)
	require.Equal(t, 2, w.Len())
	_, err := w.BorrowSample(1)
	require.ErrorIs(t, err, whc.ErrNotFound)
	_, err = w.BorrowSample(3)
	require.NoError(t, err)
}

func TestInsertTimesOutWhenFull(t *testing.T) {
	w := whc.New(whc.Policy{History: whc.KeepAll, MaxSamples: 1})
	h1, kh := sample(t, "a", 1)
	_, err := w.Insert(h1, kh, 0, time.Second)
	require.NoError(t, err)

	h2, _ := sample(t, "a", 2)
	_, err = w.Insert(h2, kh, 0, 10*time.Millisecond)
	require.ErrorIs(t, err, whc.ErrTimeout)
}

func TestInsertUnblocksWhenRoomFrees(t *testing.T) {
	w := whc.New(whc.Policy{History: whc.KeepAll, MaxSamples: 1})
	h1, kh := sample(t, "a", 1)
	_, err := w.Insert(h1, kh, 0, time.Second)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		h2, _ := sample(t, "a", 2)
		_, err := w.Insert(h2, kh, 0, time.Second)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	w.RemoveAckedMessages(2)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("insert did not unblock after room freed")
	}
}

func TestGetStateReportsRange(t *testing.T) {
	w := whc.New(whc.Policy{History: whc.KeepAll})
	kh := sdata.ComputeKeyHash([]byte("k"))
	for i := 0; i < 3; i++ {
		h, err := sdata.FromSample(i, kh, time.Now())
		require.NoError(t, err)
		_, err = w.Insert(h, kh, 0, time.Second)
		require.NoError(t, err)
	}
	st := w.GetState()
	require.EqualValues(t, 1, st.MinSeq)
	require.EqualValues(t, 3, st.MaxSeq)
	require.EqualValues(t, 4, st.NextSeq)
	require.Greater(t, st.UnackedBytes, int64(0))
}

func TestLifespanExpiryReportedAfterTrim(t *testing.T) {
	w := whc.New(whc.Policy{History: whc.KeepAll})
	h, kh := sample(t, "a", 1)
	_, err := w.Insert(h, kh, time.Hour, time.Second)
	require.NoError(t, err)

	next := w.RemoveAckedMessages(0)
	require.False(t, next.IsZero())
}
