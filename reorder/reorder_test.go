package reorder_test

import (
	"testing"
	"time"

	"github.com/meridian-dds/meridian/core/guid"
	"github.com/meridian-dds/meridian/reorder"
	"github.com/meridian-dds/meridian/sdata"
	"github.com/stretchr/testify/require"
)

func h(t *testing.T, v byte) *sdata.Handle {
	t.Helper()
	kh := sdata.ComputeKeyHash([]byte("k"))
	return sdata.FromRawPayload([]byte{v}, kh, time.Now())
}

func TestInOrderDeliversImmediately(t *testing.T) {
	r := reorder.New(16)
	dec, out := r.Insert(1, h(t, 1))
	require.Equal(t, reorder.Accept, dec)
	require.Len(t, out, 1)
	require.EqualValues(t, 2, r.NextSeq())
}

func TestOutOfOrderBuffersThenFlushes(t *testing.T) {
	r := reorder.New(16)
	dec, out := r.Insert(2, h(t, 2))
	require.Equal(t, reorder.Accept, dec)
	require.Nil(t, out)
	require.Equal(t, 1, r.Buffered())

	dec, out = r.Insert(1, h(t, 1))
	require.Equal(t, reorder.Accept, dec)
	require.Len(t, out, 2)
	require.EqualValues(t, 3, r.NextSeq())
	require.Equal(t, 0, r.Buffered())
}

func TestDuplicateAndStaleAreRejected(t *testing.T) {
	r := reorder.New(16)
	r.Insert(1, h(t, 1))

	dec, out := r.Insert(1, h(t, 1))
	require.Equal(t, reorder.Reject, dec)
	require.Nil(t, out)

	dec, out = r.Insert(0, h(t, 0))
	require.Equal(t, reorder.Reject, dec)
	require.Nil(t, out)
}

func TestGapAdvancesNextSeq(t *testing.T) {
	r := reorder.New(16)
	dec, out := r.Insert(5, h(t, 5))
	require.Equal(t, reorder.Accept, dec)
	require.Nil(t, out)

	out = r.Gap(1, 5)
	require.Len(t, out, 1)
	require.EqualValues(t, 6, r.NextSeq())
}

func TestNackMapRespectsNotail(t *testing.T) {
	r := reorder.New(16)
	r.Insert(3, h(t, 3))

	missing := r.NackMap(5, 256, false)
	require.Equal(t, []guid.SequenceNumber{1, 2, 4, 5}, missing)

	missing = r.NackMap(5, 256, true)
	require.Equal(t, []guid.SequenceNumber{1}, missing)
}

func TestKeepLastWindowEvictsHighestOnOverflow(t *testing.T) {
	r := reorder.New(2)
	r.Insert(5, h(t, 5))
	r.Insert(6, h(t, 6))

	dec, out := r.Insert(7, h(t, 7))
	require.Equal(t, reorder.Replace, dec)
	require.Nil(t, out)
	require.Equal(t, 2, r.Buffered())
}
