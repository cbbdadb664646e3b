package sdata_test

import (
	"testing"
	"time"

	"github.com/meridian-dds/meridian/sdata"
	"github.com/stretchr/testify/require"
)

type point struct {
	X, Y int
}

func TestFromSampleRoundTrip(t *testing.T) {
	kh := sdata.ComputeKeyHash([]byte("key-1"))
	h, err := sdata.FromSample(point{X: 1, Y: 2}, kh, time.Unix(0, 100))
	require.NoError(t, err)
	require.True(t, h.HasData())
	require.Equal(t, sdata.KindData, h.Kind())

	var got point
	require.True(t, h.ToSample(&got))
	require.Equal(t, point{X: 1, Y: 2}, got)
}

func TestZeroLengthDataIsNotEmptyKind(t *testing.T) {
	kh := sdata.ComputeKeyHash([]byte("k"))
	h, err := sdata.FromSample([]byte{}, kh, time.Now())
	require.NoError(t, err)
	require.True(t, h.HasData())
	require.NotEqual(t, sdata.KindEmpty, h.Kind())
}

func TestFromKeyCarriesNoData(t *testing.T) {
	kh := sdata.ComputeKeyHash([]byte("k"))
	h := sdata.FromKey(kh, sdata.StatusDisposed, time.Now())
	require.False(t, h.HasData())
	require.True(t, h.StatusInfo().Disposed())
	require.False(t, h.StatusInfo().Unregistered())

	var out point
	require.False(t, h.ToSample(&out))
}

func TestRefCounting(t *testing.T) {
	h := sdata.Empty()
	require.EqualValues(t, 1, h.RefCount())
	h.Ref()
	require.EqualValues(t, 2, h.RefCount())
	require.False(t, h.Unref())
	require.True(t, h.Unref())
}

func TestKeyHashStable(t *testing.T) {
	a := sdata.ComputeKeyHash([]byte("same"))
	b := sdata.ComputeKeyHash([]byte("same"))
	require.Equal(t, a, b)
}

func TestToIOVecBounds(t *testing.T) {
	kh := sdata.ComputeKeyHash([]byte("k"))
	h, err := sdata.FromSample(point{X: 9, Y: 9}, kh, time.Now())
	require.NoError(t, err)
	require.Nil(t, h.ToIOVec(0, 1<<20))
}
