package defrag_test

import (
	"testing"

	"github.com/meridian-dds/meridian/core/guid"
	"github.com/meridian-dds/meridian/defrag"
	"github.com/meridian-dds/meridian/sdata"
	"github.com/stretchr/testify/require"
)

func TestAssemblesInOrderArrival(t *testing.T) {
	d := defrag.New(8)
	kh := sdata.ComputeKeyHash([]byte("k"))

	h, done, err := d.AddFragment(1, 1, 3, 4, 10, []byte("abcd"), kh)
	require.NoError(t, err)
	require.False(t, done)
	require.Nil(t, h)

	h, done, err = d.AddFragment(1, 2, 3, 4, 10, []byte("efgh"), kh)
	require.NoError(t, err)
	require.False(t, done)
	require.Nil(t, h)

	h, done, err = d.AddFragment(1, 3, 3, 4, 10, []byte("ij"), kh)
	require.NoError(t, err)
	require.True(t, done)
	require.NotNil(t, h)

	require.Equal(t, "abcdefghij", string(h.ToIOVec(0, 10)))
}

func TestAssemblesOutOfOrderArrival(t *testing.T) {
	d := defrag.New(8)
	kh := sdata.ComputeKeyHash([]byte("k"))

	_, done, err := d.AddFragment(1, 3, 3, 4, 10, []byte("ij"), kh)
	require.NoError(t, err)
	require.False(t, done)

	_, done, err = d.AddFragment(1, 1, 3, 4, 10, []byte("abcd"), kh)
	require.NoError(t, err)
	require.False(t, done)

	h, done, err := d.AddFragment(1, 2, 3, 4, 10, []byte("efgh"), kh)
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, "abcdefghij", string(h.ToIOVec(0, 10)))
}

func TestNackMapReportsMissingFragments(t *testing.T) {
	d := defrag.New(8)
	kh := sdata.ComputeKeyHash([]byte("k"))
	_, _, err := d.AddFragment(1, 2, 4, 4, 16, []byte("efgh"), kh)
	require.NoError(t, err)

	missing := d.NackMap(1, 4, 256)
	require.Equal(t, []guid.FragmentNumber{1, 3, 4}, missing)
}

func TestCapEvictsOldestIncomplete(t *testing.T) {
	d := defrag.New(1)
	kh := sdata.ComputeKeyHash([]byte("k"))

	_, _, err := d.AddFragment(1, 1, 2, 4, 8, []byte("abcd"), kh)
	require.NoError(t, err)
	require.Equal(t, 1, d.Len())

	// Starting sample 2 evicts sample 1 since the cap is 1.
	_, _, err = d.AddFragment(2, 1, 2, 4, 8, []byte("wxyz"), kh)
	require.NoError(t, err)
	require.Equal(t, 1, d.Len())

	// Completing sample 1 now starts fresh (it was evicted), so it
	// should not complete with just the second fragment.
	_, done, err := d.AddFragment(1, 2, 2, 4, 8, []byte("ijkl"), kh)
	require.NoError(t, err)
	require.False(t, done)
}

func TestRejectsExcessiveFragmentCount(t *testing.T) {
	d := defrag.New(8)
	kh := sdata.ComputeKeyHash([]byte("k"))
	_, _, err := d.AddFragment(1, 1, 1000, 4, 4000, []byte("abcd"), kh)
	require.ErrorIs(t, err, defrag.ErrTooManyFragments)
}
