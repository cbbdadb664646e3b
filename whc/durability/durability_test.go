package durability_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/meridian-dds/meridian/sdata"
	"github.com/meridian-dds/meridian/whc/durability"
	"github.com/stretchr/testify/require"
)

var (
	_ durability.Store = (*durability.TransientLocalStore)(nil)
	_ durability.Store = (*durability.PersistentStore)(nil)
)

func TestTransientLocalStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whc.bolt")
	store, err := durability.OpenTransientLocal(path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	kh := sdata.ComputeKeyHash([]byte("k"))
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, store.Put(ctx, "topic-a", durability.Record{
			Seq:            i,
			KeyHash:        kh,
			Kind:           sdata.KindData,
			Payload:        []byte{byte(i)},
			TimestampNanos: i * 1000,
		}))
	}

	recs, err := store.Load(ctx, "topic-a")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.Equal(t, int64(1), recs[0].Seq)
	require.Equal(t, int64(3), recs[2].Seq)

	require.NoError(t, store.Delete(ctx, "topic-a", 2))
	recs, err = store.Load(ctx, "topic-a")
	require.NoError(t, err)
	require.Len(t, recs, 2)
}

func TestTransientLocalStoreSeparatesTopics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whc.bolt")
	store, err := durability.OpenTransientLocal(path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	kh := sdata.ComputeKeyHash([]byte("k"))
	require.NoError(t, store.Put(ctx, "a", durability.Record{Seq: 1, KeyHash: kh}))
	require.NoError(t, store.Put(ctx, "b", durability.Record{Seq: 1, KeyHash: kh}))

	recsA, err := store.Load(ctx, "a")
	require.NoError(t, err)
	recsB, err := store.Load(ctx, "b")
	require.NoError(t, err)
	require.Len(t, recsA, 1)
	require.Len(t, recsB, 1)

	empty, err := store.Load(ctx, "missing")
	require.NoError(t, err)
	require.Empty(t, empty)
}
