package durability

import (
	"context"
	"encoding/binary"

	bolt "go.etcd.io/bbolt"

	"github.com/ugorji/go/codec"
)

var rootBucket = []byte("whc")

var mpHandle = &codec.MsgpackHandle{}

// TransientLocalStore persists WHC entries to a local bbolt file, the
// backend for the TRANSIENT_LOCAL durability kind: history survives a
// writer restart on the same host but not a host loss.
type TransientLocalStore struct {
	db *bolt.DB
}

// OpenTransientLocal opens (creating if absent) a bbolt-backed store
// at path.
func OpenTransientLocal(path string) (*TransientLocalStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &TransientLocalStore{db: db}, nil
}

func seqKey(seq int64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(seq))
	return k[:]
}

// Put implements Store.
func (s *TransientLocalStore) Put(_ context.Context, topic string, rec Record) error {
	var buf []byte
	if err := codec.NewEncoderBytes(&buf, mpHandle).Encode(rec); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		topics, err := tx.Bucket(rootBucket).CreateBucketIfNotExists([]byte(topic))
		if err != nil {
			return err
		}
		return topics.Put(seqKey(rec.Seq), buf)
	})
}

// Load implements Store.
func (s *TransientLocalStore) Load(_ context.Context, topic string) ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		topics := tx.Bucket(rootBucket).Bucket([]byte(topic))
		if topics == nil {
			return nil
		}
		return topics.ForEach(func(_, v []byte) error {
			var rec Record
			if err := codec.NewDecoderBytes(v, mpHandle).Decode(&rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

// Delete implements Store.
func (s *TransientLocalStore) Delete(_ context.Context, topic string, seq int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		topics := tx.Bucket(rootBucket).Bucket([]byte(topic))
		if topics == nil {
			return nil
		}
		return topics.Delete(seqKey(seq))
	})
}

// Close implements Store.
func (s *TransientLocalStore) Close() error {
	return s.db.Close()
}
