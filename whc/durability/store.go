// Package durability implements the two DURABILITY QoS backends of
// spec section 4.2: a TRANSIENT_LOCAL store that survives a writer
// process restart on the same host, and a PERSISTENT store that
// survives a full deployment restart. Both share the Store interface
// so a caller replaying history doesn't care which is attached; the
// whc package itself does not use either store. Put and Delete write
// through to the backing store before returning: there is no queue,
// background goroutine or periodic flush. Nothing is encrypted, since
// writer-history durability carries no confidentiality requirement.
package durability

import (
	"context"

	"github.com/meridian-dds/meridian/sdata"
)

// Record is the durable, codec-encoded form of one WHC entry.
type Record struct {
	Seq            int64
	KeyHash        sdata.KeyHash
	Kind           sdata.Kind
	Payload        []byte
	Status         sdata.StatusInfo
	TimestampNanos int64
	LifespanNanos  int64 // 0 means "no expiry"
}

// Store persists and replays WHC entries for one durable writer,
// keyed by a topic/writer identifier chosen by the caller.
type Store interface {
	// Put durably writes rec for topic, overwriting any existing
	// record with the same sequence number.
	Put(ctx context.Context, topic string, rec Record) error
	// Load returns every durable record for topic in sequence order,
	// for replay when a writer (re)attaches.
	Load(ctx context.Context, topic string) ([]Record, error)
	// Delete removes the durable record for seq, called once a sample
	// has been trimmed from the in-memory WHC.
	Delete(ctx context.Context, topic string, seq int64) error
	// Close releases the backing resources.
	Close() error
}
