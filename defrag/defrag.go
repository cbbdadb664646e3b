// Package defrag implements the per-proxy-writer Defragmenter of spec
// section 4.3: it tracks, per in-progress sample, which fragments have
// arrived as a bitmap, merges new fragments on arrival, and forwards
// the assembled handle once complete. In-progress samples are capped;
// the oldest incomplete sample is dropped when the cap is reached, the
// same bounded-resource pattern this codebase's reliable stream uses
// for its receive window.
package defrag

import (
	"container/list"
	"errors"
	"time"

	"github.com/meridian-dds/meridian/core/guid"
	"github.com/meridian-dds/meridian/sdata"
)

// ErrTooManyFragments is returned when a sample declares more fragments
// than the configured maximum representable by a FragmentNumberSet.
var ErrTooManyFragments = errors.New("defrag: fragment count exceeds capacity")

// maxFragmentCapacity mirrors the 256-bit ceiling of the wire
// FragmentNumberSet (wire.MaxBitmapBits); a sample needing more
// fragments than that cannot be NACKed precisely and is rejected.
const maxFragmentCapacity = 256

type inProgress struct {
	seq        guid.SequenceNumber
	totalFrags uint32
	fragSize   int
	sampleSize int
	have       map[uint32][]byte // 1-based fragment number -> bytes
	elem       *list.Element     // position in the LRU eviction list
}

// Defragmenter reassembles fragmented samples for one proxy writer.
type Defragmenter struct {
	maxInProgress int
	samples       map[guid.SequenceNumber]*inProgress
	lru           *list.List // front = least recently touched
}

// New creates a Defragmenter that keeps at most maxInProgress
// incomplete samples before evicting the oldest.
func New(maxInProgress int) *Defragmenter {
	return &Defragmenter{
		maxInProgress: maxInProgress,
		samples:       make(map[guid.SequenceNumber]*inProgress),
		lru:           list.New(),
	}
}

// AddFragment merges one fragment of a sample. frag is 1-based. It
// returns the assembled handle and true once every fragment for seq
// has arrived; otherwise it returns (nil, false).
func (d *Defragmenter) AddFragment(seq guid.SequenceNumber, frag guid.FragmentNumber, totalFrags uint32, fragSize, sampleSize int, data []byte, keyHash sdata.KeyHash) (*sdata.Handle, bool, error) {
	if totalFrags == 0 || totalFrags > maxFragmentCapacity {
		return nil, false, ErrTooManyFragments
	}

	ip, ok := d.samples[seq]
	if !ok {
		if len(d.samples) >= d.maxInProgress && d.maxInProgress > 0 {
			d.evictOldestLocked()
		}
		ip = &inProgress{
			seq:        seq,
			totalFrags: totalFrags,
			fragSize:   fragSize,
			sampleSize: sampleSize,
			have:       make(map[uint32][]byte),
		}
		ip.elem = d.lru.PushBack(ip)
		d.samples[seq] = ip
	} else {
		d.lru.MoveToBack(ip.elem)
	}

	ip.have[uint32(frag)] = append([]byte(nil), data...)

	if uint32(len(ip.have)) < ip.totalFrags {
		return nil, false, nil
	}

	buf := make([]byte, 0, ip.sampleSize)
	for i := uint32(1); i <= ip.totalFrags; i++ {
		part, ok := ip.have[i]
		if !ok {
			return nil, false, nil // shouldn't happen given the length check above
		}
		buf = append(buf, part...)
	}
	if len(buf) > ip.sampleSize {
		buf = buf[:ip.sampleSize]
	}

	d.removeLocked(seq)

	return sdata.FromRawPayload(buf, keyHash, time.Now()), true, nil
}

func (d *Defragmenter) removeLocked(seq guid.SequenceNumber) {
	if ip, ok := d.samples[seq]; ok {
		d.lru.Remove(ip.elem)
		delete(d.samples, seq)
	}
}

func (d *Defragmenter) evictOldestLocked() {
	front := d.lru.Front()
	if front == nil {
		return
	}
	ip := front.Value.(*inProgress)
	d.removeLocked(ip.seq)
}

// NackMap enumerates the fragments still missing for seq, for the
// reader to request via NACK_FRAG. maxBits caps the returned bitmap's
// capacity, matching the 256-bit ceiling of the wire FragmentNumberSet.
func (d *Defragmenter) NackMap(seq guid.SequenceNumber, maxFrag uint32, maxBits int) (missing []guid.FragmentNumber) {
	ip, ok := d.samples[seq]
	if !ok {
		return nil
	}
	limit := maxFrag
	if ip.totalFrags < limit {
		limit = ip.totalFrags
	}
	for i := uint32(1); i <= limit && len(missing) < maxBits; i++ {
		if _, got := ip.have[i]; !got {
			missing = append(missing, guid.FragmentNumber(i))
		}
	}
	return missing
}

// Len returns the number of in-progress samples, for tests/diagnostics.
func (d *Defragmenter) Len() int {
	return len(d.samples)
}
