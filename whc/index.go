package whc

import (
	avl "gitlab.com/yawning/avl.git"
)

// seqItem adapts a sequence number into the avl.Item interface this
// codebase's ordered indexes are built on (see the decoy-traffic
// queue this package's AVL usage is grounded on): a strict ordering
// comparator over an opaque value.
type seqItem struct {
	seq   int64
	entry *Entry
}

// Less implements avl.Item.
func (s *seqItem) Less(other avl.Item) bool {
	return s.seq < other.(*seqItem).seq
}

// seqIndex is the sequence-ordered view over WHC entries, used for
// ordered range scans during trimming (RemoveAckedMessages) without
// walking the full entry map. The map in whc.go remains the source of
// truth for borrow/return; this index only ever mirrors it.
type seqIndex struct {
	tree *avl.Tree
}

func newSeqIndex() *seqIndex {
	return &seqIndex{tree: avl.New()}
}

func (x *seqIndex) insert(seq int64, e *Entry) {
	x.tree.Insert(&seqItem{seq: seq, entry: e})
}

func (x *seqIndex) remove(seq int64) {
	x.tree.Remove(&seqItem{seq: seq})
}

// ascendRange calls fn for every indexed entry with lo <= seq <= hi,
// in increasing sequence order, stopping early if fn returns false.
func (x *seqIndex) ascendRange(lo, hi int64, fn func(seq int64, e *Entry) bool) {
	for n := x.tree.Min(); n != nil; n = n.Next() {
		it := n.Value.(*seqItem)
		if it.seq > hi {
			return
		}
		if it.seq >= lo {
			if !fn(it.seq, it.entry) {
				return
			}
		}
	}
}

// len returns the number of indexed entries, for tests.
func (x *seqIndex) len() int {
	return x.tree.Len()
}
