// Package annbuf provides the fixed-capacity buffer that absorbs newly
// received announcements for a class. A buffer accepts concurrent appends
// through an atomic cursor until it fills or is locked, after which it is
// immutable and safe to read without synchronization.
package annbuf

import (
	"sync/atomic"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pktlabs/blkmine/foundation/blkmine/prooftree"
)

// DefaultCapacity is the number of announcements a buffer holds when the
// caller does not specify one.
const DefaultCapacity = 32 * 1024

// Buf is a bounded append log of announcement hashes. Appends reserve slots
// with a compare-and-swap on the cursor, so multiple producers can push into
// the same buffer without blocking each other.
//
// Lock must only be called once no producer can still be appending. The
// class rotation protocol guarantees this by displacing the buffer under
// the class write lock before freezing it.
type Buf struct {
	slots  []prooftree.AnnData
	next   atomic.Int64
	locked atomic.Bool
}

// New constructs a buffer with the specified capacity.
func New(capacity int) *Buf {
	return &Buf{
		slots: make([]prooftree.AnnData, capacity),
	}
}

// PushAnns appends as many announcements as fit, hashing each one into its
// reserved slot. The anns and indexes slices are parallel: indexes[i] is the
// location of anns[i] in the caller's announcement table. It returns how
// many entries were consumed, which is zero once the buffer is full or
// locked.
func (b *Buf) PushAnns(anns [][]byte, indexes []uint32) int {
	if b.locked.Load() {
		return 0
	}

	capacity := int64(len(b.slots))
	want := int64(len(indexes))

	// Reserve a contiguous range of slots.
	var start, take int64
	for {
		cur := b.next.Load()
		if cur >= capacity {
			return 0
		}

		take = want
		if remaining := capacity - cur; take > remaining {
			take = remaining
		}

		if b.next.CompareAndSwap(cur, cur+take) {
			start = cur
			break
		}
	}

	for i := int64(0); i < take; i++ {
		b.slots[start+i] = prooftree.AnnData{
			AnnHash: crypto.Keccak256Hash(anns[i]),
			Index:   indexes[i],
		}
	}

	return int(take)
}

// Lock freezes the buffer. Any further push consumes nothing.
func (b *Buf) Lock() {
	b.locked.Store(true)
}

// IsLocked reports whether the buffer has been frozen.
func (b *Buf) IsLocked() bool {
	return b.locked.Load()
}

// NextAnnIndex returns the number of announcements currently held.
func (b *Buf) NextAnnIndex() int {
	n := b.next.Load()
	if capacity := int64(len(b.slots)); n > capacity {
		n = capacity
	}

	return int(n)
}

// Capacity returns the total number of slots in the buffer.
func (b *Buf) Capacity() int {
	return len(b.slots)
}

// ReadReadyAnns copies the buffer's announcements into the caller's slice,
// which must hold at least NextAnnIndex entries.
func (b *Buf) ReadReadyAnns(out []prooftree.AnnData) {
	copy(out, b.slots[:b.NextAnnIndex()])
}

// Reset returns the buffer to its empty, unlocked state so it can be
// recycled through the buffer pool.
func (b *Buf) Reset() {
	b.next.Store(0)
	b.locked.Store(false)
}
