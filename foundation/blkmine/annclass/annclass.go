// Package annclass manages the lifecycle of one classification of
// announcements: a group that shares the same block height and minimum work.
// A class absorbs announcements into a rotating set of fixed-capacity
// buffers and hands frozen buffers off to the mining workflow one at a time.
package annclass

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pktlabs/blkmine/foundation/blkmine/annbuf"
	"github.com/pktlabs/blkmine/foundation/blkmine/difficulty"
	"github.com/pktlabs/blkmine/foundation/blkmine/prooftree"
)

// ErrMining is returned by StealBuf while a mining hand-off is already in
// flight for the class. Callers must try another class rather than retry.
var ErrMining = errors.New("class is busy mining")

// degradeWindow is the number of blocks past a class's mint height during
// which announcement value degrades. Beyond the window the base work applies
// unchanged.
const degradeWindow = 3

// =============================================================================

// hashTree associates a class with an externally shared proof structure,
// capturing the structure's root at association time. A link whose captured
// root no longer matches the live tree is already stale and inert.
type hashTree struct {
	origin   *prooftree.Tree
	rootHash *common.Hash
}

// invalidate resets the origin tree if it was built from this class's
// current buffer set. Invalidating twice is a no-op.
func (h *hashTree) invalidate() {
	if h.rootHash == nil {
		return
	}

	h.origin.ResetMatching(*h.rootHash)
	h.rootHash = nil
}

// =============================================================================

// classMut is the mutable state of a class, the single unit of mutual
// exclusion. Everything in it is guarded by the Class's RWMutex.
type classMut struct {

	// The frozen buffers holding announcement hashes. Insertion order is
	// preserved; StealBuf removes last-in first.
	bufs []*annbuf.Buf

	// The one buffer currently accepting writes, nil once the class has
	// been fully drained.
	topBuf *annbuf.Buf

	// Proof trees which contain announcements in this class. A tree only
	// ever includes all of a class's announcements or none of them, so the
	// links live here rather than per buffer.
	dependentTrees []hashTree

	// Set while a consumer is mining with a buffer taken from this class.
	mining bool

	// Set once the class has been drained and reaped by its owner. A
	// retired class refuses all further pushes so a stale handle cannot
	// revive it after it left the owner's class map.
	retired bool
}

// Class is a grouping of announcements which are similar in their
// properties: the same work done on the announcement and the same block
// height when minted. The identity fields are immutable after construction.
type Class struct {
	mu sync.RWMutex
	m  classMut

	// The hash of the block this class is associated with. Defaulted for
	// now; nothing in the lifecycle mutates it.
	blockHash common.Hash

	blockHeight uint32
	minAnnWork  uint32

	// ID is the stable identity of the class within the miner.
	ID int
}

// HeightWork is the classification key: announcements minted against the
// same block height with the same minimum work share a class.
type HeightWork struct {
	BlockHeight uint32 `json:"block_height"`
	Work        uint32 `json:"work"`
}

// New constructs a class from an explicit top buffer and set of frozen
// buffers.
func New(topBuf *annbuf.Buf, bufs []*annbuf.Buf, hw HeightWork, id int) *Class {
	return &Class{
		m: classMut{
			bufs:   bufs,
			topBuf: topBuf,
		},
		blockHeight: hw.BlockHeight,
		minAnnWork:  hw.Work,
		ID:          id,
	}
}

// WithBufs constructs a class from a set of buffers, taking the last one as
// the top buffer since it will be the last one to be stolen.
func WithBufs(bufs []*annbuf.Buf, hw HeightWork, id int) *Class {
	topBuf := bufs[len(bufs)-1]
	return New(topBuf, bufs[:len(bufs)-1], hw, id)
}

// =============================================================================

// PushAnns absorbs a batch of announcements into the class. The anns and
// indexes slices are parallel; spare is one empty replacement buffer to
// rotate in if the top buffer fills, or nil if the caller has none. It
// returns how many entries were consumed and the spare buffer back if it
// was not needed. A partial count means the class ran out of buffer space;
// the caller retries the remainder once more buffers are available.
func (c *Class) PushAnns(anns [][]byte, indexes []uint32, spare *annbuf.Buf) (int, *annbuf.Buf) {
	totalConsumed := 0

	for {

		// Fast path: append to the top buffer under the read lock so
		// concurrent producers don't serialize on each other.
		c.mu.RLock()
		if c.m.retired {
			c.mu.RUnlock()
			return totalConsumed, spare
		}
		if tb := c.m.topBuf; tb != nil {
			consumed := tb.PushAnns(anns, indexes)
			totalConsumed += consumed
			if consumed == len(indexes) {
				c.mu.RUnlock()
				return totalConsumed, spare
			}
			anns = anns[consumed:]
			indexes = indexes[consumed:]
		}
		c.mu.RUnlock()

		// The top buffer is full. Without a replacement there is nothing
		// more this class can absorb.
		if spare == nil {
			return totalConsumed, nil
		}
		newBuf := spare
		spare = nil

		var oldTop *annbuf.Buf
		c.mu.Lock()
		{
			// The class may have been retired between releasing the read
			// lock and taking the write lock.
			if c.m.retired {
				c.mu.Unlock()
				return totalConsumed, newBuf
			}

			// Double-check under the write lock. Another producer may have
			// already rotated a fresh buffer in, and rotating again here
			// would throw away its remaining capacity.
			if tb := c.m.topBuf; tb != nil {
				consumed := tb.PushAnns(anns, indexes)
				if consumed > 0 {
					totalConsumed += consumed
					if consumed == len(indexes) {
						c.mu.Unlock()
						return totalConsumed, newBuf
					}
					anns = anns[consumed:]
					indexes = indexes[consumed:]
				}
			}

			oldTop = c.m.topBuf
			c.m.topBuf = newBuf
		}
		c.mu.Unlock()

		// Freeze the displaced buffer outside the class lock. No producer
		// can be appending to it anymore: the rotation above happened
		// under the write lock, so every fast-path append has released
		// the read lock and will re-read the new top buffer.
		if oldTop != nil {
			oldTop.Lock()

			c.mu.Lock()
			c.m.bufs = append(c.m.bufs, oldTop)
			c.mu.Unlock()
		}
	}
}

// StealBuf removes one buffer from the class for mining. It fails with
// ErrMining while a hand-off is already in flight. When no frozen buffers
// exist the top buffer is taken, possibly partially filled, leaving the
// class dead. Otherwise every dependent proof tree is invalidated, since
// removing a buffer changes the announcement set those proofs were built
// from, and the most recently frozen buffer is returned.
//
// StealBuf does not set the mining latch; wrapping the actual mining work
// with SetMining is the caller's responsibility.
func (c *Class) StealBuf() (*annbuf.Buf, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.m.mining {
		return nil, ErrMining
	}

	if len(c.m.bufs) == 0 {
		tb := c.m.topBuf
		c.m.topBuf = nil
		return tb, nil
	}

	for i := range c.m.dependentTrees {
		c.m.dependentTrees[i].invalidate()
	}
	c.m.dependentTrees = nil

	last := len(c.m.bufs) - 1
	buf := c.m.bufs[last]
	c.m.bufs = c.m.bufs[:last]

	return buf, nil
}

// SetMining sets or clears the mining exclusivity latch. While set, no
// buffer can be stolen from this class.
func (c *Class) SetMining(mining bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.m.mining = mining
}

// AddDependentTree records that the specified proof tree was built assuming
// this class's current buffer set, capturing the tree's current root. The
// link is invalidated when a frozen buffer is later stolen.
func (c *Class) AddDependentTree(t *prooftree.Tree) {
	link := hashTree{
		origin:   t,
		rootHash: t.Root(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.m.dependentTrees = append(c.m.dependentTrees, link)
}

// IsDead reports whether the class holds no buffers at all and can be
// discarded by its owner.
func (c *Class) IsDead() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.m.bufs) == 0 && c.m.topBuf == nil
}

// Retire marks a drained class as permanently dead so no push can rotate a
// fresh buffer into it afterward. It reports whether the class was retired:
// a class still holding buffers cannot be retired.
func (c *Class) Retire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.m.bufs) > 0 || c.m.topBuf != nil {
		return false
	}

	c.m.retired = true

	return true
}

// =============================================================================

// ReadyAnns returns the number of announcements across the frozen buffers.
// The top buffer is excluded since it may still be mutating.
func (c *Class) ReadyAnns() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var anns int
	for _, b := range c.m.bufs {
		anns += b.NextAnnIndex()
	}

	return anns
}

// ReadyAnnsBufs returns the number of ready announcements along with the
// number of frozen buffers holding them.
func (c *Class) ReadyAnnsBufs() (int, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var anns int
	for _, b := range c.m.bufs {
		anns += b.NextAnnIndex()
	}

	return anns, len(c.m.bufs)
}

// ReadReadyAnns copies the announcements from every frozen buffer into the
// caller's slice, which must hold at least ReadyAnns entries. The caller
// must guarantee no rotation can add a frozen buffer between sizing the
// slice and calling this; when that cannot be guaranteed use CopyReadyAnns.
func (c *Class) ReadReadyAnns(out []prooftree.AnnData) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	c.readReady(out)
}

// CopyReadyAnns sizes, allocates, and copies the frozen buffers' contents
// under a single lock acquisition, so a concurrent rotation cannot grow the
// buffer set between the count and the copy.
func (c *Class) CopyReadyAnns() []prooftree.AnnData {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var total int
	for _, b := range c.m.bufs {
		total += b.NextAnnIndex()
	}

	out := make([]prooftree.AnnData, total)
	c.readReady(out)

	return out
}

// readReady performs the copy out. The class lock must be held. The output
// is split into one sub-slice per buffer sized to that buffer's count, then
// the copies run concurrently: each buffer is immutable while frozen and
// each copy touches only its own disjoint region.
func (c *Class) readReady(out []prooftree.AnnData) {
	type job struct {
		buf *annbuf.Buf
		out []prooftree.AnnData
	}

	jobs := make([]job, 0, len(c.m.bufs))
	for _, b := range c.m.bufs {
		count := b.NextAnnIndex()
		jobs = append(jobs, job{buf: b, out: out[:count]})
		out = out[count:]
	}

	var wg sync.WaitGroup
	wg.Add(len(jobs))

	for _, j := range jobs {
		go func(j job) {
			defer wg.Done()
			j.buf.ReadReadyAnns(j.out)
		}(j)
	}

	wg.Wait()
}

// =============================================================================

// EffectiveWork returns the effective value of this class's announcements
// when mining the specified next block height. The result is a compact
// target where lower numbers mean higher value. Value degrades with age
// inside the degradation window; past the window the base work applies
// unchanged.
func (c *Class) EffectiveWork(nextBlockHeight uint32) uint32 {
	if c.blockHeight+degradeWindow < nextBlockHeight {
		return c.minAnnWork
	}

	return difficulty.DegradeAnnouncementTarget(c.minAnnWork, nextBlockHeight-c.blockHeight)
}

// BlockHeight returns the height this class's announcements were minted
// against.
func (c *Class) BlockHeight() uint32 {
	return c.blockHeight
}

// MinAnnWork returns the class's base work threshold.
func (c *Class) MinAnnWork() uint32 {
	return c.minAnnWork
}

// HeightWork returns the class's classification key.
func (c *Class) HeightWork() HeightWork {
	return HeightWork{BlockHeight: c.blockHeight, Work: c.minAnnWork}
}

// BlockHash returns the hash of the block this class is associated with.
func (c *Class) BlockHash() common.Hash {
	return c.blockHash
}
