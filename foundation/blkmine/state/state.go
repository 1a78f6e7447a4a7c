// Package state is the core API for the announcement classifier and
// implements all the business rules and processing for absorbing
// announcements and handing buffers to the mining workflow.
package state

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pktlabs/blkmine/foundation/blkmine/annbuf"
	"github.com/pktlabs/blkmine/foundation/blkmine/annclass"
)

// ErrNoBuffers is returned when the buffer pool is fully drained and a new
// class cannot be given an initial buffer. Retry once buffers come back
// from mining.
var ErrNoBuffers = errors.New("no free announcement buffers")

// =============================================================================

// EventHandler defines a function that is called when events occur in the
// processing of announcements and proofs.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by
// any package providing support for mining.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining()
}

// =============================================================================

// Config represents the configuration required to start the classifier.
type Config struct {
	BufCount    int
	BufCapacity int
	NextHeight  uint32
	EvHandler   EventHandler
}

// State manages the announcement classes and the buffer pool feeding them.
type State struct {
	evHandler   EventHandler
	bufCapacity int

	mu          sync.RWMutex
	classes     map[annclass.HeightWork]*annclass.Class
	nextClassID int

	poolMu sync.Mutex
	pool   []*annbuf.Buf

	proofMu   sync.RWMutex
	lastProof *Proof

	nextHeight atomic.Uint32
	annIndex   atomic.Uint32

	Worker Worker
}

// New constructs the classifier with a pre-allocated pool of announcement
// buffers.
func New(cfg Config) (*State, error) {
	if cfg.BufCount <= 0 || cfg.BufCapacity <= 0 {
		return nil, errors.New("buffer pool configuration must be positive")
	}

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	pool := make([]*annbuf.Buf, cfg.BufCount)
	for i := range pool {
		pool[i] = annbuf.New(cfg.BufCapacity)
	}

	s := State{
		evHandler:   ev,
		bufCapacity: cfg.BufCapacity,
		classes:     make(map[annclass.HeightWork]*annclass.Class),
		pool:        pool,
	}
	s.nextHeight.Store(cfg.NextHeight)

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the miner.

	return &s, nil
}

// Shutdown cleanly brings the classifier down.
func (s *State) Shutdown() {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	if s.Worker != nil {
		s.Worker.Shutdown()
	}
}

// =============================================================================

// NextHeight returns the block height currently being mined against.
func (s *State) NextHeight() uint32 {
	return s.nextHeight.Load()
}

// UpdateNextHeight moves the classifier to a new next block height. Classes
// minted against older heights degrade in value per their policy and are
// reaped once drained.
func (s *State) UpdateNextHeight(height uint32) {
	s.nextHeight.Store(height)
	s.evHandler("state: UpdateNextHeight: height[%d]", height)
}

// =============================================================================

// allocBuf takes one buffer from the free pool, or nil when the pool is dry.
func (s *State) allocBuf() *annbuf.Buf {
	s.poolMu.Lock()
	defer s.poolMu.Unlock()

	if len(s.pool) == 0 {
		return nil
	}

	buf := s.pool[len(s.pool)-1]
	s.pool = s.pool[:len(s.pool)-1]

	return buf
}

// ReleaseBuf resets a buffer and returns it to the free pool.
func (s *State) ReleaseBuf(buf *annbuf.Buf) {
	if buf == nil {
		return
	}
	buf.Reset()

	s.poolMu.Lock()
	defer s.poolMu.Unlock()

	s.pool = append(s.pool, buf)
}

// PoolFree returns the number of buffers left in the free pool.
func (s *State) PoolFree() int {
	s.poolMu.Lock()
	defer s.poolMu.Unlock()

	return len(s.pool)
}

// =============================================================================

// classFor returns the class for the specified key, constructing it with an
// initial buffer from the pool when it does not exist yet.
func (s *State) classFor(hw annclass.HeightWork) (*annclass.Class, error) {
	s.mu.RLock()
	cls, exists := s.classes[hw]
	s.mu.RUnlock()

	if exists {
		return cls, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another producer may have created the class while the read lock
	// was released.
	if cls, exists := s.classes[hw]; exists {
		return cls, nil
	}

	topBuf := s.allocBuf()
	if topBuf == nil {
		return nil, ErrNoBuffers
	}

	cls = annclass.New(topBuf, nil, hw, s.nextClassID)
	s.classes[hw] = cls
	s.nextClassID++

	s.evHandler("state: classFor: new class[%d] height[%d] work[%#x]", cls.ID, hw.BlockHeight, hw.Work)

	return cls, nil
}

// reapClass removes a drained class from the classifier. The class is
// retired before it leaves the map so a producer still holding the handle
// cannot rotate a fresh buffer into it: those announcements would never be
// seen by the mining path again. Retiring and removing happen under the
// same lock hold, so a retired class is never resolvable through the map.
func (s *State) reapClass(cls *annclass.Class) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !cls.Retire() {
		return
	}

	hw := cls.HeightWork()
	if current, exists := s.classes[hw]; exists && current == cls {
		delete(s.classes, hw)
		s.evHandler("state: reapClass: class[%d] removed", cls.ID)
	}
}

// liveClasses returns a snapshot of the current classes.
func (s *State) liveClasses() []*annclass.Class {
	s.mu.RLock()
	defer s.mu.RUnlock()

	classes := make([]*annclass.Class, 0, len(s.classes))
	for _, cls := range s.classes {
		classes = append(classes, cls)
	}

	return classes
}
