package state

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"math"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pktlabs/blkmine/foundation/blkmine/annbuf"
	"github.com/pktlabs/blkmine/foundation/blkmine/annclass"
	"github.com/pktlabs/blkmine/foundation/blkmine/difficulty"
	"github.com/pktlabs/blkmine/foundation/blkmine/prooftree"
)

// ErrNoAnns is returned when a proof is requested to be mined and no class
// has any announcements to offer.
var ErrNoAnns = errors.New("no announcements ready to mine")

// Proof represents a mining proof found over one class's announcements.
type Proof struct {
	ClassID     int         `json:"class_id"`
	BlockHeight uint32      `json:"block_height"`
	AnnCount    int         `json:"ann_count"`
	Root        common.Hash `json:"root"`
	Nonce       uint64      `json:"nonce"`
	Hash        common.Hash `json:"hash"`
	Target      uint32      `json:"target"`
	FoundAt     time.Time   `json:"found_at"`
}

// =============================================================================

// StealForMining selects the most valuable class for the specified next
// block height and removes one buffer from it. Classes already mining are
// skipped rather than waited on; drained classes are reaped along the way.
func (s *State) StealForMining(nextHeight uint32) (*annclass.Class, *annbuf.Buf, error) {
	classes := s.liveClasses()

	// Rank by effective work, best (lowest target) first. Compact targets
	// don't compare numerically across exponents, so compare expanded.
	targets := make(map[*annclass.Class]*big.Int, len(classes))
	for _, cls := range classes {
		targets[cls] = difficulty.CompactToBig(cls.EffectiveWork(nextHeight))
	}
	sort.Slice(classes, func(i, j int) bool {
		return targets[classes[i]].Cmp(targets[classes[j]]) < 0
	})

	for _, cls := range classes {
		if cls.IsDead() {
			s.reapClass(cls)
			continue
		}

		buf, err := cls.StealBuf()
		if err != nil {
			// Another consumer holds this class; try the next one.
			continue
		}
		if buf == nil {
			continue
		}

		return cls, buf, nil
	}

	return nil, nil, ErrNoAnns
}

// MineNextProof steals the best buffer available, builds a proof tree over
// the class's announcements, and searches for a nonce that satisfies the
// class's effective target. This can be cancelled through the context.
func (s *State) MineNextProof(ctx context.Context) (Proof, error) {
	s.evHandler("state: MineNextProof: MINING: select class")

	nextHeight := s.nextHeight.Load()

	cls, buf, err := s.StealForMining(nextHeight)
	if err != nil {
		return Proof{}, err
	}

	// Hold the exclusivity latch for the duration of the mining work so no
	// other consumer can steal from this class underneath the proof.
	cls.SetMining(true)
	defer cls.SetMining(false)
	defer s.ReleaseBuf(buf)

	// The stolen buffer may be a partially filled top buffer; freeze it so
	// it can be read without synchronization.
	buf.Lock()

	stolen := make([]prooftree.AnnData, buf.NextAnnIndex())
	buf.ReadReadyAnns(stolen)

	// The mining latch blocks steals but not pushes, so a concurrent
	// submission can rotate a new frozen buffer into the class at any
	// moment. Sizing and copying the ready set must happen under one lock
	// acquisition.
	anns := append(stolen, cls.CopyReadyAnns()...)

	if len(anns) == 0 {
		return Proof{}, ErrNoAnns
	}

	s.evHandler("state: MineNextProof: MINING: class[%d] anns[%d] height[%d]", cls.ID, len(anns), nextHeight)

	tree := prooftree.New()
	root, err := tree.Build(anns)
	if err != nil {
		return Proof{}, err
	}

	// Future steals from this class change the announcement set and must
	// invalidate this proof structure.
	cls.AddDependentTree(tree)

	target := cls.EffectiveWork(nextHeight)
	nonce, hash, err := searchProof(ctx, root, nextHeight, target, s.evHandler)
	if err != nil {
		return Proof{}, err
	}

	proof := Proof{
		ClassID:     cls.ID,
		BlockHeight: cls.BlockHeight(),
		AnnCount:    len(anns),
		Root:        root,
		Nonce:       nonce,
		Hash:        hash,
		Target:      target,
		FoundAt:     time.Now().UTC(),
	}

	s.proofMu.Lock()
	s.lastProof = &proof
	s.proofMu.Unlock()

	if cls.IsDead() {
		s.reapClass(cls)
	}

	return proof, nil
}

// LastProof returns the most recent proof found, or nil when none has been
// mined yet.
func (s *State) LastProof() *Proof {
	s.proofMu.RLock()
	defer s.proofMu.RUnlock()

	if s.lastProof == nil {
		return nil
	}

	proof := *s.lastProof
	return &proof
}

// =============================================================================

// searchProof performs the work of finding a nonce such that the hash of
// the proof root, the block height, and the nonce lands at or below the
// specified compact target.
func searchProof(ctx context.Context, root common.Hash, height uint32, target uint32, ev EventHandler) (uint64, common.Hash, error) {
	ev("state: searchProof: MINING: started")
	defer ev("state: searchProof: MINING: completed")

	tar := difficulty.CompactToBig(target)

	// Choose a random starting point for the nonce. After this, the nonce
	// is incremented by 1 until a solution is found.
	nBig, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return 0, common.Hash{}, err
	}
	nonce := nBig.Uint64()

	var header [44]byte
	copy(header[:32], root.Bytes())
	binary.BigEndian.PutUint32(header[32:36], height)

	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("state: searchProof: MINING: attempts[%d]", attempts)
		}

		// Did the mining operation get cancelled.
		if ctx.Err() != nil {
			ev("state: searchProof: MINING: CANCELLED")
			return 0, common.Hash{}, ctx.Err()
		}

		binary.BigEndian.PutUint64(header[36:], nonce)
		hash := crypto.Keccak256Hash(header[:])

		if new(big.Int).SetBytes(hash.Bytes()).Cmp(tar) > 0 {
			nonce++
			continue
		}

		ev("state: searchProof: MINING: SOLVED: attempts[%d] hash[%s]", attempts, hash)

		return nonce, hash, nil
	}
}
