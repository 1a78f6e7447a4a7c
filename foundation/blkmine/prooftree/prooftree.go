// Package prooftree maintains the proof structure built over a class's
// announcements. A tree may be shared by multiple announcement classes, so
// it carries its own lock independent of any class lock.
package prooftree

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pktlabs/blkmine/foundation/blkmine/merkle"
)

// AnnData represents one announcement inside a proof: the announcement hash
// plus its location in the miner's announcement table.
type AnnData struct {
	AnnHash common.Hash `json:"ann_hash"`
	Index   uint32      `json:"index"`
}

// Hash returns the leaf hash for this announcement, implementing the
// merkle.Hashable interface.
func (a AnnData) Hash() ([]byte, error) {
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], a.Index)

	h := sha256.New()
	h.Write(a.AnnHash.Bytes())
	h.Write(idx[:])

	return h.Sum(nil), nil
}

// Equals reports whether two announcements are the same entry, implementing
// the merkle.Hashable interface.
func (a AnnData) Equals(other AnnData) bool {
	return a == other
}

// =============================================================================

// Tree represents a proof structure over a set of announcements. The zero
// state has no root; Build establishes one and Reset clears it.
type Tree struct {
	mu   sync.Mutex
	tree *merkle.Tree[AnnData]
	root *common.Hash
}

// New constructs an empty proof tree.
func New() *Tree {
	return &Tree{}
}

// Build orders the announcements by hash, constructs the merkle tree over
// them, and records the resulting root.
func (t *Tree) Build(anns []AnnData) (common.Hash, error) {
	if len(anns) == 0 {
		return common.Hash{}, errors.New("cannot build a proof with no announcements")
	}

	sorted := make([]AnnData, len(anns))
	copy(sorted, anns)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].AnnHash.Bytes(), sorted[j].AnnHash.Bytes()) < 0
	})

	tree, err := merkle.NewTree(sorted)
	if err != nil {
		return common.Hash{}, err
	}

	root := common.BytesToHash(tree.MerkleRoot)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.tree = tree
	t.root = &root

	return root, nil
}

// Root returns a copy of the current root hash, or nil if the tree has not
// been built or was reset.
func (t *Tree) Root() *common.Hash {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.root == nil {
		return nil
	}

	root := *t.root
	return &root
}

// Reset clears the tree back to its unbuilt state.
func (t *Tree) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tree = nil
	t.root = nil
}

// ResetMatching clears the tree only if its current root still equals the
// specified root. A tree that has already been rebuilt by someone else is
// left untouched. It reports whether the reset took place.
func (t *Tree) ResetMatching(root common.Hash) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.root == nil || *t.root != root {
		return false
	}

	t.tree = nil
	t.root = nil

	return true
}

// Proof returns the merkle proof and concatenation order for the specified
// announcement. The tree must be built.
func (t *Tree) Proof(ann AnnData) ([][]byte, []int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.tree == nil {
		return nil, nil, errors.New("proof tree has not been built")
	}

	return t.tree.Proof(ann)
}

// Count returns the number of announcements in the built tree, zero when
// the tree is unbuilt.
func (t *Tree) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.tree == nil {
		return 0
	}

	return len(t.tree.Values())
}
