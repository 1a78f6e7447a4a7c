package prooftree_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pktlabs/blkmine/foundation/blkmine/prooftree"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// makeAnns constructs n announcements with distinct hashes.
func makeAnns(n int) []prooftree.AnnData {
	anns := make([]prooftree.AnnData, n)
	for i := range anns {
		anns[i] = prooftree.AnnData{
			AnnHash: crypto.Keccak256Hash([]byte{byte(i), byte(i >> 8)}),
			Index:   uint32(i),
		}
	}

	return anns
}

func TestBuild(t *testing.T) {
	t.Log("Given the need to validate proof tree construction.")
	{
		t.Log("\tTest 0:\tWhen building a tree over a set of announcements.")
		{
			tree := prooftree.New()
			anns := makeAnns(7)

			root, err := tree.Build(anns)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to build the tree: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to build the tree.", success)

			if root == (common.Hash{}) {
				t.Fatalf("\t%s\tTest 0:\tShould produce a non-zero root.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould produce a non-zero root.", success)

			got := tree.Root()
			if got == nil || *got != root {
				t.Fatalf("\t%s\tTest 0:\tShould report the same root.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould report the same root.", success)

			if tree.Count() != len(anns) {
				t.Fatalf("\t%s\tTest 0:\tShould count %d announcements: got %d.", failed, len(anns), tree.Count())
			}
			t.Logf("\t%s\tTest 0:\tShould count %d announcements.", success, len(anns))
		}

		t.Log("\tTest 1:\tWhen building over announcements in different orders.")
		{
			anns := makeAnns(5)
			treeA := prooftree.New()
			rootA, err := treeA.Build(anns)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to build the first tree: %v", failed, err)
			}

			shuffled := []prooftree.AnnData{anns[3], anns[0], anns[4], anns[2], anns[1]}
			treeB := prooftree.New()
			rootB, err := treeB.Build(shuffled)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to build the second tree: %v", failed, err)
			}

			if rootA != rootB {
				t.Fatalf("\t%s\tTest 1:\tShould produce the same root regardless of input order.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould produce the same root regardless of input order.", success)
		}

		t.Log("\tTest 2:\tWhen building with no announcements.")
		{
			tree := prooftree.New()
			if _, err := tree.Build(nil); err == nil {
				t.Fatalf("\t%s\tTest 2:\tShould reject an empty build.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould reject an empty build.", success)
		}
	}
}

func TestReset(t *testing.T) {
	t.Log("Given the need to validate proof tree resets.")
	{
		t.Log("\tTest 0:\tWhen resetting only on a matching root.")
		{
			tree := prooftree.New()
			anns := makeAnns(4)

			root, err := tree.Build(anns)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to build the tree: %v", failed, err)
			}

			stale := crypto.Keccak256Hash([]byte("stale"))
			if tree.ResetMatching(stale) {
				t.Fatalf("\t%s\tTest 0:\tShould not reset on a stale root.", failed)
			}
			if tree.Root() == nil {
				t.Fatalf("\t%s\tTest 0:\tShould keep the root after a stale reset.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould not reset on a stale root.", success)

			if !tree.ResetMatching(root) {
				t.Fatalf("\t%s\tTest 0:\tShould reset on the matching root.", failed)
			}
			if tree.Root() != nil {
				t.Fatalf("\t%s\tTest 0:\tShould have no root after the reset.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould reset on the matching root.", success)

			if tree.ResetMatching(root) {
				t.Fatalf("\t%s\tTest 0:\tShould not reset twice for the same root.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould not reset twice for the same root.", success)
		}

		t.Log("\tTest 1:\tWhen resetting unconditionally.")
		{
			tree := prooftree.New()
			anns := makeAnns(2)

			if _, err := tree.Build(anns); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to build the tree: %v", failed, err)
			}

			tree.Reset()
			if tree.Root() != nil || tree.Count() != 0 {
				t.Fatalf("\t%s\tTest 1:\tShould be empty after the reset.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould be empty after the reset.", success)
		}
	}
}

func TestProof(t *testing.T) {
	t.Log("Given the need to validate announcement proofs.")
	{
		t.Log("\tTest 0:\tWhen requesting a proof from a built tree.")
		{
			tree := prooftree.New()
			anns := makeAnns(6)

			if _, err := tree.Build(anns); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to build the tree: %v", failed, err)
			}

			proof, order, err := tree.Proof(anns[3])
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to generate a proof: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to generate a proof.", success)

			if len(proof) == 0 || len(proof) != len(order) {
				t.Fatalf("\t%s\tTest 0:\tShould pair every proof hash with an order.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould pair every proof hash with an order.", success)
		}

		t.Log("\tTest 1:\tWhen requesting a proof from an unbuilt tree.")
		{
			tree := prooftree.New()
			if _, _, err := tree.Proof(prooftree.AnnData{}); err == nil {
				t.Fatalf("\t%s\tTest 1:\tShould reject the proof request.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould reject the proof request.", success)
		}
	}
}
