package state_test

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pktlabs/blkmine/foundation/blkmine/annclass"
	"github.com/pktlabs/blkmine/foundation/blkmine/difficulty"
	"github.com/pktlabs/blkmine/foundation/blkmine/state"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// makeAnns constructs n distinct fake announcements.
func makeAnns(n int, base uint32) [][]byte {
	anns := make([][]byte, n)
	for i := range anns {
		ann := make([]byte, 8)
		binary.BigEndian.PutUint32(ann, base+uint32(i))
		anns[i] = ann
	}

	return anns
}

func newState(t *testing.T, bufCount int, bufCapacity int, nextHeight uint32) *state.State {
	t.Helper()

	s, err := state.New(state.Config{
		BufCount:    bufCount,
		BufCapacity: bufCapacity,
		NextHeight:  nextHeight,
		EvHandler:   func(v string, args ...any) { t.Logf(v, args...) },
	})
	if err != nil {
		t.Fatalf("unable to construct state: %v", err)
	}

	return s
}

func TestSubmitAnns(t *testing.T) {
	t.Log("Given the need to validate announcement submission and routing.")
	{
		t.Log("\tTest 0:\tWhen submitting batches for two different classifications.")
		{
			s := newState(t, 16, 8, 100)

			hwA := annclass.HeightWork{BlockHeight: 100, Work: 0x1d00ffff}
			hwB := annclass.HeightWork{BlockHeight: 99, Work: 0x1c00ffff}

			accepted, err := s.SubmitAnns(hwA, makeAnns(5, 0))
			if err != nil || accepted != 5 {
				t.Fatalf("\t%s\tTest 0:\tShould accept all 5 announcements: got %d, %v.", failed, accepted, err)
			}
			t.Logf("\t%s\tTest 0:\tShould accept all 5 announcements.", success)

			accepted, err = s.SubmitAnns(hwB, makeAnns(3, 100))
			if err != nil || accepted != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould accept the second batch: got %d, %v.", failed, accepted, err)
			}
			t.Logf("\t%s\tTest 0:\tShould accept the second batch.", success)

			classes := s.QueryClasses()
			if len(classes) != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould have 2 classes: got %d.", failed, len(classes))
			}
			t.Logf("\t%s\tTest 0:\tShould have 2 classes.", success)

			if s.TotalReadyAnns() != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould have no ready announcements before rotation: got %d.", failed, s.TotalReadyAnns())
			}
			t.Logf("\t%s\tTest 0:\tShould have no ready announcements before rotation.", success)
		}

		t.Log("\tTest 1:\tWhen a batch overflows the class's top buffer.")
		{
			s := newState(t, 16, 4, 100)

			hw := annclass.HeightWork{BlockHeight: 100, Work: 0x1d00ffff}
			accepted, err := s.SubmitAnns(hw, makeAnns(10, 0))
			if err != nil || accepted != 10 {
				t.Fatalf("\t%s\tTest 1:\tShould accept all 10 announcements: got %d, %v.", failed, accepted, err)
			}
			t.Logf("\t%s\tTest 1:\tShould accept all 10 announcements.", success)

			if ready := s.TotalReadyAnns(); ready != 8 {
				t.Fatalf("\t%s\tTest 1:\tShould have 8 ready announcements in frozen buffers: got %d.", failed, ready)
			}
			t.Logf("\t%s\tTest 1:\tShould have 8 ready announcements in frozen buffers.", success)
		}

		t.Log("\tTest 2:\tWhen the buffer pool runs dry.")
		{
			s := newState(t, 2, 4, 100)

			hw := annclass.HeightWork{BlockHeight: 100, Work: 0x1d00ffff}
			accepted, err := s.SubmitAnns(hw, makeAnns(100, 0))
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould not fail on a drained pool: %v.", failed, err)
			}

			// Two buffers of four slots each.
			if accepted != 8 {
				t.Fatalf("\t%s\tTest 2:\tShould accept only what the pool can hold: got %d.", failed, accepted)
			}
			t.Logf("\t%s\tTest 2:\tShould accept only what the pool can hold.", success)

			if s.PoolFree() != 0 {
				t.Fatalf("\t%s\tTest 2:\tShould have an empty pool: got %d.", failed, s.PoolFree())
			}
			t.Logf("\t%s\tTest 2:\tShould have an empty pool.", success)
		}

		t.Log("\tTest 3:\tWhen submitting an empty batch.")
		{
			s := newState(t, 2, 4, 100)

			hw := annclass.HeightWork{BlockHeight: 100, Work: 0x1d00ffff}
			accepted, err := s.SubmitAnns(hw, nil)
			if err != nil || accepted != 0 {
				t.Fatalf("\t%s\tTest 3:\tShould accept nothing without error: got %d, %v.", failed, accepted, err)
			}
			t.Logf("\t%s\tTest 3:\tShould accept nothing without error.", success)
		}
	}
}

func TestStealForMining(t *testing.T) {
	t.Log("Given the need to validate class selection for mining.")
	{
		t.Log("\tTest 0:\tWhen classes of different values compete.")
		{
			s := newState(t, 16, 4, 100)

			// The fresh class keeps its base work; the aged class degrades to
			// an easier, less valuable target.
			fresh := annclass.HeightWork{BlockHeight: 100, Work: 0x1d00ffff}
			aged := annclass.HeightWork{BlockHeight: 98, Work: 0x1d00ffff}

			if _, err := s.SubmitAnns(aged, makeAnns(6, 0)); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to submit to the aged class: %v.", failed, err)
			}
			if _, err := s.SubmitAnns(fresh, makeAnns(6, 100)); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to submit to the fresh class: %v.", failed, err)
			}

			cls, buf, err := s.StealForMining(100)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to steal a buffer: %v.", failed, err)
			}
			defer s.ReleaseBuf(buf)

			if cls.BlockHeight() != 100 {
				t.Fatalf("\t%s\tTest 0:\tShould pick the most valuable class: got height %d.", failed, cls.BlockHeight())
			}
			t.Logf("\t%s\tTest 0:\tShould pick the most valuable class.", success)
		}

		t.Log("\tTest 1:\tWhen no class has announcements.")
		{
			s := newState(t, 4, 4, 100)

			if _, _, err := s.StealForMining(100); !errors.Is(err, state.ErrNoAnns) {
				t.Fatalf("\t%s\tTest 1:\tShould fail with ErrNoAnns: got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould fail with ErrNoAnns.", success)
		}
	}
}

func TestMineNextProof(t *testing.T) {
	t.Log("Given the need to validate mining a proof end to end.")
	{
		t.Log("\tTest 0:\tWhen mining over a class with the easiest target.")
		{
			s := newState(t, 4, 8, 100)

			hw := annclass.HeightWork{BlockHeight: 100, Work: difficulty.MaxCompactTarget}
			if _, err := s.SubmitAnns(hw, makeAnns(6, 0)); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to submit announcements: %v.", failed, err)
			}

			proof, err := s.MineNextProof(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to mine a proof: %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to mine a proof.", success)

			if proof.AnnCount != 6 {
				t.Fatalf("\t%s\tTest 0:\tShould cover all 6 announcements: got %d.", failed, proof.AnnCount)
			}
			t.Logf("\t%s\tTest 0:\tShould cover all 6 announcements.", success)

			if proof.Target != difficulty.MaxCompactTarget || proof.BlockHeight != 100 {
				t.Fatalf("\t%s\tTest 0:\tShould record the class's target and height.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould record the class's target and height.", success)

			last := s.LastProof()
			if last == nil || last.Hash != proof.Hash {
				t.Fatalf("\t%s\tTest 0:\tShould record the proof as the latest.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould record the proof as the latest.", success)

			if s.PoolFree() != 4 {
				t.Fatalf("\t%s\tTest 0:\tShould return every buffer to the pool: got %d.", failed, s.PoolFree())
			}
			t.Logf("\t%s\tTest 0:\tShould return every buffer to the pool.", success)

			if stats := s.QueryStats(); stats.Classes != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould reap the drained class: got %d.", failed, stats.Classes)
			}
			t.Logf("\t%s\tTest 0:\tShould reap the drained class.", success)
		}

		t.Log("\tTest 1:\tWhen mining with nothing to mine.")
		{
			s := newState(t, 4, 8, 100)

			if _, err := s.MineNextProof(context.Background()); !errors.Is(err, state.ErrNoAnns) {
				t.Fatalf("\t%s\tTest 1:\tShould fail with ErrNoAnns: got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould fail with ErrNoAnns.", success)
		}

		t.Log("\tTest 2:\tWhen the mining operation is cancelled.")
		{
			s := newState(t, 4, 8, 100)

			// A hard target guarantees the search cannot finish before it
			// observes the cancelled context.
			hw := annclass.HeightWork{BlockHeight: 100, Work: 0x1c00ffff}
			if _, err := s.SubmitAnns(hw, makeAnns(4, 0)); err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to submit announcements: %v.", failed, err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			if _, err := s.MineNextProof(ctx); !errors.Is(err, context.Canceled) {
				t.Fatalf("\t%s\tTest 2:\tShould fail with the context error: got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould fail with the context error.", success)

			if s.PoolFree() != 4 {
				t.Fatalf("\t%s\tTest 2:\tShould return the stolen buffer to the pool: got %d.", failed, s.PoolFree())
			}
			t.Logf("\t%s\tTest 2:\tShould return the stolen buffer to the pool.", success)
		}
	}
}

func TestMineNextProofConcurrent(t *testing.T) {
	const (
		producers   = 4
		perProducer = 100
	)

	t.Log("Given the need to validate mining while submissions are in flight.")
	{
		t.Logf("\tTest 0:\tWhen %d producers race the mining path on single-slot buffers.", producers)
		{
			s := newState(t, 8, 1, 100)

			hw := annclass.HeightWork{BlockHeight: 100, Work: difficulty.MaxCompactTarget}

			var wg sync.WaitGroup
			wg.Add(producers)
			var producing atomic.Int64
			producing.Store(producers)
			for p := 0; p < producers; p++ {
				go func(p int) {
					defer wg.Done()
					defer producing.Add(-1)
					for i := 0; i < perProducer; i++ {
						s.SubmitAnns(hw, makeAnns(3, uint32(p*perProducer+i)))
					}
				}(p)
			}

			// Mine as fast as the producers can feed the class. Every ready
			// set is sized and copied while pushes keep rotating buffers in.
			for producing.Load() > 0 {
				if _, err := s.MineNextProof(context.Background()); err != nil && !errors.Is(err, state.ErrNoAnns) {
					t.Fatalf("\t%s\tTest 0:\tShould only fail for lack of announcements: %v.", failed, err)
				}
			}
			wg.Wait()
			t.Logf("\t%s\tTest 0:\tShould mine through concurrent submissions without fault.", success)

			// Drain what the producers left behind.
			for {
				_, err := s.MineNextProof(context.Background())
				if errors.Is(err, state.ErrNoAnns) {
					break
				}
				if err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to drain the classifier: %v.", failed, err)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould be able to drain the classifier.", success)

			if s.PoolFree() != 8 {
				t.Fatalf("\t%s\tTest 0:\tShould return every buffer to the pool: got %d of 8.", failed, s.PoolFree())
			}
			t.Logf("\t%s\tTest 0:\tShould return every buffer to the pool.", success)

			if stats := s.QueryStats(); stats.Classes != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould reap every drained class: got %d.", failed, stats.Classes)
			}
			t.Logf("\t%s\tTest 0:\tShould reap every drained class.", success)
		}
	}
}

func TestSubmitAfterReap(t *testing.T) {
	t.Log("Given the need to validate submissions after a class has been reaped.")
	{
		t.Log("\tTest 0:\tWhen a drained class is reaped and more announcements arrive.")
		{
			s := newState(t, 4, 8, 100)

			hw := annclass.HeightWork{BlockHeight: 100, Work: difficulty.MaxCompactTarget}
			if _, err := s.SubmitAnns(hw, makeAnns(5, 0)); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to submit the first batch: %v.", failed, err)
			}

			firstID := s.QueryClasses()[0].ID

			// Mining the only buffer leaves the class dead and reaps it.
			if _, err := s.MineNextProof(context.Background()); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to mine the class out: %v.", failed, err)
			}
			if stats := s.QueryStats(); stats.Classes != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould have reaped the class: got %d.", failed, stats.Classes)
			}
			t.Logf("\t%s\tTest 0:\tShould have reaped the class.", success)

			accepted, err := s.SubmitAnns(hw, makeAnns(5, 100))
			if err != nil || accepted != 5 {
				t.Fatalf("\t%s\tTest 0:\tShould accept the second batch: got %d, %v.", failed, accepted, err)
			}
			t.Logf("\t%s\tTest 0:\tShould accept the second batch.", success)

			classes := s.QueryClasses()
			if len(classes) != 1 || classes[0].ID == firstID {
				t.Fatalf("\t%s\tTest 0:\tShould route into a fresh class, not the reaped one.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould route into a fresh class, not the reaped one.", success)

			// One buffer backs the fresh class's top; the rest are free.
			if s.PoolFree() != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould account for every pool buffer: got %d free.", failed, s.PoolFree())
			}
			t.Logf("\t%s\tTest 0:\tShould account for every pool buffer.", success)
		}
	}
}

func TestUpdateNextHeight(t *testing.T) {
	t.Log("Given the need to validate height updates.")
	{
		t.Log("\tTest 0:\tWhen moving the classifier to a new height.")
		{
			s := newState(t, 4, 8, 100)

			if s.NextHeight() != 100 {
				t.Fatalf("\t%s\tTest 0:\tShould start at the configured height: got %d.", failed, s.NextHeight())
			}
			t.Logf("\t%s\tTest 0:\tShould start at the configured height.", success)

			s.UpdateNextHeight(105)
			if s.NextHeight() != 105 {
				t.Fatalf("\t%s\tTest 0:\tShould report the new height: got %d.", failed, s.NextHeight())
			}
			t.Logf("\t%s\tTest 0:\tShould report the new height.", success)

			if stats := s.QueryStats(); stats.NextHeight != 105 {
				t.Fatalf("\t%s\tTest 0:\tShould surface the new height in the stats.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould surface the new height in the stats.", success)
		}
	}
}
