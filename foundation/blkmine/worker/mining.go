package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pktlabs/blkmine/foundation/blkmine/state"
)

// miningOperations handles mining.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case <-w.startMining:
			if !w.isShutdown() {
				w.runMiningOperation()
			}
		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}
	}
}

// readyCheckOperations signals a mining operation whenever announcements
// have accumulated in frozen buffers and nothing is mining them.
func (w *Worker) readyCheckOperations() {
	w.evHandler("worker: readyCheckOperations: G started")
	defer w.evHandler("worker: readyCheckOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			if w.state.TotalReadyAnns() > 0 {
				w.SignalStartMining()
			}
		case <-w.shut:
			w.evHandler("worker: readyCheckOperations: received shut signal")
			return
		}
	}
}

// runMiningOperation takes announcements from the best class and mines a
// proof over them.
func (w *Worker) runMiningOperation() {
	w.evHandler("worker: runMiningOperation: MINING: started")
	defer w.evHandler("worker: runMiningOperation: MINING: completed")

	// After running a mining operation, check if another should be
	// signaled right away.
	defer func() {
		if ready := w.state.TotalReadyAnns(); ready > 0 {
			w.evHandler("worker: runMiningOperation: MINING: signal new mining operation: anns[%d]", ready)
			w.SignalStartMining()
		}
	}()

	// Drain the cancel mining channel before starting.
	select {
	case <-w.cancelMining:
		w.evHandler("worker: runMiningOperation: MINING: drained cancel channel")
	default:
	}

	// Create a context so mining can be cancelled.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Can't return from this function until these G's are complete.
	var wg sync.WaitGroup
	wg.Add(2)

	// This G exists to cancel the mining operation.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		select {
		case <-w.cancelMining:
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: requested")
		case <-ctx.Done():
		}
	}()

	// This G is performing the mining.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		t := time.Now()
		proof, err := w.state.MineNextProof(ctx)
		duration := time.Since(t)

		w.evHandler("worker: runMiningOperation: MINING: mining duration[%v]", duration)

		if err != nil {
			switch {
			case errors.Is(err, state.ErrNoAnns):
				w.evHandler("worker: runMiningOperation: MINING: WARNING: no announcements ready")
			case ctx.Err() != nil:
				w.evHandler("worker: runMiningOperation: MINING: CANCEL: complete")
			default:
				w.evHandler("worker: runMiningOperation: MINING: ERROR: %s", err)
			}
			return
		}

		w.evHandler("worker: runMiningOperation: MINING: proof found: class[%d] anns[%d] nonce[%d]", proof.ClassID, proof.AnnCount, proof.Nonce)
	}()

	// Wait for both G's to terminate.
	wg.Wait()
}
