// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	v1 "github.com/pktlabs/blkmine/business/web/v1"
	"github.com/pktlabs/blkmine/foundation/blkmine/annclass"
	"github.com/pktlabs/blkmine/foundation/blkmine/state"
	"github.com/pktlabs/blkmine/foundation/events"
	"github.com/pktlabs/blkmine/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of public miner endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitAnns absorbs a batch of announcements into the classifier.
func (h Handlers) SubmitAnns(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var payload SubmitAnns
	if err := web.Decode(r, &payload); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	anns := make([][]byte, len(payload.Anns))
	for i, annHex := range payload.Anns {
		ann, err := hexutil.Decode(annHex)
		if err != nil {
			return v1.NewRequestError(fmt.Errorf("ann %d is not valid hex: %w", i, err), http.StatusBadRequest)
		}
		anns[i] = ann
	}

	hw := annclass.HeightWork{
		BlockHeight: payload.BlockHeight,
		Work:        payload.Work,
	}

	h.Log.Infow("submit anns", "traceid", v.TraceID, "height", hw.BlockHeight, "work", fmt.Sprintf("%#x", hw.Work), "count", len(anns))

	accepted, err := h.State.SubmitAnns(hw, anns)
	if err != nil {
		if errors.Is(err, state.ErrNoBuffers) {
			return v1.NewRequestError(err, http.StatusServiceUnavailable)
		}
		return err
	}

	status := "accepted"
	if accepted < len(anns) {
		status = "partial: resubmit remainder when buffers free up"
	}

	resp := SubmitResult{
		Accepted: accepted,
		Dropped:  len(anns) - accepted,
		Status:   status,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Classes returns the current set of announcement classes.
func (h Handlers) Classes(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.QueryClasses(), http.StatusOK)
}

// Stats returns the aggregate classifier stats.
func (h Handlers) Stats(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.QueryStats(), http.StatusOK)
}

// LastProof returns the most recently mined proof.
func (h Handlers) LastProof(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	proof := h.State.LastProof()
	if proof == nil {
		return v1.NewRequestError(errors.New("no proof mined yet"), http.StatusNotFound)
	}

	return web.Respond(ctx, w, proof, http.StatusOK)
}
