// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	v1 "github.com/pktlabs/blkmine/business/web/v1"
	"github.com/pktlabs/blkmine/foundation/blkmine/state"
	"github.com/pktlabs/blkmine/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of private miner endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// Status returns the current status of the miner node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	status := struct {
		Stats   state.Stats        `json:"stats"`
		Classes []state.ClassStats `json:"classes"`
	}{
		Stats:   h.State.QueryStats(),
		Classes: h.State.QueryClasses(),
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// SignalMining signals the worker to start a mining operation.
func (h Handlers) SignalMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.State.Worker.SignalStartMining()

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "mining signaled",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// CancelMining signals the worker to cancel any mining operation in flight.
func (h Handlers) CancelMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.State.Worker.SignalCancelMining()

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "cancel signaled",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// UpdateHeight moves the miner to a new next block height.
func (h Handlers) UpdateHeight(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	heightStr := web.Param(r, "height")

	height, err := strconv.ParseUint(heightStr, 10, 32)
	if err != nil {
		return v1.NewRequestError(fmt.Errorf("invalid height %q", heightStr), http.StatusBadRequest)
	}

	h.State.UpdateNextHeight(uint32(height))

	resp := struct {
		Status string `json:"status"`
		Height uint32 `json:"height"`
	}{
		Status: "height updated",
		Height: uint32(height),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
