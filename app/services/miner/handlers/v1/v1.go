// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/pktlabs/blkmine/app/services/miner/handlers/v1/private"
	"github.com/pktlabs/blkmine/app/services/miner/handlers/v1/public"
	"github.com/pktlabs/blkmine/foundation/blkmine/state"
	"github.com/pktlabs/blkmine/foundation/events"
	"github.com/pktlabs/blkmine/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	Evts  *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodPost, version, "/anns/submit", pbl.SubmitAnns)
	app.Handle(http.MethodGet, version, "/classes/list", pbl.Classes)
	app.Handle(http.MethodGet, version, "/stats", pbl.Stats)
	app.Handle(http.MethodGet, version, "/proof/last", pbl.LastProof)
	app.Handle(http.MethodGet, version, "/events", pbl.Events)
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
	}

	app.Handle(http.MethodGet, version, "/node/status", prv.Status)
	app.Handle(http.MethodGet, version, "/node/mining/signal", prv.SignalMining)
	app.Handle(http.MethodGet, version, "/node/mining/cancel", prv.CancelMining)
	app.Handle(http.MethodPost, version, "/node/height/:height", prv.UpdateHeight)
}
