package routes

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"nftlend/gateway/middleware"
	"nftlend/orchestrator"
	"nftlend/portfolio"
)

// Rate limit groups.
const (
	GroupReads   = "reads"
	GroupActions = "actions"
)

// View is the read side the API renders.
type View interface {
	Snapshot() portfolio.Snapshot
}

// Refresher reloads the view on demand.
type Refresher interface {
	RefreshPosition(ctx context.Context) error
	RefreshInventory(ctx context.Context) error
}

// Actions runs user actions.
type Actions interface {
	Lend(ctx context.Context) orchestrator.Outcome
	Withdraw(ctx context.Context) orchestrator.Outcome
	Borrow(ctx context.Context) orchestrator.Outcome
	Repay(ctx context.Context) orchestrator.Outcome
	ClaimNFT(ctx context.Context) orchestrator.Outcome
	PostCollateral(ctx context.Context, nft common.Address, tokenID *big.Int) orchestrator.Outcome
	WithdrawCollateral(ctx context.Context, nft common.Address, tokenID *big.Int) orchestrator.Outcome
}

// Config wires the HTTP surface.
type Config struct {
	View          View
	Refresher     Refresher
	Actions       Actions
	Health        func(ctx context.Context) error
	RateLimiter   *middleware.RateLimiter
	Authenticator *middleware.Authenticator
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	Logger        *slog.Logger
}

// New builds the router.
func New(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	api := &api{
		view:      cfg.View,
		refresher: cfg.Refresher,
		actions:   cfg.Actions,
		health:    cfg.Health,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability
	group := func(name string) func(chi.Router) {
		return func(sr chi.Router) {
			if cfg.RateLimiter != nil {
				sr.Use(cfg.RateLimiter.Middleware(name))
			}
			if obs != nil {
				sr.Use(obs.Middleware(name))
			}
		}
	}

	r.Get("/healthz", api.healthz)

	r.Group(func(sr chi.Router) {
		group(GroupReads)(sr)
		sr.Get("/v1/position", api.getPosition)
		sr.Get("/v1/inventory", api.getInventory)
	})

	r.Group(func(sr chi.Router) {
		group(GroupActions)(sr)
		sr.Use(cfg.Authenticator.Middleware(GroupActions))
		sr.Post("/v1/actions/{action}", api.postAction)
		sr.Post("/v1/collateral/{operation}", api.postCollateral)
	})

	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}
	return r
}
