// Package app wires the engine's subsystems together: one ledger, one
// store, one serialization mutex shared by staking, market, and escrow.
package app

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cilistia/engine/internal/assets"
	"github.com/cilistia/engine/internal/auth"
	"github.com/cilistia/engine/internal/clock"
	"github.com/cilistia/engine/internal/config"
	"github.com/cilistia/engine/internal/escrow"
	"github.com/cilistia/engine/internal/ledger"
	"github.com/cilistia/engine/internal/market"
	"github.com/cilistia/engine/internal/metrics"
	"github.com/cilistia/engine/internal/oracle"
	"github.com/cilistia/engine/internal/staking"
	"github.com/cilistia/engine/internal/store"
)

// App holds the assembled engine.
type App struct {
	Staking   *staking.Service
	Market    *market.Service
	Escrow    *escrow.Service
	Hub       *market.Hub
	Oracle    *oracle.Static
	Whitelist *assets.Whitelist
}

// New assembles the engine from its externally-constructed parts. The
// store and ledger are injected so callers choose persistence; the
// clock is injected so tests control time.
func New(cfg *config.Config, st store.Store, led ledger.Ledger, clk clock.Clock) *App {
	orc := oracle.NewStatic()
	for asset, price := range cfg.Oracle.Prices {
		orc.SetPrice(asset, price)
	}

	wl := assets.NewWhitelist(cfg.Market.NativeAsset, cfg.Staking.Asset)
	for _, asset := range cfg.Assets {
		wl.Set(asset, true)
	}

	policy := auth.NewStatic(cfg.Admins...)
	hub := market.NewHub()

	// All three services serialize on the same mutex: market force
	// actions reach into staking balances mid-operation.
	var mu sync.Mutex

	stakeSvc := staking.NewService(st, led, clk, staking.Config{
		Asset:          cfg.Staking.Asset,
		Custody:        cfg.Staking.Custody,
		FeeSink:        cfg.Oracle.FeeSink,
		LockPeriod:     cfg.Staking.LockPeriod.Duration,
		WeightExponent: cfg.Staking.WeightExponent,
	}, &mu)

	marketSvc := market.NewService(st, led, orc, stakeSvc, policy, wl, clk, market.Config{
		NativeAsset:     cfg.Market.NativeAsset,
		Custody:         cfg.Market.Custody,
		FeeSink:         cfg.Oracle.FeeSink,
		FeeRate:         cfg.Market.FeeRate,
		CollateralRatio: cfg.Market.CollateralRatio,
	}, &mu, hub)

	escrowSvc := escrow.NewService(st, led, policy, wl, clk, escrow.Config{
		NativeAsset: cfg.Market.NativeAsset,
		Custody:     cfg.Escrow.Custody,
		FeeSink:     cfg.Oracle.FeeSink,
		FeeRate:     cfg.Escrow.FeeRate,
		LockPeriod:  cfg.Escrow.LockPeriod.Duration,
	}, &mu)

	return &App{
		Staking:   stakeSvc,
		Market:    marketSvc,
		Escrow:    escrowSvc,
		Hub:       hub,
		Oracle:    orc,
		Whitelist: wl,
	}
}

// Router builds the full HTTP surface.
func (a *App) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"engine"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ws", a.Hub.HandleWS)

		r.Route("/staking", func(r chi.Router) {
			r.Post("/stake", a.Staking.HandleStake)
			r.Post("/unstake", a.Staking.HandleUnStake)
			r.Post("/rewards", a.Staking.HandleDepositReward)
			r.Get("/{account}", a.Staking.HandleGetAccount)
		})

		r.Route("/positions", func(r chi.Router) {
			r.Post("/", a.Market.HandleCreatePosition)
			r.Get("/", a.Market.HandleListPositions)
			r.Get("/{key}", a.Market.HandleGetPosition)
			r.Post("/{key}/increase", a.Market.HandleIncreasePosition)
			r.Post("/{key}/decrease", a.Market.HandleDecreasePosition)
			r.Post("/{key}/force-remove", a.Market.HandleRemovePosition)
		})

		r.Route("/offers", func(r chi.Router) {
			r.Post("/", a.Market.HandleCreateOffer)
			r.Get("/{key}", a.Market.HandleGetOffer)
			r.Post("/{key}/cancel", a.Market.HandleCancelOffer)
			r.Post("/{key}/release", a.Market.HandleReleaseOffer)
			r.Post("/{key}/force-cancel", a.Market.HandleForceCancelOffer)
		})

		r.Get("/price/{asset}", a.Market.HandleTokenPrice)

		r.Route("/escrow", func(r chi.Router) {
			r.Post("/", a.Escrow.HandleCreateTransaction)
			r.Get("/{key}", a.Escrow.HandleGetTransaction)
			r.Post("/{key}/sign", a.Escrow.HandleSignTransaction)
			r.Post("/{key}/reject", a.Escrow.HandleRejectTransaction)
			r.Post("/{key}/resume", a.Escrow.HandleResumeTransaction)
			r.Post("/{key}/finish", a.Escrow.HandleFinishTransaction)
		})

		r.Post("/whitelist", a.Escrow.HandleSetWhitelist)
	})

	return r
}
