package gateway

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config wires the router to its collaborators.
type Config struct {
	Engine  EngineAPI
	Logger  *slog.Logger
	Limiter *RateLimiter
}

// New builds the HTTP surface over the engine: mutating position and
// liquidation endpoints, read-only queries, /healthz and /metrics.
func New(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{engine: cfg.Engine, logger: logger}

	r := chi.NewRouter()
	r.Use(requestLogger(logger))
	if cfg.Limiter != nil {
		r.Use(cfg.Limiter.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/positions/deposit", h.deposit)
		r.Post("/positions/mint", h.mint)
		r.Post("/positions/deposit-and-mint", h.depositAndMint)
		r.Post("/positions/redeem", h.redeem)
		r.Post("/positions/burn", h.burn)
		r.Post("/positions/redeem-and-burn", h.redeemAndBurn)
		r.Post("/liquidations", h.liquidate)

		r.Get("/accounts/{address}", h.account)
		r.Get("/accounts/{address}/health", h.health)
		r.Get("/accounts/{address}/collateral/{asset}", h.collateralBalance)
		r.Get("/assets", h.assets)
		r.Get("/convert/usd-value", h.usdValue)
		r.Get("/convert/asset-amount", h.assetAmount)
		r.Get("/liquidations/preview", h.liquidationPreview)
		r.Get("/constants", h.constants)
	})

	return r
}
