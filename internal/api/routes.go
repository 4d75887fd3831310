package api

import (
	"net/http"
	"time"

	"investment-tracker/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates and configures a Chi router with all routes
func NewRouter(h *Handler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Duration(cfg.Quotes.TimeoutSeconds) * time.Second))
	r.Use(CORSMiddleware(cfg.HTTP.CORSAllowedOrigins))
	r.Use(MetricsMiddleware)
	r.Use(AccessLog)

	// Metrics endpoint for Prometheus
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)

		// Ledger
		r.Route("/positions", func(r chi.Router) {
			r.Get("/", h.HandleGetPositions)
			r.Post("/", h.HandleBuy)
			r.Post("/{id}/close", h.HandleClosePosition)
			r.Post("/{id}/reduce", h.HandleReducePosition)
			r.Delete("/{id}", h.HandleDeletePosition)
		})

		r.Route("/codes", func(r chi.Router) {
			r.Get("/", h.HandleGetCodes)
			r.Get("/{code}/records", h.HandleGetPositionRecords)
			r.Get("/{code}/stats", h.HandleGetPositionStats)
		})

		// Views
		r.Get("/profit-loss", h.HandleGetProfitLoss)
		r.Get("/profit-loss/latest", h.HandleGetLatestProfitLoss)
		r.Get("/closed-trades", h.HandleGetClosedTrades)

		r.Route("/portfolios", func(r chi.Router) {
			r.Get("/", h.HandleGetPortfolios)
			r.Get("/summaries", h.HandleGetPortfolioSummaries)
			r.Get("/{name}/positions", h.HandleGetPortfolioPositions)
			r.Get("/{name}/summary", h.HandleGetPortfolioSummary)
		})

		r.Get("/quotes/{code}", h.HandleGetQuote)

		if cfg.HTTP.AllowReset {
			r.Post("/admin/reset", h.HandleReset)
		}
	})

	return r
}
