package httpapi

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cosmoz-server/internal/config"
	"cosmoz-server/internal/utils"
)

// NewRouter builds the root router with the global middleware stack plus
// /healthz and /metrics. Feature modules register their routes on it.
func NewRouter(cfg config.Config, db *sql.DB, tsdb Pinger, logger *slog.Logger) *chi.Mux {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(requestID)
	r.Use(requestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key", RequestIDHeader},
		ExposedHeaders: []string{"Content-Disposition", RequestIDHeader},
		MaxAge:         300,
	}))
	if cfg.RateLimitRequests > 0 && cfg.RateLimitWindow > 0 {
		r.Use(httprate.Limit(cfg.RateLimitRequests, cfg.RateLimitWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				utils.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			}),
		))
	}
	r.Use(prometheusMetrics)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		utils.WriteError(w, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	registerHealthcheck(r, db, tsdb, logger)
	r.Handle("/metrics", promhttp.Handler())
	return r
}
