package httpapi

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cosmoz-server/internal/utils"
)

// Pinger is satisfied by tsdb.Store.
type Pinger interface {
	Ping(ctx context.Context) (string, error)
}

type healthchecker interface {
	handleHealthz(w http.ResponseWriter, r *http.Request)
}

type healthcheckerImpl struct {
	db     *sql.DB
	tsdb   Pinger
	logger *slog.Logger
}

func NewHealthchecker(db *sql.DB, tsdb Pinger, logger *slog.Logger) healthchecker {
	return &healthcheckerImpl{db: db, tsdb: tsdb, logger: logger}
}

func (h *healthcheckerImpl) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var ok int
	if err := h.db.QueryRowContext(ctx, `SELECT 1`).Scan(&ok); err != nil {
		h.logger.Error("failed to check database connectivity", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to check database connectivity")
		return
	}

	body := map[string]string{"status": "ok"}
	if h.tsdb != nil {
		version, err := h.tsdb.Ping(ctx)
		if err != nil {
			h.logger.Error("failed to reach time-series store", "error", err)
			utils.WriteError(w, http.StatusServiceUnavailable, "failed to reach time-series store")
			return
		}
		body["tsdb_version"] = version
	}
	utils.WriteJSON(w, http.StatusOK, body)
}

func registerHealthcheck(r chi.Router, db *sql.DB, tsdb Pinger, logger *slog.Logger) {
	healthchecker := NewHealthchecker(db, tsdb, logger)
	r.Get("/healthz", healthchecker.handleHealthz)
}
