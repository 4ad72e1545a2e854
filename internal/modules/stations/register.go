package stations

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cosmoz-server/internal/modules/stations/controller"
	"cosmoz-server/internal/modules/stations/repository"
)

func RegisterFeature(r chi.Router, db *sql.DB, logger *slog.Logger, mw ...func(http.Handler) http.Handler) {
	stationRepository := repository.NewRepository(db)
	stationController := controller.NewStationsController(stationRepository, logger)
	stationController.RegisterRoutes(r, mw...)
}
