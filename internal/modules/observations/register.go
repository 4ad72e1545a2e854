package observations

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cosmoz-server/internal/modules/observations/controller"
	"cosmoz-server/internal/modules/observations/repository"
	"cosmoz-server/internal/modules/observations/service"
)

// RegisterFeature mounts the observation routes and, when src is non-nil,
// attaches raw telemetry ingest to it. mw wraps the routes only.
func RegisterFeature(r chi.Router, store repository.Store, src service.TelemetrySource, logger *slog.Logger, mw ...func(http.Handler) http.Handler) {
	observationRepository := repository.NewRepository(store)
	observationController := controller.NewObservationsController(observationRepository, logger)
	observationController.RegisterRoutes(r, mw...)

	if src != nil {
		service.NewIngestService(observationRepository, logger).Register(src)
	}
}
