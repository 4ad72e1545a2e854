package controller

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cosmoz-server/internal/modules/stations/repository"
)

// MediaTypes are the representations of a single station or its
// calibrations. Listings are JSON only.
var MediaTypes = []string{"application/json", "text/csv", "text/plain"}

type StationsController interface {
	RegisterRoutes(r chi.Router, mw ...func(http.Handler) http.Handler)
}

type stationsControllerImpl struct {
	repository repository.StationRepository
	logger     *slog.Logger
}

func NewStationsController(repo repository.StationRepository, logger *slog.Logger) StationsController {
	if logger == nil {
		logger = slog.Default()
	}
	return &stationsControllerImpl{
		repository: repo,
		logger:     logger.With("module", "stations"),
	}
}

func (c *stationsControllerImpl) RegisterRoutes(r chi.Router, mw ...func(http.Handler) http.Handler) {
	r.With(mw...).Get("/stations", c.handleList)
	r.With(mw...).Get("/stations/{id}", c.handleStation)
	r.With(mw...).Get("/stations/{id}/calibration", c.handleCalibration)
}
