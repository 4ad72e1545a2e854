package controller

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cosmoz-server/internal/modules/observations/repository"
)

type ObservationsController interface {
	// RegisterRoutes mounts the observation endpoints. mw wraps only these
	// routes, e.g. the API key gate.
	RegisterRoutes(r chi.Router, mw ...func(http.Handler) http.Handler)
}

type observationsControllerImpl struct {
	repository repository.ObservationRepository
	logger     *slog.Logger
	now        func() time.Time
}

func NewObservationsController(repo repository.ObservationRepository, logger *slog.Logger) ObservationsController {
	return newController(repo, logger, time.Now)
}

func newController(repo repository.ObservationRepository, logger *slog.Logger, now func() time.Time) *observationsControllerImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &observationsControllerImpl{
		repository: repo,
		logger:     logger.With("module", "observations"),
		now:        now,
	}
}

func (c *observationsControllerImpl) RegisterRoutes(r chi.Router, mw ...func(http.Handler) http.Handler) {
	r.With(mw...).Get("/stations/{id}/observations", c.handleObservations)
	r.With(mw...).Get("/stations/{id}/lastobservations", c.handleLastObservations)
}
