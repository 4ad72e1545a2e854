// Package service connects the raw telemetry feed to the observations store.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"cosmoz-server/internal/modules/observations/repository"
	"cosmoz-server/internal/mqtt"
)

// TelemetrySource is the part of mqtt.Subscriber the service attaches to.
type TelemetrySource interface {
	SetMessageHandler(h mqtt.Handler)
}

type IngestService struct {
	repository repository.ObservationRepository
	logger     *slog.Logger
}

func NewIngestService(repo repository.ObservationRepository, logger *slog.Logger) *IngestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestService{repository: repo, logger: logger.With("module", "observations")}
}

func (s *IngestService) Register(src TelemetrySource) {
	src.SetMessageHandler(s.Handle)
}

// Handle stores one telemetry message as a level 0 reading.
func (s *IngestService) Handle(ctx context.Context, t mqtt.Telemetry) error {
	s.logger.Debug("processing telemetry message", "site_no", t.SiteNo, "timestamp", t.Timestamp)

	if err := s.repository.InsertRaw(ctx, t.SiteNo, t.Timestamp, t.Fields()); err != nil {
		return fmt.Errorf("store telemetry for station %d: %w", t.SiteNo, err)
	}
	return nil
}
