package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"cosmoz-server/internal/auth"
	"cosmoz-server/internal/config"
	db "cosmoz-server/internal/db"
	httpapi "cosmoz-server/internal/httpapi"
	"cosmoz-server/internal/migrate"
	"cosmoz-server/internal/modules/observations"
	"cosmoz-server/internal/modules/observations/service"
	observationviews "cosmoz-server/internal/modules/observations/views"
	"cosmoz-server/internal/modules/stations"
	stationviews "cosmoz-server/internal/modules/stations/views"
	"cosmoz-server/internal/mqtt"
	"cosmoz-server/internal/tsdb"
)

const shutdownTimeout = 10 * time.Second

func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"dbDriver", cfg.Driver,
		"sqlitePath", cfg.Path,
		"influxAddr", cfg.InfluxAddr(),
		"influxDatabase", cfg.InfluxDatabase,
		"mqttEnabled", cfg.MQTTEnabled,
		"mqttBroker", cfg.MQTTBroker,
		"mqttTopic", cfg.MQTTTopic,
		"authRequired", cfg.AuthRequired,
	)

	dbConn, err := db.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()

	if _, err := migrate.Run(ctx, dbConn, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if err := observationviews.LoadTemplates(); err != nil {
		return err
	}
	if err := stationviews.LoadTemplates(); err != nil {
		return err
	}

	store := tsdb.NewStore(tsdb.OptionsFromConfig(cfg), logger)
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("tsdb close", "error", closeErr)
		}
	}()

	var gate []func(http.Handler) http.Handler
	if cfg.AuthRequired {
		gate = append(gate, auth.Require(auth.NewChecker(dbConn, logger)))
	}

	// A nil *Subscriber must not reach RegisterFeature as a non-nil interface.
	var src service.TelemetrySource
	var subscriber *mqtt.Subscriber
	if cfg.MQTTEnabled {
		subscriber = mqtt.NewSubscriber(cfg, logger)
		src = subscriber
	}

	router := httpapi.NewRouter(cfg, dbConn, store, logger)
	observations.RegisterFeature(router, store, src, logger, gate...)
	stations.RegisterFeature(router, dbConn, logger)

	root := suture.New("cosmoz", suture.Spec{
		EventHook:        (&sutureslog.Handler{Logger: logger}).MustHook(),
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          shutdownTimeout,
	})
	root.Add(httpapi.NewServerService(httpapi.NewServer(cfg, router), shutdownTimeout, logger))
	if subscriber != nil {
		root.Add(subscriber)
	}

	err = root.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}
