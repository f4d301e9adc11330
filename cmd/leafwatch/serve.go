package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/leafwatch/leafwatch/internal/alerting"
	api "github.com/leafwatch/leafwatch/internal/api/v1"
	"github.com/leafwatch/leafwatch/internal/conf"
	"github.com/leafwatch/leafwatch/internal/datastore"
	"github.com/leafwatch/leafwatch/internal/datastore/repository"
	"github.com/leafwatch/leafwatch/internal/logger"
	"github.com/leafwatch/leafwatch/internal/mqtt"
	"github.com/leafwatch/leafwatch/internal/realtime"
	"github.com/leafwatch/leafwatch/internal/telemetry"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, websocket and MQTT ingestion service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

// app holds the components shared by all commands.
type app struct {
	settings *conf.Settings
	log      logger.Logger
	db       *gorm.DB
	metrics  *telemetry.Metrics
	flush    func()

	devices     repository.DeviceRepository
	plants      repository.PlantRepository
	conditions  repository.ConditionRepository
	alerts      repository.AlertRepository
	preferences repository.SettingsRepository
}

// bootstrap loads settings, logging, error reporting and the database.
func bootstrap(ctx context.Context) (*app, error) {
	settings, err := conf.Load(configFile)
	if err != nil {
		return nil, err
	}
	log := logger.New(settings.Log.Level, settings.Log.Format, settings.Main.Name)

	flush, err := telemetry.InitSentry(settings.Sentry, version)
	if err != nil {
		log.Warn("error reporting disabled", logger.Error(err))
		flush = func() {}
	}

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		flush()
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	db, err := datastore.Open(ctx, settings.Database, log)
	if err != nil {
		flush()
		return nil, err
	}

	return &app{
		settings: settings,
		log:      log,
		db:       db,
		metrics:  metrics,
		flush:    flush,

		devices:     repository.NewDeviceRepository(db),
		plants:      repository.NewPlantRepository(db),
		conditions:  repository.NewConditionRepository(db),
		alerts:      repository.NewAlertRepository(db),
		preferences: repository.NewCachedSettingsRepository(repository.NewSettingsRepository(db)),
	}, nil
}

// alertingDeps wires the repositories into the alerting pipeline. A nil
// broadcaster persists alerts without pushing them.
func (r *app) alertingDeps(broadcaster alerting.Broadcaster) alerting.Dependencies {
	return alerting.Dependencies{
		Devices:     r.devices,
		Plants:      r.plants,
		Conditions:  r.conditions,
		Alerts:      r.alerts,
		Settings:    r.preferences,
		Broadcaster: broadcaster,
		Metrics:     r.metrics,
		Log:         r.log,
	}
}

func (r *app) close() {
	if err := datastore.Close(r.db); err != nil {
		r.log.Warn("failed to close database", logger.Error(err))
	}
	r.flush()
	_ = r.log.Sync()
}

func serve(ctx context.Context) error {
	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.close()
	settings, log := rt.settings, rt.log

	registry := realtime.NewRegistry(settings.Realtime.BroadcastConcurrency, rt.metrics, log)
	service := alerting.Initialize(rt.alertingDeps(registry), &settings.Alerting)
	defer service.Stop()

	apiDeps := api.Dependencies{
		Devices:    rt.devices,
		Plants:     rt.plants,
		Conditions: rt.conditions,
		Alerts:     rt.alerts,
		Readings:   service.Readings,
		Realtime:   realtime.NewHandler(registry, settings.Realtime.WriteTimeout.Std(), log),
		Metrics:    rt.metrics,
		Log:        log,
		Namespace:  settings.MQTT.Namespace,
	}

	if settings.MQTT.Enabled {
		client := mqtt.NewClient(&settings.MQTT, log)
		ingestor := mqtt.NewIngestor(settings.MQTT.Namespace, service.Readings, registry, log)
		if err := ingestor.Start(ctx, client); err != nil {
			return err
		}
		if err := client.Connect(ctx); err != nil {
			return err
		}
		defer ingestor.Wait()
		defer client.Disconnect()
		apiDeps.Preferences = mqtt.NewPreferencePublisher(client)
	}

	server := api.NewServer(apiDeps)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(settings.WebServer.Listen)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	// ctx is already cancelled; shutdown gets a fresh deadline.
	return server.Shutdown(context.WithoutCancel(ctx))
}
