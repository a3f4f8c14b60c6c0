package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	api "github.com/esafety/roadguard/internal/api/v2"
	"github.com/esafety/roadguard/internal/buildinfo"
	"github.com/esafety/roadguard/internal/conf"
	"github.com/esafety/roadguard/internal/datastore"
	"github.com/esafety/roadguard/internal/errors"
	"github.com/esafety/roadguard/internal/logger"
	"github.com/esafety/roadguard/internal/mqtt"
	"github.com/esafety/roadguard/internal/observability"
	"github.com/esafety/roadguard/internal/validation"
)

const (
	monitorInterval = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// monitoredStore is implemented by stores that sample pool and table gauges.
type monitoredStore interface {
	StartMonitoring(ctx context.Context, interval time.Duration)
}

// Serve runs the HTTP API and, when enabled, MQTT ingestion until ctx is cancelled.
func Serve(ctx context.Context, settings *conf.Settings, build *buildinfo.Context, log logger.Logger) error {
	log = log.Module("serve")

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	store, err := OpenStore(settings, log, m)
	if err != nil {
		return err
	}
	defer CloseStore(store, log)

	if ms, ok := store.(monitoredStore); ok {
		ms.StartMonitoring(ctx, monitorInterval)
	}

	var opts []validation.Option
	if settings.MQTT.Enabled {
		client, err := startMQTT(ctx, settings, store, log, m)
		if err != nil {
			return err
		}
		defer client.Disconnect()
		opts = append(opts, validation.WithPublisher(mqtt.NewPublisher(client, mqtt.ConfigFromSettings(&settings.MQTT).TopicPrefix)))
	} else {
		log.Info("MQTT disabled, evidence ingestion and result publishing are off")
	}

	service, err := NewValidationService(settings, store, log, m, opts...)
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	controller, err := api.New(e, store, service, settings,
		api.WithLogger(log),
		api.WithMetrics(m),
		api.WithBuildInfo(build))
	if err != nil {
		return fmt.Errorf("failed to initialize API: %w", err)
	}
	defer controller.Shutdown()

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening",
			logger.String("listen", settings.WebServer.Listen),
			logger.String("version", build.Version()))
		if err := e.Start(settings.WebServer.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", logger.Error(err))
	}
	return nil
}

// startMQTT connects to the broker and subscribes the evidence ingestor.
func startMQTT(ctx context.Context, settings *conf.Settings, store datastore.EvidenceWriter, log logger.Logger, m *observability.Metrics) (mqtt.Client, error) {
	cfg := mqtt.ConfigFromSettings(&settings.MQTT)
	client, err := mqtt.NewClient(cfg, m.MQTT, log)
	if err != nil {
		return nil, err
	}

	ingestor := mqtt.NewIngestor(store, cfg.TopicPrefix, log, m.MQTT)
	if err := ingestor.Subscribe(client); err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return client, nil
}
