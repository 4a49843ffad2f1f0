package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/glacier-risk-map/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/glacier-risk-map/internal/adapter/kafka"
	"github.com/couchcryptid/glacier-risk-map/internal/adapter/mapbox"
	"github.com/couchcryptid/glacier-risk-map/internal/adapter/mapview"
	"github.com/couchcryptid/glacier-risk-map/internal/auth"
	"github.com/couchcryptid/glacier-risk-map/internal/config"
	"github.com/couchcryptid/glacier-risk-map/internal/loader"
	"github.com/couchcryptid/glacier-risk-map/internal/mapsession"
	"github.com/couchcryptid/glacier-risk-map/internal/observability"
	"github.com/couchcryptid/glacier-risk-map/internal/riskmap"
	"github.com/couchcryptid/glacier-risk-map/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	var opts []riskmap.Option
	opts = append(opts, riskmap.WithAutoRefresh(cfg.AutoRefresh, cfg.RefreshInterval))

	// Reverse geocoding of the selected site (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		opts = append(opts, riskmap.WithGeocoder(mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)))
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	var writer *kafkaadapter.Writer
	if cfg.AlertsEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger, metrics)
		opts = append(opts, riskmap.WithAlertPublisher(writer))
		logger.Info("alert publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaAlertTopic)
	}

	var authCtx *auth.Context
	if cfg.AuthEnabled() {
		authCtx = auth.New(cfg.AuthBackendURL, cfg.AuthTimeout, nil, logger)
		logger.Info("auth enabled", "backend", cfg.AuthBackendURL)
	}

	ld := loader.New(cfg.DataSource, loader.Options{
		Timeout:     cfg.FetchTimeout,
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerOpenTimeout,
	}, logger, metrics)

	session := mapsession.New(logger, metrics, mapsession.WithHeatLayer(cfg.MapHeatLayer))
	view := riskmap.New(ld, session, scheduler.New(nil, logger), logger, metrics, opts...)

	var surface httpadapter.MapSurface = mapview.New()
	if cfg.MapHeatLayer {
		surface = mapview.NewHeat()
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, view, surface, authCtx, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Initial load, plus the refresh loop when AUTO_REFRESH is set.
	view.Open(ctx)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	view.Close()
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
