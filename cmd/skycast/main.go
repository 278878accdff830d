package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/time/rate"

	"skycast/internal/adapter/geocode"
	"skycast/internal/adapter/httpapi"
	"skycast/internal/adapter/ipapi"
	"skycast/internal/adapter/nws"
	"skycast/internal/adapter/openmeteo"
	"skycast/internal/alerts"
	"skycast/internal/config"
	"skycast/internal/domain"
	"skycast/internal/locate"
	"skycast/internal/observability"
	"skycast/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	geocoder := geocode.NewCachedResolver(
		geocode.NewClient(cfg.GeocodeBaseURL, cfg.ReverseBaseURL, cfg.UpstreamTimeout, metrics, logger),
		cfg.GeocodeCacheSize,
		cfg.GeocodeCacheTTL,
		metrics,
	)

	forecast := openmeteo.NewClient(
		cfg.ForecastBaseURL,
		cfg.UpstreamTimeout,
		rate.NewLimiter(rate.Limit(cfg.ForecastRateLimit), cfg.ForecastRateBurst),
		metrics,
		logger,
	)

	alertClient := nws.NewClient(cfg.AlertsBaseURL, cfg.AlertContact, cfg.UpstreamTimeout, cfg.AlertRetryMax, cfg.AlertRetryBackoff, metrics, logger)
	aggregator := alerts.New(alertClient, metrics, logger)

	ipLocator := ipapi.NewClient(cfg.IPLocateBaseURL, cfg.UpstreamTimeout, metrics, logger)
	defaultPlace := domain.Place{
		Name:        cfg.DefaultPlaceName,
		Coordinates: domain.Coordinates{Latitude: cfg.DefaultLatitude, Longitude: cfg.DefaultLongitude},
	}
	// No device geolocation channel exists on the server side; the chain is
	// IP estimate then the configured default.
	locator := locate.New(nil, ipLocator, geocoder, defaultPlace, cfg.AccuracyWarnMeters, logger)

	svc := service.New(forecast, aggregator, metrics, logger)
	cached := service.NewCachedWeather(svc, cfg.CacheTTL, metrics, logger)

	srv := httpapi.NewServer(cfg.HTTPAddr, cached, geocoder, locator, svc, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	logger.Info("skycast started",
		"cache_ttl", cfg.CacheTTL,
		"forecast_url", cfg.ForecastBaseURL,
		"alerts_url", cfg.AlertsBaseURL,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
