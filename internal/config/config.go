package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Upstream base URLs, overridable so tests can point at local servers.
	ForecastBaseURL string
	GeocodeBaseURL  string
	ReverseBaseURL  string
	AlertsBaseURL   string
	IPLocateBaseURL string

	UpstreamTimeout time.Duration

	// AlertContact identifies this deployment to the alert provider, which
	// rejects anonymous clients. Required; there is no sensible default.
	AlertContact string

	CacheTTL         time.Duration
	GeocodeCacheSize int
	GeocodeCacheTTL  time.Duration

	// Fallback place when every location acquisition stage fails.
	DefaultPlaceName string
	DefaultLatitude  float64
	DefaultLongitude float64

	// Device fixes with a reported accuracy radius above this are still
	// usable but carry a warning for the caller.
	AccuracyWarnMeters float64

	ForecastRateLimit float64
	ForecastRateBurst int

	AlertRetryMax     int
	AlertRetryBackoff time.Duration
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is honored when present
// but never overrides variables already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	upstreamTimeout, err := parseDuration("UPSTREAM_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDuration("CACHE_TTL", "10m")
	if err != nil {
		return nil, err
	}
	geocodeCacheTTL, err := parseDuration("GEOCODE_CACHE_TTL", "1h")
	if err != nil {
		return nil, err
	}
	alertRetryBackoff, err := parseDuration("ALERT_RETRY_BACKOFF", "200ms")
	if err != nil {
		return nil, err
	}

	defaultLat, err := parseFloat("DEFAULT_LATITUDE", 40.7128)
	if err != nil {
		return nil, err
	}
	defaultLon, err := parseFloat("DEFAULT_LONGITUDE", -74.006)
	if err != nil {
		return nil, err
	}
	accuracyWarn, err := parseFloat("ACCURACY_WARN_METERS", 1000)
	if err != nil {
		return nil, err
	}
	forecastRate, err := parseFloat("FORECAST_RATE_LIMIT", 10)
	if err != nil {
		return nil, err
	}

	geocodeCacheSize, err := parsePositiveInt("GEOCODE_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	forecastRateBurst, err := parsePositiveInt("FORECAST_RATE_BURST", 5)
	if err != nil {
		return nil, err
	}
	alertRetryMax, err := parsePositiveInt("ALERT_RETRY_MAX", 2)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		ForecastBaseURL: envOrDefault("FORECAST_BASE_URL", "https://api.open-meteo.com/v1/forecast"),
		GeocodeBaseURL:  envOrDefault("GEOCODE_BASE_URL", "https://geocoding-api.open-meteo.com/v1/search"),
		ReverseBaseURL:  envOrDefault("REVERSE_GEOCODE_BASE_URL", "https://api.bigdatacloud.net/data/reverse-geocode-client"),
		AlertsBaseURL:   envOrDefault("ALERTS_BASE_URL", "https://api.weather.gov"),
		IPLocateBaseURL: envOrDefault("IP_LOCATE_BASE_URL", "http://ip-api.com/json"),

		UpstreamTimeout: upstreamTimeout,
		AlertContact:    os.Getenv("ALERT_CONTACT"),

		CacheTTL:         cacheTTL,
		GeocodeCacheSize: geocodeCacheSize,
		GeocodeCacheTTL:  geocodeCacheTTL,

		DefaultPlaceName: envOrDefault("DEFAULT_PLACE_NAME", "New York"),
		DefaultLatitude:  defaultLat,
		DefaultLongitude: defaultLon,

		AccuracyWarnMeters: accuracyWarn,

		ForecastRateLimit: forecastRate,
		ForecastRateBurst: forecastRateBurst,

		AlertRetryMax:     alertRetryMax,
		AlertRetryBackoff: alertRetryBackoff,
	}

	if cfg.AlertContact == "" {
		return nil, errors.New("ALERT_CONTACT is required (contact string sent to the alert provider)")
	}
	if cfg.DefaultLatitude < -90 || cfg.DefaultLatitude > 90 {
		return nil, errors.New("DEFAULT_LATITUDE out of range")
	}
	if cfg.DefaultLongitude < -180 || cfg.DefaultLongitude > 180 {
		return nil, errors.New("DEFAULT_LONGITUDE out of range")
	}
	if cfg.ForecastRateLimit <= 0 {
		return nil, errors.New("FORECAST_RATE_LIMIT must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
