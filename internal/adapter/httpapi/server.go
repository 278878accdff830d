package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"skycast/internal/domain"
	"skycast/internal/locate"
	"skycast/internal/service"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes the aggregation boundary plus health, readiness, and
// metrics endpoints.
type Server struct {
	httpServer *http.Server
	weather    service.WeatherGetter
	geocoder   domain.Geocoder
	locator    *locate.Acquirer
	logger     *slog.Logger
}

// NewServer creates the HTTP server and wires all routes.
func NewServer(addr string, weather service.WeatherGetter, geocoder domain.Geocoder, locator *locate.Acquirer, ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		weather:  weather,
		geocoder: geocoder,
		locator:  locator,
		logger:   logger,
	}

	mux.HandleFunc("GET /api/v1/weather", s.handleWeather)
	mux.HandleFunc("GET /api/v1/search", s.handleSearch)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// weatherResponse wraps the report with location provenance so the
// presentation layer can disclose fallbacks and accuracy warnings.
type weatherResponse struct {
	domain.WeatherReport
	LocationSource  string `json:"location_source,omitempty"`
	LocationWarning string `json:"location_warning,omitempty"`
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	units, err := domain.ParseUnits(q.Get("units"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	var (
		coords  domain.Coordinates
		place   domain.Place
		source  string
		warning string
	)

	switch {
	case q.Get("place") != "":
		candidates, err := s.geocoder.Search(r.Context(), q.Get("place"))
		if errors.Is(err, domain.ErrNoMatchInRegion) {
			writeError(w, http.StatusNotFound, "no_match_in_region", "no place matches that name in the given region")
			return
		}
		if err != nil {
			writeError(w, http.StatusBadGateway, "geocode_unavailable", err.Error())
			return
		}
		if len(candidates) == 0 {
			writeError(w, http.StatusNotFound, "no_match", "no place matches that name")
			return
		}
		place = candidates[0]
		coords = place.Coordinates
		source = "search"

	case q.Get("lat") != "" || q.Get("lon") != "":
		lat, err := strconv.ParseFloat(q.Get("lat"), 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "invalid latitude: must be a number")
			return
		}
		lon, err := strconv.ParseFloat(q.Get("lon"), 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "invalid longitude: must be a number")
			return
		}
		coords = domain.Coordinates{Latitude: lat, Longitude: lon}
		if err := coords.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}
		place = s.geocoder.Reverse(r.Context(), coords)
		source = "explicit"

	default:
		fix, err := s.locator.Acquire(r.Context(), nil)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}
		coords = fix.Coordinates
		place = fix.Place
		source = fix.Source
		warning = fix.Warning
	}

	report, err := s.weather.GetWeather(r.Context(), service.Request{
		Coordinates: coords,
		Place:       place,
		Units:       units,
		SessionKey:  q.Get("session"),
	})
	if err != nil {
		s.writeWeatherError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, weatherResponse{
		WeatherReport:   report,
		LocationSource:  source,
		LocationWarning: warning,
	})
}

func (s *Server) writeWeatherError(w http.ResponseWriter, err error) {
	var invalid *domain.InvalidInputError
	var unavailable *domain.ForecastUnavailableError
	switch {
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.As(err, &unavailable):
		writeError(w, http.StatusBadGateway, "forecast_unavailable", err.Error())
	case errors.Is(err, service.ErrSuperseded):
		writeError(w, http.StatusConflict, "superseded", "a newer request replaced this one")
	default:
		s.logger.Error("weather request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "an error occurred")
	}
}

type searchResponse struct {
	Candidates      []domain.Place `json:"candidates"`
	NoMatchInRegion bool           `json:"no_match_in_region,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid q: must not be empty")
		return
	}

	candidates, err := s.geocoder.Search(r.Context(), query)
	if errors.Is(err, domain.ErrNoMatchInRegion) {
		// Ambiguity is the caller's to resolve; a hint with no match is a
		// zero-match condition, not a failure.
		writeJSON(w, http.StatusOK, searchResponse{Candidates: []domain.Place{}, NoMatchInRegion: true})
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "geocode_unavailable", err.Error())
		return
	}
	if candidates == nil {
		candidates = []domain.Place{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Candidates: candidates})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"error": code, "detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
