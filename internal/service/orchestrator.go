// Package service orchestrates the per-request aggregation: the forecast
// fetch and the alert collection run concurrently, the forecast is
// mandatory, alerts degrade, and a newer request for the same session
// supersedes any still in flight.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"skycast/internal/domain"
	"skycast/internal/observability"
)

// ErrSuperseded marks a result discarded because a newer request for the
// same session was issued while this one was in flight.
var ErrSuperseded = errors.New("request superseded by a newer one")

// ForecastProvider fetches the combined forecast blocks.
type ForecastProvider interface {
	Fetch(ctx context.Context, coords domain.Coordinates, units domain.Units) (domain.ForecastBundle, error)
}

// AlertCollector gathers hazard alerts without ever failing the request.
type AlertCollector interface {
	Collect(ctx context.Context, coords domain.Coordinates) ([]domain.Alert, domain.AlertDiagnostics)
}

// WeatherGetter is the aggregation boundary; Service implements it and the
// response cache decorates it.
type WeatherGetter interface {
	GetWeather(ctx context.Context, req Request) (domain.WeatherReport, error)
}

// Request identifies one aggregation request. SessionKey ties requests from
// the same consumer together for last-request-wins ordering; an empty key
// opts out of supersession.
type Request struct {
	Coordinates domain.Coordinates
	Place       domain.Place
	Units       domain.Units
	SessionKey  string
}

// Service runs the forecast and alert fetches concurrently and assembles
// the weather report.
type Service struct {
	forecast ForecastProvider
	alerts   AlertCollector
	sessions *sessionTracker
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// New creates a Service.
func New(forecast ForecastProvider, alerts AlertCollector, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{
		forecast: forecast,
		alerts:   alerts,
		sessions: newSessionTracker(),
		metrics:  metrics,
		logger:   logger,
	}
}

// CheckReadiness reports whether the service can take traffic. There are no
// connections to warm up; readiness is wiring, which New guarantees.
func (s *Service) CheckReadiness(_ context.Context) error {
	return nil
}

// GetWeather fetches the forecast and alerts for the request concurrently
// and assembles the report. A forecast failure fails the whole request;
// alert failures only attenuate it. When a newer request for the same
// session arrives first, the stale result is discarded with ErrSuperseded.
func (s *Service) GetWeather(ctx context.Context, req Request) (domain.WeatherReport, error) {
	if err := req.Coordinates.Validate(); err != nil {
		s.metrics.WeatherRequests.WithLabelValues("invalid").Inc()
		return domain.WeatherReport{}, err
	}
	if req.Units == "" {
		req.Units = domain.UnitsMetric
	}

	token, ctx, done := s.sessions.begin(ctx, req.SessionKey)
	defer done()

	var (
		bundle     domain.ForecastBundle
		alertList  []domain.Alert
		alertDiags domain.AlertDiagnostics
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := s.forecast.Fetch(gctx, req.Coordinates, req.Units)
		if err != nil {
			return err
		}
		bundle = b
		return nil
	})
	g.Go(func() error {
		alertList, alertDiags = s.alerts.Collect(gctx, req.Coordinates)
		return nil
	})

	err := g.Wait()

	if !s.sessions.isCurrent(req.SessionKey, token) {
		s.metrics.StaleResultsDiscarded.Inc()
		s.logger.Debug("discarding superseded result", "session", req.SessionKey)
		return domain.WeatherReport{}, ErrSuperseded
	}
	if err != nil {
		s.metrics.WeatherRequests.WithLabelValues("error").Inc()
		s.logger.Error("weather request failed", "lat", req.Coordinates.Latitude, "lon", req.Coordinates.Longitude, "error", err)
		return domain.WeatherReport{}, err
	}

	outcome := "success"
	if alertDiags.Degraded {
		outcome = "degraded"
	}
	s.metrics.WeatherRequests.WithLabelValues(outcome).Inc()

	return domain.WeatherReport{
		Place:     req.Place,
		Units:     req.Units,
		Current:   bundle.Current,
		Hourly:    bundle.Hourly,
		Daily:     bundle.Daily,
		Alerts:    alertList,
		AlertInfo: alertDiags,
		FetchedAt: clock.Now(),
	}, nil
}

// sessionTracker assigns monotonically increasing tokens per session key
// and cancels the in-flight predecessor whenever a new request begins. Only
// the latest token may publish its result. Session keys come straight from
// clients, so entries are released as soon as the request holding the
// current token finishes; the tracker only ever holds in-flight sessions.
type sessionTracker struct {
	mu      sync.Mutex
	latest  map[string]uint64
	cancels map[string]context.CancelFunc
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{
		latest:  make(map[string]uint64),
		cancels: make(map[string]context.CancelFunc),
	}
}

// begin registers a new request for the session. An empty key opts out:
// the returned token always counts as current. The returned done func must
// be called when the request finishes; it cancels the request context and
// releases the session's bookkeeping.
func (t *sessionTracker) begin(ctx context.Context, key string) (uint64, context.Context, func()) {
	if key == "" {
		return 0, ctx, func() {}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if cancel, ok := t.cancels[key]; ok {
		cancel()
	}

	t.latest[key]++
	token := t.latest[key]

	ctx, cancel := context.WithCancel(ctx)
	t.cancels[key] = cancel
	return token, ctx, func() {
		cancel()
		t.finish(key, token)
	}
}

// finish drops the session's entries once the request holding the current
// token completes. A superseded request finishing late leaves the newer
// request's state alone.
func (t *sessionTracker) finish(key string, token uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.latest[key] == token {
		delete(t.latest, key)
		delete(t.cancels, key)
	}
}

func (t *sessionTracker) isCurrent(key string, token uint64) bool {
	if key == "" {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest[key] == token
}
