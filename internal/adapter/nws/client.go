package nws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"skycast/internal/domain"
	"skycast/internal/observability"
)

// Client queries the national weather alert API for active hazard alerts.
// Every request carries the contact string the provider requires from
// automated clients, plus the GeoJSON accept header.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	userAgent    string
	breaker      *gobreaker.CircuitBreaker
	retryMax     int
	retryBackoff time.Duration
	metrics      *observability.Metrics
	logger       *slog.Logger
}

// NewClient creates an alert API client. contact identifies this deployment
// to the provider (for example "skycast (ops@example.com)").
func NewClient(baseURL, contact string, timeout time.Duration, retryMax int, retryBackoff time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "alerts",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		userAgent:    contact,
		breaker:      breaker,
		retryMax:     retryMax,
		retryBackoff: retryBackoff,
		metrics:      metrics,
		logger:       logger,
	}
}

// ActiveAlertsForPoint returns active alerts filtered by exact coordinates.
// Zero alerts is a valid outcome, not an error.
func (c *Client) ActiveAlertsForPoint(ctx context.Context, coords domain.Coordinates) ([]domain.Alert, error) {
	u := fmt.Sprintf("%s/alerts/active?point=%.4f,%.4f", c.baseURL, coords.Latitude, coords.Longitude)
	body, err := c.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("point alert query: %w", err)
	}
	return parseAlerts(body)
}

// ZonesForPoint resolves coordinates to the administrative zone identifiers
// covering them, used as the fallback alert filter.
func (c *Client) ZonesForPoint(ctx context.Context, coords domain.Coordinates) ([]string, error) {
	u := fmt.Sprintf("%s/points/%.4f,%.4f", c.baseURL, coords.Latitude, coords.Longitude)
	body, err := c.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("zone metadata query: %w", err)
	}

	var payload pointsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode points response: %w", err)
	}

	seen := make(map[string]struct{})
	var zones []string
	for _, zoneURL := range []string{payload.Properties.ForecastZone, payload.Properties.County, payload.Properties.FireWeatherZone} {
		id := zoneIDFromURL(zoneURL)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		zones = append(zones, id)
	}
	return zones, nil
}

// ActiveAlertsForZone returns active alerts for one zone identifier.
func (c *Client) ActiveAlertsForZone(ctx context.Context, zoneID string) ([]domain.Alert, error) {
	u := fmt.Sprintf("%s/alerts/active/zone/%s", c.baseURL, zoneID)
	body, err := c.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("zone alert query %s: %w", zoneID, err)
	}
	return parseAlerts(body)
}

// statusError is a non-success HTTP response. Never retried; the provider
// answered, it just said no.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("alert API error: status %d: %s", e.status, e.body)
}

// get fetches a URL with bounded retries on network-level failure. HTTP
// status errors pass through immediately, and an open circuit breaker
// short-circuits without touching the network.
func (c *Client) get(ctx context.Context, fullURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		body, err := c.attempt(ctx, fullURL)
		if err == nil {
			c.metrics.UpstreamRequests.WithLabelValues("alerts", "success").Inc()
			return body, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.metrics.UpstreamRequests.WithLabelValues("alerts", "error").Inc()
			return nil, fmt.Errorf("alert provider circuit open: %w", err)
		}

		var se *statusError
		if errors.As(err, &se) {
			c.metrics.UpstreamRequests.WithLabelValues("alerts", "error").Inc()
			return nil, err
		}

		lastErr = err
		if attempt >= c.retryMax {
			c.metrics.UpstreamRequests.WithLabelValues("alerts", "error").Inc()
			return nil, lastErr
		}

		delay := c.retryBackoff * (1 << attempt)
		c.logger.Warn("alert request failed, retrying", "url", fullURL, "attempt", attempt+1, "delay", delay, "error", err)
		if !sleepWithContext(ctx, delay) {
			return nil, ctx.Err()
		}
	}
}

func (c *Client) attempt(ctx context.Context, fullURL string) ([]byte, error) {
	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/geo+json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &statusError{status: resp.StatusCode, body: truncate(body, 512)}
		}
		return body, nil
	})
	c.metrics.UpstreamDuration.WithLabelValues("alerts").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}

// zoneIDFromURL extracts the zone identifier from a zone resource URL like
// "https://api.weather.gov/zones/forecast/ALZ006".
func zoneIDFromURL(zoneURL string) string {
	if zoneURL == "" {
		return ""
	}
	i := strings.LastIndex(zoneURL, "/")
	return zoneURL[i+1:]
}

// Alert API response types (GeoJSON).

type alertsResponse struct {
	Features []alertFeature `json:"features"`
}

type alertFeature struct {
	ID         string          `json:"id"`
	Properties alertProperties `json:"properties"`
}

type alertProperties struct {
	ID          string  `json:"id"`
	Event       string  `json:"event"`
	Headline    *string `json:"headline"`
	Severity    *string `json:"severity"`
	Description *string `json:"description"`
	Instruction *string `json:"instruction"`
	AreaDesc    *string `json:"areaDesc"`
	Effective   string  `json:"effective"`
	Expires     string  `json:"expires"`
}

type pointsResponse struct {
	Properties struct {
		ForecastZone    string `json:"forecastZone"`
		County          string `json:"county"`
		FireWeatherZone string `json:"fireWeatherZone"`
	} `json:"properties"`
}

func parseAlerts(body []byte) ([]domain.Alert, error) {
	var payload alertsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode alerts response: %w", err)
	}

	alerts := make([]domain.Alert, 0, len(payload.Features))
	for _, f := range payload.Features {
		id := f.ID
		if id == "" {
			id = f.Properties.ID
		}
		alerts = append(alerts, domain.Alert{
			ID:          id,
			Event:       f.Properties.Event,
			Headline:    f.Properties.Headline,
			Severity:    f.Properties.Severity,
			Description: f.Properties.Description,
			Instruction: f.Properties.Instruction,
			AreaDesc:    f.Properties.AreaDesc,
			Effective:   parseTime(f.Properties.Effective),
			Expires:     parseTime(f.Properties.Expires),
		})
	}
	return alerts, nil
}

// parseTime is tolerant: a missing or malformed timestamp becomes nil
// rather than failing the whole alert record.
func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
