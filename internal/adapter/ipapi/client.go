package ipapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"skycast/internal/domain"
	"skycast/internal/observability"
)

// Client estimates coordinates from the caller's public IP address. The
// endpoint takes no parameters; the provider keys off the requesting IP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an IP geolocation client.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		metrics:    metrics,
		logger:     logger,
	}
}

// Locate returns approximate coordinates plus a city guess. IP geolocation
// is coarse; callers should treat the result as a starting point, not a fix.
func (c *Client) Locate(ctx context.Context) (domain.Coordinates, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return domain.Coordinates{}, "", fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues("ip_locate", "error").Inc()
		return domain.Coordinates{}, "", fmt.Errorf("ip locate request: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.UpstreamDuration.WithLabelValues("ip_locate").Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.metrics.UpstreamRequests.WithLabelValues("ip_locate", "error").Inc()
		return domain.Coordinates{}, "", fmt.Errorf("ip locate API error: status %d: %s", resp.StatusCode, body)
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.metrics.UpstreamRequests.WithLabelValues("ip_locate", "error").Inc()
		return domain.Coordinates{}, "", fmt.Errorf("decode response: %w", err)
	}

	if payload.Status != "success" {
		c.metrics.UpstreamRequests.WithLabelValues("ip_locate", "error").Inc()
		return domain.Coordinates{}, "", fmt.Errorf("ip locate failed: %s", payload.Message)
	}

	c.metrics.UpstreamRequests.WithLabelValues("ip_locate", "success").Inc()
	return domain.Coordinates{Latitude: payload.Lat, Longitude: payload.Lon}, payload.City, nil
}

type response struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	City    string  `json:"city"`
}
