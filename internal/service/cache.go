package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"skycast/internal/domain"
	"skycast/internal/observability"
)

// CachedWeather memoizes successful weather reports for a short TTL so
// repeat requests for the same place and unit system skip the upstream
// round trips entirely. Errors are never cached. Imperial and metric
// results for the same coordinates cache under separate keys.
type CachedWeather struct {
	inner   WeatherGetter
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	report   domain.WeatherReport
	storedAt time.Time
}

// NewCachedWeather creates a cache decorator around a WeatherGetter.
func NewCachedWeather(inner WeatherGetter, ttl time.Duration, metrics *observability.Metrics, logger *slog.Logger) *CachedWeather {
	return &CachedWeather{
		inner:   inner,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
		entries: make(map[string]cacheEntry),
	}
}

func (c *CachedWeather) GetWeather(ctx context.Context, req Request) (domain.WeatherReport, error) {
	if req.Units == "" {
		req.Units = domain.UnitsMetric
	}
	key := cacheKey(req.Coordinates, req.Units)

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && clock.Since(entry.storedAt) < c.ttl {
		c.mu.Unlock()
		c.metrics.CacheLookups.WithLabelValues("response", "hit").Inc()
		return entry.report, nil
	}
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	c.metrics.CacheLookups.WithLabelValues("response", "miss").Inc()

	report, err := c.inner.GetWeather(ctx, req)
	if err != nil {
		return domain.WeatherReport{}, err
	}

	// Last-writer-wins on the same key is fine: values for one key within a
	// TTL window are equivalent.
	c.mu.Lock()
	c.entries[key] = cacheEntry{report: report, storedAt: clock.Now()}
	c.mu.Unlock()
	return report, nil
}

// cacheKey rounds coordinates to four decimals (roughly 11m) so device
// jitter between nearby requests still hits the same entry.
func cacheKey(coords domain.Coordinates, units domain.Units) string {
	return fmt.Sprintf("%.4f,%.4f|%s", coords.Latitude, coords.Longitude, units)
}
