// Package alerts merges hazard alerts recovered from the point lookup path
// and the per-zone fallback path into one deduplicated list. The aggregator
// never fails its caller: every upstream failure degrades to an empty
// contribution plus a diagnostics flag.
package alerts

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"skycast/internal/domain"
	"skycast/internal/observability"
)

// Provider is the subset of the alert API the aggregator needs.
type Provider interface {
	ActiveAlertsForPoint(ctx context.Context, coords domain.Coordinates) ([]domain.Alert, error)
	ZonesForPoint(ctx context.Context, coords domain.Coordinates) ([]string, error)
	ActiveAlertsForZone(ctx context.Context, zoneID string) ([]domain.Alert, error)
}

// Aggregator runs the point query first and falls back to zone queries when
// the point path contributes nothing.
type Aggregator struct {
	provider Provider
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// New creates an Aggregator.
func New(provider Provider, metrics *observability.Metrics, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		provider: provider,
		metrics:  metrics,
		logger:   logger,
	}
}

// Collect gathers active alerts for the coordinates. The returned
// diagnostics record which paths ran and whether any of them degraded;
// Collect itself never fails.
func (a *Aggregator) Collect(ctx context.Context, coords domain.Coordinates) ([]domain.Alert, domain.AlertDiagnostics) {
	var diag domain.AlertDiagnostics

	pointAlerts, err := a.provider.ActiveAlertsForPoint(ctx, coords)
	if err != nil {
		a.logger.Warn("point alert query degraded", "lat", coords.Latitude, "lon", coords.Longitude, "error", err)
		diag.Degraded = true
		pointAlerts = nil
	} else {
		diag.Paths = append(diag.Paths, "point")
	}
	diag.PointCount = len(pointAlerts)
	a.metrics.AlertPathResults.WithLabelValues("point").Add(float64(len(pointAlerts)))

	// Zero alerts from the point path is a valid outcome, but coverage gaps
	// in point filtering are common enough that the zone path is consulted
	// before an empty list goes out.
	var zoneAlerts []domain.Alert
	if len(pointAlerts) == 0 {
		zoneAlerts = a.collectZones(ctx, coords, &diag)
	}

	merged := dedupe(append(pointAlerts, zoneAlerts...))
	if diag.Degraded {
		a.metrics.AlertsDegraded.Inc()
	}
	return merged, diag
}

// collectZones resolves the point to zone identifiers and queries each zone
// in parallel. A zone metadata failure degrades the whole fallback path; a
// single zone query failure only loses that zone's contribution.
func (a *Aggregator) collectZones(ctx context.Context, coords domain.Coordinates, diag *domain.AlertDiagnostics) []domain.Alert {
	zones, err := a.provider.ZonesForPoint(ctx, coords)
	if err != nil {
		a.logger.Warn("zone metadata query degraded", "lat", coords.Latitude, "lon", coords.Longitude, "error", err)
		diag.Degraded = true
		return nil
	}
	if len(zones) == 0 {
		return nil
	}

	diag.Paths = append(diag.Paths, "zone")
	diag.ZonesQueried = zones

	var mu sync.Mutex
	var collected []domain.Alert

	g, gctx := errgroup.WithContext(ctx)
	for _, zone := range zones {
		g.Go(func() error {
			items, err := a.provider.ActiveAlertsForZone(gctx, zone)
			if err != nil {
				a.logger.Warn("zone alert query degraded", "zone", zone, "error", err)
				mu.Lock()
				diag.Degraded = true
				mu.Unlock()
				return nil
			}
			mu.Lock()
			collected = append(collected, items...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // goroutines only ever return nil

	diag.ZoneCount = len(collected)
	a.metrics.AlertPathResults.WithLabelValues("zone").Add(float64(len(collected)))
	return collected
}

// dedupe collapses records sharing a provider-assigned ID, keeping the first
// occurrence. Records with no ID get a synthesized one so they are never
// silently dropped; synthesized IDs never collide, so those records are
// inherently non-deduplicable.
func dedupe(alerts []domain.Alert) []domain.Alert {
	seen := make(map[string]struct{}, len(alerts))
	out := make([]domain.Alert, 0, len(alerts))
	for _, alert := range alerts {
		if alert.ID == "" {
			alert.ID = uuid.NewString()
			alert.Synthesized = true
			out = append(out, alert)
			continue
		}
		if _, ok := seen[alert.ID]; ok {
			continue
		}
		seen[alert.ID] = struct{}{}
		out = append(out, alert)
	}
	return out
}
