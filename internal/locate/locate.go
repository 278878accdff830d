// Package locate acquires the requester's coordinates through a staged
// fallback chain: explicit coordinates, device geolocation with one
// high-accuracy retry, IP-based estimation, and finally a configured
// default place. Acquisition only fails on invalid explicit input; every
// other failure falls through to the next stage.
package locate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"skycast/internal/domain"
)

// Typed device geolocation failures. Permission and policy failures are
// actionable by the user (change a setting); timeout and unavailability are
// transient and worth one higher-effort retry.
var (
	ErrPermissionDenied    = errors.New("geolocation permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrTimeout             = errors.New("geolocation timed out")
	ErrPolicyBlocked       = errors.New("geolocation blocked by policy")
)

// Fix is one coordinate estimate plus its provenance.
type Fix struct {
	Coordinates domain.Coordinates `json:"coordinates"`
	Place       domain.Place       `json:"place"`
	Source      string             `json:"source"` // explicit, device, ip, default
	AccuracyM   *float64           `json:"accuracy_m,omitempty"`

	// Warning carries non-fatal conditions the caller should surface:
	// low accuracy, denied permissions, fallback in effect.
	Warning string `json:"warning,omitempty"`
}

// DeviceLocator is the device geolocation capability, supplied by the
// boundary layer. highAccuracy requests a slower, more precise fix.
type DeviceLocator interface {
	Locate(ctx context.Context, highAccuracy bool) (domain.Coordinates, float64, error)
}

// IPLocator estimates coordinates from the caller's network address.
type IPLocator interface {
	Locate(ctx context.Context) (domain.Coordinates, string, error)
}

// Acquirer walks the acquisition chain and attaches a place identity to
// network-derived fixes via reverse geocoding.
type Acquirer struct {
	device        DeviceLocator // nil when no device channel exists
	ip            IPLocator
	geocoder      domain.Geocoder
	defaultPlace  domain.Place
	warnAccuracyM float64
	logger        *slog.Logger
}

// New creates an Acquirer. device may be nil.
func New(device DeviceLocator, ip IPLocator, geocoder domain.Geocoder, defaultPlace domain.Place, warnAccuracyM float64, logger *slog.Logger) *Acquirer {
	return &Acquirer{
		device:        device,
		ip:            ip,
		geocoder:      geocoder,
		defaultPlace:  defaultPlace,
		warnAccuracyM: warnAccuracyM,
		logger:        logger,
	}
}

// Acquire resolves coordinates for a request. Explicit coordinates are used
// as-is with no network or device calls; otherwise the chain runs until a
// stage succeeds. The default place makes the final stage infallible, so
// the only error is invalid explicit input.
func (a *Acquirer) Acquire(ctx context.Context, explicit *domain.Coordinates) (Fix, error) {
	if explicit != nil {
		if err := explicit.Validate(); err != nil {
			return Fix{}, err
		}
		return Fix{Coordinates: *explicit, Source: "explicit"}, nil
	}

	var warning string
	if a.device != nil {
		fix, ok := a.deviceFix(ctx, &warning)
		if ok {
			return fix, nil
		}
	}

	if coords, city, err := a.ip.Locate(ctx); err == nil {
		place := a.geocoder.Reverse(ctx, coords)
		if place.Name == "Unknown location" && city != "" {
			place.Name = city
		}
		return Fix{Coordinates: coords, Place: place, Source: "ip", Warning: warning}, nil
	} else {
		a.logger.Warn("ip geolocation failed", "error", err)
	}

	if warning == "" {
		warning = "location could not be determined, showing default place"
	}
	return Fix{
		Coordinates: a.defaultPlace.Coordinates,
		Place:       a.defaultPlace,
		Source:      "default",
		Warning:     warning,
	}, nil
}

// deviceFix attempts a low-accuracy fix and retries exactly once at high
// accuracy, but only for transient failures. Permission and policy denials
// skip straight to the next stage with an actionable warning.
func (a *Acquirer) deviceFix(ctx context.Context, warning *string) (Fix, bool) {
	coords, accuracy, err := a.device.Locate(ctx, false)
	if err != nil {
		switch {
		case errors.Is(err, ErrPermissionDenied):
			*warning = "location permission denied; allow location access or search for a place manually"
			return Fix{}, false
		case errors.Is(err, ErrPolicyBlocked):
			*warning = "location access is blocked by policy; search for a place manually"
			return Fix{}, false
		case errors.Is(err, ErrTimeout), errors.Is(err, ErrPositionUnavailable):
			a.logger.Debug("low accuracy fix failed, retrying with high accuracy", "error", err)
			coords, accuracy, err = a.device.Locate(ctx, true)
			if err != nil {
				a.logger.Warn("device geolocation exhausted", "error", err)
				return Fix{}, false
			}
		default:
			a.logger.Warn("device geolocation failed", "error", err)
			return Fix{}, false
		}
	}

	fix := Fix{
		Coordinates: coords,
		Place:       a.geocoder.Reverse(ctx, coords),
		Source:      "device",
		AccuracyM:   &accuracy,
	}
	if accuracy > a.warnAccuracyM {
		fix.Warning = fmt.Sprintf("location accuracy is low (%.0fm radius)", accuracy)
	}
	return fix, true
}
