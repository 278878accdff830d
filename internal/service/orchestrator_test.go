package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skycast/internal/domain"
	"skycast/internal/observability"
)

type mockForecast struct {
	bundle domain.ForecastBundle
	err    error
	calls  atomic.Int32

	// block, when set, holds the fetch until released or the context ends.
	block chan struct{}
}

func (m *mockForecast) Fetch(ctx context.Context, _ domain.Coordinates, _ domain.Units) (domain.ForecastBundle, error) {
	m.calls.Add(1)
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return domain.ForecastBundle{}, ctx.Err()
		}
	}
	return m.bundle, m.err
}

type mockAlerts struct {
	alerts []domain.Alert
	diag   domain.AlertDiagnostics
	calls  atomic.Int32
}

func (m *mockAlerts) Collect(context.Context, domain.Coordinates) ([]domain.Alert, domain.AlertDiagnostics) {
	m.calls.Add(1)
	return m.alerts, m.diag
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func f(v float64) *float64 { return &v }

var testCoords = domain.Coordinates{Latitude: 34.7304, Longitude: -86.5861}

func testBundle() domain.ForecastBundle {
	return domain.ForecastBundle{
		Current: domain.CurrentConditions{Time: "2026-08-23T14:00", Temperature: f(93.4)},
		Hourly: domain.HourlySeries{
			Times:       []string{"2026-08-23T14:00"},
			Temperature: []*float64{f(93.4)},
		},
		Daily: domain.DailySeries{
			Dates:          []string{"2026-08-23"},
			TemperatureMax: []*float64{f(96.3)},
		},
	}
}

func TestGetWeather_AssemblesReport(t *testing.T) {
	fake := clockwork.NewFakeClock()
	SetClock(fake)
	defer SetClock(nil)

	forecast := &mockForecast{bundle: testBundle()}
	alerts := &mockAlerts{
		alerts: []domain.Alert{{ID: "a1", Event: "Heat Advisory"}},
		diag:   domain.AlertDiagnostics{PointCount: 1, Paths: []string{"point"}},
	}
	svc := New(forecast, alerts, observability.NewMetricsForTesting(), discardLogger())

	place := domain.Place{Name: "Huntsville", Coordinates: testCoords}
	report, err := svc.GetWeather(context.Background(), Request{
		Coordinates: testCoords,
		Place:       place,
		Units:       domain.UnitsImperial,
	})
	require.NoError(t, err)

	want := domain.WeatherReport{
		Place:     place,
		Units:     domain.UnitsImperial,
		Current:   testBundle().Current,
		Hourly:    testBundle().Hourly,
		Daily:     testBundle().Daily,
		Alerts:    []domain.Alert{{ID: "a1", Event: "Heat Advisory"}},
		AlertInfo: domain.AlertDiagnostics{PointCount: 1, Paths: []string{"point"}},
		FetchedAt: fake.Now(),
	}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestGetWeather_ForecastFailureFailsRequest(t *testing.T) {
	forecast := &mockForecast{err: &domain.ForecastUnavailableError{Status: 503, Detail: "maintenance"}}
	alerts := &mockAlerts{alerts: []domain.Alert{{ID: "a1", Event: "Heat Advisory"}}}
	svc := New(forecast, alerts, observability.NewMetricsForTesting(), discardLogger())

	_, err := svc.GetWeather(context.Background(), Request{Coordinates: testCoords})

	var unavailable *domain.ForecastUnavailableError
	require.ErrorAs(t, err, &unavailable, "forecast is mandatory")
}

func TestGetWeather_DegradedAlertsStillSucceed(t *testing.T) {
	forecast := &mockForecast{bundle: testBundle()}
	alerts := &mockAlerts{diag: domain.AlertDiagnostics{Degraded: true}}
	svc := New(forecast, alerts, observability.NewMetricsForTesting(), discardLogger())

	report, err := svc.GetWeather(context.Background(), Request{Coordinates: testCoords})
	require.NoError(t, err)
	assert.Empty(t, report.Alerts)
	assert.True(t, report.AlertInfo.Degraded)
}

func TestGetWeather_InvalidCoordinatesRejected(t *testing.T) {
	forecast := &mockForecast{bundle: testBundle()}
	alerts := &mockAlerts{}
	svc := New(forecast, alerts, observability.NewMetricsForTesting(), discardLogger())

	_, err := svc.GetWeather(context.Background(), Request{
		Coordinates: domain.Coordinates{Latitude: 120, Longitude: 0},
	})

	var invalid *domain.InvalidInputError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, int32(0), forecast.calls.Load(), "invalid input must be rejected before any fetch")
}

func TestGetWeather_LastRequestWins(t *testing.T) {
	block := make(chan struct{})
	forecast := &mockForecast{bundle: testBundle(), block: block}
	alerts := &mockAlerts{}
	svc := New(forecast, alerts, observability.NewMetricsForTesting(), discardLogger())

	type outcome struct {
		report domain.WeatherReport
		err    error
	}
	resultA := make(chan outcome, 1)

	// Request A blocks inside the forecast fetch.
	go func() {
		report, err := svc.GetWeather(context.Background(), Request{
			Coordinates: testCoords,
			SessionKey:  "tab-1",
			Place:       domain.Place{Name: "A"},
		})
		resultA <- outcome{report, err}
	}()

	// Wait until A is in flight.
	require.Eventually(t, func() bool {
		return forecast.calls.Load() == 1
	}, time.Second, time.Millisecond)

	// Request B for the same session supersedes A and completes immediately.
	bCoords := domain.Coordinates{Latitude: 40.7128, Longitude: -74.006}
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(block) // release A after B has begun
	}()
	reportB, err := svc.GetWeather(context.Background(), Request{
		Coordinates: bCoords,
		SessionKey:  "tab-1",
		Place:       domain.Place{Name: "B"},
	})
	require.NoError(t, err)
	assert.Equal(t, "B", reportB.Place.Name)

	got := <-resultA
	require.ErrorIs(t, got.err, ErrSuperseded, "request A's result must be discarded")
}

func TestGetWeather_CompletedSessionsReleaseBookkeeping(t *testing.T) {
	forecast := &mockForecast{bundle: testBundle()}
	svc := New(forecast, &mockAlerts{}, observability.NewMetricsForTesting(), discardLogger())

	// Session keys are client-controlled, so completed requests must not
	// accumulate tracker state.
	for i := 0; i < 100; i++ {
		_, err := svc.GetWeather(context.Background(), Request{
			Coordinates: testCoords,
			SessionKey:  fmt.Sprintf("tab-%d", i),
		})
		require.NoError(t, err)
	}

	svc.sessions.mu.Lock()
	defer svc.sessions.mu.Unlock()
	assert.Empty(t, svc.sessions.latest)
	assert.Empty(t, svc.sessions.cancels)
}

func TestGetWeather_DifferentSessionsDoNotInterfere(t *testing.T) {
	forecast := &mockForecast{bundle: testBundle()}
	alerts := &mockAlerts{}
	svc := New(forecast, alerts, observability.NewMetricsForTesting(), discardLogger())

	_, err := svc.GetWeather(context.Background(), Request{Coordinates: testCoords, SessionKey: "tab-1"})
	require.NoError(t, err)
	_, err = svc.GetWeather(context.Background(), Request{Coordinates: testCoords, SessionKey: "tab-2"})
	require.NoError(t, err)
}
