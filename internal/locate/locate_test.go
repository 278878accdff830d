package locate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skycast/internal/domain"
)

type mockDevice struct {
	calls   []bool // records highAccuracy flag per call
	results []deviceResult
}

type deviceResult struct {
	coords   domain.Coordinates
	accuracy float64
	err      error
}

func (m *mockDevice) Locate(_ context.Context, highAccuracy bool) (domain.Coordinates, float64, error) {
	m.calls = append(m.calls, highAccuracy)
	r := m.results[len(m.calls)-1]
	return r.coords, r.accuracy, r.err
}

type mockIP struct {
	coords domain.Coordinates
	city   string
	err    error
	calls  int
}

func (m *mockIP) Locate(context.Context) (domain.Coordinates, string, error) {
	m.calls++
	return m.coords, m.city, m.err
}

type stubGeocoder struct {
	place domain.Place
}

func (s *stubGeocoder) Search(context.Context, string) ([]domain.Place, error) {
	return nil, nil
}

func (s *stubGeocoder) Reverse(_ context.Context, coords domain.Coordinates) domain.Place {
	p := s.place
	if p.Name == "" {
		p.Name = "Unknown location"
	}
	p.Coordinates = coords
	return p
}

var (
	deviceCoords = domain.Coordinates{Latitude: 34.7304, Longitude: -86.5861}
	ipCoords     = domain.Coordinates{Latitude: 34.6993, Longitude: -86.6483}
	defaultPlace = domain.Place{
		Name:        "New York",
		Coordinates: domain.Coordinates{Latitude: 40.7128, Longitude: -74.006},
	}
)

func newAcquirer(device DeviceLocator, ip IPLocator, geocoder domain.Geocoder) *Acquirer {
	if geocoder == nil {
		geocoder = &stubGeocoder{place: domain.Place{Name: "Huntsville"}}
	}
	return New(device, ip, geocoder, defaultPlace, 1000, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAcquire_ExplicitCoordinates(t *testing.T) {
	device := &mockDevice{}
	ip := &mockIP{}
	a := newAcquirer(device, ip, nil)

	coords := domain.Coordinates{Latitude: 34.7304, Longitude: -86.5861}
	fix, err := a.Acquire(context.Background(), &coords)
	require.NoError(t, err)

	assert.Equal(t, "explicit", fix.Source)
	assert.Equal(t, coords, fix.Coordinates)
	assert.Empty(t, device.calls, "explicit coordinates must not touch the device")
	assert.Equal(t, 0, ip.calls)
}

func TestAcquire_ExplicitInvalid(t *testing.T) {
	a := newAcquirer(nil, &mockIP{}, nil)

	coords := domain.Coordinates{Latitude: 95, Longitude: 0}
	_, err := a.Acquire(context.Background(), &coords)

	var invalid *domain.InvalidInputError
	require.ErrorAs(t, err, &invalid)
}

func TestAcquire_DeviceSuccess(t *testing.T) {
	device := &mockDevice{results: []deviceResult{{coords: deviceCoords, accuracy: 35}}}
	a := newAcquirer(device, &mockIP{}, nil)

	fix, err := a.Acquire(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "device", fix.Source)
	assert.Equal(t, deviceCoords, fix.Coordinates)
	assert.Equal(t, "Huntsville", fix.Place.Name)
	assert.Empty(t, fix.Warning)
	assert.Equal(t, []bool{false}, device.calls, "first attempt is low accuracy")
}

func TestAcquire_TimeoutRetriesHighAccuracyOnce(t *testing.T) {
	device := &mockDevice{results: []deviceResult{
		{err: ErrTimeout},
		{coords: deviceCoords, accuracy: 20},
	}}
	a := newAcquirer(device, &mockIP{}, nil)

	fix, err := a.Acquire(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "device", fix.Source)
	assert.Equal(t, []bool{false, true}, device.calls, "exactly one high-accuracy retry")
}

func TestAcquire_TimeoutTwiceFallsThroughToIP(t *testing.T) {
	device := &mockDevice{results: []deviceResult{
		{err: ErrTimeout},
		{err: ErrPositionUnavailable},
	}}
	ip := &mockIP{coords: ipCoords, city: "Huntsville"}
	a := newAcquirer(device, ip, nil)

	fix, err := a.Acquire(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ip", fix.Source)
	assert.Equal(t, ipCoords, fix.Coordinates)
	assert.Equal(t, []bool{false, true}, device.calls)
	assert.Equal(t, 1, ip.calls)
}

func TestAcquire_PermissionDeniedSkipsRetry(t *testing.T) {
	device := &mockDevice{results: []deviceResult{{err: ErrPermissionDenied}}}
	ip := &mockIP{coords: ipCoords, city: "Huntsville"}
	a := newAcquirer(device, ip, nil)

	fix, err := a.Acquire(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ip", fix.Source)
	assert.Equal(t, []bool{false}, device.calls, "permission denial must not trigger the retry")
	assert.Contains(t, fix.Warning, "permission denied")
}

func TestAcquire_PolicyBlockedDistinctMessage(t *testing.T) {
	device := &mockDevice{results: []deviceResult{{err: ErrPolicyBlocked}}}
	ip := &mockIP{coords: ipCoords}
	a := newAcquirer(device, ip, nil)

	fix, err := a.Acquire(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, fix.Warning, "policy")
}

func TestAcquire_EverythingFailsUsesDefault(t *testing.T) {
	device := &mockDevice{results: []deviceResult{
		{err: ErrTimeout},
		{err: ErrTimeout},
	}}
	ip := &mockIP{err: errors.New("provider down")}
	a := newAcquirer(device, ip, nil)

	fix, err := a.Acquire(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "default", fix.Source)
	assert.Equal(t, defaultPlace, fix.Place)
	assert.NotEmpty(t, fix.Warning)
}

func TestAcquire_LowAccuracyWarning(t *testing.T) {
	device := &mockDevice{results: []deviceResult{{coords: deviceCoords, accuracy: 2500}}}
	a := newAcquirer(device, &mockIP{}, nil)

	fix, err := a.Acquire(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "device", fix.Source)
	assert.Contains(t, fix.Warning, "accuracy")
	require.NotNil(t, fix.AccuracyM)
	assert.Equal(t, float64(2500), *fix.AccuracyM)
}

func TestAcquire_IPCityNamesUnknownPlace(t *testing.T) {
	ip := &mockIP{coords: ipCoords, city: "Huntsville"}
	a := New(nil, ip, &stubGeocoder{}, defaultPlace, 1000, slog.New(slog.NewTextHandler(io.Discard, nil)))

	fix, err := a.Acquire(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ip", fix.Source)
	assert.Equal(t, "Huntsville", fix.Place.Name, "city guess fills in when reverse lookup degrades")
}
