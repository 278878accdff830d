package geocode

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skycast/internal/domain"
	"skycast/internal/observability"
)

type mockGeocoder struct {
	searchCalls  int
	reverseCalls int
	places       []domain.Place
	reversePlace domain.Place
}

func (m *mockGeocoder) Search(context.Context, string) ([]domain.Place, error) {
	m.searchCalls++
	return m.places, nil
}

func (m *mockGeocoder) Reverse(context.Context, domain.Coordinates) domain.Place {
	m.reverseCalls++
	return m.reversePlace
}

func somePlace(name string) domain.Place {
	return domain.Place{Name: name, Coordinates: domain.Coordinates{Latitude: 1, Longitude: 2}}
}

func TestCachedResolver_SearchHit(t *testing.T) {
	mock := &mockGeocoder{places: []domain.Place{somePlace("Huntsville")}}
	c := NewCachedResolver(mock, 10, time.Hour, observability.NewMetricsForTesting())

	first, err := c.Search(context.Background(), "Huntsville")
	require.NoError(t, err)
	second, err := c.Search(context.Background(), "huntsville  ")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, mock.searchCalls, "normalized repeat query should hit the cache")
}

func TestCachedResolver_EmptyResultsNotCached(t *testing.T) {
	mock := &mockGeocoder{}
	c := NewCachedResolver(mock, 10, time.Hour, observability.NewMetricsForTesting())

	_, err := c.Search(context.Background(), "Nowheresville")
	require.NoError(t, err)
	_, err = c.Search(context.Background(), "Nowheresville")
	require.NoError(t, err)

	assert.Equal(t, 2, mock.searchCalls)
}

func TestCachedResolver_TTLExpiry(t *testing.T) {
	fake := clockwork.NewFakeClock()
	SetClock(fake)
	defer SetClock(nil)

	mock := &mockGeocoder{places: []domain.Place{somePlace("Huntsville")}}
	c := NewCachedResolver(mock, 10, time.Hour, observability.NewMetricsForTesting())

	_, err := c.Search(context.Background(), "Huntsville")
	require.NoError(t, err)

	fake.Advance(2 * time.Hour)

	_, err = c.Search(context.Background(), "Huntsville")
	require.NoError(t, err)
	assert.Equal(t, 2, mock.searchCalls, "expired entry should refetch")
}

func TestCachedResolver_ReverseUnknownNotCached(t *testing.T) {
	mock := &mockGeocoder{reversePlace: domain.Place{Name: "Unknown location"}}
	c := NewCachedResolver(mock, 10, time.Hour, observability.NewMetricsForTesting())

	coords := domain.Coordinates{Latitude: 34.73, Longitude: -86.58}
	c.Reverse(context.Background(), coords)
	c.Reverse(context.Background(), coords)

	assert.Equal(t, 2, mock.reverseCalls)
}

func TestCachedResolver_ReverseHit(t *testing.T) {
	mock := &mockGeocoder{reversePlace: somePlace("Huntsville")}
	c := NewCachedResolver(mock, 10, time.Hour, observability.NewMetricsForTesting())

	coords := domain.Coordinates{Latitude: 34.73, Longitude: -86.58}
	first := c.Reverse(context.Background(), coords)
	second := c.Reverse(context.Background(), coords)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, mock.reverseCalls)
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	cache := newLRUCache(2, time.Hour)

	cache.put("a", []domain.Place{somePlace("A")})
	cache.put("b", []domain.Place{somePlace("B")})

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := cache.get("a")
	require.True(t, ok)

	cache.put("c", []domain.Place{somePlace("C")})

	_, ok = cache.get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = cache.get("a")
	assert.True(t, ok)
	_, ok = cache.get("c")
	assert.True(t, ok)
}
