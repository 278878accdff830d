package ipapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skycast/internal/observability"
)

func newTestClient(baseURL string) *Client {
	return NewClient(
		baseURL,
		5*time.Second,
		observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func TestClient_Locate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","lat":34.6993,"lon":-86.6483,"city":"Huntsville"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	coords, city, err := c.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 34.6993, coords.Latitude)
	assert.Equal(t, -86.6483, coords.Longitude)
	assert.Equal(t, "Huntsville", city)
}

func TestClient_Locate_ProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"fail","message":"private range"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, _, err := c.Locate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private range")
}

func TestClient_Locate_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, _, err := c.Locate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
