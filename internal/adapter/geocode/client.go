package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"skycast/internal/domain"
	"skycast/internal/observability"
)

// Client implements domain.Geocoder against an Open-Meteo style forward
// search endpoint and a BigDataCloud style reverse endpoint.
type Client struct {
	httpClient *http.Client
	searchURL  string
	reverseURL string
	metrics    *observability.Metrics
	logger     *slog.Logger

	// Last successfully resolved country, used to break ties between
	// same-named candidates in different countries.
	mu          sync.Mutex
	lastCountry string
}

// NewClient creates a geocoding client.
func NewClient(searchURL, reverseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		searchURL:  searchURL,
		reverseURL: reverseURL,
		metrics:    metrics,
		logger:     logger,
	}
}

// Search resolves free text into ranked place candidates. Queries carrying
// a region hint ("Huntsville, AL" or "Huntsville Alabama") are filtered to
// candidates in that region; a hint with zero matching candidates returns
// domain.ErrNoMatchInRegion so the caller can tell it apart from no match
// at all.
func (c *Client) Search(ctx context.Context, query string) ([]domain.Place, error) {
	name, hint := splitRegionHint(query)
	if name == "" {
		return nil, nil
	}

	params := url.Values{
		"name":     {name},
		"count":    {"10"},
		"language": {"en"},
		"format":   {"json"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues("geocode", "error").Inc()
		return nil, fmt.Errorf("forward geocode request: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.UpstreamDuration.WithLabelValues("geocode").Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.metrics.UpstreamRequests.WithLabelValues("geocode", "error").Inc()
		return nil, fmt.Errorf("geocode API error: status %d: %s", resp.StatusCode, body)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.metrics.UpstreamRequests.WithLabelValues("geocode", "error").Inc()
		return nil, fmt.Errorf("decode response: %w", err)
	}

	candidates := make([]domain.Place, 0, len(payload.Results))
	for _, r := range payload.Results {
		candidates = append(candidates, r.toPlace())
	}

	if hint != "" {
		filtered := filterByRegion(candidates, hint)
		if len(filtered) == 0 {
			c.metrics.UpstreamRequests.WithLabelValues("geocode", "empty").Inc()
			return nil, domain.ErrNoMatchInRegion
		}
		candidates = filtered
	}

	if len(candidates) == 0 {
		c.metrics.UpstreamRequests.WithLabelValues("geocode", "empty").Inc()
		return nil, nil
	}

	c.rank(candidates)
	c.metrics.UpstreamRequests.WithLabelValues("geocode", "success").Inc()

	if top := candidates[0].CountryCode; top != nil {
		c.mu.Lock()
		c.lastCountry = *top
		c.mu.Unlock()
	}
	return candidates, nil
}

// Reverse resolves coordinates into a place identity. Failures degrade to
// an "Unknown location" placeholder; valid coordinates must stay usable
// even when the reverse provider is down.
func (c *Client) Reverse(ctx context.Context, coords domain.Coordinates) domain.Place {
	unknown := domain.Place{Name: "Unknown location", Coordinates: coords}

	params := url.Values{
		"latitude":         {fmt.Sprintf("%.6f", coords.Latitude)},
		"longitude":        {fmt.Sprintf("%.6f", coords.Longitude)},
		"localityLanguage": {"en"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.reverseURL+"?"+params.Encode(), nil)
	if err != nil {
		return unknown
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues("reverse_geocode", "error").Inc()
		c.logger.Warn("reverse geocoding failed", "lat", coords.Latitude, "lon", coords.Longitude, "error", err)
		return unknown
	}
	defer resp.Body.Close()
	c.metrics.UpstreamDuration.WithLabelValues("reverse_geocode").Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		c.metrics.UpstreamRequests.WithLabelValues("reverse_geocode", "error").Inc()
		c.logger.Warn("reverse geocoding failed", "lat", coords.Latitude, "lon", coords.Longitude, "status", resp.StatusCode)
		return unknown
	}

	var payload reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.metrics.UpstreamRequests.WithLabelValues("reverse_geocode", "error").Inc()
		return unknown
	}

	name := payload.City
	if name == "" {
		name = payload.Locality
	}
	if name == "" {
		c.metrics.UpstreamRequests.WithLabelValues("reverse_geocode", "empty").Inc()
		return unknown
	}

	c.metrics.UpstreamRequests.WithLabelValues("reverse_geocode", "success").Inc()
	place := domain.Place{Name: name, Coordinates: coords}
	if payload.PrincipalSubdivision != "" {
		place.Admin1 = &payload.PrincipalSubdivision
	}
	if payload.CountryCode != "" {
		place.CountryCode = &payload.CountryCode
	}
	return place
}

// rank orders candidates by the tie-break policy: same country as the last
// resolved place first, then population descending. The sort is stable so
// the provider's own ranking survives as the final tie-break.
func (c *Client) rank(candidates []domain.Place) {
	c.mu.Lock()
	last := c.lastCountry
	c.mu.Unlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		if last != "" {
			iMatch := candidates[i].CountryCode != nil && *candidates[i].CountryCode == last
			jMatch := candidates[j].CountryCode != nil && *candidates[j].CountryCode == last
			if iMatch != jMatch {
				return iMatch
			}
		}
		return population(candidates[i]) > population(candidates[j])
	})
}

func population(p domain.Place) int {
	if p.Population == nil {
		return 0
	}
	return *p.Population
}

// filterByRegion keeps candidates whose admin region matches the hint,
// either literally or through the region abbreviation table.
func filterByRegion(candidates []domain.Place, hint string) []domain.Place {
	want := strings.ToLower(strings.TrimSpace(hint))
	if full, ok := regionAbbreviations[strings.ToUpper(want)]; ok {
		want = strings.ToLower(full)
	}

	var out []domain.Place
	for _, cand := range candidates {
		if cand.Admin1 != nil && strings.ToLower(*cand.Admin1) == want {
			out = append(out, cand)
		}
	}
	return out
}

// splitRegionHint separates a query into the place name and an optional
// region hint. "city, ST" always carries a hint; without a comma the
// trailing word(s) only count as a hint when they name a known region.
func splitRegionHint(query string) (name, hint string) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ""
	}

	if i := strings.LastIndex(query, ","); i >= 0 {
		return strings.TrimSpace(query[:i]), strings.TrimSpace(query[i+1:])
	}

	words := strings.Fields(query)
	// Try two-word regions first ("New York", "North Carolina").
	if len(words) >= 3 {
		tail := strings.Join(words[len(words)-2:], " ")
		if isKnownRegion(tail) {
			return strings.Join(words[:len(words)-2], " "), tail
		}
	}
	if len(words) >= 2 {
		tail := words[len(words)-1]
		if isKnownRegion(tail) {
			return strings.Join(words[:len(words)-1], " "), tail
		}
	}
	return query, ""
}

func isKnownRegion(s string) bool {
	if _, ok := regionAbbreviations[strings.ToUpper(s)]; ok {
		return true
	}
	lower := strings.ToLower(s)
	for _, full := range regionAbbreviations {
		if strings.ToLower(full) == lower {
			return true
		}
	}
	return false
}

// Geocoding API response types.

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Name        string  `json:"name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	CountryCode string  `json:"country_code"`
	Admin1      string  `json:"admin1"`
	Population  int     `json:"population"`
}

func (r searchResult) toPlace() domain.Place {
	p := domain.Place{
		Name:        r.Name,
		Coordinates: domain.Coordinates{Latitude: r.Latitude, Longitude: r.Longitude},
	}
	if r.Admin1 != "" {
		admin1 := r.Admin1
		p.Admin1 = &admin1
	}
	if r.CountryCode != "" {
		cc := strings.ToUpper(r.CountryCode)
		p.CountryCode = &cc
	}
	if r.Population > 0 {
		pop := r.Population
		p.Population = &pop
	}
	return p
}

type reverseResponse struct {
	City                 string `json:"city"`
	Locality             string `json:"locality"`
	PrincipalSubdivision string `json:"principalSubdivision"`
	CountryCode          string `json:"countryCode"`
}
