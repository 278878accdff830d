package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"skycast/internal/domain"
	"skycast/internal/observability"
)

// Field lists requested on every call. Fixed so downstream consumers can
// rely on field presence even when individual values come back null.
const (
	currentFields = "temperature_2m,apparent_temperature,relative_humidity_2m,precipitation,weather_code,wind_speed_10m,wind_gusts_10m,uv_index,is_day"
	hourlyFields  = "temperature_2m,relative_humidity_2m,precipitation,weather_code,wind_speed_10m,wind_gusts_10m,uv_index"
	dailyFields   = "temperature_2m_max,temperature_2m_min,precipitation_sum,weather_code,uv_index_max,sunrise,sunset"
)

// Client fetches current, hourly, and daily forecast blocks from the
// Open-Meteo forecast API in one combined call.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a forecast client. The limiter caps outbound request
// rate across all callers of this client.
func NewClient(baseURL string, timeout time.Duration, limiter *rate.Limiter, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		limiter:    limiter,
		metrics:    metrics,
		logger:     logger,
	}
}

// Fetch requests the fixed field set for the given coordinates. Unit query
// parameters are derived from the preference in one spot so all three
// blocks of the response share a single unit system.
func (c *Client) Fetch(ctx context.Context, coords domain.Coordinates, units domain.Units) (domain.ForecastBundle, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.ForecastBundle{}, &domain.ForecastUnavailableError{Err: fmt.Errorf("rate limiter: %w", err)}
	}

	tokens := domain.TokensFor(units)
	params := url.Values{
		"latitude":           {formatCoord(coords.Latitude)},
		"longitude":          {formatCoord(coords.Longitude)},
		"timezone":           {"auto"},
		"current":            {currentFields},
		"hourly":             {hourlyFields},
		"daily":              {dailyFields},
		"forecast_hours":     {"48"},
		"forecast_days":      {"7"},
		"temperature_unit":   {tokens.Temperature},
		"wind_speed_unit":    {tokens.WindSpeed},
		"precipitation_unit": {tokens.Precipitation},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return domain.ForecastBundle{}, &domain.ForecastUnavailableError{Err: fmt.Errorf("create request: %w", err)}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues("forecast", "error").Inc()
		return domain.ForecastBundle{}, &domain.ForecastUnavailableError{Err: fmt.Errorf("forecast request: %w", err)}
	}
	defer resp.Body.Close()
	c.metrics.UpstreamDuration.WithLabelValues("forecast").Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.metrics.UpstreamRequests.WithLabelValues("forecast", "error").Inc()
		c.logger.Error("forecast upstream error", "status", resp.StatusCode, "body", string(body))
		return domain.ForecastBundle{}, &domain.ForecastUnavailableError{Status: resp.StatusCode, Detail: string(body)}
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.metrics.UpstreamRequests.WithLabelValues("forecast", "error").Inc()
		return domain.ForecastBundle{}, &domain.ForecastUnavailableError{Err: fmt.Errorf("decode response: %w", err)}
	}

	bundle, err := payload.toBundle()
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues("forecast", "error").Inc()
		return domain.ForecastBundle{}, &domain.ForecastUnavailableError{Err: err}
	}

	c.metrics.UpstreamRequests.WithLabelValues("forecast", "success").Inc()
	return bundle, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Open-Meteo API response types.

type response struct {
	Current currentBlock `json:"current"`
	Hourly  hourlyBlock  `json:"hourly"`
	Daily   dailyBlock   `json:"daily"`
}

type currentBlock struct {
	Time                string   `json:"time"`
	Temperature         *float64 `json:"temperature_2m"`
	ApparentTemperature *float64 `json:"apparent_temperature"`
	Humidity            *float64 `json:"relative_humidity_2m"`
	Precipitation       *float64 `json:"precipitation"`
	WeatherCode         *int     `json:"weather_code"`
	WindSpeed           *float64 `json:"wind_speed_10m"`
	WindGusts           *float64 `json:"wind_gusts_10m"`
	UVIndex             *float64 `json:"uv_index"`
	IsDay               *int     `json:"is_day"` // 1=day, 0=night
}

type hourlyBlock struct {
	Time          []string   `json:"time"`
	Temperature   []*float64 `json:"temperature_2m"`
	Humidity      []*float64 `json:"relative_humidity_2m"`
	Precipitation []*float64 `json:"precipitation"`
	WeatherCode   []*int     `json:"weather_code"`
	WindSpeed     []*float64 `json:"wind_speed_10m"`
	WindGusts     []*float64 `json:"wind_gusts_10m"`
	UVIndex       []*float64 `json:"uv_index"`
}

type dailyBlock struct {
	Time             []string   `json:"time"`
	TemperatureMax   []*float64 `json:"temperature_2m_max"`
	TemperatureMin   []*float64 `json:"temperature_2m_min"`
	PrecipitationSum []*float64 `json:"precipitation_sum"`
	WeatherCode      []*int     `json:"weather_code"`
	UVIndexMax       []*float64 `json:"uv_index_max"`
	Sunrise          []string   `json:"sunrise"`
	Sunset           []string   `json:"sunset"`
}

func (r response) toBundle() (domain.ForecastBundle, error) {
	bundle := domain.ForecastBundle{
		Current: domain.CurrentConditions{
			Time:                r.Current.Time,
			Temperature:         r.Current.Temperature,
			ApparentTemperature: r.Current.ApparentTemperature,
			Humidity:            r.Current.Humidity,
			Precipitation:       r.Current.Precipitation,
			WindSpeed:           r.Current.WindSpeed,
			WindGusts:           r.Current.WindGusts,
			UVIndex:             r.Current.UVIndex,
			WeatherCode:         r.Current.WeatherCode,
			IsDay:               isDayFlag(r.Current.IsDay),
		},
		Hourly: domain.HourlySeries{
			Times:         r.Hourly.Time,
			Temperature:   r.Hourly.Temperature,
			Humidity:      r.Hourly.Humidity,
			Precipitation: r.Hourly.Precipitation,
			WindSpeed:     r.Hourly.WindSpeed,
			WindGusts:     r.Hourly.WindGusts,
			UVIndex:       r.Hourly.UVIndex,
			WeatherCode:   r.Hourly.WeatherCode,
		},
		Daily: domain.DailySeries{
			Dates:            r.Daily.Time,
			TemperatureMax:   r.Daily.TemperatureMax,
			TemperatureMin:   r.Daily.TemperatureMin,
			PrecipitationSum: r.Daily.PrecipitationSum,
			WeatherCode:      r.Daily.WeatherCode,
			UVIndexMax:       r.Daily.UVIndexMax,
			Sunrise:          r.Daily.Sunrise,
			Sunset:           r.Daily.Sunset,
		},
	}

	if err := bundle.Hourly.Validate(); err != nil {
		return domain.ForecastBundle{}, err
	}
	if err := bundle.Daily.Validate(); err != nil {
		return domain.ForecastBundle{}, err
	}
	return bundle, nil
}

func isDayFlag(v *int) *bool {
	if v == nil {
		return nil
	}
	day := *v == 1
	return &day
}
