package domain

import (
	"fmt"
	"time"
)

// CurrentConditions is a single timestamped observation record. Numeric
// fields are pointers so a value the upstream omitted stays null in the
// payload; consumers must render absent fields as unknown, never as zero.
type CurrentConditions struct {
	Time                string   `json:"time"`
	Temperature         *float64 `json:"temperature"`
	ApparentTemperature *float64 `json:"apparent_temperature"`
	Humidity            *float64 `json:"humidity"`
	Precipitation       *float64 `json:"precipitation"`
	WindSpeed           *float64 `json:"wind_speed"`
	WindGusts           *float64 `json:"wind_gusts"`
	UVIndex             *float64 `json:"uv_index"`
	WeatherCode         *int     `json:"weather_code"`
	IsDay               *bool    `json:"is_day"`
}

// HourlySeries holds parallel arrays indexed by Times, covering a 48 hour
// horizon. Every populated slice shares the length of Times.
type HourlySeries struct {
	Times         []string   `json:"times"`
	Temperature   []*float64 `json:"temperature"`
	Humidity      []*float64 `json:"humidity"`
	Precipitation []*float64 `json:"precipitation"`
	WindSpeed     []*float64 `json:"wind_speed"`
	WindGusts     []*float64 `json:"wind_gusts"`
	UVIndex       []*float64 `json:"uv_index"`
	WeatherCode   []*int     `json:"weather_code"`
}

// Validate checks parallel-array length agreement against Times.
func (h HourlySeries) Validate() error {
	n := len(h.Times)
	checks := []struct {
		name string
		len  int
	}{
		{"temperature", len(h.Temperature)},
		{"humidity", len(h.Humidity)},
		{"precipitation", len(h.Precipitation)},
		{"wind_speed", len(h.WindSpeed)},
		{"wind_gusts", len(h.WindGusts)},
		{"uv_index", len(h.UVIndex)},
		{"weather_code", len(h.WeatherCode)},
	}
	for _, c := range checks {
		if c.len != 0 && c.len != n {
			return fmt.Errorf("hourly %s has %d entries, want %d", c.name, c.len, n)
		}
	}
	return nil
}

// DailySeries holds per-day aggregates over a 7 day horizon. Sunrise and
// sunset feed day/night presentation alongside the forecast itself.
type DailySeries struct {
	Dates            []string   `json:"dates"`
	TemperatureMax   []*float64 `json:"temperature_max"`
	TemperatureMin   []*float64 `json:"temperature_min"`
	PrecipitationSum []*float64 `json:"precipitation_sum"`
	WeatherCode      []*int     `json:"weather_code"`
	UVIndexMax       []*float64 `json:"uv_index_max"`
	Sunrise          []string   `json:"sunrise,omitempty"`
	Sunset           []string   `json:"sunset,omitempty"`
}

// Validate checks parallel-array length agreement against Dates.
func (d DailySeries) Validate() error {
	n := len(d.Dates)
	checks := []struct {
		name string
		len  int
	}{
		{"temperature_max", len(d.TemperatureMax)},
		{"temperature_min", len(d.TemperatureMin)},
		{"precipitation_sum", len(d.PrecipitationSum)},
		{"weather_code", len(d.WeatherCode)},
		{"uv_index_max", len(d.UVIndexMax)},
		{"sunrise", len(d.Sunrise)},
		{"sunset", len(d.Sunset)},
	}
	for _, c := range checks {
		if c.len != 0 && c.len != n {
			return fmt.Errorf("daily %s has %d entries, want %d", c.name, c.len, n)
		}
	}
	return nil
}

// ForecastBundle groups the three forecast blocks returned by one combined
// provider call. All three use the unit system the request asked for.
type ForecastBundle struct {
	Current CurrentConditions `json:"current"`
	Hourly  HourlySeries      `json:"hourly"`
	Daily   DailySeries       `json:"daily"`
}

// AlertDiagnostics records which alert lookup paths ran and what each
// contributed, for UI disclosure and debugging. Degraded means at least one
// path failed after retries and the alert list may be incomplete.
type AlertDiagnostics struct {
	PointCount   int      `json:"point_count"`
	ZoneCount    int      `json:"zone_count"`
	ZonesQueried []string `json:"zones_queried,omitempty"`
	Paths        []string `json:"paths,omitempty"`
	Degraded     bool     `json:"degraded"`
}

// WeatherReport is the unit of exchange with the presentation layer.
// Constructed fresh per request (or served from cache within its TTL) and
// never mutated after construction.
type WeatherReport struct {
	Place     Place             `json:"place"`
	Units     Units             `json:"units"`
	Current   CurrentConditions `json:"current"`
	Hourly    HourlySeries      `json:"hourly"`
	Daily     DailySeries       `json:"daily"`
	Alerts    []Alert           `json:"alerts"`
	AlertInfo AlertDiagnostics  `json:"alert_info"`
	FetchedAt time.Time         `json:"fetched_at"`
}
