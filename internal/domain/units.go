package domain

// Units is the user-facing unit preference, scoped to a single request.
type Units string

const (
	UnitsImperial Units = "imperial"
	UnitsMetric   Units = "metric"
)

// ParseUnits maps a raw query value to a Units. An empty value defaults to
// metric; anything else unrecognized is rejected before any network call.
func ParseUnits(s string) (Units, error) {
	switch Units(s) {
	case UnitsImperial:
		return UnitsImperial, nil
	case UnitsMetric, Units(""):
		return UnitsMetric, nil
	}
	return "", &InvalidInputError{Field: "units", Reason: "must be \"imperial\" or \"metric\""}
}

// UnitTokens are the provider-specific unit query tokens for one unit system.
type UnitTokens struct {
	Temperature   string
	WindSpeed     string
	Precipitation string
}

// TokensFor returns the upstream unit tokens for a preference. Every call
// site that builds an upstream query derives its unit parameters here, so
// the current, hourly, and daily blocks of one response never mix systems.
// Unknown values get metric tokens.
func TokensFor(u Units) UnitTokens {
	if u == UnitsImperial {
		return UnitTokens{Temperature: "fahrenheit", WindSpeed: "mph", Precipitation: "inch"}
	}
	return UnitTokens{Temperature: "celsius", WindSpeed: "kmh", Precipitation: "mm"}
}
