package domain

// Coordinates is an immutable latitude/longitude pair in degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks the pair against WGS84 bounds.
func (c Coordinates) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return &InvalidInputError{Field: "latitude", Reason: "must be between -90 and 90"}
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return &InvalidInputError{Field: "longitude", Reason: "must be between -180 and 180"}
	}
	return nil
}

// Place is a resolved place identity. Name is always set; the optional
// fields depend on what the geocoder returned. Names are not unique, so
// disambiguation is the resolver's job, not an invariant here.
type Place struct {
	Name        string      `json:"name"`
	Admin1      *string     `json:"admin1,omitempty"`
	CountryCode *string     `json:"country_code,omitempty"`
	Population  *int        `json:"population,omitempty"`
	Coordinates Coordinates `json:"coordinates"`
}
