package domain

import "context"

// Geocoder resolves free-text place queries into ranked candidates and
// coordinate pairs back into place identities.
type Geocoder interface {
	// Search returns zero or more candidates for a free-text query.
	// Empty or whitespace-only text short-circuits to an empty result.
	Search(ctx context.Context, query string) ([]Place, error)

	// Reverse returns the best-match place identity for coordinates.
	// Implementations degrade to a placeholder identity on failure rather
	// than returning an error; valid coordinates must stay usable.
	Reverse(ctx context.Context, coords Coordinates) Place
}
