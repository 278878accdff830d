package domain

import (
	"errors"
	"fmt"
)

// ErrNoMatchInRegion means a forward search carried a region hint but no
// candidate matched it. Distinct from zero results overall so the caller
// can suggest dropping the hint instead of showing a bare "no matches".
var ErrNoMatchInRegion = errors.New("no match in region")

// InvalidInputError rejects a request before any network call is made.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ForecastUnavailableError reports a failed mandatory forecast fetch with
// upstream detail attached. The forecast path has no degraded mode; this
// error fails the whole request.
type ForecastUnavailableError struct {
	Status int
	Detail string
	Err    error
}

func (e *ForecastUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("forecast unavailable: %v", e.Err)
	}
	return fmt.Sprintf("forecast unavailable: upstream status %d: %s", e.Status, e.Detail)
}

func (e *ForecastUnavailableError) Unwrap() error { return e.Err }
