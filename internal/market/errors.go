package market

import "fmt"

// VenueError is the typed error every adapter returns for a non-2xx response
// or a venue-specific error code. It is never silently coerced.
type VenueError struct {
	Venue      string
	HTTPStatus int
	VenueCode  string
	Message    string
}

func (e *VenueError) Error() string {
	if e.VenueCode != "" {
		return fmt.Sprintf("%s: http %d code %s: %s", e.Venue, e.HTTPStatus, e.VenueCode, e.Message)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Venue, e.HTTPStatus, e.Message)
}

// IsRateLimited reports whether the venue rejected the call with HTTP 429.
// Periodic cycles treat this as transient and move on.
func (e *VenueError) IsRateLimited() bool {
	return e.HTTPStatus == 429
}
