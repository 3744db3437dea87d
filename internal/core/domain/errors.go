package domain

import (
	"errors"
	"fmt"
)

// Classification errors returned by the convergence controller. They carry
// the caller-facing failure taxonomy: fatal input, exhausted-correctable
// (split into coastline vs. sparse roads), and transient oracle failures
// (which are passed through unwrapped).
var (
	// ErrStartUnroutable means the start point itself cannot be snapped to
	// the road network. No geometric adjustment fixes this.
	ErrStartUnroutable = errors.New("start point is not routable")

	// ErrNearCoastline means interior waypoints kept landing off the road
	// network even after rotating and shrinking, which in practice means the
	// loop area overlaps water or unmapped terrain.
	ErrNearCoastline = errors.New("too close to water or coastline")

	// ErrSparseRoads means no oracle call ever produced a parseable route.
	ErrSparseRoads = errors.New("road network too sparse for a loop here")

	// ErrPlaceNotFound is returned by geocoding when a place name resolves
	// to nothing. Upstream input error, never retried.
	ErrPlaceNotFound = errors.New("place not found")

	// ErrWaypointFloor means a removal would leave the loop with no via
	// waypoint. A loop needs at least one at all times.
	ErrWaypointFloor = errors.New("a loop needs at least one via waypoint")

	// ErrStaleEdit marks an operation superseded by a newer one on the same
	// session. Its partial results are discarded; callers drop it silently
	// rather than surfacing it as a failure.
	ErrStaleEdit = errors.New("operation superseded by a newer edit")

	// ErrSessionNotFound is returned for unknown session IDs.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRouteNotFound is returned by the archive for unknown saved-route
	// IDs.
	ErrRouteNotFound = errors.New("saved route not found")
)

// PointNotFoundError is the oracle's unroutable-point failure, tagged with
// the offending point's position in the request so the controller can tell
// an unroutable start (fatal) from an unroutable via waypoint (correctable).
type PointNotFoundError struct {
	Index int
}

func (e *PointNotFoundError) Error() string {
	return fmt.Sprintf("no routable point near request point %d", e.Index)
}

// AsPointNotFound unwraps err to a PointNotFoundError if it is one.
func AsPointNotFound(err error) (*PointNotFoundError, bool) {
	var pnf *PointNotFoundError
	if errors.As(err, &pnf) {
		return pnf, true
	}
	return nil, false
}
