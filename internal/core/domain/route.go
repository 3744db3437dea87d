package domain

import (
	"time"
)

// WaypointRole distinguishes the loop's start/closing point from via points.
type WaypointRole string

const (
	RoleStart WaypointRole = "start"
	RoleVia   WaypointRole = "via"
)

// Waypoint is an editable pin on a route. The ID is stable across edits so
// clients can track a specific pin independent of its array position.
type Waypoint struct {
	ID       string       `json:"id"`
	Location Point        `json:"location"`
	Role     WaypointRole `json:"role"`
}

// Segment is the routed path between two adjacent waypoints, produced by
// exactly one oracle call. segments[i] connects waypoints[i] to waypoints[i+1].
type Segment struct {
	From           Point          `json:"from"`
	To             Point          `json:"to"`
	Geometry       []Coordinate3D `json:"geometry"`
	DistanceKm     float64        `json:"distance_km"`
	ElevationGainM float64        `json:"elevation_gain_m"`
}

// Route is a stitched loop. Immutable once built; edits produce a new Route
// sharing the untouched segments. Waypoints and Segments are populated only
// for editable routes, with len(Segments) == len(Waypoints)-1.
type Route struct {
	Geometry       []Coordinate3D `json:"geometry"`
	DistanceKm     float64        `json:"distance_km"`
	ElevationGainM float64        `json:"elevation_gain_m"`
	Profile        string         `json:"profile,omitempty"`
	Waypoints      []Waypoint     `json:"waypoints,omitempty"`
	Segments       []*Segment     `json:"segments,omitempty"`
}

// ViaCount returns the number of via waypoints on an editable route.
func (r *Route) ViaCount() int {
	n := 0
	for _, wp := range r.Waypoints {
		if wp.Role == RoleVia {
			n++
		}
	}
	return n
}

// WaypointIndex returns the position of the waypoint with the given ID,
// or -1 if no such waypoint exists.
func (r *Route) WaypointIndex(id string) int {
	for i, wp := range r.Waypoints {
		if wp.ID == id {
			return i
		}
	}
	return -1
}

// LoopRequest describes one loop-generation request. Created per user turn
// and consumed once by the convergence controller.
type LoopRequest struct {
	Start            Point     `json:"start"`
	TargetDistanceKm float64   `json:"target_distance_km"`
	StretchFactor    float64   `json:"stretch_factor,omitempty"`
	Profile          string    `json:"profile,omitempty"`
	Bearings         []float64 `json:"bearings"`         // compass degrees, 0 = north, max 3
	NamedWaypoints   []Point   `json:"named_waypoints"`  // pre-geocoded, take priority slots
}

// SavedRoute is an archived route with its metadata, as persisted by the
// route archive.
type SavedRoute struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Route     *Route    `json:"route"`
	CreatedAt time.Time `json:"created_at"`
}
