package usecases

import (
	"math"
	"sort"

	"github.com/mzabaleta/veloloop/internal/core/domain"
	"github.com/mzabaleta/veloloop/internal/pkg/geodesic"
)

const (
	// DefaultStretchFactor compensates for road paths being longer than the
	// straight-line circumference of the planned circle.
	DefaultStretchFactor = 1.3

	// MaxViaWaypoints is the ceiling on via points per whole-loop oracle
	// call imposed by the external service.
	MaxViaWaypoints = 3
)

// CalculateRadius derives the planning-circle radius from the target ride
// distance: radius = target / (2π × stretch). Scales linearly with the
// target distance.
func CalculateRadius(targetDistanceKm, stretchFactor float64) float64 {
	if stretchFactor <= 0 {
		stretchFactor = DefaultStretchFactor
	}
	return targetDistanceKm / (2 * math.Pi * stretchFactor)
}

// LoopPlan is one attempt's waypoint layout: the offset loop center, the
// radius used, and the ordered point list [start, via…, start] handed to
// the oracle.
type LoopPlan struct {
	Center   domain.Point
	RadiusKm float64
	Points   []domain.Point
}

// PlanWaypoints lays out the waypoints for one loop attempt.
//
// The first bearing is the loop direction. The center is offset from the
// start along that direction by the radius, so the start sits on the loop's
// circumference rather than at its hub ("out and around", not
// hub-and-spoke). Bearings are re-sorted clockwise starting from the angle
// opposite the loop direction, which guarantees the waypoints are visited
// in a single clockwise sweep. Pre-geocoded named waypoints occupy priority
// slots; bearing-derived waypoints fill the remainder up to MaxViaWaypoints.
func PlanWaypoints(start domain.Point, bearings []float64, named []domain.Point, rotationDeg, radiusKm float64) LoopPlan {
	effective := make([]float64, 0, len(bearings))
	for _, b := range bearings {
		effective = append(effective, geodesic.NormalizeBearing(b+rotationDeg))
	}

	plan := LoopPlan{RadiusKm: radiusKm}
	if len(effective) == 0 {
		plan.Center = start
	} else {
		loopDirection := effective[0]
		plan.Center = geodesic.Project(start, loopDirection, radiusKm)
		sortClockwiseFrom(effective, loopDirection+180)
	}

	vias := make([]domain.Point, 0, MaxViaWaypoints)
	for _, p := range named {
		if len(vias) == MaxViaWaypoints {
			break
		}
		vias = append(vias, p)
	}
	for _, b := range effective {
		if len(vias) == MaxViaWaypoints {
			break
		}
		vias = append(vias, geodesic.Project(plan.Center, b, radiusKm))
	}

	plan.Points = make([]domain.Point, 0, len(vias)+2)
	plan.Points = append(plan.Points, start)
	plan.Points = append(plan.Points, vias...)
	plan.Points = append(plan.Points, start)
	return plan
}

// sortClockwiseFrom stably orders bearings by their clockwise angle from
// startAngle, so equal bearings keep their request order.
func sortClockwiseFrom(bearings []float64, startAngle float64) {
	from := geodesic.NormalizeBearing(startAngle)
	sort.SliceStable(bearings, func(i, j int) bool {
		return geodesic.NormalizeBearing(bearings[i]-from) < geodesic.NormalizeBearing(bearings[j]-from)
	})
}
