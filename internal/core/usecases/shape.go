package usecases

import (
	"github.com/mzabaleta/veloloop/internal/core/domain"
	"github.com/mzabaleta/veloloop/internal/pkg/geodesic"
)

// ShapeConfig holds the star-detection tunables. The defaults are
// empirically chosen; keep them configurable rather than re-derived.
type ShapeConfig struct {
	// TrimFraction of points dropped from each end of the geometry before
	// checking. The start and end are expected to approach the center.
	TrimFraction float64
	// HubThreshold is the fraction of the loop radius under which a path
	// point counts as "returned to the hub".
	HubThreshold float64
}

// DefaultShapeConfig returns the tuned star-detection parameters.
func DefaultShapeConfig() ShapeConfig {
	return ShapeConfig{TrimFraction: 0.10, HubThreshold: 0.25}
}

// IsStarShaped reports whether the path collapses back through the loop
// center instead of staying on a perimeter. The first and last TrimFraction
// of points are ignored; any remaining point closer to the center than
// HubThreshold×radius classifies the path as star-shaped.
//
// This is a cheap necessary-but-not-sufficient heuristic for spoke
// patterns, not a self-intersection test.
func (c ShapeConfig) IsStarShaped(path []domain.Coordinate3D, center domain.Point, radiusKm float64) bool {
	n := len(path)
	if n == 0 || radiusKm <= 0 {
		return false
	}

	trim := int(float64(n) * c.TrimFraction)
	if 2*trim >= n {
		return false
	}

	limit := c.HubThreshold * radiusKm
	for _, p := range path[trim : n-trim] {
		if geodesic.Distance(p.Point(), center) < limit {
			return true
		}
	}
	return false
}
