package usecases

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mzabaleta/veloloop/internal/core/domain"
	"github.com/mzabaleta/veloloop/internal/core/ports"
)

// StitchService turns an ordered waypoint chain into an editable route by
// routing each adjacent pair as its own oracle leg, concurrently, and
// stitching the results. Because every segment is independent, an edit
// later only has to re-route the legs it touches.
type StitchService struct {
	oracle ports.RouteOracle
}

// NewStitchService creates a StitchService backed by the given oracle.
func NewStitchService(oracle ports.RouteOracle) *StitchService {
	return &StitchService{oracle: oracle}
}

// BuildEditable routes the ordered point list [start, via…, start] leg by
// leg and assembles an editable Route. Waypoint IDs are minted here and
// stay stable across subsequent edits.
func (s *StitchService) BuildEditable(ctx context.Context, points []domain.Point, profile string) (*domain.Route, error) {
	if len(points) < 3 {
		return nil, fmt.Errorf("an editable loop needs a start and at least one via point")
	}

	waypoints := make([]domain.Waypoint, len(points))
	for i, p := range points {
		role := domain.RoleVia
		if i == 0 || i == len(points)-1 {
			role = domain.RoleStart
		}
		waypoints[i] = domain.Waypoint{ID: uuid.NewString(), Location: p, Role: role}
	}
	// The closing point is the start repeated; give it the same identity.
	waypoints[len(waypoints)-1].ID = waypoints[0].ID

	segments, err := s.routeLegs(ctx, waypoints, profile)
	if err != nil {
		return nil, err
	}
	return stitch(waypoints, segments, profile), nil
}

// RouteSingleLeg is the thin two-point pass-through used by clients that
// preview a leg without touching session state.
func (s *StitchService) RouteSingleLeg(ctx context.Context, from, to domain.Point, profile string) (*domain.Segment, error) {
	return s.oracle.RouteLeg(ctx, from, to, profile)
}

// routeLegs fans out one oracle call per adjacent waypoint pair. Calls run
// concurrently; results are slotted by leg index, so correctness does not
// depend on completion order. The first failure cancels the siblings.
func (s *StitchService) routeLegs(ctx context.Context, waypoints []domain.Waypoint, profile string) ([]*domain.Segment, error) {
	segments := make([]*domain.Segment, len(waypoints)-1)

	g, ctx := errgroup.WithContext(ctx)
	for i := range segments {
		g.Go(func() error {
			seg, err := s.oracle.RouteLeg(ctx, waypoints[i].Location, waypoints[i+1].Location, profile)
			if err != nil {
				return fmt.Errorf("leg %d: %w", i, err)
			}
			segments[i] = seg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return segments, nil
}

// stitch concatenates the per-leg geometries into one route. The first
// point of every segment after the first duplicates the previous segment's
// last point and is dropped; distance and elevation gain are summed across
// all legs. Aggregates are always recomputed from the full segment array,
// never patched incrementally, to avoid drift across edits.
func stitch(waypoints []domain.Waypoint, segments []*domain.Segment, profile string) *domain.Route {
	total := 0
	for _, seg := range segments {
		total += len(seg.Geometry)
	}
	if len(segments) > 1 {
		total -= len(segments) - 1
	}

	route := &domain.Route{
		Geometry:  make([]domain.Coordinate3D, 0, total),
		Profile:   profile,
		Waypoints: waypoints,
		Segments:  segments,
	}
	for i, seg := range segments {
		geom := seg.Geometry
		if i > 0 && len(geom) > 0 {
			geom = geom[1:]
		}
		route.Geometry = append(route.Geometry, geom...)
		route.DistanceKm += seg.DistanceKm
		route.ElevationGainM += seg.ElevationGainM
	}
	return route
}
